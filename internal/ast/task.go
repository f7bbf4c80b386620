package ast

// Constraint is a trajectory constraint node.
type Constraint interface {
	constraint()
}

type Always struct {
	G Goal
}

type Sometime struct {
	G Goal
}

type AtMostOnce struct {
	G Goal
}

type Never struct {
	G Goal
}

type AtEnd struct {
	G Goal
}

// Within requires G to hold at some state no later than Deadline.
type Within struct {
	Deadline float64
	G        Goal
}

type SometimeAfter struct {
	Trigger, Req Goal
}

type SometimeBefore struct {
	Trigger, Req Goal
}

// AlwaysWithin requires Req within Deadline time units of every state where
// Trigger holds.
type AlwaysWithin struct {
	Deadline     float64
	Trigger, Req Goal
}

// HoldDuring requires G in every state with From <= time < To.
type HoldDuring struct {
	From, To float64
	G        Goal
}

// HoldAfter requires G in every state with time >= Deadline.
type HoldAfter struct {
	Deadline float64
	G        Goal
}

// Order is a precedence order over goals. Edges[i] = {a, b} means Nodes[a]
// must be discharged before Nodes[b] may become true.
type Order struct {
	Nodes []Goal
	Edges [][2]int
}

type AndConstraint struct {
	Constraints []Constraint
}

type ForallConstraint struct {
	Params []Param
	Body   Constraint
}

// PrefConstraint is a soft trajectory constraint.
type PrefConstraint struct {
	Name string
	C    Constraint
}

func (*Always) constraint()           {}
func (*Sometime) constraint()         {}
func (*AtMostOnce) constraint()       {}
func (*Never) constraint()            {}
func (*AtEnd) constraint()            {}
func (*Within) constraint()           {}
func (*SometimeAfter) constraint()    {}
func (*SometimeBefore) constraint()   {}
func (*AlwaysWithin) constraint()     {}
func (*HoldDuring) constraint()       {}
func (*HoldAfter) constraint()        {}
func (*Order) constraint()            {}
func (*AndConstraint) constraint()    {}
func (*ForallConstraint) constraint() {}
func (*PrefConstraint) constraint()   {}

// DurationConstraint bounds ?duration, e.g. (<= ?duration 5).
type DurationConstraint struct {
	Op    CmpOp
	Value Expr
}

// Action is an action schema. Instantaneous actions use Pre and Effect;
// durative actions use the At*/OverAll conditions and Start/End/Continuous
// effects.
type Action struct {
	Name     string
	Params   []Param
	Durative bool
	Duration []DurationConstraint

	Pre    Goal
	Effect Effect

	AtStart Goal
	OverAll Goal
	AtEnd   Goal

	StartEffect Effect
	EndEffect   Effect
	Continuous  []*Update // values may reference #t
	Line        int
}

// Signature declares a predicate or function symbol.
type Signature struct {
	Name   string
	Params []Param
}

// Computed is an externally computed function with its defining expression.
type Computed struct {
	Sig  Signature
	Body Expr
}

// TimedLiteral is an effect that fires at a fixed time.
type TimedLiteral struct {
	Time   float64
	Effect Effect
}

// Metric is the plan quality expression.
type Metric struct {
	Minimize bool
	Expr     Expr
}

// Task is a domain and problem together.
type Task struct {
	Name        string
	Types       []string
	Objects     map[string][]string // type -> object names
	Predicates  []Signature
	Functions   []Signature
	Computed    []Computed
	Actions     []*Action
	Init        []Effect
	Timed       []TimedLiteral
	Goal        Goal
	Constraints Constraint // nil when the task has none
	Metric      *Metric
	NumVars     int // size of the variable table used to parse the task
}

// Action returns the schema named name, or nil.
func (t *Task) Action(name string) *Action {
	for _, a := range t.Actions {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// Step is one action occurrence in a plan.
type Step struct {
	Time        float64
	Name        string
	Args        []string
	Duration    float64
	HasDuration bool
	Line        int
}

// Plan is a candidate solution.
type Plan struct {
	Name     string
	Steps    []Step
	Temporal bool // false when steps carried no explicit times
}
