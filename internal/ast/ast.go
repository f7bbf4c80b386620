// Package ast defines the closed set of node kinds for numeric expressions,
// goals, effects and trajectory constraints, plus action schemas and tasks.
package ast

import "github.com/vinayprograms/planval/internal/term"

// Expr is a numeric expression node.
type Expr interface {
	expr()
}

// BinOp is an arithmetic operator.
type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
)

func (o BinOp) String() string {
	switch o {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	}
	return "?"
}

// Binary is a binary arithmetic expression.
type Binary struct {
	Op   BinOp
	L, R Expr
}

// Neg is unary negation.
type Neg struct {
	X Expr
}

// Num is a numeric literal.
type Num struct {
	Value float64
}

// FuncTerm is a numeric term, possibly parametrized.
type FuncTerm struct {
	Name string
	Args []term.Arg
}

// TotalTime is the special value (total-time).
type TotalTime struct{}

// DurationVar is ?duration inside a durative action.
type DurationVar struct{}

// HashT is #t, the elapsed time inside a continuous effect.
type HashT struct{}

// ViolationCount is (is-violated name).
type ViolationCount struct {
	Name string
}

func (*Binary) expr()         {}
func (*Neg) expr()            {}
func (*Num) expr()            {}
func (*FuncTerm) expr()       {}
func (*TotalTime) expr()      {}
func (*DurationVar) expr()    {}
func (*HashT) expr()          {}
func (*ViolationCount) expr() {}

// Goal is a condition node.
type Goal interface {
	goal()
}

// CmpOp is a numeric comparison operator.
type CmpOp int

const (
	CmpLT CmpOp = iota
	CmpLE
	CmpEQ
	CmpGE
	CmpGT
)

func (o CmpOp) String() string {
	switch o {
	case CmpLT:
		return "<"
	case CmpLE:
		return "<="
	case CmpEQ:
		return "="
	case CmpGE:
		return ">="
	case CmpGT:
		return ">"
	}
	return "?"
}

// Param is a typed variable introduced by an action or quantifier.
type Param struct {
	Var  term.Var
	Type string
}

// Atom is a proposition, possibly parametrized.
type Atom struct {
	Name string
	Args []term.Arg
}

// True is the empty condition.
type True struct{}

type Not struct {
	G Goal
}

type And struct {
	Goals []Goal
}

type Or struct {
	Goals []Goal
}

type Imply struct {
	If, Then Goal
}

// Comparison compares two numeric expressions.
type Comparison struct {
	Op   CmpOp
	L, R Expr
}

type Forall struct {
	Params []Param
	Body   Goal
}

type Exists struct {
	Params []Param
	Body   Goal
}

// Preference is a soft goal. It never makes the enclosing goal false; its
// violations are counted instead.
type Preference struct {
	Name string
	Body Goal
}

func (*Atom) goal()       {}
func (*True) goal()       {}
func (*Not) goal()        {}
func (*And) goal()        {}
func (*Or) goal()         {}
func (*Imply) goal()      {}
func (*Comparison) goal() {}
func (*Forall) goal()     {}
func (*Exists) goal()     {}
func (*Preference) goal() {}

// Effect is an effect node.
type Effect interface {
	effect()
}

// UpdateOp is a numeric update operator.
type UpdateOp int

const (
	Assign UpdateOp = iota
	ContinuousAssign
	Increase
	Decrease
	ScaleUp
	ScaleDown
)

func (o UpdateOp) String() string {
	switch o {
	case Assign:
		return "assign"
	case ContinuousAssign:
		return "continuous-assign"
	case Increase:
		return "increase"
	case Decrease:
		return "decrease"
	case ScaleUp:
		return "scale-up"
	case ScaleDown:
		return "scale-down"
	}
	return "unknown"
}

// Additive reports whether updates with this operator commute.
func (o UpdateOp) Additive() bool { return o == Increase || o == Decrease }

type AddEffect struct {
	Atom *Atom
}

type DelEffect struct {
	Atom *Atom
}

// Update changes a numeric term.
type Update struct {
	Op    UpdateOp
	Term  *FuncTerm
	Value Expr
}

type AndEffect struct {
	Effects []Effect
}

type ForallEffect struct {
	Params []Param
	Body   Effect
}

// When is a conditional effect. Cond is evaluated in the state before the
// happening.
type When struct {
	Cond Goal
	Body Effect
}

func (*AddEffect) effect()    {}
func (*DelEffect) effect()    {}
func (*Update) effect()       {}
func (*AndEffect) effect()    {}
func (*ForallEffect) effect() {}
func (*When) effect()         {}
