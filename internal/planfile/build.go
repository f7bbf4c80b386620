package planfile

import (
	"fmt"
	"strings"

	"github.com/vinayprograms/planval/internal/ast"
	"github.com/vinayprograms/planval/internal/term"
)

// builder converts s-expression nodes into AST nodes. All variables of one
// task share a symbol table so that every frame has the same size.
type builder struct {
	syms *term.Symbols
}

func newBuilder() *builder {
	return &builder{syms: term.NewSymbols()}
}

func errorf(n *Node, format string, args ...interface{}) error {
	return fmt.Errorf("line %d: %s", n.Line, fmt.Sprintf(format, args...))
}

func isVar(s string) bool { return strings.HasPrefix(s, "?") }

// params reads a typed list such as (?a ?b - truck ?c). Untyped
// variables are of type object.
func (b *builder) params(n *Node) ([]ast.Param, error) {
	if n == nil {
		return nil, nil
	}
	if !n.IsList {
		return nil, errorf(n, "expected parameter list, got %s", n)
	}
	var out []ast.Param
	pending := 0
	for i := 0; i < len(n.List); i++ {
		c := n.List[i]
		if c.IsList || c.IsNum {
			return nil, errorf(c, "unexpected %s in parameter list", c)
		}
		if c.Sym == "-" {
			if i+1 >= len(n.List) || n.List[i+1].IsList {
				return nil, errorf(c, "missing type after '-'")
			}
			if pending == 0 {
				return nil, errorf(c, "type %s names no variables", n.List[i+1])
			}
			typ := n.List[i+1].Sym
			for j := len(out) - pending; j < len(out); j++ {
				out[j].Type = typ
			}
			pending = 0
			i++
			continue
		}
		if !isVar(c.Sym) {
			return nil, errorf(c, "expected variable, got %s", c.Sym)
		}
		out = append(out, ast.Param{Var: b.syms.Var(c.Sym), Type: "object"})
		pending++
	}
	return out, nil
}

// signature reads a predicate or function declaration such as
// (at ?t - truck ?l - location).
func (b *builder) signature(n *Node) (ast.Signature, error) {
	if n.Head() == "" {
		return ast.Signature{}, errorf(n, "expected declaration, got %s", n)
	}
	params, err := b.params(&Node{IsList: true, List: n.List[1:], Line: n.Line})
	if err != nil {
		return ast.Signature{}, err
	}
	return ast.Signature{Name: n.Head(), Params: params}, nil
}

func (b *builder) args(nodes []*Node) ([]term.Arg, error) {
	out := make([]term.Arg, 0, len(nodes))
	for _, a := range nodes {
		switch {
		case a.IsList:
			return nil, errorf(a, "unexpected list %s as argument", a)
		case a.IsNum:
			out = append(out, term.Const(a.String()))
		case isVar(a.Sym):
			out = append(out, b.syms.Var(a.Sym))
		default:
			out = append(out, term.Const(a.Sym))
		}
	}
	return out, nil
}

func (b *builder) atom(n *Node) (*ast.Atom, error) {
	if !n.IsList {
		if n.IsNum || isVar(n.Sym) {
			return nil, errorf(n, "expected atom, got %s", n)
		}
		return &ast.Atom{Name: n.Sym}, nil
	}
	if n.Head() == "" {
		return nil, errorf(n, "expected atom, got %s", n)
	}
	args, err := b.args(n.List[1:])
	if err != nil {
		return nil, err
	}
	return &ast.Atom{Name: n.Head(), Args: args}, nil
}

func (b *builder) funcTerm(n *Node) (*ast.FuncTerm, error) {
	a, err := b.atom(n)
	if err != nil {
		return nil, err
	}
	return &ast.FuncTerm{Name: a.Name, Args: a.Args}, nil
}

var cmpOps = map[string]ast.CmpOp{
	"<": ast.CmpLT, "<=": ast.CmpLE, "=": ast.CmpEQ, ">=": ast.CmpGE, ">": ast.CmpGT,
}

func arity(n *Node, want int) error {
	if got := len(n.List) - 1; got != want {
		return errorf(n, "%s expects %d arguments, got %d", n.Head(), want, got)
	}
	return nil
}

// goal reads a condition.
func (b *builder) goal(n *Node) (ast.Goal, error) {
	if n.IsList && len(n.List) == 0 {
		return &ast.True{}, nil
	}
	head := n.Head()
	switch head {
	case "and", "or":
		gs := make([]ast.Goal, 0, len(n.List)-1)
		for _, c := range n.List[1:] {
			g, err := b.goal(c)
			if err != nil {
				return nil, err
			}
			gs = append(gs, g)
		}
		if head == "and" {
			return &ast.And{Goals: gs}, nil
		}
		return &ast.Or{Goals: gs}, nil
	case "not":
		if err := arity(n, 1); err != nil {
			return nil, err
		}
		g, err := b.goal(n.List[1])
		if err != nil {
			return nil, err
		}
		return &ast.Not{G: g}, nil
	case "imply":
		if err := arity(n, 2); err != nil {
			return nil, err
		}
		l, err := b.goal(n.List[1])
		if err != nil {
			return nil, err
		}
		r, err := b.goal(n.List[2])
		if err != nil {
			return nil, err
		}
		return &ast.Imply{If: l, Then: r}, nil
	case "forall", "exists":
		if err := arity(n, 2); err != nil {
			return nil, err
		}
		params, err := b.params(n.List[1])
		if err != nil {
			return nil, err
		}
		body, err := b.goal(n.List[2])
		if err != nil {
			return nil, err
		}
		if head == "forall" {
			return &ast.Forall{Params: params, Body: body}, nil
		}
		return &ast.Exists{Params: params, Body: body}, nil
	case "preference":
		name, body, err := b.preference(n)
		if err != nil {
			return nil, err
		}
		g, err := b.goal(body)
		if err != nil {
			return nil, err
		}
		return &ast.Preference{Name: name, Body: g}, nil
	}
	if op, ok := cmpOps[head]; ok {
		if err := arity(n, 2); err != nil {
			return nil, err
		}
		l, err := b.expr(n.List[1])
		if err != nil {
			return nil, err
		}
		r, err := b.expr(n.List[2])
		if err != nil {
			return nil, err
		}
		return &ast.Comparison{Op: op, L: l, R: r}, nil
	}
	return b.atom(n)
}

// preference splits (preference [name] body). Unnamed preferences are
// called "anonymous".
func (b *builder) preference(n *Node) (string, *Node, error) {
	switch len(n.List) {
	case 2:
		return "anonymous", n.List[1], nil
	case 3:
		if n.List[1].IsList || n.List[1].IsNum {
			return "", nil, errorf(n, "preference name must be a symbol")
		}
		return n.List[1].Sym, n.List[2], nil
	}
	return "", nil, errorf(n, "malformed preference %s", n)
}

var binOps = map[string]ast.BinOp{"+": ast.OpAdd, "-": ast.OpSub, "*": ast.OpMul, "/": ast.OpDiv}

// expr reads a numeric expression.
func (b *builder) expr(n *Node) (ast.Expr, error) {
	if n.IsNum {
		return &ast.Num{Value: n.Num}, nil
	}
	if !n.IsList {
		switch {
		case n.Sym == "?duration":
			return &ast.DurationVar{}, nil
		case n.Sym == "#t":
			return &ast.HashT{}, nil
		case n.Sym == "total-time":
			return &ast.TotalTime{}, nil
		case isVar(n.Sym):
			return nil, errorf(n, "variable %s used as a number", n.Sym)
		}
		return &ast.FuncTerm{Name: n.Sym}, nil
	}

	head := n.Head()
	if op, ok := binOps[head]; ok {
		if len(n.List) == 2 && op == ast.OpSub {
			x, err := b.expr(n.List[1])
			if err != nil {
				return nil, err
			}
			return &ast.Neg{X: x}, nil
		}
		if len(n.List) < 3 {
			return nil, errorf(n, "%s needs at least two operands", head)
		}
		if (op == ast.OpSub || op == ast.OpDiv) && len(n.List) != 3 {
			return nil, errorf(n, "%s expects 2 arguments, got %d", head, len(n.List)-1)
		}
		acc, err := b.expr(n.List[1])
		if err != nil {
			return nil, err
		}
		for _, c := range n.List[2:] {
			r, err := b.expr(c)
			if err != nil {
				return nil, err
			}
			acc = &ast.Binary{Op: op, L: acc, R: r}
		}
		return acc, nil
	}

	switch head {
	case "total-time":
		return &ast.TotalTime{}, nil
	case "is-violated":
		if err := arity(n, 1); err != nil {
			return nil, err
		}
		return &ast.ViolationCount{Name: n.List[1].String()}, nil
	case "":
		return nil, errorf(n, "expected expression, got %s", n)
	}
	return b.funcTerm(n)
}

var updateOps = map[string]ast.UpdateOp{
	"assign": ast.Assign, "increase": ast.Increase, "decrease": ast.Decrease,
	"scale-up": ast.ScaleUp, "scale-down": ast.ScaleDown,
}

// effect reads a discrete effect.
func (b *builder) effect(n *Node) (ast.Effect, error) {
	if n.IsList && len(n.List) == 0 {
		return &ast.AndEffect{}, nil
	}
	head := n.Head()
	switch head {
	case "and":
		es := make([]ast.Effect, 0, len(n.List)-1)
		for _, c := range n.List[1:] {
			e, err := b.effect(c)
			if err != nil {
				return nil, err
			}
			es = append(es, e)
		}
		return &ast.AndEffect{Effects: es}, nil
	case "not":
		if err := arity(n, 1); err != nil {
			return nil, err
		}
		a, err := b.atom(n.List[1])
		if err != nil {
			return nil, err
		}
		return &ast.DelEffect{Atom: a}, nil
	case "forall":
		if err := arity(n, 2); err != nil {
			return nil, err
		}
		params, err := b.params(n.List[1])
		if err != nil {
			return nil, err
		}
		body, err := b.effect(n.List[2])
		if err != nil {
			return nil, err
		}
		return &ast.ForallEffect{Params: params, Body: body}, nil
	case "when":
		if err := arity(n, 2); err != nil {
			return nil, err
		}
		cond, err := b.goal(n.List[1])
		if err != nil {
			return nil, err
		}
		body, err := b.effect(n.List[2])
		if err != nil {
			return nil, err
		}
		return &ast.When{Cond: cond, Body: body}, nil
	}
	if op, ok := updateOps[head]; ok {
		return b.update(n, op)
	}
	if _, ok := cmpOps[head]; ok {
		return nil, errorf(n, "comparison %s is not an effect", n)
	}
	a, err := b.atom(n)
	if err != nil {
		return nil, err
	}
	return &ast.AddEffect{Atom: a}, nil
}

func (b *builder) update(n *Node, op ast.UpdateOp) (*ast.Update, error) {
	if err := arity(n, 2); err != nil {
		return nil, err
	}
	t, err := b.funcTerm(n.List[1])
	if err != nil {
		return nil, err
	}
	v, err := b.expr(n.List[2])
	if err != nil {
		return nil, err
	}
	return &ast.Update{Op: op, Term: t, Value: v}, nil
}

// continuous reads the continuous effects of a durative action: increase
// or decrease updates, possibly conjoined.
func (b *builder) continuous(n *Node) ([]*ast.Update, error) {
	if n.Head() == "and" {
		var out []*ast.Update
		for _, c := range n.List[1:] {
			us, err := b.continuous(c)
			if err != nil {
				return nil, err
			}
			out = append(out, us...)
		}
		return out, nil
	}
	switch n.Head() {
	case "increase", "decrease":
		u, err := b.update(n, updateOps[n.Head()])
		if err != nil {
			return nil, err
		}
		return []*ast.Update{u}, nil
	}
	return nil, errorf(n, "continuous effect must be increase or decrease, got %s", n)
}

// durations reads (= ?duration 4) or a conjunction of such bounds.
func (b *builder) durations(n *Node) ([]ast.DurationConstraint, error) {
	if n.Head() == "and" {
		var out []ast.DurationConstraint
		for _, c := range n.List[1:] {
			dcs, err := b.durations(c)
			if err != nil {
				return nil, err
			}
			out = append(out, dcs...)
		}
		return out, nil
	}
	op, ok := cmpOps[n.Head()]
	if !ok || len(n.List) != 3 || n.List[1].Sym != "?duration" {
		return nil, errorf(n, "expected duration constraint such as (= ?duration 4), got %s", n)
	}
	v, err := b.expr(n.List[2])
	if err != nil {
		return nil, err
	}
	return []ast.DurationConstraint{{Op: op, Value: v}}, nil
}

func number(n *Node) (float64, error) {
	if !n.IsNum {
		return 0, errorf(n, "expected number, got %s", n)
	}
	return n.Num, nil
}

// constraint reads a trajectory constraint.
func (b *builder) constraint(n *Node) (ast.Constraint, error) {
	head := n.Head()
	switch head {
	case "and":
		cs := make([]ast.Constraint, 0, len(n.List)-1)
		for _, c := range n.List[1:] {
			sub, err := b.constraint(c)
			if err != nil {
				return nil, err
			}
			cs = append(cs, sub)
		}
		return &ast.AndConstraint{Constraints: cs}, nil
	case "forall":
		if err := arity(n, 2); err != nil {
			return nil, err
		}
		params, err := b.params(n.List[1])
		if err != nil {
			return nil, err
		}
		body, err := b.constraint(n.List[2])
		if err != nil {
			return nil, err
		}
		return &ast.ForallConstraint{Params: params, Body: body}, nil
	case "preference":
		name, body, err := b.preference(n)
		if err != nil {
			return nil, err
		}
		c, err := b.constraint(body)
		if err != nil {
			return nil, err
		}
		return &ast.PrefConstraint{Name: name, C: c}, nil
	case "at":
		if len(n.List) != 3 || n.List[1].Sym != "end" {
			return nil, errorf(n, "expected (at end <goal>), got %s", n)
		}
		g, err := b.goal(n.List[2])
		if err != nil {
			return nil, err
		}
		return &ast.AtEnd{G: g}, nil
	case "always", "sometime", "at-most-once", "never":
		if err := arity(n, 1); err != nil {
			return nil, err
		}
		g, err := b.goal(n.List[1])
		if err != nil {
			return nil, err
		}
		switch head {
		case "always":
			return &ast.Always{G: g}, nil
		case "sometime":
			return &ast.Sometime{G: g}, nil
		case "at-most-once":
			return &ast.AtMostOnce{G: g}, nil
		}
		return &ast.Never{G: g}, nil
	case "within", "hold-after":
		if err := arity(n, 2); err != nil {
			return nil, err
		}
		t, err := number(n.List[1])
		if err != nil {
			return nil, err
		}
		g, err := b.goal(n.List[2])
		if err != nil {
			return nil, err
		}
		if head == "within" {
			return &ast.Within{Deadline: t, G: g}, nil
		}
		return &ast.HoldAfter{Deadline: t, G: g}, nil
	case "hold-during":
		if err := arity(n, 3); err != nil {
			return nil, err
		}
		from, err := number(n.List[1])
		if err != nil {
			return nil, err
		}
		to, err := number(n.List[2])
		if err != nil {
			return nil, err
		}
		g, err := b.goal(n.List[3])
		if err != nil {
			return nil, err
		}
		return &ast.HoldDuring{From: from, To: to, G: g}, nil
	case "always-within":
		if err := arity(n, 3); err != nil {
			return nil, err
		}
		t, err := number(n.List[1])
		if err != nil {
			return nil, err
		}
		trig, err := b.goal(n.List[2])
		if err != nil {
			return nil, err
		}
		req, err := b.goal(n.List[3])
		if err != nil {
			return nil, err
		}
		return &ast.AlwaysWithin{Deadline: t, Trigger: trig, Req: req}, nil
	case "sometime-after", "sometime-before":
		if err := arity(n, 2); err != nil {
			return nil, err
		}
		trig, err := b.goal(n.List[1])
		if err != nil {
			return nil, err
		}
		req, err := b.goal(n.List[2])
		if err != nil {
			return nil, err
		}
		if head == "sometime-after" {
			return &ast.SometimeAfter{Trigger: trig, Req: req}, nil
		}
		return &ast.SometimeBefore{Trigger: trig, Req: req}, nil
	case "order":
		if len(n.List) < 3 {
			return nil, errorf(n, "order needs at least two goals")
		}
		o := &ast.Order{}
		for i, c := range n.List[1:] {
			g, err := b.goal(c)
			if err != nil {
				return nil, err
			}
			o.Nodes = append(o.Nodes, g)
			if i > 0 {
				o.Edges = append(o.Edges, [2]int{i - 1, i})
			}
		}
		return o, nil
	}
	return nil, errorf(n, "unknown constraint %s", n)
}

// metric reads (minimize e) or (maximize e).
func (b *builder) metric(n *Node) (*ast.Metric, error) {
	switch n.Head() {
	case "minimize", "maximize":
		if err := arity(n, 1); err != nil {
			return nil, err
		}
		e, err := b.expr(n.List[1])
		if err != nil {
			return nil, err
		}
		return &ast.Metric{Minimize: n.Head() == "minimize", Expr: e}, nil
	}
	return nil, errorf(n, "expected (minimize ...) or (maximize ...), got %s", n)
}

// initEffects reads one init entry: a literal, (= term value) or a
// conjunction of those.
func (b *builder) initEffects(n *Node) ([]ast.Effect, error) {
	switch n.Head() {
	case "and":
		var out []ast.Effect
		for _, c := range n.List[1:] {
			es, err := b.initEffects(c)
			if err != nil {
				return nil, err
			}
			out = append(out, es...)
		}
		return out, nil
	case "=":
		u, err := b.update(n, ast.Assign)
		if err != nil {
			return nil, err
		}
		return []ast.Effect{u}, nil
	case "not":
		return nil, errorf(n, "negative literals are implicit in the initial state")
	}
	a, err := b.atom(n)
	if err != nil {
		return nil, err
	}
	return []ast.Effect{&ast.AddEffect{Atom: a}}, nil
}
