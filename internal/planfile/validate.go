package planfile

import (
	"fmt"
	"strings"

	"github.com/vinayprograms/planval/internal/ast"
	"github.com/vinayprograms/planval/internal/term"
)

// scope is the set of variables visible at a node, plus what special
// values may appear there.
type scope struct {
	vars       map[string]bool
	durative   bool // ?duration is bound
	continuous bool // #t is bound
}

func (s scope) with(params []ast.Param) scope {
	vars := make(map[string]bool, len(s.vars)+len(params))
	for k := range s.vars {
		vars[k] = true
	}
	for _, p := range params {
		vars[p.Var.Name] = true
	}
	return scope{vars: vars, durative: s.durative, continuous: s.continuous}
}

type checker struct {
	preds   map[string]int
	funcs   map[string]int
	objects map[string]bool
	types   map[string]bool
	prefs   map[string]bool
	errs    []string
	where   string
}

func (c *checker) errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if c.where != "" {
		msg = c.where + ": " + msg
	}
	c.errs = append(c.errs, msg)
}

// Validate checks a parsed task for undeclared symbols, arity mismatches,
// unknown types and objects, unbound variables and duplicate definitions.
// All problems are reported together.
func Validate(task *ast.Task) error {
	c := &checker{
		preds:   make(map[string]int),
		funcs:   make(map[string]int),
		objects: make(map[string]bool),
		types:   map[string]bool{"object": true},
		prefs:   make(map[string]bool),
	}

	if task.Name == "" {
		c.errorf("name is required")
	}

	for _, t := range task.Types {
		c.types[t] = true
	}
	for typ, objs := range task.Objects {
		if len(task.Types) > 0 && !c.types[typ] {
			c.errorf("objects of undeclared type %q", typ)
		}
		c.types[typ] = true
		for _, o := range objs {
			c.objects[o] = true
		}
	}

	for _, sig := range task.Predicates {
		if _, dup := c.preds[sig.Name]; dup {
			c.errorf("duplicate predicate %q", sig.Name)
		}
		c.preds[sig.Name] = len(sig.Params)
		c.checkParams(sig.Params)
	}
	for _, sig := range task.Functions {
		if _, dup := c.funcs[sig.Name]; dup {
			c.errorf("duplicate function %q", sig.Name)
		}
		c.funcs[sig.Name] = len(sig.Params)
		c.checkParams(sig.Params)
	}
	for _, def := range task.Computed {
		if _, dup := c.funcs[def.Sig.Name]; dup {
			c.errorf("computed function %q is already declared", def.Sig.Name)
		}
		c.funcs[def.Sig.Name] = len(def.Sig.Params)
	}
	for _, def := range task.Computed {
		c.where = "computed " + def.Sig.Name
		c.checkParams(def.Sig.Params)
		c.expr(def.Body, scope{}.with(def.Sig.Params))
	}

	collectPrefs(task.Goal, nil, c.prefs)
	collectPrefs(nil, task.Constraints, c.prefs)

	seen := make(map[string]bool)
	for _, a := range task.Actions {
		c.where = fmt.Sprintf("line %d: action %s", a.Line, a.Name)
		if seen[a.Name] {
			c.errorf("duplicate action")
		}
		seen[a.Name] = true
		c.checkParams(a.Params)
		sc := scope{}.with(a.Params)
		if !a.Durative {
			c.goal(a.Pre, sc)
			c.effect(a.Effect, sc)
			continue
		}
		sc.durative = true
		for _, dc := range a.Duration {
			c.expr(dc.Value, sc)
		}
		c.goal(a.AtStart, sc)
		c.goal(a.OverAll, sc)
		c.goal(a.AtEnd, sc)
		c.effect(a.StartEffect, sc)
		c.effect(a.EndEffect, sc)
		cont := sc
		cont.continuous = true
		for _, u := range a.Continuous {
			c.effect(u, cont)
		}
	}

	c.where = "init"
	for _, e := range task.Init {
		c.effect(e, scope{})
	}
	for _, tl := range task.Timed {
		c.where = fmt.Sprintf("timed literal at %g", tl.Time)
		if tl.Time < 0 {
			c.errorf("negative time")
		}
		c.effect(tl.Effect, scope{})
	}
	c.where = "goal"
	c.goal(task.Goal, scope{})
	c.where = "constraints"
	c.constraint(task.Constraints, scope{})
	if task.Metric != nil {
		c.where = "metric"
		c.expr(task.Metric.Expr, scope{})
	}

	if len(c.errs) > 0 {
		return fmt.Errorf("validation errors:\n  %s", strings.Join(c.errs, "\n  "))
	}
	return nil
}

func (c *checker) checkParams(params []ast.Param) {
	for _, p := range params {
		if !c.types[p.Type] {
			c.errorf("unknown type %q for %s", p.Type, p.Var.Name)
		}
	}
}

func (c *checker) args(kind, name string, args []term.Arg, sc scope) {
	for _, a := range args {
		switch a := a.(type) {
		case term.Var:
			if !sc.vars[a.Name] {
				c.errorf("undeclared variable %s in %s %s", a.Name, kind, name)
			}
		case term.Const:
			if !c.objects[string(a)] {
				c.errorf("unknown object %q in %s %s", a, kind, name)
			}
		}
	}
}

func (c *checker) atom(a *ast.Atom, sc scope) {
	n, ok := c.preds[a.Name]
	switch {
	case !ok:
		c.errorf("undeclared predicate %q", a.Name)
	case n != len(a.Args):
		c.errorf("predicate %s expects %d arguments, got %d", a.Name, n, len(a.Args))
	}
	c.args("predicate", a.Name, a.Args, sc)
}

func (c *checker) funcTerm(t *ast.FuncTerm, sc scope) {
	n, ok := c.funcs[t.Name]
	switch {
	case !ok:
		c.errorf("undeclared function %q", t.Name)
	case n != len(t.Args):
		c.errorf("function %s expects %d arguments, got %d", t.Name, n, len(t.Args))
	}
	c.args("function", t.Name, t.Args, sc)
}

func (c *checker) goal(g ast.Goal, sc scope) {
	switch g := g.(type) {
	case nil, *ast.True:
	case *ast.Atom:
		c.atom(g, sc)
	case *ast.Not:
		c.goal(g.G, sc)
	case *ast.And:
		for _, sub := range g.Goals {
			c.goal(sub, sc)
		}
	case *ast.Or:
		for _, sub := range g.Goals {
			c.goal(sub, sc)
		}
	case *ast.Imply:
		c.goal(g.If, sc)
		c.goal(g.Then, sc)
	case *ast.Comparison:
		c.expr(g.L, sc)
		c.expr(g.R, sc)
	case *ast.Forall:
		c.checkParams(g.Params)
		c.goal(g.Body, sc.with(g.Params))
	case *ast.Exists:
		c.checkParams(g.Params)
		c.goal(g.Body, sc.with(g.Params))
	case *ast.Preference:
		c.goal(g.Body, sc)
	default:
		c.errorf("unsupported condition %s", ast.Format(g))
	}
}

func (c *checker) expr(e ast.Expr, sc scope) {
	switch e := e.(type) {
	case *ast.Num, *ast.TotalTime:
	case *ast.Binary:
		c.expr(e.L, sc)
		c.expr(e.R, sc)
	case *ast.Neg:
		c.expr(e.X, sc)
	case *ast.FuncTerm:
		c.funcTerm(e, sc)
	case *ast.DurationVar:
		if !sc.durative {
			c.errorf("?duration outside a durative action")
		}
	case *ast.HashT:
		if !sc.continuous {
			c.errorf("#t outside a continuous effect")
		}
	case *ast.ViolationCount:
		if !c.prefs[e.Name] {
			c.errorf("is-violated names unknown preference %q", e.Name)
		}
	default:
		c.errorf("unsupported expression %s", ast.Format(e))
	}
}

func (c *checker) effect(e ast.Effect, sc scope) {
	switch e := e.(type) {
	case nil:
	case *ast.AddEffect:
		c.atom(e.Atom, sc)
	case *ast.DelEffect:
		c.atom(e.Atom, sc)
	case *ast.Update:
		c.funcTerm(e.Term, sc)
		c.expr(e.Value, sc)
	case *ast.AndEffect:
		for _, sub := range e.Effects {
			c.effect(sub, sc)
		}
	case *ast.ForallEffect:
		c.checkParams(e.Params)
		c.effect(e.Body, sc.with(e.Params))
	case *ast.When:
		c.goal(e.Cond, sc)
		c.effect(e.Body, sc)
	default:
		c.errorf("unsupported effect %s", ast.Format(e))
	}
}

func (c *checker) constraint(k ast.Constraint, sc scope) {
	switch k := k.(type) {
	case nil:
	case *ast.AndConstraint:
		for _, sub := range k.Constraints {
			c.constraint(sub, sc)
		}
	case *ast.ForallConstraint:
		c.checkParams(k.Params)
		c.constraint(k.Body, sc.with(k.Params))
	case *ast.PrefConstraint:
		c.constraint(k.C, sc)
	case *ast.Always:
		c.goal(k.G, sc)
	case *ast.Sometime:
		c.goal(k.G, sc)
	case *ast.AtMostOnce:
		c.goal(k.G, sc)
	case *ast.Never:
		c.goal(k.G, sc)
	case *ast.AtEnd:
		c.goal(k.G, sc)
	case *ast.Within:
		c.goal(k.G, sc)
	case *ast.HoldAfter:
		c.goal(k.G, sc)
	case *ast.HoldDuring:
		if k.To < k.From {
			c.errorf("hold-during window ends before it starts")
		}
		c.goal(k.G, sc)
	case *ast.SometimeAfter:
		c.goal(k.Trigger, sc)
		c.goal(k.Req, sc)
	case *ast.SometimeBefore:
		c.goal(k.Trigger, sc)
		c.goal(k.Req, sc)
	case *ast.AlwaysWithin:
		c.goal(k.Trigger, sc)
		c.goal(k.Req, sc)
	case *ast.Order:
		for _, g := range k.Nodes {
			c.goal(g, sc)
		}
	default:
		c.errorf("unsupported constraint %s", ast.Format(k))
	}
}

// collectPrefs records the names of goal and constraint preferences.
func collectPrefs(g ast.Goal, k ast.Constraint, into map[string]bool) {
	switch g := g.(type) {
	case *ast.Preference:
		into[g.Name] = true
		collectPrefs(g.Body, nil, into)
	case *ast.And:
		for _, sub := range g.Goals {
			collectPrefs(sub, nil, into)
		}
	case *ast.Forall:
		collectPrefs(g.Body, nil, into)
	}
	switch k := k.(type) {
	case *ast.PrefConstraint:
		into[k.Name] = true
	case *ast.AndConstraint:
		for _, sub := range k.Constraints {
			collectPrefs(nil, sub, into)
		}
	case *ast.ForallConstraint:
		collectPrefs(nil, k.Body, into)
	}
}
