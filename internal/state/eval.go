package state

import (
	"fmt"
	"math"

	"github.com/vinayprograms/planval/internal/ast"
	"github.com/vinayprograms/planval/internal/term"
)

// Eval evaluates a numeric expression. #t is rejected outside continuous
// effects.
func (s *State) Eval(e ast.Expr, f *term.Frame) (float64, error) {
	return s.eval(e, f, nil)
}

// EvalContinuous evaluates a continuous effect's rate expression, with #t
// bound to dt.
func (s *State) EvalContinuous(e ast.Expr, f *term.Frame, dt float64) (float64, error) {
	return s.eval(e, f, &dt)
}

func (s *State) eval(e ast.Expr, f *term.Frame, dt *float64) (float64, error) {
	switch e := e.(type) {
	case *ast.Num:
		return e.Value, nil
	case *ast.Binary:
		l, err := s.eval(e.L, f, dt)
		if err != nil {
			return 0, err
		}
		r, err := s.eval(e.R, f, dt)
		if err != nil {
			return 0, err
		}
		switch e.Op {
		case ast.OpAdd:
			return l + r, nil
		case ast.OpSub:
			return l - r, nil
		case ast.OpMul:
			return l * r, nil
		case ast.OpDiv:
			return l / r, nil
		}
		return 0, fmt.Errorf("%w: operator %d", ErrUnrecognisedExpression, e.Op)
	case *ast.Neg:
		v, err := s.eval(e.X, f, dt)
		return -v, err
	case *ast.FuncTerm:
		id, err := s.GroundFunc(e, f)
		if err != nil {
			return 0, err
		}
		return s.Value(id)
	case *ast.TotalTime:
		if s.ctx.Options.Durative {
			return s.time, nil
		}
		return float64(s.ctx.Options.PlanLength), nil
	case *ast.DurationVar:
		if f == nil || !f.HasDuration {
			return 0, fmt.Errorf("%w: ?duration outside a durative action", ErrUnsupportedExpression)
		}
		return f.Duration, nil
	case *ast.HashT:
		if dt == nil {
			return 0, fmt.Errorf("%w: #t outside a continuous effect", ErrUnsupportedExpression)
		}
		return *dt, nil
	case *ast.ViolationCount:
		if s.ctx.Prefs == nil {
			return 0, nil
		}
		return float64(s.ctx.Prefs.Violations(e.Name)), nil
	}
	return 0, unrecognised(e)
}

// GroundProp interns the proposition an atom denotes under f.
func (s *State) GroundProp(a *ast.Atom, f *term.Frame) (term.PropID, error) {
	args, err := f.Ground(a.Args)
	if err != nil {
		return 0, err
	}
	return s.ctx.Terms.Prop(a.Name, args), nil
}

// GroundFunc interns the numeric term a function term denotes under f.
func (s *State) GroundFunc(t *ast.FuncTerm, f *term.Frame) (term.FuncID, error) {
	args, err := f.Ground(t.Args)
	if err != nil {
		return 0, err
	}
	return s.ctx.Terms.Func(t.Name, args), nil
}

// Compare applies a comparison with tolerance on the non-strict operators.
func Compare(op ast.CmpOp, l, r, tol float64) bool {
	switch op {
	case ast.CmpLT:
		return l < r
	case ast.CmpLE:
		return l <= r+tol
	case ast.CmpEQ:
		return math.Abs(l-r) <= tol
	case ast.CmpGE:
		return l >= r-tol
	case ast.CmpGT:
		return l > r
	}
	return false
}

// Holds evaluates a goal. Preferences always hold here; their violations are
// counted by whoever checks them.
func (s *State) Holds(g ast.Goal, f *term.Frame) (bool, error) {
	switch g := g.(type) {
	case nil, *ast.True:
		return true, nil
	case *ast.Atom:
		args, err := f.Ground(g.Args)
		if err != nil {
			return false, err
		}
		id, ok := s.ctx.Terms.LookupProp(g.Name, args)
		return ok && s.props[id], nil
	case *ast.Not:
		v, err := s.Holds(g.G, f)
		return !v, err
	case *ast.And:
		for _, sub := range g.Goals {
			v, err := s.Holds(sub, f)
			if err != nil || !v {
				return false, err
			}
		}
		return true, nil
	case *ast.Or:
		for _, sub := range g.Goals {
			v, err := s.Holds(sub, f)
			if err != nil {
				return false, err
			}
			if v {
				return true, nil
			}
		}
		return false, nil
	case *ast.Imply:
		v, err := s.Holds(g.If, f)
		if err != nil || !v {
			return true, err
		}
		return s.Holds(g.Then, f)
	case *ast.Comparison:
		l, err := s.Eval(g.L, f)
		if err != nil {
			return false, err
		}
		r, err := s.Eval(g.R, f)
		if err != nil {
			return false, err
		}
		return Compare(g.Op, l, r, s.ctx.Options.Tolerance), nil
	case *ast.Forall:
		all := true
		err := ForEachBinding(s.ctx.Universe, g.Params, f, func(b *term.Frame) (bool, error) {
			v, err := s.Holds(g.Body, b)
			if err != nil {
				return false, err
			}
			all = v
			return v, nil
		})
		return all, err
	case *ast.Exists:
		found := false
		err := ForEachBinding(s.ctx.Universe, g.Params, f, func(b *term.Frame) (bool, error) {
			v, err := s.Holds(g.Body, b)
			if err != nil {
				return false, err
			}
			found = v
			return !v, nil
		})
		return found, err
	case *ast.Preference:
		return true, nil
	}
	return false, unrecognised(g)
}

// ForEachBinding calls fn with a copy of f extended by every combination of
// objects for params, in universe order. Iteration stops when fn returns
// false or an error.
func ForEachBinding(u *term.Universe, params []ast.Param, f *term.Frame, fn func(*term.Frame) (bool, error)) error {
	if f == nil {
		f = term.NewFrame(0)
	}
	need := 0
	for _, p := range params {
		if p.Var.ID+1 > need {
			need = p.Var.ID + 1
		}
	}
	base := f.Clone()
	if need > base.Len() {
		base.Extend(need - base.Len())
	}
	_, err := bindFrom(u, params, base, fn)
	return err
}

func bindFrom(u *term.Universe, params []ast.Param, f *term.Frame, fn func(*term.Frame) (bool, error)) (bool, error) {
	if len(params) == 0 {
		return fn(f.Clone())
	}
	p := params[0]
	for _, c := range u.Of(p.Type) {
		if err := f.Bind(p.Var.ID, c); err != nil {
			return false, err
		}
		more, err := bindFrom(u, params[1:], f, fn)
		if err != nil || !more {
			return false, err
		}
	}
	return true, nil
}
