package ownership

import (
	"fmt"

	"github.com/vinayprograms/planval/internal/ast"
	"github.com/vinayprograms/planval/internal/state"
	"github.com/vinayprograms/planval/internal/term"
)

// Event is an action occurrence whose claims the tracker can visit.
type Event interface {
	state.Action
	Frame() *term.Frame
	Precondition() ast.Goal // read as true or false
	Invariant() ast.Goal    // read under invariant, nil if none
	Effect() ast.Effect
}

// ClaimEvent visits the event's conditions and effects and claims every
// proposition and term they touch. It stops at the first conflict.
func (t *Tracker) ClaimEvent(e Event) (bool, error) {
	f := e.Frame()
	if ok, err := t.claimGoal(e, e.Precondition(), f, true, false); err != nil || !ok {
		return false, err
	}
	if inv := e.Invariant(); inv != nil {
		if ok, err := t.claimGoal(e, inv, f, true, true); err != nil || !ok {
			return false, err
		}
	}
	return t.claimEffect(e, e.Effect(), f)
}

func (t *Tracker) claimGoal(a state.Action, g ast.Goal, f *term.Frame, positive, invariant bool) (bool, error) {
	switch g := g.(type) {
	case nil, *ast.True:
		return true, nil
	case *ast.Atom:
		p, err := t.state.GroundProp(g, f)
		if err != nil {
			return false, err
		}
		role := Pre
		switch {
		case invariant:
			role = PPre
		case !positive:
			role = NPre
		}
		return t.ClaimRead(a, p, role), nil
	case *ast.Not:
		return t.claimGoal(a, g.G, f, !positive, invariant)
	case *ast.And:
		return t.claimGoals(a, g.Goals, f, positive, invariant)
	case *ast.Or:
		return t.claimGoals(a, g.Goals, f, positive, invariant)
	case *ast.Imply:
		if ok, err := t.claimGoal(a, g.If, f, !positive, invariant); err != nil || !ok {
			return false, err
		}
		return t.claimGoal(a, g.Then, f, positive, invariant)
	case *ast.Comparison:
		if ok, err := t.ClaimExprReads(a, g.L, f); err != nil || !ok {
			return false, err
		}
		return t.ClaimExprReads(a, g.R, f)
	case *ast.Forall:
		return t.claimQuantified(a, g.Params, g.Body, f, positive, invariant)
	case *ast.Exists:
		return t.claimQuantified(a, g.Params, g.Body, f, positive, invariant)
	case *ast.Preference:
		return t.claimGoal(a, g.Body, f, positive, invariant)
	}
	return false, fmt.Errorf("%w: %T", state.ErrUnrecognisedExpression, g)
}

func (t *Tracker) claimGoals(a state.Action, gs []ast.Goal, f *term.Frame, positive, invariant bool) (bool, error) {
	for _, g := range gs {
		if ok, err := t.claimGoal(a, g, f, positive, invariant); err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (t *Tracker) claimQuantified(a state.Action, params []ast.Param, body ast.Goal, f *term.Frame, positive, invariant bool) (bool, error) {
	all := true
	err := state.ForEachBinding(t.state.Context().Universe, params, f, func(b *term.Frame) (bool, error) {
		ok, err := t.claimGoal(a, body, b, positive, invariant)
		all = ok
		return ok, err
	})
	return all && err == nil, err
}

func (t *Tracker) claimEffect(a state.Action, e ast.Effect, f *term.Frame) (bool, error) {
	switch e := e.(type) {
	case nil:
		return true, nil
	case *ast.AddEffect:
		p, err := t.state.GroundProp(e.Atom, f)
		if err != nil {
			return false, err
		}
		return t.ClaimAdd(a, p), nil
	case *ast.DelEffect:
		p, err := t.state.GroundProp(e.Atom, f)
		if err != nil {
			return false, err
		}
		return t.ClaimDelete(a, p), nil
	case *ast.Update:
		id, err := t.state.GroundFunc(e.Term, f)
		if err != nil {
			return false, err
		}
		return t.ClaimUpdate(a, id, e.Op, e.Value, f)
	case *ast.AndEffect:
		for _, sub := range e.Effects {
			if ok, err := t.claimEffect(a, sub, f); err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case *ast.ForallEffect:
		all := true
		err := state.ForEachBinding(t.state.Context().Universe, e.Params, f, func(b *term.Frame) (bool, error) {
			ok, err := t.claimEffect(a, e.Body, b)
			all = ok
			return ok, err
		})
		return all && err == nil, err
	case *ast.When:
		if ok, err := t.claimGoal(a, e.Cond, f, true, false); err != nil || !ok {
			return false, err
		}
		active, err := t.state.Holds(e.Cond, f)
		if err != nil || !active {
			return err == nil, err
		}
		return t.claimEffect(a, e.Body, f)
	}
	return false, fmt.Errorf("%w: %T", state.ErrUnrecognisedExpression, e)
}
