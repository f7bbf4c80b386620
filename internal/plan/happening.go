package plan

import (
	"fmt"

	"github.com/vinayprograms/planval/internal/ast"
	"github.com/vinayprograms/planval/internal/state"
	"github.com/vinayprograms/planval/internal/term"
)

// Happening is the set of events sharing one time stamp.
type Happening struct {
	time   float64
	events []*Event
}

// Time is the happening's time stamp.
func (h *Happening) Time() float64 { return h.time }

// Events returns the events in plan order.
func (h *Happening) Events() []*Event { return h.events }

// Actions returns the events as state actions.
func (h *Happening) Actions() []state.Action {
	out := make([]state.Action, len(h.events))
	for i, e := range h.events {
		out[i] = e
	}
	return out
}

// CanHappen reports whether every event's condition holds in s.
func (h *Happening) CanHappen(s *state.State) (bool, error) {
	failing, err := h.Failing(s)
	return len(failing) == 0, err
}

// Failing returns the events whose conditions do not hold in s.
func (h *Happening) Failing(s *state.State) ([]*Event, error) {
	var out []*Event
	for _, e := range h.events {
		ok, err := s.Holds(e.Precondition(), e.frame)
		if err != nil {
			return nil, err
		}
		if !ok {
			out = append(out, e)
		}
	}
	return out, nil
}

type update struct {
	id    term.FuncID
	op    ast.UpdateOp
	value float64
}

type delta struct {
	adds    []term.PropID
	dels    []term.PropID
	updates []update
}

// ApplyTo applies the net effect of the happening. All effects, including
// conditional effect conditions and update values, are evaluated against the
// state before the happening. Deletes are applied before adds, so a literal
// both added and deleted ends up true.
func (h *Happening) ApplyTo(s *state.State) (bool, error) {
	var d delta
	for _, e := range h.events {
		if err := collect(s, e.Effect(), e.frame, &d); err != nil {
			return false, err
		}
	}
	for _, p := range d.dels {
		s.Delete(p)
	}
	for _, p := range d.adds {
		s.Add(p)
	}
	for _, u := range d.updates {
		if err := s.Update(u.id, u.op, u.value); err != nil {
			return false, err
		}
	}
	return true, nil
}

func collect(s *state.State, eff ast.Effect, f *term.Frame, d *delta) error {
	switch eff := eff.(type) {
	case nil:
		return nil
	case *ast.AddEffect:
		p, err := s.GroundProp(eff.Atom, f)
		if err != nil {
			return err
		}
		d.adds = append(d.adds, p)
	case *ast.DelEffect:
		p, err := s.GroundProp(eff.Atom, f)
		if err != nil {
			return err
		}
		d.dels = append(d.dels, p)
	case *ast.Update:
		id, err := s.GroundFunc(eff.Term, f)
		if err != nil {
			return err
		}
		v, err := s.Eval(eff.Value, f)
		if err != nil {
			return err
		}
		d.updates = append(d.updates, update{id: id, op: eff.Op, value: v})
	case *ast.AndEffect:
		for _, sub := range eff.Effects {
			if err := collect(s, sub, f, d); err != nil {
				return err
			}
		}
	case *ast.ForallEffect:
		return state.ForEachBinding(s.Context().Universe, eff.Params, f, func(b *term.Frame) (bool, error) {
			return true, collect(s, eff.Body, b, d)
		})
	case *ast.When:
		ok, err := s.Holds(eff.Cond, f)
		if err != nil || !ok {
			return err
		}
		return collect(s, eff.Body, f, d)
	default:
		return fmt.Errorf("%w: %T", state.ErrUnrecognisedExpression, eff)
	}
	return nil
}
