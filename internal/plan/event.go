// Package plan turns a parsed plan into the happenings a validation run
// steps through.
package plan

import (
	"fmt"
	"strings"

	"github.com/vinayprograms/planval/internal/ast"
	"github.com/vinayprograms/planval/internal/state"
	"github.com/vinayprograms/planval/internal/term"
)

// Instance is a grounded action occurrence.
type Instance struct {
	Schema   *ast.Action
	Args     []term.Const
	Start    float64
	Duration float64
	Step     int // index in the plan, -1 for timed literals
	frame    *term.Frame
}

func (i *Instance) String() string {
	var b strings.Builder
	b.WriteByte('(')
	b.WriteString(i.Schema.Name)
	for _, a := range i.Args {
		b.WriteByte(' ')
		b.WriteString(string(a))
	}
	b.WriteByte(')')
	return b.String()
}

// Frame returns the instance's bindings, including ?duration.
func (i *Instance) Frame() *term.Frame { return i.frame }

// End is the time of the instance's end event.
func (i *Instance) End() float64 { return i.Start + i.Duration }

// AdvanceContinuous applies dt time units of the instance's continuous
// effects. The rate expressions see #t as dt.
func (i *Instance) AdvanceContinuous(s *state.State, dt float64) error {
	for _, u := range i.Schema.Continuous {
		id, err := s.GroundFunc(u.Term, i.frame)
		if err != nil {
			return err
		}
		delta, err := s.EvalContinuous(u.Value, i.frame, dt)
		if err != nil {
			return err
		}
		cur, err := s.Value(id)
		if err != nil {
			return err
		}
		switch u.Op {
		case ast.Increase:
			cur += delta
		case ast.Decrease:
			cur -= delta
		default:
			return fmt.Errorf("%w: continuous %s", state.ErrUnsupportedExpression, u.Op)
		}
		if err := s.Update(id, ast.ContinuousAssign, cur); err != nil {
			return err
		}
	}
	return nil
}

// EventKind says which part of an occurrence an event is.
type EventKind int

const (
	Instant EventKind = iota
	Start
	End
	Timed
)

// Event is one occurrence inside a happening. It is the unit that claims
// ownership and that error records blame.
type Event struct {
	Kind  EventKind
	Inst  *Instance         // nil for timed literals
	Lit   *ast.TimedLiteral // set for timed literals
	time  float64
	frame *term.Frame
}

func (e *Event) String() string {
	switch e.Kind {
	case Start:
		return e.Inst.String() + " start"
	case End:
		return e.Inst.String() + " end"
	case Timed:
		return fmt.Sprintf("timed literal %s at %g", ast.Format(e.Lit.Effect), e.Lit.Time)
	}
	return e.Inst.String()
}

// Time is the event's scheduled time.
func (e *Event) Time() float64 { return e.time }

// Frame returns the bindings the event's conditions and effects use.
func (e *Event) Frame() *term.Frame { return e.frame }

// Precondition is the condition that must hold before the event.
func (e *Event) Precondition() ast.Goal {
	switch e.Kind {
	case Instant:
		return e.Inst.Schema.Pre
	case Start:
		return e.Inst.Schema.AtStart
	case End:
		return e.Inst.Schema.AtEnd
	}
	return nil
}

// Invariant is the over-all condition a start event commits to.
func (e *Event) Invariant() ast.Goal {
	if e.Kind == Start {
		return e.Inst.Schema.OverAll
	}
	return nil
}

// Effect is the event's discrete effect.
func (e *Event) Effect() ast.Effect {
	switch e.Kind {
	case Instant:
		return e.Inst.Schema.Effect
	case Start:
		return e.Inst.Schema.StartEffect
	case End:
		return e.Inst.Schema.EndEffect
	}
	return e.Lit.Effect
}

// DurationError checks a start event's duration constraints. It returns how
// far the given duration is from the nearest legal value, and false if a
// constraint fails.
func (e *Event) DurationError(s *state.State) (float64, bool, error) {
	if e.Kind != Start {
		return 0, true, nil
	}
	tol := s.Context().Options.Tolerance
	given := e.Inst.Duration
	worst := 0.0
	ok := true
	for _, dc := range e.Inst.Schema.Duration {
		want, err := s.Eval(dc.Value, e.frame)
		if err != nil {
			return 0, false, err
		}
		if state.Compare(dc.Op, given, want, tol) {
			continue
		}
		ok = false
		diff := given - want
		if diff < 0 {
			diff = -diff
		}
		if diff > worst {
			worst = diff
		}
	}
	return worst, ok, nil
}
