package state

import (
	"errors"
	"testing"

	"github.com/vinayprograms/planval/internal/ast"
	"github.com/vinayprograms/planval/internal/term"
)

type fakeHappening struct {
	time    float64
	can     bool
	applied bool
	apply   func(s *State)
}

func (h *fakeHappening) Time() float64 { return h.time }

func (h *fakeHappening) CanHappen(*State) (bool, error) { return h.can, nil }

func (h *fakeHappening) ApplyTo(s *State) (bool, error) {
	h.applied = true
	if h.apply != nil {
		h.apply(s)
	}
	return true, nil
}

func (h *fakeHappening) Actions() []Action { return nil }

type countingObserver struct {
	calls int
	last  float64
}

func (o *countingObserver) NotifyChanged(s *State, _ Happening) {
	o.calls++
	o.last = s.Time()
}

func newTestState() (*State, *term.Table) {
	ctx := NewContext(nil, DefaultOptions())
	return New(ctx), ctx.Terms
}

func TestState_ClosedWorld(t *testing.T) {
	s, tab := newTestState()
	p := tab.Prop("at", []term.Const{"truck1", "loc2"})
	q := tab.Prop("at", []term.Const{"truck1", "loc1"})

	if s.Prop(p) {
		t.Fatal("never-added proposition should be false")
	}
	s.Add(q)
	s.Delete(q)
	fuel := tab.Func("fuel", []term.Const{"truck1"})
	_ = s.Update(fuel, ast.Assign, 3)
	if s.Prop(p) {
		t.Error("unrelated updates made proposition true")
	}
}

func TestState_AddIsIdempotent(t *testing.T) {
	s, tab := newTestState()
	p := tab.Prop("clear", []term.Const{"a"})

	s.Add(p)
	once := s.Clone()
	s.Add(p)

	if !s.Prop(p) || !once.Prop(p) {
		t.Fatal("expected p true")
	}
	if len(s.TrueProps()) != len(once.TrueProps()) {
		t.Errorf("second add changed the state: %v vs %v", s.TrueProps(), once.TrueProps())
	}
	if got := s.ChangedProps(); len(got) != 1 || got[0] != p {
		t.Errorf("expected one recorded flip, got %v", got)
	}
}

func TestState_DeleteOfFalseRecordsNothing(t *testing.T) {
	s, tab := newTestState()
	p := tab.Prop("clear", []term.Const{"a"})
	s.Delete(p)
	if len(s.ChangedProps()) != 0 {
		t.Errorf("deleting a false proposition recorded a change")
	}
}

func TestState_UndefinedRead(t *testing.T) {
	s, tab := newTestState()
	fuel := tab.Func("fuel", []term.Const{"truck1"})

	_, err := s.Value(fuel)
	if !errors.Is(err, ErrUndefinedTerm) {
		t.Fatalf("expected ErrUndefinedTerm, got %v", err)
	}
	if !IsFatal(err) {
		t.Error("undefined access should be plan-fatal")
	}

	if err := s.Update(fuel, ast.Assign, 12.5); err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	v, err := s.Value(fuel)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 12.5 {
		t.Errorf("expected exactly 12.5, got %v", v)
	}
}

func TestState_IncreaseOfUndefinedFails(t *testing.T) {
	s, tab := newTestState()
	fuel := tab.Func("fuel", []term.Const{"truck1"})
	if err := s.Update(fuel, ast.Increase, 1); !errors.Is(err, ErrUndefinedTerm) {
		t.Errorf("expected ErrUndefinedTerm, got %v", err)
	}
}

func TestState_UpdateOperators(t *testing.T) {
	s, tab := newTestState()
	x := tab.Func("x", nil)
	steps := []struct {
		op   ast.UpdateOp
		v    float64
		want float64
	}{
		{ast.Assign, 10, 10},
		{ast.Increase, 5, 15},
		{ast.Decrease, 3, 12},
		{ast.ScaleUp, 2, 24},
		{ast.ScaleDown, 4, 6},
		{ast.ContinuousAssign, 7, 7},
	}
	for _, st := range steps {
		if err := s.Update(x, st.op, st.v); err != nil {
			t.Fatalf("%s failed: %v", st.op, err)
		}
		if got, _ := s.Value(x); got != st.want {
			t.Errorf("after %s %v: expected %v, got %v", st.op, st.v, st.want, got)
		}
	}
}

func TestState_ChangeTrackingKeepsStepOriginal(t *testing.T) {
	s, tab := newTestState()
	x := tab.Func("x", nil)
	_ = s.Update(x, ast.Assign, 1)

	h := &fakeHappening{time: 1, can: true, apply: func(s *State) {
		_ = s.Update(x, ast.Increase, 2)
		_ = s.Update(x, ast.Increase, 3)
	}}
	ok, err := s.Progress(h)
	if err != nil || !ok {
		t.Fatalf("progress failed: %v %v", ok, err)
	}
	ch, found := s.ChangedFuncs()[x]
	if !found {
		t.Fatal("expected x in changed terms")
	}
	if ch.Old != 1 || !ch.Defined {
		t.Errorf("expected pre-step value 1, got %+v", ch)
	}
}

func TestState_ContinuousAssignIsNotADiscontinuity(t *testing.T) {
	s, tab := newTestState()
	x := tab.Func("x", nil)
	_ = s.Update(x, ast.Assign, 1)
	s.resetChanged()
	_ = s.Update(x, ast.ContinuousAssign, 4)
	if len(s.ChangedFuncs()) != 0 {
		t.Error("continuous assign recorded a change")
	}
}

func TestState_ProgressNotifiesObservers(t *testing.T) {
	s, _ := newTestState()
	obs := &countingObserver{}
	s.AddObserver(obs)

	ok, err := s.Progress(&fakeHappening{time: 3, can: true})
	if err != nil || !ok {
		t.Fatalf("progress failed: %v %v", ok, err)
	}
	if obs.calls != 1 || obs.last != 3 {
		t.Errorf("expected one notification at time 3, got %d at %v", obs.calls, obs.last)
	}
	if s.Time() != 3 {
		t.Errorf("expected time 3, got %v", s.Time())
	}
}

func TestState_ProgressBlockedByPreconditions(t *testing.T) {
	s, _ := newTestState()
	obs := &countingObserver{}
	s.AddObserver(obs)
	h := &fakeHappening{time: 2, can: false}

	ok, err := s.Progress(h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok || h.applied {
		t.Error("happening should not apply when preconditions fail")
	}
	if s.Time() != 0 || obs.calls != 0 {
		t.Error("blocked progression should leave time and observers untouched")
	}
}

func TestState_ContinueAnyway(t *testing.T) {
	opts := DefaultOptions()
	opts.ContinueAnyway = true
	s := New(NewContext(nil, opts))
	h := &fakeHappening{time: 2, can: false}

	ok, err := s.Progress(h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("progress should still report failure")
	}
	if !h.applied || s.Time() != 2 {
		t.Error("effects should apply under continue-anyway")
	}
}

func TestState_CloneIsSnapshot(t *testing.T) {
	s, tab := newTestState()
	p := tab.Prop("p", nil)
	snap := s.Clone()
	s.Add(p)
	if snap.Prop(p) {
		t.Error("snapshot changed with the original")
	}
}
