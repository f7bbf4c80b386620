package errlog

import (
	"strings"
	"testing"

	"github.com/vinayprograms/planval/internal/state"
)

type namedAction string

func (a namedAction) String() string { return string(a) }

func TestLog_RecordsSnapshots(t *testing.T) {
	ctx := state.NewContext(nil, state.DefaultOptions())
	s := state.New(ctx)
	p := ctx.Terms.Prop("p", nil)

	log := New(true)
	log.AddPrecondition(1, namedAction("(a)"), s)
	s.Add(p)

	conds := log.Conditions()
	if len(conds) != 1 {
		t.Fatalf("expected 1 condition, got %d", len(conds))
	}
	if conds[0].Snapshot().Prop(p) {
		t.Error("snapshot should not see later changes")
	}
	if conds[0].Kind() != KindPrecondition {
		t.Errorf("unexpected kind %s", conds[0].Kind())
	}
}

func TestLog_MutexNamesBothActions(t *testing.T) {
	s := state.New(state.NewContext(nil, state.DefaultOptions()))
	log := New(true)
	log.AddMutexViolation(2, namedAction("(a)"), namedAction("(b)"), s)
	log.AddMutexViolation(2, namedAction("(c)"), nil, s)

	conds := log.Conditions()
	first := conds[0].String()
	if !strings.Contains(first, "(a)") || !strings.Contains(first, "(b)") {
		t.Errorf("expected both actions in %q", first)
	}
	if mv := conds[1].(*MutexViolation); mv.Other != nil {
		t.Error("shared claim should have no second action")
	}
}

func TestLog_Disabled(t *testing.T) {
	s := state.New(state.NewContext(nil, state.DefaultOptions()))
	log := New(false)
	log.AddGoal("(p)", s)
	if len(log.Conditions()) != 0 {
		t.Error("disabled log recorded a condition")
	}
	if log.Count() != 1 {
		t.Errorf("expected count 1, got %d", log.Count())
	}
}

func TestLog_InvariantCopiesIntervals(t *testing.T) {
	s := state.New(state.NewContext(nil, state.DefaultOptions()))
	ints := []Interval{{From: 0, To: 3}}
	log := New(true)
	log.AddInvariant(0, 5, ints, namedAction("(a)"), s, true)
	ints[0].To = 99

	inv := log.Conditions()[0].(*UnsatInvariant)
	if inv.Satisfied[0].To != 3 {
		t.Error("intervals aliased the caller's slice")
	}
	if !inv.RootCause {
		t.Error("expected root cause")
	}
}

func TestPreferences(t *testing.T) {
	p := NewPreferences()
	p.Violate("p2")
	p.Violate("p1")
	p.Violate("p2")

	if p.Violations("p2") != 2 || p.Violations("p3") != 0 {
		t.Errorf("unexpected counts: %d %d", p.Violations("p2"), p.Violations("p3"))
	}
	if got := p.Names(); len(got) != 2 || got[0] != "p1" {
		t.Errorf("unexpected names %v", got)
	}
	if p.Total() != 3 {
		t.Errorf("expected total 3, got %d", p.Total())
	}
	var _ state.ViolationCounter = p
}
