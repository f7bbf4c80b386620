package trajectory

import (
	"testing"

	"github.com/vinayprograms/planval/internal/ast"
	"github.com/vinayprograms/planval/internal/errlog"
	"github.com/vinayprograms/planval/internal/state"
	"github.com/vinayprograms/planval/internal/term"
)

// trace is a scripted sequence of states over propositions named by string.
type trace struct {
	ctx *state.Context
	s   *state.State
}

func newTrace() *trace {
	ctx := state.NewContext(nil, state.DefaultOptions())
	return &trace{ctx: ctx, s: state.New(ctx)}
}

// at sets the clock and the listed propositions true, all others false.
// The clock is advanced through Progress so the state stays consistent.
func (tr *trace) at(t float64, props ...string) *state.State {
	_, _ = tr.s.Progress(&step{time: t, props: props, ctx: tr.ctx})
	return tr.s
}

type step struct {
	time  float64
	props []string
	ctx   *state.Context
}

func (st *step) Time() float64                       { return st.time }
func (st *step) CanHappen(*state.State) (bool, error) { return true, nil }
func (st *step) Actions() []state.Action             { return nil }
func (st *step) ApplyTo(s *state.State) (bool, error) {
	for _, p := range s.TrueProps() {
		s.Delete(p)
	}
	for _, name := range st.props {
		s.Add(st.ctx.Terms.Prop(name, nil))
	}
	return true, nil
}

func atom(name string) ast.Goal { return &ast.Atom{Name: name} }

func mustMonitor(t *testing.T, c ast.Constraint, prefs *errlog.Preferences) *Monitor {
	t.Helper()
	m, err := New(c, nil, prefs)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return m
}

func check(t *testing.T, m *Monitor, s *state.State) bool {
	t.Helper()
	ok, err := m.CheckAtState(s)
	if err != nil {
		t.Fatalf("CheckAtState failed: %v", err)
	}
	return ok
}

func final(t *testing.T, m *Monitor, s *state.State) bool {
	t.Helper()
	ok, err := m.CheckFinalState(s)
	if err != nil {
		t.Fatalf("CheckFinalState failed: %v", err)
	}
	return ok
}

func TestMonitor_NoConstraints(t *testing.T) {
	m := mustMonitor(t, nil, nil)
	tr := newTrace()
	if !check(t, m, tr.at(0)) || !final(t, m, tr.s) {
		t.Error("empty monitor should accept every trace")
	}
}

func TestMonitor_AtMostOnce(t *testing.T) {
	m := mustMonitor(t, &ast.AtMostOnce{G: atom("p")}, nil)
	tr := newTrace()

	if !check(t, m, tr.at(1, "p")) {
		t.Fatal("first true observation is allowed")
	}
	if !check(t, m, tr.at(2)) {
		t.Fatal("becoming false is allowed")
	}
	if check(t, m, tr.at(3, "p")) {
		t.Fatal("second true observation should violate")
	}
	vs := m.Violations()
	if len(vs) != 1 || vs[0].Time != 3 {
		t.Errorf("expected one violation at time 3, got %v", vs)
	}
	if final(t, m, tr.s) {
		t.Error("final verdict should be false")
	}
}

func TestMonitor_AtMostOnceSingleEpisode(t *testing.T) {
	m := mustMonitor(t, &ast.AtMostOnce{G: atom("p")}, nil)
	tr := newTrace()
	check(t, m, tr.at(1, "p"))
	check(t, m, tr.at(2, "p"))
	check(t, m, tr.at(3))
	check(t, m, tr.at(4))
	if !final(t, m, tr.s) || len(m.Violations()) != 0 {
		t.Errorf("one true episode should be accepted, got %v", m.Violations())
	}
}

func TestMonitor_Within(t *testing.T) {
	m := mustMonitor(t, &ast.Within{Deadline: 10, G: atom("p")}, nil)
	tr := newTrace()
	check(t, m, tr.at(0))
	check(t, m, tr.at(7, "p"))
	check(t, m, tr.at(12))
	if !final(t, m, tr.s) {
		t.Errorf("p at 7 should satisfy within 10, got %v", m.Violations())
	}
}

func TestMonitor_WithinMissedAtFinal(t *testing.T) {
	m := mustMonitor(t, &ast.Within{Deadline: 10, G: atom("p")}, nil)
	tr := newTrace()
	check(t, m, tr.at(0))
	check(t, m, tr.at(5))
	tr.at(12)
	if len(m.Violations()) != 0 {
		t.Fatal("no violation expected before the final check")
	}
	if final(t, m, tr.s) {
		t.Fatal("within should fail when p never holds")
	}
	if vs := m.Violations(); len(vs) != 1 || vs[0].Kind != "within" {
		t.Errorf("expected a within violation, got %v", vs)
	}
}

func TestMonitor_WithinTooLate(t *testing.T) {
	m := mustMonitor(t, &ast.Within{Deadline: 10, G: atom("p")}, nil)
	tr := newTrace()
	if check(t, m, tr.at(11, "p")) {
		t.Error("p after the deadline should violate")
	}
}

func TestMonitor_AlwaysAndNever(t *testing.T) {
	c := &ast.AndConstraint{Constraints: []ast.Constraint{
		&ast.Always{G: atom("safe")},
		&ast.Never{G: atom("crashed")},
	}}
	m := mustMonitor(t, c, nil)
	tr := newTrace()
	if !check(t, m, tr.at(0, "safe")) {
		t.Fatal("unexpected violation")
	}
	if check(t, m, tr.at(1, "safe", "crashed")) {
		t.Fatal("never should fire")
	}
	if check(t, m, tr.at(2)) {
		t.Fatal("always should fire")
	}
	check(t, m, tr.at(3))
	if n := len(m.Violations()); n != 2 {
		t.Errorf("violations are terminal; expected 2, got %d", n)
	}
}

func TestMonitor_SometimeAndAtEnd(t *testing.T) {
	c := &ast.AndConstraint{Constraints: []ast.Constraint{
		&ast.Sometime{G: atom("visited")},
		&ast.AtEnd{G: atom("home")},
	}}
	m := mustMonitor(t, c, nil)
	tr := newTrace()
	check(t, m, tr.at(0))
	check(t, m, tr.at(1, "visited"))
	check(t, m, tr.at(2, "home"))
	if !final(t, m, tr.s) {
		t.Errorf("expected success, got %v", m.Violations())
	}

	m = mustMonitor(t, c, nil)
	tr = newTrace()
	check(t, m, tr.at(0))
	check(t, m, tr.at(1))
	if final(t, m, tr.s) {
		t.Error("expected failure")
	}
	if len(m.Violations()) != 2 {
		t.Errorf("expected 2 violations, got %v", m.Violations())
	}
}

func TestMonitor_SometimeAfter(t *testing.T) {
	c := &ast.SometimeAfter{Trigger: atom("opened"), Req: atom("closed")}

	m := mustMonitor(t, c, nil)
	tr := newTrace()
	check(t, m, tr.at(0, "closed"))
	check(t, m, tr.at(1, "opened"))
	check(t, m, tr.at(2, "closed"))
	if !final(t, m, tr.s) {
		t.Errorf("closed after opened should satisfy, got %v", m.Violations())
	}

	m = mustMonitor(t, c, nil)
	tr = newTrace()
	check(t, m, tr.at(0, "closed"))
	check(t, m, tr.at(1, "opened"))
	check(t, m, tr.at(2))
	if final(t, m, tr.s) {
		t.Error("closed only before opened should fail")
	}
}

func TestMonitor_SometimeBefore(t *testing.T) {
	c := &ast.SometimeBefore{Trigger: atom("delivered"), Req: atom("loaded")}

	m := mustMonitor(t, c, nil)
	tr := newTrace()
	check(t, m, tr.at(0, "loaded"))
	if !check(t, m, tr.at(1, "delivered")) {
		t.Errorf("loaded before delivered should pass, got %v", m.Violations())
	}

	m = mustMonitor(t, c, nil)
	tr = newTrace()
	if check(t, m, tr.at(0, "loaded", "delivered")) {
		t.Error("simultaneous observation is not strictly before")
	}
}

func TestMonitor_HoldAfterAndDuring(t *testing.T) {
	c := &ast.AndConstraint{Constraints: []ast.Constraint{
		&ast.HoldAfter{Deadline: 5, G: atom("locked")},
		&ast.HoldDuring{From: 2, To: 4, G: atom("lit")},
	}}
	m := mustMonitor(t, c, nil)
	tr := newTrace()
	check(t, m, tr.at(0))
	check(t, m, tr.at(2, "lit"))
	check(t, m, tr.at(4))
	check(t, m, tr.at(5, "locked"))
	check(t, m, tr.at(6, "locked"))
	if !final(t, m, tr.s) {
		t.Fatalf("expected success, got %v", m.Violations())
	}

	m = mustMonitor(t, c, nil)
	tr = newTrace()
	if check(t, m, tr.at(3)) {
		t.Error("hold-during should fire inside its window")
	}
	if check(t, m, tr.at(5)) {
		t.Error("hold-after should fire at its deadline")
	}
}

func TestMonitor_AlwaysWithin(t *testing.T) {
	c := &ast.AlwaysWithin{Deadline: 3, Trigger: atom("alarm"), Req: atom("ack")}

	m := mustMonitor(t, c, nil)
	tr := newTrace()
	check(t, m, tr.at(1, "alarm"))
	check(t, m, tr.at(3, "ack"))
	if !final(t, m, tr.s) {
		t.Errorf("ack within 3 of the alarm should pass, got %v", m.Violations())
	}

	m = mustMonitor(t, c, nil)
	tr = newTrace()
	check(t, m, tr.at(1, "alarm"))
	if check(t, m, tr.at(5, "ack")) {
		t.Error("ack 4 after the alarm should violate")
	}
}

func TestMonitor_Order(t *testing.T) {
	c := &ast.Order{Nodes: []ast.Goal{atom("a"), atom("b"), atom("c")}, Edges: [][2]int{{0, 1}, {1, 2}}}

	m := mustMonitor(t, c, nil)
	tr := newTrace()
	check(t, m, tr.at(0, "a"))
	check(t, m, tr.at(1, "b", "c"))
	if !final(t, m, tr.s) {
		t.Errorf("a then b,c should satisfy the order, got %v", m.Violations())
	}

	m = mustMonitor(t, c, nil)
	tr = newTrace()
	if check(t, m, tr.at(0, "b")) {
		t.Error("b before a should violate")
	}

	m = mustMonitor(t, c, nil)
	tr = newTrace()
	check(t, m, tr.at(0, "a"))
	if final(t, m, tr.s) {
		t.Error("undischarged nodes should fail at the end")
	}
}

func TestMonitor_OrderBadEdge(t *testing.T) {
	_, err := New(&ast.Order{Nodes: []ast.Goal{atom("a")}, Edges: [][2]int{{0, 3}}}, nil, nil)
	if err == nil {
		t.Error("expected error for an out-of-range edge")
	}
}

func TestMonitor_PreferenceIsCounted(t *testing.T) {
	prefs := errlog.NewPreferences()
	c := &ast.PrefConstraint{Name: "tidy", C: &ast.Always{G: atom("clean")}}
	m := mustMonitor(t, c, prefs)
	tr := newTrace()
	if !check(t, m, tr.at(0)) {
		t.Error("preference violations must not fail the trace")
	}
	if !final(t, m, tr.s) {
		t.Error("final verdict should hold")
	}
	if prefs.Violations("tidy") != 1 {
		t.Errorf("expected one tidy violation, got %d", prefs.Violations("tidy"))
	}
}

func TestMonitor_ForallExpands(t *testing.T) {
	ctx := state.NewContext(nil, state.DefaultOptions())
	ctx.Universe.Add("room", "r1")
	ctx.Universe.Add("room", "r2")
	v := term.NewSymbols().Var("?r")
	c := &ast.ForallConstraint{
		Params: []ast.Param{{Var: v, Type: "room"}},
		Body:   &ast.Sometime{G: &ast.Atom{Name: "visited", Args: []term.Arg{v}}},
	}
	m, err := New(c, ctx.Universe, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s := state.New(ctx)
	s.Add(ctx.Terms.Prop("visited", []term.Const{"r1"}))
	check(t, m, s)
	if final(t, m, s) {
		t.Error("r2 was never visited")
	}
	if len(m.Violations()) != 1 {
		t.Errorf("expected one violation, got %v", m.Violations())
	}
}
