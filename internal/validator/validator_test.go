package validator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/vinayprograms/planval/internal/ast"
	"github.com/vinayprograms/planval/internal/errlog"
	"github.com/vinayprograms/planval/internal/plan"
	"github.com/vinayprograms/planval/internal/planfile"
	"github.com/vinayprograms/planval/internal/session"
	"github.com/vinayprograms/planval/internal/state"
	"github.com/vinayprograms/planval/internal/term"
)

const roomsBase = `
name: rooms
types: [robot, room]
objects:
  robot: [r1]
  room: [a, b, c]
predicates:
  - "(at ?r - robot ?x - room)"
  - "(door ?x ?y - room)"
  - "(lit ?x - room)"
  - "(charged ?r - robot)"
functions:
  - "(battery ?r - robot)"
  - "(moves)"
  - "(power)"
actions:
  - name: move
    parameters: "(?r - robot ?from ?to - room)"
    precondition: "(and (at ?r ?from) (door ?from ?to) (>= (battery ?r) 10))"
    effect: "(and (not (at ?r ?from)) (at ?r ?to) (decrease (battery ?r) 10) (increase (moves) 1))"
  - name: boost
    parameters: "(?r - robot)"
    precondition: "(> (power) 0)"
    effect: "(increase (battery ?r) 10)"
  - name: charge
    parameters: "(?r - robot ?x - room)"
    duration: "(and (>= ?duration 1) (<= ?duration 5))"
    condition:
      start: "(at ?r ?x)"
      overall: "(lit ?x)"
    effect:
      end: "(charged ?r)"
      continuous: "(increase (battery ?r) (* #t 5))"
init:
  - "(at r1 a)"
  - "(door a b)"
  - "(door b c)"
  - "(lit a)"
  - "(= (battery r1) 20)"
  - "(= (moves) 0)"
`

func loadTask(t *testing.T, tail string) *ast.Task {
	t.Helper()
	task, err := planfile.ParseTask([]byte(roomsBase + tail))
	if err != nil {
		t.Fatalf("ParseTask failed: %v", err)
	}
	if err := planfile.Validate(task); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	return task
}

func loadPlan(t *testing.T, name, text string) *ast.Plan {
	t.Helper()
	p, err := planfile.ParsePlan([]byte(text))
	if err != nil {
		t.Fatalf("ParsePlan failed: %v", err)
	}
	p.Name = name
	return p
}

func kinds(conds []errlog.Condition) []errlog.Kind {
	out := make([]errlog.Kind, len(conds))
	for i, c := range conds {
		out[i] = c.Kind()
	}
	return out
}

func hasKind(conds []errlog.Condition, k errlog.Kind) bool {
	for _, c := range conds {
		if c.Kind() == k {
			return true
		}
	}
	return false
}

func battery(t *testing.T, s *state.State) float64 {
	t.Helper()
	v, err := s.Value(s.Context().Terms.Func("battery", []term.Const{"r1"}))
	if err != nil {
		t.Fatalf("battery undefined: %v", err)
	}
	return v
}

func TestValidate_ValidSequentialPlan(t *testing.T) {
	task := loadTask(t, `
goal: "(at r1 c)"
metric: "(minimize (moves))"
`)
	p := loadPlan(t, "p1", "(move r1 a b)\n(move r1 b c)\n")

	res, err := New(DefaultOptions()).Validate(context.Background(), task, p)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if !res.Valid() {
		t.Fatalf("expected valid plan, got %s with %v", res.Status, kinds(res.Conditions))
	}
	if res.Happenings != 2 {
		t.Errorf("expected 2 happenings, got %d", res.Happenings)
	}
	if !res.HasValue || res.Value != 2 {
		t.Errorf("expected value 2, got %v (%v)", res.Value, res.HasValue)
	}
	if got := battery(t, res.Final); got != 0 {
		t.Errorf("expected battery 0, got %g", got)
	}
	if res.RunID == "" || res.Session == nil || res.Session.Status != session.StatusValid {
		t.Errorf("unexpected session %+v", res.Session)
	}
	if ach := res.Tracker.Achievements(); len(ach) == 0 || ach[len(ach)-1].Literal != "(at r1 c)" {
		t.Errorf("expected (at r1 c) among final achievements, got %v", ach)
	}
}

func TestValidate_PreconditionFailure(t *testing.T) {
	task := loadTask(t, `
goal: "(at r1 c)"
`)
	p := loadPlan(t, "p1", "(move r1 a c)\n(move r1 a b)\n")

	res, err := New(DefaultOptions()).Validate(context.Background(), task, p)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if res.Status != StatusInvalid {
		t.Fatalf("expected invalid, got %s", res.Status)
	}
	if res.Happenings != 1 {
		t.Errorf("expected to stop after 1 happening, got %d", res.Happenings)
	}
	if len(res.Conditions) != 1 || res.Conditions[0].Kind() != errlog.KindPrecondition {
		t.Fatalf("expected one precondition record, got %v", kinds(res.Conditions))
	}
	if !strings.Contains(res.Conditions[0].String(), "(move r1 a c)") {
		t.Errorf("record should name the action: %s", res.Conditions[0])
	}
}

func TestValidate_ContinueAfterError(t *testing.T) {
	task := loadTask(t, `
goal: "(at r1 c)"
`)
	p := loadPlan(t, "p1", "(move r1 a c)\n(move r1 a b)\n")

	opts := DefaultOptions()
	opts.StopOnError = false
	res, err := New(opts).Validate(context.Background(), task, p)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if res.Status != StatusInvalid || res.Happenings != 2 {
		t.Fatalf("expected invalid after 2 happenings, got %s after %d", res.Status, res.Happenings)
	}
	if !hasKind(res.Conditions, errlog.KindPrecondition) || !hasKind(res.Conditions, errlog.KindGoal) {
		t.Errorf("expected precondition and goal records, got %v", kinds(res.Conditions))
	}
}

func TestValidate_GoalFailure(t *testing.T) {
	task := loadTask(t, `
goal: "(and (at r1 c) (door a b))"
`)
	p := loadPlan(t, "p1", "(move r1 a b)\n")

	res, err := New(DefaultOptions()).Validate(context.Background(), task, p)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if res.Status != StatusInvalid {
		t.Fatalf("expected invalid, got %s", res.Status)
	}
	if len(res.Conditions) != 1 {
		t.Fatalf("expected only the failing conjunct, got %v", kinds(res.Conditions))
	}
	g, ok := res.Conditions[0].(*errlog.UnsatGoal)
	if !ok || g.Goal != "(at r1 c)" {
		t.Errorf("unexpected goal record %v", res.Conditions[0])
	}
}

func TestValidate_Mutex(t *testing.T) {
	task := loadTask(t, `
goal: "(at r1 b)"
`)
	p := loadPlan(t, "p1", "0: (move r1 a b)\n0: (move r1 a b)\n")

	res, err := New(DefaultOptions()).Validate(context.Background(), task, p)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if res.Status != StatusInvalid {
		t.Fatalf("expected invalid, got %s", res.Status)
	}
	if !hasKind(res.Conditions, errlog.KindMutex) {
		t.Errorf("expected a mutex violation, got %v", kinds(res.Conditions))
	}

	// the conflicting happening must not be applied
	terms := res.Final.Context().Terms
	if !res.Final.Prop(terms.Prop("at", []term.Const{"r1", "a"})) || res.Final.Prop(terms.Prop("at", []term.Const{"r1", "b"})) {
		t.Errorf("robot should still be in room a:\n%s", res.Final)
	}
	if got := battery(t, res.Final); got != 20 {
		t.Errorf("expected battery 20, got %g", got)
	}
	moves, err := res.Final.Value(terms.Func("moves", nil))
	if err != nil || moves != 0 {
		t.Errorf("expected no moves, got %g (%v)", moves, err)
	}
}

func TestValidate_BlockedHappeningDoesNotRepeatContinuousChange(t *testing.T) {
	task := loadTask(t, `
goal: "(charged r1)"
`)
	p := loadPlan(t, "p1", "0: (charge r1 a) [4]\n2: (move r1 a c)\n")

	opts := DefaultOptions()
	opts.StopOnError = false
	res, err := New(opts).Validate(context.Background(), task, p)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if res.Status != StatusInvalid {
		t.Fatalf("expected invalid, got %s", res.Status)
	}
	if !hasKind(res.Conditions, errlog.KindPrecondition) {
		t.Errorf("expected a precondition failure, got %v", kinds(res.Conditions))
	}
	// four time units of charging at rate 5
	if got := battery(t, res.Final); got != 40 {
		t.Errorf("expected battery 40, got %g", got)
	}
}

func TestValidate_DurativeAction(t *testing.T) {
	task := loadTask(t, `
goal: "(charged r1)"
metric: "(minimize (total-time))"
`)
	p := loadPlan(t, "p1", "0: (charge r1 a) [4]\n")

	res, err := New(DefaultOptions()).Validate(context.Background(), task, p)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if !res.Valid() {
		t.Fatalf("expected valid plan, got %s with %v", res.Status, kinds(res.Conditions))
	}
	if got := battery(t, res.Final); got != 40 {
		t.Errorf("expected battery 40 after charging, got %g", got)
	}
	if res.Value != 4 {
		t.Errorf("expected total time 4, got %g", res.Value)
	}
}

func TestValidate_DurationViolation(t *testing.T) {
	task := loadTask(t, `
goal: "(charged r1)"
`)
	p := loadPlan(t, "p1", "0: (charge r1 a) [10]\n")

	res, err := New(DefaultOptions()).Validate(context.Background(), task, p)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if res.Status != StatusInvalid {
		t.Fatalf("expected invalid, got %s", res.Status)
	}
	d, ok := res.Conditions[0].(*errlog.UnsatDurationCondition)
	if !ok {
		t.Fatalf("expected duration record, got %v", kinds(res.Conditions))
	}
	if d.Time() != 0 {
		t.Errorf("expected record at time 0, got %g", d.Time())
	}
}

func TestValidate_InvariantRootCause(t *testing.T) {
	task := loadTask(t, `
timed:
  - at: 2
    effect: "(not (lit a))"
goal: "(charged r1)"
`)
	p := loadPlan(t, "p1", "0: (charge r1 a) [4]\n")

	res, err := New(DefaultOptions()).Validate(context.Background(), task, p)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if res.Status != StatusInvalid {
		t.Fatalf("expected invalid, got %s", res.Status)
	}
	if len(res.Conditions) != 1 {
		t.Fatalf("expected one invariant record, got %v", kinds(res.Conditions))
	}
	inv, ok := res.Conditions[0].(*errlog.UnsatInvariant)
	if !ok {
		t.Fatalf("expected invariant record, got %T", res.Conditions[0])
	}
	if !inv.RootCause || inv.Start != 0 || inv.End != 4 {
		t.Errorf("unexpected invariant record %+v", inv)
	}
	if len(inv.Satisfied) != 1 || inv.Satisfied[0].To != 0 {
		t.Errorf("expected satisfied interval [0, 0], got %v", inv.Satisfied)
	}
}

func TestValidate_PreferencesAndMetric(t *testing.T) {
	task := loadTask(t, `
goal: "(and (at r1 c) (preference lit-c (lit c)))"
metric: "(minimize (+ (moves) (* 5 (is-violated lit-c))))"
`)
	p := loadPlan(t, "p1", "(move r1 a b)\n(move r1 b c)\n")

	res, err := New(DefaultOptions()).Validate(context.Background(), task, p)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if !res.Valid() {
		t.Fatalf("a violated preference must not invalidate the plan, got %s", res.Status)
	}
	if res.Preferences["lit-c"] != 1 {
		t.Errorf("expected lit-c violated once, got %v", res.Preferences)
	}
	if res.Value != 7 {
		t.Errorf("expected value 7, got %g", res.Value)
	}
}

func TestValidate_TrajectoryViolation(t *testing.T) {
	task := loadTask(t, `
goal: "(at r1 c)"
constraints: "(always (> (battery r1) 5))"
`)
	p := loadPlan(t, "p1", "(move r1 a b)\n(move r1 b c)\n")

	res, err := New(DefaultOptions()).Validate(context.Background(), task, p)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if res.Status != StatusInvalid {
		t.Fatalf("expected invalid, got %s", res.Status)
	}
	if len(res.Violations) != 1 || res.Violations[0].Time != 2 {
		t.Errorf("expected one violation at time 2, got %v", res.Violations)
	}
	if len(res.Conditions) != 0 {
		t.Errorf("trajectory violations are not error log records, got %v", kinds(res.Conditions))
	}
}

func TestValidate_UndefinedTermIsUndecided(t *testing.T) {
	task := loadTask(t, `
goal: "(at r1 a)"
`)
	p := loadPlan(t, "p1", "(boost r1)\n")

	res, err := New(DefaultOptions()).Validate(context.Background(), task, p)
	if err != nil {
		t.Fatalf("undecided plans are not errors: %v", err)
	}
	if res.Status != StatusUndecided {
		t.Fatalf("expected undecided, got %s", res.Status)
	}
	if !errors.Is(res.Err, state.ErrUndefinedTerm) {
		t.Errorf("expected undefined term error, got %v", res.Err)
	}
	if res.Session.Status != session.StatusUndecided {
		t.Errorf("session should record the verdict, got %s", res.Session.Status)
	}
}

func TestValidate_BadStepIsInvalid(t *testing.T) {
	task := loadTask(t, `
goal: "(at r1 c)"
`)
	for name, text := range map[string]string{
		"unknown action": "(fly r1 a c)\n",
		"wrong arity":    "(move r1 a)\n",
		"unknown object": "(move r1 a z)\n",
	} {
		res, err := New(DefaultOptions()).Validate(context.Background(), task, loadPlan(t, name, text))
		if err != nil {
			t.Fatalf("%s: unexpected error %v", name, err)
		}
		if res.Status != StatusInvalid {
			t.Errorf("%s: expected invalid, got %s", name, res.Status)
		}
	}
}

func TestValidate_Cancelled(t *testing.T) {
	task := loadTask(t, `
goal: "(at r1 c)"
`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New(DefaultOptions()).Validate(ctx, task, loadPlan(t, "p1", "(move r1 a b)\n"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.Status != StatusError {
		t.Errorf("expected error status, got %s", res.Status)
	}
}

type recordingSink struct {
	mu       sync.Mutex
	statuses map[string]Status
}

func (s *recordingSink) Record(_ context.Context, r *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[r.Plan] = r.Status
	return nil
}

type failingSink struct{}

func (failingSink) Record(context.Context, *Result) error { return errors.New("unreachable") }

func TestValidateBatch(t *testing.T) {
	task := loadTask(t, `
goal: "(at r1 c)"
`)
	plans := []*ast.Plan{
		loadPlan(t, "good", "(move r1 a b)\n(move r1 b c)\n"),
		loadPlan(t, "short", "(move r1 a b)\n"),
		loadPlan(t, "broken", "(fly r1)\n"),
		loadPlan(t, "undecided", "(boost r1)\n"),
	}

	opts := DefaultOptions()
	opts.Workers = 3
	v := New(opts)
	sink := &recordingSink{statuses: make(map[string]Status)}
	v.AddSink(sink)
	v.AddSink(failingSink{})

	results := v.ValidateBatch(context.Background(), task, plans)
	want := []Status{StatusValid, StatusInvalid, StatusInvalid, StatusUndecided}
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(results))
	}
	for i, res := range results {
		if res.Plan != plans[i].Name {
			t.Errorf("result %d is for %s, expected %s", i, res.Plan, plans[i].Name)
		}
		if res.Status != want[i] {
			t.Errorf("%s: expected %s, got %s", res.Plan, want[i], res.Status)
		}
		if sink.statuses[res.Plan] != want[i] {
			t.Errorf("%s: sink saw %s", res.Plan, sink.statuses[res.Plan])
		}
	}
}

func TestValidate_SessionStoreAndCallbacks(t *testing.T) {
	task := loadTask(t, `
goal: "(at r1 c)"
`)
	store, err := session.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	v := New(DefaultOptions())
	v.SetSessionStore(store)
	var happenings, conditions int
	v.OnHappening = func(string, *plan.Happening, bool) { happenings++ }
	v.OnCondition = func(string, errlog.Condition) { conditions++ }

	var observed int
	v.AddObserver(func(string) state.Observer {
		return observerFunc(func(*state.State, state.Happening) { observed++ })
	})

	res, err := v.Validate(context.Background(), task, loadPlan(t, "p1", "(move r1 a b)\n"))
	if err != nil {
		t.Fatal(err)
	}
	if happenings != 1 || conditions != 1 || observed != 1 {
		t.Errorf("callbacks: %d happenings, %d conditions, %d observed", happenings, conditions, observed)
	}

	loaded, err := store.Load(res.RunID)
	if err != nil {
		t.Fatalf("run trace not saved: %v", err)
	}
	if loaded.Status != session.StatusInvalid {
		t.Errorf("expected invalid trace, got %s", loaded.Status)
	}
	var types []string
	for _, e := range loaded.Events {
		types = append(types, e.Type)
	}
	want := []string{session.EventRunStart, session.EventHappening, session.EventCondition, session.EventGoal, session.EventRunEnd}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Errorf("expected events %v, got %v", want, types)
	}
}

type observerFunc func(*state.State, state.Happening)

func (f observerFunc) NotifyChanged(s *state.State, h state.Happening) { f(s, h) }
