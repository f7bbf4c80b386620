package metrics

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/vinayprograms/planval/internal/errlog"
	"github.com/vinayprograms/planval/internal/trajectory"
	"github.com/vinayprograms/planval/internal/validator"
)

func result(status validator.Status) *validator.Result {
	return &validator.Result{
		Task:        "rooms",
		Plan:        "p1",
		Status:      status,
		Happenings:  3,
		Duration:    5 * time.Millisecond,
		Preferences: map[string]int{},
	}
}

func TestRecord_Counts(t *testing.T) {
	r := New("")

	ok := result(validator.StatusValid)
	ok.Value, ok.HasValue = 7, true
	ok.Preferences["lit-c"] = 2

	bad := result(validator.StatusInvalid)
	bad.Conditions = []errlog.Condition{&errlog.UnsatGoal{Goal: "(at r1 c)"}, &errlog.UnsatGoal{Goal: "(lit c)"}}
	bad.Violations = []trajectory.Violation{
		{Kind: "always", Constraint: "(always (lit a))", Time: 2},
		{Kind: "sometime", Constraint: "(sometime (lit b))", Time: 3, Preference: "p2"},
	}

	for _, res := range []*validator.Result{ok, bad} {
		if err := r.Record(context.Background(), res); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	if v := testutil.ToFloat64(r.PlansTotal.WithLabelValues("valid")); v != 1 {
		t.Errorf("expected 1 valid plan, got %g", v)
	}
	if v := testutil.ToFloat64(r.PlansTotal.WithLabelValues("invalid")); v != 1 {
		t.Errorf("expected 1 invalid plan, got %g", v)
	}
	if v := testutil.ToFloat64(r.ConditionsTotal.WithLabelValues(string(errlog.KindGoal))); v != 2 {
		t.Errorf("expected 2 goal conditions, got %g", v)
	}
	if v := testutil.ToFloat64(r.ViolationsTotal.WithLabelValues("always")); v != 1 {
		t.Errorf("expected 1 hard violation, got %g", v)
	}
	if v := testutil.ToFloat64(r.ViolationsTotal.WithLabelValues("sometime")); v != 0 {
		t.Errorf("preference violations are not hard violations, got %g", v)
	}
	if v := testutil.ToFloat64(r.PreferenceViolationsTotal.WithLabelValues("lit-c")); v != 2 {
		t.Errorf("expected 2 lit-c violations, got %g", v)
	}
	if v := testutil.ToFloat64(r.HappeningsTotal); v != 6 {
		t.Errorf("expected 6 happenings, got %g", v)
	}
	if v := testutil.ToFloat64(r.PlanValue.WithLabelValues("rooms", "p1")); v != 7 {
		t.Errorf("expected plan value 7, got %g", v)
	}
}

func TestRecord_WritesTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planval.prom")
	r := New(path)
	if err := r.Record(context.Background(), result(validator.StatusUndecided)); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("textfile not written: %v", err)
	}
	if !strings.Contains(string(data), `planval_plans_total{status="undecided"} 1`) {
		t.Errorf("unexpected textfile:\n%s", data)
	}
}

func TestWriteTextfile_BadPath(t *testing.T) {
	r := New("")
	err := r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "planval.prom"))
	if err == nil || !strings.Contains(err.Error(), "metrics textfile") {
		t.Errorf("expected write error, got %v", err)
	}
}
