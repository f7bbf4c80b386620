package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vinayprograms/planval/internal/ast"
	"github.com/vinayprograms/planval/internal/state"
	"github.com/vinayprograms/planval/internal/term"
)

type happening struct {
	t    float64
	name string
	fn   func(s *state.State)
}

func (h *happening) Time() float64                        { return h.t }
func (h *happening) CanHappen(*state.State) (bool, error) { return true, nil }
func (h *happening) Actions() []state.Action              { return []state.Action{h} }
func (h *happening) String() string                       { return h.name }
func (h *happening) ApplyTo(s *state.State) (bool, error) {
	h.fn(s)
	return true, nil
}

func TestSession_SequenceIDs(t *testing.T) {
	sess := New("run-1", "task", "plan")
	for i := 0; i < 5; i++ {
		if seq := sess.AddEvent(Event{Type: EventCondition}); seq != uint64(i+1) {
			t.Errorf("expected seq %d, got %d", i+1, seq)
		}
	}
	if sess.Events[0].Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
}

func TestSession_ObservesHappenings(t *testing.T) {
	ctx := state.NewContext(nil, state.DefaultOptions())
	at := ctx.Terms.Prop("at", []term.Const{"t1", "a"})
	fuel := ctx.Terms.Func("fuel", []term.Const{"t1"})

	s := state.New(ctx)
	s.Add(at)
	if err := s.Update(fuel, ast.Assign, 10); err != nil {
		t.Fatal(err)
	}

	sess := New("run-1", "logistics", "p1")
	s.AddObserver(sess)
	_, err := s.Progress(&happening{t: 2, name: "(drive t1 a b)", fn: func(s *state.State) {
		s.Delete(at)
		s.Add(ctx.Terms.Prop("at", []term.Const{"t1", "b"}))
		_ = s.Update(fuel, ast.Decrease, 5)
	}})
	if err != nil {
		t.Fatal(err)
	}

	if len(sess.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(sess.Events))
	}
	evt := sess.Events[0]
	if evt.Type != EventHappening || evt.Time != 2 || evt.Actions[0] != "(drive t1 a b)" {
		t.Errorf("unexpected event %+v", evt)
	}
	if len(evt.Meta.Added) != 1 || evt.Meta.Added[0] != "(at t1 b)" {
		t.Errorf("unexpected additions %v", evt.Meta.Added)
	}
	if len(evt.Meta.Deleted) != 1 || evt.Meta.Deleted[0] != "(at t1 a)" {
		t.Errorf("unexpected deletions %v", evt.Meta.Deleted)
	}
	if evt.Meta.Values["(fuel t1)"] != 5 {
		t.Errorf("expected fuel 5, got %v", evt.Meta.Values)
	}
}

func TestSession_Finish(t *testing.T) {
	sess := New("run-1", "task", "plan")
	sess.Finish(StatusUndecided, nil, errors.New("undefined term (fuel t9)"))

	if sess.Status != StatusUndecided {
		t.Errorf("expected undecided, got %s", sess.Status)
	}
	if !strings.Contains(sess.Error, "fuel t9") {
		t.Errorf("unexpected error %q", sess.Error)
	}
	last := sess.Events[len(sess.Events)-1]
	if last.Type != EventRunEnd || last.Success == nil || *last.Success {
		t.Errorf("unexpected final event %+v", last)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "traces"))
	if err != nil {
		t.Fatalf("create store error: %v", err)
	}

	sess := New("run-42", "logistics", "plan-01")
	sess.AddEvent(Event{Type: EventRunStart})
	sess.AddEvent(Event{Type: EventCondition, Time: 3, Content: "precondition failed", Meta: &EventMeta{Kind: "precondition"}})
	v := 12.5
	sess.Finish(StatusInvalid, &v, nil)

	if err := store.Save(sess); err != nil {
		t.Fatalf("save error: %v", err)
	}
	if _, err := os.Stat(store.Path("run-42") + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should be gone")
	}

	loaded, err := store.Load("run-42")
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if loaded.ID != "run-42" || loaded.Task != "logistics" || loaded.Plan != "plan-01" {
		t.Errorf("header mismatch: %+v", loaded)
	}
	if loaded.Status != StatusInvalid || loaded.Value == nil || *loaded.Value != 12.5 {
		t.Errorf("footer mismatch: status %s value %v", loaded.Status, loaded.Value)
	}
	if len(loaded.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(loaded.Events))
	}
	if e := loaded.Events[1]; e.Time != 3 || e.Meta == nil || e.Meta.Kind != "precondition" {
		t.Errorf("event mismatch: %+v", e)
	}

	// The sequence continues after a reload.
	if seq := loaded.AddEvent(Event{Type: EventGoal}); seq != 4 {
		t.Errorf("expected seq 4, got %d", seq)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadFile(filepath.Join(dir, "missing.jsonl")); err == nil {
		t.Error("expected error for missing file")
	}
	bad := filepath.Join(dir, "bad.jsonl")
	if err := os.WriteFile(bad, []byte("{not json}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(bad); err == nil || !strings.Contains(err.Error(), "failed to parse") {
		t.Errorf("expected parse error, got %v", err)
	}
}
