// Package state holds the symbolic world of a validation run: propositions,
// numeric values, per-step change tracking and the expression evaluator.
package state

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/planval/internal/ast"
	"github.com/vinayprograms/planval/internal/term"
)

// Options are the immutable evaluation settings of a run.
type Options struct {
	Tolerance      float64 // epsilon for numeric comparisons
	ContinueAnyway bool    // apply effects even when preconditions fail
	Verbose        bool    // log every add, delete and update
	Durative       bool    // total-time is the current time rather than the plan length
	PlanLength     int
}

// DefaultOptions returns the settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{Tolerance: 0.01}
}

// ExternalProvider computes values of externally defined numeric terms.
type ExternalProvider interface {
	Value(s *State, id term.FuncID) (float64, error)
}

// ViolationCounter reports preference violations by name.
type ViolationCounter interface {
	Violations(name string) int
}

// Action is a concurrently occurring action instance.
type Action interface {
	String() string
}

// Happening is a batch of events sharing one time stamp.
type Happening interface {
	Time() float64
	CanHappen(s *State) (bool, error)
	ApplyTo(s *State) (bool, error)
	Actions() []Action
}

// Observer is notified after every successful progression.
type Observer interface {
	NotifyChanged(s *State, h Happening)
}

// Context is the per-run environment shared by a state and its snapshots.
type Context struct {
	Terms    *term.Table
	Universe *term.Universe
	External ExternalProvider
	Prefs    ViolationCounter
	Options  Options
	Logger   *logging.Logger
}

// NewContext creates a run context with its own interning table.
func NewContext(u *term.Universe, opts Options) *Context {
	if u == nil {
		u = term.NewUniverse()
	}
	return &Context{
		Terms:    term.NewTable(),
		Universe: u,
		Options:  opts,
		Logger:   logging.New().WithComponent("state"),
	}
}

// Change records a numeric term's value before the current step.
type Change struct {
	Old     float64
	Defined bool
}

// State is the mutable world. It is owned by the run driving it; observers
// must treat it as read-only.
type State struct {
	ctx          *Context
	props        map[term.PropID]bool
	values       map[term.FuncID]float64
	changedProps map[term.PropID]struct{}
	changedFuncs map[term.FuncID]Change
	time         float64
	observers    []Observer
}

// New creates an empty state at time zero.
func New(ctx *Context) *State {
	return &State{
		ctx:          ctx,
		props:        make(map[term.PropID]bool),
		values:       make(map[term.FuncID]float64),
		changedProps: make(map[term.PropID]struct{}),
		changedFuncs: make(map[term.FuncID]Change),
	}
}

// Context returns the run context.
func (s *State) Context() *Context { return s.ctx }

// Time returns the current time stamp.
func (s *State) Time() float64 { return s.time }

// Prop reports whether p is true. Unrecorded propositions are false.
func (s *State) Prop(p term.PropID) bool { return s.props[p] }

// Value returns the value of a numeric term.
func (s *State) Value(id term.FuncID) (float64, error) {
	if v, ok := s.values[id]; ok {
		return v, nil
	}
	if s.ctx.Terms.IsExternal(id) && s.ctx.External != nil {
		return s.ctx.External.Value(s, id)
	}
	return 0, fmt.Errorf("%w: %s", ErrUndefinedTerm, s.ctx.Terms.FuncAtom(id))
}

// Defined reports whether a value is stored for the term.
func (s *State) Defined(id term.FuncID) bool {
	_, ok := s.values[id]
	return ok
}

// Add makes p true.
func (s *State) Add(p term.PropID) {
	if s.ctx.Options.Verbose {
		s.ctx.Logger.Debug("adding", map[string]interface{}{"prop": s.ctx.Terms.PropAtom(p).String()})
	}
	if !s.props[p] {
		s.changedProps[p] = struct{}{}
	}
	s.props[p] = true
}

// Delete makes p false.
func (s *State) Delete(p term.PropID) {
	if s.ctx.Options.Verbose {
		s.ctx.Logger.Debug("deleting", map[string]interface{}{"prop": s.ctx.Terms.PropAtom(p).String()})
	}
	if s.props[p] {
		s.changedProps[p] = struct{}{}
	}
	delete(s.props, p)
}

// Update applies a numeric update. Every operator other than assign and
// continuous-assign needs a defined current value.
func (s *State) Update(id term.FuncID, op ast.UpdateOp, v float64) error {
	cur, defined := s.values[id]
	if !defined && op != ast.Assign && op != ast.ContinuousAssign {
		return fmt.Errorf("%w: %s %s", ErrUndefinedTerm, op, s.ctx.Terms.FuncAtom(id))
	}

	var next float64
	switch op {
	case ast.Assign, ast.ContinuousAssign:
		next = v
	case ast.Increase:
		next = cur + v
	case ast.Decrease:
		next = cur - v
	case ast.ScaleUp:
		next = cur * v
	case ast.ScaleDown:
		next = cur / v
	default:
		return fmt.Errorf("%w: update operator %d", ErrUnrecognisedExpression, op)
	}

	if s.ctx.Options.Verbose {
		s.ctx.Logger.Debug("updating", map[string]interface{}{
			"term": s.ctx.Terms.FuncAtom(id).String(),
			"op":   op.String(),
			"from": cur,
			"to":   next,
		})
	}

	s.values[id] = next
	if op == ast.ContinuousAssign {
		return nil
	}
	if next != cur || !defined {
		if _, seen := s.changedFuncs[id]; !seen {
			s.changedFuncs[id] = Change{Old: cur, Defined: defined}
		}
	}
	return nil
}

// AddObserver registers an observer for successful progressions.
func (s *State) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

// Progress applies a happening. It resets change tracking, checks the
// happening's preconditions, advances the clock and applies the effects when
// the preconditions held or ContinueAnyway is set. It returns true only if
// the preconditions held and the effects applied cleanly. Evaluation errors
// are returned unhandled.
func (s *State) Progress(h Happening) (bool, error) {
	s.resetChanged()

	ok, err := h.CanHappen(s)
	if err != nil {
		return false, err
	}
	if !ok && !s.ctx.Options.ContinueAnyway {
		return false, nil
	}

	s.time = h.Time()
	applied, err := h.ApplyTo(s)
	if err != nil {
		return false, err
	}
	if !(ok && applied) {
		return false, nil
	}
	for _, o := range s.observers {
		o.NotifyChanged(s, h)
	}
	return true, nil
}

// ResetChanges clears the per-step change tracking.
func (s *State) ResetChanges() { s.resetChanged() }

func (s *State) resetChanged() {
	s.changedProps = make(map[term.PropID]struct{})
	s.changedFuncs = make(map[term.FuncID]Change)
}

// ChangedProps returns the propositions that flipped in the current step.
func (s *State) ChangedProps() []term.PropID {
	out := make([]term.PropID, 0, len(s.changedProps))
	for p := range s.changedProps {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ChangedFuncs returns the numeric terms changed in the current step with
// their values before the step.
func (s *State) ChangedFuncs() map[term.FuncID]Change {
	out := make(map[term.FuncID]Change, len(s.changedFuncs))
	for k, v := range s.changedFuncs {
		out[k] = v
	}
	return out
}

// TrueProps returns every true proposition in handle order.
func (s *State) TrueProps() []term.PropID {
	out := make([]term.PropID, 0, len(s.props))
	for p := range s.props {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DefinedFuncs returns every term with a stored value in handle order.
func (s *State) DefinedFuncs() []term.FuncID {
	out := make([]term.FuncID, 0, len(s.values))
	for f := range s.values {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns a snapshot. Observers are not copied.
func (s *State) Clone() *State {
	c := New(s.ctx)
	c.time = s.time
	for k, v := range s.props {
		c.props[k] = v
	}
	for k, v := range s.values {
		c.values[k] = v
	}
	for k := range s.changedProps {
		c.changedProps[k] = struct{}{}
	}
	for k, v := range s.changedFuncs {
		c.changedFuncs[k] = v
	}
	return c
}

// String renders the state for diagnostics.
func (s *State) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "time %g:", s.time)
	for _, p := range s.TrueProps() {
		b.WriteString(" ")
		b.WriteString(s.ctx.Terms.PropAtom(p).String())
	}
	for _, f := range s.DefinedFuncs() {
		fmt.Fprintf(&b, " (= %s %g)", s.ctx.Terms.FuncAtom(f), s.values[f])
	}
	return b.String()
}
