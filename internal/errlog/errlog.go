// Package errlog records the consistency errors found while validating a plan.
package errlog

import (
	"fmt"
	"sort"

	"github.com/vinayprograms/planval/internal/state"
)

// Kind identifies a condition record.
type Kind string

const (
	KindMutex        Kind = "mutex_violation"
	KindPrecondition Kind = "unsat_precondition"
	KindDuration     Kind = "unsat_duration"
	KindInvariant    Kind = "unsat_invariant"
	KindGoal         Kind = "unsat_goal"
)

// Condition is one recorded consistency error. Each holds its own snapshot
// of the state at the time it was found.
type Condition interface {
	Kind() Kind
	Time() float64
	Snapshot() *state.State
	String() string
	condition()
}

// MutexViolation: two actions made incompatible claims in one happening.
// Other is nil when the conflicting claim was shared.
type MutexViolation struct {
	At     float64
	Action state.Action
	Other  state.Action
	State  *state.State
}

type UnsatPrecondition struct {
	At     float64
	Action state.Action
	State  *state.State
}

// UnsatDurationCondition carries how far the given duration was from the
// nearest legal value.
type UnsatDurationCondition struct {
	At     float64
	Action state.Action
	State  *state.State
	Error  float64
}

// Interval is a closed time interval.
type Interval struct {
	From, To float64
}

// UnsatInvariant is an over-all condition that failed during [Start, End].
// Satisfied lists where it did hold. RootCause marks the first invariant
// failure of the plan.
type UnsatInvariant struct {
	Start, End float64
	Satisfied  []Interval
	Action     state.Action
	State      *state.State
	RootCause  bool
}

// UnsatGoal is a goal conjunct that failed in the final state.
type UnsatGoal struct {
	Goal  string
	State *state.State
}

func (*MutexViolation) condition()         {}
func (*UnsatPrecondition) condition()      {}
func (*UnsatDurationCondition) condition() {}
func (*UnsatInvariant) condition()         {}
func (*UnsatGoal) condition()              {}

func (*MutexViolation) Kind() Kind         { return KindMutex }
func (*UnsatPrecondition) Kind() Kind      { return KindPrecondition }
func (*UnsatDurationCondition) Kind() Kind { return KindDuration }
func (*UnsatInvariant) Kind() Kind         { return KindInvariant }
func (*UnsatGoal) Kind() Kind              { return KindGoal }

func (c *MutexViolation) Time() float64         { return c.At }
func (c *UnsatPrecondition) Time() float64      { return c.At }
func (c *UnsatDurationCondition) Time() float64 { return c.At }
func (c *UnsatInvariant) Time() float64         { return c.Start }
func (c *UnsatGoal) Time() float64              { return c.State.Time() }

func (c *MutexViolation) Snapshot() *state.State         { return c.State }
func (c *UnsatPrecondition) Snapshot() *state.State      { return c.State }
func (c *UnsatDurationCondition) Snapshot() *state.State { return c.State }
func (c *UnsatInvariant) Snapshot() *state.State         { return c.State }
func (c *UnsatGoal) Snapshot() *state.State              { return c.State }

func (c *MutexViolation) String() string {
	if c.Other == nil {
		return fmt.Sprintf("time %g: mutex violation: %s conflicts with a shared claim", c.At, c.Action)
	}
	return fmt.Sprintf("time %g: mutex violation: %s and %s", c.At, c.Action, c.Other)
}

func (c *UnsatPrecondition) String() string {
	return fmt.Sprintf("time %g: precondition of %s does not hold", c.At, c.Action)
}

func (c *UnsatDurationCondition) String() string {
	return fmt.Sprintf("time %g: duration of %s is off by %g", c.At, c.Action, c.Error)
}

func (c *UnsatInvariant) String() string {
	s := fmt.Sprintf("time %g-%g: invariant of %s does not hold", c.Start, c.End, c.Action)
	if c.RootCause {
		s += " (first invariant failure)"
	}
	return s
}

func (c *UnsatGoal) String() string {
	return fmt.Sprintf("goal %s does not hold in the final state", c.Goal)
}

// Log accumulates conditions for one plan. When disabled, records are
// dropped but Count still reports how many were offered.
type Log struct {
	enabled    bool
	conditions []Condition
	offered    int
}

// New creates a log. enabled mirrors the error_report setting.
func New(enabled bool) *Log {
	return &Log{enabled: enabled}
}

func (l *Log) add(c Condition) {
	l.offered++
	if l.enabled {
		l.conditions = append(l.conditions, c)
	}
}

func (l *Log) AddMutexViolation(t float64, a, other state.Action, s *state.State) {
	l.add(&MutexViolation{At: t, Action: a, Other: other, State: s.Clone()})
}

func (l *Log) AddPrecondition(t float64, a state.Action, s *state.State) {
	l.add(&UnsatPrecondition{At: t, Action: a, State: s.Clone()})
}

func (l *Log) AddDurationCondition(t float64, a state.Action, s *state.State, e float64) {
	l.add(&UnsatDurationCondition{At: t, Action: a, State: s.Clone(), Error: e})
}

func (l *Log) AddInvariant(start, end float64, sat []Interval, a state.Action, s *state.State, root bool) {
	l.add(&UnsatInvariant{
		Start: start, End: end,
		Satisfied: append([]Interval(nil), sat...),
		Action:    a, State: s.Clone(), RootCause: root,
	})
}

func (l *Log) AddGoal(goal string, s *state.State) {
	l.add(&UnsatGoal{Goal: goal, State: s.Clone()})
}

// Conditions returns the recorded conditions in the order found.
func (l *Log) Conditions() []Condition {
	return l.conditions
}

// Count reports how many conditions were offered, recorded or not.
func (l *Log) Count() int { return l.offered }

// Preferences tallies preference violations by name.
type Preferences struct {
	counts map[string]int
}

// NewPreferences creates an empty tally.
func NewPreferences() *Preferences {
	return &Preferences{counts: make(map[string]int)}
}

// Violate counts one violation of the named preference.
func (p *Preferences) Violate(name string) { p.counts[name]++ }

// Violations reports how often the named preference was violated.
func (p *Preferences) Violations(name string) int { return p.counts[name] }

// Names returns the violated preference names, sorted.
func (p *Preferences) Names() []string {
	out := make([]string, 0, len(p.counts))
	for n := range p.counts {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Total is the sum of all violations.
func (p *Preferences) Total() int {
	n := 0
	for _, c := range p.counts {
		n += c
	}
	return n
}
