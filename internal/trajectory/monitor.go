// Package trajectory checks multi-state temporal constraints incrementally
// over the states of a plan's execution trace.
package trajectory

import (
	"fmt"

	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/planval/internal/ast"
	"github.com/vinayprograms/planval/internal/errlog"
	"github.com/vinayprograms/planval/internal/state"
	"github.com/vinayprograms/planval/internal/term"
)

// Violation is a constraint found broken. Preference is the name of the
// enclosing preference, empty for hard constraints.
type Violation struct {
	Kind       string
	Constraint string
	Time       float64
	Preference string
}

func (v Violation) String() string {
	if v.Preference != "" {
		return fmt.Sprintf("time %g: preference %s violated: %s", v.Time, v.Preference, v.Constraint)
	}
	return fmt.Sprintf("time %g: %s violated: %s", v.Time, v.Kind, v.Constraint)
}

// obligation is a ground goal watched by one bucket.
type obligation struct {
	kind  string
	label string
	g     ast.Goal
	f     *term.Frame
	pref  string
	done  bool
}

func (o *obligation) holds(s *state.State) (bool, error) {
	return s.Holds(o.g, o.f)
}

type pair struct {
	trigger, req *obligation
	pending      *obligation // sometime obligation raised by the last trigger
}

type deadlined struct {
	deadline float64
	req      *obligation
}

type triggered struct {
	delay   float64
	trigger *obligation
	req     *obligation
}

type window struct {
	from, to float64
	req      *obligation
}

// Monitor holds the pending obligations of one plan's constraints.
// Obligations move between buckets as states are observed; a violated
// obligation is dropped and never reconsidered.
type Monitor struct {
	atEnd          []*obligation
	always         []*obligation
	sometime       []*obligation
	atMostOnce     []*obligation
	currently      []*obligation
	never          []*obligation
	sometimeAfter  []*pair
	sometimeBefore []*pair
	within         []*deadlined
	holdAfter      []*deadlined
	alwaysWithin   []*triggered
	holdDuring     []*window
	orders         []*order

	universe   *term.Universe
	prefs      *errlog.Preferences
	violations []Violation
	hard       int // hard violations so far
	active     bool
	logger     *logging.Logger
}

// New builds a monitor for c. A nil constraint gives a monitor that accepts
// every trace. prefs receives preference violations and may be nil when the
// task declares no preferences.
func New(c ast.Constraint, u *term.Universe, prefs *errlog.Preferences) (*Monitor, error) {
	if u == nil {
		u = term.NewUniverse()
	}
	if prefs == nil {
		prefs = errlog.NewPreferences()
	}
	m := &Monitor{
		universe: u,
		prefs:    prefs,
		logger:   logging.New().WithComponent("trajectory"),
	}
	if c != nil {
		if err := m.collect(c, term.NewFrame(0), ""); err != nil {
			return nil, err
		}
		m.active = true
	}
	return m, nil
}

func (m *Monitor) ob(kind string, c ast.Constraint, g ast.Goal, f *term.Frame, pref string) *obligation {
	return &obligation{kind: kind, label: ast.Format(c), g: g, f: f, pref: pref}
}

func (m *Monitor) collect(c ast.Constraint, f *term.Frame, pref string) error {
	switch c := c.(type) {
	case *ast.AndConstraint:
		for _, sub := range c.Constraints {
			if err := m.collect(sub, f, pref); err != nil {
				return err
			}
		}
	case *ast.ForallConstraint:
		return state.ForEachBinding(m.universe, c.Params, f, func(b *term.Frame) (bool, error) {
			return true, m.collect(c.Body, b, pref)
		})
	case *ast.PrefConstraint:
		return m.collect(c.C, f, c.Name)
	case *ast.AtEnd:
		m.atEnd = append(m.atEnd, m.ob("at-end", c, c.G, f, pref))
	case *ast.Always:
		m.always = append(m.always, m.ob("always", c, c.G, f, pref))
	case *ast.Sometime:
		m.sometime = append(m.sometime, m.ob("sometime", c, c.G, f, pref))
	case *ast.AtMostOnce:
		m.atMostOnce = append(m.atMostOnce, m.ob("at-most-once", c, c.G, f, pref))
	case *ast.Never:
		m.never = append(m.never, m.ob("never", c, c.G, f, pref))
	case *ast.SometimeAfter:
		m.sometimeAfter = append(m.sometimeAfter, &pair{
			trigger: m.ob("sometime-after", c, c.Trigger, f, pref),
			req:     m.ob("sometime-after", c, c.Req, f, pref),
		})
	case *ast.SometimeBefore:
		m.sometimeBefore = append(m.sometimeBefore, &pair{
			trigger: m.ob("sometime-before", c, c.Trigger, f, pref),
			req:     m.ob("sometime-before", c, c.Req, f, pref),
		})
	case *ast.Within:
		m.within = append(m.within, &deadlined{deadline: c.Deadline, req: m.ob("within", c, c.G, f, pref)})
	case *ast.HoldAfter:
		m.holdAfter = append(m.holdAfter, &deadlined{deadline: c.Deadline, req: m.ob("hold-after", c, c.G, f, pref)})
	case *ast.AlwaysWithin:
		m.alwaysWithin = append(m.alwaysWithin, &triggered{
			delay:   c.Deadline,
			trigger: m.ob("always-within", c, c.Trigger, f, pref),
			req:     m.ob("always-within", c, c.Req, f, pref),
		})
	case *ast.HoldDuring:
		m.holdDuring = append(m.holdDuring, &window{from: c.From, to: c.To, req: m.ob("hold-during", c, c.G, f, pref)})
	case *ast.Order:
		o, err := newOrder(c, f, pref)
		if err != nil {
			return err
		}
		m.orders = append(m.orders, o)
	default:
		return fmt.Errorf("%w: constraint %T", state.ErrUnrecognisedExpression, c)
	}
	return nil
}

// violate records a broken obligation. Preferences are tallied instead of
// failing the trace.
func (m *Monitor) violate(o *obligation, t float64) {
	o.done = true
	v := Violation{Kind: o.kind, Constraint: o.label, Time: t, Preference: o.pref}
	m.violations = append(m.violations, v)
	if o.pref != "" {
		m.prefs.Violate(o.pref)
		return
	}
	m.hard++
	m.logger.Info("trajectory constraint violated", map[string]interface{}{
		"kind":       o.kind,
		"constraint": o.label,
		"time":       t,
	})
}

// Violations returns every violation found so far in the order found.
func (m *Monitor) Violations() []Violation { return m.violations }

// Failed reports whether a hard constraint has been violated.
func (m *Monitor) Failed() bool { return m.hard > 0 }

// keep filters a bucket, dropping obligations for which fn returns false.
func keep(bucket []*obligation, fn func(o *obligation) (bool, error)) ([]*obligation, error) {
	out := bucket[:0]
	for _, o := range bucket {
		stay, err := fn(o)
		if err != nil {
			return nil, err
		}
		if stay {
			out = append(out, o)
		}
	}
	return out, nil
}

// CheckAtState observes one state of the trace. It returns false if a hard
// constraint was violated in this state.
func (m *Monitor) CheckAtState(s *state.State) (bool, error) {
	if !m.active {
		return true, nil
	}
	before := m.hard
	now := s.Time()
	var err error

	// Deadlines that have arrived promote or spawn obligations first, so the
	// new obligations are checked against this same state.
	hold := m.holdAfter[:0]
	for _, d := range m.holdAfter {
		if now >= d.deadline {
			m.always = append(m.always, d.req)
			continue
		}
		hold = append(hold, d)
	}
	m.holdAfter = hold

	for _, aw := range m.alwaysWithin {
		trig, err := aw.trigger.holds(s)
		if err != nil {
			return false, err
		}
		if !trig {
			continue
		}
		req, err := aw.req.holds(s)
		if err != nil {
			return false, err
		}
		if !req {
			o := *aw.req
			m.within = append(m.within, &deadlined{deadline: now + aw.delay, req: &o})
		}
	}

	for _, p := range m.sometimeAfter {
		if p.pending != nil && !p.pending.done {
			continue
		}
		trig, err := p.trigger.holds(s)
		if err != nil {
			return false, err
		}
		if !trig {
			continue
		}
		req, err := p.req.holds(s)
		if err != nil {
			return false, err
		}
		if !req {
			o := *p.req
			p.pending = &o
			m.sometime = append(m.sometime, p.pending)
		}
	}

	sb := m.sometimeBefore[:0]
	for _, p := range m.sometimeBefore {
		trig, err := p.trigger.holds(s)
		if err != nil {
			return false, err
		}
		if trig {
			m.violate(p.trigger, now)
			continue
		}
		req, err := p.req.holds(s)
		if err != nil {
			return false, err
		}
		if !req {
			sb = append(sb, p)
		}
	}
	m.sometimeBefore = sb

	if m.always, err = keep(m.always, func(o *obligation) (bool, error) {
		ok, err := o.holds(s)
		if err == nil && !ok {
			m.violate(o, now)
		}
		return ok, err
	}); err != nil {
		return false, err
	}

	if m.never, err = keep(m.never, func(o *obligation) (bool, error) {
		ok, err := o.holds(s)
		if err == nil && ok {
			m.violate(o, now)
		}
		return !ok, err
	}); err != nil {
		return false, err
	}

	if m.sometime, err = keep(m.sometime, func(o *obligation) (bool, error) {
		ok, err := o.holds(s)
		if ok {
			o.done = true
		}
		return !ok, err
	}); err != nil {
		return false, err
	}

	// at-most-once: not yet true -> currently true -> false forever.
	var toNever []*obligation
	if m.currently, err = keep(m.currently, func(o *obligation) (bool, error) {
		ok, err := o.holds(s)
		if err == nil && !ok {
			toNever = append(toNever, o)
		}
		return ok, err
	}); err != nil {
		return false, err
	}
	m.never = append(m.never, toNever...)
	if m.atMostOnce, err = keep(m.atMostOnce, func(o *obligation) (bool, error) {
		ok, err := o.holds(s)
		if ok {
			m.currently = append(m.currently, o)
		}
		return !ok, err
	}); err != nil {
		return false, err
	}

	within := m.within[:0]
	for _, d := range m.within {
		ok, err := d.req.holds(s)
		if err != nil {
			return false, err
		}
		switch {
		case now > d.deadline:
			m.violate(d.req, now)
		case ok:
			d.req.done = true
		default:
			within = append(within, d)
		}
	}
	m.within = within

	windows := m.holdDuring[:0]
	for _, w := range m.holdDuring {
		if now >= w.to {
			continue
		}
		if now >= w.from {
			ok, err := w.req.holds(s)
			if err != nil {
				return false, err
			}
			if !ok {
				m.violate(w.req, now)
				continue
			}
		}
		windows = append(windows, w)
	}
	m.holdDuring = windows

	for _, o := range m.orders {
		if err := o.check(m, s); err != nil {
			return false, err
		}
	}

	return m.hard == before, nil
}

// CheckFinalState checks the at-end constraints and the obligations still
// pending when the trace ends. It returns the verdict over all constraints.
func (m *Monitor) CheckFinalState(s *state.State) (bool, error) {
	if !m.active {
		return true, nil
	}
	now := s.Time()
	for _, o := range m.atEnd {
		ok, err := o.holds(s)
		if err != nil {
			return false, err
		}
		if !ok {
			m.violate(o, now)
		}
	}
	m.atEnd = nil

	for _, o := range m.sometime {
		m.violate(o, now)
	}
	m.sometime = nil

	for _, d := range m.within {
		m.violate(d.req, now)
	}
	m.within = nil

	for _, o := range m.orders {
		o.finish(m, now)
	}
	return m.hard == 0, nil
}
