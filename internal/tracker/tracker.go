// Package tracker follows a plan's execution and reports which literals
// each happening achieved for the first time, which achievements were later
// consumed and which happenings probably enabled which.
package tracker

import (
	"fmt"
	"io"

	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/planval/internal/state"
	"github.com/vinayprograms/planval/internal/term"
)

// Link is a suspected enabling relation: Enabler first made Literal true
// and Consumer later used it up.
type Link struct {
	Literal  string
	Enabler  string
	Consumer string
	Time     float64
}

func (l Link) String() string {
	return fmt.Sprintf("%s was executed to enable %s (via %s)", l.Enabler, l.Consumer, l.Literal)
}

// Achievement is a literal that is still true at the end of the plan and
// was never consumed.
type Achievement struct {
	Literal  string
	Achiever string
	Consumed bool
}

// Tracker is a state observer. It keeps a snapshot of every state it has
// seen, so it is meant for diagnostics rather than long plans.
type Tracker struct {
	history  []*state.State
	achieved map[term.PropID]string // first-time-true literal -> achiever
	consumed map[term.PropID]string // literal -> consumer
	order    []term.PropID
	links    []Link
	logger   *logging.Logger
	verbose  bool
}

// New starts tracking from the initial state.
func New(initial *state.State, verbose bool) *Tracker {
	return &Tracker{
		history:  []*state.State{initial.Clone()},
		achieved: make(map[term.PropID]string),
		consumed: make(map[term.PropID]string),
		logger:   logging.New().WithComponent("tracker"),
		verbose:  verbose,
	}
}

func describe(h state.Happening) string {
	acts := h.Actions()
	if len(acts) == 1 {
		return acts[0].String()
	}
	s := fmt.Sprintf("happening at %g [", h.Time())
	for i, a := range acts {
		if i > 0 {
			s += ", "
		}
		s += a.String()
	}
	return s + "]"
}

func (t *Tracker) everTrue(p term.PropID) bool {
	for _, s := range t.history {
		if s.Prop(p) {
			return true
		}
	}
	return false
}

// NotifyChanged implements state.Observer.
func (t *Tracker) NotifyChanged(s *state.State, h state.Happening) {
	terms := s.Context().Terms
	name := describe(h)
	for _, p := range s.ChangedProps() {
		lit := terms.PropAtom(p).String()
		if s.Prop(p) {
			if t.everTrue(p) {
				continue
			}
			t.achieved[p] = name
			t.order = append(t.order, p)
			if t.verbose {
				t.logger.Debug("literal true for the first time", map[string]interface{}{"literal": lit, "by": name})
			}
			continue
		}
		achiever, ok := t.achieved[p]
		if !ok {
			continue
		}
		if _, done := t.consumed[p]; done {
			continue
		}
		t.consumed[p] = name
		link := Link{Literal: lit, Enabler: achiever, Consumer: name, Time: h.Time()}
		t.links = append(t.links, link)
		if t.verbose {
			t.logger.Debug("literal consumed", map[string]interface{}{"literal": lit, "link": link.String()})
		}
	}
	t.history = append(t.history, s.Clone())
}

// States returns the snapshots seen so far, starting with the initial state.
func (t *Tracker) States() []*state.State { return t.history }

// Links returns the suspected enabling relations in the order found.
func (t *Tracker) Links() []Link { return t.links }

// FirstAchiever returns the happening that first made the literal true.
func (t *Tracker) FirstAchiever(p term.PropID) (string, bool) {
	a, ok := t.achieved[p]
	return a, ok
}

// Achievements lists literals first achieved during the plan that hold in
// the final state. Unconsumed ones are likely final goals.
func (t *Tracker) Achievements() []Achievement {
	last := t.history[len(t.history)-1]
	terms := last.Context().Terms
	var out []Achievement
	for _, p := range t.order {
		if !last.Prop(p) {
			continue
		}
		_, consumed := t.consumed[p]
		out = append(out, Achievement{
			Literal:  terms.PropAtom(p).String(),
			Achiever: t.achieved[p],
			Consumed: consumed,
		})
	}
	return out
}

// Write prints the final achievements.
func (t *Tracker) Write(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "The final achievements are:"); err != nil {
		return err
	}
	for _, a := range t.Achievements() {
		line := fmt.Sprintf("  %s (by %s)", a.Literal, a.Achiever)
		if !a.Consumed {
			line += " - a final goal?"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
