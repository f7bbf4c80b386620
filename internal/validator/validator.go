// Package validator drives the validation of plans against a task: it steps
// the state through each plan's happenings, collects consistency errors and
// trajectory violations, and reports a verdict per plan.
package validator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/planval/internal/ast"
	"github.com/vinayprograms/planval/internal/errlog"
	"github.com/vinayprograms/planval/internal/ownership"
	"github.com/vinayprograms/planval/internal/plan"
	"github.com/vinayprograms/planval/internal/session"
	"github.com/vinayprograms/planval/internal/state"
	"github.com/vinayprograms/planval/internal/term"
	"github.com/vinayprograms/planval/internal/tracker"
	"github.com/vinayprograms/planval/internal/trajectory"
)

// Status is a plan verdict.
type Status string

const (
	StatusValid     Status = "valid"
	StatusInvalid   Status = "invalid"
	StatusUndecided Status = "undecided" // evaluation could not finish
	StatusError     Status = "error"     // internal failure
)

// Options are the immutable settings of a validator.
type Options struct {
	Tolerance      float64
	ContinueAnyway bool
	Verbose        bool
	ErrorReport    bool // keep error log records
	StopOnError    bool // end a plan at its first invalid happening
	Workers        int  // plans validated concurrently by ValidateBatch
}

// DefaultOptions returns the settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{Tolerance: 0.01, ErrorReport: true, StopOnError: true, Workers: 1}
}

func (o Options) stateOptions(p *ast.Plan) state.Options {
	return state.Options{
		Tolerance:      o.Tolerance,
		ContinueAnyway: o.ContinueAnyway,
		Verbose:        o.Verbose,
		Durative:       p.Temporal,
		PlanLength:     len(p.Steps),
	}
}

// Result is the outcome of validating one plan.
type Result struct {
	RunID       string
	Task        string
	Plan        string
	Status      Status
	Value       float64 // plan metric, when HasValue
	HasValue    bool
	Happenings  int // happenings applied
	Conditions  []errlog.Condition
	Violations  []trajectory.Violation
	Preferences map[string]int
	Final       *state.State
	Tracker     *tracker.Tracker
	Session     *session.Session
	Duration    time.Duration
	Err         error
}

// Valid reports whether the plan was accepted.
func (r *Result) Valid() bool { return r.Status == StatusValid }

// Sink receives every finished result, e.g. to export metrics or publish
// verdicts. Sinks are called from the goroutine that validated the plan.
type Sink interface {
	Record(ctx context.Context, r *Result) error
}

// ObserverFactory creates a state observer for one run.
type ObserverFactory func(runID string) state.Observer

// Validator validates plans. It is safe for concurrent use once configured.
type Validator struct {
	opts      Options
	logger    *logging.Logger
	sinks     []Sink
	observers []ObserverFactory
	store     session.Store

	// Callbacks
	OnHappening func(runID string, h *plan.Happening, ok bool)
	OnCondition func(runID string, c errlog.Condition)
}

// New creates a validator.
func New(opts Options) *Validator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Validator{
		opts:   opts,
		logger: logging.New().WithComponent("validator"),
	}
}

// Options returns the validator's settings.
func (v *Validator) Options() Options { return v.opts }

// AddSink registers a result sink.
func (v *Validator) AddSink(s Sink) { v.sinks = append(v.sinks, s) }

// AddObserver registers a factory for per-run state observers.
func (v *Validator) AddObserver(f ObserverFactory) { v.observers = append(v.observers, f) }

// SetSessionStore makes every run's session record persistent.
func (v *Validator) SetSessionStore(s session.Store) { v.store = s }

// run holds the mutable state of one plan's validation.
type run struct {
	v       *Validator
	id      string
	task    *ast.Task
	plan    *ast.Plan
	ctx     *state.Context
	state   *state.State
	log     *errlog.Log
	prefs   *errlog.Preferences
	monitor *trajectory.Monitor
	sess    *session.Session

	active   []*activeInstance
	advanced float64 // time continuous change has been applied up to
	rootSeen bool
	valid    bool
	stopped  bool

	reported   int // conditions already forwarded
	violations int // trajectory violations already forwarded
}

type activeInstance struct {
	start    *plan.Event
	lastGood float64
	failed   bool
}

// Validate checks one plan. Consistency problems make the plan invalid and
// are reported in the result, never as an error. Evaluation failures such
// as undefined terms make it undecided. Only internal failures are returned
// as errors, and the result then carries StatusError.
func (v *Validator) Validate(ctx context.Context, task *ast.Task, p *ast.Plan) (*Result, error) {
	start := time.Now()
	res := &Result{
		RunID:       uuid.NewString(),
		Task:        task.Name,
		Plan:        p.Name,
		Preferences: make(map[string]int),
	}
	res.Session = session.New(res.RunID, task.Name, p.Name)
	res.Session.AddEvent(session.Event{Type: session.EventRunStart, Content: fmt.Sprintf("%d steps", len(p.Steps))})

	ctx, span := v.startPlanSpan(ctx, task.Name, p.Name, res.RunID)
	err := v.guard(func() error { return v.execute(ctx, task, p, res) })
	res.Duration = time.Since(start)

	switch {
	case err == nil:
	case errors.Is(err, plan.ErrBadStep):
		res.Status, res.Err, err = StatusInvalid, err, nil
	case state.IsFatal(err):
		res.Status, res.Err, err = StatusUndecided, err, nil
	default:
		res.Status, res.Err = StatusError, err
	}

	var value *float64
	if res.HasValue {
		value = &res.Value
	}
	res.Session.Finish(string(res.Status), value, res.Err)
	v.endPlanSpan(span, res)

	fields := map[string]interface{}{
		"run":        res.RunID,
		"plan":       res.Plan,
		"status":     string(res.Status),
		"happenings": res.Happenings,
		"conditions": len(res.Conditions),
		"violations": len(res.Violations),
		"duration":   res.Duration.String(),
	}
	if res.Err != nil {
		fields["error"] = res.Err.Error()
	}
	if res.Status == StatusError {
		v.logger.Error("plan validation failed", fields)
	} else {
		v.logger.Info("plan validated", fields)
	}

	if v.store != nil {
		if serr := v.store.Save(res.Session); serr != nil {
			v.logger.Warn("failed to save run trace", map[string]interface{}{"run": res.RunID, "error": serr.Error()})
		}
	}
	for _, s := range v.sinks {
		if serr := s.Record(ctx, res); serr != nil {
			v.logger.Warn("result sink failed", map[string]interface{}{"run": res.RunID, "error": serr.Error()})
		}
	}
	return res, err
}

func (v *Validator) execute(ctx context.Context, task *ast.Task, p *ast.Plan, res *Result) error {
	sctx := state.NewContext(plan.Universe(task), v.opts.stateOptions(p))
	prefs := errlog.NewPreferences()
	sctx.Prefs = prefs
	if len(task.Computed) > 0 {
		plan.NewComputed(task, sctx)
	}

	s, err := plan.Initialise(task, sctx)
	if err != nil {
		return err
	}
	res.Final = s

	hs, _, err := plan.Schedule(task, p, sctx)
	if err != nil {
		return err
	}
	monitor, err := trajectory.New(task.Constraints, sctx.Universe, prefs)
	if err != nil {
		return err
	}

	r := &run{
		v:       v,
		id:      res.RunID,
		task:    task,
		plan:    p,
		ctx:     sctx,
		state:   s,
		log:     errlog.New(v.opts.ErrorReport),
		prefs:   prefs,
		monitor: monitor,
		sess:    res.Session,
		valid:   true,
	}
	r.advanced = s.Time()
	defer r.collect(res)

	res.Tracker = tracker.New(s, v.opts.Verbose)
	s.AddObserver(res.Tracker)
	s.AddObserver(res.Session)
	for _, f := range v.observers {
		s.AddObserver(f(res.RunID))
	}

	ok, err := monitor.CheckAtState(s)
	if err != nil {
		return err
	}
	if !ok {
		r.valid = false
	}
	r.flush()

	for _, h := range hs {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := r.step(ctx, h)
		if err != nil {
			return err
		}
		res.Happenings++
		if !ok {
			r.valid = false
			if v.opts.StopOnError {
				r.stopped = true
				break
			}
		}
	}

	if !r.stopped {
		if err := r.finish(res); err != nil {
			return err
		}
	}
	if r.valid {
		res.Status = StatusValid
	} else {
		res.Status = StatusInvalid
	}
	return nil
}

// step validates and applies one happening. It reports false if the
// happening broke anything.
func (r *run) step(ctx context.Context, h *plan.Happening) (bool, error) {
	_, span := r.v.startHappeningSpan(ctx, h)
	ok, err := r.apply(h)
	r.v.endHappeningSpan(span, ok, err)
	if err == nil {
		r.flush()
		if r.v.OnHappening != nil {
			r.v.OnHappening(r.id, h, ok)
		}
	}
	return ok, err
}

func (r *run) apply(h *plan.Happening) (bool, error) {
	s := r.state
	ok := true

	// Continuous change of running actions up to this happening. A blocked
	// happening leaves the state clock behind, so the change already
	// applied is tracked separately.
	if dt := h.Time() - r.advanced; dt > 0 {
		for _, ai := range r.active {
			if err := ai.start.Inst.AdvanceContinuous(s, dt); err != nil {
				return false, err
			}
		}
		r.advanced = h.Time()
	}

	owners := ownership.New(s, h.Time(), r.log)
	for _, e := range h.Events() {
		claimed, err := owners.ClaimEvent(e)
		if err != nil {
			return false, err
		}
		if !claimed {
			ok = false
		}
	}
	if !ok && !r.ctx.Options.ContinueAnyway {
		r.sess.Blocked(h, "mutex violation")
		return false, nil
	}

	for _, e := range h.Events() {
		magnitude, within, err := e.DurationError(s)
		if err != nil {
			return false, err
		}
		if !within {
			r.log.AddDurationCondition(h.Time(), e, s, magnitude)
			ok = false
		}
	}

	failing, err := h.Failing(s)
	if err != nil {
		return false, err
	}
	for _, e := range failing {
		r.log.AddPrecondition(h.Time(), e, s)
	}

	progressed, err := s.Progress(h)
	if err != nil {
		return false, err
	}
	if !progressed {
		ok = false
		r.sess.Blocked(h, fmt.Sprintf("%d unsatisfied conditions", len(failing)))
		if !r.ctx.Options.ContinueAnyway {
			return false, nil
		}
	}

	held, err := r.checkInvariants(h)
	if err != nil {
		return false, err
	}
	if !held {
		ok = false
	}

	held, err = r.monitor.CheckAtState(s)
	if err != nil {
		return false, err
	}
	return ok && held, nil
}

// checkInvariants checks the over-all conditions of the durative instances
// running through h. Instances ending at h are not checked; instances
// starting at h join the running set afterwards. Each instance reports at
// most one failure, and the first in the plan is marked as the root cause.
func (r *run) checkInvariants(h *plan.Happening) (bool, error) {
	now := h.Time()
	ended := make(map[*plan.Instance]bool)
	for _, e := range h.Events() {
		if e.Kind == plan.End {
			ended[e.Inst] = true
		}
	}

	kept := r.active[:0]
	for _, ai := range r.active {
		if !ended[ai.start.Inst] {
			kept = append(kept, ai)
		}
	}
	r.active = kept

	ok := true
	for _, ai := range r.active {
		inst := ai.start.Inst
		if inst.Schema.OverAll == nil || ai.failed {
			continue
		}
		holds, err := r.state.Holds(inst.Schema.OverAll, inst.Frame())
		if err != nil {
			return false, err
		}
		if holds {
			ai.lastGood = now
			continue
		}
		ai.failed = true
		ok = false
		sat := []errlog.Interval{{From: inst.Start, To: ai.lastGood}}
		r.log.AddInvariant(inst.Start, inst.End(), sat, ai.start, r.state, !r.rootSeen)
		r.rootSeen = true
	}

	for _, e := range h.Events() {
		if e.Kind == plan.Start && !ended[e.Inst] {
			r.active = append(r.active, &activeInstance{start: e, lastGood: now})
		}
	}
	return ok, nil
}

// conjuncts flattens top-level conjunctions.
func conjuncts(g ast.Goal) []ast.Goal {
	if and, ok := g.(*ast.And); ok {
		var out []ast.Goal
		for _, sub := range and.Goals {
			out = append(out, conjuncts(sub)...)
		}
		return out
	}
	return []ast.Goal{g}
}

// tallyPreferences counts a violation for every goal preference whose body
// is false, once per binding of enclosing universal quantifiers.
func (r *run) tallyPreferences(g ast.Goal, f *term.Frame) error {
	switch g := g.(type) {
	case *ast.And:
		for _, sub := range g.Goals {
			if err := r.tallyPreferences(sub, f); err != nil {
				return err
			}
		}
	case *ast.Forall:
		return state.ForEachBinding(r.ctx.Universe, g.Params, f, func(b *term.Frame) (bool, error) {
			return true, r.tallyPreferences(g.Body, b)
		})
	case *ast.Preference:
		ok, err := r.state.Holds(g.Body, f)
		if err != nil {
			return err
		}
		if !ok {
			r.prefs.Violate(g.Name)
		}
	}
	return nil
}

// finish checks the goal and the end-of-trace constraints and evaluates the
// plan metric.
func (r *run) finish(res *Result) error {
	s := r.state
	f := term.NewFrame(r.task.NumVars)

	goalOK := true
	for _, g := range conjuncts(r.task.Goal) {
		ok, err := s.Holds(g, f)
		if err != nil {
			return err
		}
		if !ok {
			goalOK = false
			r.log.AddGoal(ast.Format(g), s)
		}
	}
	if !goalOK {
		r.valid = false
	}
	if err := r.tallyPreferences(r.task.Goal, f); err != nil {
		return err
	}

	ok, err := r.monitor.CheckFinalState(s)
	if err != nil {
		return err
	}
	if !ok {
		r.valid = false
	}
	r.flush()
	r.sess.AddEvent(session.Event{Type: session.EventGoal, Time: s.Time(), Content: ast.Format(r.task.Goal), Success: &goalOK})

	if r.task.Metric != nil {
		v, err := s.Eval(r.task.Metric.Expr, f)
		if err != nil {
			return err
		}
		res.Value, res.HasValue = v, true
	}
	return nil
}

// flush forwards conditions and violations found since the last call to
// the session record and the callbacks.
func (r *run) flush() {
	conds := r.log.Conditions()
	for _, c := range conds[r.reported:] {
		r.sess.AddEvent(session.Event{
			Type:    session.EventCondition,
			Time:    c.Time(),
			Content: c.String(),
			Meta:    &session.EventMeta{Kind: string(c.Kind())},
		})
		if r.v.OnCondition != nil {
			r.v.OnCondition(r.id, c)
		}
	}
	r.reported = len(conds)

	vs := r.monitor.Violations()
	for _, vi := range vs[r.violations:] {
		r.sess.AddEvent(session.Event{
			Type:    session.EventViolation,
			Time:    vi.Time,
			Content: vi.String(),
			Meta:    &session.EventMeta{Kind: vi.Kind, Preference: vi.Preference},
		})
	}
	r.violations = len(vs)
}

// collect copies the run's findings into the result.
func (r *run) collect(res *Result) {
	res.Conditions = r.log.Conditions()
	res.Violations = r.monitor.Violations()
	for _, name := range r.prefs.Names() {
		res.Preferences[name] = r.prefs.Violations(name)
	}
	res.Final = r.state
}

// guard turns a panic inside a run into an internal error so that one plan
// cannot take down a batch.
func (v *Validator) guard(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("internal error: %v", p)
		}
	}()
	return fn()
}

// ValidateBatch validates every plan independently against the same task.
// Results are in plan order; a failing plan never stops the others.
func (v *Validator) ValidateBatch(ctx context.Context, task *ast.Task, plans []*ast.Plan) []*Result {
	results := make([]*Result, len(plans))
	sem := make(chan struct{}, v.opts.Workers)
	var wg sync.WaitGroup
	for i, p := range plans {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, p *ast.Plan) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i], _ = v.Validate(ctx, task, p)
		}(i, p)
	}
	wg.Wait()
	return results
}
