package plan

import (
	"errors"
	"fmt"
	"sort"

	"github.com/vinayprograms/planval/internal/ast"
	"github.com/vinayprograms/planval/internal/state"
	"github.com/vinayprograms/planval/internal/term"
)

// ErrBadStep marks a plan step that cannot be grounded against the task.
var ErrBadStep = errors.New("malformed plan step")

// Schedule grounds every plan step and groups the resulting events, together
// with the task's timed literals, into happenings in non-decreasing time
// order. Events closer than the context tolerance share a happening.
func Schedule(task *ast.Task, p *ast.Plan, ctx *state.Context) ([]*Happening, []*Instance, error) {
	var events []*Event
	var insts []*Instance

	for i, st := range p.Steps {
		inst, err := ground(task, st, i, ctx)
		if err != nil {
			return nil, nil, err
		}
		insts = append(insts, inst)
		if inst.Schema.Durative {
			events = append(events,
				&Event{Kind: Start, Inst: inst, time: inst.Start, frame: inst.frame},
				&Event{Kind: End, Inst: inst, time: inst.End(), frame: inst.frame},
			)
			continue
		}
		events = append(events, &Event{Kind: Instant, Inst: inst, time: inst.Start, frame: inst.frame})
	}

	for i := range task.Timed {
		lit := &task.Timed[i]
		events = append(events, &Event{Kind: Timed, Lit: lit, time: lit.Time, frame: term.NewFrame(task.NumVars)})
	}

	sort.SliceStable(events, func(a, b int) bool { return events[a].time < events[b].time })

	tol := ctx.Options.Tolerance
	var out []*Happening
	for _, e := range events {
		if n := len(out); n > 0 && e.time-out[n-1].time <= tol {
			out[n-1].events = append(out[n-1].events, e)
			continue
		}
		out = append(out, &Happening{time: e.time, events: []*Event{e}})
	}
	return out, insts, nil
}

func ground(task *ast.Task, st ast.Step, idx int, ctx *state.Context) (*Instance, error) {
	schema := task.Action(st.Name)
	if schema == nil {
		return nil, fmt.Errorf("line %d: unknown action %q: %w", st.Line, st.Name, ErrBadStep)
	}
	if len(st.Args) != len(schema.Params) {
		return nil, fmt.Errorf("line %d: %s expects %d arguments, got %d: %w",
			st.Line, st.Name, len(schema.Params), len(st.Args), ErrBadStep)
	}

	f := term.NewFrame(task.NumVars)
	args := make([]term.Const, len(st.Args))
	for i, a := range st.Args {
		c := term.Const(a)
		if !ctx.Universe.Has(c) {
			return nil, fmt.Errorf("line %d: unknown object %q in %s: %w", st.Line, a, st.Name, ErrBadStep)
		}
		p := schema.Params[i]
		if !isOfType(ctx.Universe, c, p.Type) {
			return nil, fmt.Errorf("line %d: %s is not a %s in %s: %w", st.Line, a, p.Type, st.Name, ErrBadStep)
		}
		if err := f.Bind(p.Var.ID, c); err != nil {
			return nil, err
		}
		args[i] = c
	}

	inst := &Instance{Schema: schema, Args: args, Start: st.Time, Step: idx, frame: f}
	if schema.Durative {
		if !st.HasDuration {
			return nil, fmt.Errorf("line %d: durative action %s needs a duration: %w", st.Line, st.Name, ErrBadStep)
		}
		inst.Duration = st.Duration
		f.Duration, f.HasDuration = st.Duration, true
	}
	return inst, nil
}

// Universe collects the task's objects. Types are visited in name order and
// objects in declaration order, which fixes quantifier iteration order.
func Universe(task *ast.Task) *term.Universe {
	u := term.NewUniverse()
	types := make([]string, 0, len(task.Objects))
	for typ := range task.Objects {
		types = append(types, typ)
	}
	sort.Strings(types)
	for _, typ := range types {
		for _, o := range task.Objects[typ] {
			u.Add(typ, term.Const(o))
		}
	}
	return u
}

func isOfType(u *term.Universe, c term.Const, typ string) bool {
	for _, o := range u.Of(typ) {
		if o == c {
			return true
		}
	}
	return false
}

// Initialise builds the initial state from the task's init effects.
func Initialise(task *ast.Task, ctx *state.Context) (*state.State, error) {
	s := state.New(ctx)
	f := term.NewFrame(task.NumVars)
	for _, eff := range task.Init {
		switch eff := eff.(type) {
		case *ast.AddEffect:
			p, err := s.GroundProp(eff.Atom, f)
			if err != nil {
				return nil, err
			}
			s.Add(p)
		case *ast.Update:
			id, err := s.GroundFunc(eff.Term, f)
			if err != nil {
				return nil, err
			}
			v, err := s.Eval(eff.Value, f)
			if err != nil {
				return nil, err
			}
			if err := s.Update(id, ast.Assign, v); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: init %s", state.ErrUnsupportedExpression, ast.Format(eff))
		}
	}
	s.ResetChanges()
	return s, nil
}

// Computed evaluates externally computed terms from their defining
// expressions.
type Computed struct {
	defs    map[string]ast.Computed
	numVars int
}

// NewComputed registers the task's computed functions with ctx.
func NewComputed(task *ast.Task, ctx *state.Context) *Computed {
	c := &Computed{defs: make(map[string]ast.Computed), numVars: task.NumVars}
	for _, def := range task.Computed {
		c.defs[def.Sig.Name] = def
		ctx.Terms.MarkExternal(def.Sig.Name)
	}
	ctx.External = c
	return c
}

// Value evaluates the definition of the term's function with its parameters
// bound to the term's arguments.
func (c *Computed) Value(s *state.State, id term.FuncID) (float64, error) {
	atom := s.Context().Terms.FuncAtom(id)
	def, ok := c.defs[atom.Name]
	if !ok {
		return 0, fmt.Errorf("%w: no definition for %s", state.ErrUndefinedTerm, atom)
	}
	if len(def.Sig.Params) != len(atom.Args) {
		return 0, fmt.Errorf("%w: %s expects %d arguments", state.ErrUnsupportedExpression, atom.Name, len(def.Sig.Params))
	}
	f := term.NewFrame(c.numVars)
	for i, p := range def.Sig.Params {
		if err := f.Bind(p.Var.ID, atom.Args[i]); err != nil {
			return 0, err
		}
	}
	return s.Eval(def.Body, f)
}
