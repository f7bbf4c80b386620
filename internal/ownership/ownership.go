// Package ownership decides whether the actions of one happening make
// mutually consistent claims on propositions and numeric terms.
//
// A Tracker lives for exactly one happening. Every claim records which
// action holds a proposition or term and for what purpose. Conflicting claims
// by different actions are mutex violations and are reported to the error
// log with the happening's time and a snapshot of the state.
package ownership

import (
	"fmt"

	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/planval/internal/ast"
	"github.com/vinayprograms/planval/internal/errlog"
	"github.com/vinayprograms/planval/internal/state"
	"github.com/vinayprograms/planval/internal/term"
)

// Role is the purpose of a proposition claim.
type Role int

const (
	Pre     Role = iota // read as true
	NPre                // read as false
	PPre                // read under an invariant
	Add                 // added
	Del                 // deleted
	AddNPre             // added after being read
	DelPre              // deleted after being read
)

func (r Role) String() string {
	switch r {
	case Pre:
		return "pre"
	case NPre:
		return "npre"
	case PPre:
		return "ppre"
	case Add:
		return "add"
	case Del:
		return "del"
	case AddNPre:
		return "add-after-read"
	case DelPre:
		return "del-after-read"
	}
	return "unknown"
}

func (r Role) isRead() bool { return r == Pre || r == NPre || r == PPre }

// FuncRole is the purpose of a numeric term claim.
type FuncRole int

const (
	Read FuncRole = iota
	Additive
	Assignment
)

func (r FuncRole) String() string {
	switch r {
	case Read:
		return "read"
	case Additive:
		return "additive"
	case Assignment:
		return "assignment"
	}
	return "unknown"
}

// A nil owner means the claim is shared and no single action can be blamed.
type propClaim struct {
	owner state.Action
	role  Role
}

type funcClaim struct {
	owner state.Action
	role  FuncRole
}

// Tracker holds the claims of one happening.
type Tracker struct {
	at       float64
	state    *state.State
	log      *errlog.Log
	logger   *logging.Logger
	verbose  bool
	props    map[term.PropID]*propClaim
	funcs    map[term.FuncID]*funcClaim
	warnings []string
}

// New creates an empty tracker for the happening at time at. s is the state
// before the happening.
func New(s *state.State, at float64, log *errlog.Log) *Tracker {
	return &Tracker{
		at:      at,
		state:   s,
		log:     log,
		logger:  logging.New().WithComponent("ownership"),
		verbose: s.Context().Options.Verbose,
		props:   make(map[term.PropID]*propClaim),
		funcs:   make(map[term.FuncID]*funcClaim),
	}
}

// Warnings returns the tolerated oddities seen so far, such as an action
// adding and deleting the same literal.
func (t *Tracker) Warnings() []string { return t.warnings }

// PropClaim returns the current claim on p. The owner is nil for shared claims.
func (t *Tracker) PropClaim(p term.PropID) (state.Action, Role, bool) {
	c, ok := t.props[p]
	if !ok {
		return nil, 0, false
	}
	return c.owner, c.role, true
}

// FuncClaim returns the current claim on f. The owner is nil for shared claims.
func (t *Tracker) FuncClaim(f term.FuncID) (state.Action, FuncRole, bool) {
	c, ok := t.funcs[f]
	if !ok {
		return nil, 0, false
	}
	return c.owner, c.role, true
}

func (t *Tracker) warn(msg string, fields map[string]interface{}) {
	t.warnings = append(t.warnings, msg)
	if t.verbose {
		t.logger.Warn(msg, fields)
	}
}

func (t *Tracker) violation(a, other state.Action, what string) {
	if t.verbose {
		fields := map[string]interface{}{"action": a.String(), "time": t.at, "claim": what}
		if other != nil {
			fields["other"] = other.String()
		}
		t.logger.Info("mutex violation", fields)
	}
	t.log.AddMutexViolation(t.at, a, other, t.state)
}

func (t *Tracker) propName(p term.PropID) string {
	return t.state.Context().Terms.PropAtom(p).String()
}

func (t *Tracker) funcName(f term.FuncID) string {
	return t.state.Context().Terms.FuncAtom(f).String()
}

// ClaimAdd claims p for an add by a.
func (t *Tracker) ClaimAdd(a state.Action, p term.PropID) bool {
	c, ok := t.props[p]
	if !ok {
		t.props[p] = &propClaim{owner: a, role: Add}
		return true
	}
	if c.owner != a && c.role != Add {
		t.violation(a, c.owner, "adds "+t.propName(p))
		return false
	}

	switch c.role {
	case PPre:
		t.warn("action adds a precondition literal", map[string]interface{}{"action": a.String(), "prop": t.propName(p)})
		c.role = AddNPre
		return true
	case Pre, NPre:
		c.role = AddNPre
		return true
	case Del:
		t.warn("action adds and deletes the same literal", map[string]interface{}{"action": a.String(), "prop": t.propName(p)})
		return true
	case Add:
		if c.owner == a {
			t.warn("action adds the literal twice", map[string]interface{}{"action": a.String(), "prop": t.propName(p)})
		} else {
			t.warn("two actions add the same literal", map[string]interface{}{"action": a.String(), "other": ownerName(c.owner), "prop": t.propName(p)})
		}
		return true
	default:
		t.violation(a, c.owner, "adds "+t.propName(p))
		return false
	}
}

// ClaimDelete claims p for a delete by a.
func (t *Tracker) ClaimDelete(a state.Action, p term.PropID) bool {
	c, ok := t.props[p]
	if !ok {
		t.props[p] = &propClaim{owner: a, role: Del}
		return true
	}
	if c.owner != a && c.role != Del {
		t.violation(a, c.owner, "deletes "+t.propName(p))
		return false
	}

	switch c.role {
	case NPre:
		t.warn("action deletes a false precondition literal", map[string]interface{}{"action": a.String(), "prop": t.propName(p)})
		c.role = DelPre
		return true
	case PPre, Pre:
		c.role = DelPre
		return true
	case Del, DelPre:
		if c.owner == a {
			t.warn("action deletes the literal twice", map[string]interface{}{"action": a.String(), "prop": t.propName(p)})
		} else {
			t.warn("two actions delete the same literal", map[string]interface{}{"action": a.String(), "other": ownerName(c.owner), "prop": t.propName(p)})
		}
		return true
	case Add, AddNPre:
		t.warn("action adds and deletes the same literal", map[string]interface{}{"action": a.String(), "prop": t.propName(p)})
		return true
	default:
		t.violation(a, c.owner, "deletes "+t.propName(p))
		return false
	}
}

// ClaimRead claims p as read by a with one of the read roles. Reads never
// conflict with reads; a read shared by several actions loses its owner.
// A read of a literal written by another action is a violation.
func (t *Tracker) ClaimRead(a state.Action, p term.PropID, role Role) bool {
	c, ok := t.props[p]
	if !ok {
		t.props[p] = &propClaim{owner: a, role: role}
		return true
	}
	if c.role.isRead() {
		if c.owner != a {
			t.props[p] = &propClaim{owner: nil, role: role}
		}
		return true
	}
	if c.owner != a {
		t.violation(a, c.owner, "requires "+t.propName(p))
		return false
	}
	return true
}

// ClaimExprReads claims every numeric term read by e. A term written by
// another action is a violation. Expression kinds outside the closed set are
// fatal.
func (t *Tracker) ClaimExprReads(a state.Action, e ast.Expr, f *term.Frame) (bool, error) {
	switch e := e.(type) {
	case *ast.Num:
		return true, nil
	case *ast.FuncTerm:
		id, err := t.state.GroundFunc(e, f)
		if err != nil {
			return false, err
		}
		c, ok := t.funcs[id]
		if !ok {
			t.funcs[id] = &funcClaim{owner: a, role: Read}
			return true, nil
		}
		if c.owner == a {
			return true, nil
		}
		if c.role == Read {
			t.funcs[id] = &funcClaim{owner: nil, role: Read}
			return true, nil
		}
		t.violation(a, c.owner, "requires "+t.funcName(id))
		return false, nil
	case *ast.Binary:
		ok, err := t.ClaimExprReads(a, e.L, f)
		if err != nil || !ok {
			return false, err
		}
		return t.ClaimExprReads(a, e.R, f)
	case *ast.Neg:
		return t.ClaimExprReads(a, e.X, f)
	case *ast.TotalTime, *ast.DurationVar, *ast.HashT, *ast.ViolationCount:
		return true, nil
	}
	return false, fmt.Errorf("%w: %T in ownership walk", state.ErrUnrecognisedExpression, e)
}

// ClaimUpdate claims numeric term id for an update by a with operator op.
// The terms read by value are claimed first. Increase and decrease by
// different actions commute; any other pairing with a different action is a
// violation.
func (t *Tracker) ClaimUpdate(a state.Action, id term.FuncID, op ast.UpdateOp, value ast.Expr, f *term.Frame) (bool, error) {
	ok, err := t.ClaimExprReads(a, value, f)
	if err != nil || !ok {
		return false, err
	}

	c, exists := t.funcs[id]
	if !exists {
		role := Assignment
		if op.Additive() {
			role = Additive
		}
		t.funcs[id] = &funcClaim{owner: a, role: role}
		return true, nil
	}

	if c.owner != a {
		if c.role == Additive && op.Additive() {
			c.owner = nil
			return true, nil
		}
		t.violation(a, c.owner, op.String()+" "+t.funcName(id))
		return false, nil
	}

	switch c.role {
	case Read:
		if op.Additive() {
			c.role = Additive
		} else {
			c.role = Assignment
		}
		return true, nil
	case Additive:
		if !op.Additive() {
			t.violation(a, nil, "assigns to and updates "+t.funcName(id))
			return false, nil
		}
		t.warn("action updates the same term twice", map[string]interface{}{"action": a.String(), "term": t.funcName(id)})
		return true, nil
	case Assignment:
		t.violation(a, nil, "assigns twice to "+t.funcName(id))
		return false, nil
	}
	return false, fmt.Errorf("%w: ownership role %d", state.ErrUnrecognisedExpression, c.role)
}

func ownerName(a state.Action) string {
	if a == nil {
		return "shared"
	}
	return a.String()
}
