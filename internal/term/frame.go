package term

import (
	"errors"
	"fmt"
)

// Internal consistency errors. These indicate a mismatch between a frame and
// the variable table that built it, never a problem with the plan.
var (
	ErrFrameIndex = errors.New("binding frame index out of range")
	ErrUnbound    = errors.New("variable not bound in frame")
)

// IsInternal reports whether err is a binding frame consistency error.
func IsInternal(err error) bool {
	return errors.Is(err, ErrFrameIndex) || errors.Is(err, ErrUnbound)
}

// Frame maps variable ids to bound constants.
type Frame struct {
	slots []Const

	// Duration is the value of ?duration in the scope of a durative action.
	Duration    float64
	HasDuration bool
}

// NewFrame creates a frame with n empty slots.
func NewFrame(n int) *Frame {
	return &Frame{slots: make([]Const, n)}
}

// Len reports the number of slots.
func (f *Frame) Len() int { return len(f.slots) }

// Bind binds the variable id to c.
func (f *Frame) Bind(id int, c Const) error {
	if id < 0 || id >= len(f.slots) {
		return fmt.Errorf("bind slot %d of %d: %w", id, len(f.slots), ErrFrameIndex)
	}
	f.slots[id] = c
	return nil
}

// Lookup resolves an argument. Constants resolve to themselves.
func (f *Frame) Lookup(a Arg) (Const, error) {
	switch a := a.(type) {
	case Const:
		return a, nil
	case Var:
		if f == nil || a.ID < 0 || a.ID >= len(f.slots) {
			n := 0
			if f != nil {
				n = len(f.slots)
			}
			return "", fmt.Errorf("lookup %s (slot %d of %d): %w", a.Name, a.ID, n, ErrFrameIndex)
		}
		c := f.slots[a.ID]
		if c == "" {
			return "", fmt.Errorf("lookup %s: %w", a.Name, ErrUnbound)
		}
		return c, nil
	default:
		return "", fmt.Errorf("lookup %v: %w", a, ErrFrameIndex)
	}
}

// Ground resolves every argument through the frame.
func (f *Frame) Ground(args []Arg) ([]Const, error) {
	out := make([]Const, len(args))
	for i, a := range args {
		c, err := f.Lookup(a)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// Extend grows the frame by n trailing slots. Existing bindings are kept.
func (f *Frame) Extend(n int) {
	if n > 0 {
		f.slots = append(f.slots, make([]Const, n)...)
	}
}

// Clone returns an independent copy for a nested quantifier scope.
func (f *Frame) Clone() *Frame {
	c := *f
	c.slots = append([]Const(nil), f.slots...)
	return &c
}

// Universe lists the objects of a task by type.
type Universe struct {
	byType map[string][]Const
	all    []Const
	seen   map[Const]bool
}

// NewUniverse creates an empty universe.
func NewUniverse() *Universe {
	return &Universe{byType: make(map[string][]Const), seen: make(map[Const]bool)}
}

// Add registers c as an object of type typ.
func (u *Universe) Add(typ string, c Const) {
	u.byType[typ] = append(u.byType[typ], c)
	if !u.seen[c] {
		u.seen[c] = true
		u.all = append(u.all, c)
	}
}

// Of returns the objects of type typ. "object" and the empty type name mean
// every object.
func (u *Universe) Of(typ string) []Const {
	if typ == "" || typ == "object" {
		return u.all
	}
	return u.byType[typ]
}

// Has reports whether c is a declared object.
func (u *Universe) Has(c Const) bool { return u.seen[c] }

// HasType reports whether typ is a declared type.
func (u *Universe) HasType(typ string) bool {
	if typ == "" || typ == "object" {
		return true
	}
	_, ok := u.byType[typ]
	return ok
}
