// Package term provides canonical identities for ground propositions and
// numeric terms, the object universe, and the variable binding frame.
package term

import (
	"strings"
)

// Const is a constant symbol. Constants evaluate to themselves.
type Const string

// Var is a variable symbol. ID is the frame slot assigned by a Symbols table.
type Var struct {
	Name string
	ID   int
}

// Arg is a term argument: either a Const or a Var.
type Arg interface {
	arg()
	String() string
}

func (Const) arg() {}
func (Var) arg()   {}

func (c Const) String() string { return string(c) }
func (v Var) String() string   { return v.Name }

// PropID is the handle of an interned ground proposition.
type PropID int32

// FuncID is the handle of an interned ground numeric term.
type FuncID int32

// Atom is a symbol applied to constant arguments.
type Atom struct {
	Name string
	Args []Const
}

func (a Atom) String() string {
	var b strings.Builder
	b.WriteByte('(')
	b.WriteString(a.Name)
	for _, c := range a.Args {
		b.WriteByte(' ')
		b.WriteString(string(c))
	}
	b.WriteByte(')')
	return b.String()
}

func key(name string, args []Const) string {
	var b strings.Builder
	b.WriteString(name)
	for _, c := range args {
		b.WriteByte(0)
		b.WriteString(string(c))
	}
	return b.String()
}

// Table interns ground atoms. Handles are indices into per-kind arenas, so
// equal atoms always share one handle and comparisons never look at structure.
// A Table belongs to one validation run and is not safe for concurrent use.
type Table struct {
	props    []Atom
	propIdx  map[string]PropID
	funcs    []Atom
	funcIdx  map[string]FuncID
	external map[string]bool
}

// NewTable creates an empty interning table.
func NewTable() *Table {
	return &Table{
		propIdx:  make(map[string]PropID),
		funcIdx:  make(map[string]FuncID),
		external: make(map[string]bool),
	}
}

// Prop returns the handle for the ground proposition, creating it on first sight.
func (t *Table) Prop(name string, args []Const) PropID {
	k := key(name, args)
	if id, ok := t.propIdx[k]; ok {
		return id
	}
	id := PropID(len(t.props))
	t.props = append(t.props, Atom{Name: name, Args: append([]Const(nil), args...)})
	t.propIdx[k] = id
	return id
}

// LookupProp returns the handle of an already interned proposition.
func (t *Table) LookupProp(name string, args []Const) (PropID, bool) {
	id, ok := t.propIdx[key(name, args)]
	return id, ok
}

// Func returns the handle for the ground numeric term, creating it on first sight.
func (t *Table) Func(name string, args []Const) FuncID {
	k := key(name, args)
	if id, ok := t.funcIdx[k]; ok {
		return id
	}
	id := FuncID(len(t.funcs))
	t.funcs = append(t.funcs, Atom{Name: name, Args: append([]Const(nil), args...)})
	t.funcIdx[k] = id
	return id
}

// PropAtom returns the atom behind a proposition handle.
func (t *Table) PropAtom(id PropID) Atom { return t.props[id] }

// FuncAtom returns the atom behind a numeric term handle.
func (t *Table) FuncAtom(id FuncID) Atom { return t.funcs[id] }

// NumProps reports how many propositions have been interned.
func (t *Table) NumProps() int { return len(t.props) }

// NumFuncs reports how many numeric terms have been interned.
func (t *Table) NumFuncs() int { return len(t.funcs) }

// MarkExternal flags every term of the function symbol as externally computed.
func (t *Table) MarkExternal(fn string) { t.external[fn] = true }

// IsExternal reports whether the term's value comes from an external provider.
func (t *Table) IsExternal(id FuncID) bool { return t.external[t.funcs[id].Name] }

// Symbols assigns frame slots to variable names. Each distinct name gets one
// id for the lifetime of the table.
type Symbols struct {
	ids   map[string]int
	names []string
}

// NewSymbols creates an empty variable table.
func NewSymbols() *Symbols {
	return &Symbols{ids: make(map[string]int)}
}

// Var returns the variable for name, assigning the next id on first use.
func (s *Symbols) Var(name string) Var {
	if id, ok := s.ids[name]; ok {
		return Var{Name: name, ID: id}
	}
	id := len(s.names)
	s.ids[name] = id
	s.names = append(s.names, name)
	return Var{Name: name, ID: id}
}

// Len reports how many variables have been assigned.
func (s *Symbols) Len() int { return len(s.names) }
