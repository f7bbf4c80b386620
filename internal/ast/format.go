package ast

import (
	"strconv"
	"strings"

	"github.com/vinayprograms/planval/internal/term"
)

// Format renders an expression, goal, effect or constraint as an
// s-expression.
func Format(n any) string {
	var b strings.Builder
	format(&b, n)
	return b.String()
}

func num(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func writeApp(b *strings.Builder, name string, args []term.Arg) {
	b.WriteByte('(')
	b.WriteString(name)
	for _, a := range args {
		b.WriteByte(' ')
		b.WriteString(a.String())
	}
	b.WriteByte(')')
}

func writeParams(b *strings.Builder, ps []Param) {
	b.WriteByte('(')
	for i, p := range ps {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p.Var.Name)
		if p.Type != "" {
			b.WriteString(" - ")
			b.WriteString(p.Type)
		}
	}
	b.WriteByte(')')
}

func writeList(b *strings.Builder, head string, items ...any) {
	b.WriteByte('(')
	b.WriteString(head)
	for _, it := range items {
		b.WriteByte(' ')
		if s, ok := it.(string); ok {
			b.WriteString(s)
			continue
		}
		format(b, it)
	}
	b.WriteByte(')')
}

func format(b *strings.Builder, n any) {
	switch n := n.(type) {
	case nil:
		b.WriteString("()")
	case *Num:
		b.WriteString(num(n.Value))
	case *Binary:
		writeList(b, n.Op.String(), n.L, n.R)
	case *Neg:
		writeList(b, "-", n.X)
	case *FuncTerm:
		writeApp(b, n.Name, n.Args)
	case *TotalTime:
		b.WriteString("(total-time)")
	case *DurationVar:
		b.WriteString("?duration")
	case *HashT:
		b.WriteString("#t")
	case *ViolationCount:
		writeList(b, "is-violated", n.Name)
	case *Atom:
		writeApp(b, n.Name, n.Args)
	case *True:
		b.WriteString("(and)")
	case *Not:
		writeList(b, "not", n.G)
	case *And:
		writeList(b, "and", goals(n.Goals)...)
	case *Or:
		writeList(b, "or", goals(n.Goals)...)
	case *Imply:
		writeList(b, "imply", n.If, n.Then)
	case *Comparison:
		writeList(b, n.Op.String(), n.L, n.R)
	case *Forall:
		b.WriteString("(forall ")
		writeParams(b, n.Params)
		b.WriteByte(' ')
		format(b, n.Body)
		b.WriteByte(')')
	case *Exists:
		b.WriteString("(exists ")
		writeParams(b, n.Params)
		b.WriteByte(' ')
		format(b, n.Body)
		b.WriteByte(')')
	case *Preference:
		writeList(b, "preference", n.Name, n.Body)
	case *AddEffect:
		format(b, n.Atom)
	case *DelEffect:
		writeList(b, "not", n.Atom)
	case *Update:
		writeList(b, n.Op.String(), n.Term, n.Value)
	case *AndEffect:
		items := make([]any, len(n.Effects))
		for i, e := range n.Effects {
			items[i] = e
		}
		writeList(b, "and", items...)
	case *ForallEffect:
		b.WriteString("(forall ")
		writeParams(b, n.Params)
		b.WriteByte(' ')
		format(b, n.Body)
		b.WriteByte(')')
	case *When:
		writeList(b, "when", n.Cond, n.Body)
	case *Always:
		writeList(b, "always", n.G)
	case *Sometime:
		writeList(b, "sometime", n.G)
	case *AtMostOnce:
		writeList(b, "at-most-once", n.G)
	case *Never:
		writeList(b, "never", n.G)
	case *AtEnd:
		writeList(b, "at end", n.G)
	case *Within:
		writeList(b, "within", num(n.Deadline), n.G)
	case *SometimeAfter:
		writeList(b, "sometime-after", n.Trigger, n.Req)
	case *SometimeBefore:
		writeList(b, "sometime-before", n.Trigger, n.Req)
	case *AlwaysWithin:
		writeList(b, "always-within", num(n.Deadline), n.Trigger, n.Req)
	case *HoldDuring:
		writeList(b, "hold-during", num(n.From), num(n.To), n.G)
	case *HoldAfter:
		writeList(b, "hold-after", num(n.Deadline), n.G)
	case *Order:
		writeList(b, "order", goals(n.Nodes)...)
	case *AndConstraint:
		items := make([]any, len(n.Constraints))
		for i, c := range n.Constraints {
			items[i] = c
		}
		writeList(b, "and", items...)
	case *ForallConstraint:
		b.WriteString("(forall ")
		writeParams(b, n.Params)
		b.WriteByte(' ')
		format(b, n.Body)
		b.WriteByte(')')
	case *PrefConstraint:
		writeList(b, "preference", n.Name, n.C)
	default:
		b.WriteString("<?>")
	}
}

func goals(gs []Goal) []any {
	out := make([]any, len(gs))
	for i, g := range gs {
		out[i] = g
	}
	return out
}
