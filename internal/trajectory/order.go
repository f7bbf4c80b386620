package trajectory

import (
	"fmt"

	"github.com/vinayprograms/planval/internal/ast"
	"github.com/vinayprograms/planval/internal/state"
	"github.com/vinayprograms/planval/internal/term"
)

// order is a precedence order over goals. A node becomes active once all of
// its predecessors are discharged, and is discharged the first time it holds
// while active. A node that holds while inactive breaks the order.
type order struct {
	nodes      []*obligation
	preds      []int
	succs      [][]int
	active     []bool
	discharged []bool
	broken     bool
}

func newOrder(c *ast.Order, f *term.Frame, pref string) (*order, error) {
	n := len(c.Nodes)
	o := &order{
		nodes:      make([]*obligation, n),
		preds:      make([]int, n),
		succs:      make([][]int, n),
		active:     make([]bool, n),
		discharged: make([]bool, n),
	}
	label := ast.Format(c)
	for i, g := range c.Nodes {
		o.nodes[i] = &obligation{kind: "order", label: label, g: g, f: f, pref: pref}
	}
	for _, e := range c.Edges {
		if e[0] < 0 || e[0] >= n || e[1] < 0 || e[1] >= n || e[0] == e[1] {
			return nil, fmt.Errorf("order edge %d -> %d out of range for %d nodes", e[0], e[1], n)
		}
		o.preds[e[1]]++
		o.succs[e[0]] = append(o.succs[e[0]], e[1])
	}
	for i := range o.nodes {
		o.active[i] = o.preds[i] == 0
	}
	return o, nil
}

func (o *order) check(m *Monitor, s *state.State) error {
	if o.broken {
		return nil
	}
	for changed := true; changed; {
		changed = false
		for i, node := range o.nodes {
			if !o.active[i] || o.discharged[i] {
				continue
			}
			ok, err := node.holds(s)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			o.discharged[i] = true
			changed = true
			for _, j := range o.succs[i] {
				o.preds[j]--
				if o.preds[j] == 0 {
					o.active[j] = true
				}
			}
		}
	}
	for i, node := range o.nodes {
		if o.active[i] || o.discharged[i] {
			continue
		}
		ok, err := node.holds(s)
		if err != nil {
			return err
		}
		if ok {
			o.broken = true
			m.violate(node, s.Time())
			return nil
		}
	}
	return nil
}

func (o *order) finish(m *Monitor, now float64) {
	if o.broken {
		return
	}
	for i, node := range o.nodes {
		if !o.discharged[i] {
			o.broken = true
			m.violate(node, now)
			return
		}
	}
}
