// Package planfile loads planning tasks and plans from files.
//
// A task is a YAML document whose conditions, effects and expressions are
// written as s-expressions. A plan is a line-oriented list of timed action
// occurrences.
package planfile

import (
	"fmt"
	"os"
	"sort"

	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/planval/internal/ast"
	"gopkg.in/yaml.v3"
)

// Sexpr is an s-expression string inside a YAML document, remembered with
// the line it starts on.
type Sexpr struct {
	Text string
	Line int
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Sexpr) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected an s-expression string", value.Line)
	}
	s.Text = value.Value
	s.Line = value.Line
	if value.Style&(yaml.LiteralStyle|yaml.FoldedStyle) != 0 {
		s.Line++
	}
	return nil
}

// Empty reports whether nothing was written.
func (s Sexpr) Empty() bool { return s.Text == "" }

func (s Sexpr) parse() (*Node, error) {
	return ParseSexpr(s.Text, s.Line)
}

type conditionDef struct {
	Start   Sexpr `yaml:"start"`
	Overall Sexpr `yaml:"overall"`
	End     Sexpr `yaml:"end"`
}

// effectDef is either a single effect or, for durative actions, a mapping
// of start, end and continuous effects.
type effectDef struct {
	Plain      Sexpr
	Start      Sexpr `yaml:"start"`
	End        Sexpr `yaml:"end"`
	Continuous Sexpr `yaml:"continuous"`
	durative   bool
}

func (e *effectDef) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&e.Plain)
	}
	type plain struct {
		Start      Sexpr `yaml:"start"`
		End        Sexpr `yaml:"end"`
		Continuous Sexpr `yaml:"continuous"`
	}
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	e.Start, e.End, e.Continuous = p.Start, p.End, p.Continuous
	e.durative = true
	return nil
}

type actionDef struct {
	Name         string        `yaml:"name"`
	Parameters   Sexpr         `yaml:"parameters"`
	Precondition Sexpr         `yaml:"precondition"`
	Duration     Sexpr         `yaml:"duration"`
	Condition    *conditionDef `yaml:"condition"`
	Effect       effectDef     `yaml:"effect"`
	line         int
}

func (a *actionDef) UnmarshalYAML(value *yaml.Node) error {
	type plain actionDef
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*a = actionDef(p)
	a.line = value.Line
	return nil
}

func (a *actionDef) durative() bool {
	return !a.Duration.Empty() || a.Condition != nil || a.Effect.durative
}

type timedDef struct {
	At     float64 `yaml:"at"`
	Effect Sexpr   `yaml:"effect"`
}

type taskFile struct {
	Name        string              `yaml:"name"`
	Types       []string            `yaml:"types"`
	Objects     map[string][]string `yaml:"objects"`
	Predicates  []Sexpr             `yaml:"predicates"`
	Functions   []Sexpr             `yaml:"functions"`
	Computed    map[string]Sexpr    `yaml:"computed"`
	Actions     []actionDef         `yaml:"actions"`
	Init        []Sexpr             `yaml:"init"`
	Timed       []timedDef          `yaml:"timed"`
	Goal        Sexpr               `yaml:"goal"`
	Constraints Sexpr               `yaml:"constraints"`
	Metric      Sexpr               `yaml:"metric"`
}

// LoadTask reads, parses and validates a task file.
func LoadTask(path string) (*ast.Task, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}
	task, err := ParseTask(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := Validate(task); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logging.New().WithComponent("planfile").Debug("task loaded", map[string]interface{}{
		"path":    path,
		"task":    task.Name,
		"actions": len(task.Actions),
	})
	return task, nil
}

// ParseTask parses a YAML task document. It does not validate it.
func ParseTask(data []byte) (*ast.Task, error) {
	var tf taskFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("failed to parse task: %w", err)
	}

	b := newBuilder()
	task := &ast.Task{
		Name:    tf.Name,
		Types:   tf.Types,
		Objects: tf.Objects,
	}
	if task.Objects == nil {
		task.Objects = make(map[string][]string)
	}

	for _, s := range tf.Predicates {
		sig, err := parseSignature(b, s)
		if err != nil {
			return nil, err
		}
		task.Predicates = append(task.Predicates, sig)
	}
	for _, s := range tf.Functions {
		sig, err := parseSignature(b, s)
		if err != nil {
			return nil, err
		}
		task.Functions = append(task.Functions, sig)
	}

	// Map order is random; keep computed definitions stable.
	keys := make([]string, 0, len(tf.Computed))
	for k := range tf.Computed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		body := tf.Computed[k]
		sig, err := parseSignature(b, Sexpr{Text: k, Line: body.Line})
		if err != nil {
			return nil, err
		}
		n, err := body.parse()
		if err != nil {
			return nil, err
		}
		e, err := b.expr(n)
		if err != nil {
			return nil, err
		}
		task.Computed = append(task.Computed, ast.Computed{Sig: sig, Body: e})
	}

	for i := range tf.Actions {
		a, err := buildAction(b, &tf.Actions[i])
		if err != nil {
			return nil, err
		}
		task.Actions = append(task.Actions, a)
	}

	for _, s := range tf.Init {
		n, err := s.parse()
		if err != nil {
			return nil, err
		}
		es, err := b.initEffects(n)
		if err != nil {
			return nil, err
		}
		task.Init = append(task.Init, es...)
	}

	for _, td := range tf.Timed {
		n, err := td.Effect.parse()
		if err != nil {
			return nil, err
		}
		e, err := b.effect(n)
		if err != nil {
			return nil, err
		}
		task.Timed = append(task.Timed, ast.TimedLiteral{Time: td.At, Effect: e})
	}

	task.Goal = &ast.True{}
	if !tf.Goal.Empty() {
		n, err := tf.Goal.parse()
		if err != nil {
			return nil, err
		}
		if task.Goal, err = b.goal(n); err != nil {
			return nil, err
		}
	}
	if !tf.Constraints.Empty() {
		n, err := tf.Constraints.parse()
		if err != nil {
			return nil, err
		}
		if task.Constraints, err = b.constraint(n); err != nil {
			return nil, err
		}
	}
	if !tf.Metric.Empty() {
		n, err := tf.Metric.parse()
		if err != nil {
			return nil, err
		}
		if task.Metric, err = b.metric(n); err != nil {
			return nil, err
		}
	}

	task.NumVars = b.syms.Len()
	return task, nil
}

func parseSignature(b *builder, s Sexpr) (ast.Signature, error) {
	n, err := s.parse()
	if err != nil {
		return ast.Signature{}, err
	}
	return b.signature(n)
}

// optional parses s when present and hands the node to fn.
func optional(s Sexpr, fn func(*Node) error) error {
	if s.Empty() {
		return nil
	}
	n, err := s.parse()
	if err != nil {
		return err
	}
	return fn(n)
}

func buildAction(b *builder, def *actionDef) (*ast.Action, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("line %d: action without a name", def.line)
	}
	a := &ast.Action{Name: def.Name, Line: def.line, Durative: def.durative()}

	err := optional(def.Parameters, func(n *Node) (err error) {
		a.Params, err = b.params(n)
		return err
	})
	if err != nil {
		return nil, err
	}

	if !a.Durative {
		if err := optional(def.Precondition, func(n *Node) (err error) {
			a.Pre, err = b.goal(n)
			return err
		}); err != nil {
			return nil, err
		}
		if err := optional(def.Effect.Plain, func(n *Node) (err error) {
			a.Effect, err = b.effect(n)
			return err
		}); err != nil {
			return nil, err
		}
		return a, nil
	}

	if !def.Precondition.Empty() {
		return nil, fmt.Errorf("line %d: durative action %s uses condition, not precondition", def.line, def.Name)
	}
	if !def.Effect.Plain.Empty() {
		return nil, fmt.Errorf("line %d: durative action %s needs start/end/continuous effects", def.line, def.Name)
	}
	if def.Duration.Empty() {
		return nil, fmt.Errorf("line %d: durative action %s has no duration", def.line, def.Name)
	}
	if err := optional(def.Duration, func(n *Node) (err error) {
		a.Duration, err = b.durations(n)
		return err
	}); err != nil {
		return nil, err
	}

	if c := def.Condition; c != nil {
		for _, part := range []struct {
			s   Sexpr
			dst *ast.Goal
		}{{c.Start, &a.AtStart}, {c.Overall, &a.OverAll}, {c.End, &a.AtEnd}} {
			dst := part.dst
			if err := optional(part.s, func(n *Node) (err error) {
				*dst, err = b.goal(n)
				return err
			}); err != nil {
				return nil, err
			}
		}
	}

	if err := optional(def.Effect.Start, func(n *Node) (err error) {
		a.StartEffect, err = b.effect(n)
		return err
	}); err != nil {
		return nil, err
	}
	if err := optional(def.Effect.End, func(n *Node) (err error) {
		a.EndEffect, err = b.effect(n)
		return err
	}); err != nil {
		return nil, err
	}
	if err := optional(def.Effect.Continuous, func(n *Node) (err error) {
		a.Continuous, err = b.continuous(n)
		return err
	}); err != nil {
		return nil, err
	}
	return a, nil
}
