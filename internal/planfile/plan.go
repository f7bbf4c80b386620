package planfile

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vinayprograms/planval/internal/ast"
)

// LoadPlan reads a plan file. The plan is named after the file.
func LoadPlan(path string) (*ast.Plan, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	p, err := ParsePlan(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return p, nil
}

// ParsePlan parses plan lines of the form
//
//	time: (action arg...) [duration]
//
// The time is optional; a plan without times is sequential and step i
// happens at time i+1. Everything after ';' is a comment.
func ParsePlan(data []byte) (*ast.Plan, error) {
	p := &ast.Plan{}
	timed, untimed := 0, 0

	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.IndexByte(text, ';'); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		st, hasTime, err := parseStep(text, line)
		if err != nil {
			return nil, err
		}
		if hasTime {
			timed++
		} else {
			untimed++
			st.Time = float64(len(p.Steps) + 1)
		}
		if timed > 0 && untimed > 0 {
			return nil, fmt.Errorf("line %d: plan mixes timed and untimed steps", line)
		}
		p.Steps = append(p.Steps, st)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	p.Temporal = timed > 0
	return p, nil
}

func parseStep(text string, line int) (ast.Step, bool, error) {
	st := ast.Step{Line: line}
	open := strings.IndexByte(text, '(')
	if open < 0 {
		return st, false, fmt.Errorf("line %d: expected (action ...), got %q", line, text)
	}

	hasTime := false
	if prefix := strings.TrimSpace(text[:open]); prefix != "" {
		if !strings.HasSuffix(prefix, ":") {
			return st, false, fmt.Errorf("line %d: expected time followed by ':', got %q", line, prefix)
		}
		t, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(prefix, ":")), 64)
		if err != nil {
			return st, false, fmt.Errorf("line %d: invalid time %q", line, prefix)
		}
		if t < 0 {
			return st, false, fmt.Errorf("line %d: negative time %g", line, t)
		}
		st.Time = t
		hasTime = true
	}

	end := strings.IndexByte(text[open:], ')')
	if end < 0 {
		return st, false, fmt.Errorf("line %d: unclosed '('", line)
	}
	end += open
	n, err := ParseSexpr(text[open:end+1], line)
	if err != nil {
		return st, false, err
	}
	if n.Head() == "" {
		return st, false, fmt.Errorf("line %d: expected action name in %s", line, n)
	}
	st.Name = n.Head()
	for _, a := range n.List[1:] {
		if a.IsList {
			return st, false, fmt.Errorf("line %d: nested list %s in plan step", line, a)
		}
		st.Args = append(st.Args, a.String())
	}

	rest := strings.TrimSpace(text[end+1:])
	if rest == "" {
		return st, hasTime, nil
	}
	if !strings.HasPrefix(rest, "[") || !strings.HasSuffix(rest, "]") {
		return st, false, fmt.Errorf("line %d: unexpected %q after step", line, rest)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(rest[1:len(rest)-1]), 64)
	if err != nil {
		return st, false, fmt.Errorf("line %d: invalid duration %q", line, rest)
	}
	if d < 0 {
		return st, false, fmt.Errorf("line %d: negative duration %g", line, d)
	}
	st.Duration, st.HasDuration = d, true
	return st, hasTime, nil
}
