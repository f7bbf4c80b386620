package replay

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/vinayprograms/planval/internal/session"
)

// MultiReplayer handles several trace files, e.g. every plan of a batch.
type MultiReplayer struct {
	output    io.Writer
	verbosity int
	opts      []ReplayerOption
}

// NewMulti creates a new MultiReplayer.
func NewMulti(output io.Writer, verbosity int, opts ...ReplayerOption) *MultiReplayer {
	return &MultiReplayer{
		output:    output,
		verbosity: verbosity,
		opts:      opts,
	}
}

// traceInfo holds a parsed trace with its source.
type traceInfo struct {
	Session *session.Session
	Source  string
}

// ExpandPaths resolves glob patterns. Paths without matches are kept so
// that loading reports them.
func ExpandPaths(patterns []string) ([]string, error) {
	var out []string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		if len(matches) == 0 {
			out = append(out, p)
			continue
		}
		out = append(out, matches...)
	}
	return out, nil
}

// ReplayFiles outputs every trace, oldest first.
func (m *MultiReplayer) ReplayFiles(paths []string) error {
	traces, err := m.loadTraces(paths)
	if err != nil {
		return err
	}

	r := New(m.output, m.verbosity, m.opts...)
	for i, info := range traces {
		if len(traces) > 1 {
			m.printTraceHeader(info, i+1, len(traces))
		}
		if err := r.Replay(info.Session); err != nil {
			return fmt.Errorf("failed to replay %s: %w", info.Source, err)
		}
		if m.verbosity >= 1 {
			PrintStats(m.output, ComputeStats(info.Session))
		}
	}
	if len(traces) > 1 {
		m.printSummary(traces)
	}
	return nil
}

// loadTraces loads and parses all trace files.
func (m *MultiReplayer) loadTraces(paths []string) ([]traceInfo, error) {
	var traces []traceInfo
	for _, path := range paths {
		sess, err := session.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		traces = append(traces, traceInfo{Session: sess, Source: path})
	}

	sort.SliceStable(traces, func(i, j int) bool {
		return traces[i].Session.CreatedAt.Before(traces[j].Session.CreatedAt)
	})
	return traces, nil
}

// Trace header styles
var (
	traceHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("6")) // Cyan background

	traceDividerStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("6")) // Cyan
)

// printTraceHeader prints a distinctive header for each trace.
func (m *MultiReplayer) printTraceHeader(info traceInfo, num, total int) {
	shortID := info.Session.ID
	if len(shortID) > 12 {
		shortID = shortID[:12]
	}
	header := fmt.Sprintf(" [%d/%d] %s │ %s │ %s ",
		num, total,
		info.Session.Plan,
		shortID,
		info.Session.CreatedAt.Format("2006-01-02 15:04:05"))

	fmt.Fprintln(m.output)
	fmt.Fprintln(m.output, traceDividerStyle.Render(strings.Repeat("━", 70)))
	fmt.Fprintln(m.output, traceHeaderStyle.Render(header))
	fmt.Fprintln(m.output, traceDividerStyle.Render(strings.Repeat("━", 70)))
}

// printSummary prints one line per trace.
func (m *MultiReplayer) printSummary(traces []traceInfo) {
	fmt.Fprintln(m.output, titleStyle.Render("SUMMARY"))
	fmt.Fprintln(m.output, divider)
	for _, info := range traces {
		sess := info.Session
		value := "-"
		if sess.Value != nil {
			value = formatFloat(*sess.Value)
		}
		stats := ComputeStats(sess)
		conditions := 0
		for _, n := range stats.Conditions {
			conditions += n
		}
		fmt.Fprintf(m.output, "%-24s %s %s %s\n",
			sess.Plan,
			StatusStyle(sess.Status).Width(10).Render(sess.Status),
			labelStyle.Render("value "+value),
			dimStyle.Render(fmt.Sprintf("(%d conditions, %d violations)", conditions, stats.Violations)))
	}
	fmt.Fprintln(m.output)
}
