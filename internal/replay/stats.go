package replay

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/vinayprograms/planval/internal/session"
)

// Stats holds aggregate statistics for a run trace.
type Stats struct {
	// Wall time between the first and the last event
	TotalDurationMs int64

	// Plan time of the last happening
	Makespan float64

	Happenings int
	Blocked    int

	// Error log records by kind
	Conditions map[string]int

	Violations           int
	PreferenceViolations map[string]int
}

// ComputeStats calculates aggregate statistics from trace events.
func ComputeStats(sess *session.Session) *Stats {
	stats := &Stats{
		Conditions:           make(map[string]int),
		PreferenceViolations: make(map[string]int),
	}

	var firstEvent, lastEvent time.Time
	for _, event := range sess.Events {
		if firstEvent.IsZero() || event.Timestamp.Before(firstEvent) {
			firstEvent = event.Timestamp
		}
		if lastEvent.IsZero() || event.Timestamp.After(lastEvent) {
			lastEvent = event.Timestamp
		}

		switch event.Type {
		case session.EventHappening:
			stats.Happenings++
			if event.Time > stats.Makespan {
				stats.Makespan = event.Time
			}
		case session.EventBlocked:
			stats.Blocked++
		case session.EventCondition:
			kind := "unknown"
			if event.Meta != nil && event.Meta.Kind != "" {
				kind = event.Meta.Kind
			}
			stats.Conditions[kind]++
		case session.EventViolation:
			if event.Meta != nil && event.Meta.Preference != "" {
				stats.PreferenceViolations[event.Meta.Preference]++
			} else {
				stats.Violations++
			}
		}
	}

	if !firstEvent.IsZero() && !lastEvent.IsZero() {
		stats.TotalDurationMs = lastEvent.Sub(firstEvent).Milliseconds()
	}
	return stats
}

// PrintStats outputs the statistics to the writer.
func PrintStats(w io.Writer, stats *Stats) {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))

	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("RUN STATISTICS"))
	fmt.Fprintln(w, divider)
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Wall time: "), valueStyle.Render(formatDuration(stats.TotalDurationMs)))
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Makespan:  "), valueStyle.Render(formatFloat(stats.Makespan)))
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Happenings:"), valueStyle.Render(fmt.Sprintf("%d applied, %d blocked", stats.Happenings, stats.Blocked)))
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Violations:"), valueStyle.Render(fmt.Sprintf("%d", stats.Violations)))

	if len(stats.Conditions) > 0 {
		fmt.Fprintln(w, headerStyle.Render("Conditions:"))
		for _, kind := range sortedKeys(stats.Conditions) {
			fmt.Fprintf(w, "  %s %s\n", labelStyle.Render(kind+":"), valueStyle.Render(fmt.Sprintf("%d", stats.Conditions[kind])))
		}
	}
	if len(stats.PreferenceViolations) > 0 {
		fmt.Fprintln(w, headerStyle.Render("Preferences:"))
		for _, name := range sortedKeys(stats.PreferenceViolations) {
			fmt.Fprintf(w, "  %s %s\n", preferenceStyle.Render(name+":"), valueStyle.Render(fmt.Sprintf("%d", stats.PreferenceViolations[name])))
		}
	}
	fmt.Fprintln(w)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatDuration formats milliseconds as human-readable duration.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.2fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm%ds", mins, secs)
}
