package replay

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/muesli/reflow/wordwrap"
	"github.com/vinayprograms/planval/internal/session"
	"github.com/vinayprograms/planval/internal/validator"
)

// Replayer formats run traces and validation results.
type Replayer struct {
	output    io.Writer
	verbosity int // 0=normal, 1=state deltas (-v), 2=event timestamps too (-vv)
	width     int // wrap width for content, 0 = no wrapping
}

// ReplayerOption configures a Replayer.
type ReplayerOption func(*Replayer)

// WithWidth wraps long record text at width columns.
func WithWidth(width int) ReplayerOption {
	return func(r *Replayer) {
		r.width = width
	}
}

// New creates a new Replayer.
func New(output io.Writer, verbosity int, opts ...ReplayerOption) *Replayer {
	r := &Replayer{
		output:    output,
		verbosity: verbosity,
		width:     100,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReplayFile loads and replays a trace file.
func (r *Replayer) ReplayFile(path string) error {
	sess, err := session.LoadFile(path)
	if err != nil {
		return fmt.Errorf("failed to load trace: %w", err)
	}
	return r.Replay(sess)
}

// Replay outputs a formatted timeline of a run trace.
func (r *Replayer) Replay(sess *session.Session) error {
	fmt.Fprintln(r.output)
	fmt.Fprintf(r.output, "%s %s\n", titleStyle.Render("RUN"), valueStyle.Render(sess.ID))
	fmt.Fprintln(r.output, divider)
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Task:   "), valueStyle.Render(sess.Task))
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Plan:   "), valueStyle.Render(sess.Plan))
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Status: "), StatusStyle(sess.Status).Render(sess.Status))
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Created:"), valueStyle.Render(sess.CreatedAt.Format(time.RFC3339)))
	if sess.Value != nil {
		fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Value:  "), valueStyle.Render(formatFloat(*sess.Value)))
	}
	fmt.Fprintln(r.output)

	fmt.Fprintf(r.output, "%s %s\n", titleStyle.Render("TIMELINE"), dimStyle.Render(fmt.Sprintf("(%d events)", len(sess.Events))))
	fmt.Fprintln(r.output, divider)
	for i := range sess.Events {
		r.formatEvent(&sess.Events[i])
	}

	fmt.Fprintln(r.output)
	fmt.Fprintln(r.output, divider)
	switch sess.Status {
	case session.StatusValid:
		fmt.Fprintln(r.output, successStyle.Render("PLAN VALID"))
	case session.StatusInvalid:
		fmt.Fprintln(r.output, errorStyle.Render("PLAN INVALID"))
	case session.StatusUndecided:
		fmt.Fprintf(r.output, "%s %s\n", warnStyle.Render("UNDECIDED:"), valueStyle.Render(sess.Error))
	case session.StatusError:
		fmt.Fprintf(r.output, "%s %s\n", errorStyle.Render("ERROR:"), valueStyle.Render(sess.Error))
	default:
		fmt.Fprintln(r.output, warnStyle.Render("INCOMPLETE"))
	}
	fmt.Fprintln(r.output)
	return nil
}

// formatEvent formats a single event for display.
func (r *Replayer) formatEvent(event *session.Event) {
	seq := seqStyle.Render(strconv.FormatUint(event.SeqID, 10))
	at := timeStyle.Render(formatFloat(event.Time))
	if r.verbosity >= 2 {
		at += " " + dimStyle.Render(event.Timestamp.Format("15:04:05.000"))
	}

	switch event.Type {
	case session.EventRunStart:
		fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seq, at, flowStyle.Render("RUN START"), dimStyle.Render(event.Content))

	case session.EventHappening, session.EventBlocked:
		label := flowStyle.Render("HAPPENING")
		if event.Type == session.EventBlocked {
			label = errorStyle.Render("BLOCKED")
		}
		fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seq, at, label, actionStyle.Render(strings.Join(event.Actions, " ")))
		if event.Type == session.EventBlocked && event.Content != "" {
			r.printContent(event.Content)
		}
		if r.verbosity >= 1 && event.Meta != nil {
			r.printDelta(event.Meta)
		}

	case session.EventCondition:
		kind := ""
		if event.Meta != nil {
			kind = event.Meta.Kind
		}
		fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seq, at, errorStyle.Render("CONDITION"), dimStyle.Render(kind))
		r.printContent(event.Content)

	case session.EventViolation:
		label := violationStyle.Render("VIOLATION")
		if event.Meta != nil && event.Meta.Preference != "" {
			label = preferenceStyle.Render("PREFERENCE " + event.Meta.Preference)
		}
		fmt.Fprintf(r.output, "%s │ %s │ %s\n", seq, at, label)
		r.printContent(event.Content)

	case session.EventGoal:
		result := successStyle.Render("satisfied")
		if event.Success != nil && !*event.Success {
			result = errorStyle.Render("not satisfied")
		}
		fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seq, at, flowStyle.Render("GOAL"), result)
		if r.verbosity >= 1 {
			r.printContent(event.Content)
		}

	case session.EventRunEnd:
		fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seq, at, flowStyle.Render("RUN END"), StatusStyle(event.Content).Render(event.Content))

	default:
		fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seq, at, dimStyle.Render(strings.ToUpper(event.Type)), valueStyle.Render(event.Content))
	}
}

// printDelta shows the literals and values a happening changed.
func (r *Replayer) printDelta(meta *session.EventMeta) {
	for _, lit := range meta.Added {
		fmt.Fprintf(r.output, "      │          │   %s %s\n", successStyle.Render("+"), valueStyle.Render(lit))
	}
	for _, lit := range meta.Deleted {
		fmt.Fprintf(r.output, "      │          │   %s %s\n", errorStyle.Render("-"), valueStyle.Render(lit))
	}
	names := make([]string, 0, len(meta.Values))
	for name := range meta.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(r.output, "      │          │   %s %s %s\n",
			warnStyle.Render("="), valueStyle.Render(name), valueStyle.Render(formatFloat(meta.Values[name])))
	}
}

// printContent writes wrapped, indented record text.
func (r *Replayer) printContent(content string) {
	if content == "" {
		return
	}
	if r.width > 0 {
		content = wordwrap.String(content, r.width)
	}
	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(r.output, "      │          │   %s\n", valueStyle.Render(line))
	}
}

// Result outputs the verdict of a validation run.
func (r *Replayer) Result(res *validator.Result) {
	status := string(res.Status)
	line := fmt.Sprintf("%s %s", StatusStyle(status).Render(strings.ToUpper(status)), titleStyle.Render(res.Plan))
	if res.HasValue {
		line += " " + labelStyle.Render("value") + " " + valueStyle.Render(formatFloat(res.Value))
	}
	line += " " + dimStyle.Render(fmt.Sprintf("(%d happenings, %s)", res.Happenings, res.Duration.Round(time.Microsecond)))
	fmt.Fprintln(r.output, line)

	for _, c := range res.Conditions {
		r.printRecord(errorStyle.Render("✗"), c.String())
	}
	for _, v := range res.Violations {
		if v.Preference != "" {
			continue
		}
		r.printRecord(violationStyle.Render("✗"), v.String())
	}
	names := make([]string, 0, len(res.Preferences))
	for name := range res.Preferences {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r.printRecord(preferenceStyle.Render("~"), fmt.Sprintf("preference %s violated %d time(s)", name, res.Preferences[name]))
	}
	if res.Err != nil {
		r.printRecord(warnStyle.Render("?"), res.Err.Error())
	}

	if r.verbosity >= 1 && res.Tracker != nil {
		var b strings.Builder
		if err := res.Tracker.Write(&b); err == nil {
			for _, l := range strings.Split(strings.TrimRight(b.String(), "\n"), "\n") {
				fmt.Fprintf(r.output, "    %s\n", dimStyle.Render(l))
			}
		}
	}
}

func (r *Replayer) printRecord(marker, text string) {
	if r.width > 4 {
		text = wordwrap.String(text, r.width-4)
	}
	for i, line := range strings.Split(text, "\n") {
		if i == 0 {
			fmt.Fprintf(r.output, "  %s %s\n", marker, valueStyle.Render(line))
			continue
		}
		fmt.Fprintf(r.output, "    %s\n", valueStyle.Render(line))
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
