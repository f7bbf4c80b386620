package main

import (
	"fmt"
	"io"
	"os"

	"github.com/vinayprograms/planval/internal/replay"
	"github.com/vinayprograms/planval/internal/session"
)

// inspectTraces shows saved run traces, or only their statistics.
func inspectTraces(out io.Writer, patterns []string, verbosity, width int, statsOnly bool) error {
	paths, err := replay.ExpandPaths(patterns)
	if err != nil {
		return err
	}

	if statsOnly {
		for _, path := range paths {
			sess, err := session.LoadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			fmt.Fprintf(out, "%s (%s)\n", sess.Plan, path)
			replay.PrintStats(out, replay.ComputeStats(sess))
		}
		return nil
	}

	return replay.NewMulti(out, verbosity, replay.WithWidth(width)).ReplayFiles(paths)
}

// Run shows the traces.
func (c *InspectCmd) Run() error {
	return inspectTraces(os.Stdout, c.Traces, c.Verbose, c.Width, c.Stats)
}
