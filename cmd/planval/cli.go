// Package main defines the CLI structure using kong.
package main

import (
	"time"

	"github.com/alecthomas/kong"
)

// CLI defines the command-line interface.
type CLI struct {
	Validate ValidateCmd `cmd:"" help:"Validate plans against a task"`
	Watch    WatchCmd    `cmd:"" help:"Re-validate plans whenever the task or a plan changes"`
	Inspect  InspectCmd  `cmd:"" help:"Show saved run traces"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

// ValidateCmd validates one or more plans.
type ValidateCmd struct {
	Task  string   `arg:"" help:"Task file (YAML)"`
	Plans []string `arg:"" help:"Plan files"`

	Config          string  `help:"Config file path (default: ./planval.toml)"`
	Workers         int     `help:"Plans validated concurrently (overrides config)"`
	Tolerance       float64 `default:"-1" help:"Numeric comparison tolerance (overrides config)"`
	Continue        bool    `help:"Apply effects even when preconditions fail"`
	KeepGoing       bool    `help:"Keep executing a plan after its first invalid happening"`
	Verbose         int     `short:"v" type:"counter" help:"Verbosity level (-v tracker output, -vv state diagnostics)"`
	TraceDir        string  `help:"Write a JSONL run trace per plan to this directory"`
	MetricsTextfile string  `help:"Write Prometheus metrics to this textfile after each plan"`
	NatsURL         string  `name:"nats-url" help:"Publish verdicts to this NATS server"`
	JSON            bool    `help:"Print one JSON verdict per plan"`
}

// WatchCmd validates plans and re-validates them on every change.
type WatchCmd struct {
	ValidateCmd `embed:""`

	Debounce time.Duration `default:"200ms" help:"Quiet period before re-validating"`
}

// InspectCmd replays saved run traces.
type InspectCmd struct {
	Traces  []string `arg:"" help:"Trace file(s) to show (supports glob patterns)"`
	Verbose int      `short:"v" type:"counter" help:"Verbosity level (-v state deltas and statistics, -vv timestamps)"`
	Stats   bool     `help:"Only print statistics"`
	Width   int      `default:"100" help:"Wrap width for record text (0 disables wrapping)"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
