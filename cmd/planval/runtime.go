// Package main provides runtime execution for plan validation.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/telemetry"
	"github.com/vinayprograms/planval/internal/ast"
	"github.com/vinayprograms/planval/internal/config"
	"github.com/vinayprograms/planval/internal/errlog"
	"github.com/vinayprograms/planval/internal/metrics"
	"github.com/vinayprograms/planval/internal/notify"
	"github.com/vinayprograms/planval/internal/planfile"
	"github.com/vinayprograms/planval/internal/replay"
	"github.com/vinayprograms/planval/internal/session"
	"github.com/vinayprograms/planval/internal/validator"
)

// runner wires a validator to its sinks and prints verdicts.
type runner struct {
	cmd    *ValidateCmd
	cfg    *config.Config
	out    io.Writer
	logger *logging.Logger

	// Components
	validator *validator.Validator
	telem     telemetry.Exporter
	metrics   *metrics.Recorder
	publisher *notify.Publisher
	printer   *replay.Replayer

	// Cleanup
	closers []func()
}

// loadConfig loads the config file named on the command line, or
// ./planval.toml when none is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.LoadDefault()
}

// applyFlags overrides configuration with command-line flags.
func (c *ValidateCmd) applyFlags(cfg *config.Config) error {
	if c.Workers > 0 {
		cfg.Validation.Workers = c.Workers
	}
	if c.Tolerance >= 0 {
		cfg.Validation.Tolerance = c.Tolerance
	}
	if c.Continue {
		cfg.Validation.ContinueAnyway = true
	}
	if c.KeepGoing {
		cfg.Validation.StopOnError = false
	}
	if c.Verbose >= 2 {
		cfg.Validation.Verbose = true
	}
	if c.TraceDir != "" {
		cfg.Output.TraceDir = c.TraceDir
	}
	if c.MetricsTextfile != "" {
		cfg.Metrics.Textfile = c.MetricsTextfile
	}
	if c.NatsURL != "" {
		cfg.Notify.NATSURL = c.NatsURL
	}
	return cfg.Validate()
}

// newRunner loads configuration and applies flag overrides.
func newRunner(c *ValidateCmd, out io.Writer) (*runner, error) {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return nil, err
	}
	if err := c.applyFlags(cfg); err != nil {
		return nil, err
	}
	return &runner{
		cmd:    c,
		cfg:    cfg,
		out:    out,
		logger: logging.New().WithComponent("cli"),
	}, nil
}

func (r *runner) addCloser(fn func()) {
	r.closers = append(r.closers, fn)
}

// close releases components in reverse order of creation.
func (r *runner) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// setup initializes all runner components. Returns error on failure.
func (r *runner) setup() error {
	r.validator = validator.New(r.cfg.Options())
	r.printer = replay.New(r.out, r.cmd.Verbose, replay.WithWidth(r.cfg.Output.Width))

	if err := r.setupTelemetry(); err != nil {
		return err
	}
	if err := r.setupTraces(); err != nil {
		return err
	}
	r.setupMetrics()
	if err := r.setupNotify(); err != nil {
		return err
	}
	r.setupCallbacks()
	return nil
}

// setupTelemetry creates the telemetry exporter.
func (r *runner) setupTelemetry() error {
	var err error
	if r.cfg.Telemetry.Enabled {
		r.telem, err = telemetry.NewExporter(r.cfg.Telemetry.Protocol, r.cfg.Telemetry.Endpoint)
		if err != nil {
			return fmt.Errorf("creating telemetry exporter: %w", err)
		}
	} else {
		r.telem = telemetry.NewNoopExporter()
	}
	r.addCloser(func() { r.telem.Close() })
	r.validator.AddSink(&telemetrySink{exporter: r.telem})
	return nil
}

// setupTraces persists a run trace per plan when a trace directory is set.
func (r *runner) setupTraces() error {
	if r.cfg.Output.TraceDir == "" {
		return nil
	}
	store, err := session.NewFileStore(r.cfg.Output.TraceDir)
	if err != nil {
		return fmt.Errorf("creating trace directory: %w", err)
	}
	r.validator.SetSessionStore(store)
	return nil
}

// setupMetrics registers the Prometheus recorder.
func (r *runner) setupMetrics() {
	r.metrics = metrics.New(r.cfg.Metrics.Textfile)
	r.validator.AddSink(r.metrics)
}

// setupNotify connects to NATS when a server is configured.
func (r *runner) setupNotify() error {
	if r.cfg.Notify.NATSURL == "" {
		return nil
	}
	pub, err := notify.Connect(r.cfg.Notify.NATSURL, r.cfg.Notify.Subject)
	if err != nil {
		return err
	}
	r.publisher = pub
	r.addCloser(func() {
		if err := pub.Close(); err != nil {
			r.logger.Warn("failed to close NATS connection", map[string]interface{}{"error": err.Error()})
		}
	})
	r.validator.AddSink(pub)
	return nil
}

// setupCallbacks forwards error log records to telemetry as they happen.
func (r *runner) setupCallbacks() {
	r.validator.OnCondition = func(runID string, c errlog.Condition) {
		r.telem.LogEvent("condition", map[string]interface{}{
			"run":  runID,
			"kind": string(c.Kind()),
			"time": c.Time(),
		})
	}
}

// run validates every plan and prints the verdicts. It returns
// errRejected when a plan is not valid or could not be loaded.
func (r *runner) run(ctx context.Context, taskPath string, planPaths []string) error {
	task, err := planfile.LoadTask(taskPath)
	if err != nil {
		return err
	}

	rejected := false
	var plans []*ast.Plan
	for _, path := range planPaths {
		p, err := planfile.LoadPlan(path)
		if err != nil {
			r.logger.Error("failed to load plan", map[string]interface{}{"path": path, "error": err.Error()})
			fmt.Fprintf(r.out, "ERROR %v\n", err)
			rejected = true
			continue
		}
		plans = append(plans, p)
	}

	results := r.validator.ValidateBatch(ctx, task, plans)
	if err := r.print(results); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, res := range results {
		if !res.Valid() {
			rejected = true
		}
	}
	if rejected {
		return errRejected
	}
	return nil
}

// print writes the verdicts in the selected format.
func (r *runner) print(results []*validator.Result) error {
	if r.cmd.JSON {
		enc := json.NewEncoder(r.out)
		for _, res := range results {
			if err := enc.Encode(notify.NewVerdict(res)); err != nil {
				return fmt.Errorf("failed to encode verdict: %w", err)
			}
		}
		return nil
	}
	for _, res := range results {
		r.printer.Result(res)
	}
	return nil
}

// telemetrySink reports every verdict to the telemetry exporter.
type telemetrySink struct {
	exporter telemetry.Exporter
}

func (s *telemetrySink) Record(_ context.Context, res *validator.Result) error {
	fields := map[string]interface{}{
		"run":        res.RunID,
		"task":       res.Task,
		"plan":       res.Plan,
		"status":     string(res.Status),
		"happenings": res.Happenings,
		"conditions": len(res.Conditions),
		"violations": len(res.Violations),
		"duration":   res.Duration.String(),
	}
	if res.HasValue {
		fields["value"] = res.Value
	}
	s.exporter.LogEvent("plan_validated", fields)
	return nil
}

// Run validates the plans once.
func (c *ValidateCmd) Run() error {
	r, err := newRunner(c, os.Stdout)
	if err != nil {
		return err
	}
	defer r.close()
	if err := r.setup(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	return r.run(ctx, c.Task, c.Plans)
}
