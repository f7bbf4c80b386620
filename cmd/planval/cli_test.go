package main

import (
	"testing"
	"time"

	"github.com/alecthomas/kong"
)

func TestValidateCmd_Basic(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatal(err)
	}

	_, err = parser.Parse([]string{"validate", "task.yaml", "p1.plan", "p2.plan"})
	if err != nil {
		t.Fatal(err)
	}

	if cli.Validate.Task != "task.yaml" {
		t.Errorf("expected task 'task.yaml', got %q", cli.Validate.Task)
	}
	if len(cli.Validate.Plans) != 2 || cli.Validate.Plans[1] != "p2.plan" {
		t.Errorf("unexpected plans %v", cli.Validate.Plans)
	}
	if cli.Validate.Tolerance != -1 {
		t.Errorf("expected tolerance sentinel -1, got %g", cli.Validate.Tolerance)
	}
	if cli.Validate.Verbose != 0 || cli.Validate.JSON {
		t.Errorf("unexpected defaults %+v", cli.Validate)
	}
}

func TestValidateCmd_Flags(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatal(err)
	}

	_, err = parser.Parse([]string{
		"validate", "-vv",
		"--workers", "4",
		"--tolerance", "0.001",
		"--continue",
		"--keep-going",
		"--trace-dir", "traces",
		"--metrics-textfile", "planval.prom",
		"--nats-url", "nats://localhost:4222",
		"--json",
		"task.yaml", "p1.plan",
	})
	if err != nil {
		t.Fatal(err)
	}

	c := cli.Validate
	if c.Verbose != 2 {
		t.Errorf("expected verbose=2, got %d", c.Verbose)
	}
	if c.Workers != 4 || c.Tolerance != 0.001 {
		t.Errorf("unexpected workers/tolerance %d %g", c.Workers, c.Tolerance)
	}
	if !c.Continue || !c.KeepGoing || !c.JSON {
		t.Errorf("expected boolean flags set: %+v", c)
	}
	if c.TraceDir != "traces" || c.MetricsTextfile != "planval.prom" || c.NatsURL != "nats://localhost:4222" {
		t.Errorf("unexpected outputs %+v", c)
	}
}

func TestValidateCmd_RequiresPlans(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := parser.Parse([]string{"validate", "task.yaml"}); err == nil {
		t.Error("expected error without plan files")
	}
}

func TestWatchCmd_Debounce(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatal(err)
	}

	_, err = parser.Parse([]string{"watch", "task.yaml", "p1.plan"})
	if err != nil {
		t.Fatal(err)
	}
	if cli.Watch.Debounce != 200*time.Millisecond {
		t.Errorf("expected default debounce 200ms, got %s", cli.Watch.Debounce)
	}
	if cli.Watch.Task != "task.yaml" || len(cli.Watch.Plans) != 1 {
		t.Errorf("unexpected watch args %+v", cli.Watch.ValidateCmd)
	}

	_, err = parser.Parse([]string{"watch", "--debounce", "1s", "--keep-going", "task.yaml", "p1.plan"})
	if err != nil {
		t.Fatal(err)
	}
	if cli.Watch.Debounce != time.Second || !cli.Watch.KeepGoing {
		t.Errorf("unexpected watch flags %+v", cli.Watch)
	}
}

func TestInspectCmd(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatal(err)
	}

	_, err = parser.Parse([]string{"inspect", "-v", "--stats", "traces/*.jsonl"})
	if err != nil {
		t.Fatal(err)
	}
	if len(cli.Inspect.Traces) != 1 || cli.Inspect.Traces[0] != "traces/*.jsonl" {
		t.Errorf("unexpected traces %v", cli.Inspect.Traces)
	}
	if cli.Inspect.Verbose != 1 || !cli.Inspect.Stats || cli.Inspect.Width != 100 {
		t.Errorf("unexpected inspect flags %+v", cli.Inspect)
	}
}

func TestVersionCmd(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli, kongVars())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := parser.Parse([]string{"version"}); err != nil {
		t.Fatal(err)
	}
}
