// Package main is the entry point for the planval CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// errRejected is returned when at least one plan is not valid.
var errRejected = errors.New("plan rejected")

func init() {
	// Load .env for PLANVAL_* overrides
	_ = godotenv.Load()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("planval"),
		kong.Description("Validate plans against a planning task."),
		kong.UsageOnError(),
		kongVars(),
	)

	if err := ctx.Run(); err != nil {
		if errors.Is(err, errRejected) {
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
}

// Run prints version information.
func (c *VersionCmd) Run() error {
	fmt.Printf("planval version %s (commit: %s, built: %s)\n", version, commit, buildTime)
	return nil
}
