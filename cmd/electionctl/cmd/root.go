package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"guildhall/internal/app/bootstrap"
	"guildhall/internal/platform/config"
	"guildhall/internal/platform/metrics"
)

const ctlActorID = "system:electionctl"

var (
	flagFormat  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:           "electionctl",
	Short:         "Operate guildhall elections from the command line",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "prettyjson", "output format {json, prettyjson, yaml}")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "log debug output to stderr")
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// openRuntime connects to the configured database. electionctl never casts
// ballots, so a missing membership service falls back to the open roll.
func openRuntime(migrate bool) (*bootstrap.Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if migrate {
		cfg.AutoMigrate = true
	}
	if cfg.MembershipBaseURL == "" {
		cfg.OpenEligibility = true
	}
	return bootstrap.BuildRuntime(cfg, newLogger(), metrics.NopElectionMetrics())
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})).
		With("process", "electionctl")
}

type encodeFunc func(v any, w io.Writer) error

var encoders = map[string]encodeFunc{
	"json": func(v any, w io.Writer) error {
		return json.NewEncoder(w).Encode(v)
	},
	"prettyjson": func(v any, w io.Writer) error {
		e := json.NewEncoder(w)
		e.SetIndent("", "  ")
		return e.Encode(v)
	},
	"yaml": func(v any, w io.Writer) error {
		e := yaml.NewEncoder(w)
		defer e.Close()
		return e.Encode(v)
	},
}

func printResult(w io.Writer, v any) error {
	encode, ok := encoders[flagFormat]
	if !ok {
		return fmt.Errorf("unknown output format %q", flagFormat)
	}
	return encode(v, w)
}
