// Package cli implements tryonctl, the admin command line for the try-on
// service.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"tryon/internal/history"
	"tryon/internal/infra"
)

// deps are resolved lazily so --help works without a configured backend.
type deps struct {
	out    io.Writer
	errOut io.Writer

	loadConfig  func() (*infra.Config, error)
	openHistory func(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*history.Backend, error)
}

func defaultDeps() *deps {
	return &deps{
		loadConfig: func() (*infra.Config, error) {
			_ = godotenv.Load()
			return infra.LoadConfig()
		},
		openHistory: history.Open,
	}
}

// NewRootCmd builds the tryonctl command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(defaultDeps())
}

func newRootCmd(d *deps) *cobra.Command {
	root := &cobra.Command{
		Use:           "tryonctl",
		Short:         "Administer try-on history and provider credentials",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if d.out == nil {
				d.out = cmd.OutOrStdout()
			}
			if d.errOut == nil {
				d.errOut = cmd.ErrOrStderr()
			}
		},
	}
	root.AddCommand(newHistoryCmd(d), newCredentialsCmd(d))
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context, args []string, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

func (d *deps) backend(ctx context.Context) (*history.Backend, *infra.Config, error) {
	cfg, err := d.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := infra.NewLogger("cli", cfg.LogLevel).With().Str("cmd", "tryonctl").Logger()
	b, err := d.openHistory(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s history: %w", cfg.HistoryBackend, err)
	}
	return b, cfg, nil
}
