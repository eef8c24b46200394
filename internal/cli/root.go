package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format  string // "json" | "text"
	EnvFile string

	// Open builds the application for a command. Nil means Bootstrap.
	Open func(ctx context.Context, opts *RootOptions) (*App, error)
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the stocktrack command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stocktrack",
		Short: "Stock reconciliation and sale settlement",
		Long: `Record supplier receipts, settle sales against stock, and report on both.

Item names are folded to one canonical key, so "Apple" and "apples" are the
same stock entry.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "path to a .env file (default ./.env when present)")

	cmd.AddCommand(NewReceiveCommand(opts))
	cmd.AddCommand(NewEditReceiptCommand(opts))
	cmd.AddCommand(NewSellCommand(opts))
	cmd.AddCommand(NewStockCommand(opts))
	cmd.AddCommand(NewAdjustCommand(opts))
	cmd.AddCommand(NewAlertsCommand(opts))
	cmd.AddCommand(NewStatementCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))

	return cmd
}

// withApp opens the application, runs fn and closes it again.
func withApp(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	open := opts.Open
	if open == nil {
		open = Bootstrap
	}

	app, err := open(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = app.Close()
	}()
	return fn(ctx, app)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}
