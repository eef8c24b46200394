package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stocktrack/internal/config"
	"stocktrack/internal/logger"
	"stocktrack/internal/scheduler"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the statement archive and stock alert jobs",
		Long: `Run the scheduled jobs until interrupted.

STATEMENT_CRON archives the previous UTC day's sales and receipt
statements. ALERT_CRON sends a notification when any item is at or below
LOW_STOCK_THRESHOLD. Both expressions are read in TIMEZONE.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App) error {
				return runScheduler(ctx, app)
			})
		},
	}

	return cmd
}

func runScheduler(parent context.Context, app *App) error {
	loc, err := app.Config.Location()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid timezone", err)
	}

	sched := scheduler.New(app.Service, app.Archive, app.Notifier, schedulerOptions(app.Config, loc), logger.Named(app.Logger, "scheduler"))
	if err := sched.Start(); err != nil {
		return WrapExitError(ExitCommandError, "invalid cron expression", err)
	}
	defer sched.Stop()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	app.Logger.Info("shutting down", zap.Error(context.Cause(ctx)))
	return nil
}

func schedulerOptions(cfg config.Config, loc *time.Location) scheduler.Options {
	return scheduler.Options{
		StatementCron: cfg.StatementCron,
		AlertCron:     cfg.AlertCron,
		Threshold:     cfg.LowStockThreshold,
		Location:      loc,
	}
}
