package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"stocktrack/internal/domain"
)

// NewStockCommand creates the stock command.
func NewStockCommand(rootOpts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "stock",
		Short: "List items currently in stock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App) error {
				items := app.Service.Stock(ctx)
				if all {
					items = app.Service.Ledger().Entries()
				}
				return out.Success(items, func(w io.Writer) {
					writeItems(w, items, app.Config.LowStockThreshold)
				})
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include entries with zero or negative quantity")

	return cmd
}

type adjustOptions struct {
	*RootOptions
	Quantity  int64
	UnitCost  string
	UnitPrice string
}

// NewAdjustCommand creates the adjust command for manual corrections.
func NewAdjustCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &adjustOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "adjust <item-name>",
		Short: "Correct an item's quantity, cost or price by hand",
		Long: `Correct an existing stock entry. Only the flags given are changed.

Example:
  stocktrack adjust apples --quantity 12
  stocktrack adjust apple --unit-price 135`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdjust(opts, args[0], cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.Quantity, "quantity", 0, "new quantity")
	cmd.Flags().StringVar(&opts.UnitCost, "unit-cost", "", "new unit cost")
	cmd.Flags().StringVar(&opts.UnitPrice, "unit-price", "", "new unit price")

	return cmd
}

func runAdjust(opts *adjustOptions, name string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	var patch domain.InventoryPatch
	if cmd.Flags().Changed("quantity") {
		qty := opts.Quantity
		patch.Quantity = &qty
	}
	if cmd.Flags().Changed("unit-cost") {
		cost, err := parseFlagDecimal("unit_cost", opts.UnitCost)
		if err != nil {
			return fail(out, err)
		}
		patch.UnitCost = &cost
	}
	if cmd.Flags().Changed("unit-price") {
		price, err := parseFlagDecimal("unit_price", opts.UnitPrice)
		if err != nil {
			return fail(out, err)
		}
		patch.UnitPrice = &price
	}

	return withApp(opts.RootOptions, cmd, func(ctx context.Context, app *App) error {
		item, err := app.Service.AdjustItem(ctx, name, patch)
		if err != nil {
			return fail(out, err)
		}
		return out.Success(item, func(w io.Writer) {
			writeItems(w, []domain.StockItem{item}, app.Config.LowStockThreshold)
		})
	})
}

func parseFlagDecimal(field string, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, domain.NewValidationError(field, fmt.Sprintf("not a number: %q", value))
	}
	return d, nil
}

// NewAlertsCommand creates the alerts command.
func NewAlertsCommand(rootOpts *RootOptions) *cobra.Command {
	var threshold int64
	var dashboard bool

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Classify stock as well-stocked, low or out of stock",
		Long: `Classify every stock entry against a threshold.

Without --threshold the LOW_STOCK_THRESHOLD setting is used. --dashboard
uses the wider WELL_STOCKED_THRESHOLD instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App) error {
				limit := app.Config.LowStockThreshold
				switch {
				case cmd.Flags().Changed("threshold"):
					limit = threshold
				case dashboard:
					limit = app.Config.WellStockedThreshold
				}
				alerts, err := app.Service.Alerts(ctx, limit)
				if err != nil {
					return fail(out, err)
				}
				return out.Success(alerts, func(w io.Writer) {
					fmt.Fprintf(w, "threshold %d: %d well-stocked, %d low, %d out of stock\n\n",
						alerts.Threshold, len(alerts.WellStocked), len(alerts.LowStock), len(alerts.OutOfStock))
					fmt.Fprintln(w, "STATUS\tKEY\tNAME\tQUANTITY")
					for _, group := range []struct {
						status string
						items  []domain.StockItem
					}{
						{domain.StockStatusOutOfStock, alerts.OutOfStock},
						{domain.StockStatusLowStock, alerts.LowStock},
						{domain.StockStatusWellStocked, alerts.WellStocked},
					} {
						for _, item := range group.items {
							fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", group.status, item.Key, item.DisplayName, item.Quantity)
						}
					}
				})
			})
		},
	}

	cmd.Flags().Int64Var(&threshold, "threshold", 0, "low-stock threshold")
	cmd.Flags().BoolVar(&dashboard, "dashboard", false, "classify against WELL_STOCKED_THRESHOLD")
	cmd.MarkFlagsMutuallyExclusive("threshold", "dashboard")

	return cmd
}
