package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"stocktrack/internal/domain"
)

type receiptOptions struct {
	*RootOptions
	File string
}

// NewReceiveCommand creates the receive command.
func NewReceiveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &receiptOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "receive -f <receipt.yaml>",
		Short: "Record a supplier receipt and add its lines to stock",
		Long: `Record a supplier receipt and add its lines to stock.

Each line sets the item's unit cost and recomputes its selling price with the
configured pricing policy. A receipt may not list the same item twice.

Example:
  stocktrack receive -f receipt.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReceive(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "receipt YAML file (required)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// NewEditReceiptCommand creates the edit-receipt command.
func NewEditReceiptCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &receiptOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "edit-receipt <receipt-id> -f <receipt.yaml>",
		Short: "Replace a stored receipt and move stock by the difference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEditReceipt(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "receipt YAML file (required)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runReceive(opts *receiptOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	req, err := LoadReceiptRequest(opts.File)
	if err != nil {
		return fail(out, err)
	}

	return withApp(opts.RootOptions, cmd, func(ctx context.Context, app *App) error {
		res, err := app.Service.IntakeReceipt(ctx, req)
		if err != nil {
			return fail(out, err)
		}
		return out.Success(res, func(w io.Writer) {
			fmt.Fprintf(w, "receipt %s recorded, total %s\n\n", res.ReceiptID, res.Total.StringFixed(2))
			writeItems(w, res.StockItemsAffected, app.Config.LowStockThreshold)
		})
	})
}

func runEditReceipt(opts *receiptOptions, id string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	req, err := LoadReceiptRequest(opts.File)
	if err != nil {
		return fail(out, err)
	}

	return withApp(opts.RootOptions, cmd, func(ctx context.Context, app *App) error {
		res, err := app.Service.EditReceipt(ctx, id, req)
		if err != nil {
			return fail(out, err)
		}
		return out.Success(res, func(w io.Writer) {
			fmt.Fprintf(w, "receipt %s updated, total %s\n\n", res.ReceiptID, res.Total.StringFixed(2))
			writeItems(w, res.StockItemsAffected, app.Config.LowStockThreshold)
		})
	})
}

func writeItems(w io.Writer, items []domain.StockItem, threshold int64) {
	fmt.Fprintln(w, "KEY\tNAME\tQUANTITY\tUNIT COST\tUNIT PRICE\tVALUE\tSTATUS")
	for _, item := range items {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			item.Key,
			item.DisplayName,
			item.Quantity,
			item.UnitCost.StringFixed(2),
			item.UnitPrice.StringFixed(2),
			item.TotalValue().StringFixed(2),
			item.Status(threshold),
		)
	}
}
