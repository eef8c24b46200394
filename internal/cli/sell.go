package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

type sellOptions struct {
	*RootOptions
	File string
}

// NewSellCommand creates the sell command.
func NewSellCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &sellOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sell -f <sale.yaml>",
		Short: "Settle a sale against current stock",
		Long: `Settle a sale against current stock.

The sale is all-or-nothing: if any line asks for more than is in stock, the
command lists every short line and nothing is recorded.

Example:
  stocktrack sell -f sale.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSell(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "sale YAML file (required)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runSell(opts *sellOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	req, err := LoadSaleRequest(opts.File)
	if err != nil {
		return fail(out, err)
	}

	return withApp(opts.RootOptions, cmd, func(ctx context.Context, app *App) error {
		sale, err := app.Service.SettleSale(ctx, req)
		if err != nil {
			return fail(out, err)
		}
		return out.Success(sale, func(w io.Writer) {
			fmt.Fprintf(w, "sale %s settled for %s: amount %s, profit %s\n\n",
				sale.ID, sale.CustomerName, sale.TotalAmount.StringFixed(2), sale.TotalProfit.StringFixed(2))
			fmt.Fprintln(w, "KEY\tNAME\tQUANTITY\tUNIT PRICE\tUNIT COST\tAMOUNT\tPROFIT")
			for _, line := range sale.Lines {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
					line.Key,
					line.Name,
					line.Quantity,
					line.UnitPrice.StringFixed(2),
					line.UnitCost.StringFixed(2),
					line.Amount.StringFixed(2),
					line.Profit.StringFixed(2),
				)
			}
		})
	})
}
