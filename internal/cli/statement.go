package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"stocktrack/internal/domain"
)

type statementOptions struct {
	*RootOptions
	Kind string
	From string
	To   string
}

// NewStatementCommand creates the statement command.
func NewStatementCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &statementOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "statement --kind sales|receipts --from YYYY-MM-DD --to YYYY-MM-DD",
		Short: "Summarize sales or receipts over a date range",
		Long: `Summarize sales or receipts dated within a range. Both ends are
inclusive calendar days (UTC).

Example:
  stocktrack statement --kind sales --from 2024-01-01 --to 2024-01-31`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatement(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", domain.StatementKindSales, "statement kind (sales|receipts)")
	cmd.Flags().StringVar(&opts.From, "from", "", "first day (required)")
	cmd.Flags().StringVar(&opts.To, "to", "", "last day (required)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func runStatement(opts *statementOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	if opts.Kind != domain.StatementKindSales && opts.Kind != domain.StatementKindReceipts {
		return fail(out, domain.NewValidationError("kind", fmt.Sprintf("must be %s or %s", domain.StatementKindSales, domain.StatementKindReceipts)))
	}
	from, err := parseDate("from", opts.From)
	if err != nil {
		return fail(out, err)
	}
	to, err := parseDate("to", opts.To)
	if err != nil {
		return fail(out, err)
	}

	return withApp(opts.RootOptions, cmd, func(ctx context.Context, app *App) error {
		var st domain.Statement
		var err error
		if opts.Kind == domain.StatementKindReceipts {
			st, err = app.Service.ReceiptStatement(ctx, from, to)
		} else {
			st, err = app.Service.SalesStatement(ctx, from, to)
		}
		if err != nil {
			return fail(out, err)
		}
		return out.Success(st, func(w io.Writer) {
			writeStatement(w, st)
		})
	})
}

func writeStatement(w io.Writer, st domain.Statement) {
	fmt.Fprintf(w, "%s statement %s to %s\n", st.Kind, st.From, st.To)
	fmt.Fprintf(w, "records\t%d\n", st.Summary.ItemCount)
	fmt.Fprintf(w, "quantity\t%d\n", st.Summary.TotalQuantity)
	fmt.Fprintf(w, "amount\t%s\n", st.Summary.TotalAmount.StringFixed(2))
	fmt.Fprintf(w, "profit\t%s\n\n", st.Summary.TotalProfit.StringFixed(2))

	fmt.Fprintln(w, "DATE\tREFERENCE\tPARTY\tNAME\tQUANTITY\tUNIT PRICE\tAMOUNT\tPROFIT")
	for _, row := range st.Rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			row.Date.UTC().Format(domain.DateLayout),
			row.Reference,
			row.Party,
			row.Name,
			row.Quantity,
			row.UnitPrice.StringFixed(2),
			row.Amount.StringFixed(2),
			row.Profit.StringFixed(2),
		)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "KEY\tNAME\tQUANTITY\tAMOUNT")
	for _, item := range st.Items {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", item.Key, item.Name, item.Quantity, item.Amount.StringFixed(2))
	}
}
