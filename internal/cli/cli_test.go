package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stocktrack/internal/config"
	"stocktrack/internal/domain"
	"stocktrack/internal/notify"
	"stocktrack/internal/service"
	"stocktrack/internal/store/memory"
)

func newTestOptions(t *testing.T) *RootOptions {
	t.Helper()
	app := &App{
		Config:   config.Config{LowStockThreshold: 5, WellStockedThreshold: 10},
		Logger:   zap.NewNop(),
		Service:  service.New(memory.New(), nil, nil, nil, service.Options{AllowNegativeStockOnUnknownItem: true}),
		Notifier: notify.NewLogNotifier(nil),
	}
	return &RootOptions{Open: func(context.Context, *RootOptions) (*App, error) {
		return app, nil
	}}
}

func execute(opts *RootOptions, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd := newRootCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

type response struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

func decode(t *testing.T, out string) response {
	t.Helper()
	var resp response
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

const appleReceipt = `company: Acme
date: 2024-01-01
lines:
  - name: Apple
    quantity: 10
    unit_cost: 100
`

const applesReceipt = `company: Acme
date: 2024-01-01
lines:
  - name: Apples
    quantity: 5
    unit_cost: 110
`

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"receive", "edit-receipt", "sell", "stock", "adjust", "alerts", "statement", "run"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
	require.NotNil(t, cmd.PersistentFlags().Lookup("env-file"))
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(newTestOptions(t), "stock", "--format", "xml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestParseReceiptRequest(t *testing.T) {
	req, err := ParseReceiptRequest([]byte(`company: Acme
date: 2024-01-01
lines:
  - name: Apple
    quantity: 10
    unit_cost: 100.50
`))
	require.NoError(t, err)
	assert.Equal(t, "Acme", req.Company)
	assert.Equal(t, "2024-01-01", req.Date.Format(domain.DateLayout))
	require.Len(t, req.Lines, 1)
	assert.Equal(t, int64(10), req.Lines[0].Quantity)
	assert.True(t, req.Lines[0].UnitCost.Equal(decimal.RequireFromString("100.5")))

	_, err = ParseReceiptRequest([]byte("company: Acme\ndate: 2024-01-01\nlines:\n  - name: Apple\n    quantity: 1\n    unit_cost: ten\n"))
	var vErr *domain.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "lines[0].unit_cost", vErr.Field)

	_, err = ParseReceiptRequest([]byte("company: Acme\ndate: 01/02/2024\n"))
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "date", vErr.Field)

	_, err = ParseReceiptRequest([]byte("lines: [unclosed"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestParseSaleRequest(t *testing.T) {
	req, err := ParseSaleRequest([]byte(`date: 2024-01-02
customer_name: John
lines:
  - name: apple
    quantity: 15
    unit_price: "150"
`))
	require.NoError(t, err)
	assert.Equal(t, "John", req.CustomerName)
	require.Len(t, req.Lines, 1)
	assert.True(t, req.Lines[0].UnitPrice.Equal(decimal.NewFromInt(150)))
}

func TestReceiveSellAndReport(t *testing.T) {
	opts := newTestOptions(t)

	out, err := execute(opts, "receive", "-f", writeFile(t, "r1.yaml", appleReceipt), "--format", "json")
	require.NoError(t, err)
	resp := decode(t, out)
	assert.Equal(t, "ok", resp.Status)
	var intake domain.ReceiptIntakeResult
	require.NoError(t, json.Unmarshal(resp.Data, &intake))
	assert.True(t, intake.Total.Equal(decimal.NewFromInt(1000)))

	_, err = execute(opts, "receive", "-f", writeFile(t, "r2.yaml", applesReceipt))
	require.NoError(t, err)

	out, err = execute(opts, "sell", "--format", "json", "-f", writeFile(t, "s1.yaml", `date: 2024-01-02
customer_name: John
lines:
  - name: apple
    quantity: 20
    unit_price: 150
`))
	require.Error(t, err)
	assert.Equal(t, ExitRejected, GetExitCode(err))
	resp = decode(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "insufficient_stock", resp.Error.Code)
	require.Len(t, resp.Error.Shortfalls, 1)
	assert.Equal(t, "apple (Available: 15, Requested: 20)", resp.Error.Shortfalls[0].String())

	out, err = execute(opts, "sell", "-f", writeFile(t, "s2.yaml", `date: 2024-01-02
customer_name: John
lines:
  - name: apple
    quantity: 15
    unit_price: 150
`))
	require.NoError(t, err)
	assert.Contains(t, out, "amount 2250.00, profit 600.00")

	out, err = execute(opts, "stock", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "out-of-stock")

	out, err = execute(opts, "alerts", "--format", "json", "--threshold", "5")
	require.NoError(t, err)
	var alerts domain.StockAlerts
	require.NoError(t, json.Unmarshal(decode(t, out).Data, &alerts))
	require.Len(t, alerts.OutOfStock, 1)
	assert.Equal(t, "apple", alerts.OutOfStock[0].Key)

	out, err = execute(opts, "statement", "--format", "json", "--kind", "sales", "--from", "2024-01-02", "--to", "2024-01-02")
	require.NoError(t, err)
	var st domain.Statement
	require.NoError(t, json.Unmarshal(decode(t, out).Data, &st))
	assert.Equal(t, 1, st.Summary.ItemCount)
	assert.True(t, st.Summary.TotalProfit.Equal(decimal.NewFromInt(600)))

	out, err = execute(opts, "statement", "--kind", "receipts", "--from", "2024-01-01", "--to", "2024-01-01")
	require.NoError(t, err)
	assert.Contains(t, out, "receipts statement 2024-01-01 to 2024-01-01")
	assert.Contains(t, out, "1550.00")
}

func TestEditReceiptAndAdjust(t *testing.T) {
	opts := newTestOptions(t)

	out, err := execute(opts, "receive", "--format", "json", "-f", writeFile(t, "r1.yaml", appleReceipt))
	require.NoError(t, err)
	var intake domain.ReceiptIntakeResult
	require.NoError(t, json.Unmarshal(decode(t, out).Data, &intake))

	_, err = execute(opts, "edit-receipt", intake.ReceiptID, "-f", writeFile(t, "r2.yaml", applesReceipt))
	require.NoError(t, err)

	out, err = execute(opts, "adjust", "apple", "--unit-price", "140", "--format", "json")
	require.NoError(t, err)
	var item domain.StockItem
	require.NoError(t, json.Unmarshal(decode(t, out).Data, &item))
	assert.Equal(t, int64(5), item.Quantity)
	assert.True(t, item.UnitCost.Equal(decimal.NewFromInt(110)))
	assert.True(t, item.UnitPrice.Equal(decimal.NewFromInt(140)))

	_, err = execute(opts, "adjust", "apple", "--unit-cost", "abc")
	assert.Equal(t, ExitRejected, GetExitCode(err))
}

func TestAlertsThresholdSources(t *testing.T) {
	opts := newTestOptions(t)
	_, err := execute(opts, "receive", "-f", writeFile(t, "r1.yaml", appleReceipt))
	require.NoError(t, err)

	classify := func(args ...string) domain.StockAlerts {
		t.Helper()
		out, err := execute(opts, append([]string{"alerts", "--format", "json"}, args...)...)
		require.NoError(t, err)
		var alerts domain.StockAlerts
		require.NoError(t, json.Unmarshal(decode(t, out).Data, &alerts))
		return alerts
	}

	standard := classify()
	assert.Equal(t, int64(5), standard.Threshold)
	assert.Len(t, standard.WellStocked, 1)

	dashboard := classify("--dashboard")
	assert.Equal(t, int64(10), dashboard.Threshold)
	require.Len(t, dashboard.LowStock, 1)
	assert.Equal(t, "apple", dashboard.LowStock[0].Key)

	assert.Equal(t, int64(12), classify("--threshold", "12").Threshold)

	_, err = execute(opts, "alerts", "--dashboard", "--threshold", "3")
	assert.Error(t, err)
}

func TestSchedulerOptionsUseConfiguredThreshold(t *testing.T) {
	cfg := config.Config{StatementCron: "0 23 * * *", AlertCron: "0 * * * *", LowStockThreshold: 8}
	got := schedulerOptions(cfg, time.UTC)
	assert.Equal(t, int64(8), got.Threshold)
	assert.Equal(t, "0 23 * * *", got.StatementCron)
	assert.Equal(t, time.UTC, got.Location)

	cfg.LowStockThreshold = 0
	assert.Equal(t, int64(0), schedulerOptions(cfg, time.UTC).Threshold)
}

func TestStatementRejectsUnknownKind(t *testing.T) {
	_, err := execute(newTestOptions(t), "statement", "--kind", "refunds", "--from", "2024-01-01", "--to", "2024-01-02")
	var vErr *domain.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "kind", vErr.Field)
}

func TestRunStopsWhenContextEnds(t *testing.T) {
	opts := newTestOptions(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := newRootCommand(opts)
	cmd.SetArgs([]string{"run"})
	assert.NoError(t, cmd.ExecuteContext(ctx))
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitSuccess},
		{name: "validation", err: domain.NewValidationError("date", "required"), want: ExitRejected},
		{name: "duplicate", err: &domain.DuplicateItemError{Name: "Box", Key: "box"}, want: ExitRejected},
		{name: "stock", err: &domain.InsufficientStockError{}, want: ExitRejected},
		{name: "persistence", err: &domain.PersistenceError{Op: "save sale", Err: errors.New("down")}, want: ExitCommandError},
		{name: "explicit", err: NewExitError(ExitCommandError, "bad"), want: ExitCommandError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}
