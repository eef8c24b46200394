package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"stocktrack/internal/domain"
)

// ReceiptFile is the YAML form of a supplier receipt:
//
//	company: Acme
//	date: 2024-01-01
//	lines:
//	  - name: Apple
//	    quantity: 10
//	    unit_cost: 100.50
type ReceiptFile struct {
	Company string            `yaml:"company"`
	Date    string            `yaml:"date"`
	Lines   []ReceiptLineFile `yaml:"lines"`
}

type ReceiptLineFile struct {
	Name     string `yaml:"name"`
	Quantity int64  `yaml:"quantity"`
	UnitCost string `yaml:"unit_cost"`
}

// SaleFile is the YAML form of a sale.
type SaleFile struct {
	Date         string         `yaml:"date"`
	CustomerName string         `yaml:"customer_name"`
	Lines        []SaleLineFile `yaml:"lines"`
}

type SaleLineFile struct {
	Name      string `yaml:"name"`
	Quantity  int64  `yaml:"quantity"`
	UnitPrice string `yaml:"unit_price"`
}

func LoadReceiptRequest(path string) (domain.ReceiptRequest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.ReceiptRequest{}, WrapExitError(ExitCommandError, "read receipt file", err)
	}
	return ParseReceiptRequest(raw)
}

func ParseReceiptRequest(raw []byte) (domain.ReceiptRequest, error) {
	var file ReceiptFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return domain.ReceiptRequest{}, WrapExitError(ExitCommandError, "parse receipt file", err)
	}

	date, err := parseDate("date", file.Date)
	if err != nil {
		return domain.ReceiptRequest{}, err
	}
	req := domain.ReceiptRequest{
		Company: file.Company,
		Date:    date,
		Lines:   make([]domain.ReceiptLine, 0, len(file.Lines)),
	}
	for i, line := range file.Lines {
		cost, err := parseDecimal(fmt.Sprintf("lines[%d].unit_cost", i), line.UnitCost)
		if err != nil {
			return domain.ReceiptRequest{}, err
		}
		req.Lines = append(req.Lines, domain.ReceiptLine{Name: line.Name, Quantity: line.Quantity, UnitCost: cost})
	}
	return req, nil
}

func LoadSaleRequest(path string) (domain.SaleRequest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.SaleRequest{}, WrapExitError(ExitCommandError, "read sale file", err)
	}
	return ParseSaleRequest(raw)
}

func ParseSaleRequest(raw []byte) (domain.SaleRequest, error) {
	var file SaleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return domain.SaleRequest{}, WrapExitError(ExitCommandError, "parse sale file", err)
	}

	date, err := parseDate("date", file.Date)
	if err != nil {
		return domain.SaleRequest{}, err
	}
	req := domain.SaleRequest{
		Date:         date,
		CustomerName: file.CustomerName,
		Lines:        make([]domain.SaleLineRequest, 0, len(file.Lines)),
	}
	for i, line := range file.Lines {
		price, err := parseDecimal(fmt.Sprintf("lines[%d].unit_price", i), line.UnitPrice)
		if err != nil {
			return domain.SaleRequest{}, err
		}
		req.Lines = append(req.Lines, domain.SaleLineRequest{Name: line.Name, Quantity: line.Quantity, UnitPrice: price})
	}
	return req, nil
}

// parseDate accepts YYYY-MM-DD or RFC 3339. An empty value yields the zero
// time so the service reports the missing field.
func parseDate(field string, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(domain.DateLayout, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, domain.NewValidationError(field, fmt.Sprintf("expected %s, got %q", domain.DateLayout, value))
	}
	return t.UTC(), nil
}

func parseDecimal(field string, value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, domain.NewValidationError(field, fmt.Sprintf("not a number: %q", value))
	}
	return d, nil
}
