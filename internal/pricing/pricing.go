package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Policy derives a default selling price from a unit cost.
type Policy interface {
	SellingPrice(unitCost decimal.Decimal) decimal.Decimal
	Name() string
}

const (
	PolicyMarkup      = "markup"
	PolicyTaxDiscount = "tax_discount"
)

var DefaultMarkupRate = decimal.RequireFromString("0.2")

// Markup prices at cost * (1 + Rate).
type Markup struct {
	Rate decimal.Decimal
}

func NewMarkup(rate decimal.Decimal) Markup {
	return Markup{Rate: rate}
}

// Default is the 20% markup used when receipts carry no selling price.
func Default() Markup {
	return Markup{Rate: DefaultMarkupRate}
}

func (m Markup) SellingPrice(unitCost decimal.Decimal) decimal.Decimal {
	return unitCost.Mul(decimal.NewFromInt(1).Add(m.Rate))
}

func (m Markup) Name() string {
	return PolicyMarkup
}

// TaxDiscount adds tax on cost, then takes the discount off the taxed price:
// cost * (1 + Tax) * (1 - Discount).
type TaxDiscount struct {
	Tax      decimal.Decimal
	Discount decimal.Decimal
}

func (t TaxDiscount) SellingPrice(unitCost decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	return unitCost.Mul(one.Add(t.Tax)).Mul(one.Sub(t.Discount))
}

func (t TaxDiscount) Name() string {
	return PolicyTaxDiscount
}

// FromName builds the policy selected by configuration.
func FromName(name string, markupRate, taxRate, discountRate decimal.Decimal) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyMarkup:
		return NewMarkup(markupRate), nil
	case PolicyTaxDiscount:
		return TaxDiscount{Tax: taxRate, Discount: discountRate}, nil
	default:
		return nil, fmt.Errorf("unknown pricing policy %q", name)
	}
}
