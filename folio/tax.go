package folio

import (
	"context"

	"github.com/shopspring/decimal"
)

// TaxLookup supplies the flat list of percentage rates from the tax master.
type TaxLookup interface {
	Rates(ctx context.Context) ([]decimal.Decimal, error)
}

// StaticRates is a TaxLookup over a fixed list.
type StaticRates []decimal.Decimal

func (s StaticRates) Rates(context.Context) ([]decimal.Decimal, error) { return s, nil }

var hundred = decimal.NewFromInt(100)

// TaxOn applies the sum of all rates to base and rounds to MoneyPlaces at the
// point of application.
func TaxOn(ctx context.Context, lookup TaxLookup, base decimal.Decimal) (decimal.Decimal, error) {
	if lookup == nil {
		return decimal.Zero, nil
	}
	rates, err := lookup.Rates(ctx)
	if err != nil {
		return decimal.Zero, storeErr("tax rates", err)
	}
	pct := Sum(rates...)
	return base.Mul(pct).Div(hundred).Round(MoneyPlaces), nil
}
