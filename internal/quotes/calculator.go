package quotes

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evdms/dealer-backend/pkg/config"
)

var hundred = decimal.NewFromInt(100)

// Policy holds the pricing knobs applied to every quote.
type Policy struct {
	VATRate         decimal.Decimal
	VIPDiscountRate decimal.Decimal
	VIPThreshold    decimal.Decimal
	ValidityDays    int
}

// DefaultPolicy is 10% VAT and a 5% VIP discount from 5,000,000,000 spent, valid 30 days.
func DefaultPolicy() Policy {
	return Policy{
		VATRate:         decimal.RequireFromString("0.10"),
		VIPDiscountRate: decimal.RequireFromString("0.05"),
		VIPThreshold:    decimal.NewFromInt(5_000_000_000),
		ValidityDays:    30,
	}
}

func PolicyFromConfig(cfg config.QuoteConfig) Policy {
	p := Policy{
		VATRate:         cfg.VATRate,
		VIPDiscountRate: cfg.VIPDiscountRate,
		VIPThreshold:    cfg.VIPThreshold,
		ValidityDays:    cfg.ValidityDays,
	}
	if p.ValidityDays <= 0 {
		p.ValidityDays = DefaultPolicy().ValidityDays
	}
	return p
}

// IsVIP applies the threshold rule on top of the stored flag.
func (p Policy) IsVIP(c CustomerSnapshot) bool {
	return c.IsVIP || (p.VIPThreshold.IsPositive() && c.TotalSpent.GreaterThanOrEqual(p.VIPThreshold))
}

// LineInput is one priced vehicle line.
type LineInput struct {
	VehicleID                uuid.UUID
	Quantity                 int
	UnitPrice                decimal.Decimal
	PromotionDiscountPercent decimal.Decimal
}

type CustomerSnapshot struct {
	IsVIP      bool
	TotalSpent decimal.Decimal
}

type Totals struct {
	LineTotals []decimal.Decimal
	Subtotal   decimal.Decimal
	VAT        decimal.Decimal
	Discount   decimal.Decimal
	FinalTotal decimal.Decimal
	VIP        bool
}

// LineTotal is quantity x unit price less the promotion percentage, rounded to cents.
func LineTotal(line LineInput) decimal.Decimal {
	gross := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
	keep := hundred.Sub(line.PromotionDiscountPercent).Div(hundred)
	return gross.Mul(keep).Round(2)
}

// Calculate prices the lines for the customer. It has no side effects.
func Calculate(lines []LineInput, customer CustomerSnapshot, policy Policy) Totals {
	totals := Totals{
		LineTotals: make([]decimal.Decimal, len(lines)),
		Subtotal:   decimal.Zero,
		Discount:   decimal.Zero,
	}
	for i, line := range lines {
		lt := LineTotal(line)
		totals.LineTotals[i] = lt
		totals.Subtotal = totals.Subtotal.Add(lt)
	}
	totals.VAT = totals.Subtotal.Mul(policy.VATRate).Round(2)
	totals.VIP = policy.IsVIP(customer)
	if totals.VIP {
		totals.Discount = totals.Subtotal.Add(totals.VAT).Mul(policy.VIPDiscountRate).Round(2)
	}
	totals.FinalTotal = totals.Subtotal.Add(totals.VAT).Sub(totals.Discount)
	return totals
}
