package installments

import (
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/evdms/dealer-backend/pkg/errors"
)

// DefaultMaxMonths caps plan length when no limit is configured.
const DefaultMaxMonths = 60

var (
	hundred       = decimal.NewFromInt(100)
	monthsPerYear = decimal.NewFromInt(1200)
)

// Slice is one computed installment.
type Slice struct {
	Number  int
	Amount  decimal.Decimal
	DueDate time.Time
}

// Schedule splits total into months equal installments. annualRate is a percentage; zero divides
// the total evenly, otherwise the amortized payment total*r*(1+r)^N/((1+r)^N-1) with r = R/1200 is
// used. Due dates fall on the same day of each month from firstDue.
func Schedule(total decimal.Decimal, months int, annualRate decimal.Decimal, firstDue time.Time) ([]Slice, error) {
	if !total.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total must be positive")
	}
	if months <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "months must be positive")
	}
	if annualRate.IsNegative() || annualRate.GreaterThan(hundred) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "annual rate must be between 0 and 100")
	}
	if firstDue.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "first due date required")
	}

	amount := MonthlyPayment(total, months, annualRate)
	slices := make([]Slice, 0, months)
	for i := 1; i <= months; i++ {
		slices = append(slices, Slice{
			Number:  i,
			Amount:  amount,
			DueDate: firstDue.AddDate(0, i-1, 0),
		})
	}
	return slices, nil
}

// MonthlyPayment returns the per-installment amount rounded to cents.
func MonthlyPayment(total decimal.Decimal, months int, annualRate decimal.Decimal) decimal.Decimal {
	n := decimal.NewFromInt(int64(months))
	if annualRate.IsZero() {
		return total.Div(n).Round(2)
	}
	r := annualRate.Div(monthsPerYear)
	growth := decimal.NewFromInt(1).Add(r).Pow(n)
	return total.Mul(r).Mul(growth).Div(growth.Sub(decimal.NewFromInt(1))).Round(2)
}
