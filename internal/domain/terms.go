package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

const (
	MaxInterestRatePercent = 100
	MaxDurationDays        = 3650

	// MaxRateDecimals matches the scale the rate is stored with.
	MaxRateDecimals = 6

	// maxPrincipalMinor keeps principal plus full interest inside int64.
	maxPrincipalMinor = math.MaxInt64 / 4
)

// LoanTerms holds what a loan costs and how long it runs.
type LoanTerms struct {
	Principal           Money           `json:"principal"`
	InterestRatePercent decimal.Decimal `json:"interest_rate_percent"`
	DurationDays        int             `json:"duration_days"`
}

// NewLoanTerms validates and builds loan terms.
func NewLoanTerms(principal Money, ratePercent decimal.Decimal, durationDays int) (LoanTerms, error) {
	t := LoanTerms{
		Principal:           principal,
		InterestRatePercent: ratePercent,
		DurationDays:        durationDays,
	}
	if err := t.Validate(); err != nil {
		return LoanTerms{}, err
	}
	return t, nil
}

// Validate checks the terms invariants.
func (t LoanTerms) Validate() error {
	if t.Principal.Minor <= 0 {
		return fmt.Errorf("%w: principal must be positive", ErrInvalidTerms)
	}
	if t.Principal.Minor > maxPrincipalMinor {
		return fmt.Errorf("%w: principal too large", ErrInvalidTerms)
	}
	if !boundedDecimal(t.InterestRatePercent) {
		return fmt.Errorf("%w: interest rate out of range", ErrInvalidTerms)
	}
	if t.InterestRatePercent.IsNegative() {
		return fmt.Errorf("%w: interest rate must not be negative", ErrInvalidTerms)
	}
	if t.InterestRatePercent.GreaterThan(decimal.NewFromInt(MaxInterestRatePercent)) {
		return fmt.Errorf("%w: interest rate above %d%%", ErrInvalidTerms, MaxInterestRatePercent)
	}
	if r := t.InterestRatePercent; r.Exponent() < -MaxRateDecimals && !r.Equal(r.Truncate(MaxRateDecimals)) {
		return fmt.Errorf("%w: interest rate has more than %d decimal places", ErrInvalidTerms, MaxRateDecimals)
	}
	if t.DurationDays <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidTerms)
	}
	if t.DurationDays > MaxDurationDays {
		return fmt.Errorf("%w: duration above %d days", ErrInvalidTerms, MaxDurationDays)
	}
	return nil
}

// Interest is floor(principal * rate / 100) in minor units.
func (t LoanTerms) Interest() Money {
	interest, err := t.Principal.ScaleByPercent(t.InterestRatePercent)
	if err != nil {
		// unreachable for validated terms
		return Money{Currency: t.Principal.Currency, Decimals: t.Principal.Decimals}
	}
	return interest
}

// TotalRepayment is principal plus interest.
func (t LoanTerms) TotalRepayment() Money {
	total, err := t.Principal.Add(t.Interest())
	if err != nil {
		return t.Principal
	}
	return total
}
