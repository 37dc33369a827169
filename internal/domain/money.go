package domain

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxDecimals bounds the precision of a currency.
const MaxDecimals = 18

var maxMinor = decimal.NewFromInt(math.MaxInt64)

// Parsed decimals outside these bounds are rejected before any rescaling.
const (
	maxInputScale = 2 * MaxDecimals
	maxInputBits  = 160
)

// boundedDecimal reports whether d has a sane exponent and coefficient size.
func boundedDecimal(d decimal.Decimal) bool {
	exp := d.Exponent()
	return exp >= -maxInputScale && exp <= maxInputScale && d.Coefficient().BitLen() <= maxInputBits
}

// Money is an amount held in integer minor units of a currency.
type Money struct {
	Minor    int64  `json:"minor"`
	Currency string `json:"currency"`
	Decimals int32  `json:"decimals"`
}

// NewMoney builds Money from minor units.
func NewMoney(minor int64, currency string, decimals int32) Money {
	return Money{Minor: minor, Currency: strings.ToUpper(currency), Decimals: decimals}
}

// ParseMoney converts a major-unit decimal string into Money.
// Fractional digits beyond decimals are floored away.
func ParseMoney(s, currency string, decimals int32) (Money, error) {
	if decimals < 0 || decimals > MaxDecimals {
		return Money{}, fmt.Errorf("%w: unsupported precision %d", ErrInvalidAmount, decimals)
	}

	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, s)
	}

	if d.IsNegative() {
		return Money{}, fmt.Errorf("%w: negative amount", ErrInvalidAmount)
	}
	if !boundedDecimal(d) {
		return Money{}, fmt.Errorf("%w: amount out of range", ErrInvalidAmount)
	}

	minor := d.Shift(decimals).Floor()
	if minor.GreaterThan(maxMinor) {
		return Money{}, fmt.Errorf("%w: amount out of range", ErrInvalidAmount)
	}

	return NewMoney(minor.IntPart(), currency, decimals), nil
}

// Decimal returns the major-unit value.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Minor, -m.Decimals)
}

// Major formats the amount in major units with exactly Decimals fractional digits.
func (m Money) Major() string {
	return m.Decimal().StringFixed(m.Decimals)
}

func (m Money) String() string {
	if m.Currency == "" {
		return m.Major()
	}
	return m.Major() + " " + m.Currency
}

func (m Money) IsPositive() bool { return m.Minor > 0 }

func (m Money) IsZero() bool { return m.Minor == 0 }

// SameUnit reports whether both amounts share currency and precision.
func (m Money) SameUnit(other Money) bool {
	return m.Currency == other.Currency && m.Decimals == other.Decimals
}

// Cmp compares two amounts of the same unit.
func (m Money) Cmp(other Money) (int, error) {
	if !m.SameUnit(other) {
		return 0, ErrCurrencyMismatch
	}
	switch {
	case m.Minor < other.Minor:
		return -1, nil
	case m.Minor > other.Minor:
		return 1, nil
	default:
		return 0, nil
	}
}

// Add sums two amounts of the same unit.
func (m Money) Add(other Money) (Money, error) {
	if !m.SameUnit(other) {
		return Money{}, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	if other.Minor > 0 && m.Minor > math.MaxInt64-other.Minor {
		return Money{}, fmt.Errorf("%w: sum out of range", ErrInvalidAmount)
	}
	if other.Minor < 0 && m.Minor < math.MinInt64-other.Minor {
		return Money{}, fmt.Errorf("%w: sum out of range", ErrInvalidAmount)
	}
	return Money{Minor: m.Minor + other.Minor, Currency: m.Currency, Decimals: m.Decimals}, nil
}

// ScaleByPercent returns floor(amount * percent / 100) in the same unit.
func (m Money) ScaleByPercent(percent decimal.Decimal) (Money, error) {
	if percent.IsNegative() {
		return Money{}, fmt.Errorf("%w: negative percentage", ErrInvalidAmount)
	}

	scaled := decimal.NewFromInt(m.Minor).Mul(percent).Shift(-2).Floor()
	if scaled.GreaterThan(maxMinor) {
		return Money{}, fmt.Errorf("%w: scaled amount out of range", ErrInvalidAmount)
	}

	return Money{Minor: scaled.IntPart(), Currency: m.Currency, Decimals: m.Decimals}, nil
}

// ToChainUnits converts the amount to the integer base units of a chain asset.
// Precision the chain cannot express is floored.
func (m Money) ToChainUnits(chainDecimals int32) (*big.Int, error) {
	if chainDecimals < 0 || chainDecimals > 36 {
		return nil, fmt.Errorf("%w: unsupported chain precision %d", ErrInvalidAmount, chainDecimals)
	}
	return decimal.NewFromInt(m.Minor).Shift(chainDecimals - m.Decimals).Floor().BigInt(), nil
}
