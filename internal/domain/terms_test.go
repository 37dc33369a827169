package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func usd(minor int64) Money { return NewMoney(minor, "USD", 2) }

func TestNewLoanTerms(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		minor    int64
		rate     string
		duration int
		wantErr  bool
	}{
		{name: "valid", minor: 100000, rate: "5", duration: 30},
		{name: "zero rate allowed", minor: 100000, rate: "0", duration: 30},
		{name: "zero principal", minor: 0, rate: "5", duration: 30, wantErr: true},
		{name: "negative principal", minor: -1, rate: "5", duration: 30, wantErr: true},
		{name: "negative rate", minor: 100, rate: "-0.1", duration: 30, wantErr: true},
		{name: "rate above cap", minor: 100, rate: "100.01", duration: 30, wantErr: true},
		{name: "zero duration", minor: 100, rate: "1", duration: 0, wantErr: true},
		{name: "duration above cap", minor: 100, rate: "1", duration: MaxDurationDays + 1, wantErr: true},
		{name: "six rate decimals", minor: 100, rate: "8.333333", duration: 30},
		{name: "trailing zeros beyond scale", minor: 100, rate: "8.50000000", duration: 30},
		{name: "seven rate decimals", minor: 100, rate: "8.3333339", duration: 30, wantErr: true},
		{name: "tiny rate exponent", minor: 100, rate: "1e-20000000", duration: 30, wantErr: true},
		{name: "huge rate exponent", minor: 100, rate: "1e20000000", duration: 30, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoanTerms(usd(tt.minor), decimal.RequireFromString(tt.rate), tt.duration)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTerms) {
					t.Fatalf("expected ErrInvalidTerms, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoanTerms_TotalRepayment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		minor int64
		rate  string
		want  string
	}{
		{name: "500 at 8.5", minor: 50000, rate: "8.5", want: "542.50"},
		{name: "500 at 8.33", minor: 50000, rate: "8.33", want: "541.65"},
		{name: "1000 at 0", minor: 100000, rate: "0", want: "1000.00"},
		{name: "floors sub-cent interest", minor: 101, rate: "33.3333", want: "1.34"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			terms, err := NewLoanTerms(usd(tt.minor), decimal.RequireFromString(tt.rate), 30)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := terms.TotalRepayment().Major(); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

// total == principal + floor(principal * rate / 100) for a grid of inputs.
func TestLoanTerms_TotalRepaymentMatchesFloorFormula(t *testing.T) {
	t.Parallel()

	rates := []string{"0", "0.01", "1", "3.75", "8.5", "12.345", "99.99", "100"}
	principals := []int64{1, 7, 99, 100, 12345, 999999, 5_000_000_00}

	for _, r := range rates {
		rate := decimal.RequireFromString(r)
		for _, p := range principals {
			terms, err := NewLoanTerms(usd(p), rate, 10)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			interest := decimal.NewFromInt(p).Mul(rate).Div(decimal.NewFromInt(100)).Floor().IntPart()
			if got := terms.TotalRepayment().Minor; got != p+interest {
				t.Errorf("principal=%d rate=%s: expected %d, got %d", p, r, p+interest, got)
			}
		}
	}
}
