package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	MinRiskScore = 300
	MaxRiskScore = 850
)

// RiskLevel buckets a risk score.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// LoanHistory is a party's record on the platform.
type LoanHistory struct {
	GoodLoans      int `json:"good_loans"`
	DefaultedLoans int `json:"defaulted_loans"`
}

// CreditProfile is the platform's view of a borrower.
type CreditProfile struct {
	Address   string      `json:"address"`
	RiskScore int         `json:"risk_score"`
	RiskLevel RiskLevel   `json:"risk_level"`
	History   LoanHistory `json:"history"`
	MaxLoan   Money       `json:"max_loan"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// WalletActivity summarizes a wallet's on-chain history.
type WalletActivity struct {
	AgeDays    int `json:"age_days"`
	TxCount    int `json:"tx_count"`
	TokenKinds int `json:"token_kinds"`
}

// WalletSignals are the on-chain inputs of a risk score.
type WalletSignals struct {
	// Balance is the native balance in major units.
	Balance decimal.Decimal
	WalletActivity
}

var (
	goodLoanWeight      = decimal.NewFromInt(150)
	defaultedLoanWeight = decimal.NewFromInt(-300)
	balanceWeight       = decimal.NewFromInt(50)
	balanceCap          = decimal.NewFromInt(200)
	walletAgeWeight     = decimal.New(15, -1)
	txCountWeight       = decimal.New(5, -1)
	tokenKindWeight     = decimal.NewFromInt(10)
)

func nonNegative(n int) decimal.Decimal {
	if n < 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(n))
}

// RiskScore scores platform history and wallet signals into [300, 850].
func RiskScore(history LoanHistory, wallet WalletSignals) int {
	balance := wallet.Balance
	if balance.IsNegative() {
		balance = decimal.Zero
	}

	score := decimal.NewFromInt(MinRiskScore).
		Add(goodLoanWeight.Mul(decimal.NewFromInt(int64(history.GoodLoans)))).
		Add(defaultedLoanWeight.Mul(decimal.NewFromInt(int64(history.DefaultedLoans)))).
		Add(decimal.Min(balance.Mul(balanceWeight), balanceCap)).
		Add(walletAgeWeight.Mul(nonNegative(wallet.AgeDays))).
		Add(txCountWeight.Mul(nonNegative(wallet.TxCount))).
		Add(tokenKindWeight.Mul(nonNegative(wallet.TokenKinds)))

	s := int(score.Round(0).IntPart())
	switch {
	case s < MinRiskScore:
		return MinRiskScore
	case s > MaxRiskScore:
		return MaxRiskScore
	default:
		return s
	}
}

// RiskLevelFor maps a score to its level.
func RiskLevelFor(score int) RiskLevel {
	switch {
	case score > 700:
		return RiskLevelLow
	case score > 550:
		return RiskLevelMedium
	default:
		return RiskLevelHigh
	}
}

// baseLoanCap returns the whole-unit cap for a score band.
func baseLoanCap(score int) int64 {
	switch {
	case score < 400:
		return 50
	case score < 550:
		return 250
	case score < 700:
		return 1000
	default:
		return 5000
	}
}

// MaxLoanAmount is the largest principal a borrower may request, in whole units.
// Any default cuts the cap to a tenth; each good loan adds half of it.
func MaxLoanAmount(score int, history LoanHistory, currency string, decimals int32) Money {
	multiplier := decimal.New(1, -1)
	if history.DefaultedLoans == 0 {
		multiplier = decimal.NewFromInt(1).Add(decimal.New(5, -1).Mul(decimal.NewFromInt(int64(history.GoodLoans))))
	}

	whole := decimal.NewFromInt(baseLoanCap(score)).Mul(multiplier).Floor()
	return NewMoney(whole.Shift(decimals).IntPart(), currency, decimals)
}

// NewCreditProfile computes a fresh profile.
func NewCreditProfile(address string, history LoanHistory, wallet WalletSignals, currency string, decimals int32, now time.Time) *CreditProfile {
	score := RiskScore(history, wallet)
	return &CreditProfile{
		Address:   NormalizeAddress(address),
		RiskScore: score,
		RiskLevel: RiskLevelFor(score),
		History:   history,
		MaxLoan:   MaxLoanAmount(score, history, currency, decimals),
		UpdatedAt: now,
	}
}

// Allows reports whether principal fits under the profile's cap.
func (p *CreditProfile) Allows(principal Money) bool {
	cmp, err := principal.Cmp(p.MaxLoan)
	if err != nil {
		return false
	}
	return cmp <= 0
}
