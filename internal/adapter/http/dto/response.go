package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/loanledger/internal/domain"
	"github.com/iho/loanledger/internal/usecase"
)

// MoneyResponse is an amount in both major and minor units.
type MoneyResponse struct {
	Amount   string `json:"amount"`
	Minor    int64  `json:"minor"`
	Currency string `json:"currency"`
}

// MoneyFromDomain converts domain money to response.
func MoneyFromDomain(m domain.Money) MoneyResponse {
	return MoneyResponse{
		Amount:   m.Major(),
		Minor:    m.Minor,
		Currency: m.Currency,
	}
}

// TermsResponse represents loan terms in API responses.
type TermsResponse struct {
	Principal           MoneyResponse   `json:"principal"`
	InterestRatePercent decimal.Decimal `json:"interest_rate_percent"`
	DurationDays        int             `json:"duration_days"`
}

// TermsFromDomain converts domain terms to response.
func TermsFromDomain(t domain.LoanTerms) TermsResponse {
	return TermsResponse{
		Principal:           MoneyFromDomain(t.Principal),
		InterestRatePercent: t.InterestRatePercent,
		DurationDays:        t.DurationDays,
	}
}

// ListingResponse represents a listing in API responses.
type ListingResponse struct {
	ID           string        `json:"id"`
	Kind         string        `json:"kind"`
	OwnerAddress string        `json:"owner_address"`
	Terms        TermsResponse `json:"terms"`
	Purpose      string        `json:"purpose,omitempty"`
	Status       string        `json:"status"`
	CloseReason  string        `json:"close_reason,omitempty"`
	LoanID       string        `json:"loan_id,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	ClosedAt     *time.Time    `json:"closed_at,omitempty"`
}

// ListingFromDomain converts a domain listing to response.
func ListingFromDomain(l *domain.Listing) *ListingResponse {
	return &ListingResponse{
		ID:           l.ID,
		Kind:         string(l.Kind),
		OwnerAddress: l.OwnerAddress,
		Terms:        TermsFromDomain(l.Terms),
		Purpose:      l.Purpose,
		Status:       string(l.Status),
		CloseReason:  string(l.CloseReason),
		LoanID:       l.LoanID,
		CreatedAt:    l.CreatedAt,
		ClosedAt:     l.ClosedAt,
	}
}

// ListingsFromDomain converts domain listings to responses.
func ListingsFromDomain(listings []*domain.Listing) []*ListingResponse {
	result := make([]*ListingResponse, len(listings))
	for i, l := range listings {
		result[i] = ListingFromDomain(l)
	}
	return result
}

// LoanResponse represents a loan record in API responses.
type LoanResponse struct {
	ID                   string        `json:"id"`
	ListingID            string        `json:"listing_id"`
	ListingKind          string        `json:"listing_kind"`
	LenderAddress        string        `json:"lender_address"`
	BorrowerAddress      string        `json:"borrower_address"`
	Terms                TermsResponse `json:"terms"`
	TotalRepaymentAmount MoneyResponse `json:"total_repayment_amount"`
	StartDate            time.Time     `json:"start_date"`
	DueDate              time.Time     `json:"due_date"`
	Status               string        `json:"status"`
	FundingTransferRef   string        `json:"funding_transfer_ref,omitempty"`
	RepaymentTransferRef string        `json:"repayment_transfer_ref,omitempty"`
	RepaidAt             *time.Time    `json:"repaid_at,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
}

// LoanFromDomain converts a domain loan record to response.
func LoanFromDomain(r *domain.LoanRecord) *LoanResponse {
	return &LoanResponse{
		ID:                   r.ID,
		ListingID:            r.ListingID,
		ListingKind:          string(r.ListingKind),
		LenderAddress:        r.LenderAddress,
		BorrowerAddress:      r.BorrowerAddress,
		Terms:                TermsFromDomain(r.Terms),
		TotalRepaymentAmount: MoneyFromDomain(r.TotalRepaymentAmount),
		StartDate:            r.StartDate,
		DueDate:              r.DueDate(),
		Status:               string(r.Status),
		FundingTransferRef:   r.FundingTransferRef,
		RepaymentTransferRef: r.RepaymentTransferRef,
		RepaidAt:             r.RepaidAt,
		CreatedAt:            r.CreatedAt,
	}
}

// LoansFromDomain converts domain loan records to responses.
func LoansFromDomain(records []*domain.LoanRecord) []*LoanResponse {
	result := make([]*LoanResponse, len(records))
	for i, r := range records {
		result[i] = LoanFromDomain(r)
	}
	return result
}

// TransferResponse tells the client which wallet transfer to execute.
type TransferResponse struct {
	From       string        `json:"from"`
	To         string        `json:"to"`
	Amount     MoneyResponse `json:"amount"`
	ChainUnits string        `json:"chain_units"`
}

// TransferFromDomain converts a required transfer to response.
func TransferFromDomain(t domain.RequiredTransfer) TransferResponse {
	units := "0"
	if t.ChainUnits != nil {
		units = t.ChainUnits.String()
	}
	return TransferResponse{
		From:       t.From,
		To:         t.To,
		Amount:     MoneyFromDomain(t.Amount),
		ChainUnits: units,
	}
}

// IntentResponse is a pending loan plus the transfer that confirms it.
type IntentResponse struct {
	Loan             *LoanResponse    `json:"loan"`
	RequiredTransfer TransferResponse `json:"required_transfer"`
	ExpiresAt        time.Time        `json:"expires_at"`
}

// FundingFromResult converts a funding result to response.
func FundingFromResult(res *usecase.FundingResult) *IntentResponse {
	return &IntentResponse{
		Loan:             LoanFromDomain(res.Record),
		RequiredTransfer: TransferFromDomain(res.RequiredTransfer),
		ExpiresAt:        res.ExpiresAt,
	}
}

// RepaymentFromResult converts a repayment result to response.
func RepaymentFromResult(res *usecase.RepaymentResult) *IntentResponse {
	return &IntentResponse{
		Loan:             LoanFromDomain(res.Record),
		RequiredTransfer: TransferFromDomain(res.RequiredTransfer),
		ExpiresAt:        res.ExpiresAt,
	}
}

// CreditProfileResponse represents a credit profile in API responses.
type CreditProfileResponse struct {
	Address        string        `json:"address"`
	RiskScore      int           `json:"risk_score"`
	RiskLevel      string        `json:"risk_level"`
	GoodLoans      int           `json:"good_loans"`
	DefaultedLoans int           `json:"defaulted_loans"`
	MaxLoan        MoneyResponse `json:"max_loan"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// CreditProfileFromDomain converts a credit profile to response.
func CreditProfileFromDomain(p *domain.CreditProfile) *CreditProfileResponse {
	return &CreditProfileResponse{
		Address:        p.Address,
		RiskScore:      p.RiskScore,
		RiskLevel:      string(p.RiskLevel),
		GoodLoans:      p.History.GoodLoans,
		DefaultedLoans: p.History.DefaultedLoans,
		MaxLoan:        MoneyFromDomain(p.MaxLoan),
		UpdatedAt:      p.UpdatedAt,
	}
}

// QuoteResponse is a repayment preview.
type QuoteResponse struct {
	Terms          TermsResponse `json:"terms"`
	Interest       MoneyResponse `json:"interest"`
	TotalRepayment MoneyResponse `json:"total_repayment"`
	DueDate        time.Time     `json:"due_date"`
}

// QuoteFromUseCase converts a repayment quote to response.
func QuoteFromUseCase(q usecase.RepaymentQuote) *QuoteResponse {
	return &QuoteResponse{
		Terms:          TermsFromDomain(q.Terms),
		Interest:       MoneyFromDomain(q.Interest),
		TotalRepayment: MoneyFromDomain(q.TotalRepayment),
		DueDate:        q.DueDate,
	}
}

// ChallengeResponse is the message a wallet must sign to log in.
type ChallengeResponse struct {
	Address   string    `json:"address"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenResponse is an issued session token.
type TokenResponse struct {
	Address   string    `json:"address"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
