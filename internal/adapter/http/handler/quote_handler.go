package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/iho/loanledger/internal/adapter/http/dto"
	"github.com/iho/loanledger/internal/domain"
	"github.com/iho/loanledger/internal/usecase"
)

// TermsBuilder parses user input into validated loan terms.
type TermsBuilder interface {
	BuildTerms(principal string, rate *decimal.Decimal, durationDays int) (domain.LoanTerms, error)
}

// RepaymentQuoter computes repayment previews.
type RepaymentQuoter interface {
	Quote(terms domain.LoanTerms) usecase.RepaymentQuote
}

// QuoteHandler serves repayment previews. It touches no store.
type QuoteHandler struct {
	terms  TermsBuilder
	quoter RepaymentQuoter
}

// NewQuoteHandler creates a new QuoteHandler.
func NewQuoteHandler(terms TermsBuilder, quoter RepaymentQuoter) *QuoteHandler {
	return &QuoteHandler{terms: terms, quoter: quoter}
}

// Repayment previews interest, total repayment and due date for a set of terms.
func (h *QuoteHandler) Repayment(w http.ResponseWriter, r *http.Request) {
	var req dto.QuoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	terms, err := h.terms.BuildTerms(req.Principal, req.InterestRatePercent, req.DurationDays)
	if err != nil {
		writeDomainError(w, "invalid terms", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.QuoteFromUseCase(h.quoter.Quote(terms)))
}
