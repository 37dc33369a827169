package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/loanledger/internal/adapter/http/dto"
	"github.com/iho/loanledger/internal/domain"
)

// CreditService defines the behavior needed by CreditHandler.
type CreditService interface {
	ProfileFor(ctx context.Context, address, caller string) (*domain.CreditProfile, error)
}

// CreditHandler serves credit profiles.
type CreditHandler struct {
	creditUC CreditService
}

// NewCreditHandler creates a new CreditHandler.
func NewCreditHandler(creditUC CreditService) *CreditHandler {
	return &CreditHandler{creditUC: creditUC}
}

// Get returns the profile of an address. Only the address itself or a loan
// party gets a profile computed on first access.
func (h *CreditHandler) Get(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	profile, err := h.creditUC.ProfileFor(r.Context(), address, callerAddress(r))
	if err != nil {
		writeDomainError(w, "failed to get credit profile", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.CreditProfileFromDomain(profile))
}
