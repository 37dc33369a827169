package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/loanledger/internal/adapter/http/dto"
	"github.com/iho/loanledger/internal/domain"
	"github.com/iho/loanledger/internal/usecase"
)

// LendingService defines the behavior needed by LoanHandler.
type LendingService interface {
	FundListing(ctx context.Context, listingID, funder string) (*usecase.FundingResult, error)
	PendingFunding(ctx context.Context, listingID, caller string) (*usecase.FundingResult, error)
	ConfirmFunding(ctx context.Context, recordID, transferRef string) (*domain.LoanRecord, error)
	CancelFunding(ctx context.Context, recordID, caller string) error
	RepayLoan(ctx context.Context, loanID, borrower string) (*usecase.RepaymentResult, error)
	ConfirmRepayment(ctx context.Context, loanID, transferRef string) (*domain.LoanRecord, error)
	GetLoan(ctx context.Context, id string) (*domain.LoanRecord, error)
	ListLoans(ctx context.Context, address string, role domain.PartyRole, limit, offset int) ([]*domain.LoanRecord, error)
}

// LoanHandler handles funding and repayment HTTP requests.
type LoanHandler struct {
	lendingUC LendingService
}

// NewLoanHandler creates a new LoanHandler.
func NewLoanHandler(lendingUC LendingService) *LoanHandler {
	return &LoanHandler{lendingUC: lendingUC}
}

// Fund matches the caller against a listing and returns the transfer to execute.
func (h *LoanHandler) Fund(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing listing ID", "")
		return
	}

	result, err := h.lendingUC.FundListing(r.Context(), id, callerAddress(r))
	if err != nil {
		writeDomainError(w, "failed to fund listing", err)
		return
	}

	writeJSON(w, http.StatusAccepted, dto.FundingFromResult(result))
}

// PendingFunding shows either party the funding a listing is waiting on.
func (h *LoanHandler) PendingFunding(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := h.lendingUC.PendingFunding(r.Context(), id, callerAddress(r))
	if err != nil {
		writeDomainError(w, "failed to get pending funding", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.FundingFromResult(result))
}

// ConfirmFunding records the loan once the funding transfer is known.
func (h *LoanHandler) ConfirmFunding(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req dto.ConfirmTransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	record, err := h.lendingUC.ConfirmFunding(r.Context(), id, req.TransferRef)
	if err != nil {
		writeDomainError(w, "failed to confirm funding", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.LoanFromDomain(record))
}

// CancelFunding drops a pending funding intent and frees its listing.
func (h *LoanHandler) CancelFunding(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.lendingUC.CancelFunding(r.Context(), id, callerAddress(r)); err != nil {
		writeDomainError(w, "failed to cancel funding", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Repay returns the repayment transfer the borrower must execute.
func (h *LoanHandler) Repay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := h.lendingUC.RepayLoan(r.Context(), id, callerAddress(r))
	if err != nil {
		writeDomainError(w, "failed to start repayment", err)
		return
	}

	writeJSON(w, http.StatusAccepted, dto.RepaymentFromResult(result))
}

// ConfirmRepayment marks the loan repaid once the transfer is known.
func (h *LoanHandler) ConfirmRepayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req dto.ConfirmTransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	record, err := h.lendingUC.ConfirmRepayment(r.Context(), id, req.TransferRef)
	if err != nil {
		writeDomainError(w, "failed to confirm repayment", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LoanFromDomain(record))
}

// Get retrieves a loan by ID.
func (h *LoanHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing loan ID", "")
		return
	}

	record, err := h.lendingUC.GetLoan(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to get loan", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LoanFromDomain(record))
}

// List lists loans of an address. Without ?address= the caller's loans are listed.
func (h *LoanHandler) List(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		address = callerAddress(r)
	}

	role := domain.PartyRole(r.URL.Query().Get("role"))
	if !role.IsValid() {
		writeError(w, http.StatusBadRequest, "invalid role", "role must be lender or borrower")
		return
	}

	limit := parseIntQuery(r, "limit", 20)
	offset := parseIntQuery(r, "offset", 0)

	records, err := h.lendingUC.ListLoans(r.Context(), address, role, limit, offset)
	if err != nil {
		writeDomainError(w, "failed to list loans", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LoansFromDomain(records))
}
