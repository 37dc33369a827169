package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/loanledger/internal/adapter/http/dto"
	"github.com/iho/loanledger/internal/domain"
	"github.com/iho/loanledger/internal/usecase"
)

// ListingService defines the behavior needed by ListingHandler.
type ListingService interface {
	CreateListing(ctx context.Context, input usecase.CreateListingInput) (*domain.Listing, error)
	WithdrawListing(ctx context.Context, listingID, caller string) (*domain.Listing, error)
	GetListing(ctx context.Context, id string) (*domain.Listing, error)
	ListActive(ctx context.Context, kind domain.ListingKind) ([]*domain.Listing, error)
	ListByOwner(ctx context.Context, owner string, limit, offset int) ([]*domain.Listing, error)
}

// ListingHandler handles listing-related HTTP requests.
type ListingHandler struct {
	listingUC ListingService
}

// NewListingHandler creates a new ListingHandler.
func NewListingHandler(listingUC ListingService) *ListingHandler {
	return &ListingHandler{listingUC: listingUC}
}

// Create publishes a loan request or offer owned by the caller.
func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateListingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	input, err := req.ToUseCaseInput(callerAddress(r))
	if err != nil {
		writeDomainError(w, "invalid listing", err)
		return
	}

	listing, err := h.listingUC.CreateListing(r.Context(), input)
	if err != nil {
		writeDomainError(w, "failed to create listing", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.ListingFromDomain(listing))
}

// Get retrieves a listing by ID.
func (h *ListingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing listing ID", "")
		return
	}

	listing, err := h.listingUC.GetListing(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to get listing", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ListingFromDomain(listing))
}

// List lists active listings of one kind, or every listing of an owner
// when ?owner= is given.
func (h *ListingHandler) List(w http.ResponseWriter, r *http.Request) {
	if owner := r.URL.Query().Get("owner"); owner != "" {
		limit := parseIntQuery(r, "limit", 20)
		offset := parseIntQuery(r, "offset", 0)

		listings, err := h.listingUC.ListByOwner(r.Context(), owner, limit, offset)
		if err != nil {
			writeDomainError(w, "failed to list listings", err)
			return
		}
		writeJSON(w, http.StatusOK, dto.ListingsFromDomain(listings))
		return
	}

	kind, err := domain.ParseListingKind(r.URL.Query().Get("kind"))
	if err != nil {
		writeDomainError(w, "invalid listing kind", err)
		return
	}

	listings, err := h.listingUC.ListActive(r.Context(), kind)
	if err != nil {
		writeDomainError(w, "failed to list listings", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ListingsFromDomain(listings))
}

// Withdraw closes an active listing on behalf of its owner.
func (h *ListingHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing listing ID", "")
		return
	}

	listing, err := h.listingUC.WithdrawListing(r.Context(), id, callerAddress(r))
	if err != nil {
		writeDomainError(w, "failed to withdraw listing", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ListingFromDomain(listing))
}
