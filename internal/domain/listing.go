package domain

import (
	"fmt"
	"strings"
	"time"
)

// ListingKind distinguishes borrower requests from lender offers.
type ListingKind string

const (
	ListingKindRequest ListingKind = "request"
	ListingKindOffer   ListingKind = "offer"
)

// IsValid reports whether k is a known kind.
func (k ListingKind) IsValid() bool {
	return k == ListingKindRequest || k == ListingKindOffer
}

// ParseListingKind accepts "request" / "offer" in any case.
func ParseListingKind(s string) (ListingKind, error) {
	k := ListingKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidListingKind, s)
	}
	return k, nil
}

// ListingStatus is the listing state.
type ListingStatus string

const (
	ListingStatusActive ListingStatus = "active"
	ListingStatusClosed ListingStatus = "closed"
)

// CloseReason records why a listing left the active state.
type CloseReason string

const (
	CloseReasonMatched   CloseReason = "matched"
	CloseReasonWithdrawn CloseReason = "withdrawn"
)

const MaxPurposeLength = 1000

// Listing is an unmatched loan request or loan offer.
type Listing struct {
	ID           string        `json:"id"`
	Kind         ListingKind   `json:"kind"`
	OwnerAddress string        `json:"owner_address"`
	Terms        LoanTerms     `json:"terms"`
	Purpose      string        `json:"purpose,omitempty"`
	Status       ListingStatus `json:"status"`
	CloseReason  CloseReason   `json:"close_reason,omitempty"`
	LoanID       string        `json:"loan_id,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	ClosedAt     *time.Time    `json:"closed_at,omitempty"`
}

// NewListing creates an active listing owned by owner.
func NewListing(id string, kind ListingKind, owner string, terms LoanTerms, purpose string, now time.Time) (*Listing, error) {
	owner, err := RequireAddress(owner)
	if err != nil {
		return nil, err
	}
	if !kind.IsValid() {
		return nil, ErrInvalidListingKind
	}
	if err := terms.Validate(); err != nil {
		return nil, err
	}

	purpose = strings.TrimSpace(purpose)
	if len(purpose) > MaxPurposeLength {
		return nil, fmt.Errorf("%w: purpose exceeds %d characters", ErrInvalidTerms, MaxPurposeLength)
	}

	return &Listing{
		ID:           id,
		Kind:         kind,
		OwnerAddress: owner,
		Terms:        terms,
		Purpose:      purpose,
		Status:       ListingStatusActive,
		CreatedAt:    now,
	}, nil
}

// Validate checks a listing read back from storage.
func (l *Listing) Validate() error {
	if l.ID == "" || l.OwnerAddress == "" {
		return fmt.Errorf("%w: listing missing identity", ErrInvalidTerms)
	}
	if !l.Kind.IsValid() {
		return ErrInvalidListingKind
	}
	if l.Status != ListingStatusActive && l.Status != ListingStatusClosed {
		return fmt.Errorf("%w: unknown listing status %q", ErrInvalidTerms, l.Status)
	}
	return l.Terms.Validate()
}

func (l *Listing) IsActive() bool {
	return l.Status == ListingStatusActive
}

// Withdraw closes the listing at the owner's request.
func (l *Listing) Withdraw(caller string, now time.Time) error {
	if !SameAddress(caller, l.OwnerAddress) {
		return fmt.Errorf("%w: only the owner may withdraw a listing", ErrUnauthorized)
	}
	return l.close(CloseReasonWithdrawn, "", now)
}

// MarkMatched closes the listing as funded by loanID.
func (l *Listing) MarkMatched(loanID string, now time.Time) error {
	return l.close(CloseReasonMatched, loanID, now)
}

func (l *Listing) close(reason CloseReason, loanID string, now time.Time) error {
	if !l.IsActive() {
		return ErrListingAlreadyClosed
	}
	l.Status = ListingStatusClosed
	l.CloseReason = reason
	l.LoanID = loanID
	l.ClosedAt = &now
	return nil
}

// Parties resolves lender and borrower when funder takes this listing.
// A request is funded by a lender; an offer is taken by a borrower.
func (l *Listing) Parties(funder string) (lender, borrower string) {
	funder = NormalizeAddress(funder)
	if l.Kind == ListingKindOffer {
		return l.OwnerAddress, funder
	}
	return funder, l.OwnerAddress
}
