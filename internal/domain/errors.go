package domain

import (
	"errors"
	"fmt"
)

var (
	// Validation errors
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidTerms          = errors.New("invalid loan terms")
	ErrCurrencyMismatch      = errors.New("currency mismatch")
	ErrSelfFundingNotAllowed = errors.New("lender and borrower must differ")
	ErrAmountExceedsLimit    = errors.New("amount exceeds credit limit")

	// Lifecycle errors
	ErrListingAlreadyClosed = errors.New("listing already closed")
	ErrConflict             = errors.New("concurrent modification")
	ErrAlreadyConfirmed     = errors.New("already confirmed with a different transfer")

	// Collaborator errors
	ErrTransferFailed         = errors.New("transfer failed")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")

	ErrNotFound = errors.New("not found")
)

var (
	ErrInvalidListingKind = fmt.Errorf("%w: unknown listing kind", ErrInvalidTerms)
	ErrListingNotFound    = fmt.Errorf("listing %w", ErrNotFound)
	ErrLoanNotFound       = fmt.Errorf("loan %w", ErrNotFound)
	ErrIntentNotFound     = fmt.Errorf("transfer intent %w", ErrNotFound)
	ErrProfileNotFound    = fmt.Errorf("credit profile %w", ErrNotFound)
	ErrLoanAlreadyRepaid  = fmt.Errorf("%w: loan already repaid", ErrAlreadyConfirmed)
)
