package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/iho/loanledger/internal/domain"
)

// unavailable tags collaborator failures as retryable persistence errors.
func unavailable(err error) error {
	if err == nil || errors.Is(err, domain.ErrPersistenceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrPersistenceUnavailable, err)
}

// storeErr passes domain errors through and marks everything else unavailable.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return unavailable(err)
	}
	for _, known := range []error{
		domain.ErrNotFound,
		domain.ErrInvalidTerms,
		domain.ErrInvalidAmount,
		domain.ErrConflict,
		domain.ErrAlreadyConfirmed,
		domain.ErrListingAlreadyClosed,
		domain.ErrUnauthorized,
		domain.ErrSelfFundingNotAllowed,
		domain.ErrCurrencyMismatch,
		domain.ErrPersistenceUnavailable,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return unavailable(err)
}
