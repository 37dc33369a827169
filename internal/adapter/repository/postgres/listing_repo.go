package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/loanledger/internal/domain"
	"github.com/iho/loanledger/internal/usecase"
)

const listingColumns = `
	id, kind, owner_address, principal_minor, currency, decimals,
	interest_rate_percent::text, duration_days, purpose, status,
	COALESCE(close_reason, ''), COALESCE(loan_id, ''), created_at, closed_at`

// ListingRepository implements usecase.ListingRepository.
type ListingRepository struct {
	db      DB
	retrier *Retrier
}

// NewListingRepository creates a new ListingRepository.
func NewListingRepository(db DB, retrier *Retrier) *ListingRepository {
	return &ListingRepository{db: db, retrier: retrier}
}

// Create inserts a listing within a transaction.
func (r *ListingRepository) Create(ctx context.Context, tx usecase.Transaction, l *domain.Listing) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO listings (
			id, kind, owner_address, principal_minor, currency, decimals,
			interest_rate_percent, duration_days, purpose, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11)
	`

	_, err = q.Exec(ctx, query,
		l.ID,
		string(l.Kind),
		l.OwnerAddress,
		l.Terms.Principal.Minor,
		l.Terms.Principal.Currency,
		l.Terms.Principal.Decimals,
		l.Terms.InterestRatePercent.String(),
		l.Terms.DurationDays,
		l.Purpose,
		string(l.Status),
		l.CreatedAt,
	)

	return mapError(err, domain.ErrListingNotFound)
}

// GetByID retrieves a listing by ID.
func (r *ListingRepository) GetByID(ctx context.Context, id string) (*domain.Listing, error) {
	var listing *domain.Listing
	err := r.retrier.Retry(ctx, func() error {
		var err error
		listing, err = scanListing(r.db.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id))
		return err
	})
	if err != nil {
		return nil, mapError(err, domain.ErrListingNotFound)
	}
	return listing, nil
}

// GetByIDForUpdate locks the listing row for the rest of the transaction.
func (r *ListingRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Listing, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}

	listing, err := scanListing(q.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, mapError(err, domain.ErrListingNotFound)
	}
	return listing, nil
}

// CloseIfActive closes the listing only while it is still active.
func (r *ListingRepository) CloseIfActive(ctx context.Context, tx usecase.Transaction, id string, reason domain.CloseReason, loanID string, closedAt time.Time) (bool, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE listings
		SET status = 'closed', close_reason = $2, loan_id = NULLIF($3, ''), closed_at = $4
		WHERE id = $1 AND status = 'active'
	`

	tag, err := q.Exec(ctx, query, id, string(reason), loanID, closedAt)
	if err != nil {
		return false, mapError(err, domain.ErrListingNotFound)
	}
	return tag.RowsAffected() == 1, nil
}

// ListActive returns the newest active listings of a kind.
func (r *ListingRepository) ListActive(ctx context.Context, kind domain.ListingKind, limit int) ([]*domain.Listing, error) {
	query := `SELECT ` + listingColumns + `
		FROM listings
		WHERE kind = $1 AND status = 'active'
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	return r.list(ctx, query, string(kind), limit)
}

// ListByOwner returns listings published by owner, newest first.
func (r *ListingRepository) ListByOwner(ctx context.Context, owner string, limit, offset int) ([]*domain.Listing, error) {
	query := `SELECT ` + listingColumns + `
		FROM listings
		WHERE owner_address = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	return r.list(ctx, query, owner, limit, offset)
}

func (r *ListingRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Listing, error) {
	var listings []*domain.Listing
	err := r.retrier.Retry(ctx, func() error {
		rows, err := r.db.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		listings = listings[:0]
		for rows.Next() {
			l, err := scanListing(rows)
			if err != nil {
				return err
			}
			listings = append(listings, l)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, mapError(err, domain.ErrListingNotFound)
	}
	return listings, nil
}

func scanListing(row pgx.Row) (*domain.Listing, error) {
	var (
		l           domain.Listing
		kind        string
		status      string
		closeReason string
		rate        string
	)

	err := row.Scan(
		&l.ID,
		&kind,
		&l.OwnerAddress,
		&l.Terms.Principal.Minor,
		&l.Terms.Principal.Currency,
		&l.Terms.Principal.Decimals,
		&rate,
		&l.Terms.DurationDays,
		&l.Purpose,
		&status,
		&closeReason,
		&l.LoanID,
		&l.CreatedAt,
		&l.ClosedAt,
	)
	if err != nil {
		return nil, err
	}

	l.Kind = domain.ListingKind(kind)
	l.Status = domain.ListingStatus(status)
	l.CloseReason = domain.CloseReason(closeReason)
	l.Terms.InterestRatePercent, err = decimal.NewFromString(rate)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s has rate %q", domain.ErrInvalidTerms, l.ID, rate)
	}
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("%w: stored listing %s: %w", domain.ErrInvalidTerms, l.ID, err)
	}

	return &l, nil
}
