package sqlite

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/iho/loanledger/internal/domain"
	"github.com/iho/loanledger/internal/usecase"
)

// ListingRepository implements usecase.ListingRepository.
type ListingRepository struct {
	db *gorm.DB
}

// NewListingRepository creates a new ListingRepository.
func NewListingRepository(db *gorm.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// Create inserts a listing within a transaction.
func (r *ListingRepository) Create(ctx context.Context, tx usecase.Transaction, l *domain.Listing) error {
	db, err := gormTx(ctx, tx)
	if err != nil {
		return err
	}
	return mapError(db.Create(listingFromDomain(l)).Error, domain.ErrListingNotFound)
}

// GetByID retrieves a listing by ID.
func (r *ListingRepository) GetByID(ctx context.Context, id string) (*domain.Listing, error) {
	var m listingModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, mapError(err, domain.ErrListingNotFound)
	}
	return m.toDomain()
}

// GetByIDForUpdate reads the listing inside tx. SQLite locks the whole
// database for the writer, so no row lock clause is needed.
func (r *ListingRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Listing, error) {
	db, err := gormTx(ctx, tx)
	if err != nil {
		return nil, err
	}

	var m listingModel
	if err := db.First(&m, "id = ?", id).Error; err != nil {
		return nil, mapError(err, domain.ErrListingNotFound)
	}
	return m.toDomain()
}

// CloseIfActive closes the listing only while it is still active.
func (r *ListingRepository) CloseIfActive(ctx context.Context, tx usecase.Transaction, id string, reason domain.CloseReason, loanID string, closedAt time.Time) (bool, error) {
	db, err := gormTx(ctx, tx)
	if err != nil {
		return false, err
	}

	res := db.Model(&listingModel{}).
		Where("id = ? AND status = ?", id, string(domain.ListingStatusActive)).
		Updates(map[string]any{
			"status":       string(domain.ListingStatusClosed),
			"close_reason": string(reason),
			"loan_id":      loanID,
			"closed_at":    closedAt,
		})
	if res.Error != nil {
		return false, mapError(res.Error, domain.ErrListingNotFound)
	}
	return res.RowsAffected == 1, nil
}

// ListActive returns the newest active listings of a kind.
func (r *ListingRepository) ListActive(ctx context.Context, kind domain.ListingKind, limit int) ([]*domain.Listing, error) {
	return r.list(r.db.WithContext(ctx).
		Where("kind = ? AND status = ?", string(kind), string(domain.ListingStatusActive)).
		Order("created_at DESC, id DESC").
		Limit(limit))
}

// ListByOwner returns listings published by owner, newest first.
func (r *ListingRepository) ListByOwner(ctx context.Context, owner string, limit, offset int) ([]*domain.Listing, error) {
	return r.list(r.db.WithContext(ctx).
		Where("owner_address = ?", owner).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset))
}

func (r *ListingRepository) list(q *gorm.DB) ([]*domain.Listing, error) {
	var rows []listingModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]*domain.Listing, 0, len(rows))
	for i := range rows {
		l, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}
