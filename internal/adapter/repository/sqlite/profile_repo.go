package sqlite

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/iho/loanledger/internal/domain"
	"github.com/iho/loanledger/internal/usecase"
)

// ProfileRepository stores wallet users and their credit profiles.
type ProfileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// EnsureUser registers address on first use.
func (r *ProfileRepository) EnsureUser(ctx context.Context, tx usecase.Transaction, address string, at time.Time) error {
	db, err := gormTx(ctx, tx)
	if err != nil {
		return err
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&userModel{Address: address, CreatedAt: at}).Error
}

// Upsert stores the latest profile, registering the user if needed.
func (r *ProfileRepository) Upsert(ctx context.Context, p *domain.CreditProfile) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&userModel{Address: p.Address, CreatedAt: p.UpdatedAt}).Error; err != nil {
			return err
		}

		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&profileModel{
			Address:        p.Address,
			RiskScore:      p.RiskScore,
			RiskLevel:      string(p.RiskLevel),
			GoodLoans:      p.History.GoodLoans,
			DefaultedLoans: p.History.DefaultedLoans,
			MaxLoanMinor:   p.MaxLoan.Minor,
			Currency:       p.MaxLoan.Currency,
			Decimals:       p.MaxLoan.Decimals,
			UpdatedAt:      p.UpdatedAt,
		}).Error
	})
}

// GetByAddress retrieves the profile of address.
func (r *ProfileRepository) GetByAddress(ctx context.Context, address string) (*domain.CreditProfile, error) {
	var m profileModel
	if err := r.db.WithContext(ctx).First(&m, "address = ?", address).Error; err != nil {
		return nil, mapError(err, domain.ErrProfileNotFound)
	}

	return &domain.CreditProfile{
		Address:   m.Address,
		RiskScore: m.RiskScore,
		RiskLevel: domain.RiskLevel(m.RiskLevel),
		History: domain.LoanHistory{
			GoodLoans:      m.GoodLoans,
			DefaultedLoans: m.DefaultedLoans,
		},
		MaxLoan:   domain.NewMoney(m.MaxLoanMinor, m.Currency, m.Decimals),
		UpdatedAt: m.UpdatedAt,
	}, nil
}

// ListAddresses pages through every known wallet.
func (r *ProfileRepository) ListAddresses(ctx context.Context, limit, offset int) ([]string, error) {
	var addresses []string
	err := r.db.WithContext(ctx).Model(&userModel{}).
		Order("address").
		Limit(limit).
		Offset(offset).
		Pluck("address", &addresses).Error
	return addresses, err
}
