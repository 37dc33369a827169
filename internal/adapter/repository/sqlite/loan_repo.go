package sqlite

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/iho/loanledger/internal/domain"
	"github.com/iho/loanledger/internal/usecase"
)

// LoanRepository implements usecase.LoanRepository.
type LoanRepository struct {
	db *gorm.DB
}

// NewLoanRepository creates a new LoanRepository.
func NewLoanRepository(db *gorm.DB) *LoanRepository {
	return &LoanRepository{db: db}
}

// Create inserts an active loan. A second loan for the same listing or
// funding transfer hits a unique index and maps to ErrConflict.
func (r *LoanRepository) Create(ctx context.Context, tx usecase.Transaction, loan *domain.LoanRecord) error {
	db, err := gormTx(ctx, tx)
	if err != nil {
		return err
	}
	return mapError(db.Create(loanFromDomain(loan)).Error, domain.ErrListingNotFound)
}

// GetByID retrieves a loan by ID.
func (r *LoanRepository) GetByID(ctx context.Context, id string) (*domain.LoanRecord, error) {
	var m loanModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, mapError(err, domain.ErrLoanNotFound)
	}
	return m.toDomain()
}

// MarkRepaidIfActive flips an active loan to repaid.
func (r *LoanRepository) MarkRepaidIfActive(ctx context.Context, tx usecase.Transaction, id, transferRef string, repaidAt time.Time) (bool, error) {
	db, err := gormTx(ctx, tx)
	if err != nil {
		return false, err
	}

	res := db.Model(&loanModel{}).
		Where("id = ? AND status = ?", id, string(domain.LoanStatusActive)).
		Updates(map[string]any{
			"status":                 string(domain.LoanStatusRepaid),
			"repayment_transfer_ref": transferRef,
			"repaid_at":              repaidAt,
		})
	if res.Error != nil {
		return false, mapError(res.Error, domain.ErrLoanNotFound)
	}
	return res.RowsAffected == 1, nil
}

// FindByTransferRef returns the loan whose funding or repayment used ref.
func (r *LoanRepository) FindByTransferRef(ctx context.Context, tx usecase.Transaction, ref string) (*domain.LoanRecord, error) {
	db, err := gormTx(ctx, tx)
	if err != nil {
		return nil, err
	}

	var m loanModel
	if err := db.Where("funding_transfer_ref = ? OR repayment_transfer_ref = ?", ref, ref).First(&m).Error; err != nil {
		return nil, mapError(err, domain.ErrLoanNotFound)
	}
	return m.toDomain()
}

// ListByParty lists loans by lender, borrower, or either side.
func (r *LoanRepository) ListByParty(ctx context.Context, address string, role domain.PartyRole, limit, offset int) ([]*domain.LoanRecord, error) {
	q := r.db.WithContext(ctx)
	switch role {
	case domain.PartyRoleLender:
		q = q.Where("lender_address = ?", address)
	case domain.PartyRoleBorrower:
		q = q.Where("borrower_address = ?", address)
	default:
		q = q.Where("lender_address = ? OR borrower_address = ?", address, address)
	}

	var rows []loanModel
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]*domain.LoanRecord, 0, len(rows))
	for i := range rows {
		loan, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, loan)
	}
	return out, nil
}

// History counts repaid and overdue loans where address borrowed. Due
// dates are compared in Go since SQLite has no interval arithmetic.
func (r *LoanRepository) History(ctx context.Context, address string, now time.Time) (domain.LoanHistory, error) {
	var rows []loanModel
	err := r.db.WithContext(ctx).
		Select("id", "status", "start_date", "duration_days").
		Where("borrower_address = ? AND status IN ?", address, []string{string(domain.LoanStatusActive), string(domain.LoanStatusRepaid)}).
		Find(&rows).Error
	if err != nil {
		return domain.LoanHistory{}, err
	}

	var h domain.LoanHistory
	for _, m := range rows {
		switch {
		case m.Status == string(domain.LoanStatusRepaid):
			h.GoodLoans++
		case m.StartDate.AddDate(0, 0, m.DurationDays).Before(now):
			h.DefaultedLoans++
		}
	}
	return h, nil
}
