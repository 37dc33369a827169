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

const loanColumns = `
	id, listing_id, listing_kind, lender_address, borrower_address,
	principal_minor, currency, decimals, interest_rate_percent::text, duration_days,
	total_repayment_minor, start_date, status, funding_transfer_ref,
	COALESCE(repayment_transfer_ref, ''), repaid_at, created_at`

// LoanRepository implements usecase.LoanRepository.
type LoanRepository struct {
	db      DB
	retrier *Retrier
}

// NewLoanRepository creates a new LoanRepository.
func NewLoanRepository(db DB, retrier *Retrier) *LoanRepository {
	return &LoanRepository{db: db, retrier: retrier}
}

// Create inserts an active loan. A second loan for the same listing or
// the same funding transfer violates a unique index and maps to ErrConflict.
func (r *LoanRepository) Create(ctx context.Context, tx usecase.Transaction, loan *domain.LoanRecord) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO loans (
			id, listing_id, listing_kind, lender_address, borrower_address,
			principal_minor, currency, decimals, interest_rate_percent, duration_days,
			total_repayment_minor, start_date, status, funding_transfer_ref, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10, $11, $12, $13, $14, $15)
	`

	_, err = q.Exec(ctx, query,
		loan.ID,
		loan.ListingID,
		string(loan.ListingKind),
		loan.LenderAddress,
		loan.BorrowerAddress,
		loan.Terms.Principal.Minor,
		loan.Terms.Principal.Currency,
		loan.Terms.Principal.Decimals,
		loan.Terms.InterestRatePercent.String(),
		loan.Terms.DurationDays,
		loan.TotalRepaymentAmount.Minor,
		loan.StartDate,
		string(loan.Status),
		loan.FundingTransferRef,
		loan.CreatedAt,
	)

	return mapError(err, domain.ErrListingNotFound)
}

// GetByID retrieves a loan by ID.
func (r *LoanRepository) GetByID(ctx context.Context, id string) (*domain.LoanRecord, error) {
	var loan *domain.LoanRecord
	err := r.retrier.Retry(ctx, func() error {
		var err error
		loan, err = scanLoan(r.db.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id))
		return err
	})
	if err != nil {
		return nil, mapError(err, domain.ErrLoanNotFound)
	}
	return loan, nil
}

// MarkRepaidIfActive flips an active loan to repaid.
func (r *LoanRepository) MarkRepaidIfActive(ctx context.Context, tx usecase.Transaction, id, transferRef string, repaidAt time.Time) (bool, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE loans
		SET status = 'repaid', repayment_transfer_ref = $2, repaid_at = $3
		WHERE id = $1 AND status = 'active'
	`

	tag, err := q.Exec(ctx, query, id, transferRef, repaidAt)
	if err != nil {
		return false, mapError(err, domain.ErrLoanNotFound)
	}
	return tag.RowsAffected() == 1, nil
}

// FindByTransferRef returns the loan whose funding or repayment used ref.
func (r *LoanRepository) FindByTransferRef(ctx context.Context, tx usecase.Transaction, ref string) (*domain.LoanRecord, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + loanColumns + ` FROM loans
		WHERE funding_transfer_ref = $1 OR repayment_transfer_ref = $1
		LIMIT 1`

	loan, err := scanLoan(q.QueryRow(ctx, query, ref))
	if err != nil {
		return nil, mapError(err, domain.ErrLoanNotFound)
	}
	return loan, nil
}

// ListByParty lists loans by lender, borrower, or either side.
func (r *LoanRepository) ListByParty(ctx context.Context, address string, role domain.PartyRole, limit, offset int) ([]*domain.LoanRecord, error) {
	var where string
	switch role {
	case domain.PartyRoleLender:
		where = `lender_address = $1`
	case domain.PartyRoleBorrower:
		where = `borrower_address = $1`
	default:
		where = `(lender_address = $1 OR borrower_address = $1)`
	}

	query := `SELECT ` + loanColumns + ` FROM loans WHERE ` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	var loans []*domain.LoanRecord
	err := r.retrier.Retry(ctx, func() error {
		rows, err := r.db.Query(ctx, query, address, limit, offset)
		if err != nil {
			return err
		}
		defer rows.Close()

		loans = loans[:0]
		for rows.Next() {
			loan, err := scanLoan(rows)
			if err != nil {
				return err
			}
			loans = append(loans, loan)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, mapError(err, domain.ErrLoanNotFound)
	}
	return loans, nil
}

// History counts repaid and overdue loans where address borrowed.
func (r *LoanRepository) History(ctx context.Context, address string, now time.Time) (domain.LoanHistory, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'repaid'),
			COUNT(*) FILTER (WHERE status = 'active' AND start_date + make_interval(days => duration_days) < $2)
		FROM loans
		WHERE borrower_address = $1
	`

	var good, defaulted int64
	err := r.retrier.Retry(ctx, func() error {
		return r.db.QueryRow(ctx, query, address, now).Scan(&good, &defaulted)
	})
	if err != nil {
		return domain.LoanHistory{}, mapError(err, domain.ErrLoanNotFound)
	}

	return domain.LoanHistory{GoodLoans: int(good), DefaultedLoans: int(defaulted)}, nil
}

func scanLoan(row pgx.Row) (*domain.LoanRecord, error) {
	var (
		l        domain.LoanRecord
		kind     string
		status   string
		rate     string
		totalMin int64
	)

	err := row.Scan(
		&l.ID,
		&l.ListingID,
		&kind,
		&l.LenderAddress,
		&l.BorrowerAddress,
		&l.Terms.Principal.Minor,
		&l.Terms.Principal.Currency,
		&l.Terms.Principal.Decimals,
		&rate,
		&l.Terms.DurationDays,
		&totalMin,
		&l.StartDate,
		&status,
		&l.FundingTransferRef,
		&l.RepaymentTransferRef,
		&l.RepaidAt,
		&l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.ListingKind = domain.ListingKind(kind)
	l.Status = domain.LoanStatus(status)
	l.TotalRepaymentAmount = domain.NewMoney(totalMin, l.Terms.Principal.Currency, l.Terms.Principal.Decimals)
	l.Terms.InterestRatePercent, err = decimal.NewFromString(rate)
	if err != nil {
		return nil, fmt.Errorf("%w: loan %s has rate %q", domain.ErrInvalidTerms, l.ID, rate)
	}
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("%w: stored loan %s: %w", domain.ErrInvalidTerms, l.ID, err)
	}

	return &l, nil
}
