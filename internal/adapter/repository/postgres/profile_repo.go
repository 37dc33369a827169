package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/iho/loanledger/internal/domain"
	"github.com/iho/loanledger/internal/usecase"
)

// ProfileRepository stores wallet users and their credit profiles.
type ProfileRepository struct {
	db      DB
	retrier *Retrier
}

// NewProfileRepository creates a new profile repository.
func NewProfileRepository(db DB, retrier *Retrier) *ProfileRepository {
	return &ProfileRepository{db: db, retrier: retrier}
}

// EnsureUser registers address on first use.
func (r *ProfileRepository) EnsureUser(ctx context.Context, tx usecase.Transaction, address string, at time.Time) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `INSERT INTO users (address, created_at) VALUES ($1, $2) ON CONFLICT (address) DO NOTHING`, address, at)
	return mapError(err, domain.ErrProfileNotFound)
}

// Upsert stores the latest profile, registering the user if needed.
func (r *ProfileRepository) Upsert(ctx context.Context, p *domain.CreditProfile) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO users (address, created_at) VALUES ($1, $2) ON CONFLICT (address) DO NOTHING`,
			p.Address, p.UpdatedAt,
		); err != nil {
			return err
		}

		query := `
			INSERT INTO credit_profiles (
				address, risk_score, risk_level, good_loans, defaulted_loans,
				max_loan_minor, currency, decimals, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (address) DO UPDATE SET
				risk_score = EXCLUDED.risk_score,
				risk_level = EXCLUDED.risk_level,
				good_loans = EXCLUDED.good_loans,
				defaulted_loans = EXCLUDED.defaulted_loans,
				max_loan_minor = EXCLUDED.max_loan_minor,
				currency = EXCLUDED.currency,
				decimals = EXCLUDED.decimals,
				updated_at = EXCLUDED.updated_at
		`

		_, err := tx.Exec(ctx, query,
			p.Address,
			p.RiskScore,
			string(p.RiskLevel),
			p.History.GoodLoans,
			p.History.DefaultedLoans,
			p.MaxLoan.Minor,
			p.MaxLoan.Currency,
			p.MaxLoan.Decimals,
			p.UpdatedAt,
		)
		return err
	})

	return mapError(err, domain.ErrProfileNotFound)
}

// GetByAddress retrieves the profile of address.
func (r *ProfileRepository) GetByAddress(ctx context.Context, address string) (*domain.CreditProfile, error) {
	query := `
		SELECT address, risk_score, risk_level, good_loans, defaulted_loans,
		       max_loan_minor, currency, decimals, updated_at
		FROM credit_profiles
		WHERE address = $1
	`

	var (
		p     domain.CreditProfile
		level string
	)
	err := r.retrier.Retry(ctx, func() error {
		return r.db.QueryRow(ctx, query, address).Scan(
			&p.Address,
			&p.RiskScore,
			&level,
			&p.History.GoodLoans,
			&p.History.DefaultedLoans,
			&p.MaxLoan.Minor,
			&p.MaxLoan.Currency,
			&p.MaxLoan.Decimals,
			&p.UpdatedAt,
		)
	})
	if err != nil {
		return nil, mapError(err, domain.ErrProfileNotFound)
	}

	p.RiskLevel = domain.RiskLevel(level)
	return &p, nil
}

// ListAddresses pages through every known wallet.
func (r *ProfileRepository) ListAddresses(ctx context.Context, limit, offset int) ([]string, error) {
	var addresses []string
	err := r.retrier.Retry(ctx, func() error {
		rows, err := r.db.Query(ctx, `SELECT address FROM users ORDER BY address LIMIT $1 OFFSET $2`, limit, offset)
		if err != nil {
			return err
		}
		addresses, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})
	if err != nil {
		return nil, mapError(err, domain.ErrProfileNotFound)
	}
	return addresses, nil
}
