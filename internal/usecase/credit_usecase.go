package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/loanledger/internal/domain"
	"github.com/iho/loanledger/internal/infrastructure/metrics"
)

const refreshBatchSize = 100

// CreditUseCase maintains borrower credit profiles.
type CreditUseCase struct {
	loanRepo    LoanRepository
	profileRepo ProfileRepository
	balances    BalanceReader
	activity    ActivityReader
	metrics     *metrics.Metrics
	currency    CurrencyConfig
	log         zerolog.Logger
	now         func() time.Time
}

// NewCreditUseCase creates a new CreditUseCase. balances and activity may be
// nil, in which case their components of the score are zero.
func NewCreditUseCase(
	loanRepo LoanRepository,
	profileRepo ProfileRepository,
	balances BalanceReader,
	activity ActivityReader,
	metrics *metrics.Metrics,
	currency CurrencyConfig,
	log zerolog.Logger,
) *CreditUseCase {
	return &CreditUseCase{
		loanRepo:    loanRepo,
		profileRepo: profileRepo,
		balances:    balances,
		activity:    activity,
		metrics:     metrics,
		currency:    currency,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source.
func (uc *CreditUseCase) SetClock(now func() time.Time) {
	uc.now = now
}

// GetProfile returns the stored profile for address.
func (uc *CreditUseCase) GetProfile(ctx context.Context, address string) (*domain.CreditProfile, error) {
	address, err := domain.RequireAddress(address)
	if err != nil {
		return nil, err
	}

	profile, err := uc.profileRepo.GetByAddress(ctx, address)
	if err != nil {
		return nil, storeErr(err)
	}
	return profile, nil
}

// ProfileFor returns the profile of address as requested by caller. A
// missing profile is computed only when caller asks for their own address
// or address is a party to some loan; anyone else gets ErrProfileNotFound.
func (uc *CreditUseCase) ProfileFor(ctx context.Context, address, caller string) (*domain.CreditProfile, error) {
	profile, err := uc.GetProfile(ctx, address)
	if !errors.Is(err, domain.ErrNotFound) {
		return profile, err
	}

	if !domain.SameAddress(caller, address) {
		loans, err := uc.loanRepo.ListByParty(ctx, domain.NormalizeAddress(address), domain.PartyRoleAny, 1, 0)
		if err != nil {
			return nil, storeErr(err)
		}
		if len(loans) == 0 {
			return nil, fmt.Errorf("%w: %s", domain.ErrProfileNotFound, address)
		}
	}

	return uc.RefreshProfile(ctx, address)
}

// RefreshProfile recomputes and stores the profile of one address.
func (uc *CreditUseCase) RefreshProfile(ctx context.Context, address string) (*domain.CreditProfile, error) {
	address, err := domain.RequireAddress(address)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	history, err := uc.loanRepo.History(ctx, address, now)
	if err != nil {
		return nil, storeErr(err)
	}

	profile := domain.NewCreditProfile(address, history, uc.walletSignals(ctx, address), uc.currency.Code, uc.currency.Decimals, now)
	if err := uc.profileRepo.Upsert(ctx, profile); err != nil {
		return nil, storeErr(err)
	}

	return profile, nil
}

// walletSignals reads what the chain can tell about address. Lookup failures
// only drop the affected component.
func (uc *CreditUseCase) walletSignals(ctx context.Context, address string) domain.WalletSignals {
	signals := domain.WalletSignals{Balance: decimal.Zero}

	if uc.balances != nil {
		b, err := uc.balances.NativeBalance(ctx, address)
		if err != nil {
			uc.log.Warn().Err(err).Str("address", address).Msg("balance lookup failed, scoring without it")
		} else {
			signals.Balance = b
		}
	}

	if uc.activity != nil {
		a, err := uc.activity.WalletActivity(ctx, address)
		if err != nil {
			uc.log.Warn().Err(err).Str("address", address).Msg("activity lookup failed, scoring without it")
		} else {
			signals.WalletActivity = a
		}
	}

	return signals
}

// RefreshAll recomputes every known profile. Individual failures are logged
// and counted; the sweep continues.
func (uc *CreditUseCase) RefreshAll(ctx context.Context) (int, error) {
	refreshed := 0
	var failures []error

	for offset := 0; ; offset += refreshBatchSize {
		addresses, err := uc.profileRepo.ListAddresses(ctx, refreshBatchSize, offset)
		if err != nil {
			return refreshed, storeErr(err)
		}

		for _, addr := range addresses {
			if ctx.Err() != nil {
				return refreshed, ctx.Err()
			}

			if _, err := uc.RefreshProfile(ctx, addr); err != nil {
				failures = append(failures, err)
				uc.count("error")
				uc.log.Error().Err(err).Str("address", addr).Msg("credit refresh failed")
				continue
			}
			refreshed++
			uc.count("success")
		}

		if len(addresses) < refreshBatchSize {
			break
		}
	}

	uc.log.Info().Int("refreshed", refreshed).Int("failed", len(failures)).Msg("credit profiles refreshed")

	return refreshed, errors.Join(failures...)
}

func (uc *CreditUseCase) count(status string) {
	if uc.metrics != nil {
		uc.metrics.CreditRefreshes.WithLabelValues(status).Inc()
	}
}
