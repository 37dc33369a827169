package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/loanledger/internal/domain"
	"github.com/iho/loanledger/internal/infrastructure/metrics"
	"github.com/iho/loanledger/internal/usecase"
	"github.com/iho/loanledger/internal/usecase/mocks"
)

const (
	borrowerAddr = "0xb0b"
	lenderAddr   = "0xa11ce"
	strangerAddr = "0xeve"
)

var testCurrency = usecase.CurrencyConfig{Code: "USDC", Decimals: 2, ChainDecimals: 6}

type fixture struct {
	txManager *mocks.MockTxManager
	listings  *mocks.MockListingRepository
	loans     *mocks.MockLoanRepository
	profiles  *mocks.MockProfileRepository
	outbox    *mocks.MockOutboxRepository
	audit     *mocks.MockAuditRepository
	intents   *mocks.MockIntentStore
	idGen     *mocks.MockIDGen
	metrics   *metrics.Metrics
	now       time.Time

	listingUC *usecase.ListingUseCase
	lendingUC *usecase.LendingUseCase
}

func newFixture(t *testing.T, verifier usecase.TransferVerifier) *fixture {
	t.Helper()

	f := &fixture{
		txManager: mocks.NewMockTxManager(),
		listings:  mocks.NewMockListingRepository(),
		loans:     mocks.NewMockLoanRepository(),
		profiles:  mocks.NewMockProfileRepository(),
		outbox:    mocks.NewMockOutboxRepository(),
		audit:     mocks.NewMockAuditRepository(),
		intents:   mocks.NewMockIntentStore(),
		idGen:     mocks.NewMockIDGen(),
		metrics:   metrics.NewWithRegisterer(prometheus.NewRegistry()),
		now:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	f.listingUC = usecase.NewListingUseCase(
		f.txManager, f.listings, f.profiles, f.outbox, f.audit, f.intents, f.idGen, f.metrics,
		usecase.ListingUseCaseConfig{Currency: testCurrency},
		zerolog.Nop(),
	)
	f.listingUC.SetClock(f.clock)

	f.lendingUC = usecase.NewLendingUseCase(
		f.txManager, f.listings, f.loans, f.outbox, f.audit, f.intents, verifier, f.idGen, f.metrics,
		usecase.LendingUseCaseConfig{Currency: testCurrency, IntentTTL: time.Minute},
		zerolog.Nop(),
	)
	f.lendingUC.SetClock(f.clock)

	return f
}

func (f *fixture) clock() time.Time { return f.now }

func rate(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// createRequest publishes a 500.00 USDC request at 8.5% for 30 days.
func (f *fixture) createRequest(t *testing.T) *domain.Listing {
	t.Helper()

	listing, err := f.listingUC.CreateListing(context.Background(), usecase.CreateListingInput{
		Kind:         domain.ListingKindRequest,
		OwnerAddress: borrowerAddr,
		Principal:    "500.00",
		RatePercent:  rate("8.5"),
		DurationDays: 30,
		Purpose:      "inventory",
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return listing
}

// fundedLoan runs the whole funding flow and returns the active loan.
func (f *fixture) fundedLoan(t *testing.T) *domain.LoanRecord {
	t.Helper()
	ctx := context.Background()

	listing := f.createRequest(t)
	res, err := f.lendingUC.FundListing(ctx, listing.ID, lenderAddr)
	if err != nil {
		t.Fatalf("fund listing: %v", err)
	}
	loan, err := f.lendingUC.ConfirmFunding(ctx, res.Record.ID, "sig-funding")
	if err != nil {
		t.Fatalf("confirm funding: %v", err)
	}
	return loan
}
