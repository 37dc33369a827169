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

// ListingUseCase handles the listing side of the ledger.
type ListingUseCase struct {
	txManager   TransactionManager
	listingRepo ListingRepository
	profileRepo ProfileRepository
	outboxRepo  OutboxRepository
	auditRepo   AuditRepository
	intents     IntentStore
	idGen       IDGenerator
	metrics     *metrics.Metrics
	currency    CurrencyConfig
	enforceCap  bool
	log         zerolog.Logger
	now         func() time.Time
}

// ListingUseCaseConfig carries the listing policy knobs.
type ListingUseCaseConfig struct {
	Currency CurrencyConfig
	// EnforceCreditLimit rejects requests above the borrower's max loan.
	EnforceCreditLimit bool
}

// NewListingUseCase creates a new ListingUseCase.
func NewListingUseCase(
	txManager TransactionManager,
	listingRepo ListingRepository,
	profileRepo ProfileRepository,
	outboxRepo OutboxRepository,
	auditRepo AuditRepository,
	intents IntentStore,
	idGen IDGenerator,
	metrics *metrics.Metrics,
	cfg ListingUseCaseConfig,
	log zerolog.Logger,
) *ListingUseCase {
	return &ListingUseCase{
		txManager:   txManager,
		listingRepo: listingRepo,
		profileRepo: profileRepo,
		outboxRepo:  outboxRepo,
		auditRepo:   auditRepo,
		intents:     intents,
		idGen:       idGen,
		metrics:     metrics,
		currency:    cfg.Currency,
		enforceCap:  cfg.EnforceCreditLimit,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source.
func (uc *ListingUseCase) SetClock(now func() time.Time) {
	uc.now = now
}

// CreateListingInput represents input for creating a listing.
type CreateListingInput struct {
	Kind         domain.ListingKind
	OwnerAddress string
	Principal    string
	// RatePercent is required for offers; requests default to zero.
	RatePercent  *decimal.Decimal
	DurationDays int
	Purpose      string
}

// BuildTerms parses principal and rate into validated loan terms.
func (uc *ListingUseCase) BuildTerms(principal string, rate *decimal.Decimal, durationDays int) (domain.LoanTerms, error) {
	amount, err := domain.ParseMoney(principal, uc.currency.Code, uc.currency.Decimals)
	if err != nil {
		return domain.LoanTerms{}, err
	}

	r := decimal.Zero
	if rate != nil {
		r = *rate
	}

	return domain.NewLoanTerms(amount, r, durationDays)
}

// CreateListing publishes a new request or offer.
func (uc *ListingUseCase) CreateListing(ctx context.Context, input CreateListingInput) (*domain.Listing, error) {
	owner, err := domain.RequireAddress(input.OwnerAddress)
	if err != nil {
		return nil, err
	}

	if input.Kind == domain.ListingKindOffer && input.RatePercent == nil {
		return nil, fmt.Errorf("%w: offers must carry an interest rate", domain.ErrInvalidTerms)
	}

	terms, err := uc.BuildTerms(input.Principal, input.RatePercent, input.DurationDays)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	listing, err := domain.NewListing(uc.idGen.Generate(), input.Kind, owner, terms, input.Purpose, now)
	if err != nil {
		return nil, err
	}

	if err := uc.checkCreditLimit(ctx, listing); err != nil {
		return nil, err
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, unavailable(err)
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	if uc.profileRepo != nil {
		if err := uc.profileRepo.EnsureUser(txCtx, tx, owner, now); err != nil {
			return nil, storeErr(err)
		}
	}

	if err := uc.listingRepo.Create(txCtx, tx, listing); err != nil {
		return nil, storeErr(err)
	}

	event := domain.NewListingEvent(uc.idGen.Generate(), domain.EventTypeListingCreated, listing, now)
	if err := uc.outboxRepo.Create(txCtx, tx, event); err != nil {
		return nil, storeErr(err)
	}

	if err := uc.audit(txCtx, tx, domain.AuditActionListingCreate, listing.ID, nil, listing); err != nil {
		return nil, storeErr(err)
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, unavailable(err)
	}

	if uc.metrics != nil {
		uc.metrics.ListingsCreated.WithLabelValues(string(listing.Kind)).Inc()
	}

	uc.log.Info().
		Str("listing_id", listing.ID).
		Str("kind", string(listing.Kind)).
		Str("owner", listing.OwnerAddress).
		Str("principal", listing.Terms.Principal.String()).
		Msg("listing created")

	return listing, nil
}

func (uc *ListingUseCase) checkCreditLimit(ctx context.Context, listing *domain.Listing) error {
	if !uc.enforceCap || uc.profileRepo == nil || listing.Kind != domain.ListingKindRequest {
		return nil
	}

	profile, err := uc.profileRepo.GetByAddress(ctx, listing.OwnerAddress)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeErr(err)
	}

	if !profile.Allows(listing.Terms.Principal) {
		return fmt.Errorf("%w: max loan is %s", domain.ErrAmountExceedsLimit, profile.MaxLoan)
	}
	return nil
}

// WithdrawListing closes an active listing at its owner's request.
// A listing with a pending funding intent cannot be withdrawn.
func (uc *ListingUseCase) WithdrawListing(ctx context.Context, listingID, caller string) (*domain.Listing, error) {
	caller, err := domain.RequireAddress(caller)
	if err != nil {
		return nil, err
	}

	if uc.intents != nil {
		holder, err := uc.intents.ReservationHolder(ctx, listingID)
		if err != nil {
			return nil, unavailable(err)
		}
		if holder != "" {
			return nil, fmt.Errorf("%w: funding in progress", domain.ErrConflict)
		}
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, unavailable(err)
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	listing, err := uc.listingRepo.GetByIDForUpdate(txCtx, tx, listingID)
	if err != nil {
		return nil, storeErr(err)
	}
	before := *listing

	now := uc.now()
	if err := listing.Withdraw(caller, now); err != nil {
		return nil, err
	}

	closed, err := uc.listingRepo.CloseIfActive(txCtx, tx, listing.ID, domain.CloseReasonWithdrawn, "", now)
	if err != nil {
		return nil, storeErr(err)
	}
	if !closed {
		return nil, domain.ErrListingAlreadyClosed
	}

	event := domain.NewListingEvent(uc.idGen.Generate(), domain.EventTypeListingWithdrawn, listing, now)
	if err := uc.outboxRepo.Create(txCtx, tx, event); err != nil {
		return nil, storeErr(err)
	}

	if err := uc.audit(txCtx, tx, domain.AuditActionListingWithdraw, listing.ID, &before, listing); err != nil {
		return nil, storeErr(err)
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, unavailable(err)
	}

	if uc.metrics != nil {
		uc.metrics.ListingsWithdrawn.Inc()
	}

	uc.log.Info().Str("listing_id", listing.ID).Msg("listing withdrawn")

	return listing, nil
}

// GetListing retrieves a listing by ID.
func (uc *ListingUseCase) GetListing(ctx context.Context, id string) (*domain.Listing, error) {
	listing, err := uc.listingRepo.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	return listing, nil
}

// ListActive returns the newest active listings of kind.
func (uc *ListingUseCase) ListActive(ctx context.Context, kind domain.ListingKind) ([]*domain.Listing, error) {
	if !kind.IsValid() {
		return nil, domain.ErrInvalidListingKind
	}

	listings, err := uc.listingRepo.ListActive(ctx, kind, ActiveListingLimit)
	if err != nil {
		return nil, storeErr(err)
	}
	return listings, nil
}

// ListByOwner returns every listing an address published.
func (uc *ListingUseCase) ListByOwner(ctx context.Context, owner string, limit, offset int) ([]*domain.Listing, error) {
	owner, err := domain.RequireAddress(owner)
	if err != nil {
		return nil, err
	}
	limit, offset = domain.ValidatePagination(limit, offset)

	listings, err := uc.listingRepo.ListByOwner(ctx, owner, limit, offset)
	if err != nil {
		return nil, storeErr(err)
	}
	return listings, nil
}

func (uc *ListingUseCase) audit(ctx context.Context, tx Transaction, action domain.AuditAction, id string, before, after any) error {
	if uc.auditRepo == nil {
		return nil
	}

	var beforeState domain.JSON
	if before != nil {
		beforeState = domain.MarshalState(before)
	}

	log := &domain.AuditLog{
		ID:           uc.idGen.Generate(),
		Actor:        domain.ActorFromContext(ctx),
		Action:       string(action),
		ResourceType: domain.AggregateTypeListing,
		ResourceID:   id,
		BeforeState:  beforeState,
		AfterState:   domain.MarshalState(after),
		Status:       string(domain.AuditStatusSuccess),
		CreatedAt:    uc.now(),
	}
	if err := uc.auditRepo.CreateTx(ctx, tx, log); err != nil {
		return err
	}

	if uc.metrics != nil {
		uc.metrics.AuditLogsCreated.WithLabelValues(log.Action, log.Status).Inc()
	}
	return nil
}
