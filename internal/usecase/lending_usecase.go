package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/loanledger/internal/domain"
	"github.com/iho/loanledger/internal/infrastructure/metrics"
)

// LendingUseCase runs the two-phase funding and repayment flows.
// Phase one stores a transient intent; phase two persists only after a
// transfer reference is supplied.
type LendingUseCase struct {
	txManager   TransactionManager
	listingRepo ListingRepository
	loanRepo    LoanRepository
	outboxRepo  OutboxRepository
	auditRepo   AuditRepository
	intents     IntentStore
	verifier    TransferVerifier
	idGen       IDGenerator
	metrics     *metrics.Metrics
	currency    CurrencyConfig
	intentTTL   time.Duration
	log         zerolog.Logger
	now         func() time.Time
}

// LendingUseCaseConfig carries the lending policy knobs.
type LendingUseCaseConfig struct {
	Currency  CurrencyConfig
	IntentTTL time.Duration
}

// NewLendingUseCase creates a new LendingUseCase. verifier may be nil, in
// which case transfer references are trusted as supplied.
func NewLendingUseCase(
	txManager TransactionManager,
	listingRepo ListingRepository,
	loanRepo LoanRepository,
	outboxRepo OutboxRepository,
	auditRepo AuditRepository,
	intents IntentStore,
	verifier TransferVerifier,
	idGen IDGenerator,
	metrics *metrics.Metrics,
	cfg LendingUseCaseConfig,
	log zerolog.Logger,
) *LendingUseCase {
	ttl := cfg.IntentTTL
	if ttl <= 0 {
		ttl = DefaultIntentTTL
	}

	return &LendingUseCase{
		txManager:   txManager,
		listingRepo: listingRepo,
		loanRepo:    loanRepo,
		outboxRepo:  outboxRepo,
		auditRepo:   auditRepo,
		intents:     intents,
		verifier:    verifier,
		idGen:       idGen,
		metrics:     metrics,
		currency:    cfg.Currency,
		intentTTL:   ttl,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source.
func (uc *LendingUseCase) SetClock(now func() time.Time) {
	uc.now = now
}

// FundingResult is the pending record plus the transfer the lender must send.
type FundingResult struct {
	Record           *domain.LoanRecord
	RequiredTransfer domain.RequiredTransfer
	ExpiresAt        time.Time
}

// RepaymentResult is the transfer the borrower must send.
type RepaymentResult struct {
	Record           *domain.LoanRecord
	RequiredTransfer domain.RequiredTransfer
	ExpiresAt        time.Time
}

// FundListing matches funder against a listing and returns the transfer to
// execute. Nothing is written to the database until ConfirmFunding.
func (uc *LendingUseCase) FundListing(ctx context.Context, listingID, funder string) (*FundingResult, error) {
	funder, err := domain.RequireAddress(funder)
	if err != nil {
		return nil, err
	}

	listing, err := uc.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, storeErr(err)
	}

	now := uc.now()
	record, err := domain.NewLoanRecord(uc.idGen.Generate(), listing, funder, now)
	if err != nil {
		return nil, err
	}

	reserved, err := uc.intents.Reserve(ctx, listing.ID, record.ID, uc.intentTTL)
	if err != nil {
		return nil, unavailable(err)
	}
	if !reserved {
		if uc.metrics != nil {
			uc.metrics.FundingConflicts.Inc()
		}
		return nil, fmt.Errorf("%w: listing %s is already being funded", domain.ErrConflict, listing.ID)
	}

	intent := domain.NewFundingIntent(record, now, uc.intentTTL)
	transfer, err := intent.RequiredTransfer(uc.currency.ChainDecimals)
	if err != nil {
		uc.release(ctx, listing.ID, record.ID)
		return nil, err
	}

	if err := uc.intents.Save(ctx, intent, uc.intentTTL); err != nil {
		uc.release(ctx, listing.ID, record.ID)
		return nil, unavailable(err)
	}

	if uc.metrics != nil {
		uc.metrics.FundingIntents.Inc()
	}

	uc.log.Info().
		Str("listing_id", listing.ID).
		Str("record_id", record.ID).
		Str("lender", record.LenderAddress).
		Str("borrower", record.BorrowerAddress).
		Msg("funding intent created")

	return &FundingResult{Record: record, RequiredTransfer: transfer, ExpiresAt: intent.ExpiresAt}, nil
}

// ConfirmFunding persists the loan once the funding transfer is known.
// Repeating the call with the same reference returns the stored record.
func (uc *LendingUseCase) ConfirmFunding(ctx context.Context, recordID, transferRef string) (*domain.LoanRecord, error) {
	start := time.Now()
	defer uc.observeConfirm(domain.IntentKindFunding, start)

	ref, err := domain.NormalizeTransferRef(transferRef)
	if err != nil {
		return nil, err
	}

	intent, err := uc.intents.Get(ctx, domain.IntentKindFunding, recordID)
	if errors.Is(err, domain.ErrNotFound) {
		return uc.resolveConfirmedFunding(ctx, recordID, ref)
	}
	if err != nil {
		return nil, unavailable(err)
	}

	record := intent.Record
	if record == nil {
		return nil, fmt.Errorf("%w: intent %s has no record", domain.ErrIntentNotFound, recordID)
	}

	if err := uc.verify(ctx, domain.IntentKindFunding, intent, ref); err != nil {
		return nil, err
	}

	now := uc.now()
	if err := record.Activate(ref, now); err != nil {
		return nil, err
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, unavailable(err)
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	existing, err := uc.recordedTransfer(txCtx, tx, domain.IntentKindFunding, record.ID, ref)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		_ = tx.Rollback(txCtx)
		uc.discardIntent(ctx, domain.IntentKindFunding, record.ID)
		uc.release(ctx, record.ListingID, record.ID)
		return existing, nil
	}

	listing, err := uc.listingRepo.GetByIDForUpdate(txCtx, tx, record.ListingID)
	if err != nil {
		return nil, storeErr(err)
	}
	listingBefore := *listing
	if err := listing.MarkMatched(record.ID, now); err != nil {
		_ = tx.Rollback(txCtx)
		return uc.resolveLostRace(ctx, record, ref)
	}

	closed, err := uc.listingRepo.CloseIfActive(txCtx, tx, listing.ID, listing.CloseReason, listing.LoanID, now)
	if err != nil {
		return nil, storeErr(err)
	}
	if !closed {
		_ = tx.Rollback(txCtx)
		return uc.resolveLostRace(ctx, record, ref)
	}

	if err := uc.loanRepo.Create(txCtx, tx, record); err != nil {
		return nil, storeErr(err)
	}

	event := domain.NewLoanEvent(uc.idGen.Generate(), domain.EventTypeLoanFunded, record, now)
	if err := uc.outboxRepo.Create(txCtx, tx, event); err != nil {
		return nil, storeErr(err)
	}

	if err := uc.audit(txCtx, tx, domain.AuditActionListingMatch, domain.AggregateTypeListing, listing.ID, &listingBefore, listing); err != nil {
		return nil, storeErr(err)
	}
	if err := uc.audit(txCtx, tx, domain.AuditActionLoanFund, domain.AggregateTypeLoan, record.ID, nil, record); err != nil {
		return nil, storeErr(err)
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, unavailable(err)
	}

	uc.discardIntent(ctx, domain.IntentKindFunding, record.ID)
	uc.release(ctx, record.ListingID, record.ID)

	if uc.metrics != nil {
		uc.metrics.LoansFunded.Inc()
		principal, _ := record.Terms.Principal.Decimal().Float64()
		uc.metrics.LoanPrincipal.Observe(principal)
	}

	uc.log.Info().
		Str("loan_id", record.ID).
		Str("listing_id", record.ListingID).
		Str("transfer_ref", ref).
		Time("due_date", record.DueDate()).
		Msg("loan funded")

	return record, nil
}

// resolveConfirmedFunding answers a confirm call whose intent is gone.
func (uc *LendingUseCase) resolveConfirmedFunding(ctx context.Context, recordID, ref string) (*domain.LoanRecord, error) {
	existing, err := uc.loanRepo.GetByID(ctx, recordID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: no pending funding for %s", domain.ErrIntentNotFound, recordID)
	}
	if err != nil {
		return nil, storeErr(err)
	}
	if existing.FundingTransferRef == ref {
		return existing, nil
	}
	return nil, domain.ErrAlreadyConfirmed
}

// resolveLostRace explains why the conditional listing close matched no row.
func (uc *LendingUseCase) resolveLostRace(ctx context.Context, record *domain.LoanRecord, ref string) (*domain.LoanRecord, error) {
	existing, err := uc.loanRepo.GetByID(ctx, record.ID)
	if err == nil {
		uc.discardIntent(ctx, domain.IntentKindFunding, record.ID)
		if existing.FundingTransferRef == ref {
			return existing, nil
		}
		return nil, domain.ErrAlreadyConfirmed
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, storeErr(err)
	}

	uc.discardIntent(ctx, domain.IntentKindFunding, record.ID)
	uc.release(ctx, record.ListingID, record.ID)

	if uc.metrics != nil {
		uc.metrics.FundingConflicts.Inc()
	}

	listing, err := uc.listingRepo.GetByID(ctx, record.ListingID)
	if err == nil && listing.CloseReason == domain.CloseReasonWithdrawn {
		return nil, domain.ErrListingAlreadyClosed
	}
	return nil, fmt.Errorf("%w: listing %s was funded by another loan", domain.ErrConflict, record.ListingID)
}

// PendingFunding returns the unconfirmed funding of a listing to either party,
// so the payer of an offer can find the transfer a borrower requested.
func (uc *LendingUseCase) PendingFunding(ctx context.Context, listingID, caller string) (*FundingResult, error) {
	caller, err := domain.RequireAddress(caller)
	if err != nil {
		return nil, err
	}

	holder, err := uc.intents.ReservationHolder(ctx, listingID)
	if err != nil {
		return nil, unavailable(err)
	}
	if holder == "" {
		return nil, fmt.Errorf("%w: no pending funding for listing %s", domain.ErrIntentNotFound, listingID)
	}

	intent, err := uc.intents.Get(ctx, domain.IntentKindFunding, holder)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: no pending funding for listing %s", domain.ErrIntentNotFound, listingID)
	}
	if err != nil {
		return nil, unavailable(err)
	}

	if !intent.IsParty(caller) {
		return nil, fmt.Errorf("%w: only the lender or borrower may see a pending funding", domain.ErrUnauthorized)
	}

	transfer, err := intent.RequiredTransfer(uc.currency.ChainDecimals)
	if err != nil {
		return nil, err
	}
	return &FundingResult{Record: intent.Record, RequiredTransfer: transfer, ExpiresAt: intent.ExpiresAt}, nil
}

// CancelFunding drops an unconfirmed funding intent and frees the listing.
func (uc *LendingUseCase) CancelFunding(ctx context.Context, recordID, caller string) error {
	caller, err := domain.RequireAddress(caller)
	if err != nil {
		return err
	}

	intent, err := uc.intents.Get(ctx, domain.IntentKindFunding, recordID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return unavailable(err)
	}

	if !intent.IsParty(caller) {
		return fmt.Errorf("%w: only the lender or borrower may cancel", domain.ErrUnauthorized)
	}

	if err := uc.intents.Delete(ctx, domain.IntentKindFunding, recordID); err != nil {
		return unavailable(err)
	}
	uc.release(ctx, intent.ListingID, recordID)

	if uc.metrics != nil {
		uc.metrics.FundingsCancelled.Inc()
	}

	uc.log.Info().Str("record_id", recordID).Str("listing_id", intent.ListingID).Msg("funding cancelled")
	return nil
}

// RepayLoan returns the transfer the borrower must send to close the loan.
func (uc *LendingUseCase) RepayLoan(ctx context.Context, loanID, borrower string) (*RepaymentResult, error) {
	borrower, err := domain.RequireAddress(borrower)
	if err != nil {
		return nil, err
	}

	record, err := uc.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		return nil, storeErr(err)
	}

	if err := record.CanRepay(borrower); err != nil {
		return nil, err
	}

	now := uc.now()
	intent := domain.NewRepaymentIntent(record, now, uc.intentTTL)
	transfer, err := intent.RequiredTransfer(uc.currency.ChainDecimals)
	if err != nil {
		return nil, err
	}

	if err := uc.intents.Save(ctx, intent, uc.intentTTL); err != nil {
		return nil, unavailable(err)
	}

	uc.log.Info().
		Str("loan_id", record.ID).
		Str("amount", record.TotalRepaymentAmount.String()).
		Msg("repayment intent created")

	return &RepaymentResult{Record: record, RequiredTransfer: transfer, ExpiresAt: intent.ExpiresAt}, nil
}

// ConfirmRepayment marks the loan repaid once the repayment transfer is known.
func (uc *LendingUseCase) ConfirmRepayment(ctx context.Context, loanID, transferRef string) (*domain.LoanRecord, error) {
	start := time.Now()
	defer uc.observeConfirm(domain.IntentKindRepayment, start)

	ref, err := domain.NormalizeTransferRef(transferRef)
	if err != nil {
		return nil, err
	}

	record, err := uc.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		return nil, storeErr(err)
	}

	if !record.IsActive() {
		if record.RepaymentTransferRef == ref {
			return record, nil
		}
		return nil, domain.ErrLoanAlreadyRepaid
	}

	intent, err := uc.intents.Get(ctx, domain.IntentKindRepayment, loanID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: no pending repayment for %s", domain.ErrIntentNotFound, loanID)
		}
		return nil, unavailable(err)
	}

	if err := uc.verify(ctx, domain.IntentKindRepayment, intent, ref); err != nil {
		return nil, err
	}

	before := *record
	now := uc.now()

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, unavailable(err)
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	existing, err := uc.recordedTransfer(txCtx, tx, domain.IntentKindRepayment, loanID, ref)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		_ = tx.Rollback(txCtx)
		uc.discardIntent(ctx, domain.IntentKindRepayment, loanID)
		return existing, nil
	}

	updated, err := uc.loanRepo.MarkRepaidIfActive(txCtx, tx, loanID, ref, now)
	if err != nil {
		return nil, storeErr(err)
	}
	if !updated {
		_ = tx.Rollback(txCtx)
		current, err := uc.loanRepo.GetByID(ctx, loanID)
		if err != nil {
			return nil, storeErr(err)
		}
		uc.discardIntent(ctx, domain.IntentKindRepayment, loanID)
		if current.RepaymentTransferRef == ref {
			return current, nil
		}
		return nil, domain.ErrLoanAlreadyRepaid
	}

	if err := record.MarkRepaid(ref, now); err != nil {
		return nil, err
	}

	event := domain.NewLoanEvent(uc.idGen.Generate(), domain.EventTypeLoanRepaid, record, now)
	if err := uc.outboxRepo.Create(txCtx, tx, event); err != nil {
		return nil, storeErr(err)
	}

	if err := uc.audit(txCtx, tx, domain.AuditActionLoanRepay, domain.AggregateTypeLoan, record.ID, &before, record); err != nil {
		return nil, storeErr(err)
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, unavailable(err)
	}

	uc.discardIntent(ctx, domain.IntentKindRepayment, loanID)

	if uc.metrics != nil {
		uc.metrics.LoansRepaid.Inc()
	}

	uc.log.Info().Str("loan_id", record.ID).Str("transfer_ref", ref).Msg("loan repaid")

	return record, nil
}

// GetLoan retrieves a loan by ID.
func (uc *LendingUseCase) GetLoan(ctx context.Context, id string) (*domain.LoanRecord, error) {
	record, err := uc.loanRepo.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	return record, nil
}

// ListLoans lists loans where address is the lender, the borrower, or either.
func (uc *LendingUseCase) ListLoans(ctx context.Context, address string, role domain.PartyRole, limit, offset int) ([]*domain.LoanRecord, error) {
	address, err := domain.RequireAddress(address)
	if err != nil {
		return nil, err
	}
	if !role.IsValid() {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidTerms, role)
	}
	limit, offset = domain.ValidatePagination(limit, offset)

	records, err := uc.loanRepo.ListByParty(ctx, address, role, limit, offset)
	if err != nil {
		return nil, storeErr(err)
	}
	return records, nil
}

// RepaymentQuote previews what a set of terms would cost.
type RepaymentQuote struct {
	Terms          domain.LoanTerms
	Interest       domain.Money
	TotalRepayment domain.Money
	DueDate        time.Time
}

// Quote computes a repayment preview without touching any store.
func (uc *LendingUseCase) Quote(terms domain.LoanTerms) RepaymentQuote {
	return RepaymentQuote{
		Terms:          terms,
		Interest:       terms.Interest(),
		TotalRepayment: terms.TotalRepayment(),
		DueDate:        uc.now().AddDate(0, 0, terms.DurationDays),
	}
}

// recordedTransfer looks ref up across both legs of every loan. A reference
// already recorded for the same leg of loanID returns that loan; any other
// use is a conflict.
func (uc *LendingUseCase) recordedTransfer(ctx context.Context, tx Transaction, kind domain.IntentKind, loanID, ref string) (*domain.LoanRecord, error) {
	owner, err := uc.loanRepo.FindByTransferRef(ctx, tx, ref)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err)
	}

	sameLeg := owner.FundingTransferRef == ref
	if kind == domain.IntentKindRepayment {
		sameLeg = owner.RepaymentTransferRef == ref
	}
	if owner.ID == loanID && sameLeg {
		return owner, nil
	}

	if uc.metrics != nil {
		uc.metrics.TransferFailures.WithLabelValues(string(kind)).Inc()
	}
	return nil, fmt.Errorf("%w: transfer %s is already recorded for loan %s", domain.ErrConflict, ref, owner.ID)
}

func (uc *LendingUseCase) verify(ctx context.Context, kind domain.IntentKind, intent *domain.TransferIntent, ref string) error {
	if uc.verifier == nil {
		return nil
	}

	expected, err := intent.RequiredTransfer(uc.currency.ChainDecimals)
	if err != nil {
		return err
	}

	if err := uc.verifier.VerifyTransfer(ctx, ref, expected); err != nil {
		if uc.metrics != nil {
			uc.metrics.TransferFailures.WithLabelValues(string(kind)).Inc()
		}
		uc.log.Warn().Err(err).Str("intent_id", intent.ID).Str("transfer_ref", ref).Msg("transfer verification failed")
		if errors.Is(err, domain.ErrTransferFailed) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrTransferFailed, err)
	}
	return nil
}

func (uc *LendingUseCase) discardIntent(ctx context.Context, kind domain.IntentKind, id string) {
	if err := uc.intents.Delete(ctx, kind, id); err != nil {
		uc.log.Warn().Err(err).Str("intent_id", id).Str("kind", string(kind)).Msg("failed to delete intent")
	}
}

func (uc *LendingUseCase) release(ctx context.Context, listingID, holder string) {
	if err := uc.intents.Release(ctx, listingID, holder); err != nil {
		uc.log.Warn().Err(err).Str("listing_id", listingID).Msg("failed to release listing reservation")
	}
}

func (uc *LendingUseCase) observeConfirm(kind domain.IntentKind, start time.Time) {
	if uc.metrics != nil {
		uc.metrics.ConfirmDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	}
}

func (uc *LendingUseCase) audit(ctx context.Context, tx Transaction, action domain.AuditAction, resourceType, id string, before, after any) error {
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
		ResourceType: resourceType,
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
