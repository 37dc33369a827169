package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/loanledger/internal/domain"
)

// ListingRepository defines data access for listings.
type ListingRepository interface {
	Create(ctx context.Context, tx Transaction, listing *domain.Listing) error
	GetByID(ctx context.Context, id string) (*domain.Listing, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Listing, error)
	// CloseIfActive closes the listing only while it is still active.
	// It returns false when another writer closed it first.
	CloseIfActive(ctx context.Context, tx Transaction, id string, reason domain.CloseReason, loanID string, closedAt time.Time) (bool, error)
	ListActive(ctx context.Context, kind domain.ListingKind, limit int) ([]*domain.Listing, error)
	ListByOwner(ctx context.Context, owner string, limit, offset int) ([]*domain.Listing, error)
}

// LoanRepository defines data access for loan records.
type LoanRepository interface {
	Create(ctx context.Context, tx Transaction, loan *domain.LoanRecord) error
	GetByID(ctx context.Context, id string) (*domain.LoanRecord, error)
	// MarkRepaidIfActive sets the repayment reference only while the loan is active.
	MarkRepaidIfActive(ctx context.Context, tx Transaction, id, transferRef string, repaidAt time.Time) (bool, error)
	// FindByTransferRef returns the loan that recorded ref on either leg.
	FindByTransferRef(ctx context.Context, tx Transaction, ref string) (*domain.LoanRecord, error)
	ListByParty(ctx context.Context, address string, role domain.PartyRole, limit, offset int) ([]*domain.LoanRecord, error)
	History(ctx context.Context, address string, now time.Time) (domain.LoanHistory, error)
}

// ProfileRepository stores wallet users and their credit profiles.
type ProfileRepository interface {
	EnsureUser(ctx context.Context, tx Transaction, address string, at time.Time) error
	Upsert(ctx context.Context, profile *domain.CreditProfile) error
	GetByAddress(ctx context.Context, address string) (*domain.CreditProfile, error)
	ListAddresses(ctx context.Context, limit, offset int) ([]string, error)
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	GetByAggregate(ctx context.Context, aggregateType, aggregateID string, limit, offset int) ([]*domain.OutboxEvent, error)
	DeletePublished(ctx context.Context, before time.Time) error
}

// AuditRepository defines data access for audit logs.
type AuditRepository interface {
	CreateTx(ctx context.Context, tx Transaction, log *domain.AuditLog) error
	List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// IntentStore keeps unconfirmed transfer intents and listing reservations.
// Entries expire on their own; nothing here is durable.
type IntentStore interface {
	// Reserve claims listingID for holder unless someone else holds it.
	Reserve(ctx context.Context, listingID, holder string, ttl time.Duration) (bool, error)
	// ReservationHolder returns the current holder, or "" when free.
	ReservationHolder(ctx context.Context, listingID string) (string, error)
	// Release frees listingID only if holder still owns it.
	Release(ctx context.Context, listingID, holder string) error
	Save(ctx context.Context, intent *domain.TransferIntent, ttl time.Duration) error
	Get(ctx context.Context, kind domain.IntentKind, id string) (*domain.TransferIntent, error)
	Delete(ctx context.Context, kind domain.IntentKind, id string) error
}

// TransferVerifier checks an on-chain transfer before it is recorded.
type TransferVerifier interface {
	VerifyTransfer(ctx context.Context, transferRef string, expected domain.RequiredTransfer) error
}

// BalanceReader reads a wallet's native balance in major units.
type BalanceReader interface {
	NativeBalance(ctx context.Context, address string) (decimal.Decimal, error)
}

// ActivityReader summarizes a wallet's on-chain history.
type ActivityReader interface {
	WalletActivity(ctx context.Context, address string) (domain.WalletActivity, error)
}

// SignatureVerifier checks that address signed message.
type SignatureVerifier interface {
	VerifyMessage(address string, message []byte, signature string) error
}

// TokenIssuer issues session tokens for a wallet address.
type TokenIssuer interface {
	Generate(address string) (string, time.Time, error)
}

// Cache defines caching operations.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release drops a key so a failed request can be retried.
	Release(ctx context.Context, key string) error
}
