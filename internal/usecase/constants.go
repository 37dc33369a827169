package usecase

import "time"

const (
	// DefaultTransactionTimeout is the maximum duration for a database transaction
	// This prevents long-running transactions from blocking tables
	DefaultTransactionTimeout = 10 * time.Second

	// ActiveListingLimit caps listActive results.
	ActiveListingLimit = 50

	// DefaultIntentTTL is how long an unconfirmed transfer intent lives.
	DefaultIntentTTL = 15 * time.Minute

	// IdempotencyKeyTTL is how long idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour

	// ChallengeTTL bounds the time between a sign-in challenge and its answer.
	ChallengeTTL = 5 * time.Minute
)

// CurrencyConfig describes the ledger's settlement asset.
type CurrencyConfig struct {
	Code          string
	Decimals      int32
	ChainDecimals int32
}
