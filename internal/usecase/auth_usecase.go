package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/iho/loanledger/internal/domain"
	"github.com/iho/loanledger/internal/infrastructure/metrics"
)

const challengeKeyPrefix = "auth:challenge:"

// AuthUseCase signs wallets in with a signed challenge.
type AuthUseCase struct {
	cache    Cache
	verifier SignatureVerifier
	tokens   TokenIssuer
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewAuthUseCase creates a new AuthUseCase.
func NewAuthUseCase(cache Cache, verifier SignatureVerifier, tokens TokenIssuer, metrics *metrics.Metrics) *AuthUseCase {
	return &AuthUseCase{
		cache:    cache,
		verifier: verifier,
		tokens:   tokens,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Challenge is the message a wallet must sign to sign in.
type Challenge struct {
	Address   string
	Message   string
	ExpiresAt time.Time
}

// Session is an issued access token.
type Session struct {
	Address   string
	Token     string
	ExpiresAt time.Time
}

// IssueChallenge creates a one-time sign-in message for address.
func (uc *AuthUseCase) IssueChallenge(ctx context.Context, address string) (*Challenge, error) {
	address, err := domain.RequireAddress(address)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	now := uc.now()
	message := fmt.Sprintf("Sign in to loanledger\naddress: %s\nnonce: %s\nissued: %s",
		address, hex.EncodeToString(nonce), now.Format(time.RFC3339))

	if err := uc.cache.Set(ctx, challengeKeyPrefix+address, []byte(message), ChallengeTTL); err != nil {
		return nil, unavailable(err)
	}

	return &Challenge{Address: address, Message: message, ExpiresAt: now.Add(ChallengeTTL)}, nil
}

// SignIn checks the signed challenge and issues a session token.
// A challenge can be answered once.
func (uc *AuthUseCase) SignIn(ctx context.Context, address, signature string) (*Session, error) {
	address, err := domain.RequireAddress(address)
	if err != nil {
		return nil, err
	}
	if uc.verifier == nil || uc.tokens == nil {
		return nil, fmt.Errorf("%w: sign-in disabled", domain.ErrUnauthorized)
	}

	message, err := uc.cache.Get(ctx, challengeKeyPrefix+address)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			uc.count("no_challenge")
			return nil, fmt.Errorf("%w: no pending challenge", domain.ErrUnauthorized)
		}
		return nil, unavailable(err)
	}

	if err := uc.cache.Delete(ctx, challengeKeyPrefix+address); err != nil {
		return nil, unavailable(err)
	}

	if err := uc.verifier.VerifyMessage(address, message, signature); err != nil {
		uc.count("bad_signature")
		return nil, fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
	}

	token, expiresAt, err := uc.tokens.Generate(address)
	if err != nil {
		return nil, err
	}

	uc.count("success")
	return &Session{Address: address, Token: token, ExpiresAt: expiresAt}, nil
}

func (uc *AuthUseCase) count(status string) {
	if uc.metrics != nil {
		uc.metrics.AuthAttempts.WithLabelValues(status).Inc()
	}
}
