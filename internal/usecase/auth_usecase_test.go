package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/iho/loanledger/internal/domain"
	"github.com/iho/loanledger/internal/usecase"
	"github.com/iho/loanledger/internal/usecase/mocks"
)

func TestAuthUseCase_SignIn(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl)
	verifier := mocks.NewMockSignatureVerifier(ctrl)
	tokens := mocks.NewMockTokenIssuer(ctrl)

	uc := usecase.NewAuthUseCase(cache, verifier, tokens, nil)
	ctx := context.Background()

	var stored []byte
	cache.EXPECT().
		Set(gomock.Any(), "auth:challenge:"+lenderAddr, gomock.Any(), usecase.ChallengeTTL).
		DoAndReturn(func(ctx context.Context, key string, value []byte, ttl time.Duration) error {
			stored = value
			return nil
		})

	challenge, err := uc.IssueChallenge(ctx, "0xA11CE")
	if err != nil {
		t.Fatalf("IssueChallenge failed: %v", err)
	}
	if challenge.Address != lenderAddr || !strings.Contains(challenge.Message, lenderAddr) {
		t.Fatalf("unexpected challenge %+v", challenge)
	}

	expiresAt := time.Now().Add(time.Hour)
	gomock.InOrder(
		cache.EXPECT().Get(gomock.Any(), "auth:challenge:"+lenderAddr).DoAndReturn(
			func(ctx context.Context, key string) ([]byte, error) { return stored, nil }),
		cache.EXPECT().Delete(gomock.Any(), "auth:challenge:"+lenderAddr).Return(nil),
		verifier.EXPECT().VerifyMessage(lenderAddr, gomock.Any(), "sig").Return(nil),
		tokens.EXPECT().Generate(lenderAddr).Return("token-1", expiresAt, nil),
	)

	session, err := uc.SignIn(ctx, lenderAddr, "sig")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if session.Token != "token-1" || !session.ExpiresAt.Equal(expiresAt) {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestAuthUseCase_SignInFailures(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(cache *mocks.MockCache, verifier *mocks.MockSignatureVerifier)
		errorType error
	}{
		{
			name: "no challenge",
			setup: func(cache *mocks.MockCache, verifier *mocks.MockSignatureVerifier) {
				cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, domain.ErrNotFound)
			},
			errorType: domain.ErrUnauthorized,
		},
		{
			name: "bad signature",
			setup: func(cache *mocks.MockCache, verifier *mocks.MockSignatureVerifier) {
				cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return([]byte("msg"), nil)
				cache.EXPECT().Delete(gomock.Any(), gomock.Any()).Return(nil)
				verifier.EXPECT().VerifyMessage(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("signature mismatch"))
			},
			errorType: domain.ErrUnauthorized,
		},
		{
			name: "cache down",
			setup: func(cache *mocks.MockCache, verifier *mocks.MockSignatureVerifier) {
				cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, errors.New("dial tcp: refused"))
			},
			errorType: domain.ErrPersistenceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			cache := mocks.NewMockCache(ctrl)
			verifier := mocks.NewMockSignatureVerifier(ctrl)
			tokens := mocks.NewMockTokenIssuer(ctrl)
			tt.setup(cache, verifier)

			uc := usecase.NewAuthUseCase(cache, verifier, tokens, nil)

			_, err := uc.SignIn(context.Background(), lenderAddr, "sig")
			if !errors.Is(err, tt.errorType) {
				t.Fatalf("expected %v, got %v", tt.errorType, err)
			}
		})
	}
}

func TestAuthUseCase_IssueChallengeRequiresAddress(t *testing.T) {
	ctrl := gomock.NewController(t)
	uc := usecase.NewAuthUseCase(mocks.NewMockCache(ctrl), mocks.NewMockSignatureVerifier(ctrl), mocks.NewMockTokenIssuer(ctrl), nil)

	if _, err := uc.IssueChallenge(context.Background(), " "); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAuthUseCase_SignInDisabledWithoutIssuer(t *testing.T) {
	ctrl := gomock.NewController(t)
	uc := usecase.NewAuthUseCase(mocks.NewMockCache(ctrl), mocks.NewMockSignatureVerifier(ctrl), nil, nil)

	if _, err := uc.SignIn(context.Background(), lenderAddr, "sig"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
