package handler

import (
	"context"
	"net/http"

	"github.com/iho/loanledger/internal/adapter/http/dto"
	"github.com/iho/loanledger/internal/usecase"
)

// AuthService defines the behavior needed by AuthHandler.
type AuthService interface {
	IssueChallenge(ctx context.Context, address string) (*usecase.Challenge, error)
	SignIn(ctx context.Context, address, signature string) (*usecase.Session, error)
}

// AuthHandler handles wallet sign-in.
type AuthHandler struct {
	authUC AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authUC AuthService) *AuthHandler {
	return &AuthHandler{authUC: authUC}
}

// Challenge returns a one-time message for the wallet to sign.
func (h *AuthHandler) Challenge(w http.ResponseWriter, r *http.Request) {
	challenge, err := h.authUC.IssueChallenge(r.Context(), r.URL.Query().Get("address"))
	if err != nil {
		writeDomainError(w, "failed to issue challenge", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ChallengeResponse{
		Address:   challenge.Address,
		Message:   challenge.Message,
		ExpiresAt: challenge.ExpiresAt,
	})
}

// Token exchanges a signed challenge for a JWT.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req dto.TokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.authUC.SignIn(r.Context(), req.Address, req.Signature)
	if err != nil {
		writeDomainError(w, "sign-in failed", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TokenResponse{
		Address:   session.Address,
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
	})
}

// Me returns the address behind the current token.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	address := callerAddress(r)
	if address == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"address": address})
}
