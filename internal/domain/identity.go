package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Authentication errors
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const maxAddressLength = 128

// Identity is the wallet address behind a request.
type Identity struct {
	Address string
}

type identityKey struct{}

// WithIdentity stores the caller identity in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.Address != ""
}

// NormalizeAddress trims an address and lowercases hex (0x) addresses.
// Base58 addresses are case-sensitive and kept as they are.
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if strings.HasPrefix(addr, "0x") || strings.HasPrefix(addr, "0X") {
		return strings.ToLower(addr)
	}
	return addr
}

// RequireAddress normalizes addr and fails with ErrUnauthorized when no identity is present.
func RequireAddress(addr string) (string, error) {
	addr = NormalizeAddress(addr)
	if addr == "" {
		return "", fmt.Errorf("%w: no connected identity", ErrUnauthorized)
	}
	if len(addr) > maxAddressLength || strings.ContainsAny(addr, " \t\r\n") {
		return "", fmt.Errorf("%w: malformed address", ErrUnauthorized)
	}
	return addr, nil
}

// SameAddress compares two addresses after normalization.
func SameAddress(a, b string) bool {
	return NormalizeAddress(a) == NormalizeAddress(b)
}
