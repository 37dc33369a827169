package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Validation errors
var (
	ErrInvalidCurrency    = errors.New("invalid currency code")
	ErrInvalidTransferRef = fmt.Errorf("%w: malformed transfer reference", ErrTransferFailed)
)

// Validation constants
const (
	MaxTransferRefLength = 256
	MaxPageSize          = 200
	DefaultPageSize      = 50
)

var (
	currencyRegex    = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,9}$`)
	transferRefRegex = regexp.MustCompile(`^[A-Za-z0-9:_\-]+$`)
)

// ValidateCurrency accepts ticker-style codes such as USDC or SOL.
func ValidateCurrency(currency string) error {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if !currencyRegex.MatchString(currency) {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
	}
	return nil
}

// NormalizeTransferRef trims a transfer reference and rejects empty or malformed values.
func NormalizeTransferRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: missing transfer reference", ErrTransferFailed)
	}
	if len(ref) > MaxTransferRefLength || !transferRefRegex.MatchString(ref) {
		return "", ErrInvalidTransferRef
	}
	return ref, nil
}

// ValidatePagination validates and limits pagination parameters
func ValidatePagination(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset
}
