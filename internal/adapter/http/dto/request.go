package dto

import (
	"github.com/shopspring/decimal"

	"github.com/iho/loanledger/internal/domain"
	"github.com/iho/loanledger/internal/usecase"
)

// CreateListingRequest represents a request to publish a loan request or offer.
type CreateListingRequest struct {
	Kind                string           `json:"kind"`
	Principal           string           `json:"principal"`
	InterestRatePercent *decimal.Decimal `json:"interest_rate_percent,omitempty"`
	DurationDays        int              `json:"duration_days"`
	Purpose             string           `json:"purpose,omitempty"`
}

// ToUseCaseInput converts to use case input on behalf of owner.
func (r *CreateListingRequest) ToUseCaseInput(owner string) (usecase.CreateListingInput, error) {
	kind, err := domain.ParseListingKind(r.Kind)
	if err != nil {
		return usecase.CreateListingInput{}, err
	}

	return usecase.CreateListingInput{
		Kind:         kind,
		OwnerAddress: owner,
		Principal:    r.Principal,
		RatePercent:  r.InterestRatePercent,
		DurationDays: r.DurationDays,
		Purpose:      r.Purpose,
	}, nil
}

// ConfirmTransferRequest carries the reference of an executed on-chain transfer.
type ConfirmTransferRequest struct {
	TransferRef string `json:"transfer_ref"`
}

// TokenRequest exchanges a signed challenge for a session token.
type TokenRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

// QuoteRequest asks for a repayment preview.
type QuoteRequest struct {
	Principal           string           `json:"principal"`
	InterestRatePercent *decimal.Decimal `json:"interest_rate_percent"`
	DurationDays        int              `json:"duration_days"`
}
