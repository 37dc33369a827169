package domain

import (
	"math/big"
	"time"
)

// IntentKind says which leg of the loan an intent pays for.
type IntentKind string

const (
	IntentKindFunding   IntentKind = "funding"
	IntentKindRepayment IntentKind = "repayment"
)

// TransferIntent is an unconfirmed request for an on-chain transfer.
// It is never written to the relational store.
type TransferIntent struct {
	ID        string      `json:"id"`
	Kind      IntentKind  `json:"kind"`
	ListingID string      `json:"listing_id,omitempty"`
	Payer     string      `json:"payer"`
	Payee     string      `json:"payee"`
	Amount    Money       `json:"amount"`
	Record    *LoanRecord `json:"record"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// NewFundingIntent describes the lender -> borrower principal transfer for a pending record.
func NewFundingIntent(record *LoanRecord, now time.Time, ttl time.Duration) *TransferIntent {
	return &TransferIntent{
		ID:        record.ID,
		Kind:      IntentKindFunding,
		ListingID: record.ListingID,
		Payer:     record.LenderAddress,
		Payee:     record.BorrowerAddress,
		Amount:    record.Terms.Principal,
		Record:    record,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// NewRepaymentIntent describes the borrower -> lender transfer of the frozen total.
func NewRepaymentIntent(record *LoanRecord, now time.Time, ttl time.Duration) *TransferIntent {
	return &TransferIntent{
		ID:        record.ID,
		Kind:      IntentKindRepayment,
		ListingID: record.ListingID,
		Payer:     record.BorrowerAddress,
		Payee:     record.LenderAddress,
		Amount:    record.TotalRepaymentAmount,
		Record:    record,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsParty reports whether addr is the payer or payee.
func (i *TransferIntent) IsParty(addr string) bool {
	return SameAddress(addr, i.Payer) || SameAddress(addr, i.Payee)
}

// RequiredTransfer tells the caller which on-chain transfer to execute.
// A transfer settled before NotBefore cannot satisfy it.
type RequiredTransfer struct {
	From       string
	To         string
	Amount     Money
	ChainUnits *big.Int
	NotBefore  time.Time
}

// RequiredTransfer converts the intent into transfer instructions.
func (i *TransferIntent) RequiredTransfer(chainDecimals int32) (RequiredTransfer, error) {
	units, err := i.Amount.ToChainUnits(chainDecimals)
	if err != nil {
		return RequiredTransfer{}, err
	}
	return RequiredTransfer{
		From:       i.Payer,
		To:         i.Payee,
		Amount:     i.Amount,
		ChainUnits: units,
		NotBefore:  i.CreatedAt,
	}, nil
}
