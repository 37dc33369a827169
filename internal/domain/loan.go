package domain

import (
	"fmt"
	"time"
)

// LoanStatus is the loan state. It only moves active -> repaid.
type LoanStatus string

const (
	LoanStatusActive LoanStatus = "active"
	LoanStatusRepaid LoanStatus = "repaid"
)

// LoanRecord is a matched loan between a lender and a borrower.
type LoanRecord struct {
	ID                   string      `json:"id"`
	ListingID            string      `json:"listing_id"`
	ListingKind          ListingKind `json:"listing_kind"`
	LenderAddress        string      `json:"lender_address"`
	BorrowerAddress      string      `json:"borrower_address"`
	Terms                LoanTerms   `json:"terms"`
	TotalRepaymentAmount Money       `json:"total_repayment_amount"`
	StartDate            time.Time   `json:"start_date"`
	Status               LoanStatus  `json:"status"`
	FundingTransferRef   string      `json:"funding_transfer_ref,omitempty"`
	RepaymentTransferRef string      `json:"repayment_transfer_ref,omitempty"`
	RepaidAt             *time.Time  `json:"repaid_at,omitempty"`
	CreatedAt            time.Time   `json:"created_at"`
}

// NewLoanRecord matches funder against listing. The repayment total is
// computed here and never again.
func NewLoanRecord(id string, listing *Listing, funder string, now time.Time) (*LoanRecord, error) {
	funder, err := RequireAddress(funder)
	if err != nil {
		return nil, err
	}
	if SameAddress(funder, listing.OwnerAddress) {
		return nil, ErrSelfFundingNotAllowed
	}
	if !listing.IsActive() {
		return nil, ErrListingAlreadyClosed
	}

	lender, borrower := listing.Parties(funder)

	return &LoanRecord{
		ID:                   id,
		ListingID:            listing.ID,
		ListingKind:          listing.Kind,
		LenderAddress:        lender,
		BorrowerAddress:      borrower,
		Terms:                listing.Terms,
		TotalRepaymentAmount: listing.Terms.TotalRepayment(),
		StartDate:            now,
		Status:               LoanStatusActive,
		CreatedAt:            now,
	}, nil
}

// DueDate is derived from the start date and the duration.
func (r *LoanRecord) DueDate() time.Time {
	return r.StartDate.AddDate(0, 0, r.Terms.DurationDays)
}

func (r *LoanRecord) IsActive() bool {
	return r.Status == LoanStatusActive
}

// IsOverdue reports an active loan past its due date.
func (r *LoanRecord) IsOverdue(now time.Time) bool {
	return r.IsActive() && now.After(r.DueDate())
}

// Activate attaches the funding transfer and starts the loan clock.
func (r *LoanRecord) Activate(transferRef string, now time.Time) error {
	if transferRef == "" {
		return fmt.Errorf("%w: missing funding transfer reference", ErrTransferFailed)
	}
	if r.FundingTransferRef != "" {
		if r.FundingTransferRef == transferRef {
			return nil
		}
		return ErrAlreadyConfirmed
	}
	r.FundingTransferRef = transferRef
	r.StartDate = now
	r.CreatedAt = now
	return nil
}

// CanRepay checks that caller may repay this loan now.
func (r *LoanRecord) CanRepay(caller string) error {
	if !SameAddress(caller, r.BorrowerAddress) {
		return fmt.Errorf("%w: only the borrower may repay", ErrUnauthorized)
	}
	if !r.IsActive() {
		return ErrLoanAlreadyRepaid
	}
	return nil
}

// MarkRepaid moves the loan to repaid with the repayment transfer reference.
// Repeating the same reference is a no-op.
func (r *LoanRecord) MarkRepaid(transferRef string, now time.Time) error {
	if transferRef == "" {
		return fmt.Errorf("%w: missing repayment transfer reference", ErrTransferFailed)
	}
	if r.Status == LoanStatusRepaid {
		if r.RepaymentTransferRef == transferRef {
			return nil
		}
		return ErrLoanAlreadyRepaid
	}
	r.Status = LoanStatusRepaid
	r.RepaymentTransferRef = transferRef
	r.RepaidAt = &now
	return nil
}

// Validate checks a loan read back from storage.
func (r *LoanRecord) Validate() error {
	if r.ID == "" || r.LenderAddress == "" || r.BorrowerAddress == "" {
		return fmt.Errorf("%w: loan missing identity", ErrInvalidTerms)
	}
	if SameAddress(r.LenderAddress, r.BorrowerAddress) {
		return ErrSelfFundingNotAllowed
	}
	if !r.ListingKind.IsValid() {
		return ErrInvalidListingKind
	}
	if r.Status != LoanStatusActive && r.Status != LoanStatusRepaid {
		return fmt.Errorf("%w: unknown loan status %q", ErrInvalidTerms, r.Status)
	}
	if err := r.Terms.Validate(); err != nil {
		return err
	}
	if c, err := r.TotalRepaymentAmount.Cmp(r.Terms.Principal); err != nil {
		return err
	} else if c < 0 {
		return fmt.Errorf("%w: repayment total below principal", ErrInvalidTerms)
	}
	return nil
}

// PartyRole selects loans by the caller's side.
type PartyRole string

const (
	PartyRoleAny      PartyRole = ""
	PartyRoleLender   PartyRole = "lender"
	PartyRoleBorrower PartyRole = "borrower"
)

func (p PartyRole) IsValid() bool {
	return p == PartyRoleAny || p == PartyRoleLender || p == PartyRoleBorrower
}
