package domain

import "time"

// Event types
const (
	EventTypeListingCreated   = "listing.created"
	EventTypeListingWithdrawn = "listing.withdrawn"
	EventTypeLoanFunded       = "loan.funded"
	EventTypeLoanRepaid       = "loan.repaid"
)

// Aggregate types
const (
	AggregateTypeListing = "listing"
	AggregateTypeLoan    = "loan"
)

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// NewListingEvent builds a listing lifecycle event.
func NewListingEvent(id, eventType string, l *Listing, at time.Time) *OutboxEvent {
	return &OutboxEvent{
		ID:            id,
		AggregateID:   l.ID,
		AggregateType: AggregateTypeListing,
		EventType:     eventType,
		Payload: map[string]any{
			"listing_id":    l.ID,
			"kind":          string(l.Kind),
			"owner_address": l.OwnerAddress,
			"principal":     l.Terms.Principal.Major(),
			"currency":      l.Terms.Principal.Currency,
			"rate_percent":  l.Terms.InterestRatePercent.String(),
			"duration_days": l.Terms.DurationDays,
			"status":        string(l.Status),
		},
		CreatedAt: at,
	}
}

// NewLoanEvent builds a loan lifecycle event.
func NewLoanEvent(id, eventType string, r *LoanRecord, at time.Time) *OutboxEvent {
	payload := map[string]any{
		"loan_id":          r.ID,
		"listing_id":       r.ListingID,
		"lender_address":   r.LenderAddress,
		"borrower_address": r.BorrowerAddress,
		"principal":        r.Terms.Principal.Major(),
		"total_repayment":  r.TotalRepaymentAmount.Major(),
		"currency":         r.Terms.Principal.Currency,
		"due_date":         r.DueDate().Format(time.RFC3339),
		"funding_ref":      r.FundingTransferRef,
	}
	if r.RepaymentTransferRef != "" {
		payload["repayment_ref"] = r.RepaymentTransferRef
	}

	return &OutboxEvent{
		ID:            id,
		AggregateID:   r.ID,
		AggregateType: AggregateTypeLoan,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     at,
	}
}
