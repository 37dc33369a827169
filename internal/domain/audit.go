package domain

import (
	"context"
	"encoding/json"
	"time"
)

// AuditLog records who changed a listing or loan and how.
type AuditLog struct {
	ID           string
	Actor        string // wallet address, or "system"
	Action       string
	ResourceType string
	ResourceID   string
	RequestID    string
	BeforeState  JSON
	AfterState   JSON
	Status       string
	ErrorMessage string
	CreatedAt    time.Time
}

// JSON is a type alias for JSON data
type JSON map[string]any

// AuditAction represents different types of auditable actions
type AuditAction string

const (
	AuditActionListingCreate   AuditAction = "listing.create"
	AuditActionListingWithdraw AuditAction = "listing.withdraw"
	AuditActionListingMatch    AuditAction = "listing.match"
	AuditActionLoanFund        AuditAction = "loan.fund"
	AuditActionLoanRepay       AuditAction = "loan.repay"
	AuditActionWalletLogin     AuditAction = "wallet.login"
)

// AuditStatus represents the status of an audited action
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailure AuditStatus = "failure"
)

// SystemActor marks actions taken by jobs rather than a wallet.
const SystemActor = "system"

// ActorFromContext returns the caller address, or SystemActor.
func ActorFromContext(ctx context.Context) string {
	if id, ok := IdentityFromContext(ctx); ok {
		return id.Address
	}
	return SystemActor
}

// MarshalState converts a domain object to JSON for audit logging
func MarshalState(v any) JSON {
	if v == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return JSON{"error": "failed to marshal state"}
	}

	var result JSON
	if err := json.Unmarshal(data, &result); err != nil {
		return JSON{"error": "failed to unmarshal state"}
	}

	return result
}

// AuditFilter defines filters for querying audit logs
type AuditFilter struct {
	Actor        string
	Action       string
	ResourceType string
	ResourceID   string
	StartDate    *time.Time
	EndDate      *time.Time
	Limit        int
	Offset       int
}
