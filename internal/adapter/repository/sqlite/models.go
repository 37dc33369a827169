package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/loanledger/internal/domain"
)

type userModel struct {
	Address   string `gorm:"primaryKey"`
	CreatedAt time.Time
}

func (userModel) TableName() string { return "users" }

type profileModel struct {
	Address        string `gorm:"primaryKey"`
	RiskScore      int
	RiskLevel      string
	GoodLoans      int
	DefaultedLoans int
	MaxLoanMinor   int64
	Currency       string
	Decimals       int32
	UpdatedAt      time.Time
}

func (profileModel) TableName() string { return "credit_profiles" }

type listingModel struct {
	ID                  string `gorm:"primaryKey"`
	Kind                string `gorm:"index:idx_listings_active,priority:1;not null"`
	OwnerAddress        string `gorm:"index;not null"`
	PrincipalMinor      int64
	Currency            string
	Decimals            int32
	InterestRatePercent string
	DurationDays        int
	Purpose             string
	Status              string `gorm:"index:idx_listings_active,priority:2;not null"`
	CloseReason         string
	LoanID              string
	CreatedAt           time.Time
	ClosedAt            *time.Time
}

func (listingModel) TableName() string { return "listings" }

type loanModel struct {
	ID                   string `gorm:"primaryKey"`
	ListingID            string `gorm:"uniqueIndex;not null"`
	ListingKind          string
	LenderAddress        string `gorm:"index;not null"`
	BorrowerAddress      string `gorm:"index;not null"`
	PrincipalMinor       int64
	Currency             string
	Decimals             int32
	InterestRatePercent  string
	DurationDays         int
	TotalRepaymentMinor  int64
	StartDate            time.Time
	Status               string
	FundingTransferRef   string  `gorm:"uniqueIndex;not null"`
	RepaymentTransferRef *string `gorm:"uniqueIndex"`
	RepaidAt             *time.Time
	CreatedAt            time.Time
}

func (loanModel) TableName() string { return "loans" }

type outboxModel struct {
	ID            string `gorm:"primaryKey"`
	AggregateID   string `gorm:"index:idx_outbox_aggregate,priority:2"`
	AggregateType string `gorm:"index:idx_outbox_aggregate,priority:1"`
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool `gorm:"index"`
}

func (outboxModel) TableName() string { return "outbox_events" }

type auditModel struct {
	ID           string `gorm:"primaryKey"`
	Actor        string `gorm:"index"`
	Action       string
	ResourceType string `gorm:"index:idx_audit_resource,priority:1"`
	ResourceID   string `gorm:"index:idx_audit_resource,priority:2"`
	RequestID    string
	BeforeState  []byte
	AfterState   []byte
	Status       string
	ErrorMessage string
	CreatedAt    time.Time `gorm:"index"`
}

func (auditModel) TableName() string { return "audit_logs" }

func listingFromDomain(l *domain.Listing) *listingModel {
	return &listingModel{
		ID:                  l.ID,
		Kind:                string(l.Kind),
		OwnerAddress:        l.OwnerAddress,
		PrincipalMinor:      l.Terms.Principal.Minor,
		Currency:            l.Terms.Principal.Currency,
		Decimals:            l.Terms.Principal.Decimals,
		InterestRatePercent: l.Terms.InterestRatePercent.String(),
		DurationDays:        l.Terms.DurationDays,
		Purpose:             l.Purpose,
		Status:              string(l.Status),
		CloseReason:         string(l.CloseReason),
		LoanID:              l.LoanID,
		CreatedAt:           l.CreatedAt,
		ClosedAt:            l.ClosedAt,
	}
}

func (m *listingModel) toDomain() (*domain.Listing, error) {
	rate, err := decimal.NewFromString(m.InterestRatePercent)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s has rate %q", domain.ErrInvalidTerms, m.ID, m.InterestRatePercent)
	}

	l := &domain.Listing{
		ID:           m.ID,
		Kind:         domain.ListingKind(m.Kind),
		OwnerAddress: m.OwnerAddress,
		Terms: domain.LoanTerms{
			Principal:           domain.NewMoney(m.PrincipalMinor, m.Currency, m.Decimals),
			InterestRatePercent: rate,
			DurationDays:        m.DurationDays,
		},
		Purpose:     m.Purpose,
		Status:      domain.ListingStatus(m.Status),
		CloseReason: domain.CloseReason(m.CloseReason),
		LoanID:      m.LoanID,
		CreatedAt:   m.CreatedAt,
		ClosedAt:    m.ClosedAt,
	}
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("%w: stored listing %s: %w", domain.ErrInvalidTerms, m.ID, err)
	}
	return l, nil
}

func loanFromDomain(r *domain.LoanRecord) *loanModel {
	m := &loanModel{
		ID:                  r.ID,
		ListingID:           r.ListingID,
		ListingKind:         string(r.ListingKind),
		LenderAddress:       r.LenderAddress,
		BorrowerAddress:     r.BorrowerAddress,
		PrincipalMinor:      r.Terms.Principal.Minor,
		Currency:            r.Terms.Principal.Currency,
		Decimals:            r.Terms.Principal.Decimals,
		InterestRatePercent: r.Terms.InterestRatePercent.String(),
		DurationDays:        r.Terms.DurationDays,
		TotalRepaymentMinor: r.TotalRepaymentAmount.Minor,
		StartDate:           r.StartDate,
		Status:              string(r.Status),
		FundingTransferRef:  r.FundingTransferRef,
		RepaidAt:            r.RepaidAt,
		CreatedAt:           r.CreatedAt,
	}
	if r.RepaymentTransferRef != "" {
		ref := r.RepaymentTransferRef
		m.RepaymentTransferRef = &ref
	}
	return m
}

func (m *loanModel) toDomain() (*domain.LoanRecord, error) {
	rate, err := decimal.NewFromString(m.InterestRatePercent)
	if err != nil {
		return nil, fmt.Errorf("%w: loan %s has rate %q", domain.ErrInvalidTerms, m.ID, m.InterestRatePercent)
	}

	r := &domain.LoanRecord{
		ID:              m.ID,
		ListingID:       m.ListingID,
		ListingKind:     domain.ListingKind(m.ListingKind),
		LenderAddress:   m.LenderAddress,
		BorrowerAddress: m.BorrowerAddress,
		Terms: domain.LoanTerms{
			Principal:           domain.NewMoney(m.PrincipalMinor, m.Currency, m.Decimals),
			InterestRatePercent: rate,
			DurationDays:        m.DurationDays,
		},
		TotalRepaymentAmount: domain.NewMoney(m.TotalRepaymentMinor, m.Currency, m.Decimals),
		StartDate:            m.StartDate,
		Status:               domain.LoanStatus(m.Status),
		FundingTransferRef:   m.FundingTransferRef,
		RepaidAt:             m.RepaidAt,
		CreatedAt:            m.CreatedAt,
	}
	if m.RepaymentTransferRef != nil {
		r.RepaymentTransferRef = *m.RepaymentTransferRef
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%w: stored loan %s: %w", domain.ErrInvalidTerms, m.ID, err)
	}
	return r, nil
}

func marshalJSON(v any) []byte {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
