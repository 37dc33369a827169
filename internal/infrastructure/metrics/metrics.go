package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Listing metrics
	ListingsCreated   *prometheus.CounterVec
	ListingsWithdrawn prometheus.Counter

	// Loan metrics
	FundingIntents        prometheus.Counter
	FundingConflicts      prometheus.Counter
	FundingsCancelled     prometheus.Counter
	LoansFunded           prometheus.Counter
	LoansRepaid           prometheus.Counter
	LoanPrincipal         prometheus.Histogram
	ConfirmDuration       *prometheus.HistogramVec
	TransferFailures      *prometheus.CounterVec
	CreditRefreshes       *prometheus.CounterVec
	OutboxEventsPublished prometheus.Counter

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Authentication metrics
	AuthAttempts *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec

	// Audit metrics
	AuditLogsCreated *prometheus.CounterVec
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates metrics registered on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		ListingsCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loanledger_listings_created_total",
				Help: "Total number of listings created by kind",
			},
			[]string{"kind"},
		),
		ListingsWithdrawn: f.NewCounter(prometheus.CounterOpts{
			Name: "loanledger_listings_withdrawn_total",
			Help: "Total number of listings withdrawn by their owner",
		}),

		FundingIntents: f.NewCounter(prometheus.CounterOpts{
			Name: "loanledger_funding_intents_total",
			Help: "Total number of funding intents issued",
		}),
		FundingConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "loanledger_funding_conflicts_total",
			Help: "Total number of funding attempts that lost a race",
		}),
		FundingsCancelled: f.NewCounter(prometheus.CounterOpts{
			Name: "loanledger_fundings_cancelled_total",
			Help: "Total number of funding intents cancelled before confirmation",
		}),
		LoansFunded: f.NewCounter(prometheus.CounterOpts{
			Name: "loanledger_loans_funded_total",
			Help: "Total number of loans funded",
		}),
		LoansRepaid: f.NewCounter(prometheus.CounterOpts{
			Name: "loanledger_loans_repaid_total",
			Help: "Total number of loans repaid",
		}),
		LoanPrincipal: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "loanledger_loan_principal",
			Help:    "Principal of funded loans in major units",
			Buckets: []float64{1, 10, 50, 100, 250, 1000, 5000, 10000},
		}),
		ConfirmDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loanledger_confirm_duration_seconds",
				Help:    "Duration of confirm operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		TransferFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loanledger_transfer_failures_total",
				Help: "Transfers rejected during verification",
			},
			[]string{"kind"},
		),
		CreditRefreshes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loanledger_credit_refreshes_total",
				Help: "Credit profile refreshes by outcome",
			},
			[]string{"status"},
		),
		OutboxEventsPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "loanledger_outbox_events_published_total",
			Help: "Total outbox events published",
		}),

		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loanledger_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loanledger_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		AuthAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loanledger_auth_attempts_total",
				Help: "Wallet sign-in attempts by outcome",
			},
			[]string{"status"},
		),

		RateLimitHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loanledger_rate_limit_hits_total",
				Help: "Total rate limit hits",
			},
			[]string{"ip"},
		),

		AuditLogsCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loanledger_audit_logs_total",
				Help: "Total audit logs created",
			},
			[]string{"action", "status"},
		),
	}
}
