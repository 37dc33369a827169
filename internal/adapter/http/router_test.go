package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iho/loanledger/internal/adapter/http/dto"
	"github.com/iho/loanledger/internal/adapter/http/handler"
	apimiddleware "github.com/iho/loanledger/internal/adapter/http/middleware"
	"github.com/iho/loanledger/internal/adapter/repository/memory"
	"github.com/iho/loanledger/internal/adapter/repository/sqlite"
	"github.com/iho/loanledger/internal/infrastructure/auth"
	"github.com/iho/loanledger/internal/infrastructure/metrics"
	"github.com/iho/loanledger/internal/usecase"
	"github.com/iho/loanledger/internal/usecase/mocks"
)

func TestNewRouter_HealthEndpointAvailable(t *testing.T) {
	router := NewRouter(newRouterConfig(t))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected /health to return 200, got %d", rec.Code)
	}
}

func TestNewRouter_RateLimiterBlocksExcessRequests(t *testing.T) {
	rl := apimiddleware.NewRateLimiter(1, 1)
	router := NewRouter(newRouterConfig(t, func(cfg *RouterConfig) {
		cfg.RateLimiter = rl
	}))

	req1 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req1.RemoteAddr = "1.2.3.4:1234"
	rec1 := httptest.NewRecorder()
	router.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req2.RemoteAddr = "1.2.3.4:1234"
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled, got %d", rec2.Code)
	}
}

func TestNewRouter_IdempotencyReplaysListingCreation(t *testing.T) {
	store := mocks.NewMockIdemStore()
	router := NewRouter(newRouterConfig(t, func(cfg *RouterConfig) {
		cfg.IdempotencyStore = store
	}))

	body := `{"kind":"request","principal":"25","duration_days":30}`
	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/listings", strings.NewReader(body))
		req.Header.Set(apimiddleware.WalletAddressHeader, "0xb0b")
		req.Header.Set(apimiddleware.IdempotencyKeyHeader, "key-123")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", first.Code, first.Body.String())
	}

	second := send()
	if second.Header().Get("X-Idempotency-Replay") != "true" {
		t.Fatalf("expected replayed response")
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replay differs from original")
	}
	if second.Code != http.StatusCreated {
		t.Fatalf("replay should answer 201 like the original, got %d", second.Code)
	}

	// Same key from another wallet creates its own listing.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/listings", strings.NewReader(body))
	req.Header.Set(apimiddleware.WalletAddressHeader, "0xa11ce")
	req.Header.Set(apimiddleware.IdempotencyKeyHeader, "key-123")
	third := httptest.NewRecorder()
	router.ServeHTTP(third, req)
	if third.Code != http.StatusCreated || third.Header().Get("X-Idempotency-Replay") != "" {
		t.Fatalf("expected a fresh 201 for another caller, got %d", third.Code)
	}
	if third.Body.String() == first.Body.String() {
		t.Fatalf("another caller must not see the first caller's listing")
	}
}

func TestNewRouter_RegistersKeyRoutes(t *testing.T) {
	router := NewRouter(newRouterConfig(t))

	chiRoutes, ok := router.(chi.Router)
	if !ok {
		t.Fatal("router does not implement chi.Routes")
	}

	seen := map[string]bool{}
	if err := chi.Walk(chiRoutes, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		seen[method+" "+route] = true
		return nil
	}); err != nil {
		t.Fatalf("walk failed: %v", err)
	}

	expected := []string{
		"GET /health",
		"GET /ready",
		"GET /metrics",
		"GET /api/v1/auth/challenge",
		"POST /api/v1/auth/token",
		"POST /api/v1/listings/",
		"GET /api/v1/listings/",
		"GET /api/v1/listings/{id}",
		"POST /api/v1/listings/{id}/withdraw",
		"POST /api/v1/listings/{id}/fund",
		"GET /api/v1/listings/{id}/funding",
		"GET /api/v1/loans/",
		"GET /api/v1/loans/{id}",
		"POST /api/v1/loans/{id}/confirm-funding",
		"DELETE /api/v1/loans/{id}/funding",
		"POST /api/v1/loans/{id}/repay",
		"POST /api/v1/loans/{id}/confirm-repayment",
		"GET /api/v1/credit/{address}",
		"POST /api/v1/quotes/repayment",
	}

	for _, route := range expected {
		if !seen[route] {
			t.Fatalf("expected route %s to be registered", route)
		}
	}
}

func TestNewRouter_BearerAuth(t *testing.T) {
	manager := auth.NewJWTManager("router-secret", time.Hour)
	router := NewRouter(newRouterConfig(t, func(cfg *RouterConfig) {
		cfg.TokenVerifier = manager
	}))

	// the wallet header is ignored once token auth is on
	req := httptest.NewRequest(http.MethodPost, "/api/v1/listings", strings.NewReader(`{"kind":"request","principal":"1","duration_days":1}`))
	req.Header.Set(apimiddleware.WalletAddressHeader, "0xb0b")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}

	token, _, err := manager.Generate("0xb0b")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "0xb0b") {
		t.Fatalf("expected /auth/me to echo the address, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestNewRouter_LoanLifecycle(t *testing.T) {
	router := NewRouter(newRouterConfig(t))

	call := func(method, path, caller, body string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		if caller != "" {
			req.Header.Set(apimiddleware.WalletAddressHeader, caller)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := call(http.MethodPost, "/api/v1/listings", "0xb0b", `{"kind":"request","principal":"100","interest_rate_percent":"5","duration_days":30,"purpose":"seeds"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	var listing dto.ListingResponse
	mustDecode(t, rec, &listing)

	rec = call(http.MethodGet, "/api/v1/listings?kind=request", "", "")
	var active []dto.ListingResponse
	mustDecode(t, rec, &active)
	if len(active) != 1 || active[0].ID != listing.ID {
		t.Fatalf("expected the new listing to be active, got %+v", active)
	}

	rec = call(http.MethodPost, "/api/v1/listings/"+listing.ID+"/fund", "0xb0b", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("owner must not fund their own listing, got %d", rec.Code)
	}

	rec = call(http.MethodPost, "/api/v1/listings/"+listing.ID+"/fund", "0xa11ce", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("fund: %d %s", rec.Code, rec.Body.String())
	}
	var funding dto.IntentResponse
	mustDecode(t, rec, &funding)
	if funding.RequiredTransfer.From != "0xa11ce" || funding.RequiredTransfer.To != "0xb0b" {
		t.Fatalf("unexpected transfer %+v", funding.RequiredTransfer)
	}

	rec = call(http.MethodPost, "/api/v1/listings/"+listing.ID+"/fund", "0xca401", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("second funder must lose the race, got %d", rec.Code)
	}

	rec = call(http.MethodPost, "/api/v1/loans/"+funding.Loan.ID+"/confirm-funding", "", `{"transfer_ref":"sig-fund"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("confirm funding: %d %s", rec.Code, rec.Body.String())
	}

	rec = call(http.MethodGet, "/api/v1/listings/"+listing.ID, "", "")
	mustDecode(t, rec, &listing)
	if listing.Status != "closed" || listing.LoanID != funding.Loan.ID {
		t.Fatalf("listing should be closed by the loan, got %+v", listing)
	}

	rec = call(http.MethodPost, "/api/v1/loans/"+funding.Loan.ID+"/repay", "0xb0b", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("repay: %d %s", rec.Code, rec.Body.String())
	}
	var repayment dto.IntentResponse
	mustDecode(t, rec, &repayment)
	if repayment.RequiredTransfer.Amount.Amount != "105.000000" {
		t.Fatalf("expected 105.000000 due, got %s", repayment.RequiredTransfer.Amount.Amount)
	}

	rec = call(http.MethodPost, "/api/v1/loans/"+funding.Loan.ID+"/confirm-repayment", "", `{"transfer_ref":"sig-repay"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm repayment: %d %s", rec.Code, rec.Body.String())
	}

	rec = call(http.MethodGet, "/api/v1/loans?role=lender", "0xa11ce", "")
	var loans []dto.LoanResponse
	mustDecode(t, rec, &loans)
	if len(loans) != 1 || loans[0].Status != "repaid" || loans[0].RepaymentTransferRef != "sig-repay" {
		t.Fatalf("unexpected lender loans %+v", loans)
	}

	rec = call(http.MethodGet, "/api/v1/credit/0xb0b", "", "")
	var profile dto.CreditProfileResponse
	mustDecode(t, rec, &profile)
	if profile.GoodLoans != 1 {
		t.Fatalf("repaid loan should count as good, got %+v", profile)
	}

	rec = call(http.MethodGet, "/api/v1/credit/0xeve", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("anonymous lookup of an unknown address must not create a profile, got %d", rec.Code)
	}

	rec = call(http.MethodGet, "/metrics", "", "")
	if !strings.Contains(rec.Body.String(), "loanledger_loans_repaid_total 1") {
		t.Fatalf("expected repaid counter in metrics output")
	}
}

func TestNewRouter_OfferLifecycle(t *testing.T) {
	router := NewRouter(newRouterConfig(t))

	call := func(method, path, caller, body string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		if caller != "" {
			req.Header.Set(apimiddleware.WalletAddressHeader, caller)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := call(http.MethodPost, "/api/v1/listings", "0xa11ce", `{"kind":"offer","principal":"40","interest_rate_percent":"10","duration_days":365}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create offer: %d %s", rec.Code, rec.Body.String())
	}
	var offer dto.ListingResponse
	mustDecode(t, rec, &offer)

	rec = call(http.MethodGet, "/api/v1/listings/"+offer.ID+"/funding", "0xa11ce", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("nothing is pending before a borrower takes the offer, got %d", rec.Code)
	}

	rec = call(http.MethodPost, "/api/v1/listings/"+offer.ID+"/fund", "0xb0b", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("take offer: %d %s", rec.Code, rec.Body.String())
	}
	var taken dto.IntentResponse
	mustDecode(t, rec, &taken)

	rec = call(http.MethodGet, "/api/v1/listings/"+offer.ID+"/funding", "0xeve", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("strangers must not see the pending funding, got %d", rec.Code)
	}

	// The lender learns what to pay from the listing alone.
	rec = call(http.MethodGet, "/api/v1/listings/"+offer.ID+"/funding", "0xa11ce", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("pending funding: %d %s", rec.Code, rec.Body.String())
	}
	var pending dto.IntentResponse
	mustDecode(t, rec, &pending)
	if pending.Loan.ID != taken.Loan.ID {
		t.Fatalf("expected record %s, got %s", taken.Loan.ID, pending.Loan.ID)
	}
	if pending.RequiredTransfer.From != "0xa11ce" || pending.RequiredTransfer.To != "0xb0b" || pending.RequiredTransfer.ChainUnits != "40000000000" {
		t.Fatalf("unexpected transfer %+v", pending.RequiredTransfer)
	}

	rec = call(http.MethodPost, "/api/v1/loans/"+pending.Loan.ID+"/confirm-funding", "0xa11ce", `{"transfer_ref":"sig-offer"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("confirm funding: %d %s", rec.Code, rec.Body.String())
	}
	var loan dto.LoanResponse
	mustDecode(t, rec, &loan)
	if loan.Status != "active" || loan.LenderAddress != "0xa11ce" || loan.BorrowerAddress != "0xb0b" {
		t.Fatalf("unexpected loan %+v", loan)
	}

	rec = call(http.MethodGet, "/api/v1/listings/"+offer.ID, "", "")
	mustDecode(t, rec, &offer)
	if offer.Status != "closed" || offer.LoanID != loan.ID {
		t.Fatalf("offer should be matched to the loan, got %+v", offer)
	}

	rec = call(http.MethodGet, "/api/v1/listings/"+offer.ID+"/funding", "0xa11ce", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("confirmed funding is no longer pending, got %d", rec.Code)
	}
}

func mustDecode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func newRouterConfig(t *testing.T, opts ...func(*RouterConfig)) RouterConfig {
	t.Helper()

	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	txm := sqlite.NewTxManager(db)
	listings := sqlite.NewListingRepository(db)
	loans := sqlite.NewLoanRepository(db)
	profiles := sqlite.NewProfileRepository(db)
	outbox := sqlite.NewOutboxRepository(db)
	audit := sqlite.NewAuditRepository(db)
	intents := memory.NewIntentStore()
	ids := mocks.NewMockIDGen()

	registry := prometheus.NewRegistry()
	m := metrics.NewWithRegisterer(registry)
	currency := usecase.CurrencyConfig{Code: "SOL", Decimals: 6, ChainDecimals: 9}

	listingUC := usecase.NewListingUseCase(txm, listings, profiles, outbox, audit, intents, ids, m,
		usecase.ListingUseCaseConfig{Currency: currency}, zerolog.Nop())
	lendingUC := usecase.NewLendingUseCase(txm, listings, loans, outbox, audit, intents, nil, ids, m,
		usecase.LendingUseCaseConfig{Currency: currency, IntentTTL: time.Minute}, zerolog.Nop())
	creditUC := usecase.NewCreditUseCase(loans, profiles, nil, nil, m, currency, zerolog.Nop())

	cfg := RouterConfig{
		HealthHandler:  handler.NewHealthHandler(handler.Check{Name: "sqlite", Ping: func(ctx context.Context) error { return nil }}),
		ListingHandler: handler.NewListingHandler(listingUC),
		LoanHandler:    handler.NewLoanHandler(lendingUC),
		CreditHandler:  handler.NewCreditHandler(creditUC),
		QuoteHandler:   handler.NewQuoteHandler(listingUC, lendingUC),
		AuthHandler:    handler.NewAuthHandler(usecase.NewAuthUseCase(memory.NewCache(), nil, nil, m)),
		Logger:         zerolog.Nop(),
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}
