package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/loanledger/internal/domain"
)

// newRequest builds a request carrying chi URL params and an optional caller identity.
func newRequest(method, target string, body io.Reader, caller string, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, body)

	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if caller != "" {
		ctx = domain.WithIdentity(ctx, domain.Identity{Address: caller})
	}
	return req.WithContext(ctx)
}

func fixtureListing(t *testing.T) *domain.Listing {
	t.Helper()

	terms, err := domain.NewLoanTerms(domain.NewMoney(250_000, "SOL", 6), decimal.RequireFromString("12"), 60)
	if err != nil {
		t.Fatalf("terms: %v", err)
	}
	listing, err := domain.NewListing("lst-1", domain.ListingKindRequest, "0xborrower", terms, "", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	return listing
}

func fixtureLoan(t *testing.T) *domain.LoanRecord {
	t.Helper()

	listing := fixtureListing(t)
	record, err := domain.NewLoanRecord("loan-1", listing, "0xlender", listing.CreatedAt)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	return record
}
