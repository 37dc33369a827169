package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/iho/loanledger/internal/adapter/http/dto"
	"github.com/iho/loanledger/internal/domain"
)

type creditServiceStub struct {
	profileForFn func(ctx context.Context, address, caller string) (*domain.CreditProfile, error)
}

func (s *creditServiceStub) ProfileFor(ctx context.Context, address, caller string) (*domain.CreditProfile, error) {
	return s.profileForFn(ctx, address, caller)
}

func TestCreditHandler_Get(t *testing.T) {
	profile := &domain.CreditProfile{
		Address:   "0xborrower",
		RiskScore: 650,
		RiskLevel: domain.RiskLevelMedium,
		History:   domain.LoanHistory{GoodLoans: 2},
		MaxLoan:   domain.NewMoney(5_000_000_000, "SOL", 6),
		UpdatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name       string
		caller     string
		err        error
		wantStatus int
	}{
		{name: "own profile", caller: "0xborrower", wantStatus: http.StatusOK},
		{name: "anonymous lookup of a known party", wantStatus: http.StatusOK},
		{name: "unknown address", caller: "0xeve", err: domain.ErrProfileNotFound, wantStatus: http.StatusNotFound},
		{name: "store down", caller: "0xborrower", err: domain.ErrPersistenceUnavailable, wantStatus: http.StatusServiceUnavailable},
		{name: "unexpected", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewCreditHandler(&creditServiceStub{
				profileForFn: func(ctx context.Context, address, caller string) (*domain.CreditProfile, error) {
					if address != "0xborrower" || caller != tt.caller {
						t.Errorf("unexpected args %q %q", address, caller)
					}
					if tt.err != nil {
						return nil, tt.err
					}
					return profile, nil
				},
			})

			rec := httptest.NewRecorder()
			h.Get(rec, newRequest(http.MethodGet, "/api/v1/credit/0xborrower", nil, tt.caller, map[string]string{"address": "0xborrower"}))

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			if rec.Code == http.StatusOK {
				var resp dto.CreditProfileResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("failed to decode: %v", err)
				}
				if resp.RiskScore != 650 || resp.RiskLevel != "medium" || resp.MaxLoan.Amount != "5000.000000" {
					t.Fatalf("unexpected profile %+v", resp)
				}
			}
		})
	}
}
