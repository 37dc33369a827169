// Package memory holds process-local stores for single-node deployments and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/iho/loanledger/internal/domain"
)

type reservation struct {
	holder    string
	expiresAt time.Time
}

type storedIntent struct {
	intent    domain.TransferIntent
	expiresAt time.Time
}

// IntentStore implements usecase.IntentStore in process memory.
// Expired entries are treated as absent and pruned lazily.
type IntentStore struct {
	mu           sync.Mutex
	reservations map[string]reservation
	intents      map[string]storedIntent
	now          func() time.Time
}

// NewIntentStore creates an empty IntentStore.
func NewIntentStore() *IntentStore {
	return &IntentStore{
		reservations: make(map[string]reservation),
		intents:      make(map[string]storedIntent),
		now:          time.Now,
	}
}

// SetClock overrides the time source.
func (s *IntentStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func intentKey(kind domain.IntentKind, id string) string {
	return string(kind) + ":" + id
}

// Reserve claims a listing for holder unless a live reservation exists.
func (s *IntentStore) Reserve(_ context.Context, listingID, holder string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if r, ok := s.reservations[listingID]; ok && now.Before(r.expiresAt) {
		return false, nil
	}
	s.reservations[listingID] = reservation{holder: holder, expiresAt: now.Add(ttl)}
	return true, nil
}

// ReservationHolder returns the live holder of a listing, or "".
func (s *IntentStore) ReservationHolder(_ context.Context, listingID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[listingID]
	if !ok {
		return "", nil
	}
	if !s.now().Before(r.expiresAt) {
		delete(s.reservations, listingID)
		return "", nil
	}
	return r.holder, nil
}

// Release frees a listing if holder still owns it.
func (s *IntentStore) Release(_ context.Context, listingID, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.reservations[listingID]; ok && r.holder == holder {
		delete(s.reservations, listingID)
	}
	return nil
}

// Save stores a copy of intent.
func (s *IntentStore) Save(_ context.Context, intent *domain.TransferIntent, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *intent
	if intent.Record != nil {
		rec := *intent.Record
		cp.Record = &rec
	}
	s.intents[intentKey(intent.Kind, intent.ID)] = storedIntent{intent: cp, expiresAt: s.now().Add(ttl)}
	return nil
}

// Get returns a copy of a live intent or domain.ErrIntentNotFound.
func (s *IntentStore) Get(_ context.Context, kind domain.IntentKind, id string) (*domain.TransferIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := intentKey(kind, id)
	stored, ok := s.intents[key]
	if !ok {
		return nil, domain.ErrIntentNotFound
	}
	if !s.now().Before(stored.expiresAt) {
		delete(s.intents, key)
		return nil, domain.ErrIntentNotFound
	}

	cp := stored.intent
	if stored.intent.Record != nil {
		rec := *stored.intent.Record
		cp.Record = &rec
	}
	return &cp, nil
}

// Delete removes an intent.
func (s *IntentStore) Delete(_ context.Context, kind domain.IntentKind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.intents, intentKey(kind, id))
	return nil
}
