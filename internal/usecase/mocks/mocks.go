package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iho/loanledger/internal/domain"
	"github.com/iho/loanledger/internal/usecase"
)

// MockListingRepository is a mock implementation of ListingRepository.
type MockListingRepository struct {
	mu       sync.RWMutex
	listings map[string]*domain.Listing

	CreateFunc           func(ctx context.Context, tx usecase.Transaction, listing *domain.Listing) error
	GetByIDFunc          func(ctx context.Context, id string) (*domain.Listing, error)
	GetByIDForUpdateFunc func(ctx context.Context, tx usecase.Transaction, id string) (*domain.Listing, error)
	CloseIfActiveFunc    func(ctx context.Context, tx usecase.Transaction, id string, reason domain.CloseReason, loanID string, closedAt time.Time) (bool, error)
	ListActiveFunc       func(ctx context.Context, kind domain.ListingKind, limit int) ([]*domain.Listing, error)
	ListByOwnerFunc      func(ctx context.Context, owner string, limit, offset int) ([]*domain.Listing, error)
}

func NewMockListingRepository() *MockListingRepository {
	return &MockListingRepository{
		listings: make(map[string]*domain.Listing),
	}
}

// Put stores a copy of listing.
func (m *MockListingRepository) Put(listing *domain.Listing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *listing
	m.listings[listing.ID] = &cp
}

func (m *MockListingRepository) Create(ctx context.Context, tx usecase.Transaction, listing *domain.Listing) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, listing)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listings[listing.ID]; ok {
		return fmt.Errorf("%w: listing %s exists", domain.ErrConflict, listing.ID)
	}
	cp := *listing
	m.listings[listing.ID] = &cp
	return nil
}

func (m *MockListingRepository) GetByID(ctx context.Context, id string) (*domain.Listing, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if l, ok := m.listings[id]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, domain.ErrListingNotFound
}

func (m *MockListingRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Listing, error) {
	if m.GetByIDForUpdateFunc != nil {
		return m.GetByIDForUpdateFunc(ctx, tx, id)
	}
	return m.GetByID(ctx, id)
}

func (m *MockListingRepository) CloseIfActive(ctx context.Context, tx usecase.Transaction, id string, reason domain.CloseReason, loanID string, closedAt time.Time) (bool, error) {
	if m.CloseIfActiveFunc != nil {
		return m.CloseIfActiveFunc(ctx, tx, id, reason, loanID, closedAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return false, domain.ErrListingNotFound
	}
	if l.Status != domain.ListingStatusActive {
		return false, nil
	}
	l.Status = domain.ListingStatusClosed
	l.CloseReason = reason
	l.LoanID = loanID
	at := closedAt
	l.ClosedAt = &at
	return true, nil
}

func (m *MockListingRepository) ListActive(ctx context.Context, kind domain.ListingKind, limit int) ([]*domain.Listing, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx, kind, limit)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var listings []*domain.Listing
	for _, l := range m.listings {
		if l.Kind == kind && l.IsActive() {
			cp := *l
			listings = append(listings, &cp)
		}
	}
	sort.Slice(listings, func(i, j int) bool { return listings[i].CreatedAt.After(listings[j].CreatedAt) })
	if len(listings) > limit {
		listings = listings[:limit]
	}
	return listings, nil
}

func (m *MockListingRepository) ListByOwner(ctx context.Context, owner string, limit, offset int) ([]*domain.Listing, error) {
	if m.ListByOwnerFunc != nil {
		return m.ListByOwnerFunc(ctx, owner, limit, offset)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var listings []*domain.Listing
	for _, l := range m.listings {
		if domain.SameAddress(l.OwnerAddress, owner) {
			cp := *l
			listings = append(listings, &cp)
		}
	}
	return listings, nil
}

// MockLoanRepository is a mock implementation of LoanRepository.
type MockLoanRepository struct {
	mu    sync.RWMutex
	loans map[string]*domain.LoanRecord

	CreateFunc             func(ctx context.Context, tx usecase.Transaction, loan *domain.LoanRecord) error
	GetByIDFunc            func(ctx context.Context, id string) (*domain.LoanRecord, error)
	MarkRepaidIfActiveFunc func(ctx context.Context, tx usecase.Transaction, id, transferRef string, repaidAt time.Time) (bool, error)
	FindByTransferRefFunc  func(ctx context.Context, tx usecase.Transaction, ref string) (*domain.LoanRecord, error)
	ListByPartyFunc        func(ctx context.Context, address string, role domain.PartyRole, limit, offset int) ([]*domain.LoanRecord, error)
	HistoryFunc            func(ctx context.Context, address string, now time.Time) (domain.LoanHistory, error)
}

func NewMockLoanRepository() *MockLoanRepository {
	return &MockLoanRepository{
		loans: make(map[string]*domain.LoanRecord),
	}
}

// Put stores a copy of loan.
func (m *MockLoanRepository) Put(loan *domain.LoanRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *loan
	m.loans[loan.ID] = &cp
}

// Count returns the number of stored loans.
func (m *MockLoanRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.loans)
}

func (m *MockLoanRepository) Create(ctx context.Context, tx usecase.Transaction, loan *domain.LoanRecord) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, loan)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.loans {
		if existing.ID == loan.ID || existing.ListingID == loan.ListingID {
			return fmt.Errorf("%w: loan for listing %s exists", domain.ErrConflict, loan.ListingID)
		}
	}
	cp := *loan
	m.loans[loan.ID] = &cp
	return nil
}

func (m *MockLoanRepository) GetByID(ctx context.Context, id string) (*domain.LoanRecord, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if l, ok := m.loans[id]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, domain.ErrLoanNotFound
}

func (m *MockLoanRepository) FindByTransferRef(ctx context.Context, tx usecase.Transaction, ref string) (*domain.LoanRecord, error) {
	if m.FindByTransferRefFunc != nil {
		return m.FindByTransferRefFunc(ctx, tx, ref)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.loans {
		if l.FundingTransferRef == ref || l.RepaymentTransferRef == ref {
			cp := *l
			return &cp, nil
		}
	}
	return nil, domain.ErrLoanNotFound
}

func (m *MockLoanRepository) MarkRepaidIfActive(ctx context.Context, tx usecase.Transaction, id, transferRef string, repaidAt time.Time) (bool, error) {
	if m.MarkRepaidIfActiveFunc != nil {
		return m.MarkRepaidIfActiveFunc(ctx, tx, id, transferRef, repaidAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loans[id]
	if !ok {
		return false, domain.ErrLoanNotFound
	}
	if l.Status != domain.LoanStatusActive {
		return false, nil
	}
	l.Status = domain.LoanStatusRepaid
	l.RepaymentTransferRef = transferRef
	at := repaidAt
	l.RepaidAt = &at
	return true, nil
}

func (m *MockLoanRepository) ListByParty(ctx context.Context, address string, role domain.PartyRole, limit, offset int) ([]*domain.LoanRecord, error) {
	if m.ListByPartyFunc != nil {
		return m.ListByPartyFunc(ctx, address, role, limit, offset)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var loans []*domain.LoanRecord
	for _, l := range m.loans {
		lender := domain.SameAddress(l.LenderAddress, address)
		borrower := domain.SameAddress(l.BorrowerAddress, address)
		switch {
		case role == domain.PartyRoleLender && lender,
			role == domain.PartyRoleBorrower && borrower,
			role == domain.PartyRoleAny && (lender || borrower):
			cp := *l
			loans = append(loans, &cp)
		}
	}
	return loans, nil
}

func (m *MockLoanRepository) History(ctx context.Context, address string, now time.Time) (domain.LoanHistory, error) {
	if m.HistoryFunc != nil {
		return m.HistoryFunc(ctx, address, now)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var h domain.LoanHistory
	for _, l := range m.loans {
		if !domain.SameAddress(l.BorrowerAddress, address) {
			continue
		}
		switch {
		case l.Status == domain.LoanStatusRepaid:
			h.GoodLoans++
		case l.IsOverdue(now):
			h.DefaultedLoans++
		}
	}
	return h, nil
}

// MockProfileRepository is a mock implementation of ProfileRepository.
type MockProfileRepository struct {
	mu       sync.RWMutex
	users    map[string]time.Time
	profiles map[string]*domain.CreditProfile

	EnsureUserFunc    func(ctx context.Context, tx usecase.Transaction, address string, at time.Time) error
	UpsertFunc        func(ctx context.Context, profile *domain.CreditProfile) error
	GetByAddressFunc  func(ctx context.Context, address string) (*domain.CreditProfile, error)
	ListAddressesFunc func(ctx context.Context, limit, offset int) ([]string, error)
}

func NewMockProfileRepository() *MockProfileRepository {
	return &MockProfileRepository{
		users:    make(map[string]time.Time),
		profiles: make(map[string]*domain.CreditProfile),
	}
}

func (m *MockProfileRepository) EnsureUser(ctx context.Context, tx usecase.Transaction, address string, at time.Time) error {
	if m.EnsureUserFunc != nil {
		return m.EnsureUserFunc(ctx, tx, address, at)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[address]; !ok {
		m.users[address] = at
	}
	return nil
}

func (m *MockProfileRepository) Upsert(ctx context.Context, profile *domain.CreditProfile) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, profile)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *profile
	m.profiles[profile.Address] = &cp
	if _, ok := m.users[profile.Address]; !ok {
		m.users[profile.Address] = profile.UpdatedAt
	}
	return nil
}

func (m *MockProfileRepository) GetByAddress(ctx context.Context, address string) (*domain.CreditProfile, error) {
	if m.GetByAddressFunc != nil {
		return m.GetByAddressFunc(ctx, address)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.profiles[address]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, domain.ErrProfileNotFound
}

func (m *MockProfileRepository) ListAddresses(ctx context.Context, limit, offset int) ([]string, error) {
	if m.ListAddressesFunc != nil {
		return m.ListAddressesFunc(ctx, limit, offset)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	addrs := make([]string, 0, len(m.users))
	for a := range m.users {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)
	if offset >= len(addrs) {
		return nil, nil
	}
	addrs = addrs[offset:]
	if len(addrs) > limit {
		addrs = addrs[:limit]
	}
	return addrs, nil
}

// MockOutboxRepository is a mock implementation of OutboxRepository.
type MockOutboxRepository struct {
	mu     sync.RWMutex
	events []*domain.OutboxEvent

	CreateFunc func(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error
}

func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{}
}

// Events returns recorded events in insertion order.
func (m *MockOutboxRepository) Events() []*domain.OutboxEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.OutboxEvent(nil), m.events...)
}

func (m *MockOutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockOutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.OutboxEvent
	for _, e := range m.events {
		if e.PublishedAt == nil && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.ID == id {
			at := publishedAt
			e.PublishedAt = &at
		}
	}
	return nil
}

func (m *MockOutboxRepository) GetByAggregate(ctx context.Context, aggregateType, aggregateID string, limit, offset int) ([]*domain.OutboxEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.OutboxEvent
	for _, e := range m.events {
		if e.AggregateType == aggregateType && e.AggregateID == aggregateID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockOutboxRepository) DeletePublished(ctx context.Context, before time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.events[:0]
	for _, e := range m.events {
		if e.PublishedAt == nil || !e.PublishedAt.Before(before) {
			kept = append(kept, e)
		}
	}
	m.events = kept
	return nil
}

// MockAuditRepository is a mock implementation of AuditRepository.
type MockAuditRepository struct {
	mu   sync.RWMutex
	logs []*domain.AuditLog

	CreateTxFunc func(ctx context.Context, tx usecase.Transaction, log *domain.AuditLog) error
}

func NewMockAuditRepository() *MockAuditRepository {
	return &MockAuditRepository{}
}

func (m *MockAuditRepository) CreateTx(ctx context.Context, tx usecase.Transaction, log *domain.AuditLog) error {
	if m.CreateTxFunc != nil {
		return m.CreateTxFunc(ctx, tx, log)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, log)
	return nil
}

func (m *MockAuditRepository) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.AuditLog
	for _, l := range m.logs {
		if filter.Actor != "" && l.Actor != filter.Actor {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// MockIntentStore is a mock implementation of IntentStore.
type MockIntentStore struct {
	mu           sync.Mutex
	reservations map[string]string
	intents      map[string]*domain.TransferIntent

	ReserveFunc func(ctx context.Context, listingID, holder string, ttl time.Duration) (bool, error)
	SaveFunc    func(ctx context.Context, intent *domain.TransferIntent, ttl time.Duration) error
	GetFunc     func(ctx context.Context, kind domain.IntentKind, id string) (*domain.TransferIntent, error)
}

func NewMockIntentStore() *MockIntentStore {
	return &MockIntentStore{
		reservations: make(map[string]string),
		intents:      make(map[string]*domain.TransferIntent),
	}
}

func (m *MockIntentStore) Reserve(ctx context.Context, listingID, holder string, ttl time.Duration) (bool, error) {
	if m.ReserveFunc != nil {
		return m.ReserveFunc(ctx, listingID, holder, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reservations[listingID]; ok {
		return false, nil
	}
	m.reservations[listingID] = holder
	return true, nil
}

func (m *MockIntentStore) ReservationHolder(ctx context.Context, listingID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reservations[listingID], nil
}

func (m *MockIntentStore) Release(ctx context.Context, listingID, holder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reservations[listingID] == holder {
		delete(m.reservations, listingID)
	}
	return nil
}

func (m *MockIntentStore) Save(ctx context.Context, intent *domain.TransferIntent, ttl time.Duration) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, intent, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *intent
	if intent.Record != nil {
		rec := *intent.Record
		cp.Record = &rec
	}
	m.intents[string(intent.Kind)+":"+intent.ID] = &cp
	return nil
}

func (m *MockIntentStore) Get(ctx context.Context, kind domain.IntentKind, id string) (*domain.TransferIntent, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, kind, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	intent, ok := m.intents[string(kind)+":"+id]
	if !ok {
		return nil, domain.ErrIntentNotFound
	}
	cp := *intent
	if intent.Record != nil {
		rec := *intent.Record
		cp.Record = &rec
	}
	return &cp, nil
}

func (m *MockIntentStore) Delete(ctx context.Context, kind domain.IntentKind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.intents, string(kind)+":"+id)
	return nil
}

// Expire drops an intent as if its TTL had elapsed.
func (m *MockIntentStore) Expire(kind domain.IntentKind, id string) {
	_ = m.Delete(context.Background(), kind, id)
}

// MockTxManager is a mock implementation of TransactionManager.
type MockTxManager struct {
	BeginFunc func(ctx context.Context) (usecase.Transaction, error)

	mu        sync.Mutex
	commits   int
	rollbacks int
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

func (m *MockTxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx)
	}
	return &MockTx{manager: m}, nil
}

// Commits returns the number of committed transactions.
func (m *MockTxManager) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// MockTx is a mock implementation of Transaction.
type MockTx struct {
	CommitFunc   func(ctx context.Context) error
	RollbackFunc func(ctx context.Context) error

	manager *MockTxManager
	done    bool
}

func (m *MockTx) Commit(ctx context.Context) error {
	if m.CommitFunc != nil {
		return m.CommitFunc(ctx)
	}
	if m.manager != nil && !m.done {
		m.manager.mu.Lock()
		m.manager.commits++
		m.manager.mu.Unlock()
	}
	m.done = true
	return nil
}

func (m *MockTx) Rollback(ctx context.Context) error {
	if m.RollbackFunc != nil {
		return m.RollbackFunc(ctx)
	}
	if m.manager != nil && !m.done {
		m.manager.mu.Lock()
		m.manager.rollbacks++
		m.manager.mu.Unlock()
	}
	m.done = true
	return nil
}

// MockIDGen is a mock implementation of IDGenerator.
type MockIDGen struct {
	GenerateFunc func() string
	counter      int
	mu           sync.Mutex
}

func NewMockIDGen() *MockIDGen {
	return &MockIDGen{}
}

func (m *MockIDGen) Generate() string {
	if m.GenerateFunc != nil {
		return m.GenerateFunc()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	return fmt.Sprintf("mock-id-%d", m.counter)
}

// MockIdemStore is a mock implementation of IdempotencyStore.
type MockIdemStore struct {
	mu   sync.RWMutex
	data map[string][]byte

	CheckAndSetFunc func(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	UpdateFunc      func(ctx context.Context, key string, response []byte, ttl time.Duration) error
}

func NewMockIdemStore() *MockIdemStore {
	return &MockIdemStore{
		data: make(map[string][]byte),
	}
}

func (m *MockIdemStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	if m.CheckAndSetFunc != nil {
		return m.CheckAndSetFunc(ctx, key, response, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.data[key]; ok {
		return true, existing, nil
	}
	if response != nil {
		m.data[key] = response
	} else {
		m.data[key] = []byte("processing")
	}
	return false, nil, nil
}

func (m *MockIdemStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, key, response, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = response
	return nil
}

func (m *MockIdemStore) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
