//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"linkhub-membership/internal/domain"
	"linkhub-membership/internal/domain/model"
	"linkhub-membership/internal/domain/ports/adapter"
	"linkhub-membership/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// =============================
// Repositories
// =============================

// ---- Mock MembershipPlanRepository ----

type MockPlanRepo struct {
	mu   sync.Mutex
	data map[string]*model.MembershipPlan

	FindByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.MembershipPlan, error)
}

var _ repository.MembershipPlanRepository = (*MockPlanRepo)(nil)

func NewMockPlanRepo() *MockPlanRepo {
	return &MockPlanRepo{data: map[string]*model.MembershipPlan{}}
}

func (r *MockPlanRepo) Save(ctx context.Context, tx repository.Tx, p *model.MembershipPlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.data[p.ID] = &cp
	return nil
}

func (r *MockPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.MembershipPlan, error) {
	if r.FindByIDFunc != nil {
		return r.FindByIDFunc(ctx, tx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MockPlanRepo) FindBySlug(ctx context.Context, tx repository.Tx, slug string) (*model.MembershipPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.data {
		if p.Slug == slug {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockPlanRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.MembershipPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.MembershipPlan
	for _, p := range r.data {
		if p.IsActive {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sort < out[j].Sort })
	return out, nil
}

// ---- Mock CouponRepository ----

type MockCouponRepo struct {
	mu     sync.Mutex
	byCode map[string]*model.Coupon

	FindActiveByCodeFunc     func(ctx context.Context, tx repository.Tx, code string) (*model.Coupon, error)
	IncrementRedemptionsFunc func(ctx context.Context, tx repository.Tx, code string) error
}

var _ repository.CouponRepository = (*MockCouponRepo)(nil)

func NewMockCouponRepo() *MockCouponRepo {
	return &MockCouponRepo{byCode: map[string]*model.Coupon{}}
}

func (r *MockCouponRepo) Save(ctx context.Context, tx repository.Tx, c *model.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.byCode[c.Code] = &cp
	return nil
}

func (r *MockCouponRepo) FindActiveByCode(ctx context.Context, tx repository.Tx, code string) (*model.Coupon, error) {
	if r.FindActiveByCodeFunc != nil {
		return r.FindActiveByCodeFunc(ctx, tx, code)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byCode[code]
	if !ok || !c.IsActive {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *MockCouponRepo) IncrementRedemptions(ctx context.Context, tx repository.Tx, code string) error {
	if r.IncrementRedemptionsFunc != nil {
		return r.IncrementRedemptionsFunc(ctx, tx, code)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byCode[code]
	if !ok {
		return domain.ErrNotFound
	}
	c.TotalRedemptions++
	return nil
}

func (r *MockCouponRepo) Redemptions(code string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byCode[code]; ok {
		return c.TotalRedemptions
	}
	return 0
}

// ---- Mock PurchaseRepository ----

type MockPurchaseRepo struct {
	mu   sync.Mutex
	data map[string]*model.MembershipPurchase

	CreateFunc            func(ctx context.Context, tx repository.Tx, p *model.MembershipPurchase) error
	MarkPaidIfUnpaidFunc  func(ctx context.Context, tx repository.Tx, id string, upd repository.PaidUpdate) (bool, error)
	CountPaidFunc         func(ctx context.Context, tx repository.Tx, userID, couponCode string) (int64, error)
	FindByProviderRefFunc func(ctx context.Context, tx repository.Tx, provider model.Provider, ref string) (*model.MembershipPurchase, error)
}

var _ repository.PurchaseRepository = (*MockPurchaseRepo)(nil)

func NewMockPurchaseRepo() *MockPurchaseRepo {
	return &MockPurchaseRepo{data: map[string]*model.MembershipPurchase{}}
}

func (r *MockPurchaseRepo) Seed(p *model.MembershipPurchase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.data[p.ID] = &cp
}

func (r *MockPurchaseRepo) Get(id string) *model.MembershipPurchase {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (r *MockPurchaseRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

func (r *MockPurchaseRepo) Create(ctx context.Context, tx repository.Tx, p *model.MembershipPurchase) error {
	if r.CreateFunc != nil {
		return r.CreateFunc(ctx, tx, p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[p.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *p
	r.data[p.ID] = &cp
	return nil
}

func (r *MockPurchaseRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.MembershipPurchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MockPurchaseRepo) FindByProviderRef(ctx context.Context, tx repository.Tx, provider model.Provider, ref string) (*model.MembershipPurchase, error) {
	if r.FindByProviderRefFunc != nil {
		return r.FindByProviderRefFunc(ctx, tx, provider, ref)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *model.MembershipPurchase
	for _, p := range r.data {
		if ref == "" || p.Provider != provider || p.ProviderRef != ref {
			continue
		}
		if found == nil || p.CreatedAt.After(found.CreatedAt) {
			found = p
		}
	}
	if found == nil {
		return nil, domain.ErrNotFound
	}
	cp := *found
	return &cp, nil
}

func (r *MockPurchaseRepo) SetProviderRef(ctx context.Context, tx repository.Tx, id string, provider model.Provider, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Provider = provider
	p.ProviderRef = ref
	return nil
}

func (r *MockPurchaseRepo) MarkPaidIfUnpaid(ctx context.Context, tx repository.Tx, id string, upd repository.PaidUpdate) (bool, error) {
	if r.MarkPaidIfUnpaidFunc != nil {
		return r.MarkPaidIfUnpaidFunc(ctx, tx, id, upd)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if p.Paid {
		return false, nil
	}
	at := upd.PaidAt
	p.Paid = true
	p.PaidAt = &at
	p.Provider = upd.Provider
	if upd.ProviderRef != "" {
		p.ProviderRef = upd.ProviderRef
	}
	if upd.Currency != "" {
		p.Currency = upd.Currency
	}
	if upd.FinalAmountMinor != nil {
		p.FinalAmountMinor = *upd.FinalAmountMinor
	}
	return true, nil
}

func (r *MockPurchaseRepo) CountPaidByUserAndCoupon(ctx context.Context, tx repository.Tx, userID, couponCode string) (int64, error) {
	if r.CountPaidFunc != nil {
		return r.CountPaidFunc(ctx, tx, userID, couponCode)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range r.data {
		if p.Paid && p.UserID == userID && p.CouponCode == couponCode && p.CouponApplied {
			n++
		}
	}
	return n, nil
}

func (r *MockPurchaseRepo) ListUnpaidWithRefOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.MembershipPurchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.MembershipPurchase
	for _, p := range r.data {
		if !p.Paid && p.ProviderRef != "" && p.CreatedAt.Before(olderThan) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MockPurchaseRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.MembershipPurchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.MembershipPurchase
	for _, p := range r.data {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- Mock UserRepository ----

type MockUserRepo struct {
	mu   sync.Mutex
	byID map[string]*model.User

	FindByIDFunc     func(ctx context.Context, tx repository.Tx, id string) (*model.User, error)
	ExpireLapsedFunc func(ctx context.Context, tx repository.Tx, now time.Time) (int, error)
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo() *MockUserRepo {
	return &MockUserRepo{byID: map[string]*model.User{}}
}

func (r *MockUserRepo) Get(id string) *model.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (r *MockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.byID[u.ID] = &cp
	return nil
}

func (r *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	if r.FindByIDFunc != nil {
		return r.FindByIDFunc(ctx, tx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *MockUserRepo) FindByReferralCode(ctx context.Context, tx repository.Tx, code string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.ReferralCode != "" && u.ReferralCode == code {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockUserRepo) SetReferralIfUnset(ctx context.Context, tx repository.Tx, userID string, ref model.Referral) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if u.ReferredBy != "" {
		return false, nil
	}
	at := ref.At
	u.ReferredBy = ref.Code
	u.ReferredByUser = ref.UserID
	u.ReferredAt = &at
	return true, nil
}

func (r *MockUserRepo) UpdateMembership(ctx context.Context, tx repository.Tx, userID string, m model.MembershipSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.Membership = m
	return nil
}

func (r *MockUserRepo) ExpireLapsed(ctx context.Context, tx repository.Tx, now time.Time) (int, error) {
	if r.ExpireLapsedFunc != nil {
		return r.ExpireLapsedFunc(ctx, tx, now)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, u := range r.byID {
		m := &u.Membership
		if m.Status == model.MembershipActive && m.CurrentPeriodEnd != nil && !m.CurrentPeriodEnd.After(now) {
			m.Status = model.MembershipInactive
			n++
		}
	}
	return n, nil
}

// ---- Mock MembershipHistoryRepository ----

type MockHistoryRepo struct {
	mu      sync.Mutex
	entries []*model.MembershipHistoryEntry
}

var _ repository.MembershipHistoryRepository = (*MockHistoryRepo)(nil)

func NewMockHistoryRepo() *MockHistoryRepo { return &MockHistoryRepo{} }

func (r *MockHistoryRepo) Append(ctx context.Context, tx repository.Tx, e *model.MembershipHistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *MockHistoryRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.MembershipHistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.MembershipHistoryEntry
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].UserID == userID {
			out = append(out, r.entries[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MockHistoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway ----

type MockGateway struct {
	mu       sync.Mutex
	provider model.Provider
	Requests []adapter.CheckoutRequest

	CreateSessionFunc func(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutSession, error)
	ParseWebhookFunc  func(payload []byte, headers http.Header) (*model.PaymentEvent, error)
	FetchStatusFunc   func(ctx context.Context, reference string) (*adapter.RemoteStatus, error)
}

var _ adapter.PaymentGateway = (*MockGateway)(nil)

func NewMockGateway(p model.Provider) *MockGateway { return &MockGateway{provider: p} }

func (g *MockGateway) Provider() model.Provider { return g.provider }

func (g *MockGateway) CreateSession(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutSession, error) {
	g.mu.Lock()
	g.Requests = append(g.Requests, req)
	g.mu.Unlock()
	if g.CreateSessionFunc != nil {
		return g.CreateSessionFunc(ctx, req)
	}
	return &adapter.CheckoutSession{
		Provider:    g.provider,
		Reference:   string(g.provider) + "_ref_" + req.Purchase.ID,
		AmountMinor: req.Purchase.FinalAmountMinor,
		Currency:    req.Purchase.Currency,
	}, nil
}

func (g *MockGateway) ParseWebhook(payload []byte, headers http.Header) (*model.PaymentEvent, error) {
	if g.ParseWebhookFunc != nil {
		return g.ParseWebhookFunc(payload, headers)
	}
	return nil, domain.ErrSignatureInvalid
}

func (g *MockGateway) FetchStatus(ctx context.Context, reference string) (*adapter.RemoteStatus, error) {
	if g.FetchStatusFunc != nil {
		return g.FetchStatusFunc(ctx, reference)
	}
	return &adapter.RemoteStatus{Reference: reference}, nil
}

func (g *MockGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Requests)
}

// ---- Mock EventDeduper ----

type MockDeduper struct {
	mu       sync.Mutex
	seen     map[string]bool
	Released []string

	MarkSeenFunc func(ctx context.Context, provider, eventID string, ttl time.Duration) (bool, error)
}

var _ adapter.EventDeduper = (*MockDeduper)(nil)

func NewMockDeduper() *MockDeduper { return &MockDeduper{seen: map[string]bool{}} }

func (d *MockDeduper) MarkSeen(ctx context.Context, provider, eventID string, ttl time.Duration) (bool, error) {
	if d.MarkSeenFunc != nil {
		return d.MarkSeenFunc(ctx, provider, eventID, ttl)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	key := provider + ":" + eventID
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func (d *MockDeduper) Release(ctx context.Context, provider, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := provider + ":" + eventID
	delete(d.seen, key)
	d.Released = append(d.Released, key)
	return nil
}

// ---- Mock AdminNotifier ----

type MockNotifier struct {
	mu   sync.Mutex
	Sent []string
}

var _ adapter.AdminNotifier = (*MockNotifier)(nil)

func (n *MockNotifier) NotifyAdmins(ctx context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, text)
	return nil
}

func (n *MockNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Sent)
}

// ---- Mock RateLimiter ----

type MockLimiter struct {
	AllowFunc func(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

var _ adapter.RateLimiter = (*MockLimiter)(nil)

func (l *MockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if l.AllowFunc != nil {
		return l.AllowFunc(ctx, key, limit, window)
	}
	return true, nil
}

// =============================
// Fixtures
// =============================

func newTestPlan(t *testing.T, slug string, days int) *model.MembershipPlan {
	t.Helper()
	p, err := model.NewMembershipPlan("", slug, "Pro", days, []model.PriceEntry{
		{Region: model.RegionIN, Currency: "INR", AmountMinor: 49900},
		{Region: model.RegionEU, Currency: "EUR", AmountMinor: 999},
		{Region: model.RegionINTL, Currency: "USD", AmountMinor: 1199},
	})
	if err != nil {
		t.Fatalf("NewMembershipPlan: %v", err)
	}
	return p
}

func newTestUser(t *testing.T, email, username string) *model.User {
	t.Helper()
	u, err := model.NewUser("", email, username)
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	return u
}

func newTestCoupon(t *testing.T, code string, typ model.CouponType, value string) *model.Coupon {
	t.Helper()
	c, err := model.NewCoupon(code, typ, decimal.RequireFromString(value))
	if err != nil {
		t.Fatalf("NewCoupon: %v", err)
	}
	return c
}
