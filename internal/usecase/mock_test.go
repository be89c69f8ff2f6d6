//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"edu-checkout/internal/domain"
	"edu-checkout/internal/domain/model"
	"edu-checkout/internal/domain/ports/adapter"
	"edu-checkout/internal/domain/ports/repository"
	"edu-checkout/internal/infra/worker"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// =============================
// Repositories
// =============================

// ---- MockPaymentRepo: in-memory with real compare-and-swap semantics ----

type MockPaymentRepo struct {
	mu   sync.Mutex
	data map[string]*model.Payment

	SaveFunc             func(ctx context.Context, tx repository.Tx, p *model.Payment) error
	TransitionStatusFunc func(ctx context.Context, tx repository.Tx, id string, from, to model.PaymentStatus, change repository.StatusChange) (bool, error)
	AttachGatewayFunc    func(ctx context.Context, tx repository.Tx, id, gatewayPaymentID, redirectURL string) error
	CountCouponUsesFunc  func(ctx context.Context, tx repository.Tx, couponID, userID string) (int, error)
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{data: map[string]*model.Payment{}}
}

func clonePayment(p *model.Payment) *model.Payment {
	cp := *p
	return &cp
}

func (r *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.data {
		if existing.OrderID == p.OrderID {
			return domain.ErrAlreadyExists
		}
	}
	r.data[p.ID] = clonePayment(p)
	return nil
}

func (r *MockPaymentRepo) find(match func(p *model.Payment) bool) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.data {
		if match(p) {
			return clonePayment(p), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	return r.find(func(p *model.Payment) bool { return p.ID == id })
}

func (r *MockPaymentRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.Payment, error) {
	return r.find(func(p *model.Payment) bool { return p.OrderID == orderID })
}

func (r *MockPaymentRepo) FindByGatewayPaymentID(ctx context.Context, tx repository.Tx, gid string) (*model.Payment, error) {
	return r.find(func(p *model.Payment) bool { return p.GatewayID() == gid })
}

func (r *MockPaymentRepo) FindByTrxID(ctx context.Context, tx repository.Tx, trxID string) (*model.Payment, error) {
	return r.find(func(p *model.Payment) bool { return p.GatewayTrxID != nil && *p.GatewayTrxID == trxID })
}

func (r *MockPaymentRepo) AttachGateway(ctx context.Context, tx repository.Tx, id, gid, redirectURL string) error {
	if r.AttachGatewayFunc != nil {
		return r.AttachGatewayFunc(ctx, tx, id, gid, redirectURL)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	return p.AssignGateway(gid, redirectURL)
}

func (r *MockPaymentRepo) TransitionStatus(ctx context.Context, tx repository.Tx, id string, from, to model.PaymentStatus, change repository.StatusChange) (bool, error) {
	if r.TransitionStatusFunc != nil {
		return r.TransitionStatusFunc(ctx, tx, id, from, to, change)
	}
	if !model.CanTransition(from, to) {
		return false, domain.ErrInvalidTransition
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok || p.Status != from {
		return false, nil
	}
	at := time.Now()
	if change.PaidAt != nil {
		at = *change.PaidAt
	}
	if err := p.Transition(to, at); err != nil {
		return false, err
	}
	if change.TrxID != nil {
		trx := *change.TrxID
		p.GatewayTrxID = &trx
	}
	if change.FailureReason != nil {
		reason := *change.FailureReason
		p.FailureReason = &reason
	}
	p.Verified = p.Verified || change.Verified
	return true, nil
}

func (r *MockPaymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Payment
	for _, p := range r.data {
		if p.Status == model.PaymentStatusPending && p.CreatedAt.Before(olderThan) && len(out) < limit {
			out = append(out, clonePayment(p))
		}
	}
	return out, nil
}

func (r *MockPaymentRepo) CountCouponUses(ctx context.Context, tx repository.Tx, couponID, userID string) (int, error) {
	if r.CountCouponUsesFunc != nil {
		return r.CountCouponUsesFunc(ctx, tx, couponID, userID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.data {
		if p.UserID == userID && p.CouponID != nil && *p.CouponID == couponID &&
			(p.Status == model.PaymentStatusSuccessful || p.Status == model.PaymentStatusRefunded) {
			n++
		}
	}
	return n, nil
}

// Put stores p as is, bypassing Save's checks.
func (r *MockPaymentRepo) Put(p *model.Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[p.ID] = clonePayment(p)
}

func (r *MockPaymentRepo) All() []*model.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Payment, 0, len(r.data))
	for _, p := range r.data {
		out = append(out, clonePayment(p))
	}
	return out
}

// ---- MockUserRepo ----

type MockUserRepo struct {
	mu   sync.Mutex
	byID map[string]*model.User

	FindByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.User, error)
}

func NewMockUserRepo(users ...*model.User) *MockUserRepo {
	r := &MockUserRepo{byID: map[string]*model.User{}}
	for _, u := range users {
		r.byID[u.ID] = u
	}
	return r
}

func (r *MockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[u.ID] = u
	return nil
}

func (r *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	if r.FindByIDFunc != nil {
		return r.FindByIDFunc(ctx, tx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

// ---- MockCatalogRepo ----

type MockCatalogRepo struct {
	mu    sync.Mutex
	items map[model.PurchaseTarget]*model.CatalogItem
}

func NewMockCatalogRepo(items ...*model.CatalogItem) *MockCatalogRepo {
	r := &MockCatalogRepo{items: map[model.PurchaseTarget]*model.CatalogItem{}}
	for _, it := range items {
		r.items[it.Target()] = it
	}
	return r
}

func (r *MockCatalogRepo) Save(ctx context.Context, tx repository.Tx, item *model.CatalogItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.Target()] = item
	return nil
}

func (r *MockCatalogRepo) FindByTarget(ctx context.Context, tx repository.Tx, target model.PurchaseTarget) (*model.CatalogItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if it, ok := r.items[target]; ok {
		return it, nil
	}
	return nil, domain.ErrNotFound
}

// ---- MockCouponRepo ----

type MockCouponRepo struct {
	mu     sync.Mutex
	byCode map[string]*model.Coupon

	IncrementUsageFunc func(ctx context.Context, tx repository.Tx, id string) error
}

func NewMockCouponRepo(coupons ...*model.Coupon) *MockCouponRepo {
	r := &MockCouponRepo{byCode: map[string]*model.Coupon{}}
	for _, c := range coupons {
		r.byCode[strings.ToLower(c.Code)] = c
	}
	return r
}

func (r *MockCouponRepo) Save(ctx context.Context, tx repository.Tx, c *model.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byCode[strings.ToLower(c.Code)] = c
	return nil
}

func (r *MockCouponRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byCode[strings.ToLower(code)]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockCouponRepo) IncrementUsage(ctx context.Context, tx repository.Tx, id string) error {
	if r.IncrementUsageFunc != nil {
		return r.IncrementUsageFunc(ctx, tx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.byCode {
		if c.ID == id {
			c.UsedCount++
			return nil
		}
	}
	return domain.ErrNotFound
}

// ---- MockEnrollmentRepo: unique per (user, target) ----

type MockEnrollmentRepo struct {
	mu   sync.Mutex
	rows map[string]*model.Enrollment

	CreateFunc func(ctx context.Context, tx repository.Tx, e *model.Enrollment) (bool, error)
}

func NewMockEnrollmentRepo() *MockEnrollmentRepo {
	return &MockEnrollmentRepo{rows: map[string]*model.Enrollment{}}
}

func enrollmentKey(userID string, t model.PurchaseTarget) string { return userID + "|" + t.String() }

func (r *MockEnrollmentRepo) Create(ctx context.Context, tx repository.Tx, e *model.Enrollment) (bool, error) {
	if r.CreateFunc != nil {
		return r.CreateFunc(ctx, tx, e)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := enrollmentKey(e.UserID, e.Target)
	if _, ok := r.rows[k]; ok {
		return false, nil
	}
	r.rows[k] = e
	return true, nil
}

func (r *MockEnrollmentRepo) FindByUserAndTarget(ctx context.Context, tx repository.Tx, userID string, t model.PurchaseTarget) (*model.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.rows[enrollmentKey(userID, t)]; ok {
		return e, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockEnrollmentRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// ---- MockNotificationLog ----

type MockNotificationLog struct {
	mu   sync.Mutex
	sent map[string]bool

	ExistsFunc func(ctx context.Context, tx repository.Tx, paymentID string, kind model.NotificationKind) (bool, error)
}

func NewMockNotificationLog() *MockNotificationLog {
	return &MockNotificationLog{sent: map[string]bool{}}
}

func (r *MockNotificationLog) Save(ctx context.Context, tx repository.Tx, paymentID, userID string, kind model.NotificationKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[paymentID+"|"+string(kind)] = true
	return nil
}

func (r *MockNotificationLog) Exists(ctx context.Context, tx repository.Tx, paymentID string, kind model.NotificationKind) (bool, error) {
	if r.ExistsFunc != nil {
		return r.ExistsFunc(ctx, tx, paymentID, kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[paymentID+"|"+string(kind)], nil
}

// ---- MockTxManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, nil)
}

// =============================
// Adapters
// =============================

// ---- MockPaymentGateway ----

type MockPaymentGateway struct {
	grants   int32
	creates  int32
	executes int32
	queries  int32

	GrantTokenFunc     func(ctx context.Context) (*model.GatewayToken, error)
	RefreshTokenFunc   func(ctx context.Context, refreshToken string) (*model.GatewayToken, error)
	CreatePaymentFunc  func(ctx context.Context, token string, req adapter.CreatePaymentRequest) (adapter.CreatePaymentResult, error)
	ExecutePaymentFunc func(ctx context.Context, token, paymentID string) (adapter.TransactionResult, error)
	QueryPaymentFunc   func(ctx context.Context, token, paymentID string) (adapter.TransactionResult, error)
	RefundPaymentFunc  func(ctx context.Context, token string, req adapter.RefundRequest) (adapter.RefundResult, error)
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func (g *MockPaymentGateway) Name() string { return "mock" }

func (g *MockPaymentGateway) GrantToken(ctx context.Context) (*model.GatewayToken, error) {
	n := atomic.AddInt32(&g.grants, 1)
	if g.GrantTokenFunc != nil {
		return g.GrantTokenFunc(ctx)
	}
	now := time.Now()
	return &model.GatewayToken{IDToken: fmt.Sprintf("tok-%d", n), ExpiresAt: now.Add(time.Hour), IssuedAt: now}, nil
}

func (g *MockPaymentGateway) RefreshToken(ctx context.Context, refreshToken string) (*model.GatewayToken, error) {
	if g.RefreshTokenFunc != nil {
		return g.RefreshTokenFunc(ctx, refreshToken)
	}
	return g.GrantToken(ctx)
}

func (g *MockPaymentGateway) CreatePayment(ctx context.Context, token string, req adapter.CreatePaymentRequest) (adapter.CreatePaymentResult, error) {
	n := atomic.AddInt32(&g.creates, 1)
	if g.CreatePaymentFunc != nil {
		return g.CreatePaymentFunc(ctx, token, req)
	}
	id := fmt.Sprintf("P%d", n)
	return adapter.CreatePaymentResult{PaymentID: id, RedirectURL: "https://pay.example/" + id, Status: adapter.TransactionInitiated}, nil
}

func (g *MockPaymentGateway) ExecutePayment(ctx context.Context, token, paymentID string) (adapter.TransactionResult, error) {
	atomic.AddInt32(&g.executes, 1)
	if g.ExecutePaymentFunc != nil {
		return g.ExecutePaymentFunc(ctx, token, paymentID)
	}
	return completed(paymentID, decimal.Zero), nil
}

func (g *MockPaymentGateway) QueryPayment(ctx context.Context, token, paymentID string) (adapter.TransactionResult, error) {
	atomic.AddInt32(&g.queries, 1)
	if g.QueryPaymentFunc != nil {
		return g.QueryPaymentFunc(ctx, token, paymentID)
	}
	return adapter.TransactionResult{PaymentID: paymentID, TransactionStatus: adapter.TransactionInitiated}, nil
}

func (g *MockPaymentGateway) RefundPayment(ctx context.Context, token string, req adapter.RefundRequest) (adapter.RefundResult, error) {
	if g.RefundPaymentFunc != nil {
		return g.RefundPaymentFunc(ctx, token, req)
	}
	return adapter.RefundResult{RefundTrxID: "RFD1", TransactionStatus: adapter.TransactionCompleted, Amount: req.Amount}, nil
}

func (g *MockPaymentGateway) Grants() int   { return int(atomic.LoadInt32(&g.grants)) }
func (g *MockPaymentGateway) Creates() int  { return int(atomic.LoadInt32(&g.creates)) }
func (g *MockPaymentGateway) Executes() int { return int(atomic.LoadInt32(&g.executes)) }
func (g *MockPaymentGateway) Queries() int  { return int(atomic.LoadInt32(&g.queries)) }

func completed(paymentID string, amount decimal.Decimal) adapter.TransactionResult {
	return adapter.TransactionResult{
		PaymentID:         paymentID,
		TrxID:             "TRX-" + paymentID,
		TransactionStatus: adapter.TransactionCompleted,
		Amount:            amount,
		Currency:          "BDT",
		CompletedAt:       time.Now(),
	}
}

// ---- MockTokenProvider ----

type MockTokenProvider struct {
	invalidated int32

	TokenFunc func(ctx context.Context) (*model.GatewayToken, error)
}

func (m *MockTokenProvider) Token(ctx context.Context) (*model.GatewayToken, error) {
	if m.TokenFunc != nil {
		return m.TokenFunc(ctx)
	}
	return &model.GatewayToken{IDToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (m *MockTokenProvider) Invalidate(ctx context.Context) { atomic.AddInt32(&m.invalidated, 1) }

func (m *MockTokenProvider) Invalidated() int { return int(atomic.LoadInt32(&m.invalidated)) }

// ---- MockTokenStore ----

type MockTokenStore struct {
	mu  sync.Mutex
	tok *model.GatewayToken
}

func (s *MockTokenStore) Load(ctx context.Context) (*model.GatewayToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tok, nil
}

func (s *MockTokenStore) Store(ctx context.Context, tok *model.GatewayToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = tok
	return nil
}

func (s *MockTokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = nil
	return nil
}

// ---- MockMailer ----

type MockMailer struct {
	mu   sync.Mutex
	Sent []adapter.Message

	SendFunc func(ctx context.Context, msg adapter.Message) error
}

func (m *MockMailer) Send(ctx context.Context, msg adapter.Message) error {
	if m.SendFunc != nil {
		if err := m.SendFunc(ctx, msg); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, msg)
	return nil
}

func (m *MockMailer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// ---- Mock Translator: echoes the key and its arguments ----

type MockTranslator struct{}

func (MockTranslator) T(key string, args ...interface{}) string {
	if len(args) == 0 {
		return key
	}
	return key + ":" + fmt.Sprint(args...)
}

// ---- inlineDispatcher runs tasks synchronously and records their names ----

type inlineDispatcher struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (d *inlineDispatcher) Submit(name string, task worker.Task) error {
	if d.err != nil {
		return d.err
	}
	d.mu.Lock()
	d.names = append(d.names, name)
	d.mu.Unlock()
	_ = task(context.Background())
	return nil
}

// ---- MockRateLimiter ----

type MockRateLimiter struct {
	AllowFunc func(ctx context.Context, userID string, limit int, window time.Duration) (bool, error)
}

func (m *MockRateLimiter) AllowPaymentInitiation(ctx context.Context, userID string, limit int, window time.Duration) (bool, error) {
	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, userID, limit, window)
	}
	return true, nil
}
