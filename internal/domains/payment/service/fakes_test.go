package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront-backend/internal/domains/payment/gateway"
	"storefront-backend/internal/domains/payment/model"
	"storefront-backend/pkg/database"
	"storefront-backend/pkg/lock"
)

// =====================================================
// FAKE ORDER REPOSITORY
// =====================================================

type fakeOrderRepo struct {
	mu         sync.Mutex
	orders     map[uuid.UUID]*model.Order
	updates    int
	listErr    error
	reconciled map[uuid.UUID]time.Time
}

func newFakeOrderRepo(orders ...*model.Order) *fakeOrderRepo {
	r := &fakeOrderRepo{orders: make(map[uuid.UUID]*model.Order), reconciled: make(map[uuid.UUID]time.Time)}
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return r
}

// clone round-trips through JSON so callers never share state with the store.
func clone(o *model.Order) *model.Order {
	data, _ := json.Marshal(o)
	var cp model.Order
	_ = json.Unmarshal(data, &cp)
	return &cp
}

func (r *fakeOrderRepo) stored(id uuid.UUID) *model.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clone(r.orders[id])
}

func (r *fakeOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, model.NewOrderNotFoundError(id.String())
	}
	return clone(o), nil
}

func (r *fakeOrderRepo) GetByNumber(_ context.Context, number string) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.OrderNumber == number {
			return clone(o), nil
		}
	}
	return nil, model.NewOrderNotFoundError(number)
}

func (r *fakeOrderRepo) GetBySessionRef(_ context.Context, provider, ref string) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		g := o.GatewayReference
		if o.PaymentMethodCode == provider && g != nil && g.MatchesSession(ref) {
			return clone(o), nil
		}
	}
	return nil, model.NewOrderNotFoundError(ref)
}

func (r *fakeOrderRepo) ListAwaitingSettlement(_ context.Context, providers []string, initiatedAfter, initiatedBefore time.Time, limit int) ([]*model.Order, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	allowed := map[string]bool{}
	for _, p := range providers {
		allowed[p] = true
	}
	var out []*model.Order
	for _, o := range r.orders {
		if o.PaymentStatus != model.PaymentStatusPending || o.GatewayReference == nil || !allowed[o.PaymentMethodCode] {
			continue
		}
		at := o.GatewayReference.InitiatedAt
		if !at.Before(initiatedAfter) && at.Before(initiatedBefore) {
			out = append(out, clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ri, iok := r.reconciled[out[i].ID]
		rj, jok := r.reconciled[out[j].ID]
		if iok != jok {
			return !iok
		}
		if !ri.Equal(rj) {
			return ri.Before(rj)
		}
		return out[i].GatewayReference.InitiatedAt.Before(out[j].GatewayReference.InitiatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeOrderRepo) MarkReconciled(_ context.Context, ids []uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.reconciled[id] = at
	}
	return nil
}

func (r *fakeOrderRepo) UpdatePayment(_ context.Context, order *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.orders[order.ID]
	if !ok || current.PaymentVersion != order.PaymentVersion {
		return model.NewConcurrentUpdateError(order.ID.String())
	}
	order.PaymentVersion++
	r.orders[order.ID] = clone(order)
	r.updates++
	return nil
}

func (r *fakeOrderRepo) UpdatePaymentWithTx(ctx context.Context, _ *sql.Tx, order *model.Order) error {
	return r.UpdatePayment(ctx, order)
}

// =====================================================
// FAKE WEBHOOK REPOSITORY
// =====================================================

type fakeWebhookRepo struct {
	mu        sync.Mutex
	logs      map[uuid.UUID]*model.PaymentWebhookLog
	byEventID map[string]uuid.UUID
	errors    map[uuid.UUID]string
}

func newFakeWebhookRepo() *fakeWebhookRepo {
	return &fakeWebhookRepo{
		logs:      make(map[uuid.UUID]*model.PaymentWebhookLog),
		byEventID: make(map[string]uuid.UUID),
		errors:    make(map[uuid.UUID]string),
	}
}

func (r *fakeWebhookRepo) Record(_ context.Context, log *model.PaymentWebhookLog) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if log.EventID != "" {
		key := log.Provider + ":" + log.EventID
		if id, seen := r.byEventID[key]; seen {
			existing := r.logs[id]
			existing.Attempts++
			log.ID = id
			return existing.IsProcessed, nil
		}
		r.byEventID[key] = log.ID
	}
	cp := *log
	cp.Attempts = 1
	r.logs[log.ID] = &cp
	return false, nil
}

func (r *fakeWebhookRepo) MarkAsProcessed(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.logs[id]; ok {
		l.IsProcessed = true
	}
	return nil
}

func (r *fakeWebhookRepo) MarkAsProcessedWithTx(ctx context.Context, _ *sql.Tx, id uuid.UUID) error {
	return r.MarkAsProcessed(ctx, id)
}

func (r *fakeWebhookRepo) MarkProcessingError(_ context.Context, id uuid.UUID, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors[id] = msg
	return nil
}

func (r *fakeWebhookRepo) all() []*model.PaymentWebhookLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.PaymentWebhookLog, 0, len(r.logs))
	for _, l := range r.logs {
		out = append(out, l)
	}
	return out
}

// =====================================================
// FAKE TRANSACTOR / GATEWAY
// =====================================================

type fakeTx struct{ calls int }

func (f *fakeTx) WithTransaction(_ context.Context, fn database.TxFunc) error {
	f.calls++
	return fn(nil)
}

type fakeGateway struct {
	code       string
	configured bool

	initErr    error
	verify     *model.VerifyResult
	callback   *model.CallbackResult
	refund     *model.RefundResult
	verifyHits int
}

func (f *fakeGateway) Code() string                        { return f.code }
func (f *fakeGateway) Supports(methodCode string) bool     { return methodCode == f.code }
func (f *fakeGateway) IsConfigured(_ context.Context) bool { return f.configured }
func (f *fakeGateway) ConfigFields() []model.ConfigField   { return []model.ConfigField{model.ModeField()} }

func (f *fakeGateway) Initiate(_ context.Context, order *model.Order, _ map[string]string) (*model.GatewayResult, error) {
	if f.initErr != nil {
		return nil, f.initErr
	}
	return model.NewRedirectResult("https://pay.example/"+order.OrderNumber, &model.GatewayReference{
		SessionID:   "sess-" + order.OrderNumber,
		InitiatedAt: time.Now(),
	}), nil
}

func (f *fakeGateway) Verify(_ context.Context, _ *model.Order, _ map[string]string) *model.VerifyResult {
	f.verifyHits++
	if f.verify == nil {
		return model.NotPaid("pending")
	}
	return f.verify
}

func (f *fakeGateway) HandleCallback(_ context.Context, _ *model.CallbackPayload) *model.CallbackResult {
	cp := *f.callback
	return &cp
}

func (f *fakeGateway) Refund(_ context.Context, _ *model.Order, amount *decimal.Decimal, _ string) *model.RefundResult {
	if f.refund != nil {
		r := *f.refund
		r.Amount = *amount
		return &r
	}
	return &model.RefundResult{Success: true, TransactionID: "rf_" + amount.String(), Amount: *amount, Status: "processed"}
}

// =====================================================
// FIXTURE
// =====================================================

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *paymentService
	orders   *fakeOrderRepo
	webhooks *fakeWebhookRepo
	tx       *fakeTx
	gw       *fakeGateway
}

func newFixture(orders ...*model.Order) *fixture {
	gw := &fakeGateway{code: "fakepay", configured: true}
	f := &fixture{
		orders:   newFakeOrderRepo(orders...),
		webhooks: newFakeWebhookRepo(),
		tx:       &fakeTx{},
		gw:       gw,
	}
	f.svc = NewPaymentService(
		gateway.NewRegistry(gw),
		f.orders,
		f.webhooks,
		f.tx,
		lock.NewMemoryLocker(lock.Options{TTL: time.Minute}),
		Config{ReconcileProviders: []string{"fakepay"}},
	).(*paymentService)
	return f
}

func newOrder(status string) *model.Order {
	return &model.Order{
		ID:                uuid.New(),
		OrderNumber:       "ORD-" + uuid.NewString()[:8],
		Currency:          "USD",
		Total:             decimal.NewFromInt(100),
		PaymentMethodCode: "fakepay",
		PaymentStatus:     status,
	}
}
