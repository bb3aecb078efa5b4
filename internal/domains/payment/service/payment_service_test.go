package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-backend/internal/domains/payment/model"
	"storefront-backend/pkg/lock"
)

// =====================================================
// PROCESS PAYMENT
// =====================================================

func TestProcessPaymentPersistsReference(t *testing.T) {
	order := newOrder(model.PaymentStatusPending)
	f := newFixture(order)

	resp, err := f.svc.ProcessPayment(context.Background(), order.ID, model.InitiatePaymentRequest{})

	require.NoError(t, err)
	assert.Equal(t, model.GatewayTypeRedirect, resp.GatewayType)
	assert.Equal(t, "https://pay.example/"+order.OrderNumber, resp.PaymentData["redirect_url"])

	stored := f.orders.stored(order.ID)
	require.NotNil(t, stored.GatewayReference)
	assert.Equal(t, "sess-"+order.OrderNumber, stored.GatewayReference.SessionID)
	assert.Equal(t, "fakepay", stored.GatewayReference.Provider)
	assert.Equal(t, 1, stored.PaymentVersion)
}

func TestProcessPaymentErrors(t *testing.T) {
	t.Run("OrderNotFound", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.ProcessPayment(context.Background(), uuid.New(), model.InitiatePaymentRequest{})
		assert.Equal(t, model.KindNotFound, model.KindOf(err))
	})

	t.Run("AlreadyPaid", func(t *testing.T) {
		order := newOrder(model.PaymentStatusPaid)
		f := newFixture(order)
		_, err := f.svc.ProcessPayment(context.Background(), order.ID, model.InitiatePaymentRequest{})
		assert.True(t, errors.Is(err, model.ErrOrderAlreadyPaid))
		assert.Equal(t, 0, f.orders.updates)
	})

	t.Run("NotConfigured", func(t *testing.T) {
		order := newOrder(model.PaymentStatusPending)
		f := newFixture(order)
		f.gw.configured = false
		_, err := f.svc.ProcessPayment(context.Background(), order.ID, model.InitiatePaymentRequest{})
		assert.Equal(t, model.KindConfiguration, model.KindOf(err))
	})

	t.Run("ProviderFailureIsRetryable", func(t *testing.T) {
		order := newOrder(model.PaymentStatusPending)
		f := newFixture(order)
		f.gw.initErr = model.NewProviderError("fakepay", "create", errors.New("timeout"))
		_, err := f.svc.ProcessPayment(context.Background(), order.ID, model.InitiatePaymentRequest{})
		assert.True(t, model.IsRetryable(err))
		assert.Nil(t, f.orders.stored(order.ID).GatewayReference)
	})

	t.Run("TooManyDataFields", func(t *testing.T) {
		f := newFixture()
		data := map[string]string{}
		for i := 0; i < 21; i++ {
			data[uuid.NewString()] = "x"
		}
		_, err := f.svc.ProcessPayment(context.Background(), uuid.New(), model.InitiatePaymentRequest{Data: data})
		assert.Equal(t, model.KindValidation, model.KindOf(err))
	})

	t.Run("LockedOrder", func(t *testing.T) {
		order := newOrder(model.PaymentStatusPending)
		f := newFixture(order)
		release, err := f.svc.locker.Acquire(context.Background(), orderLockKey(order.ID))
		require.NoError(t, err)
		defer release(context.Background())

		_, err = f.svc.ProcessPayment(context.Background(), order.ID, model.InitiatePaymentRequest{})
		assert.True(t, errors.Is(err, model.ErrOrderLocked))
		assert.True(t, model.IsRetryable(err))
	})
}

// =====================================================
// VERIFY PAYMENT
// =====================================================

func TestVerifyPaymentSettlesOrder(t *testing.T) {
	order := newOrder(model.PaymentStatusPending)
	order.GatewayReference = &model.GatewayReference{Provider: "fakepay", SessionID: "s1"}
	f := newFixture(order)
	f.gw.verify = &model.VerifyResult{Paid: true, TransactionID: "txn_1", PaymentIntentID: "pi_1"}

	resp, err := f.svc.VerifyPayment(context.Background(), order.ID, model.VerifyPaymentRequest{})

	require.NoError(t, err)
	assert.True(t, resp.Paid)
	assert.Equal(t, model.PaymentStatusPaid, resp.PaymentStatus)

	stored := f.orders.stored(order.ID)
	assert.Equal(t, model.PaymentStatusPaid, stored.PaymentStatus)
	assert.Equal(t, "txn_1", stored.GatewayReference.TransactionID)
	assert.Equal(t, "pi_1", stored.GatewayReference.PaymentIntentID)
	assert.NotNil(t, stored.GatewayReference.SettledAt)

	// A second verify answers from the order and does not poll again.
	again, err := f.svc.VerifyPayment(context.Background(), order.ID, model.VerifyPaymentRequest{})
	require.NoError(t, err)
	assert.True(t, again.Paid)
	assert.Equal(t, "txn_1", again.TransactionID)
	assert.Equal(t, 1, f.gw.verifyHits)
	assert.Equal(t, 1, f.orders.updates)
}

func TestVerifyPaymentNotPaidLeavesOrder(t *testing.T) {
	order := newOrder(model.PaymentStatusPending)
	f := newFixture(order)

	resp, err := f.svc.VerifyPayment(context.Background(), order.ID, model.VerifyPaymentRequest{})

	require.NoError(t, err)
	assert.False(t, resp.Paid)
	assert.Equal(t, model.PaymentStatusPending, resp.PaymentStatus)
	assert.Equal(t, 0, f.orders.updates)
}

// =====================================================
// REFUND
// =====================================================

func paidOrder() *model.Order {
	order := newOrder(model.PaymentStatusPaid)
	settled := time.Now()
	order.GatewayReference = &model.GatewayReference{
		Provider:      "fakepay",
		TransactionID: "txn_1",
		SettledAt:     &settled,
	}
	return order
}

func TestRefundPartialThenFull(t *testing.T) {
	order := paidOrder()
	f := newFixture(order)
	forty := decimal.NewFromInt(40)

	first, err := f.svc.Refund(context.Background(), order.ID, model.RefundRequest{Amount: &forty, Reason: "damaged"})
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Equal(t, model.PaymentStatusPartiallyRefunded, first.PaymentStatus)

	rest, err := f.svc.Refund(context.Background(), order.ID, model.RefundRequest{})
	require.NoError(t, err)
	assert.True(t, rest.Success)
	assert.True(t, rest.Amount.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, model.PaymentStatusRefunded, rest.PaymentStatus)

	stored := f.orders.stored(order.ID)
	require.Len(t, stored.GatewayReference.Refunds, 2)
	assert.Equal(t, "damaged", stored.GatewayReference.Refunds[0].Reason)
	assert.True(t, stored.GatewayReference.RefundedTotal().Equal(decimal.NewFromInt(100)))
}

func TestRefundFailuresAreResults(t *testing.T) {
	t.Run("ExceedsRefundable", func(t *testing.T) {
		order := paidOrder()
		f := newFixture(order)
		tooMuch := decimal.NewFromInt(101)

		resp, err := f.svc.Refund(context.Background(), order.ID, model.RefundRequest{Amount: &tooMuch})
		require.NoError(t, err)
		assert.False(t, resp.Success)
		assert.Equal(t, model.KindState, resp.Kind)
		assert.Equal(t, 0, f.orders.updates)
	})

	t.Run("ProviderDeclined", func(t *testing.T) {
		order := paidOrder()
		f := newFixture(order)
		f.gw.refund = &model.RefundResult{Success: false, Kind: model.KindProvider, Message: "declined"}

		resp, err := f.svc.Refund(context.Background(), order.ID, model.RefundRequest{})
		require.NoError(t, err)
		assert.False(t, resp.Success)
		assert.Equal(t, model.KindProvider, resp.Kind)
		assert.Equal(t, model.PaymentStatusPaid, f.orders.stored(order.ID).PaymentStatus)
	})

	t.Run("PendingOrder", func(t *testing.T) {
		order := newOrder(model.PaymentStatusPending)
		f := newFixture(order)

		resp, err := f.svc.Refund(context.Background(), order.ID, model.RefundRequest{})
		require.NoError(t, err)
		assert.False(t, resp.Success)
	})

	t.Run("NegativeAmountIsValidationError", func(t *testing.T) {
		f := newFixture()
		negative := decimal.NewFromInt(-1)
		_, err := f.svc.Refund(context.Background(), uuid.New(), model.RefundRequest{Amount: &negative})
		assert.Equal(t, model.KindValidation, model.KindOf(err))
	})
}

// =====================================================
// CONFIG FIELDS / RECONCILE
// =====================================================

func TestConfigFields(t *testing.T) {
	f := newFixture()

	resp, err := f.svc.ConfigFields(context.Background(), "fakepay")
	require.NoError(t, err)
	assert.True(t, resp.Configured)
	assert.Equal(t, "mode", resp.Fields[0].Key)

	_, err = f.svc.ConfigFields(context.Background(), "unknown")
	assert.Equal(t, model.KindUnsupportedMethod, model.KindOf(err))
}

func TestReconcilePendingSettlesStaleSessions(t *testing.T) {
	stale := newOrder(model.PaymentStatusPending)
	stale.GatewayReference = &model.GatewayReference{Provider: "fakepay", SessionID: "old", InitiatedAt: time.Now().Add(-time.Hour)}
	fresh := newOrder(model.PaymentStatusPending)
	fresh.GatewayReference = &model.GatewayReference{Provider: "fakepay", SessionID: "new", InitiatedAt: time.Now()}
	f := newFixture(stale, fresh)
	f.gw.verify = &model.VerifyResult{Paid: true, TransactionID: "txn_stale"}

	settled, err := f.svc.ReconcilePending(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, settled)
	assert.Equal(t, model.PaymentStatusPaid, f.orders.stored(stale.ID).PaymentStatus)
	assert.Equal(t, model.PaymentStatusPending, f.orders.stored(fresh.ID).PaymentStatus)
}

func TestReconcilePendingSkipsAbandonedSessions(t *testing.T) {
	abandoned := newOrder(model.PaymentStatusPending)
	abandoned.GatewayReference = &model.GatewayReference{Provider: "fakepay", SessionID: "ancient", InitiatedAt: time.Now().Add(-72 * time.Hour)}
	f := newFixture(abandoned)

	settled, err := f.svc.ReconcilePending(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, settled)
	assert.Equal(t, 0, f.gw.verifyHits)
}

func TestReconcilePendingRotatesThroughBacklog(t *testing.T) {
	base := time.Now().Add(-3 * time.Hour)
	var orders []*model.Order
	for i := 0; i < 3; i++ {
		o := newOrder(model.PaymentStatusPending)
		o.GatewayReference = &model.GatewayReference{Provider: "fakepay", SessionID: o.OrderNumber, InitiatedAt: base.Add(time.Duration(i) * time.Minute)}
		orders = append(orders, o)
	}
	f := newFixture(orders...)
	f.svc.cfg.ReconcileBatchSize = 2

	_, err := f.svc.ReconcilePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, f.gw.verifyHits)
	assert.Contains(t, f.orders.reconciled, orders[0].ID)
	assert.Contains(t, f.orders.reconciled, orders[1].ID)
	assert.NotContains(t, f.orders.reconciled, orders[2].ID)

	// The newest session was starved on the first run and goes first now.
	_, err = f.svc.ReconcilePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, f.gw.verifyHits)
	assert.Contains(t, f.orders.reconciled, orders[2].ID)
}

func TestReconcilePendingListError(t *testing.T) {
	f := newFixture()
	f.orders.listErr = errors.New("db down")

	_, err := f.svc.ReconcilePending(context.Background())
	assert.Error(t, err)
}

// Concurrent verifies of one order settle it exactly once.
func TestConcurrentVerifySettlesOnce(t *testing.T) {
	order := newOrder(model.PaymentStatusPending)
	f := newFixture(order)
	f.gw.verify = &model.VerifyResult{Paid: true, TransactionID: "txn_1"}
	f.svc.locker = lock.NewMemoryLocker(lock.Options{TTL: time.Minute, Wait: 5 * time.Second, RetryInterval: time.Millisecond})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.VerifyPayment(context.Background(), order.ID, model.VerifyPaymentRequest{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.orders.updates)
	assert.Equal(t, model.PaymentStatusPaid, f.orders.stored(order.ID).PaymentStatus)
}
