package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-backend/internal/domains/payment/model"
)

// fakeGateway records calls and returns canned results.
type fakeGateway struct {
	code       string
	configured bool
	initErr    error
	sessionID  string

	initiateCalls int
	refundAmount  *decimal.Decimal
}

func (f *fakeGateway) Code() string { return f.code }
func (f *fakeGateway) Supports(methodCode string) bool { return methodCode == f.code }
func (f *fakeGateway) IsConfigured(_ context.Context) bool { return f.configured }
func (f *fakeGateway) ConfigFields() []model.ConfigField { return []model.ConfigField{model.ModeField()} }

func (f *fakeGateway) Initiate(_ context.Context, order *model.Order, _ map[string]string) (*model.GatewayResult, error) {
	f.initiateCalls++
	if f.initErr != nil {
		return nil, f.initErr
	}
	return model.NewRedirectResult("https://pay.example/"+f.sessionID, &model.GatewayReference{
		SessionID:   f.sessionID,
		InitiatedAt: time.Now(),
	}), nil
}

func (f *fakeGateway) Verify(_ context.Context, _ *model.Order, _ map[string]string) *model.VerifyResult {
	return &model.VerifyResult{Paid: true, TransactionID: "txn"}
}

func (f *fakeGateway) HandleCallback(_ context.Context, p *model.CallbackPayload) *model.CallbackResult {
	return &model.CallbackResult{Verified: true, Message: p.Provider}
}

func (f *fakeGateway) Refund(_ context.Context, _ *model.Order, amount *decimal.Decimal, _ string) *model.RefundResult {
	f.refundAmount = amount
	return &model.RefundResult{Success: true, Amount: *amount}
}

func pendingOrder(method string) *model.Order {
	return &model.Order{
		ID:                uuid.New(),
		OrderNumber:       "1",
		Total:             decimal.NewFromInt(100),
		PaymentMethodCode: method,
		PaymentStatus:     model.PaymentStatusPending,
	}
}

func TestRegisterReplacesButKeepsPosition(t *testing.T) {
	first := &fakeGateway{code: "a"}
	replacement := &fakeGateway{code: "a", configured: true}
	r := NewRegistry(first, &fakeGateway{code: "b"})

	r.Register(replacement)

	assert.Equal(t, []string{"a", "b"}, r.Codes())
	g, ok := r.Get("a")
	require.True(t, ok)
	assert.Same(t, replacement, g)
}

func TestProcessPaymentUnsupportedMethod(t *testing.T) {
	r := NewRegistry(&fakeGateway{code: "a", configured: true})

	_, err := r.ProcessPayment(context.Background(), pendingOrder("zzz"), nil)

	assert.Equal(t, model.KindUnsupportedMethod, model.KindOf(err))
}

func TestProcessPaymentNotConfigured(t *testing.T) {
	fake := &fakeGateway{code: "a"}
	r := NewRegistry(fake)

	_, err := r.ProcessPayment(context.Background(), pendingOrder("a"), nil)

	assert.Equal(t, model.KindConfiguration, model.KindOf(err))
	assert.Equal(t, 0, fake.initiateCalls)
}

func TestProcessPaymentAttachesReference(t *testing.T) {
	r := NewRegistry(&fakeGateway{code: "a", configured: true, sessionID: "s-1"})
	order := pendingOrder("a")
	order.PaymentStatus = model.PaymentStatusFailed

	result, err := r.ProcessPayment(context.Background(), order, nil)

	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/s-1", result.RedirectURL())
	require.NotNil(t, order.GatewayReference)
	assert.Equal(t, "s-1", order.GatewayReference.SessionID)
	assert.Equal(t, "a", order.GatewayReference.Provider)
	assert.Equal(t, model.PaymentStatusPending, order.PaymentStatus)
}

func TestProcessPaymentRejectsSettledOrder(t *testing.T) {
	fake := &fakeGateway{code: "a", configured: true}
	r := NewRegistry(fake)
	order := pendingOrder("a")
	order.PaymentStatus = model.PaymentStatusPaid

	_, err := r.ProcessPayment(context.Background(), order, nil)

	assert.True(t, errors.Is(err, model.ErrOrderAlreadyPaid))
	assert.Equal(t, 0, fake.initiateCalls)
}

func TestProcessPaymentPropagatesProviderError(t *testing.T) {
	r := NewRegistry(&fakeGateway{
		code:       "a",
		configured: true,
		initErr:    model.NewProviderError("a", "create", errors.New("timeout")),
	})
	order := pendingOrder("a")

	_, err := r.ProcessPayment(context.Background(), order, nil)

	assert.True(t, model.IsRetryable(err))
	assert.Nil(t, order.GatewayReference)
}

func TestVerifyUnknownMethodIsNotPaid(t *testing.T) {
	r := NewRegistry()

	result := r.VerifyPayment(context.Background(), pendingOrder("zzz"), nil)

	assert.False(t, result.Paid)
}

func TestRefundResolvesAmountCentrally(t *testing.T) {
	fake := &fakeGateway{code: "a", configured: true}
	r := NewRegistry(fake)
	order := pendingOrder("a")
	order.PaymentStatus = model.PaymentStatusPaid
	order.GatewayReference = &model.GatewayReference{
		TransactionID: "txn",
		Refunds:       []model.RefundRecord{{ID: "r1", Amount: decimal.NewFromInt(30)}},
	}

	result, err := r.Refund(context.Background(), order, nil, "")
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, fake.refundAmount)
	assert.True(t, fake.refundAmount.Equal(decimal.NewFromInt(70)))

	fake.refundAmount = nil
	tooMuch := decimal.NewFromInt(71)
	result, err = r.Refund(context.Background(), order, &tooMuch, "")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, model.KindState, result.Kind)
	assert.Nil(t, fake.refundAmount)
}

func TestRefundRequiresSettledOrder(t *testing.T) {
	fake := &fakeGateway{code: "a", configured: true}
	r := NewRegistry(fake)

	result, err := r.Refund(context.Background(), pendingOrder("a"), nil, "")

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Nil(t, fake.refundAmount)
}

func TestRefundUnknownMethodIsError(t *testing.T) {
	_, err := NewRegistry().Refund(context.Background(), pendingOrder("zzz"), nil, "")

	assert.Equal(t, model.KindUnsupportedMethod, model.KindOf(err))
}

func TestHandleCallbackRoutesByProvider(t *testing.T) {
	r := NewRegistry(&fakeGateway{code: "a"})

	result, err := r.HandleCallback(context.Background(), "a", &model.CallbackPayload{})
	require.NoError(t, err)
	assert.Equal(t, "a", result.Message)

	_, err = r.HandleCallback(context.Background(), "b", &model.CallbackPayload{})
	assert.Error(t, err)
}

func TestCallbackURLs(t *testing.T) {
	u := CallbackURLs{BaseURL: "https://shop.example.com/"}
	id := uuid.MustParse("00000000-0000-0000-0000-000000000001")

	assert.Equal(t, "https://shop.example.com/api/v1/payments/callback/stripe?order_id="+id.String(), u.Return("stripe", id))
	assert.Equal(t, u.Return("stripe", id)+"&cancelled=1", u.Cancel("stripe", id))
	assert.Equal(t, "https://shop.example.com/api/v1/webhooks/razorpay", u.Webhook("razorpay"))

	assert.Equal(t, "https://x.test/ok", Override(map[string]string{"return_url": "https://x.test/ok"}, "return_url", "def"))
	assert.Equal(t, "def", Override(map[string]string{"return_url": "javascript:alert(1)"}, "return_url", "def"))
	assert.Equal(t, "def", Override(nil, "return_url", "def"))
}
