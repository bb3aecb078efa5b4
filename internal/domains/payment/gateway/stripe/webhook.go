package stripe

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"storefront-backend/internal/domains/payment/gateway/credentials"
	"storefront-backend/internal/domains/payment/gateway/signature"
	"storefront-backend/internal/domains/payment/model"
)

// =====================================================
// WEBHOOK SIGNATURE
// =====================================================

// VerifySignature checks a Stripe-Signature header ("t=...,v1=...") against
// HMAC-SHA256(t + "." + body). Timestamps outside the tolerance are rejected.
func VerifySignature(body []byte, header, secret string, now time.Time) bool {
	if secret == "" || header == "" {
		return false
	}

	var ts string
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts = kv[1]
		case "v1":
			candidates = append(candidates, kv[1])
		}
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || len(candidates) == 0 {
		return false
	}
	age := now.Sub(time.Unix(unix, 0))
	if age > webhookTolerance*time.Second || age < -webhookTolerance*time.Second {
		return false
	}

	signed := append([]byte(ts+"."), body...)
	expected := signature.HMACSHA256Hex(signed, secret)
	for _, sig := range candidates {
		if signature.Equal(expected, sig) {
			return true
		}
	}
	return false
}

// =====================================================
// WEBHOOK HANDLING
// =====================================================

func (c *Client) handleWebhook(creds *credentials.Resolver, payload *model.CallbackPayload) *model.CallbackResult {
	secret := creds.Get(keyWebhookSecret)
	if !VerifySignature(payload.Body, payload.Headers.Get(signatureHeader), secret, c.now()) {
		c.logFailure(model.ErrInvalidSignature, "", "verify webhook signature")
		return model.CallbackFailed("invalid webhook signature")
	}

	var evt event
	if err := json.Unmarshal(payload.Body, &evt); err != nil {
		return model.CallbackFailed("malformed webhook body")
	}

	result := &model.CallbackResult{Verified: true, Event: evt.Type, EventID: evt.ID}

	switch evt.Type {
	case EventCheckoutCompleted:
		var session checkoutSession
		if err := json.Unmarshal(evt.Data.Object, &session); err != nil {
			return model.CallbackFailed("malformed checkout session")
		}
		result.OrderID = session.ClientReferenceID
		if result.OrderID == "" {
			result.OrderID = session.Metadata["order_id"]
		}
		result.SessionRef = session.ID
		result.TransactionID = session.PaymentIntent
		if session.PaymentStatus == sessionPaid {
			result.Success = true
			result.Status = model.PaymentStatusPaid
			result.Message = "Checkout session completed"
		} else {
			result.Message = "Checkout session completed without payment: " + session.PaymentStatus
		}

	case EventAsyncPaymentFailed:
		var session checkoutSession
		if err := json.Unmarshal(evt.Data.Object, &session); err != nil {
			return model.CallbackFailed("malformed checkout session")
		}
		result.OrderID = session.ClientReferenceID
		result.SessionRef = session.ID
		result.Status = model.PaymentStatusFailed
		result.Message = "Asynchronous payment failed"

	case EventPaymentIntentSucceed:
		var intent paymentIntent
		if err := json.Unmarshal(evt.Data.Object, &intent); err != nil {
			return model.CallbackFailed("malformed payment intent")
		}
		result.OrderID = intent.Metadata["order_id"]
		result.TransactionID = intent.ID
		if result.OrderID == "" {
			result.Message = "Payment intent succeeded without order metadata"
			break
		}
		result.Success = true
		result.Status = model.PaymentStatusPaid
		result.Message = "Payment intent succeeded"

	case EventPaymentIntentFailed:
		var intent paymentIntent
		if err := json.Unmarshal(evt.Data.Object, &intent); err != nil {
			return model.CallbackFailed("malformed payment intent")
		}
		result.OrderID = intent.Metadata["order_id"]
		result.TransactionID = intent.ID
		result.Status = model.PaymentStatusFailed
		result.Message = "Payment intent failed"

	default:
		result.Message = "Event ignored: " + evt.Type
	}

	return result
}
