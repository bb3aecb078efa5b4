package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// =====================================================
// ORDER PAYMENT STATE MACHINE
// =====================================================
//
//	pending ──► paid ──► partially_refunded ──► refunded
//	   │         ▲  └──────────────────────────────▲
//	   ▼         │
//	 failed ─────┘
//
// Every transition returns changed=false when the order is already in (or
// past) the target state so redelivered callbacks are no-ops.

// AttachReference installs a freshly initiated provider session, replacing any
// previous in-flight one. Settled orders keep their reference.
func (o *Order) AttachReference(ref *GatewayReference) error {
	if o.IsSettled() {
		return NewOrderAlreadyPaidError(o.ID.String())
	}
	if ref.InitiatedAt.IsZero() {
		ref.InitiatedAt = time.Now()
	}
	o.GatewayReference = ref
	o.PaymentStatus = PaymentStatusPending
	return nil
}

// MarkPaid settles the order with the provider transaction id.
func (o *Order) MarkPaid(transactionID, paymentIntentID string, at time.Time) bool {
	if o.IsSettled() {
		return false
	}

	if o.GatewayReference == nil {
		o.GatewayReference = &GatewayReference{Provider: o.PaymentMethodCode, InitiatedAt: at}
	}
	if transactionID != "" {
		o.GatewayReference.TransactionID = transactionID
	}
	if paymentIntentID != "" {
		o.GatewayReference.PaymentIntentID = paymentIntentID
	}
	o.GatewayReference.SettledAt = &at
	o.PaymentStatus = PaymentStatusPaid
	return true
}

// MarkFailed moves a pending order to failed. Settled orders are never
// downgraded.
func (o *Order) MarkFailed() bool {
	if o.PaymentStatus != PaymentStatusPending {
		return false
	}
	o.PaymentStatus = PaymentStatusFailed
	return true
}

// AddRefund appends a refund and recomputes the status from the cumulative
// refunded amount.
func (o *Order) AddRefund(rec RefundRecord) (bool, error) {
	if o.PaymentStatus != PaymentStatusPaid && o.PaymentStatus != PaymentStatusPartiallyRefunded {
		if o.PaymentStatus == PaymentStatusRefunded && o.GatewayReference != nil && o.GatewayReference.HasRefund(rec.ID) {
			return false, nil
		}
		return false, NewOrderNotRefundableError(o.PaymentStatus)
	}
	if o.GatewayReference == nil {
		return false, NewNoCapturedTransactionError(o.ID.String())
	}
	if o.GatewayReference.HasRefund(rec.ID) {
		return false, nil
	}
	if rec.Amount.GreaterThan(o.RefundableAmount()) {
		return false, NewRefundExceedsCapturedError(rec.Amount.String(), o.RefundableAmount().String())
	}
	if rec.RefundedAt.IsZero() {
		rec.RefundedAt = time.Now()
	}

	o.GatewayReference.Refunds = append(o.GatewayReference.Refunds, rec)
	if o.GatewayReference.RefundedTotal().GreaterThanOrEqual(o.Total) {
		o.PaymentStatus = PaymentStatusRefunded
	} else {
		o.PaymentStatus = PaymentStatusPartiallyRefunded
	}
	return true, nil
}

// ResolveRefundAmount applies the default (everything still refundable) and
// caps the request at the refundable amount.
func (o *Order) ResolveRefundAmount(requested *decimal.Decimal) (decimal.Decimal, error) {
	refundable := o.RefundableAmount()
	if requested == nil {
		if !refundable.IsPositive() {
			return decimal.Zero, NewRefundExceedsCapturedError("0", refundable.String())
		}
		return refundable, nil
	}
	if !requested.IsPositive() {
		return decimal.Zero, NewInvalidAmountError(requested.String())
	}
	if requested.GreaterThan(refundable) {
		return decimal.Zero, NewRefundExceedsCapturedError(requested.String(), refundable.String())
	}
	return *requested, nil
}
