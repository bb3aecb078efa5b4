package sdk

import "encoding/json"

// =====================================================
// ORDER STATES
// =====================================================
const (
	StatePending   = "PENDING"
	StateCompleted = "COMPLETED"
	StateFailed    = "FAILED"
	StateConfirmed = "CONFIRMED"
)

// Webhook event types.
const (
	EventOrderCompleted  = "checkout.order.completed"
	EventOrderFailed     = "checkout.order.failed"
	EventRefundCompleted = "pg.refund.completed"
	EventRefundFailed    = "pg.refund.failed"
)

// =====================================================
// AUTH
// =====================================================

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   int64  `json:"expires_at"`
	IssuedAt    int64  `json:"issued_at"`
}

// =====================================================
// PAY
// =====================================================

type PayRequest struct {
	MerchantOrderID string
	Amount          int64
	RedirectURL     string
	Message         string
	MetaInfo        map[string]string
}

type payBody struct {
	MerchantOrderID string            `json:"merchantOrderId"`
	Amount          int64             `json:"amount"`
	ExpireAfter     int64             `json:"expireAfter,omitempty"`
	MetaInfo        map[string]string `json:"metaInfo,omitempty"`
	PaymentFlow     paymentFlow       `json:"paymentFlow"`
}

type paymentFlow struct {
	Type         string       `json:"type"`
	Message      string       `json:"message,omitempty"`
	MerchantUrls merchantUrls `json:"merchantUrls"`
}

type merchantUrls struct {
	RedirectURL string `json:"redirectUrl"`
}

type PayResponse struct {
	OrderID     string `json:"orderId"`
	State       string `json:"state"`
	ExpireAt    int64  `json:"expireAt"`
	RedirectURL string `json:"redirectUrl"`
}

// =====================================================
// ORDER STATUS
// =====================================================

type PaymentDetail struct {
	TransactionID string `json:"transactionId"`
	PaymentMode   string `json:"paymentMode"`
	Timestamp     int64  `json:"timestamp"`
	Amount        int64  `json:"amount"`
	State         string `json:"state"`
	ErrorCode     string `json:"errorCode,omitempty"`
}

type OrderStatusResponse struct {
	OrderID         string          `json:"orderId"`
	MerchantOrderID string          `json:"merchantOrderId,omitempty"`
	State           string          `json:"state"`
	Amount          int64           `json:"amount"`
	ExpireAt        int64           `json:"expireAt"`
	MetaInfo        json.RawMessage `json:"metaInfo,omitempty"`
	PaymentDetails  []PaymentDetail `json:"paymentDetails"`
}

// CompletedTransactionID returns the transaction id of the last completed
// payment attempt.
func (r *OrderStatusResponse) CompletedTransactionID() string {
	for i := len(r.PaymentDetails) - 1; i >= 0; i-- {
		if r.PaymentDetails[i].State == StateCompleted {
			return r.PaymentDetails[i].TransactionID
		}
	}
	return ""
}

// =====================================================
// REFUND
// =====================================================

type RefundRequest struct {
	MerchantRefundID        string `json:"merchantRefundId"`
	OriginalMerchantOrderID string `json:"originalMerchantOrderId"`
	Amount                  int64  `json:"amount"`
}

type RefundResponse struct {
	RefundID string `json:"refundId"`
	Amount   int64  `json:"amount"`
	State    string `json:"state"`
}

// =====================================================
// CALLBACK
// =====================================================

// CallbackEvent is a server-to-server notification.
type CallbackEvent struct {
	Event   string `json:"event"`
	Payload struct {
		OrderID                 string          `json:"orderId"`
		MerchantOrderID         string          `json:"merchantOrderId"`
		OriginalMerchantOrderID string          `json:"originalMerchantOrderId"`
		RefundID                string          `json:"refundId"`
		MerchantRefundID        string          `json:"merchantRefundId"`
		State                   string          `json:"state"`
		Amount                  int64           `json:"amount"`
		PaymentDetails          []PaymentDetail `json:"paymentDetails"`
	} `json:"payload"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func parseError(body []byte) (string, string) {
	var e apiError
	if err := json.Unmarshal(body, &e); err != nil {
		return "", string(body)
	}
	return e.Code, e.Message
}
