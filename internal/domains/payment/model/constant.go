package model

// =====================================================
// PAYMENT PROVIDERS
// =====================================================
const (
	ProviderStripe    = "stripe"
	ProviderPayPal    = "paypal"
	ProviderRazorpay  = "razorpay"
	ProviderPayUMoney = "payumoney"
	ProviderPhonePe   = "phonepe"
)

// ValidProviders is also the default registration order of the gateway registry.
var ValidProviders = []string{
	ProviderStripe,
	ProviderPayPal,
	ProviderRazorpay,
	ProviderPayUMoney,
	ProviderPhonePe,
}

// =====================================================
// ORDER PAYMENT STATUS
// =====================================================
const (
	PaymentStatusPending           = "pending"
	PaymentStatusPaid              = "paid"
	PaymentStatusFailed            = "failed"
	PaymentStatusRefunded          = "refunded"
	PaymentStatusPartiallyRefunded = "partially_refunded"
)

var ValidPaymentStatuses = []string{
	PaymentStatusPending,
	PaymentStatusPaid,
	PaymentStatusFailed,
	PaymentStatusRefunded,
	PaymentStatusPartiallyRefunded,
}

// =====================================================
// PAYMENT METHOD MODE
// =====================================================
const (
	ModeTest = "test"
	ModeLive = "live"
)

// =====================================================
// GATEWAY RESULT TYPES
// =====================================================
const (
	GatewayTypeRedirect            = "redirect"
	GatewayTypeFormPost            = "form_post"
	GatewayTypeFrontendIntegration = "frontend_integration"
)

// =====================================================
// CONFIG FIELD TYPES
// =====================================================
const (
	FieldTypeText     = "text"
	FieldTypePassword = "password"
	FieldTypeSelect   = "select"
)

// =====================================================
// CALLBACK EVENTS
// =====================================================
const (
	EventPaymentReturn   = "payment.return"
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventRefundCreated   = "refund.created"
)

// =====================================================
// INTERNAL ERROR CODES
// =====================================================
const (
	// Initiation errors
	ErrCodeNotConfigured     = "PAY001"
	ErrCodeUnsupportedMethod = "PAY002"
	ErrCodeInvalidAmount     = "PAY003"
	ErrCodeInvalidAddress    = "PAY004"
	ErrCodeProviderFailure   = "PAY005"

	// Verification errors
	ErrCodeInvalidSignature = "PAY006"
	ErrCodeMissingReference = "PAY007"

	// Refund / state errors
	ErrCodeNoCapturedTransaction = "PAY008"
	ErrCodeRefundNotSupported    = "PAY009"
	ErrCodeRefundExceedsCaptured = "PAY010"
	ErrCodeOrderNotRefundable    = "PAY011"

	// Persistence errors
	ErrCodeOrderNotFound     = "PAY012"
	ErrCodeConcurrentUpdate  = "PAY013"
	ErrCodeMethodNotFound    = "PAY014"
	ErrCodeInvalidRequest    = "PAY015"
	ErrCodeOrderAlreadyPaid  = "PAY016"
	ErrCodeOrderLocked       = "PAY017"
	ErrCodeCallbackUnmatched = "PAY018"
)

// =====================================================
// BUSINESS RULES
// =====================================================
const (
	DefaultCurrency = "USD"

	// ReconcileMinAgeMinutes is how old a pending session must be before the
	// reconcile job polls the provider for it.
	ReconcileMinAgeMinutes = 15
	ReconcileBatchSize     = 50

	// ReconcileMaxAgeHours bounds the scan; older sessions are abandoned.
	ReconcileMaxAgeHours = 48
)
