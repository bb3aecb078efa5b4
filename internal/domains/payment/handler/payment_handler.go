package handler

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"storefront-backend/internal/domains/payment/model"
	"storefront-backend/internal/domains/payment/service"
	res "storefront-backend/internal/shared/response"
	"storefront-backend/pkg/logger"
)

// maxCallbackBody bounds how much of a callback/webhook body is read.
const maxCallbackBody = 1 << 20

type PaymentHandler struct {
	paymentService service.PaymentService
	// resultURL is the storefront page browser returns are redirected to.
	// Empty means answer with JSON.
	resultURL string
}

// NewPaymentHandler creates new payment handler
func NewPaymentHandler(paymentService service.PaymentService, resultURL string) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		resultURL:      strings.TrimSpace(resultURL),
	}
}

// =====================================================
// SERVICE ENDPOINTS (JWT)
// =====================================================

// InitiatePayment starts a provider session for an order
// POST /api/v1/payments/orders/:order_id/initiate
func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	// Step 1: Get order ID from URL
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	// Step 2: Bind optional request body
	var req model.InitiatePaymentRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		res.BadRequest(c, err.Error())
		return
	}

	// Step 3: Call service
	response, err := h.paymentService.ProcessPayment(c.Request.Context(), orderID, req)
	if err != nil {
		writePaymentError(c, err)
		return
	}

	// Step 4: Return response
	res.Success(c, http.StatusOK, "Payment initiated", response)
}

// VerifyPayment polls the provider for settlement
// POST /api/v1/payments/orders/:order_id/verify
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	var req model.VerifyPaymentRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		res.BadRequest(c, err.Error())
		return
	}

	response, err := h.paymentService.VerifyPayment(c.Request.Context(), orderID, req)
	if err != nil {
		writePaymentError(c, err)
		return
	}

	res.Success(c, http.StatusOK, "OK", response)
}

// Refund refunds all or part of a captured payment
// POST /api/v1/payments/orders/:order_id/refund
func (h *PaymentHandler) Refund(c *gin.Context) {
	// Step 1: Get order ID from URL
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	// Step 2: Bind request body
	var req model.RefundRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		res.BadRequest(c, err.Error())
		return
	}

	// Step 3: Call service
	response, err := h.paymentService.Refund(c.Request.Context(), orderID, req)
	if err != nil {
		writePaymentError(c, err)
		return
	}

	// Step 4: A refused refund is a result, not a server error
	if !response.Success {
		c.JSON(refundFailureStatus(response.Kind), res.Response{
			Success: false,
			Message: response.Message,
			Data:    response,
		})
		return
	}
	res.Success(c, http.StatusOK, "Refund processed", response)
}

// ConfigFields lists the credential inputs of a provider
// GET /api/v1/payments/methods/:code/fields
func (h *PaymentHandler) ConfigFields(c *gin.Context) {
	response, err := h.paymentService.ConfigFields(c.Request.Context(), c.Param("code"))
	if err != nil {
		writePaymentError(c, err)
		return
	}
	res.Success(c, http.StatusOK, "OK", response)
}

// =====================================================
// PUBLIC ENDPOINTS (provider facing)
// =====================================================

// Callback handles the customer's browser returning from the provider
// GET|POST /api/v1/payments/callback/:provider
func (h *PaymentHandler) Callback(c *gin.Context) {
	provider := c.Param("provider")

	// Step 1: Collect query, form and raw body
	payload, err := readPayload(c)
	if err != nil {
		res.BadRequest(c, err.Error())
		return
	}

	// Step 2: Process
	response, err := h.paymentService.HandleCallback(c.Request.Context(), provider, payload)
	if err != nil {
		if h.resultURL != "" && model.KindOf(err) != model.KindUnsupportedMethod {
			c.Redirect(http.StatusFound, h.resultRedirect(payload.Field("order_id"), "error"))
			return
		}
		writePaymentError(c, err)
		return
	}

	// Step 3: Send the customer back to the storefront
	if h.resultURL != "" {
		orderID := payload.Field("order_id")
		if response.OrderID != nil {
			orderID = response.OrderID.String()
		}
		status := "failed"
		if response.Success {
			status = "success"
		}
		c.Redirect(http.StatusFound, h.resultRedirect(orderID, status))
		return
	}

	res.Success(c, http.StatusOK, response.Message, response)
}

// Webhook handles server-to-server provider notifications
// POST /api/v1/webhooks/:provider
//
// Providers redeliver on non-2xx, so only failures worth retrying (lock
// contention, storage errors) answer 500. Everything else is acknowledged.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	provider := c.Param("provider")
	l := logger.FromContext(c.Request.Context())

	payload, err := readPayload(c)
	if err != nil {
		l.Warn().Err(err).Str("provider", provider).Msg("unreadable webhook body")
		c.JSON(http.StatusOK, gin.H{"received": false, "message": "unreadable body"})
		return
	}

	response, err := h.paymentService.HandleCallback(c.Request.Context(), provider, payload)
	if err != nil {
		switch kind := model.KindOf(err); {
		case kind == model.KindUnsupportedMethod:
			res.Error(c, http.StatusNotFound, model.ErrCodeUnsupportedMethod, "unknown provider")
		case kind == model.KindConflict || kind == model.KindInternal:
			l.Error().Err(err).Str("provider", provider).Msg("webhook processing failed, asking provider to retry")
			c.JSON(http.StatusInternalServerError, gin.H{"received": false})
		default:
			l.Warn().Err(err).Str("provider", provider).Msg("webhook acknowledged without processing")
			c.JSON(http.StatusOK, gin.H{"received": true, "processed": false, "message": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received":  true,
		"processed": response.Success || response.Duplicate,
		"duplicate": response.Duplicate,
		"message":   response.Message,
	})
}

func (h *PaymentHandler) resultRedirect(orderID, status string) string {
	q := url.Values{}
	if orderID != "" {
		q.Set("order_id", orderID)
	}
	q.Set("status", status)

	sep := "?"
	if strings.Contains(h.resultURL, "?") {
		sep = "&"
	}
	return h.resultURL + sep + q.Encode()
}

// =====================================================
// ERROR MAPPING
// =====================================================

// mapPaymentError maps an error kind to an HTTP status and error code
func mapPaymentError(err error) (statusCode int, errorCode string) {
	// Default
	statusCode = http.StatusInternalServerError
	errorCode = "INTERNAL_ERROR"

	var paymentErr *model.PaymentError
	if !errors.As(err, &paymentErr) {
		return statusCode, errorCode
	}
	errorCode = paymentErr.Code

	switch paymentErr.Kind {
	case model.KindConfiguration:
		statusCode = http.StatusServiceUnavailable
	case model.KindProvider:
		statusCode = http.StatusBadGateway
	case model.KindValidation:
		statusCode = http.StatusUnprocessableEntity
	case model.KindVerification:
		statusCode = http.StatusBadRequest
	case model.KindUnsupportedMethod:
		statusCode = http.StatusBadRequest
	case model.KindNotFound:
		statusCode = http.StatusNotFound
	case model.KindState, model.KindConflict:
		statusCode = http.StatusConflict
	}
	return statusCode, errorCode
}

func refundFailureStatus(kind model.ErrorKind) int {
	if kind == "" {
		return http.StatusBadGateway
	}
	status, _ := mapPaymentError(model.NewPaymentError(kind, "", "", nil))
	return status
}

func writePaymentError(c *gin.Context, err error) {
	status, code := mapPaymentError(err)
	if status == http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("payment request failed")
		res.RetryableError(c, status, code, "Internal server error", false)
		return
	}

	message := err.Error()
	var paymentErr *model.PaymentError
	if errors.As(err, &paymentErr) {
		message = paymentErr.Message
	}
	res.RetryableError(c, status, code, message, model.IsRetryable(err))
}

// =====================================================
// HELPER FUNCTIONS
// =====================================================

func orderIDParam(c *gin.Context) (uuid.UUID, bool) {
	orderID, err := uuid.Parse(c.Param("order_id"))
	if err != nil {
		res.Error(c, http.StatusBadRequest, "INVALID_ORDER_ID", "Invalid order ID")
		return uuid.Nil, false
	}
	return orderID, true
}

// bindOptionalJSON binds a JSON body when one is present.
func bindOptionalJSON(c *gin.Context, obj interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(obj); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// readPayload gathers everything an adapter may need to authenticate a
// callback: the raw body, query and form fields, and headers.
func readPayload(c *gin.Context) (*model.CallbackPayload, error) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxCallbackBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	fields := make(map[string]string)
	for k, v := range c.Request.URL.Query() {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}

	mediaType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" && len(body) > 0 {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("invalid form body: %w", err)
		}
		for k, v := range form {
			if len(v) > 0 {
				fields[k] = v[0]
			}
		}
	}

	return &model.CallbackPayload{
		Fields:  fields,
		Body:    body,
		Headers: c.Request.Header.Clone(),
	}, nil
}
