package payumoney

import (
	"encoding/json"

	"storefront-backend/internal/domains/payment/gateway/credentials"
	"storefront-backend/internal/domains/payment/model"
)

// =====================================================
// PAYUMONEY CONFIGURATION
// =====================================================

const (
	TestPaymentURL       = "https://test.payu.in/_payment"
	ProductionPaymentURL = "https://secure.payu.in/_payment"

	testServiceURL       = "https://test.payu.in/merchant/postservice.php?form=2"
	productionServiceURL = "https://info.payu.in/merchant/postservice.php?form=2"

	keyMerchantKey  = "merchant_key"
	keyMerchantSalt = "merchant_salt"

	// maxTxnIDLength is PayU's txnid column size.
	maxTxnIDLength = 25

	statusSuccess = "success"
	statusFailure = "failure"

	commandVerifyPayment = "verify_payment"
)

var credentialSpec = credentials.Spec{
	Code:     model.ProviderPayUMoney,
	Required: []string{keyMerchantKey, keyMerchantSalt},
	Legacy:   map[string]string{keyMerchantSalt: "salt"},
}

var configFields = []model.ConfigField{
	model.ModeField(),
	{Key: "merchant_key", Label: "Merchant Key", Type: model.FieldTypeText, Required: true},
	{Key: "merchant_salt", Label: "Merchant Salt", Type: model.FieldTypePassword, Required: true},
	{Key: "test_merchant_key", Label: "Test Merchant Key", Type: model.FieldTypeText, Help: "Used in test mode"},
	{Key: "test_merchant_salt", Label: "Test Merchant Salt", Type: model.FieldTypePassword, Help: "Used in test mode"},
}

// =====================================================
// POSTSERVICE TYPES
// =====================================================

type transactionDetail struct {
	MihPayID string `json:"mihpayid"`
	TxnID    string `json:"txnid"`
	Status   string `json:"status"`
	Amount   string `json:"amt"`
	Mode     string `json:"mode"`
}

type verifyResponse struct {
	Status             int                          `json:"status"`
	Message            string                       `json:"msg"`
	TransactionDetails map[string]transactionDetail `json:"transaction_details"`
}

func parseError(body []byte) (string, string) {
	var resp verifyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", string(body)
	}
	return "", resp.Message
}
