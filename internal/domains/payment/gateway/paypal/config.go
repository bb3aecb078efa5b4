package paypal

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"storefront-backend/internal/domains/payment/gateway/credentials"
	"storefront-backend/internal/domains/payment/model"
)

// =====================================================
// PAYPAL CONFIGURATION
// =====================================================

const (
	SandboxBaseURL = "https://api-m.sandbox.paypal.com"
	LiveBaseURL    = "https://api-m.paypal.com"

	keyClientID     = "client_id"
	keyClientSecret = "client_secret"
	keyBrandName    = "brand_name"

	statusCompleted = "COMPLETED"
	statusPending   = "PENDING"

	issueAlreadyCaptured = "ORDER_ALREADY_CAPTURED"
)

var credentialSpec = credentials.Spec{
	Code:     model.ProviderPayPal,
	Required: []string{keyClientID, keyClientSecret},
}

var configFields = []model.ConfigField{
	model.ModeField(),
	{Key: "client_id", Label: "Live Client ID", Type: model.FieldTypeText, Required: true},
	{Key: "client_secret", Label: "Live Client Secret", Type: model.FieldTypePassword, Required: true},
	{Key: "test_client_id", Label: "Sandbox Client ID", Type: model.FieldTypeText, Help: "Used in test mode"},
	{Key: "test_client_secret", Label: "Sandbox Client Secret", Type: model.FieldTypePassword, Help: "Used in test mode"},
	{Key: "brand_name", Label: "Brand Name", Type: model.FieldTypeText, Help: "Shown on the PayPal approval page"},
}

// =====================================================
// COUNTRY CODES
// =====================================================

// countryCodes maps common full-name inputs to ISO 3166-1 alpha-2.
var countryCodes = map[string]string{
	"united states":            "US",
	"united states of america": "US",
	"usa":                      "US",
	"america":                  "US",
	"united kingdom":           "GB",
	"uk":                       "GB",
	"great britain":            "GB",
	"england":                  "GB",
	"india":                    "IN",
	"canada":                   "CA",
	"australia":                "AU",
	"new zealand":              "NZ",
	"germany":                  "DE",
	"france":                   "FR",
	"spain":                    "ES",
	"italy":                    "IT",
	"netherlands":              "NL",
	"ireland":                  "IE",
	"singapore":                "SG",
	"japan":                    "JP",
	"china":                    "CN",
	"brazil":                   "BR",
	"mexico":                   "MX",
	"south africa":             "ZA",
	"united arab emirates":     "AE",
	"uae":                      "AE",
	"vietnam":                  "VN",
	"viet nam":                 "VN",
}

// CountryCode normalizes a country input to ISO-2.
func CountryCode(country string) (string, bool) {
	c := strings.TrimSpace(country)
	if len(c) == 2 {
		return strings.ToUpper(c), true
	}
	code, ok := countryCodes[strings.ToLower(c)]
	return code, ok
}

// =====================================================
// API TYPES
// =====================================================

type moneyValue struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type breakdown struct {
	ItemTotal *moneyValue `json:"item_total,omitempty"`
	Shipping  *moneyValue `json:"shipping,omitempty"`
	TaxTotal  *moneyValue `json:"tax_total,omitempty"`
	Discount  *moneyValue `json:"discount,omitempty"`
}

type amountWithBreakdown struct {
	CurrencyCode string     `json:"currency_code"`
	Value        string     `json:"value"`
	Breakdown    *breakdown `json:"breakdown,omitempty"`
}

type shippingDetail struct {
	Name struct {
		FullName string `json:"full_name"`
	} `json:"name"`
	Address struct {
		AddressLine1 string `json:"address_line_1"`
		AddressLine2 string `json:"address_line_2,omitempty"`
		AdminArea2   string `json:"admin_area_2,omitempty"`
		AdminArea1   string `json:"admin_area_1,omitempty"`
		PostalCode   string `json:"postal_code,omitempty"`
		CountryCode  string `json:"country_code"`
	} `json:"address"`
}

type purchaseUnit struct {
	ReferenceID string              `json:"reference_id"`
	CustomID    string              `json:"custom_id"`
	InvoiceID   string              `json:"invoice_id,omitempty"`
	Amount      amountWithBreakdown `json:"amount"`
	Shipping    *shippingDetail     `json:"shipping,omitempty"`
}

type applicationContext struct {
	ReturnURL          string `json:"return_url"`
	CancelURL          string `json:"cancel_url"`
	BrandName          string `json:"brand_name,omitempty"`
	ShippingPreference string `json:"shipping_preference"`
	UserAction         string `json:"user_action"`
}

type createOrderRequest struct {
	Intent             string             `json:"intent"`
	PurchaseUnits      []purchaseUnit     `json:"purchase_units"`
	ApplicationContext applicationContext `json:"application_context"`
}

type link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

type capture struct {
	ID     string      `json:"id"`
	Status string      `json:"status"`
	Amount *moneyValue `json:"amount,omitempty"`
}

type orderResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Links         []link `json:"links"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
		CustomID    string `json:"custom_id"`
		Payments    struct {
			Captures []capture `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// approveURL returns the approve (or payer-action) link.
func (o *orderResponse) approveURL() string {
	for _, l := range o.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

// captureID returns the first capture id of the first purchase unit.
func (o *orderResponse) captureID() string {
	for _, pu := range o.PurchaseUnits {
		for _, c := range pu.Payments.Captures {
			if c.ID != "" {
				return c.ID
			}
		}
	}
	return ""
}

// capturedAmount sums the completed captures across purchase units.
func (o *orderResponse) capturedAmount() (decimal.Decimal, bool) {
	total := decimal.Zero
	found := false
	for _, pu := range o.PurchaseUnits {
		for _, c := range pu.Payments.Captures {
			if c.Amount == nil || c.Status != statusCompleted {
				continue
			}
			v, err := decimal.NewFromString(c.Amount.Value)
			if err != nil {
				return decimal.Zero, false
			}
			total = total.Add(v)
			found = true
		}
	}
	return total, found
}

func (o *orderResponse) customID() string {
	for _, pu := range o.PurchaseUnits {
		if pu.CustomID != "" {
			return pu.CustomID
		}
		if pu.ReferenceID != "" {
			return pu.ReferenceID
		}
	}
	return ""
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type refundRequest struct {
	Amount      moneyValue `json:"amount"`
	NoteToPayer string     `json:"note_to_payer,omitempty"`
}

type refundResponse struct {
	ID     string      `json:"id"`
	Status string      `json:"status"`
	Amount *moneyValue `json:"amount,omitempty"`
}

type apiError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
	// OAuth errors
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func parseError(body []byte) (string, string) {
	var e apiError
	if err := json.Unmarshal(body, &e); err != nil {
		return "", string(body)
	}
	if e.Error != "" {
		return e.Error, e.ErrorDescription
	}
	if len(e.Details) > 0 {
		return e.Details[0].Issue, e.Details[0].Description
	}
	return e.Name, e.Message
}
