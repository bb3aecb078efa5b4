// Package sdk is a small PhonePe Standard Checkout v2 client. Clients are
// pooled per credential set so OAuth tokens are shared between requests.
package sdk

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"storefront-backend/internal/domains/payment/gateway"
	"storefront-backend/internal/domains/payment/gateway/signature"
	"storefront-backend/internal/domains/payment/gateway/token"
)

// =====================================================
// ENVIRONMENT
// =====================================================

const EnvProduction = "PRODUCTION"

// Endpoints are the OAuth and payment-gateway base URLs.
type Endpoints struct {
	Auth string
	PG   string
}

var ProductionEndpoints = Endpoints{
	Auth: "https://api.phonepe.com/apis/identity-manager/v1/oauth/token",
	PG:   "https://api.phonepe.com/apis/pg",
}

// Config identifies one merchant credential set. It is also the pool key.
type Config struct {
	ClientID      string
	ClientSecret  string
	ClientVersion int
	Env           string
}

// =====================================================
// CLIENT POOL
// =====================================================

// Pool hands out one Client per Config.
type Pool struct {
	mu         sync.Mutex
	clients    map[Config]*Client
	httpClient *http.Client
	tokens     *token.Source
	endpoints  Endpoints
}

func NewPool(httpClient *http.Client, tokens *token.Source, endpoints Endpoints) *Pool {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if tokens == nil {
		tokens = token.NewSource(nil)
	}
	return &Pool{
		clients:    make(map[Config]*Client),
		httpClient: httpClient,
		tokens:     tokens,
		endpoints:  endpoints,
	}
}

// Client returns the pooled client for cfg, creating it on first use.
func (p *Pool) Client(cfg Config) *Client {
	if cfg.Env == "" {
		cfg.Env = EnvProduction
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[cfg]; ok {
		return c
	}
	c := &Client{
		cfg:        cfg,
		httpClient: p.httpClient,
		tokens:     p.tokens,
		endpoints:  p.endpoints,
	}
	p.clients[cfg] = c
	return c
}

// Len is the number of pooled clients.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// =====================================================
// CLIENT
// =====================================================

type Client struct {
	cfg        Config
	httpClient *http.Client
	tokens     *token.Source
	endpoints  Endpoints
}

func (c *Client) tokenKey() string {
	return token.Key("phonepe", strings.ToLower(c.cfg.Env), c.cfg.ClientID+":"+strconv.Itoa(c.cfg.ClientVersion))
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	tok, err := c.tokens.Token(ctx, c.tokenKey(), func(ctx context.Context) (*token.Token, error) {
		form := url.Values{
			"client_id":      {c.cfg.ClientID},
			"client_version": {strconv.Itoa(c.cfg.ClientVersion)},
			"client_secret":  {c.cfg.ClientSecret},
			"grant_type":     {"client_credentials"},
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.Auth, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		var resp tokenResponse
		if err := gateway.Do(c.httpClient, req, &resp, parseError); err != nil {
			return nil, err
		}
		tokenType := resp.TokenType
		if tokenType == "" {
			tokenType = "O-Bearer"
		}
		return &token.Token{
			AccessToken: resp.AccessToken,
			TokenType:   tokenType,
			ExpiresAt:   time.Unix(resp.ExpiresAt, 0),
		}, nil
	})
	if err != nil {
		return "", err
	}
	return tok.TokenType + " " + tok.AccessToken, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	auth, err := c.accessToken(ctx)
	if err != nil {
		return fmt.Errorf("phonepe auth: %w", err)
	}

	reader := bytes.NewReader(nil)
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoints.PG+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Content-Type", "application/json")

	err = gateway.Do(c.httpClient, req, out, parseError)
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate(ctx, c.tokenKey())
	}
	return err
}

// =====================================================
// OPERATIONS
// =====================================================

// Pay creates a PG_CHECKOUT order.
func (c *Client) Pay(ctx context.Context, r PayRequest) (*PayResponse, error) {
	body := payBody{
		MerchantOrderID: r.MerchantOrderID,
		Amount:          r.Amount,
		MetaInfo:        r.MetaInfo,
		PaymentFlow: paymentFlow{
			Type:         "PG_CHECKOUT",
			Message:      r.Message,
			MerchantUrls: merchantUrls{RedirectURL: r.RedirectURL},
		},
	}
	var resp PayResponse
	if err := c.do(ctx, http.MethodPost, "/checkout/v2/pay", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// OrderStatus fetches the state of a merchant order.
func (c *Client) OrderStatus(ctx context.Context, merchantOrderID string, details bool) (*OrderStatusResponse, error) {
	path := fmt.Sprintf("/checkout/v2/order/%s/status?details=%t", url.PathEscape(merchantOrderID), details)
	var resp OrderStatusResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Refund refunds part or all of a completed order.
func (c *Client) Refund(ctx context.Context, r RefundRequest) (*RefundResponse, error) {
	var resp RefundResponse
	if err := c.do(ctx, http.MethodPost, "/payments/v2/refund", r, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// =====================================================
// CALLBACK AUTH
// =====================================================

// CallbackAuthorization is the value PhonePe sends in the Authorization
// header of callbacks: sha256(username:password).
func CallbackAuthorization(username, password string) string {
	sum := sha256.Sum256([]byte(username + ":" + password))
	return hex.EncodeToString(sum[:])
}

// ValidateCallback checks the Authorization header and decodes the event.
func ValidateCallback(username, password, authorization string, body []byte) (*CallbackEvent, error) {
	if username == "" || password == "" {
		return nil, errors.New("callback credentials are not configured")
	}
	if !signature.Equal(CallbackAuthorization(username, password), authorization) {
		return nil, errors.New("callback authorization mismatch")
	}
	var evt CallbackEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("malformed callback body: %w", err)
	}
	return &evt, nil
}
