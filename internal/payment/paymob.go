package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"shop-service/internal/entity"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

const paymentKeyExpiration = 3600

type Config struct {
	BaseURL       string
	APIKey        string
	IntegrationID int64
	IframeID      string
	Timeout       time.Duration
}

// Billing is the customer data Paymob attaches to a payment key. Empty fields are filled
// with placeholders so a missing detail never blocks payment.
type Billing struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Country     string `json:"country"`
	City        string `json:"city"`
	Street      string `json:"street"`
	Building    string `json:"building"`
	Floor       string `json:"floor"`
	Apartment   string `json:"apartment"`
	PostalCode  string `json:"postal_code"`
}

func (b Billing) withDefaults() Billing {
	fill := func(v *string, def string) {
		if strings.TrimSpace(*v) == "" {
			*v = def
		}
	}
	fill(&b.FirstName, "Test")
	fill(&b.LastName, "User")
	fill(&b.Email, "test@example.com")
	fill(&b.PhoneNumber, "+201000000000")
	fill(&b.City, "Cairo")
	fill(&b.Street, "N/A")
	fill(&b.Building, "N/A")
	fill(&b.Floor, "0")
	fill(&b.Apartment, "0")
	fill(&b.PostalCode, "00000")
	b.Country = "EG"
	return b
}

// BillingFor derives billing data from the order's shipping details and the customer's email.
func BillingFor(order *entity.Order, email string) Billing {
	b := Billing{Email: email}
	if s := order.Shipping; s != nil {
		b.FirstName = s.FirstName
		b.LastName = s.LastName
		b.PhoneNumber = s.PhoneNumber
		b.City = s.Address.City
		b.Street = s.Address.Street
		b.Building = s.Address.Building
		b.Floor = s.Address.Floor
		b.Apartment = s.Address.Apartment
		b.PostalCode = s.Address.PostalCode
	}
	return b
}

// Initiation is the outcome of a successful payment setup.
type Initiation struct {
	GatewayOrderID string
	PaymentKey     string
	PaymentURL     string
}

// APIError is a non-2xx answer from Paymob.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paymob %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Paymob talks to the Paymob Accept API.
type Paymob struct {
	cfg    Config
	client *http.Client
}

func NewPaymob(cfg Config) *Paymob {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Paymob{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

// Authenticate exchanges the API key for a short-lived auth token.
func (p *Paymob) Authenticate(ctx context.Context) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	if err := p.post(ctx, "authenticate", "/api/auth/tokens", map[string]interface{}{"api_key": p.cfg.APIKey}, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("paymob authenticate: empty token")
	}
	return resp.Token, nil
}

// CreateOrder registers a remote order keyed by merchantOrderID and returns Paymob's order id.
func (p *Paymob) CreateOrder(ctx context.Context, token string, amountCents int64, merchantOrderID, currency string) (string, error) {
	req := map[string]interface{}{
		"auth_token":        token,
		"delivery_needed":   false,
		"amount_cents":      amountCents,
		"currency":          currency,
		"merchant_order_id": merchantOrderID,
	}
	var resp struct {
		ID json.Number `json:"id"`
	}
	if err := p.post(ctx, "create order", "/api/ecommerce/orders", req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("paymob create order: empty id")
	}
	return resp.ID.String(), nil
}

// GeneratePaymentKey requests a card payment key for the remote order.
func (p *Paymob) GeneratePaymentKey(ctx context.Context, token string, amountCents int64, gatewayOrderID string, billing Billing, currency string) (string, error) {
	req := map[string]interface{}{
		"auth_token":     token,
		"amount_cents":   amountCents,
		"expiration":     paymentKeyExpiration,
		"order_id":       json.Number(gatewayOrderID),
		"billing_data":   billing.withDefaults(),
		"currency":       currency,
		"integration_id": p.cfg.IntegrationID,
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := p.post(ctx, "payment key", "/api/acceptance/payment_keys", req, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("paymob payment key: empty token")
	}
	return resp.Token, nil
}

// PaymentURL is the hosted iframe the customer is redirected to.
func (p *Paymob) PaymentURL(paymentKey string) string {
	return fmt.Sprintf("%s/api/acceptance/iframes/%s?payment_token=%s", p.cfg.BaseURL, p.cfg.IframeID, url.QueryEscape(paymentKey))
}

// Initiate runs authenticate, create order and payment key in sequence.
func (p *Paymob) Initiate(ctx context.Context, order *entity.Order, merchantOrderID string, billing Billing) (*Initiation, error) {
	token, err := p.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	gatewayOrderID, err := p.CreateOrder(ctx, token, order.Total, merchantOrderID, order.Currency)
	if err != nil {
		return nil, err
	}
	key, err := p.GeneratePaymentKey(ctx, token, order.Total, gatewayOrderID, billing, order.Currency)
	if err != nil {
		return nil, err
	}
	return &Initiation{GatewayOrderID: gatewayOrderID, PaymentKey: key, PaymentURL: p.PaymentURL(key)}, nil
}

// InitiatePayment is Initiate for callers that must not fail: errors are logged and nil is returned.
func (p *Paymob) InitiatePayment(ctx context.Context, order *entity.Order, merchantOrderID string, billing Billing) *Initiation {
	init, err := p.Initiate(ctx, order, merchantOrderID, billing)
	if err != nil {
		logger.Error().Err(err).Int64("orderId", order.ID).Msg("Paymob payment initiation failed")
		return nil
	}
	logger.Info().Int64("orderId", order.ID).Str("paymobOrderId", init.GatewayOrderID).Msg("Paymob payment initialized")
	return init
}

func (p *Paymob) post(ctx context.Context, op, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("paymob %s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("paymob %s: read body: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("paymob %s: decode: %w", op, err)
	}
	return nil
}
