// Package payment talks to a YooKassa-compatible payment gateway.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/adiga-code/numerology/internal/config"
	"github.com/adiga-code/numerology/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const (
	EventSucceeded = "payment.succeeded"
	EventCanceled  = "payment.canceled"

	// SignatureHeader carries the hex HMAC-SHA256 of the notification body.
	SignatureHeader = "X-Signature"
)

var ErrBadSignature = errors.New("invalid notification signature")

type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type Confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

// Payment is the subset of the gateway payment object the bot relies on.
type Payment struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Amount       Amount            `json:"amount"`
	Confirmation *Confirmation     `json:"confirmation,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ExternalID is the order external id stored in the payment metadata.
func (p Payment) ExternalID() string {
	return p.Metadata["order_id"]
}

// AmountMinor converts the payment amount into kopecks.
func (p Payment) AmountMinor() (int64, error) {
	return models.ParseAmount(p.Amount.Value)
}

type Notification struct {
	Type   string  `json:"type"`
	Event  string  `json:"event"`
	Object Payment `json:"object"`
}

type createPaymentRequest struct {
	Amount       Amount            `json:"amount"`
	Capture      bool              `json:"capture"`
	Confirmation Confirmation      `json:"confirmation"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type Client struct {
	http      *resty.Client
	returnURL string
	logger    *zerolog.Logger
}

func NewClient(cfg config.GatewayConfig, logger *zerolog.Logger) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetBasicAuth(cfg.ShopID, cfg.SecretKey).
			SetTimeout(cfg.Timeout),
		returnURL: cfg.ReturnURL,
		logger:    logger,
	}
}

// CreatePayment registers a payment for the order. The order external id is
// the idempotence key, so repeated calls return the same payment.
func (c *Client) CreatePayment(ctx context.Context, order *models.Order, description string) (*Payment, error) {
	body := createPaymentRequest{
		Amount: Amount{
			Value:    models.AmountDecimal(order.Amount).StringFixed(2),
			Currency: order.Currency,
		},
		Capture:      true,
		Confirmation: Confirmation{Type: "redirect", ReturnURL: c.returnURL},
		Description:  description,
		Metadata:     map[string]string{"order_id": order.ExternalID},
	}

	var out Payment
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Idempotence-Key", order.ExternalID).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v3/payments")
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("create payment: HTTP %d %s %s", resp.StatusCode(), apiErr.Code, apiErr.Description)
	}
	if out.Confirmation == nil || out.Confirmation.ConfirmationURL == "" {
		return nil, fmt.Errorf("create payment: no confirmation url in response")
	}

	c.logger.Info().
		Str("external_id", order.ExternalID).
		Str("payment_id", out.ID).
		Str("status", out.Status).
		Msg("Gateway payment created")
	return &out, nil
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseNotification verifies the signature and decodes the body.
func ParseNotification(secret string, body []byte, signature string) (*Notification, error) {
	if secret == "" || signature == "" {
		return nil, ErrBadSignature
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return nil, ErrBadSignature
	}
	want, _ := hex.DecodeString(Sign(secret, body))
	if !hmac.Equal(got, want) {
		return nil, ErrBadSignature
	}

	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	if n.Event == "" || n.Object.ID == "" {
		return nil, fmt.Errorf("decode notification: missing event or payment id")
	}
	return &n, nil
}
