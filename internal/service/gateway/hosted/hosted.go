// Package hosted redirects users to a hosted checkout page; status arrives by signed callback only.
package hosted

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/service/gateway"
)

const (
	Name            = "hosted"
	SignatureHeader = "X-Checkout-Signature"
)

// Callback event names
const (
	EventSucceeded = "payment.succeeded"
	EventFailed    = "payment.failed"
	EventCancelled = "payment.cancelled"
	EventExpired   = "payment.expired"
	EventRefunded  = "refund.processed"
)

type Config struct {
	CheckoutURL   string
	WebhookSecret string
}

type Checkout struct {
	cfg Config
}

func New(cfg Config) *Checkout {
	return &Checkout{cfg: cfg}
}

func (c *Checkout) Name() string     { return Name }
func (c *Checkout) Pollable() bool   { return false }
func (c *Checkout) Configured() bool { return c.cfg.CheckoutURL != "" && c.cfg.WebhookSecret != "" }

// CreatePayment builds signed checkout link, no network call is made
func (c *Checkout) CreatePayment(_ context.Context, req gateway.CreateRequest) (gateway.CreateResult, error) {
	u, err := url.Parse(c.cfg.CheckoutURL)
	if err != nil || u.Scheme == "" {
		return gateway.CreateResult{
			Error:      "checkout url is invalid",
			Diagnostic: map[string]any{"provider": Name, "checkoutUrl": c.cfg.CheckoutURL},
		}, nil
	}

	q := u.Query()
	q.Set("order_id", req.OrderID)
	q.Set("amount", req.Amount.StringFixed(2))
	q.Set("currency", req.Currency)
	q.Set("signature", gateway.Sign(c.cfg.WebhookSecret, []byte(req.OrderID+"|"+req.Amount.StringFixed(2)+"|"+req.Currency)))
	u.RawQuery = q.Encode()

	return gateway.CreateResult{Success: true, PaymentURL: u.String(), OrderID: req.OrderID}, nil
}

func (c *Checkout) CheckStatus(context.Context, string) (models.PaymentStatus, error) {
	return models.PaymentPending, nil
}

type callback struct {
	Event   string `json:"event"`
	OrderID string `json:"order_id"`
}

func (c *Checkout) ParseWebhook(_ context.Context, header http.Header, body []byte) (gateway.WebhookEvent, error) {
	if !gateway.VerifySignature(c.cfg.WebhookSecret, body, header.Get(SignatureHeader)) {
		return gateway.WebhookEvent{}, fmt.Errorf("bad signature: %w", apperrors.ErrWebhookInvalid)
	}

	var cb callback
	if err := json.Unmarshal(body, &cb); err != nil || cb.OrderID == "" {
		return gateway.WebhookEvent{}, fmt.Errorf("bad payload: %w", apperrors.ErrWebhookInvalid)
	}

	var status models.PaymentStatus
	switch cb.Event {
	case EventSucceeded:
		status = models.PaymentCompleted
	case EventFailed:
		status = models.PaymentFailed
	case EventCancelled, EventExpired:
		status = models.PaymentCancelled
	case EventRefunded:
		status = models.PaymentRefunded
	default:
		status = models.PaymentPending
	}

	return gateway.WebhookEvent{
		OrderID:        cb.OrderID,
		Status:         status,
		ProviderStatus: cb.Event,
		Raw:            map[string]any{"event": cb.Event, "order_id": cb.OrderID},
	}, nil
}
