// Package upi talks to a REST UPI aggregator able to report order status on request.
package upi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/service/gateway"
)

const (
	Name = "upi"

	SignatureHeader   = "X-Upi-Signature"
	defaultRetryAfter = 60 * time.Second
	requestTimeout    = 10 * time.Second
)

type Config struct {
	APIURL      string
	APIKey      string
	CallbackURL string
}

type Client struct {
	cfg    Config
	client *http.Client
	logger logger.Logger
}

func New(cfg Config, l logger.Logger) *Client {
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: requestTimeout},
		logger: l,
	}
}

func (c *Client) Name() string     { return Name }
func (c *Client) Pollable() bool   { return true }
func (c *Client) Configured() bool { return c.cfg.APIURL != "" && c.cfg.APIKey != "" }

type createOrderRequest struct {
	OrderID     string          `json:"orderId"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	CallbackURL string          `json:"callbackUrl,omitempty"`
}

type orderResponse struct {
	OrderID    string `json:"orderId"`
	Status     string `json:"status"`
	PaymentURL string `json:"paymentUrl"`
}

func (c *Client) CreatePayment(ctx context.Context, req gateway.CreateRequest) (gateway.CreateResult, error) {
	body, err := json.Marshal(createOrderRequest{
		OrderID:     req.OrderID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		CallbackURL: c.cfg.CallbackURL,
	})
	if err != nil {
		return gateway.CreateResult{}, fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/v1/orders", body)
	if err != nil {
		return gateway.CreateResult{}, err
	}
	defer resp.Body.Close() // nolint:errcheck

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var o orderResponse
		if err := json.Unmarshal(raw, &o); err != nil || o.PaymentURL == "" {
			return failed("malformed provider response", resp.StatusCode, raw), nil
		}
		return gateway.CreateResult{Success: true, PaymentURL: o.PaymentURL, OrderID: req.OrderID}, nil
	case http.StatusTooManyRequests:
		return gateway.CreateResult{}, c.throttled(resp)
	default:
		c.logger.Warn("upi order rejected", "status_code", resp.StatusCode, "order_id", req.OrderID)
		return failed("provider rejected order", resp.StatusCode, raw), nil
	}
}

func (c *Client) CheckStatus(ctx context.Context, orderID string) (models.PaymentStatus, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return models.PaymentPending, err
	}
	defer resp.Body.Close() // nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
		var o orderResponse
		if err := json.NewDecoder(resp.Body).Decode(&o); err != nil {
			return models.PaymentPending, gateway.NewProviderError(gateway.CodeUnknown, 0, fmt.Errorf("failed to decode response: %w", err))
		}
		c.logger.Debug("upi status", "order_id", orderID, "status", o.Status)
		return MapStatus(o.Status), nil
	case http.StatusNotFound:
		return models.PaymentPending, gateway.NewProviderError(gateway.CodeNotFound, 0, fmt.Errorf("order %s unknown to provider", orderID))
	case http.StatusTooManyRequests:
		return models.PaymentPending, c.throttled(resp)
	default:
		return models.PaymentPending, gateway.NewProviderError(gateway.CodeUnknown, 0, fmt.Errorf("unknown status code %d for order %s", resp.StatusCode, orderID))
	}
}

type webhookPayload struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

func (c *Client) ParseWebhook(_ context.Context, header http.Header, body []byte) (gateway.WebhookEvent, error) {
	if !gateway.VerifySignature(c.cfg.APIKey, body, header.Get(SignatureHeader)) {
		return gateway.WebhookEvent{}, fmt.Errorf("bad signature: %w", apperrors.ErrWebhookInvalid)
	}

	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil || p.OrderID == "" {
		return gateway.WebhookEvent{}, fmt.Errorf("bad payload: %w", apperrors.ErrWebhookInvalid)
	}

	return gateway.WebhookEvent{
		OrderID:        p.OrderID,
		Status:         MapStatus(p.Status),
		ProviderStatus: p.Status,
		Raw:            map[string]any{"orderId": p.OrderID, "status": p.Status},
	}, nil
}

// MapStatus maps aggregator vocabulary onto canonical status
// Unknown values are treated as still pending
func MapStatus(status string) models.PaymentStatus {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "SUCCESS", "PAID", "CAPTURED", "COMPLETED":
		return models.PaymentCompleted
	case "FAILURE", "FAILED", "DECLINED", "ERROR":
		return models.PaymentFailed
	case "CANCELLED", "CANCELED", "EXPIRED", "USER_DROPPED", "TIMEOUT":
		return models.PaymentCancelled
	case "REFUNDED", "PARTIALLY_REFUNDED":
		return models.PaymentRefunded
	default:
		return models.PaymentPending
	}
}

func (c *Client) do(ctx context.Context, method string, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.APIURL, "/")+path, reader)
	if err != nil {
		return nil, gateway.NewProviderError(gateway.CodeUnknown, 0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, gateway.NewProviderError(gateway.CodeUnknown, 0, fmt.Errorf("failed to send request: %w", err))
	}
	return resp, nil
}

func (c *Client) throttled(resp *http.Response) error {
	retryAfter := defaultRetryAfter
	if seconds, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil {
		retryAfter = time.Duration(seconds) * time.Second
	}

	c.logger.Warn("upi provider throttled", "retry_after", retryAfter)
	return gateway.NewProviderError(gateway.CodeRetryAfter, retryAfter, fmt.Errorf("retry after %s", retryAfter))
}

func failed(msg string, statusCode int, raw []byte) gateway.CreateResult {
	return gateway.CreateResult{
		Success: false,
		Error:   msg,
		Diagnostic: map[string]any{
			"provider":   Name,
			"statusCode": statusCode,
			"body":       string(raw),
		},
	}
}
