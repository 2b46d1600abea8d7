// Package manual is the bank transfer provider: users pay outside and prove it with UTR and screenshot.
package manual

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/service/gateway"
)

const (
	Name = "manual"

	verificationPath = "/deposit/verify"
)

type BankTransfer struct {
	publicURL string
}

func New(publicURL string) *BankTransfer {
	return &BankTransfer{publicURL: strings.TrimRight(publicURL, "/")}
}

func (b *BankTransfer) Name() string     { return Name }
func (b *BankTransfer) Pollable() bool   { return false }
func (b *BankTransfer) Configured() bool { return true }

// CreatePayment points the user to the verification page of the order
func (b *BankTransfer) CreatePayment(_ context.Context, req gateway.CreateRequest) (gateway.CreateResult, error) {
	q := url.Values{}
	q.Set("orderId", req.OrderID)

	return gateway.CreateResult{
		Success:    true,
		PaymentURL: b.publicURL + verificationPath + "?" + q.Encode(),
		OrderID:    req.OrderID,
	}, nil
}

// Status is driven by deposit verification
func (b *BankTransfer) CheckStatus(context.Context, string) (models.PaymentStatus, error) {
	return models.PaymentPending, nil
}

func (b *BankTransfer) ParseWebhook(context.Context, http.Header, []byte) (gateway.WebhookEvent, error) {
	return gateway.WebhookEvent{}, fmt.Errorf("bank transfers have no callbacks: %w", apperrors.ErrWebhookInvalid)
}
