// Package paymentpoller asks poll-capable providers for the status of pending payments.
// Webhook-only providers are skipped: their payments move only on callbacks.
package paymentpoller

import (
	"context"
	"time"

	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/service/gateway"
)

const (
	defaultCountWorkers    = 4                // Number of workers checking payments
	defaultProduceInterval = 30 * time.Second // Interval for listing pending payments
	defaultBatchSize       = 100
)

type providers interface {
	Get(name string) (gateway.Provider, error)
	Pollable() []string
}

type paymentService interface {
	ListPending(ctx context.Context, providers []string, limit int) ([]models.Payment, error)
	ApplyStatus(ctx context.Context, orderID string, status models.PaymentStatus, raw map[string]any) (models.Payment, error)
}

type Config struct {
	Interval     time.Duration
	CountWorkers int
	BatchSize    int
}

type Poller struct {
	consumer *Consumer
	producer *Producer
	logger   logger.Logger
}

func New(cfg Config, registry providers, payments paymentService, l logger.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultProduceInterval
	}
	if cfg.CountWorkers <= 0 {
		cfg.CountWorkers = defaultCountWorkers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	return &Poller{
		consumer: &Consumer{
			countWorkers: cfg.CountWorkers,
			providers:    registry,
			payments:     payments,
			logger:       l,
		},
		producer: &Producer{
			interval:  cfg.Interval,
			batchSize: cfg.BatchSize,
			providers: registry,
			payments:  payments,
			logger:    l,
		},
		logger: l,
	}
}

// Poll runs until ctx is done; returned channel is closed when all workers stopped
func (p *Poller) Poll(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	paymentChan := make(chan models.Payment)

	producerStopped := p.producer.Produce(ctx, paymentChan)
	consumerStopped := p.consumer.Consume(ctx, paymentChan)

	go func() {
		defer close(idleStopped)
		defer close(paymentChan)
		<-producerStopped
		<-consumerStopped
		p.logger.Debug("PaymentPoller stopped")
	}()

	return idleStopped
}
