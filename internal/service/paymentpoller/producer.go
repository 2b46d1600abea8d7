package paymentpoller

import (
	"context"
	"time"

	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/models"
)

type Producer struct {
	interval  time.Duration
	batchSize int
	providers providers
	payments  paymentService
	logger    logger.Logger
}

func (p *Producer) Produce(ctx context.Context, out chan<- models.Payment) <-chan struct{} {
	idleStopped := make(chan struct{})
	p.logger.Debug("Starting producer", "interval", p.interval, "batch_size", p.batchSize)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("Producer stopped by context")
				return

			case <-ticker.C:
				pollable := p.providers.Pollable()
				if len(pollable) == 0 {
					continue
				}

				payments, err := p.payments.ListPending(ctx, pollable, p.batchSize)
				if err != nil {
					p.logger.Error("Failed to list pending payments", "error", err)
					continue
				}

				for _, payment := range payments {
					select {
					case <-ctx.Done():
						p.logger.Debug("Producer stopped by context while sending payments")
						return
					case out <- payment:
					}
				}
			}
		}
	}()

	return idleStopped
}
