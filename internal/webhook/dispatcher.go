package webhook

import (
	"context"

	"go.uber.org/zap"
)

// Dispatcher decouples webhook acknowledgment from processing. The HTTP
// handler submits the raw body and returns immediately; this consumer is the
// only place normalization failures are observed, so they are logged here
// and never surface to the provider (which would trigger redelivery storms).
type Dispatcher struct {
	Normalizer *Normalizer
	Logger     *zap.Logger

	queue chan []byte
}

func NewDispatcher(normalizer *Normalizer, logger *zap.Logger, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 512
	}
	return &Dispatcher{
		Normalizer: normalizer,
		Logger:     logger,
		queue:      make(chan []byte, queueSize),
	}
}

// Submit enqueues a payload for background normalization. It never blocks:
// when the queue is full the payload is dropped and reported false, and the
// provider's redelivery becomes the retry path.
func (d *Dispatcher) Submit(raw []byte) bool {
	if d == nil || d.queue == nil {
		return false
	}
	body := make([]byte, len(raw))
	copy(body, raw)
	select {
	case d.queue <- body:
		return true
	default:
		if d.Logger != nil {
			d.Logger.Warn("webhook queue full, payload dropped", zap.Int("size", len(raw)))
		}
		return false
	}
}

func (d *Dispatcher) Run(ctx context.Context) error {
	if d == nil || d.queue == nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw := <-d.queue:
			res, err := d.Normalizer.ProcessPayload(ctx, raw)
			if err != nil {
				if d.Logger != nil {
					d.Logger.Warn("webhook payload rejected", zap.Error(err))
				}
				continue
			}
			if d.Logger != nil && (res.Staged > 0 || res.Duplicates > 0) {
				d.Logger.Info("webhook payload processed",
					zap.Int("staged", res.Staged),
					zap.Int("duplicates", res.Duplicates),
					zap.Int("skipped", res.Skipped),
				)
			}
		}
	}
}
