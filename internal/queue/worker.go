package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"walletpulse/internal/consensus"
	"walletpulse/internal/lots"
	"walletpulse/internal/models"
	"walletpulse/internal/repository"
)

// Worker drains the processing queue. Each worker claims jobs one at a time
// through the pending->processing compare-and-swap, so any number of workers
// can run against the same table without double-processing.
type Worker struct {
	Repo      repository.Repository
	Lots      *lots.Service
	Consensus *consensus.Detector
	Logger    *zap.Logger

	DrainInterval time.Duration
	RetryDelay    time.Duration
	MaxAttempts   int
}

func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.Repo == nil {
		return nil
	}
	interval := w.DrainInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain claims and runs jobs until the queue is momentarily empty.
func (w *Worker) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := w.Repo.ClaimNextJob(ctx, time.Now().UTC())
		if err != nil {
			if w.Logger != nil {
				w.Logger.Warn("claim job failed", zap.Error(err))
			}
			return
		}
		if job == nil {
			return
		}
		w.runJob(ctx, job)
	}
}

func (w *Worker) runJob(ctx context.Context, job *models.QueueJob) {
	err := w.dispatch(ctx, job)
	if err == nil {
		if err := w.Repo.MarkJobCompleted(ctx, job.ID); err != nil && w.Logger != nil {
			w.Logger.Error("mark job completed", zap.Uint64("job_id", job.ID), zap.Error(err))
		}
		return
	}

	retryDelay := w.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 30 * time.Second
	}
	maxAttempts := w.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 8
	}
	if markErr := w.Repo.MarkJobFailed(ctx, job.ID, err.Error(), retryDelay, maxAttempts); markErr != nil && w.Logger != nil {
		w.Logger.Error("mark job failed", zap.Uint64("job_id", job.ID), zap.Error(markErr))
	}
	if w.Logger != nil {
		w.Logger.Warn("job failed",
			zap.Uint64("job_id", job.ID),
			zap.String("job_type", job.JobType),
			zap.Int("attempts", job.Attempts),
			zap.Error(err),
		)
	}
}

func (w *Worker) dispatch(ctx context.Context, job *models.QueueJob) error {
	var payload models.JobPayload
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
	}

	switch job.JobType {
	case models.JobLotRecompute:
		if w.Lots == nil {
			return fmt.Errorf("lot service unavailable")
		}
		var tokenID *string
		if payload.TokenID != "" {
			tokenID = &payload.TokenID
		}
		return w.Lots.Recompute(ctx, job.WalletID, tokenID)
	case models.JobConsensusCheck:
		if w.Consensus == nil {
			return fmt.Errorf("consensus detector unavailable")
		}
		trade, err := w.Repo.GetTradeByID(ctx, payload.TradeID)
		if err != nil {
			return fmt.Errorf("load trade: %w", err)
		}
		if trade == nil {
			// Trade vanished under a correction; nothing to check.
			return nil
		}
		return w.Consensus.CheckAfterBuy(ctx, trade.ID, trade.TokenID, trade.WalletID, trade.TradeTime)
	default:
		return fmt.Errorf("unknown job type %q", job.JobType)
	}
}
