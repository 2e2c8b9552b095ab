package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"walletpulse/internal/models"
	"walletpulse/internal/repository"
	"walletpulse/internal/valuation"
)

// Valuator is the slice of the valuation resolver the worker needs.
type Valuator interface {
	Valuate(ctx context.Context, req valuation.Request) (valuation.Result, error)
}

// Worker drains staged trades into the priced ledger. Each staged trade is
// valuated and promoted independently; a valuation failure marks that row
// failed and retryable without blocking the rest of the batch.
type Worker struct {
	Repo     repository.Repository
	Valuator Valuator
	Logger   *zap.Logger

	PollInterval time.Duration
	BatchSize    int

	// DebounceWindow defers sell-triggered recomputes so a burst of sells
	// coalesces into one job scheduled after the burst.
	DebounceWindow time.Duration
}

func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.Repo == nil {
		return nil
	}
	interval := w.PollInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := w.DrainOnce(ctx); err != nil {
				if w.Logger != nil {
					w.Logger.Warn("ingest drain failed", zap.Error(err))
				}
			} else if n > 0 && w.Logger != nil {
				w.Logger.Info("staged trades promoted", zap.Int("count", n))
			}
		}
	}
}

// DrainOnce promotes one batch of runnable staged trades and returns how many
// were promoted.
func (w *Worker) DrainOnce(ctx context.Context) (int, error) {
	batchSize := w.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	staged, err := w.Repo.ListRunnableStagedTrades(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	promoted := 0
	for i := range staged {
		if ctx.Err() != nil {
			return promoted, ctx.Err()
		}
		if err := w.promote(ctx, &staged[i]); err != nil {
			if markErr := w.Repo.MarkStagedFailed(ctx, staged[i].ID, err.Error()); markErr != nil && w.Logger != nil {
				w.Logger.Error("mark staged failed", zap.Uint64("staged_id", staged[i].ID), zap.Error(markErr))
			}
			if w.Logger != nil {
				w.Logger.Warn("staged trade deferred",
					zap.Uint64("staged_id", staged[i].ID),
					zap.String("signature", staged[i].TxSignature),
					zap.Error(err),
				)
			}
			continue
		}
		promoted++
	}
	return promoted, nil
}

func (w *Worker) promote(ctx context.Context, staged *models.StagedTrade) error {
	trade := &models.Trade{
		TxSignature:       staged.TxSignature,
		WalletID:          staged.WalletID,
		Side:              staged.Side,
		TokenID:           staged.TokenID,
		AmountToken:       staged.AmountToken,
		AmountBase:        staged.AmountBaseRaw,
		BaseSymbol:        staged.BaseSymbol,
		PriceBasePerToken: staged.PriceBaseRaw,
		TradeTime:         staged.TradeTime,
		Dex:               staged.Dex,
	}

	if staged.Side == models.SideVoid {
		// Token-for-token swaps carry no base exposure, so there is nothing
		// to valuate. They are ledgered for completeness and excluded from
		// lot matching by side.
		trade.PriceSource = "none"
	} else {
		res, err := w.Valuator.Valuate(ctx, valuation.Request{
			BaseSymbol:   staged.BaseSymbol,
			AmountBase:   staged.AmountBaseRaw,
			AmountToken:  staged.AmountToken,
			PriceBaseRaw: staged.PriceBaseRaw,
			Timestamp:    staged.TradeTime,
		})
		if err != nil {
			return fmt.Errorf("valuate: %w", err)
		}
		valueUSD := res.AmountBaseUSD
		perToken := res.PriceUSDPerToken
		trade.ValueUSD = &valueUSD
		trade.PriceUSDPerToken = &perToken
		trade.PriceSource = res.Source
	}

	inserted, err := w.Repo.InsertTrade(ctx, trade)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	if err := w.Repo.MarkStagedProcessed(ctx, staged.ID); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	if !inserted {
		// Ledger row already existed from an earlier pass that failed after
		// the insert. Nothing further to fan out.
		return nil
	}

	w.fanOut(ctx, staged, trade)
	return nil
}

// fanOut schedules the derived work a new ledger row implies. Enqueue
// failures are logged, not returned: the hourly backfill sweep repairs any
// missed recompute, and consensus re-checks on the next buy.
func (w *Worker) fanOut(ctx context.Context, staged *models.StagedTrade, trade *models.Trade) {
	now := time.Now().UTC()
	switch staged.Side {
	case models.SideSell:
		// Trailing-edge debounce: the recompute runs one window after the
		// latest sell, and the pending-job dedupe in the store folds every
		// sell of the burst into that single deferred job. The recompute
		// therefore always covers the whole burst.
		window := w.DebounceWindow
		if window < 0 {
			window = 0
		}
		w.enqueue(ctx, staged.WalletID, models.JobLotRecompute, models.JobPayload{TokenID: staged.TokenID}, now.Add(window))
	case models.SideBuy:
		w.enqueue(ctx, staged.WalletID, models.JobConsensusCheck, models.JobPayload{TokenID: staged.TokenID, TradeID: trade.ID}, now)
	}
}

func (w *Worker) enqueue(ctx context.Context, walletID uint64, jobType string, payload models.JobPayload, runAt time.Time) {
	body, err := json.Marshal(payload)
	if err != nil {
		if w.Logger != nil {
			w.Logger.Error("encode job payload", zap.Error(err))
		}
		return
	}
	job := &models.QueueJob{
		WalletID:  walletID,
		JobType:   jobType,
		Payload:   body,
		Status:    models.JobPending,
		NextRunAt: runAt,
	}
	if err := w.Repo.EnqueueJob(ctx, job); err != nil && w.Logger != nil {
		w.Logger.Warn("enqueue job failed",
			zap.Uint64("wallet_id", walletID),
			zap.String("job_type", jobType),
			zap.Error(err),
		)
	}
}
