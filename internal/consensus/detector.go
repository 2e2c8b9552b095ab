package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"walletpulse/internal/models"
	"walletpulse/internal/repository"
)

// Detector finds clusters of distinct wallets buying the same token inside a
// chained sliding window. Chaining means each buy extends the cluster as long
// as the gap to the previous buy stays within the window, so a cluster can
// span longer than one window end to end.
type Detector struct {
	Repo   repository.Repository
	Logger *zap.Logger

	Window     time.Duration
	MinWallets int
	SignalTTL  time.Duration
}

// CheckAfterBuy re-evaluates consensus for the token after a new buy has
// landed in the ledger. One signal exists per (token, cluster): when the new
// buy falls inside an already-signaled cluster the stored signal is extended
// in place, otherwise a fresh one is inserted.
func (d *Detector) CheckAfterBuy(ctx context.Context, tradeID uint64, tokenID string, walletID uint64, ts time.Time) error {
	if d == nil || d.Repo == nil {
		return fmt.Errorf("detector not initialized")
	}
	window := d.Window
	if window <= 0 {
		window = 2 * time.Hour
	}
	minWallets := d.MinWallets
	if minWallets <= 0 {
		minWallets = 2
	}

	buys, err := d.loadChainedBuys(ctx, tokenID, ts, window)
	if err != nil {
		return fmt.Errorf("load recent buys: %w", err)
	}
	cluster := clusterAround(buys, ts, window)
	if cluster == nil {
		return nil
	}

	wallets := distinctWallets(cluster)
	if len(wallets) < minWallets {
		return nil
	}

	start := cluster[0].TradeTime
	end := cluster[len(cluster)-1].TradeTime

	existing, err := d.Repo.FindOverlappingSignal(ctx, tokenID, models.ModelConsensus, start, end)
	if err != nil {
		return fmt.Errorf("lookup signal: %w", err)
	}

	if existing != nil {
		if existing.Status != models.SignalActive {
			return nil
		}
		// The fresh cluster may see fewer wallets than the stored signal
		// (corrections, partial history); extension only ever adds.
		var stored models.SignalMeta
		if len(existing.Meta) > 0 {
			if err := json.Unmarshal(existing.Meta, &stored); err != nil {
				return fmt.Errorf("decode stored meta: %w", err)
			}
		}
		wallets = unionWallets(stored.Wallets, wallets)
		if existing.ClusterStart.Before(start) {
			start = existing.ClusterStart
		}
		if existing.ClusterEnd.After(end) {
			end = existing.ClusterEnd
		}
		meta, err := json.Marshal(models.SignalMeta{
			WalletCount:  len(wallets),
			Wallets:      wallets,
			ClusterStart: start,
			ClusterEnd:   end,
		})
		if err != nil {
			return fmt.Errorf("encode meta: %w", err)
		}
		existing.Meta = meta
		existing.ClusterStart = start
		existing.ClusterEnd = end
		if d.SignalTTL > 0 {
			expires := time.Now().UTC().Add(d.SignalTTL)
			existing.ExpiresAt = &expires
		}
		if err := d.Repo.UpdateSignal(ctx, existing); err != nil {
			return fmt.Errorf("extend signal: %w", err)
		}
		if d.Logger != nil {
			d.Logger.Info("consensus signal extended",
				zap.Uint64("signal_id", existing.ID),
				zap.String("token_id", tokenID),
				zap.Int("wallet_count", len(wallets)),
			)
		}
		return nil
	}

	meta, err := json.Marshal(models.SignalMeta{
		WalletCount:  len(wallets),
		Wallets:      wallets,
		ClusterStart: start,
		ClusterEnd:   end,
	})
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}

	signal := &models.Signal{
		SignalType:      models.SideBuy,
		Model:           models.ModelConsensus,
		WalletID:        walletID,
		TokenID:         tokenID,
		OriginalTradeID: tradeID,
		Meta:            meta,
		ClusterStart:    start,
		ClusterEnd:      end,
		Status:          models.SignalActive,
	}
	if d.SignalTTL > 0 {
		expires := time.Now().UTC().Add(d.SignalTTL)
		signal.ExpiresAt = &expires
	}
	if err := d.Repo.InsertSignal(ctx, signal); err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	if d.Logger != nil {
		d.Logger.Info("consensus signal created",
			zap.Uint64("signal_id", signal.ID),
			zap.String("token_id", tokenID),
			zap.Int("wallet_count", len(wallets)),
			zap.Time("cluster_start", start),
			zap.Time("cluster_end", end),
		)
	}
	return nil
}

// loadChainedBuys fetches one window of history on each side of ts, then
// keeps widening the fetch while the cluster touching ts reaches the edge of
// the fetched range. Chained clusters can span many windows end to end, so a
// fixed fetch bound would truncate them and undercount wallets.
func (d *Detector) loadChainedBuys(ctx context.Context, tokenID string, ts time.Time, window time.Duration) ([]models.Trade, error) {
	since := ts.Add(-window)
	until := ts.Add(window)
	buys, err := d.Repo.ListBuyTradesForToken(ctx, tokenID, since, until)
	if err != nil {
		return nil, err
	}
	seen := map[uint64]bool{}
	for _, b := range buys {
		seen[b.ID] = true
	}

	for {
		cluster := clusterAround(buys, ts, window)
		if cluster == nil {
			return buys, nil
		}
		grew := false
		if lower := cluster[0].TradeTime.Add(-window); lower.Before(since) {
			more, err := d.Repo.ListBuyTradesForToken(ctx, tokenID, lower, since)
			if err != nil {
				return nil, err
			}
			since = lower
			for _, b := range more {
				if seen[b.ID] {
					continue
				}
				seen[b.ID] = true
				buys = append(buys, b)
				grew = true
			}
		}
		if upper := cluster[len(cluster)-1].TradeTime.Add(window); upper.After(until) {
			more, err := d.Repo.ListBuyTradesForToken(ctx, tokenID, until, upper)
			if err != nil {
				return nil, err
			}
			until = upper
			for _, b := range more {
				if seen[b.ID] {
					continue
				}
				seen[b.ID] = true
				buys = append(buys, b)
				grew = true
			}
		}
		if !grew {
			return buys, nil
		}
	}
}

// clusterAround returns the chained cluster containing ts: the maximal run of
// buys, ordered by time, where each consecutive gap is at most window.
func clusterAround(buys []models.Trade, ts time.Time, window time.Duration) []models.Trade {
	if len(buys) == 0 {
		return nil
	}
	ordered := make([]models.Trade, len(buys))
	copy(ordered, buys)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].TradeTime.Before(ordered[j].TradeTime)
	})

	start := 0
	for i := 1; i < len(ordered); i++ {
		if ordered[i].TradeTime.Sub(ordered[i-1].TradeTime) > window {
			if contains(ordered[start:i], ts, window) {
				return ordered[start:i]
			}
			start = i
		}
	}
	if contains(ordered[start:], ts, window) {
		return ordered[start:]
	}
	return nil
}

// contains reports whether ts belongs to the run, allowing for ts itself
// being the buy that anchors it.
func contains(run []models.Trade, ts time.Time, window time.Duration) bool {
	if len(run) == 0 {
		return false
	}
	first, last := run[0].TradeTime, run[len(run)-1].TradeTime
	return !ts.Before(first.Add(-window)) && !ts.After(last.Add(window))
}

func unionWallets(a, b []uint64) []uint64 {
	seen := map[uint64]bool{}
	out := make([]uint64, 0, len(a)+len(b))
	for _, set := range [][]uint64{a, b} {
		for _, w := range set {
			if seen[w] {
				continue
			}
			seen[w] = true
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func distinctWallets(run []models.Trade) []uint64 {
	seen := map[uint64]bool{}
	wallets := make([]uint64, 0, len(run))
	for _, t := range run {
		if seen[t.WalletID] {
			continue
		}
		seen[t.WalletID] = true
		wallets = append(wallets, t.WalletID)
	}
	sort.Slice(wallets, func(i, j int) bool { return wallets[i] < wallets[j] })
	return wallets
}
