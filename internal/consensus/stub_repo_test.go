package consensus

import (
	"context"
	"time"

	"gorm.io/gorm"

	"walletpulse/internal/models"
	"walletpulse/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// Detector tests exercise the buy-history lookup and the signal table.
type stubRepo struct {
	buys    []models.Trade
	signals []models.Signal
	updated int
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func (s *stubRepo) CreateWallet(ctx context.Context, item *models.Wallet) error { return nil }
func (s *stubRepo) GetWalletByID(ctx context.Context, id uint64) (*models.Wallet, error) {
	return nil, nil
}
func (s *stubRepo) GetWalletByAddress(ctx context.Context, address string) (*models.Wallet, error) {
	return nil, nil
}
func (s *stubRepo) FindActiveWalletsByAddresses(ctx context.Context, addresses []string) ([]models.Wallet, error) {
	return nil, nil
}
func (s *stubRepo) ListWallets(ctx context.Context, params repository.ListWalletsParams) ([]models.Wallet, error) {
	return nil, nil
}
func (s *stubRepo) CountWallets(ctx context.Context, params repository.ListWalletsParams) (int64, error) {
	return 0, nil
}

func (s *stubRepo) InsertStagedTrade(ctx context.Context, item *models.StagedTrade) (bool, error) {
	return false, nil
}
func (s *stubRepo) ListRunnableStagedTrades(ctx context.Context, limit int) ([]models.StagedTrade, error) {
	return nil, nil
}
func (s *stubRepo) MarkStagedProcessed(ctx context.Context, id uint64) error { return nil }
func (s *stubRepo) MarkStagedFailed(ctx context.Context, id uint64, errMsg string) error {
	return nil
}
func (s *stubRepo) DeleteStagedTrade(ctx context.Context, id uint64) error { return nil }

func (s *stubRepo) InsertTrade(ctx context.Context, item *models.Trade) (bool, error) {
	return false, nil
}
func (s *stubRepo) GetTradeByID(ctx context.Context, id uint64) (*models.Trade, error) {
	return nil, nil
}
func (s *stubRepo) ListWalletTradeHistory(ctx context.Context, walletID uint64, tokenID *string) ([]models.Trade, error) {
	return nil, nil
}
func (s *stubRepo) ListBuyTradesForToken(ctx context.Context, tokenID string, since, until time.Time) ([]models.Trade, error) {
	var out []models.Trade
	for _, t := range s.buys {
		if t.TokenID != tokenID || t.Side != models.SideBuy {
			continue
		}
		if t.TradeTime.Before(since) || t.TradeTime.After(until) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}
func (s *stubRepo) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.Trade, error) {
	return nil, nil
}
func (s *stubRepo) CountTrades(ctx context.Context, params repository.ListTradesParams) (int64, error) {
	return 0, nil
}

func (s *stubRepo) ReplaceWalletLots(ctx context.Context, walletID uint64, tokenID *string, lots []models.ClosedLot, positions []models.OpenPosition) error {
	return nil
}
func (s *stubRepo) ListClosedLots(ctx context.Context, params repository.ListLotsParams) ([]models.ClosedLot, error) {
	return nil, nil
}
func (s *stubRepo) CountClosedLots(ctx context.Context, params repository.ListLotsParams) (int64, error) {
	return 0, nil
}
func (s *stubRepo) ListOpenPositions(ctx context.Context, params repository.ListPositionsParams) ([]models.OpenPosition, error) {
	return nil, nil
}

func (s *stubRepo) InsertSignal(ctx context.Context, item *models.Signal) error {
	item.ID = uint64(len(s.signals) + 1)
	s.signals = append(s.signals, *item)
	return nil
}
func (s *stubRepo) UpdateSignal(ctx context.Context, item *models.Signal) error {
	s.updated++
	for i := range s.signals {
		if s.signals[i].ID == item.ID {
			s.signals[i] = *item
			return nil
		}
	}
	return nil
}
func (s *stubRepo) FindOverlappingSignal(ctx context.Context, tokenID, model string, start, end time.Time) (*models.Signal, error) {
	for i := range s.signals {
		sig := s.signals[i]
		if sig.TokenID != tokenID || sig.Model != model {
			continue
		}
		if !sig.ClusterStart.After(end) && !sig.ClusterEnd.Before(start) {
			return &s.signals[i], nil
		}
	}
	return nil, nil
}
func (s *stubRepo) ListSignals(ctx context.Context, params repository.ListSignalsParams) ([]models.Signal, error) {
	return nil, nil
}
func (s *stubRepo) CountSignals(ctx context.Context, params repository.ListSignalsParams) (int64, error) {
	return 0, nil
}
func (s *stubRepo) ExpireDueSignals(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (s *stubRepo) EnqueueJob(ctx context.Context, item *models.QueueJob) error { return nil }
func (s *stubRepo) ClaimNextJob(ctx context.Context, now time.Time) (*models.QueueJob, error) {
	return nil, nil
}
func (s *stubRepo) MarkJobCompleted(ctx context.Context, id uint64) error { return nil }
func (s *stubRepo) MarkJobFailed(ctx context.Context, id uint64, errMsg string, retryDelay time.Duration, maxAttempts int) error {
	return nil
}
func (s *stubRepo) ResetStaleProcessingJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}
func (s *stubRepo) ListWalletIDsWithTrades(ctx context.Context) ([]uint64, error) { return nil, nil }
