package lots

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"walletpulse/internal/repository"
)

// Service recomputes and persists one wallet's derived lot state.
type Service struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

// Recompute rebuilds closed lots and open positions for the wallet from its
// full trade history and swaps the stored derived set atomically. tokenID
// narrows both the history and the replacement scope to one token.
func (s *Service) Recompute(ctx context.Context, walletID uint64, tokenID *string) error {
	if s == nil || s.Repo == nil {
		return fmt.Errorf("lot service not initialized")
	}
	trades, err := s.Repo.ListWalletTradeHistory(ctx, walletID, tokenID)
	if err != nil {
		return fmt.Errorf("load trade history: %w", err)
	}

	closed, positions := ProcessTrades(trades)

	if err := s.Repo.ReplaceWalletLots(ctx, walletID, tokenID, closed, positions); err != nil {
		return fmt.Errorf("replace lots: %w", err)
	}
	if s.Logger != nil {
		s.Logger.Info("lots recomputed",
			zap.Uint64("wallet_id", walletID),
			zap.Int("closed_lots", len(closed)),
			zap.Int("open_positions", len(positions)),
		)
	}
	return nil
}
