package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"walletpulse/internal/models"
)

// Repository is the persistence surface shared by the normalizer, the
// ingestion worker, the lot engine, the consensus detector, and the queue.
// Uniqueness constraints (staged/trade identity, position per wallet+token)
// are enforced by the storage layer, not here.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Wallets
	CreateWallet(ctx context.Context, item *models.Wallet) error
	GetWalletByID(ctx context.Context, id uint64) (*models.Wallet, error)
	GetWalletByAddress(ctx context.Context, address string) (*models.Wallet, error)
	FindActiveWalletsByAddresses(ctx context.Context, addresses []string) ([]models.Wallet, error)
	ListWallets(ctx context.Context, params ListWalletsParams) ([]models.Wallet, error)
	CountWallets(ctx context.Context, params ListWalletsParams) (int64, error)

	// Staged trades
	// InsertStagedTrade reports inserted=false when the identity tuple
	// already exists (duplicate delivery), which is not an error.
	InsertStagedTrade(ctx context.Context, item *models.StagedTrade) (inserted bool, err error)
	ListRunnableStagedTrades(ctx context.Context, limit int) ([]models.StagedTrade, error)
	MarkStagedProcessed(ctx context.Context, id uint64) error
	MarkStagedFailed(ctx context.Context, id uint64, errMsg string) error
	DeleteStagedTrade(ctx context.Context, id uint64) error

	// Trades
	InsertTrade(ctx context.Context, item *models.Trade) (inserted bool, err error)
	GetTradeByID(ctx context.Context, id uint64) (*models.Trade, error)
	ListWalletTradeHistory(ctx context.Context, walletID uint64, tokenID *string) ([]models.Trade, error)
	ListBuyTradesForToken(ctx context.Context, tokenID string, since, until time.Time) ([]models.Trade, error)
	ListTrades(ctx context.Context, params ListTradesParams) ([]models.Trade, error)
	CountTrades(ctx context.Context, params ListTradesParams) (int64, error)

	// Derived lots & positions. ReplaceWalletLots swaps the whole derived
	// set for the given wallet (and token scope) in one transaction.
	ReplaceWalletLots(ctx context.Context, walletID uint64, tokenID *string, lots []models.ClosedLot, positions []models.OpenPosition) error
	ListClosedLots(ctx context.Context, params ListLotsParams) ([]models.ClosedLot, error)
	CountClosedLots(ctx context.Context, params ListLotsParams) (int64, error)
	ListOpenPositions(ctx context.Context, params ListPositionsParams) ([]models.OpenPosition, error)

	// Signals
	InsertSignal(ctx context.Context, item *models.Signal) error
	UpdateSignal(ctx context.Context, item *models.Signal) error
	FindOverlappingSignal(ctx context.Context, tokenID, model string, start, end time.Time) (*models.Signal, error)
	ListSignals(ctx context.Context, params ListSignalsParams) ([]models.Signal, error)
	CountSignals(ctx context.Context, params ListSignalsParams) (int64, error)
	ExpireDueSignals(ctx context.Context, now time.Time) (int64, error)

	// Processing queue
	EnqueueJob(ctx context.Context, item *models.QueueJob) error
	ClaimNextJob(ctx context.Context, now time.Time) (*models.QueueJob, error)
	MarkJobCompleted(ctx context.Context, id uint64) error
	MarkJobFailed(ctx context.Context, id uint64, errMsg string, retryDelay time.Duration, maxAttempts int) error
	ResetStaleProcessingJobs(ctx context.Context, olderThan time.Duration) (int64, error)
	ListWalletIDsWithTrades(ctx context.Context) ([]uint64, error)
}

type ListWalletsParams struct {
	Limit   int
	Offset  int
	Active  *bool
	OrderBy string
	Asc     *bool
}

type ListTradesParams struct {
	Limit    int
	Offset   int
	WalletID *uint64
	TokenID  *string
	Side     *string
	Since    *time.Time
	Until    *time.Time
	OrderBy  string
	Asc      *bool
}

type ListLotsParams struct {
	Limit    int
	Offset   int
	WalletID *uint64
	TokenID  *string
	OrderBy  string
	Asc      *bool
}

type ListPositionsParams struct {
	Limit    int
	Offset   int
	WalletID *uint64
	TokenID  *string
}

type ListSignalsParams struct {
	Limit    int
	Offset   int
	Status   *string
	TokenID  *string
	WalletID *uint64
	Since    *time.Time
	OrderBy  string
	Asc      *bool
}
