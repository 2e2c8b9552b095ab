package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClosedLot is a fully matched buy/sell pairing (or spanned portion of one)
// produced by the lot matching engine. The whole set for a wallet+token is
// replaced transactionally on every recomputation.
type ClosedLot struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	WalletID uint64 `gorm:"not null;index:idx_lot_wallet_token" json:"wallet_id"`
	TokenID  string `gorm:"type:varchar(64);not null;index:idx_lot_wallet_token" json:"token_id"`

	EntryTime time.Time `gorm:"type:timestamptz;not null" json:"entry_time"`
	ExitTime  time.Time `gorm:"type:timestamptz;not null;index" json:"exit_time"`

	Size       decimal.Decimal `gorm:"type:numeric(36,18);not null" json:"size"`
	EntryPrice decimal.Decimal `gorm:"type:numeric(36,18);not null" json:"entry_price"`
	ExitPrice  decimal.Decimal `gorm:"type:numeric(36,18);not null" json:"exit_price"`

	CostBasis          decimal.Decimal `gorm:"type:numeric(36,18);not null" json:"cost_basis"`
	Proceeds           decimal.Decimal `gorm:"type:numeric(36,18);not null" json:"proceeds"`
	RealizedPnL        decimal.Decimal `gorm:"column:realized_pnl;type:numeric(36,18);not null" json:"realized_pnl"`
	RealizedPnLPercent decimal.Decimal `gorm:"column:realized_pnl_percent;type:numeric(20,8);not null" json:"realized_pnl_percent"`

	// CostKnown is false when the matched buy predates tracking and the cost
	// basis is an earliest-known-price estimate.
	CostKnown bool `gorm:"not null;default:true" json:"cost_known"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
}

func (ClosedLot) TableName() string {
	return "closed_lots"
}
