package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade sides. Closed set; the lot engine matches exhaustively on these.
const (
	SideBuy  = "buy"
	SideSell = "sell"
	SideVoid = "void"
)

// StagedTrade statuses.
const (
	StagedPending   = "pending"
	StagedProcessed = "processed"
	StagedFailed    = "failed"
)

// StagedTrade is a normalized but unpriced swap event awaiting valuation.
// Identity is (tx_signature, wallet_id, side): duplicate webhook delivery
// must collide on idx_staged_identity instead of creating a second row.
type StagedTrade struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	TxSignature string `gorm:"type:varchar(100);not null;uniqueIndex:idx_staged_identity,priority:1" json:"tx_signature"`
	WalletID    uint64 `gorm:"not null;uniqueIndex:idx_staged_identity,priority:2;index" json:"wallet_id"`
	Side        string `gorm:"type:varchar(10);not null;uniqueIndex:idx_staged_identity,priority:3" json:"side"`

	TokenID string `gorm:"type:varchar(64);not null;index" json:"token_id"`

	AmountToken decimal.Decimal `gorm:"type:numeric(36,18);not null" json:"amount_token"`
	// AmountBaseRaw stays in the swap's native base currency; USD conversion
	// happens only at valuation time.
	AmountBaseRaw decimal.Decimal `gorm:"type:numeric(36,18);not null" json:"amount_base_raw"`
	BaseSymbol    string          `gorm:"type:varchar(10);not null" json:"base_symbol"`
	PriceBaseRaw  decimal.Decimal `gorm:"type:numeric(36,18);not null" json:"price_base_raw"`

	TradeTime time.Time `gorm:"type:timestamptz;not null;index" json:"trade_time"`
	Dex       string    `gorm:"type:varchar(50)" json:"dex"`

	Status    string  `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	LastError *string `gorm:"type:text" json:"last_error,omitempty"`
	Attempts  int     `gorm:"not null;default:0" json:"attempts"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (StagedTrade) TableName() string {
	return "staged_trades"
}
