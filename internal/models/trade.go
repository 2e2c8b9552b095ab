package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is a priced ledger entry. Rows are append-only: corrections delete
// the originating StagedTrade and reprocess, they never mutate a Trade.
type Trade struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	TxSignature string `gorm:"type:varchar(100);not null;uniqueIndex:idx_trade_identity,priority:1" json:"tx_signature"`
	WalletID    uint64 `gorm:"not null;uniqueIndex:idx_trade_identity,priority:2;index:idx_trade_wallet_token" json:"wallet_id"`
	Side        string `gorm:"type:varchar(10);not null;uniqueIndex:idx_trade_identity,priority:3" json:"side"`

	TokenID string `gorm:"type:varchar(64);not null;index:idx_trade_wallet_token;index" json:"token_id"`

	AmountToken       decimal.Decimal `gorm:"type:numeric(36,18);not null" json:"amount_token"`
	AmountBase        decimal.Decimal `gorm:"type:numeric(36,18);not null" json:"amount_base"`
	BaseSymbol        string          `gorm:"type:varchar(10);not null" json:"base_symbol"`
	PriceBasePerToken decimal.Decimal `gorm:"type:numeric(36,18);not null" json:"price_base_per_token"`

	// Valuation provenance. ValueUSD is nil for void trades.
	ValueUSD         *decimal.Decimal `gorm:"column:value_usd;type:numeric(36,18)" json:"value_usd,omitempty"`
	PriceUSDPerToken *decimal.Decimal `gorm:"column:price_usd_per_token;type:numeric(36,18)" json:"price_usd_per_token,omitempty"`
	PriceSource      string           `gorm:"type:varchar(30);not null" json:"price_source"`

	TradeTime time.Time `gorm:"type:timestamptz;not null;index" json:"trade_time"`
	Dex       string    `gorm:"type:varchar(50)" json:"dex"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
}

func (Trade) TableName() string {
	return "trades"
}
