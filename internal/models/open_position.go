package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OpenPosition is the unmatched remainder of a wallet's buy lots for one
// token. Derived alongside ClosedLots and replaced wholesale with them.
type OpenPosition struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	WalletID uint64 `gorm:"not null;uniqueIndex:idx_position_wallet_token" json:"wallet_id"`
	TokenID  string `gorm:"type:varchar(64);not null;uniqueIndex:idx_position_wallet_token" json:"token_id"`

	Size          decimal.Decimal `gorm:"type:numeric(36,18);not null" json:"size"`
	AvgEntryPrice decimal.Decimal `gorm:"type:numeric(36,18);not null" json:"avg_entry_price"`
	CostBasis     decimal.Decimal `gorm:"type:numeric(36,18);not null" json:"cost_basis"`

	FirstEntryTime time.Time `gorm:"type:timestamptz;not null" json:"first_entry_time"`
	UpdatedAt      time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (OpenPosition) TableName() string {
	return "open_positions"
}
