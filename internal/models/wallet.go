package models

import "time"

// Wallet is a tracked ("smart") wallet. The normalizer only stages trades
// whose participants resolve to an active row in this table.
type Wallet struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Address   string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"address"`
	Label     string    `gorm:"type:varchar(100)" json:"label"`
	Active    bool      `gorm:"not null;default:true;index" json:"active"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string {
	return "wallets"
}
