package models

import (
	"time"

	"gorm.io/datatypes"
)

// Signal statuses.
const (
	SignalActive   = "active"
	SignalExecuted = "executed"
	SignalExpired  = "expired"
)

// ModelConsensus marks signals produced by the consensus detector.
const ModelConsensus = "consensus"

// Signal is an alert emitted when multiple tracked wallets act on the same
// token inside a chained time window. Meta carries wallet_count, the wallet
// list, and the cluster bounds; uniqueness is per (token, cluster), so a
// late trade extends the stored row instead of inserting a second one.
type Signal struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	SignalType string `gorm:"type:varchar(10);not null;index" json:"signal_type"`
	Model      string `gorm:"type:varchar(30);not null;index" json:"model"`

	WalletID        uint64 `gorm:"not null;index" json:"wallet_id"`
	TokenID         string `gorm:"type:varchar(64);not null;index" json:"token_id"`
	OriginalTradeID uint64 `gorm:"not null" json:"original_trade_id"`

	Meta datatypes.JSON `gorm:"type:jsonb" json:"meta"`

	// Cluster bounds are denormalized out of Meta so the overlap lookup is a
	// plain indexed range query instead of a jsonb scan.
	ClusterStart time.Time `gorm:"type:timestamptz;not null;index:idx_signal_cluster" json:"cluster_start"`
	ClusterEnd   time.Time `gorm:"type:timestamptz;not null;index:idx_signal_cluster" json:"cluster_end"`

	Status    string     `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	ExpiresAt *time.Time `gorm:"type:timestamptz;index" json:"expires_at,omitempty"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (Signal) TableName() string {
	return "signals"
}

// SignalMeta is the decoded shape of Signal.Meta.
type SignalMeta struct {
	WalletCount  int       `json:"wallet_count"`
	Wallets      []uint64  `json:"wallets"`
	ClusterStart time.Time `json:"cluster_start"`
	ClusterEnd   time.Time `json:"cluster_end"`
}
