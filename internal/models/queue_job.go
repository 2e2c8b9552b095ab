package models

import (
	"time"

	"gorm.io/datatypes"
)

// QueueJob statuses.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobFailed     = "failed"
)

// Job types.
const (
	JobLotRecompute   = "lot_recompute"
	JobConsensusCheck = "consensus_check"
)

// QueueJob is a claim-based unit of background work. A job is claimed by a
// compare-and-swap on status=pending, which gives at-most-one concurrent
// owner without any external lock service.
type QueueJob struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	WalletID uint64 `gorm:"not null;index:idx_job_wallet_type" json:"wallet_id"`
	JobType  string `gorm:"type:varchar(30);not null;index:idx_job_wallet_type" json:"job_type"`

	Payload datatypes.JSON `gorm:"type:jsonb" json:"payload,omitempty"`

	Status   string `gorm:"type:varchar(20);not null;default:'pending';index:idx_job_claim" json:"status"`
	Priority int    `gorm:"not null;default:0" json:"priority"`
	Attempts int    `gorm:"not null;default:0" json:"attempts"`

	NextRunAt     time.Time  `gorm:"type:timestamptz;not null;index:idx_job_claim" json:"next_run_at"`
	LastAttemptAt *time.Time `gorm:"type:timestamptz" json:"last_attempt_at,omitempty"`
	LastError     *string    `gorm:"type:text" json:"last_error,omitempty"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
}

func (QueueJob) TableName() string {
	return "queue_jobs"
}

// JobPayload is the decoded shape of QueueJob.Payload.
type JobPayload struct {
	TokenID string `json:"token_id,omitempty"`
	TradeID uint64 `json:"trade_id,omitempty"`
}
