package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Status tracks a used address through the refund lifecycle.
type Status string

// Address statuses.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusBadState   Status = "bad_state"
)

// UsedAddress records a payment address that has received funds.
type UsedAddress struct {
	ID              string    `gorm:"primaryKey;size:128"`
	Status          Status    `gorm:"size:32;index:idx_used_addresses_status_added,priority:1"`
	DateAdded       time.Time `gorm:"index:idx_used_addresses_status_added,priority:2"`
	TxID            string    `gorm:"size:128"`
	CreatedBySystem string    `gorm:"size:64"`
	UpdatedAt       time.Time
}

// PaidSession records the cost of the session a payment address funded.
type PaidSession struct {
	PaymentAddress string `gorm:"primaryKey;size:128"`
	ReturnAddress  string `gorm:"size:128"`
	Cost           int64  `gorm:"not null"`
	Metadata       string `gorm:"type:text"`
	CreatedAt      time.Time
}

// CronLock is a named lease serialising job runs across processes.
type CronLock struct {
	Name       string `gorm:"primaryKey;size:64"`
	Owner      string `gorm:"size:64"`
	Locked     bool   `gorm:"not null"`
	AcquiredAt time.Time
	ExpiresAt  time.Time `gorm:"index"`
}

// RunRecord is the audit trail of a single refund job run.
type RunRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	StartedAt  time.Time `gorm:"index"`
	FinishedAt time.Time
	Outcome    string `gorm:"size:32;index"`
	Candidates int
	Refunds    int
	Settled    int
	BadState   int
	Skipped    int
	Amount     int64
	TxID       string `gorm:"size:128"`
	Error      string `gorm:"type:text"`
}

// TableName pins the audit table name.
func (RunRecord) TableName() string { return "refund_runs" }

// AutoMigrate performs all schema migrations for the service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UsedAddress{},
		&PaidSession{},
		&CronLock{},
		&RunRecord{},
	)
}
