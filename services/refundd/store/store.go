package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrDriverUnsupported is returned when the configured driver is unknown.
var ErrDriverUnsupported = errors.New("store: unsupported driver")

// StatusUpdate describes a status mutation for one address. TxID is only
// written when non-empty.
type StatusUpdate struct {
	ID     string
	Status Status
	TxID   string
}

// Store persists used addresses, paid sessions and run records.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to the configured database and applies migrations.
func Open(driver, dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("store: dsn required")
	}
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		dialector = sqlite.Open(trimmed)
	case "postgres", "postgresql":
		dialector = postgres.Open(trimmed)
	default:
		return nil, fmt.Errorf("%w: %s", ErrDriverUnsupported, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: newLogger(log.Default())})
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return db, nil
}

// newLogger reports slow queries and real errors through w. Missing rows are
// an expected answer for lookups and are not logged.
func newLogger(w logger.Writer) logger.Interface {
	return logger.New(w, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// New wraps an open database handle.
func New(db *gorm.DB, now func() time.Time) (*Store, error) {
	if db == nil {
		return nil, errors.New("store: db is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, now: now}, nil
}

// RefundableAddresses returns up to limit pending addresses added before
// cutoff, oldest first.
func (s *Store) RefundableAddresses(ctx context.Context, cutoff time.Time, limit int) ([]UsedAddress, error) {
	if limit <= 0 {
		return nil, nil
	}
	var rows []UsedAddress
	err := s.db.WithContext(ctx).
		Where("status = ? AND date_added < ?", StatusPending, cutoff.UTC()).
		Order("date_added ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: refundable addresses: %w", err)
	}
	return rows, nil
}

// Address loads a single used address.
func (s *Store) Address(ctx context.Context, id string) (*UsedAddress, error) {
	var row UsedAddress
	res := s.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&row)
	if res.Error != nil {
		return nil, fmt.Errorf("store: load address %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &row, nil
}

// UpdateStatus applies a single status update.
func (s *Store) UpdateStatus(ctx context.Context, update StatusUpdate) error {
	return s.BatchUpdateStatus(ctx, []StatusUpdate{update})
}

// BatchUpdateStatus applies every update inside one transaction. An update
// naming an unknown address aborts the whole batch.
func (s *Store) BatchUpdateStatus(ctx context.Context, updates []StatusUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	now := s.now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, update := range updates {
			values := map[string]interface{}{
				"status":     update.Status,
				"updated_at": now,
			}
			if update.TxID != "" {
				values["tx_id"] = update.TxID
			}
			res := tx.Model(&UsedAddress{}).Where("id = ?", update.ID).Updates(values)
			if res.Error != nil {
				return fmt.Errorf("store: update %s: %w", update.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("store: update %s: %w", update.ID, gorm.ErrRecordNotFound)
			}
		}
		return nil
	})
}

// PaidSession returns the session funded by paymentAddress, or nil when none
// was recorded.
func (s *Store) PaidSession(ctx context.Context, paymentAddress string) (*PaidSession, error) {
	var row PaidSession
	res := s.db.WithContext(ctx).Where("payment_address = ?", paymentAddress).Limit(1).Find(&row)
	if res.Error != nil {
		return nil, fmt.Errorf("store: paid session %s: %w", paymentAddress, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &row, nil
}

// RecordRun appends a run to the audit trail.
func (s *Store) RecordRun(ctx context.Context, run RunRecord) error {
	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		return fmt.Errorf("store: record run %s: %w", run.ID, err)
	}
	return nil
}

// RecentRuns returns the latest runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []RunRecord
	if err := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: recent runs: %w", err)
	}
	return rows, nil
}
