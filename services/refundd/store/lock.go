package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Lock is a database-backed cron lock. A lease expires after ttl so that a
// crashed holder cannot block future runs forever.
type Lock struct {
	db    *gorm.DB
	owner string
	ttl   time.Duration
	now   func() time.Time
}

// NewLock constructs a lock whose leases are held by owner.
func NewLock(db *gorm.DB, owner string, ttl time.Duration, now func() time.Time) (*Lock, error) {
	if db == nil {
		return nil, errors.New("store: db is required")
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, errors.New("store: lock owner required")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Lock{db: db, owner: owner, ttl: ttl, now: now}, nil
}

// TryAcquire takes the named lease if it is free or expired. It reports false
// without error when another owner holds a live lease.
func (l *Lock) TryAcquire(ctx context.Context, name string) (bool, error) {
	now := l.now().UTC()
	db := l.db.WithContext(ctx)
	seed := CronLock{Name: name}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return false, fmt.Errorf("store: seed lock %s: %w", name, err)
	}
	res := db.Model(&CronLock{}).
		Where("name = ? AND (locked = ? OR expires_at < ?)", name, false, now).
		Updates(map[string]interface{}{
			"owner":       l.owner,
			"locked":      true,
			"acquired_at": now,
			"expires_at":  now.Add(l.ttl),
		})
	if res.Error != nil {
		return false, fmt.Errorf("store: acquire lock %s: %w", name, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Release frees the named lease if this owner still holds it.
func (l *Lock) Release(ctx context.Context, name string) error {
	res := l.db.WithContext(ctx).Model(&CronLock{}).
		Where("name = ? AND owner = ? AND locked = ?", name, l.owner, true).
		Updates(map[string]interface{}{"locked": false})
	if res.Error != nil {
		return fmt.Errorf("store: release lock %s: %w", name, res.Error)
	}
	return nil
}

// Holder reports the current lease holder, if any live lease exists.
func (l *Lock) Holder(ctx context.Context, name string) (string, bool, error) {
	var row CronLock
	err := l.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: lock holder %s: %w", name, err)
	}
	if !row.Locked || row.ExpiresAt.Before(l.now().UTC()) {
		return "", false, nil
	}
	return row.Owner, true, nil
}
