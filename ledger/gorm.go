package ledger

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry is a row of the conversion_ledger table.
type Entry struct {
	ID       uint      `gorm:"primaryKey"`
	Channel  string    `gorm:"type:varchar(16);not null;uniqueIndex:idx_conversion_ledger_channel_key"`
	DedupKey string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_conversion_ledger_channel_key"`
	FiredAt  time.Time `gorm:"not null"`
}

func (Entry) TableName() string { return "conversion_ledger" }

// GormLedger keeps entries in the order database, so the relay's idempotency
// record survives restarts without another moving part.
type GormLedger struct {
	db      *gorm.DB
	channel Channel
}

func NewGormLedger(db *gorm.DB, channel Channel) *GormLedger {
	return &GormLedger{db: db, channel: channel}
}

func (l *GormLedger) HasFired(ctx context.Context, key string) (bool, error) {
	if l.db == nil {
		return false, ErrNilBackend
	}
	var n int64
	err := l.db.WithContext(ctx).
		Model(&Entry{}).
		Where("channel = ? AND dedup_key = ?", string(l.channel), key).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("gorm ledger lookup: %w", err)
	}
	return n > 0, nil
}

func (l *GormLedger) MarkFired(ctx context.Context, key string) error {
	_, err := l.insert(ctx, key)
	return err
}

func (l *GormLedger) Claim(ctx context.Context, key string) (bool, error) {
	return l.insert(ctx, key)
}

func (l *GormLedger) Release(ctx context.Context, key string) error {
	if l.db == nil {
		return ErrNilBackend
	}
	err := l.db.WithContext(ctx).
		Where("channel = ? AND dedup_key = ?", string(l.channel), key).
		Delete(&Entry{}).Error
	if err != nil {
		return fmt.Errorf("gorm ledger delete: %w", err)
	}
	return nil
}

// insert relies on the unique (channel, dedup_key) index: a conflicting row
// means another caller got there first.
func (l *GormLedger) insert(ctx context.Context, key string) (bool, error) {
	if l.db == nil {
		return false, ErrNilBackend
	}
	entry := Entry{Channel: string(l.channel), DedupKey: key, FiredAt: time.Now().UTC()}
	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&entry)
	if res.Error != nil {
		return false, fmt.Errorf("gorm ledger insert: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}
