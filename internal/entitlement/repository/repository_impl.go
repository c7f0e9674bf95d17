package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lumera-ai/lumera/internal/entitlement/domain"
	"gorm.io/gorm"
)

type repo struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func New(db *gorm.DB, genID *snowflake.Node) domain.Repository {
	return &repo{db: db, genID: genID}
}

func (r *repo) CreateLedgerEntry(ctx context.Context, entry *domain.CreditLedgerEntry) error {
	if entry.ID == 0 {
		entry.ID = r.genID.Generate()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repo) LedgerEntries(ctx context.Context, userID snowflake.ID) ([]domain.CreditLedgerEntry, error) {
	var entries []domain.CreditLedgerEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) CreateUsageRecord(ctx context.Context, record *domain.UsageRecord) error {
	if record.ID == 0 {
		record.ID = r.genID.Generate()
	}
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repo) UsageBetween(ctx context.Context, userID snowflake.ID, from, to time.Time) ([]domain.UsageRecord, error) {
	var records []domain.UsageRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND deleted_at IS NULL", userID, domain.UsageStatusCompleted).
		Where("created_at >= ? AND created_at < ?", from, to).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) ActiveGrantExists(ctx context.Context, userID snowflake.ID, now time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.CreditLedgerEntry{}).
		Where("user_id = ? AND credits > 0", userID).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
