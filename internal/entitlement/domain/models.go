// Package domain contains persistence models for credit accounting.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// CreditLedgerEntry is a one-time prepaid credit grant. The credits are
// usable only while ExpiresAt is null or in the future.
type CreditLedgerEntry struct {
	ID        snowflake.ID      `gorm:"primaryKey"`
	UserID    snowflake.ID      `gorm:"column:user_id;not null;index"`
	Credits   float64           `gorm:"not null"`
	Source    string            `gorm:"type:text"` // e.g. "purchase", "promo"
	ExpiresAt *time.Time        `gorm:"column:expires_at;index"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CreditLedgerEntry) TableName() string { return "credit_ledger_entries" }

// Usable reports whether the entry's credits count toward the prepaid
// balance at the given time.
func (e CreditLedgerEntry) Usable(now time.Time) bool {
	return e.ExpiresAt == nil || e.ExpiresAt.After(now)
}

// UsageKind distinguishes generation types, which cost differently.
type UsageKind string

const (
	UsageKindImage UsageKind = "image"
	UsageKindVideo UsageKind = "video"
)

// UsageStatus tracks the generation lifecycle; only completed records are
// billable.
type UsageStatus string

const (
	UsageStatusPending   UsageStatus = "pending"
	UsageStatusCompleted UsageStatus = "completed"
	UsageStatusFailed    UsageStatus = "failed"
)

// UsageRecord is one generation. Immutable once created.
type UsageRecord struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	UserID          snowflake.ID `gorm:"column:user_id;not null;index"`
	Kind            UsageKind    `gorm:"type:text;not null"`
	Status          UsageStatus  `gorm:"type:text;not null"`
	DurationSeconds *float64     `gorm:"column:duration_seconds"`
	DeletedAt       *time.Time   `gorm:"column:deleted_at"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP;index"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }

// Billable reports whether the record counts toward usage.
func (r UsageRecord) Billable() bool {
	return r.Status == UsageStatusCompleted && r.DeletedAt == nil
}

// Snapshot is the derived credit balance in both units. Never persisted,
// never negative.
type Snapshot struct {
	DisplayTotal     float64 `json:"display_total"`
	DisplayUsed      float64 `json:"display_used"`
	DisplayRemaining float64 `json:"display_remaining"`
	ActualTotal      float64 `json:"actual_total"`
	ActualUsed       float64 `json:"actual_used"`
	ActualRemaining  float64 `json:"actual_remaining"`
}
