package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	CreateLedgerEntry(ctx context.Context, entry *CreditLedgerEntry) error
	LedgerEntries(ctx context.Context, userID snowflake.ID) ([]CreditLedgerEntry, error)
	CreateUsageRecord(ctx context.Context, record *UsageRecord) error
	UsageBetween(ctx context.Context, userID snowflake.ID, from, to time.Time) ([]UsageRecord, error)
	// ActiveGrantExists reports whether the user holds any unexpired credit
	// grant; used by first-sign-in determination.
	ActiveGrantExists(ctx context.Context, userID snowflake.ID, now time.Time) (bool, error)
}
