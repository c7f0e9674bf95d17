package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/lumera-ai/lumera/internal/entitlement/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupRepo(t *testing.T) domain.Repository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.CreditLedgerEntry{}, &domain.UsageRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return New(db, node)
}

func TestUsageBetweenFilters(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	userID := snowflake.ID(7)
	from := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	deleted := from.Add(time.Hour)

	records := []domain.UsageRecord{
		{UserID: userID, Kind: domain.UsageKindImage, Status: domain.UsageStatusCompleted, CreatedAt: from.Add(24 * time.Hour)},
		{UserID: userID, Kind: domain.UsageKindImage, Status: domain.UsageStatusCompleted, CreatedAt: from.Add(-time.Hour)},
		{UserID: userID, Kind: domain.UsageKindImage, Status: domain.UsageStatusCompleted, CreatedAt: to},
		{UserID: userID, Kind: domain.UsageKindImage, Status: domain.UsageStatusPending, CreatedAt: from.Add(24 * time.Hour)},
		{UserID: userID, Kind: domain.UsageKindImage, Status: domain.UsageStatusCompleted, DeletedAt: &deleted, CreatedAt: from.Add(24 * time.Hour)},
		{UserID: 99, Kind: domain.UsageKindImage, Status: domain.UsageStatusCompleted, CreatedAt: from.Add(24 * time.Hour)},
	}
	for i := range records {
		if err := repo.CreateUsageRecord(ctx, &records[i]); err != nil {
			t.Fatalf("create usage record %d: %v", i, err)
		}
	}

	got, err := repo.UsageBetween(ctx, userID, from, to)
	if err != nil {
		t.Fatalf("usage between: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("records = %d, want 1", len(got))
	}
	if got[0].ID != records[0].ID {
		t.Fatalf("record id = %v, want %v", got[0].ID, records[0].ID)
	}
}

func TestLedgerEntriesScopedToUser(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	entries := []domain.CreditLedgerEntry{
		{UserID: 7, Credits: 200, Source: "purchase"},
		{UserID: 7, Credits: 50, Source: "promo"},
		{UserID: 8, Credits: 999, Source: "purchase"},
	}
	for i := range entries {
		if err := repo.CreateLedgerEntry(ctx, &entries[i]); err != nil {
			t.Fatalf("create ledger entry %d: %v", i, err)
		}
	}

	got, err := repo.LedgerEntries(ctx, 7)
	if err != nil {
		t.Fatalf("ledger entries: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}
}

func TestActiveGrantExists(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	has, err := repo.ActiveGrantExists(ctx, 7, now)
	if err != nil {
		t.Fatalf("active grant exists: %v", err)
	}
	if has {
		t.Fatal("no grants yet, want false")
	}

	expired := domain.CreditLedgerEntry{UserID: 7, Credits: 100, ExpiresAt: &past}
	if err := repo.CreateLedgerEntry(ctx, &expired); err != nil {
		t.Fatalf("create expired entry: %v", err)
	}
	has, err = repo.ActiveGrantExists(ctx, 7, now)
	if err != nil {
		t.Fatalf("active grant exists: %v", err)
	}
	if has {
		t.Fatal("only expired grant, want false")
	}

	live := domain.CreditLedgerEntry{UserID: 7, Credits: 100}
	if err := repo.CreateLedgerEntry(ctx, &live); err != nil {
		t.Fatalf("create live entry: %v", err)
	}
	has, err = repo.ActiveGrantExists(ctx, 7, now)
	if err != nil {
		t.Fatalf("active grant exists: %v", err)
	}
	if !has {
		t.Fatal("unexpired grant present, want true")
	}
}
