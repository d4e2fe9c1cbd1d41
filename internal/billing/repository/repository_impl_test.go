package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kolohq/kolo/internal/billing/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupRepo(t *testing.T) (domain.Repository, *gorm.DB, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	require.NoError(t, db.Exec(`CREATE TABLE subscriptions (
		id BIGINT PRIMARY KEY,
		tenant_id BIGINT NOT NULL,
		subscription_code TEXT,
		plan_code TEXT NOT NULL,
		customer_code TEXT NOT NULL,
		status TEXT NOT NULL,
		amount BIGINT NOT NULL DEFAULT 0,
		tier TEXT NOT NULL,
		current_period_start DATETIME,
		current_period_end DATETIME,
		next_payment_at DATETIME,
		card_expiring BOOLEAN NOT NULL DEFAULT FALSE,
		card_expires_at DATETIME,
		metadata JSON,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`).Error)
	require.NoError(t, db.Exec(`CREATE TABLE usage_records (
		id BIGINT PRIMARY KEY,
		tenant_id BIGINT NOT NULL,
		subscription_id BIGINT NOT NULL,
		reference TEXT NOT NULL,
		amount BIGINT NOT NULL,
		kind TEXT NOT NULL,
		paid BOOLEAN NOT NULL DEFAULT TRUE,
		paid_at DATETIME,
		period_start DATETIME NOT NULL,
		period_end DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`).Error)
	require.NoError(t, db.Exec(`CREATE UNIQUE INDEX uidx_usage_reference_kind
		ON usage_records (reference, kind)`).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return Provide(), db, node
}

func newSubscription(node *snowflake.Node, tenantID snowflake.ID, code string, status domain.SubscriptionStatus, createdAt time.Time) *domain.Subscription {
	sub := &domain.Subscription{
		ID:           node.Generate(),
		TenantID:     tenantID,
		PlanCode:     "PLN_growth",
		CustomerCode: "CUS_1",
		Status:       status,
		Amount:       50000,
		Tier:         "growth",
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
	if code != "" {
		sub.SubscriptionCode = &code
	}
	return sub
}

func TestFindSubscriptionByTenantSkipsTerminalRows(t *testing.T) {
	repo, db, node := setupRepo(t)
	ctx := context.Background()
	tenantID := node.Generate()

	old := newSubscription(node, tenantID, "SUB_old", domain.SubscriptionStatusCancelled,
		time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))
	current := newSubscription(node, tenantID, "SUB_new", domain.SubscriptionStatusActive,
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, repo.InsertSubscription(ctx, db, old))
	require.NoError(t, repo.InsertSubscription(ctx, db, current))

	found, err := repo.FindSubscriptionByTenant(ctx, db, tenantID)
	require.NoError(t, err)
	require.NotNil(t, found)
	// The cancelled row is newer but the active one still wins.
	require.Equal(t, current.ID, found.ID)
}

func TestFindSubscriptionByTenantTerminalOnlyIsNil(t *testing.T) {
	repo, db, node := setupRepo(t)
	ctx := context.Background()
	tenantID := node.Generate()

	cancelled := newSubscription(node, tenantID, "SUB_cancelled", domain.SubscriptionStatusCancelled,
		time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))
	completed := newSubscription(node, tenantID, "SUB_completed", domain.SubscriptionStatusCompleted,
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, repo.InsertSubscription(ctx, db, cancelled))
	require.NoError(t, repo.InsertSubscription(ctx, db, completed))

	// Terminal rows are history, not a live subscription.
	found, err := repo.FindSubscriptionByTenant(ctx, db, tenantID)
	require.NoError(t, err)
	require.Nil(t, found)

	// They stay reachable by code.
	byCode, err := repo.FindSubscriptionByCode(ctx, db, "SUB_cancelled")
	require.NoError(t, err)
	require.NotNil(t, byCode)
	require.Equal(t, cancelled.ID, byCode.ID)
}

func TestFindSubscriptionByTenantNone(t *testing.T) {
	repo, db, node := setupRepo(t)

	found, err := repo.FindSubscriptionByTenant(context.Background(), db, node.Generate())
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestInsertUsageRecordIdempotent(t *testing.T) {
	repo, db, node := setupRepo(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	record := &domain.UsageRecord{
		ID:             node.Generate(),
		TenantID:       node.Generate(),
		SubscriptionID: node.Generate(),
		Reference:      "TRX_1",
		Amount:         50000,
		Kind:           domain.UsageKindPayment,
		Paid:           true,
		PeriodStart:    now,
		PeriodEnd:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	inserted, err := repo.InsertUsageRecord(ctx, db, record)
	require.NoError(t, err)
	require.True(t, inserted)

	dup := *record
	dup.ID = node.Generate()
	inserted, err = repo.InsertUsageRecord(ctx, db, &dup)
	require.NoError(t, err)
	require.False(t, inserted)

	var count int
	require.NoError(t, db.Raw(`SELECT COUNT(1) FROM usage_records`).Scan(&count).Error)
	require.Equal(t, 1, count)
}

func TestInsertUsageRecordSameReferenceDifferentKind(t *testing.T) {
	repo, db, node := setupRepo(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	payment := &domain.UsageRecord{
		ID: node.Generate(), TenantID: node.Generate(), SubscriptionID: node.Generate(),
		Reference: "TRX_1", Amount: 50000, Kind: domain.UsageKindPayment,
		Paid: true, PeriodStart: now, PeriodEnd: now, CreatedAt: now, UpdatedAt: now,
	}
	invoice := *payment
	invoice.ID = node.Generate()
	invoice.Kind = domain.UsageKindInvoice

	inserted, err := repo.InsertUsageRecord(ctx, db, payment)
	require.NoError(t, err)
	require.True(t, inserted)
	inserted, err = repo.InsertUsageRecord(ctx, db, &invoice)
	require.NoError(t, err)
	require.True(t, inserted)
}

func TestRepairUsagePeriodsOnlyTouchesPlaceholders(t *testing.T) {
	repo, db, node := setupRepo(t)
	ctx := context.Background()
	subscriptionID := node.Generate()
	tenantID := node.Generate()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	placeholder := &domain.UsageRecord{
		ID: node.Generate(), TenantID: tenantID, SubscriptionID: subscriptionID,
		Reference: "TRX_placeholder", Amount: 50000, Kind: domain.UsageKindPayment,
		Paid: true, PeriodStart: now, PeriodEnd: now, CreatedAt: now, UpdatedAt: now,
	}
	settled := &domain.UsageRecord{
		ID: node.Generate(), TenantID: tenantID, SubscriptionID: subscriptionID,
		Reference: "TRX_settled", Amount: 50000, Kind: domain.UsageKindPayment,
		Paid:        true,
		PeriodStart: time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC),
		CreatedAt:   now, UpdatedAt: now,
	}
	for _, record := range []*domain.UsageRecord{placeholder, settled} {
		inserted, err := repo.InsertUsageRecord(ctx, db, record)
		require.NoError(t, err)
		require.True(t, inserted)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)
	repaired, err := repo.RepairUsagePeriods(ctx, db, subscriptionID, start, end, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, repaired)

	found, err := repo.FindUsageByReference(ctx, db, "TRX_settled")
	require.NoError(t, err)
	require.True(t, found.PeriodStart.UTC().Equal(settled.PeriodStart))

	found, err = repo.FindUsageByReference(ctx, db, "TRX_placeholder")
	require.NoError(t, err)
	require.True(t, found.PeriodStart.UTC().Equal(start))
	require.True(t, found.PeriodEnd.UTC().Equal(end))
}

func TestMarkUsageUnpaidNotFound(t *testing.T) {
	repo, db, _ := setupRepo(t)

	err := repo.MarkUsageUnpaid(context.Background(), db, "TRX_missing", time.Now().UTC())
	require.ErrorIs(t, err, domain.ErrUsageRecordNotFound)
}

func TestSetCardExpiringNotFound(t *testing.T) {
	repo, db, _ := setupRepo(t)

	err := repo.SetCardExpiring(context.Background(), db, "SUB_missing", nil, time.Now().UTC())
	require.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
}
