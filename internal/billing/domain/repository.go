package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the engine's storage contract. Every mutation is an
// idempotent upsert keyed by tenant or subscription code; handlers tolerate
// concurrent writers, so nothing here takes a global lock.
type Repository interface {
	// FindSubscriptionByTenant returns the tenant's live subscription.
	// Terminal rows are retained for history and never returned here, so
	// a cancelled-then-resubscribed tenant starts a fresh row instead of
	// resurrecting the old one. Nil when no live row exists.
	FindSubscriptionByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*Subscription, error)

	// FindSubscriptionByCode returns the subscription holding the given
	// provider subscription code, or nil.
	FindSubscriptionByCode(ctx context.Context, db *gorm.DB, code string) (*Subscription, error)

	InsertSubscription(ctx context.Context, db *gorm.DB, subscription *Subscription) error

	// OverwriteSubscription writes code, plan, customer, status, amount,
	// tier and period in place. Used to complete a preliminary row, to
	// splice a deferred plan switch onto the existing row, and for
	// idempotent same-code refreshes. Callers guard period monotonicity
	// before writing.
	OverwriteSubscription(ctx context.Context, db *gorm.DB, subscription *Subscription) error

	// UpdateSubscriptionCharge applies plan, amount, tier and status
	// without touching code or period bounds.
	UpdateSubscriptionCharge(ctx context.Context, db *gorm.DB, id snowflake.ID, planCode string, amount int64, tier string, status SubscriptionStatus, now time.Time) error

	SetSubscriptionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status SubscriptionStatus, now time.Time) error

	// SetCardExpiring flags the subscription holding the given code.
	SetCardExpiring(ctx context.Context, db *gorm.DB, code string, expiresAt *time.Time, now time.Time) error

	// InsertUsageRecord appends a ledger row; duplicate reference+kind is
	// a no-op. Reports whether a row was written.
	InsertUsageRecord(ctx context.Context, db *gorm.DB, record *UsageRecord) (bool, error)

	// RepairUsagePeriods overwrites placeholder period bounds
	// (start == end) on the subscription's rows with the true bounds.
	// Rows with distinct bounds are left untouched.
	RepairUsagePeriods(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, start, end time.Time, now time.Time) (int64, error)

	FindUsageByReference(ctx context.Context, db *gorm.DB, reference string) (*UsageRecord, error)

	MarkUsageUnpaid(ctx context.Context, db *gorm.DB, reference string, now time.Time) error

	// PatchUsagePayment sets paid/paid-at on the row matching the
	// reference code.
	PatchUsagePayment(ctx context.Context, db *gorm.DB, reference string, paid bool, paidAt *time.Time, now time.Time) error

	// UpdateTenantBilling mirrors status, tier and expiry onto the tenant
	// record.
	UpdateTenantBilling(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, status SubscriptionStatus, tier string, expiresAt *time.Time, now time.Time) error
}
