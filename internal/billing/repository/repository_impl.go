package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kolohq/kolo/internal/billing/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const subscriptionColumns = `id, tenant_id, subscription_code, plan_code, customer_code, status, amount,
	 tier, current_period_start, current_period_end, next_payment_at, card_expiring,
	 card_expires_at, metadata, created_at, updated_at`

func (r *repo) FindSubscriptionByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*domain.Subscription, error) {
	var subscription domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE tenant_id = ? AND status NOT IN (?, ?)
		 ORDER BY created_at DESC
		 LIMIT 1`,
		tenantID,
		domain.SubscriptionStatusCancelled,
		domain.SubscriptionStatusCompleted,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindSubscriptionByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Subscription, error) {
	var subscription domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE subscription_code = ?
		 LIMIT 1`,
		code,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) InsertSubscription(ctx context.Context, db *gorm.DB, subscription *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, tenant_id, subscription_code, plan_code, customer_code, status, amount,
			tier, current_period_start, current_period_end, next_payment_at, card_expiring,
			card_expires_at, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.TenantID,
		subscription.SubscriptionCode,
		subscription.PlanCode,
		subscription.CustomerCode,
		subscription.Status,
		subscription.Amount,
		subscription.Tier,
		subscription.CurrentPeriodStart,
		subscription.CurrentPeriodEnd,
		subscription.NextPaymentAt,
		subscription.CardExpiring,
		subscription.CardExpiresAt,
		subscription.Metadata,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) OverwriteSubscription(ctx context.Context, db *gorm.DB, subscription *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET subscription_code = ?, plan_code = ?, customer_code = ?, status = ?, amount = ?,
			 tier = ?, current_period_start = ?, current_period_end = ?, next_payment_at = ?,
			 updated_at = ?
		 WHERE id = ?`,
		subscription.SubscriptionCode,
		subscription.PlanCode,
		subscription.CustomerCode,
		subscription.Status,
		subscription.Amount,
		subscription.Tier,
		subscription.CurrentPeriodStart,
		subscription.CurrentPeriodEnd,
		subscription.NextPaymentAt,
		subscription.UpdatedAt,
		subscription.ID,
	).Error
}

func (r *repo) UpdateSubscriptionCharge(ctx context.Context, db *gorm.DB, id snowflake.ID, planCode string, amount int64, tier string, status domain.SubscriptionStatus, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET plan_code = ?, amount = ?, tier = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		planCode,
		amount,
		tier,
		status,
		now,
		id,
	).Error
}

func (r *repo) SetSubscriptionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.SubscriptionStatus, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, updated_at = ?
		 WHERE id = ?`,
		status,
		now,
		id,
	).Error
}

func (r *repo) SetCardExpiring(ctx context.Context, db *gorm.DB, code string, expiresAt *time.Time, now time.Time) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET card_expiring = ?, card_expires_at = ?, updated_at = ?
		 WHERE subscription_code = ?`,
		true,
		expiresAt,
		now,
		code,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

func (r *repo) InsertUsageRecord(ctx context.Context, db *gorm.DB, record *domain.UsageRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO usage_records (
			id, tenant_id, subscription_id, reference, amount, kind, paid, paid_at,
			period_start, period_end, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (reference, kind) DO NOTHING`,
		record.ID,
		record.TenantID,
		record.SubscriptionID,
		record.Reference,
		record.Amount,
		record.Kind,
		record.Paid,
		record.PaidAt,
		record.PeriodStart,
		record.PeriodEnd,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) RepairUsagePeriods(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, start, end time.Time, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE usage_records
		 SET period_start = ?, period_end = ?, updated_at = ?
		 WHERE subscription_id = ? AND period_start = period_end`,
		start,
		end,
		now,
		subscriptionID,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) FindUsageByReference(ctx context.Context, db *gorm.DB, reference string) (*domain.UsageRecord, error) {
	var record domain.UsageRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, subscription_id, reference, amount, kind, paid, paid_at,
			 period_start, period_end, created_at, updated_at
		 FROM usage_records
		 WHERE reference = ?
		 LIMIT 1`,
		reference,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) MarkUsageUnpaid(ctx context.Context, db *gorm.DB, reference string, now time.Time) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE usage_records
		 SET paid = ?, updated_at = ?
		 WHERE reference = ?`,
		false,
		now,
		reference,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrUsageRecordNotFound
	}
	return nil
}

func (r *repo) PatchUsagePayment(ctx context.Context, db *gorm.DB, reference string, paid bool, paidAt *time.Time, now time.Time) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE usage_records
		 SET paid = ?, paid_at = ?, updated_at = ?
		 WHERE reference = ?`,
		paid,
		paidAt,
		now,
		reference,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrUsageRecordNotFound
	}
	return nil
}

func (r *repo) UpdateTenantBilling(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, status domain.SubscriptionStatus, tier string, expiresAt *time.Time, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE tenants
		 SET subscription_status = ?, tier = ?, subscription_expires_at = ?, updated_at = ?
		 WHERE id = ?`,
		status,
		tier,
		expiresAt,
		now,
		tenantID,
	).Error
}
