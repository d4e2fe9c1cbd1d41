// Package domain contains persistence models for subscriptions and the
// usage ledger, plus the contracts the reconciliation engine runs on.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SubscriptionStatus represents lifecycle states for a subscription. The
// values mirror what the payment provider sends so status from an event can
// be stored as-is.
type SubscriptionStatus string

const (
	SubscriptionStatusTrialing    SubscriptionStatus = "trialing"
	SubscriptionStatusActive      SubscriptionStatus = "active"
	SubscriptionStatusNonRenewing SubscriptionStatus = "non-renewing"
	SubscriptionStatusAttention   SubscriptionStatus = "attention"
	SubscriptionStatusPastDue     SubscriptionStatus = "past_due"
	SubscriptionStatusCancelled   SubscriptionStatus = "cancelled"
	SubscriptionStatusCompleted   SubscriptionStatus = "completed"
)

// IsTerminal reports whether the subscription can never become active
// again. Terminal rows are retained for history, never deleted.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCancelled || s == SubscriptionStatusCompleted
}

// Subscription is the authoritative per-tenant subscription record. At most
// one non-terminal row exists per tenant, enforced at the application
// level. SubscriptionCode stays nil while the row is preliminary, before
// the provider has confirmed the subscription.
type Subscription struct {
	ID                 snowflake.ID       `gorm:"primaryKey"`
	TenantID           snowflake.ID       `gorm:"not null;index"`
	SubscriptionCode   *string            `gorm:"type:text;index"`
	PlanCode           string             `gorm:"type:text;not null"`
	CustomerCode       string             `gorm:"type:text;not null"`
	Status             SubscriptionStatus `gorm:"type:text;not null"`
	Amount             int64              `gorm:"not null;default:0"`
	Tier               string             `gorm:"type:text;not null"`
	CurrentPeriodStart *time.Time         `gorm:""`
	CurrentPeriodEnd   *time.Time         `gorm:""`
	NextPaymentAt      *time.Time         `gorm:""`
	CardExpiring       bool               `gorm:"not null;default:false"`
	CardExpiresAt      *time.Time         `gorm:""`
	Metadata           datatypes.JSONMap  `gorm:"type:jsonb"`
	CreatedAt          time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// IsPreliminary reports whether the provider has not yet confirmed this
// subscription.
func (s *Subscription) IsPreliminary() bool {
	return s.SubscriptionCode == nil || *s.SubscriptionCode == ""
}

// UsageKind classifies a ledger row.
type UsageKind string

const (
	UsageKindPayment UsageKind = "payment"
	UsageKindInvoice UsageKind = "invoice"
)

// UsageRecord is an append-only billing-history row. Reference is the
// provider transaction or invoice code and keys idempotent appends and
// later corrections. A row written before the billing period is knowable
// carries a placeholder period (start == end) until the subscription
// confirmation repairs it.
type UsageRecord struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	TenantID       snowflake.ID `gorm:"not null;index"`
	SubscriptionID snowflake.ID `gorm:"not null;index"`
	Reference      string       `gorm:"type:text;not null"`
	Amount         int64        `gorm:"not null"`
	Kind           UsageKind    `gorm:"type:text;not null"`
	Paid           bool         `gorm:"not null;default:true"`
	PaidAt         *time.Time   `gorm:""`
	PeriodStart    time.Time    `gorm:"not null"`
	PeriodEnd      time.Time    `gorm:"not null"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }

// HasPlaceholderPeriod reports whether the row still carries the collapsed
// period written before the true billing period was known.
func (u *UsageRecord) HasPlaceholderPeriod() bool {
	return u.PeriodStart.Equal(u.PeriodEnd)
}

// Tenant carries the denormalized billing mirror on the tenant record. The
// engine only ever touches the mirror columns; the rest of the row belongs
// to the dashboard.
type Tenant struct {
	ID                    snowflake.ID        `gorm:"primaryKey"`
	Name                  string              `gorm:"type:text;not null"`
	SubscriptionStatus    *SubscriptionStatus `gorm:"type:text"`
	Tier                  *string             `gorm:"type:text"`
	SubscriptionExpiresAt *time.Time          `gorm:""`
	UpdatedAt             time.Time           `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }
