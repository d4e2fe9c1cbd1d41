// Package service is the billing-event reconciliation engine. Handlers are
// stateless: every mutation is an idempotent upsert against the
// subscription store or usage ledger, so redelivered and reordered events
// converge on the same final state.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kolohq/kolo/internal/billing/domain"
	"github.com/kolohq/kolo/internal/billing/tier"
	"github.com/kolohq/kolo/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Tiers    *tier.Resolver
	Provider domain.ProviderClient
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	tiers    *tier.Resolver
	provider domain.ProviderClient
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("billing.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		tiers:    p.Tiers,
		provider: p.Provider,
	}
}

// handlers is the fixed dispatch table. Event types outside it are
// acknowledged as no-ops by ProcessEvent.
var handlers = map[string]func(*Service, context.Context, json.RawMessage) error{
	domain.EventSubscriptionCreate:   (*Service).handleSubscriptionCreate,
	domain.EventSubscriptionDisable:  (*Service).handleSubscriptionDisable,
	domain.EventSubscriptionNotRenew: (*Service).handleSubscriptionNotRenew,
	domain.EventInvoiceCreate:        (*Service).handleInvoiceCreate,
	domain.EventInvoiceFailed:        (*Service).handleInvoiceFailed,
	domain.EventInvoiceUpdate:        (*Service).handleInvoiceUpdate,
	domain.EventChargeSuccess:        (*Service).handleChargeSuccess,
	domain.EventExpiringCards:        (*Service).handleExpiringCards,
}

func (s *Service) ProcessEvent(ctx context.Context, event *domain.Event) error {
	if event == nil || strings.TrimSpace(event.Type) == "" {
		return domain.ErrInvalidPayload
	}

	handler, ok := handlers[event.Type]
	if !ok {
		// The provider retries anything it considers undelivered, so an
		// unknown type is acknowledged, not failed.
		s.log.Info("ignoring unknown event type", zap.String("event_type", event.Type))
		return nil
	}

	return handler(s, ctx, event.Data)
}

// resolveTenant derives the tenant an event belongs to: metadata on the
// primary object wins over customer metadata, and both win over a store
// lookup by subscription code, since metadata was set when the payment was
// initiated. No match is the one unrecoverable case.
func (s *Service) resolveTenant(ctx context.Context, meta domain.EventMetadata, customer domain.CustomerData, subscriptionCode string) (snowflake.ID, error) {
	if id, ok := parseTenantID(meta.TenantID); ok {
		return id, nil
	}
	if id, ok := parseTenantID(customer.Metadata.TenantID); ok {
		return id, nil
	}

	if code := strings.TrimSpace(subscriptionCode); code != "" {
		subscription, err := s.repo.FindSubscriptionByCode(ctx, s.db, code)
		if err != nil {
			return 0, err
		}
		if subscription != nil {
			return subscription.TenantID, nil
		}
	}

	return 0, domain.ErrUnresolvedTenant
}

func parseTenantID(raw string) (snowflake.ID, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// normalizeStatus maps a provider status string onto the local enum. An
// unrecognized status is treated as active: the provider only sends these
// events for live subscriptions.
func normalizeStatus(raw string) domain.SubscriptionStatus {
	switch domain.SubscriptionStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case domain.SubscriptionStatusTrialing:
		return domain.SubscriptionStatusTrialing
	case domain.SubscriptionStatusNonRenewing:
		return domain.SubscriptionStatusNonRenewing
	case domain.SubscriptionStatusAttention:
		return domain.SubscriptionStatusAttention
	case domain.SubscriptionStatusPastDue:
		return domain.SubscriptionStatusPastDue
	case domain.SubscriptionStatusCancelled:
		return domain.SubscriptionStatusCancelled
	case domain.SubscriptionStatusCompleted:
		return domain.SubscriptionStatusCompleted
	default:
		return domain.SubscriptionStatusActive
	}
}

// mirrorTenant denormalizes status, tier and expiry onto the tenant
// record. Best effort: the mirror is eventually consistent and a failed
// write here must not fail the handler that already committed the
// authoritative row.
func (s *Service) mirrorTenant(ctx context.Context, subscription *domain.Subscription) {
	expiresAt := subscription.CurrentPeriodEnd
	if expiresAt == nil {
		expiresAt = subscription.NextPaymentAt
	}

	err := s.repo.UpdateTenantBilling(ctx, s.db, subscription.TenantID, subscription.Status, subscription.Tier, expiresAt, s.clock.Now())
	if err != nil {
		s.log.Error("failed to mirror subscription onto tenant",
			zap.String("tenant_id", subscription.TenantID.String()),
			zap.String("status", string(subscription.Status)),
			zap.Error(err),
		)
	}
}

// repairUsagePeriods replaces placeholder period bounds on the
// subscription's ledger rows once the true period is known. Standing
// reconciliation pass: safe to run on every confirmation, not just the
// first.
func (s *Service) repairUsagePeriods(ctx context.Context, subscription *domain.Subscription) {
	if subscription.CurrentPeriodStart == nil || subscription.CurrentPeriodEnd == nil {
		return
	}

	repaired, err := s.repo.RepairUsagePeriods(ctx, s.db, subscription.ID, *subscription.CurrentPeriodStart, *subscription.CurrentPeriodEnd, s.clock.Now())
	if err != nil {
		s.log.Error("failed to repair usage record periods",
			zap.String("subscription_id", subscription.ID.String()),
			zap.Error(err),
		)
		return
	}
	if repaired > 0 {
		s.log.Info("repaired placeholder usage periods",
			zap.String("subscription_id", subscription.ID.String()),
			zap.Int64("rows", repaired),
		)
	}
}

func decode[T any](data json.RawMessage) (*T, error) {
	var payload T
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return &payload, nil
}

func strPtr(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

// guardPeriod keeps known period bounds from moving backward when the same
// subscription code is re-applied, which happens on redelivery of stale
// confirmations.
func guardPeriod(existing *domain.Subscription, code string, start, end *time.Time) (*time.Time, *time.Time) {
	if existing.SubscriptionCode == nil || *existing.SubscriptionCode != code {
		return start, end
	}
	if existing.CurrentPeriodEnd == nil {
		return start, end
	}
	if end == nil || end.Before(*existing.CurrentPeriodEnd) {
		return existing.CurrentPeriodStart, existing.CurrentPeriodEnd
	}
	return start, end
}
