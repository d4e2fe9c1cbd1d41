package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/kolohq/kolo/internal/billing/domain"
	"github.com/kolohq/kolo/internal/billing/period"
	"github.com/kolohq/kolo/pkg/db"
	"go.uber.org/zap"
)

// handleSubscriptionCreate converges a provider confirmation onto the
// tenant's subscription row. The same event means four different things
// depending on prior state: first confirmation, completion of a
// preliminary row, a deferred plan switch landing, or a redelivery.
func (s *Service) handleSubscriptionCreate(ctx context.Context, data json.RawMessage) error {
	payload, err := decode[domain.SubscriptionEventData](data)
	if err != nil {
		return err
	}
	code := strings.TrimSpace(payload.SubscriptionCode)
	if code == "" {
		return domain.ErrInvalidPayload
	}

	tenantID, err := s.resolveTenant(ctx, payload.Metadata, payload.Customer, code)
	if err != nil {
		s.log.Error("dropping subscription confirmation without tenant",
			zap.String("subscription_code", code),
			zap.Error(err),
		)
		return err
	}

	tierName := s.tiers.Resolve(payload.Plan.PlanCode)
	start, end := period.Calculate(payload.CreatedAt, payload.NextPaymentDate, payload.Plan.Interval)
	status := normalizeStatus(payload.Status)
	now := s.clock.Now()

	existing, err := s.repo.FindSubscriptionByTenant(ctx, s.db, tenantID)
	if err != nil {
		return err
	}

	var subscription *domain.Subscription
	if existing == nil {
		subscription = &domain.Subscription{
			ID:                 s.genID.Generate(),
			TenantID:           tenantID,
			SubscriptionCode:   &code,
			PlanCode:           payload.Plan.PlanCode,
			CustomerCode:       payload.Customer.CustomerCode,
			Status:             status,
			Amount:             eventAmount(payload),
			Tier:               tierName,
			CurrentPeriodStart: start,
			CurrentPeriodEnd:   end,
			NextPaymentAt:      payload.NextPaymentDate,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := s.repo.InsertSubscription(ctx, s.db, subscription); err != nil {
			if !db.IsDuplicateKeyErr(err) {
				return err
			}
			// Lost a race against a concurrent handler that claimed this
			// code; converge onto the row that won.
			existing, err = s.repo.FindSubscriptionByCode(ctx, s.db, code)
			if err != nil {
				return err
			}
			if existing == nil {
				return domain.ErrSubscriptionNotFound
			}
			if existing.Status.IsTerminal() {
				// Stale confirmation for a code that was since disabled;
				// the terminal row stays as it is.
				s.log.Info("dropping confirmation for terminal subscription",
					zap.String("subscription_code", code),
					zap.String("status", string(existing.Status)),
				)
				return nil
			}
			subscription = s.applyConfirmation(existing, code, payload, status, tierName, start, end, now)
			if err := s.repo.OverwriteSubscription(ctx, s.db, subscription); err != nil {
				return err
			}
		}
	} else {
		subscription = s.applyConfirmation(existing, code, payload, status, tierName, start, end, now)
		if err := s.repo.OverwriteSubscription(ctx, s.db, subscription); err != nil {
			return err
		}
	}

	s.mirrorTenant(ctx, subscription)
	s.repairUsagePeriods(ctx, subscription)
	return nil
}

// applyConfirmation rewrites the existing row in place. Covers the
// deferred-switch splice (non-renewing row adopting a new code), filling a
// preliminary row, and the idempotent same-code refresh; in every case the
// row's identity survives so ledger rows keep their owner.
func (s *Service) applyConfirmation(existing *domain.Subscription, code string, payload *domain.SubscriptionEventData, status domain.SubscriptionStatus, tierName string, start, end *time.Time, now time.Time) *domain.Subscription {
	if existing.Status == domain.SubscriptionStatusNonRenewing && !existing.IsPreliminary() && *existing.SubscriptionCode != code {
		s.log.Info("completing deferred plan switch",
			zap.String("tenant_id", existing.TenantID.String()),
			zap.String("old_code", *existing.SubscriptionCode),
			zap.String("new_code", code),
		)
	}

	if start == nil {
		// Unknown bounds never overwrite known ones.
		start, end = existing.CurrentPeriodStart, existing.CurrentPeriodEnd
	} else {
		start, end = guardPeriod(existing, code, start, end)
	}

	existing.SubscriptionCode = &code
	existing.PlanCode = payload.Plan.PlanCode
	existing.CustomerCode = payload.Customer.CustomerCode
	existing.Status = status
	existing.Amount = eventAmount(payload)
	existing.Tier = tierName
	existing.CurrentPeriodStart = start
	existing.CurrentPeriodEnd = end
	existing.NextPaymentAt = payload.NextPaymentDate
	existing.UpdatedAt = now
	return existing
}

func eventAmount(payload *domain.SubscriptionEventData) int64 {
	if payload.Amount > 0 {
		return payload.Amount
	}
	return payload.Plan.Amount
}

func (s *Service) handleSubscriptionDisable(ctx context.Context, data json.RawMessage) error {
	payload, err := decode[domain.SubscriptionEventData](data)
	if err != nil {
		return err
	}
	code := strings.TrimSpace(payload.SubscriptionCode)

	subscription, err := s.findForTransition(ctx, payload, code)
	if err != nil {
		return err
	}
	if subscription == nil {
		s.log.Warn("disable event for unknown subscription", zap.String("subscription_code", code))
		return nil
	}
	if subscription.Status.IsTerminal() {
		return nil
	}

	status := domain.SubscriptionStatusCancelled
	if normalizeStatus(payload.Status) == domain.SubscriptionStatusCompleted {
		status = domain.SubscriptionStatusCompleted
	}

	now := s.clock.Now()
	if err := s.repo.SetSubscriptionStatus(ctx, s.db, subscription.ID, status, now); err != nil {
		return err
	}
	subscription.Status = status
	s.mirrorTenant(ctx, subscription)
	return nil
}

// handleSubscriptionNotRenew marks the row non-renewing and nothing else.
// The row stays authoritative for the current period until the deferred
// switch's confirmation overwrites it.
func (s *Service) handleSubscriptionNotRenew(ctx context.Context, data json.RawMessage) error {
	payload, err := decode[domain.SubscriptionEventData](data)
	if err != nil {
		return err
	}
	code := strings.TrimSpace(payload.SubscriptionCode)

	subscription, err := s.findForTransition(ctx, payload, code)
	if err != nil {
		return err
	}
	if subscription == nil {
		s.log.Warn("not_renew event for unknown subscription", zap.String("subscription_code", code))
		return nil
	}
	if subscription.Status.IsTerminal() {
		// A stale not_renew cannot reopen a closed lifecycle.
		return nil
	}

	return s.repo.SetSubscriptionStatus(ctx, s.db, subscription.ID, domain.SubscriptionStatusNonRenewing, s.clock.Now())
}

// findForTransition locates the row a narrow status transition targets: by
// provider code when the store knows it, otherwise via tenant resolution.
func (s *Service) findForTransition(ctx context.Context, payload *domain.SubscriptionEventData, code string) (*domain.Subscription, error) {
	if code != "" {
		subscription, err := s.repo.FindSubscriptionByCode(ctx, s.db, code)
		if err != nil {
			return nil, err
		}
		if subscription != nil {
			return subscription, nil
		}
	}

	tenantID, err := s.resolveTenant(ctx, payload.Metadata, payload.Customer, code)
	if err != nil {
		s.log.Error("dropping subscription transition without tenant",
			zap.String("subscription_code", code),
			zap.Error(err),
		)
		return nil, err
	}
	return s.repo.FindSubscriptionByTenant(ctx, s.db, tenantID)
}

// handleExpiringCards processes the maintenance payload entry by entry; a
// bad entry is logged and skipped so it cannot block the rest.
func (s *Service) handleExpiringCards(ctx context.Context, data json.RawMessage) error {
	entries, err := decode[[]domain.ExpiringCardEntry](data)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	for _, entry := range *entries {
		code := strings.TrimSpace(entry.Subscription.SubscriptionCode)
		if code == "" {
			s.log.Warn("expiring card entry without subscription code")
			continue
		}

		expiresAt := parseCardExpiry(entry.ExpiryDate)
		if err := s.repo.SetCardExpiring(ctx, s.db, code, expiresAt, now); err != nil {
			s.log.Warn("failed to flag expiring card",
				zap.String("subscription_code", code),
				zap.Error(err),
			)
		}
	}
	return nil
}

// parseCardExpiry accepts the provider's month/year form as well as a
// plain date; nil when unparseable, the flag alone still gets set.
func parseCardExpiry(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{"1/2006", "01/2006", "2006-01-02", time.RFC3339} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			parsed = parsed.UTC()
			return &parsed
		}
	}
	return nil
}
