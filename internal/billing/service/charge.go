package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/kolohq/kolo/internal/billing/domain"
	"github.com/kolohq/kolo/internal/billing/period"
	"go.uber.org/zap"
)

// handleChargeSuccess records a settled payment. It often arrives before
// the subscription confirmation, so it may have to create a preliminary
// subscription row, and it appends the ledger row with a placeholder
// period that the confirmation later repairs.
func (s *Service) handleChargeSuccess(ctx context.Context, data json.RawMessage) error {
	payload, err := decode[domain.ChargeEventData](data)
	if err != nil {
		return err
	}
	if payload.Plan == nil || strings.TrimSpace(payload.Plan.PlanCode) == "" {
		// One-off charge, not subscription billing.
		s.log.Debug("ignoring charge without plan", zap.String("reference", payload.Reference))
		return nil
	}

	tenantID, err := s.resolveTenant(ctx, payload.Metadata, payload.Customer, "")
	if err != nil {
		s.log.Error("dropping charge without tenant",
			zap.String("reference", payload.Reference),
			zap.Error(err),
		)
		return err
	}

	tierName := s.tiers.Resolve(payload.Plan.PlanCode)
	now := s.clock.Now()
	paidAt := now
	if payload.PaidAt != nil {
		paidAt = *payload.PaidAt
	}

	subscription, err := s.repo.FindSubscriptionByTenant(ctx, s.db, tenantID)
	if err != nil {
		return err
	}

	if subscription != nil {
		err := s.repo.UpdateSubscriptionCharge(ctx, s.db, subscription.ID, payload.Plan.PlanCode, payload.Amount, tierName, domain.SubscriptionStatusActive, now)
		if err != nil {
			return err
		}
		subscription.PlanCode = payload.Plan.PlanCode
		subscription.Amount = payload.Amount
		subscription.Tier = tierName
		subscription.Status = domain.SubscriptionStatusActive
	} else {
		subscription = &domain.Subscription{
			ID:           s.genID.Generate(),
			TenantID:     tenantID,
			PlanCode:     payload.Plan.PlanCode,
			CustomerCode: payload.Customer.CustomerCode,
			Status:       domain.SubscriptionStatusActive,
			Amount:       payload.Amount,
			Tier:         tierName,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.repo.InsertSubscription(ctx, s.db, subscription); err != nil {
			return err
		}
		s.log.Info("created preliminary subscription from charge",
			zap.String("tenant_id", tenantID.String()),
			zap.String("plan_code", payload.Plan.PlanCode),
		)
	}

	s.mirrorTenant(ctx, subscription)

	if reference := strings.TrimSpace(payload.Reference); reference != "" {
		record := &domain.UsageRecord{
			ID:             s.genID.Generate(),
			TenantID:       tenantID,
			SubscriptionID: subscription.ID,
			Reference:      reference,
			Amount:         payload.Amount,
			Kind:           domain.UsageKindPayment,
			Paid:           true,
			PaidAt:         &paidAt,
			PeriodStart:    paidAt,
			PeriodEnd:      paidAt,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		// When the confirmation already landed the true bounds are known,
		// so no placeholder is needed.
		if subscription.CurrentPeriodStart != nil && subscription.CurrentPeriodEnd != nil {
			record.PeriodStart = *subscription.CurrentPeriodStart
			record.PeriodEnd = *subscription.CurrentPeriodEnd
		}
		inserted, err := s.repo.InsertUsageRecord(ctx, s.db, record)
		if err != nil {
			return err
		}
		if !inserted {
			s.log.Debug("charge already recorded", zap.String("reference", reference))
		}
	}

	if payload.Authorization != nil && payload.Authorization.Reusable && subscription.IsPreliminary() {
		s.provisionProviderSubscription(ctx, subscription, payload)
	}
	return nil
}

// provisionProviderSubscription eagerly creates the provider-side
// subscription from the charge's reusable authorization rather than
// waiting for a confirmation that may never come. Failures are logged and
// absorbed; the charge itself is already recorded.
func (s *Service) provisionProviderSubscription(ctx context.Context, subscription *domain.Subscription, payload *domain.ChargeEventData) {
	err := s.provider.CreateSubscription(ctx, payload.Customer.CustomerCode, payload.Plan.PlanCode, payload.Authorization.AuthorizationCode)
	switch {
	case err == nil:
		// The confirmation webhook for the subscription we just created
		// will complete the preliminary row.
		s.log.Info("created provider subscription from charge authorization",
			zap.String("tenant_id", subscription.TenantID.String()),
			zap.String("plan_code", payload.Plan.PlanCode),
		)
	case errors.Is(err, domain.ErrSubscriptionExists):
		s.adoptProviderSubscription(ctx, subscription, payload.Customer.CustomerCode, payload.Plan.PlanCode)
	default:
		s.log.Warn("failed to create provider subscription",
			zap.String("tenant_id", subscription.TenantID.String()),
			zap.String("plan_code", payload.Plan.PlanCode),
			zap.Error(err),
		)
	}
}

// adoptProviderSubscription completes the preliminary row from the
// subscription that already exists provider-side, so the record does not
// stay preliminary waiting for a confirmation that was already delivered
// elsewhere or lost.
func (s *Service) adoptProviderSubscription(ctx context.Context, subscription *domain.Subscription, customerCode, planCode string) {
	remote, err := s.provider.FindSubscription(ctx, customerCode, planCode)
	if err != nil {
		s.log.Warn("failed to look up existing provider subscription",
			zap.String("customer_code", customerCode),
			zap.String("plan_code", planCode),
			zap.Error(err),
		)
		return
	}
	if remote == nil {
		s.log.Info("provider subscription not listed yet, leaving row preliminary",
			zap.String("customer_code", customerCode),
			zap.String("plan_code", planCode),
		)
		return
	}

	start, end := period.Calculate(remote.CreatedAt, remote.NextPaymentDate, remote.Interval)

	subscription.SubscriptionCode = strPtr(remote.SubscriptionCode)
	subscription.Status = normalizeStatus(remote.Status)
	if remote.Amount > 0 {
		subscription.Amount = remote.Amount
	}
	if start != nil {
		subscription.CurrentPeriodStart = start
		subscription.CurrentPeriodEnd = end
	}
	subscription.NextPaymentAt = remote.NextPaymentDate
	subscription.UpdatedAt = s.clock.Now()

	if err := s.repo.OverwriteSubscription(ctx, s.db, subscription); err != nil {
		s.log.Error("failed to adopt provider subscription",
			zap.String("tenant_id", subscription.TenantID.String()),
			zap.String("subscription_code", remote.SubscriptionCode),
			zap.Error(err),
		)
		return
	}

	s.log.Info("adopted existing provider subscription",
		zap.String("tenant_id", subscription.TenantID.String()),
		zap.String("subscription_code", remote.SubscriptionCode),
	)
	s.mirrorTenant(ctx, subscription)
	s.repairUsagePeriods(ctx, subscription)
}
