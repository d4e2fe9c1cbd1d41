package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/kolohq/kolo/internal/billing/domain"
	"go.uber.org/zap"
)

// handleInvoiceCreate appends a renewal charge to the usage ledger.
// Invoice events carry explicit period bounds, so the row is written with
// its true period when the provider supplied one.
func (s *Service) handleInvoiceCreate(ctx context.Context, data json.RawMessage) error {
	payload, err := decode[domain.InvoiceEventData](data)
	if err != nil {
		return err
	}

	reference := invoiceReference(payload)
	if reference == "" {
		return domain.ErrInvalidPayload
	}

	return s.appendInvoiceRecord(ctx, payload, reference)
}

// appendInvoiceRecord writes the ledger row an invoice event describes.
// Shared by invoice.create and the update-before-create fallback.
func (s *Service) appendInvoiceRecord(ctx context.Context, payload *domain.InvoiceEventData, reference string) error {
	code := strings.TrimSpace(payload.Subscription.SubscriptionCode)
	subscription, err := s.findInvoiceSubscription(ctx, payload, code)
	if err != nil {
		return err
	}
	if subscription == nil {
		// Ledger rows need an owning subscription; the provider will
		// redeliver after the confirmation lands.
		s.log.Warn("invoice for unknown subscription",
			zap.String("subscription_code", code),
			zap.String("reference", reference),
		)
		return domain.ErrSubscriptionNotFound
	}

	now := s.clock.Now()
	anchor := now
	if payload.PaidAt != nil {
		anchor = *payload.PaidAt
	}

	record := &domain.UsageRecord{
		ID:             s.genID.Generate(),
		TenantID:       subscription.TenantID,
		SubscriptionID: subscription.ID,
		Reference:      reference,
		Amount:         payload.Amount,
		Kind:           domain.UsageKindInvoice,
		Paid:           payload.Paid,
		PaidAt:         payload.PaidAt,
		PeriodStart:    anchor,
		PeriodEnd:      anchor,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if payload.PeriodStart != nil && payload.PeriodEnd != nil {
		record.PeriodStart = *payload.PeriodStart
		record.PeriodEnd = *payload.PeriodEnd
	}

	inserted, err := s.repo.InsertUsageRecord(ctx, s.db, record)
	if err != nil {
		return err
	}
	if !inserted {
		s.log.Debug("invoice already recorded", zap.String("reference", reference))
	}
	return nil
}

// handleInvoiceFailed flips the matching ledger row unpaid and, when the
// provider has flagged the subscription, marks it past due.
func (s *Service) handleInvoiceFailed(ctx context.Context, data json.RawMessage) error {
	payload, err := decode[domain.InvoiceEventData](data)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	if reference := invoiceReference(payload); reference != "" {
		err := s.repo.MarkUsageUnpaid(ctx, s.db, reference, now)
		if err != nil && !errors.Is(err, domain.ErrUsageRecordNotFound) {
			return err
		}
		if errors.Is(err, domain.ErrUsageRecordNotFound) {
			// The invoice.create for this reference may still be in flight.
			s.log.Warn("payment failure for unknown usage record", zap.String("reference", reference))
		}
	}

	if !providerFlaggedAttention(payload) {
		return nil
	}

	code := strings.TrimSpace(payload.Subscription.SubscriptionCode)
	subscription, err := s.findInvoiceSubscription(ctx, payload, code)
	if err != nil {
		return err
	}
	if subscription == nil {
		s.log.Warn("payment failure for unknown subscription", zap.String("subscription_code", code))
		return nil
	}

	if err := s.repo.SetSubscriptionStatus(ctx, s.db, subscription.ID, domain.SubscriptionStatusPastDue, now); err != nil {
		return err
	}
	subscription.Status = domain.SubscriptionStatusPastDue
	s.mirrorTenant(ctx, subscription)
	return nil
}

// handleInvoiceUpdate applies the final payment outcome to the ledger row.
// An update that outruns its invoice.create writes the row itself, carrying
// the final state directly, so the order the two arrive in does not matter.
func (s *Service) handleInvoiceUpdate(ctx context.Context, data json.RawMessage) error {
	payload, err := decode[domain.InvoiceEventData](data)
	if err != nil {
		return err
	}

	reference := invoiceReference(payload)
	if reference == "" {
		return domain.ErrInvalidPayload
	}

	record, err := s.repo.FindUsageByReference(ctx, s.db, reference)
	if err != nil {
		return err
	}
	if record == nil {
		s.log.Info("invoice update before create, writing ledger row", zap.String("reference", reference))
		return s.appendInvoiceRecord(ctx, payload, reference)
	}

	return s.repo.PatchUsagePayment(ctx, s.db, reference, payload.Paid, payload.PaidAt, s.clock.Now())
}

// findInvoiceSubscription resolves the subscription an invoice belongs to,
// by provider code first and tenant resolution as fallback.
func (s *Service) findInvoiceSubscription(ctx context.Context, payload *domain.InvoiceEventData, code string) (*domain.Subscription, error) {
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
		if errors.Is(err, domain.ErrUnresolvedTenant) {
			return nil, nil
		}
		return nil, err
	}
	return s.repo.FindSubscriptionByTenant(ctx, s.db, tenantID)
}

// invoiceReference picks the reference key the ledger row is stored under:
// the settling transaction's reference when present, the invoice code
// otherwise.
func invoiceReference(payload *domain.InvoiceEventData) string {
	if payload.Transaction != nil {
		if ref := strings.TrimSpace(payload.Transaction.Reference); ref != "" {
			return ref
		}
	}
	return strings.TrimSpace(payload.InvoiceCode)
}

func providerFlaggedAttention(payload *domain.InvoiceEventData) bool {
	for _, raw := range []string{payload.Status, payload.Subscription.Status} {
		status := domain.SubscriptionStatus(strings.ToLower(strings.TrimSpace(raw)))
		if status == domain.SubscriptionStatusAttention || status == domain.SubscriptionStatusPastDue {
			return true
		}
	}
	return false
}
