// Package ingest is the webhook entry point: it verifies the delivery,
// parses the envelope and routes the event to the reconciliation engine.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kolohq/kolo/internal/billing/domain"
	"github.com/kolohq/kolo/internal/billing/webhook"
	"github.com/kolohq/kolo/internal/clock"
	"github.com/kolohq/kolo/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Verifier *webhook.Verifier
	Service  domain.Service
	Metrics  *metrics.WebhookMetrics
}

type Ingestor struct {
	log      *zap.Logger
	clock    clock.Clock
	verifier *webhook.Verifier
	service  domain.Service
	metrics  *metrics.WebhookMetrics
}

func NewIngestor(p Params) domain.Ingestor {
	return &Ingestor{
		log:      p.Log.Named("billing.ingest"),
		clock:    p.Clock,
		verifier: p.Verifier,
		service:  p.Service,
		metrics:  p.Metrics,
	}
}

// knownEventTypes separates routed events from acknowledged no-ops in the
// outcome metrics.
var knownEventTypes = map[string]struct{}{
	domain.EventSubscriptionCreate:   {},
	domain.EventSubscriptionDisable:  {},
	domain.EventSubscriptionNotRenew: {},
	domain.EventInvoiceCreate:        {},
	domain.EventInvoiceFailed:        {},
	domain.EventInvoiceUpdate:        {},
	domain.EventChargeSuccess:        {},
	domain.EventExpiringCards:        {},
}

// IngestWebhook verifies and routes one delivery. ErrInvalidSignature is
// the only error the transport turns into a rejection; everything else is
// logged, counted and acknowledged so the provider does not retry forever.
func (i *Ingestor) IngestWebhook(ctx context.Context, payload []byte, signature string) error {
	if !i.verifier.Verify(payload, signature) {
		i.metrics.IncSignatureRejected()
		i.log.Warn("rejected webhook with invalid signature")
		return domain.ErrInvalidSignature
	}

	var event domain.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		i.log.Error("failed to parse webhook envelope", zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	i.metrics.IncReceived(event.Type)
	if _, ok := knownEventTypes[event.Type]; !ok {
		i.metrics.IncProcessed(event.Type, metrics.OutcomeIgnored)
		i.log.Info("acknowledging unhandled event type", zap.String("event_type", event.Type))
		return nil
	}

	started := i.clock.Now()
	err := i.service.ProcessEvent(ctx, &event)
	i.metrics.ObserveHandlerDuration(event.Type, i.clock.Now().Sub(started))

	if err != nil {
		i.metrics.IncProcessed(event.Type, metrics.OutcomeFailed)
		i.log.Error("webhook handler failed",
			zap.String("event_type", event.Type),
			zap.Error(err),
		)
		return err
	}

	i.metrics.IncProcessed(event.Type, metrics.OutcomeProcessed)
	return nil
}
