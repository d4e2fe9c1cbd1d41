package billing

import (
	"github.com/kolohq/kolo/internal/billing/ingest"
	"github.com/kolohq/kolo/internal/billing/paystack"
	"github.com/kolohq/kolo/internal/billing/repository"
	"github.com/kolohq/kolo/internal/billing/service"
	"github.com/kolohq/kolo/internal/billing/tier"
	"github.com/kolohq/kolo/internal/billing/webhook"
	"github.com/kolohq/kolo/internal/config"
	"github.com/kolohq/kolo/internal/observability/metrics"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(repository.Provide),
	fx.Provide(newVerifier),
	fx.Provide(newWebhookMetrics),
	fx.Provide(tier.NewResolver),
	fx.Provide(paystack.NewClient),
	fx.Provide(service.NewService),
	fx.Provide(ingest.NewIngestor),
)

func newVerifier(cfg config.Config) *webhook.Verifier {
	return webhook.NewVerifier(cfg.PaystackSecretKey)
}

func newWebhookMetrics(cfg config.Config) *metrics.WebhookMetrics {
	return metrics.WebhookWithConfig(metrics.Config{
		ServiceName: cfg.AppName,
		Environment: cfg.Environment,
	})
}
