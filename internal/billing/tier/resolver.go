// Package tier maps opaque provider plan codes to internal tier names.
package tier

import (
	"github.com/kolohq/kolo/internal/config"
	"go.uber.org/zap"
)

// Resolver looks plan codes up against the tier mapping, falling back to
// the baseline tier for anything unmapped.
type Resolver struct {
	log      *zap.Logger
	holder   *config.TierMappingHolder
	baseline string
}

func NewResolver(log *zap.Logger, holder *config.TierMappingHolder, cfg config.Config) *Resolver {
	return &Resolver{
		log:      log.Named("billing.tier"),
		holder:   holder,
		baseline: cfg.BaselineTier,
	}
}

// Resolve never fails: an unmapped plan code resolves to the baseline tier
// with a warning, so an out-of-date mapping table cannot stall event
// processing.
func (r *Resolver) Resolve(planCode string) string {
	if name, ok := r.holder.Lookup(planCode); ok {
		return name
	}

	r.log.Warn("plan code not in tier mapping, using baseline tier",
		zap.String("plan_code", planCode),
		zap.String("baseline_tier", r.baseline),
	)
	return r.baseline
}
