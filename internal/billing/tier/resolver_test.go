package tier

import (
	"testing"

	"github.com/kolohq/kolo/internal/config"
	"go.uber.org/zap"
)

func newTestResolver(mappings map[string]string) *Resolver {
	holder := config.NewStaticTierMapping(mappings)
	return NewResolver(zap.NewNop(), holder, config.Config{BaselineTier: "starter"})
}

func TestResolveMappedPlan(t *testing.T) {
	r := newTestResolver(map[string]string{"PLN_growth": "growth"})

	if got := r.Resolve("PLN_growth"); got != "growth" {
		t.Fatalf("expected growth, got %s", got)
	}
}

func TestResolveUnmappedPlanUsesBaseline(t *testing.T) {
	r := newTestResolver(map[string]string{"PLN_growth": "growth"})

	if got := r.Resolve("PLN_unknown"); got != "starter" {
		t.Fatalf("expected starter, got %s", got)
	}
}

func TestResolveEmptyMapping(t *testing.T) {
	r := newTestResolver(nil)

	if got := r.Resolve("PLN_growth"); got != "starter" {
		t.Fatalf("expected starter with empty mapping, got %s", got)
	}
}
