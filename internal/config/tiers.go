package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// TierMapping maps provider plan codes to internal tier names. The zero
// value maps nothing; unmapped codes fall back to the baseline tier at the
// resolver level, not here.
type TierMapping struct {
	Mappings map[string]string `mapstructure:"mappings"`
}

// TierMappingHolder exposes the current mapping and swaps it atomically on
// config reload so in-flight handlers keep a consistent snapshot.
type TierMappingHolder struct {
	current atomic.Value // holds TierMapping
}

// NewTierMappingHolder reads tiers.yml and watches it for changes. A
// missing file is not an error: the mapping starts empty and every plan
// resolves to the baseline tier.
func NewTierMappingHolder() (*TierMappingHolder, error) {
	v := viper.New()

	v.SetConfigName("tiers")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/kolo/config")
	v.AddConfigPath("/etc/kolo")
	v.AddConfigPath(".")

	v.SetEnvPrefix("KOLO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		v.SetDefault("tiers.mappings", map[string]string{})
	}

	var mapping TierMapping
	if err := v.UnmarshalKey("tiers", &mapping); err != nil {
		return nil, err
	}
	if err := validateTierMapping(mapping); err != nil {
		return nil, err
	}

	holder := &TierMappingHolder{}
	holder.current.Store(mapping)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated TierMapping
		if err := v.UnmarshalKey("tiers", &updated); err != nil {
			log.Printf("[tier-config] reload failed: %v", err)
			return
		}
		if err := validateTierMapping(updated); err != nil {
			log.Printf("[tier-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
	})

	return holder, nil
}

// NewStaticTierMapping builds a holder around a fixed mapping. Test seam.
func NewStaticTierMapping(mappings map[string]string) *TierMappingHolder {
	holder := &TierMappingHolder{}
	holder.current.Store(TierMapping{Mappings: mappings})
	return holder
}

// Current returns the active mapping snapshot.
func (h *TierMappingHolder) Current() TierMapping {
	mapping, _ := h.current.Load().(TierMapping)
	return mapping
}

// Lookup resolves a plan code against the active snapshot.
func (h *TierMappingHolder) Lookup(planCode string) (string, bool) {
	mapping := h.Current()
	if mapping.Mappings == nil {
		return "", false
	}
	tier, ok := mapping.Mappings[strings.TrimSpace(planCode)]
	if !ok || strings.TrimSpace(tier) == "" {
		return "", false
	}
	return tier, true
}

func validateTierMapping(mapping TierMapping) error {
	for code, tier := range mapping.Mappings {
		if strings.TrimSpace(code) == "" {
			return errors.New("tier mapping contains empty plan code")
		}
		if strings.TrimSpace(tier) == "" {
			return errors.New("tier mapping contains empty tier name")
		}
	}
	return nil
}
