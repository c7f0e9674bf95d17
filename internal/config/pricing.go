package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PlanKind distinguishes recurring subscriptions from one-time credit packs.
type PlanKind string

const (
	PlanKindRecurring PlanKind = "recurring"
	PlanKindOneTime   PlanKind = "one_time"
)

// PlanSpec is read-only plan reference data. Display credits are the
// user-facing unit; actual credits are the internal billing unit.
type PlanSpec struct {
	ID                  string   `mapstructure:"id"`
	DisplayCreditsTotal float64  `mapstructure:"displayCreditsTotal"`
	ActualCreditsTotal  float64  `mapstructure:"actualCreditsTotal"`
	PriceMonthly        int64    `mapstructure:"priceMonthly"` // cents
	Kind                PlanKind `mapstructure:"kind"`
}

// PricingConfig carries per-generation credit costs and the plan catalog.
type PricingConfig struct {
	ImageCredits          float64    `mapstructure:"imageCredits"`
	VideoCreditsPerSecond float64    `mapstructure:"videoCreditsPerSecond"`
	DefaultVideoSeconds   float64    `mapstructure:"defaultVideoSeconds"`
	Plans                 []PlanSpec `mapstructure:"plans"`
}

const FreePlanID = "free"

func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		ImageCredits:          40,
		VideoCreditsPerSecond: 10,
		DefaultVideoSeconds:   5,
		Plans: []PlanSpec{
			{ID: FreePlanID, DisplayCreditsTotal: 80, ActualCreditsTotal: 800, PriceMonthly: 0, Kind: PlanKindRecurring},
			{ID: "creator", DisplayCreditsTotal: 1000, ActualCreditsTotal: 10000, PriceMonthly: 1900, Kind: PlanKindRecurring},
			{ID: "studio", DisplayCreditsTotal: 3000, ActualCreditsTotal: 30000, PriceMonthly: 4900, Kind: PlanKindRecurring},
			{ID: "credit_pack", DisplayCreditsTotal: 0, ActualCreditsTotal: 0, PriceMonthly: 900, Kind: PlanKindOneTime},
		},
	}
}

// PricingHolder hot-reloads pricing.yml without restarting the process.
type PricingHolder struct {
	current atomic.Value // holds PricingConfig
}

func NewPricingHolder() (*PricingHolder, error) {
	v := viper.New()

	v.SetConfigName("pricing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/lumera/config")
	v.AddConfigPath("/etc/lumera")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LUMERA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPricingConfig()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		v.SetDefault("pricing.imageCredits", defaults.ImageCredits)
		v.SetDefault("pricing.videoCreditsPerSecond", defaults.VideoCreditsPerSecond)
		v.SetDefault("pricing.defaultVideoSeconds", defaults.DefaultVideoSeconds)
		v.SetDefault("pricing.plans", defaults.Plans)
	}

	var cfg PricingConfig
	if err := v.UnmarshalKey("pricing", &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Plans) == 0 {
		cfg.Plans = defaults.Plans
	}
	if err := validatePricingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PricingHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PricingConfig
		if err := v.UnmarshalKey("pricing", &updated); err != nil {
			log.Printf("[pricing-config] reload failed: %v", err)
			return
		}
		if err := validatePricingConfig(updated); err != nil {
			log.Printf("[pricing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[pricing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPricingHolder wraps a fixed config, bypassing file discovery.
func NewStaticPricingHolder(cfg PricingConfig) *PricingHolder {
	holder := &PricingHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PricingHolder) Get() PricingConfig {
	return h.current.Load().(PricingConfig)
}

// Plan looks up a plan by id; the free plan is the fallback for unknown ids.
func (c PricingConfig) Plan(id string) (PlanSpec, bool) {
	for _, p := range c.Plans {
		if p.ID == id {
			return p, true
		}
	}
	for _, p := range c.Plans {
		if p.ID == FreePlanID {
			return p, false
		}
	}
	return PlanSpec{ID: FreePlanID, Kind: PlanKindRecurring}, false
}

func validatePricingConfig(cfg PricingConfig) error {
	if cfg.ImageCredits < 0 || cfg.VideoCreditsPerSecond < 0 || cfg.DefaultVideoSeconds < 0 {
		return errors.New("pricing: credit costs cannot be negative")
	}
	if len(cfg.Plans) == 0 {
		return errors.New("pricing.plans cannot be empty")
	}
	for _, p := range cfg.Plans {
		if p.ID == "" {
			return errors.New("pricing.plans: plan id is required")
		}
		if p.DisplayCreditsTotal < 0 || p.ActualCreditsTotal < 0 {
			return errors.New("pricing.plans: credit totals cannot be negative")
		}
	}
	return nil
}
