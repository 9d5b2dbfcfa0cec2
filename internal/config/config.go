// Package config loads the per-profile x coin Configuration (spec §6) from
// a YAML document via spf13/viper, following the layered file+env pattern
// in 0xtitan6-polymarket-mm's internal/config.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// CoinConfig is one (profile, coin) pair's tunables, spec §6.
type CoinConfig struct {
	TradeAllowedTimeLeft float64  `mapstructure:"trade_allowed_time_left"`
	TradeStopTimeLeft    *float64 `mapstructure:"trade_stop_time_left"`
	MinGap               float64  `mapstructure:"min_gap"`
	MaxSpendTotal        float64  `mapstructure:"max_spend_total"`
	MinSpendTotal        float64  `mapstructure:"min_spend_total"`
	MaxSpread            *float64 `mapstructure:"max_spread"`
	MinDepthValue        *float64 `mapstructure:"min_depth_value"`
	MaxPriceStalenessSec *float64 `mapstructure:"max_price_staleness_sec"`
	FillUsd              *float64 `mapstructure:"fill_usd"`

	DecisionLatencyMs int64 `mapstructure:"decision_latency_ms"`
	CooldownMs        int64 `mapstructure:"cooldown_ms"`
}

// ProfileConfig is one trading profile: a CoinConfig per coin it trades.
// The profile's name is its key in Document.Profiles.
type ProfileConfig struct {
	Coins map[string]CoinConfig `mapstructure:"coins"`
}

// Document is the top-level YAML shape: one ProfileConfig per profile name.
type Document struct {
	Profiles map[string]ProfileConfig `mapstructure:"profiles"`
}

// ValidationError contextualizes a rejected field with the profile/coin it
// belongs to, per spec §7's Config error taxonomy.
type ValidationError struct {
	Profile string
	Coin    string
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: profile %q coin %q field %q: %s", e.Profile, e.Coin, e.Field, e.Reason)
}

// Load reads path (YAML) with ARB_-prefixed env var overrides, following
// the same viper wiring as 0xtitan6-polymarket-mm's config loader.
func Load(path string) (*Document, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var doc Document
	if err := v.Unmarshal(&doc); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &doc, nil
}

// Validate checks every documented constraint from spec §6, profile by
// profile, coin by coin, returning the first violation found.
func (d *Document) Validate() error {
	for profile, pc := range d.Profiles {
		for coin, cc := range pc.Coins {
			if err := cc.validate(profile, coin); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c CoinConfig) validate(profile, coin string) error {
	if c.TradeAllowedTimeLeft <= 0 {
		return &ValidationError{profile, coin, "trade_allowed_time_left", "must be > 0"}
	}
	if c.TradeStopTimeLeft != nil {
		if *c.TradeStopTimeLeft <= 0 || *c.TradeStopTimeLeft >= c.TradeAllowedTimeLeft {
			return &ValidationError{profile, coin, "trade_stop_time_left", "must be in (0, trade_allowed_time_left)"}
		}
	}
	if c.MinGap <= 0 || c.MinGap >= 1 {
		return &ValidationError{profile, coin, "min_gap", "must be in (0, 1)"}
	}
	if c.MaxSpendTotal <= 0 {
		return &ValidationError{profile, coin, "max_spend_total", "must be > 0"}
	}
	if c.MinSpendTotal < 0 || c.MinSpendTotal > c.MaxSpendTotal {
		return &ValidationError{profile, coin, "min_spend_total", "must be in [0, max_spend_total]"}
	}
	if c.MaxSpread != nil && *c.MaxSpread <= 0 {
		return &ValidationError{profile, coin, "max_spread", "must be > 0 when set"}
	}
	if c.MinDepthValue != nil && *c.MinDepthValue < 0 {
		return &ValidationError{profile, coin, "min_depth_value", "must be >= 0 when set"}
	}
	if c.MaxPriceStalenessSec != nil && *c.MaxPriceStalenessSec <= 0 {
		return &ValidationError{profile, coin, "max_price_staleness_sec", "must be > 0 when set"}
	}
	if c.FillUsd != nil && *c.FillUsd > c.MaxSpendTotal {
		return &ValidationError{profile, coin, "fill_usd", "must be <= max_spend_total when set"}
	}
	if c.DecisionLatencyMs < 0 {
		return &ValidationError{profile, coin, "decision_latency_ms", "must be >= 0"}
	}
	if c.CooldownMs < 0 {
		return &ValidationError{profile, coin, "cooldown_ms", "must be >= 0"}
	}
	return nil
}
