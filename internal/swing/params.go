// Package swing implements the trend-following swing strategy: entry and exit
// rules, an all-in backtest, grid search over the entry filters and Kelly
// position sizing.
package swing

import (
	"fmt"
	"strings"

	"BTCSentinel/internal/calculator"
)

// FundingNaNPolicy decides how a missing funding reading affects entry.
type FundingNaNPolicy string

const (
	// FundingUnknownBlocks treats a missing reading as crowded.
	FundingUnknownBlocks FundingNaNPolicy = "unknown_blocks"
	// FundingMissingPasses lets entries through when funding is unknown.
	FundingMissingPasses FundingNaNPolicy = "missing_passes"
)

// ExitMAs lists the supported defensive moving averages.
var ExitMAs = []string{"EMA20", "SMA50", "SMA100"}

// Params configures the rules and the backtest.
type Params struct {
	TrendWindow    int              `yaml:"trend_window" json:"trend_window"`
	ShortWindow    int              `yaml:"short_window" json:"short_window"`
	RSIMin         float64          `yaml:"rsi_min" json:"rsi_min"`
	ADXMin         float64          `yaml:"adx_min" json:"adx_min"`
	FundingCap     float64          `yaml:"funding_cap" json:"funding_cap"`
	BandLow        float64          `yaml:"band_low" json:"band_low"`
	BandHigh       float64          `yaml:"band_high" json:"band_high"`
	ExitMA         string           `yaml:"exit_ma" json:"exit_ma"`
	FeeRate        float64          `yaml:"fee_rate" json:"fee_rate"`
	Slippage       float64          `yaml:"slippage" json:"slippage"`
	InitialEquity  float64          `yaml:"initial_equity" json:"initial_equity"`
	PeriodsPerYear float64          `yaml:"periods_per_year" json:"periods_per_year"`
	FundingPolicy  FundingNaNPolicy `yaml:"funding_policy" json:"funding_policy"`
}

// DefaultParams returns the daily-bar defaults.
func DefaultParams() Params {
	return Params{
		TrendWindow:    200,
		ShortWindow:    20,
		RSIMin:         50,
		ADXMin:         20,
		FundingCap:     0.0005,
		BandLow:        0,
		BandHigh:       1.5,
		ExitMA:         "SMA50",
		FeeRate:        0.001,
		Slippage:       0.0005,
		InitialEquity:  10000,
		PeriodsPerYear: 365,
		FundingPolicy:  FundingUnknownBlocks,
	}
}

// Validate checks the parameter set.
func (p Params) Validate() error {
	if p.TrendWindow <= 0 || p.ShortWindow <= 0 {
		return fmt.Errorf("windows must be positive (trend=%d short=%d)", p.TrendWindow, p.ShortWindow)
	}
	if p.BandLow >= p.BandHigh {
		return fmt.Errorf("band low %.2f must be below band high %.2f", p.BandLow, p.BandHigh)
	}
	if !ValidExitMA(p.ExitMA) {
		return fmt.Errorf("exit ma %q not one of %s", p.ExitMA, strings.Join(ExitMAs, ", "))
	}
	if _, _, err := calculator.ParseMA(p.ExitMA); err != nil {
		return err
	}
	switch p.FundingPolicy {
	case FundingUnknownBlocks, FundingMissingPasses:
	default:
		return fmt.Errorf("unknown funding policy %q", p.FundingPolicy)
	}
	if p.FeeRate < 0 || p.Slippage < 0 {
		return fmt.Errorf("fee and slippage must be non-negative")
	}
	if p.InitialEquity <= 0 {
		return fmt.Errorf("initial equity must be positive")
	}
	return nil
}

// ValidExitMA reports whether name is a supported defensive MA.
func ValidExitMA(name string) bool {
	up := strings.ToUpper(strings.TrimSpace(name))
	for _, m := range ExitMAs {
		if up == m {
			return true
		}
	}
	return false
}

// ValidFundingPolicy reports whether s names a known policy.
func ValidFundingPolicy(s string) bool {
	switch FundingNaNPolicy(s) {
	case FundingUnknownBlocks, FundingMissingPasses:
		return true
	}
	return false
}
