// Package option prices fixed-strike structured products with Black-Scholes
// and resolves the discount rate they are priced with.
package option

import (
	"fmt"
	"math"

	"BTCSentinel/internal/model"
)

const daysPerYear = 365.0

func normCDF(x float64) float64 { return 0.5 * math.Erfc(-x/math.Sqrt2) }

// Price returns the Black-Scholes premium and delta of the option behind a
// product: a call for SELL_HIGH, a put for BUY_LOW.
func Price(product model.ProductType, spot, strike, days, sigma, r float64) (premium, delta float64, err error) {
	if spot <= 0 || strike <= 0 {
		return 0, 0, fmt.Errorf("spot %.2f and strike %.2f must be positive", spot, strike)
	}
	if days <= 0 || sigma <= 0 {
		return 0, 0, fmt.Errorf("days %.2f and sigma %.4f must be positive", days, sigma)
	}
	t := days / daysPerYear
	sqrtT := math.Sqrt(t)
	d1 := (math.Log(spot/strike) + (r+0.5*sigma*sigma)*t) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT
	disc := math.Exp(-r * t)

	switch product {
	case model.SellHigh:
		return spot*normCDF(d1) - strike*disc*normCDF(d2), normCDF(d1), nil
	case model.BuyLow:
		return strike*disc*normCDF(-d2) - spot*normCDF(-d1), normCDF(d1) - 1, nil
	}
	return 0, 0, fmt.Errorf("unknown product %q", product)
}

// Quote prices one strike and annualizes the premium over the principal: spot
// for a covered call, strike for a cash-secured put. APY is floored at minAPY.
func Quote(product model.ProductType, spot, strike, days, sigma float64, rate model.RateQuote, minAPY float64) (model.OptionQuote, error) {
	premium, delta, err := Price(product, spot, strike, days, sigma, rate.Rate)
	if err != nil {
		return model.OptionQuote{}, err
	}
	principal := spot
	if product == model.BuyLow {
		principal = strike
	}
	apy := premium / principal * daysPerYear / days
	if apy < minAPY {
		apy = minAPY
	}
	return model.OptionQuote{
		Product:    product,
		Spot:       spot,
		Strike:     strike,
		Days:       days,
		Volatility: sigma,
		Rate:       rate,
		Premium:    premium,
		APY:        apy,
		Delta:      delta,
	}, nil
}
