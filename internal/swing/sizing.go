package swing

import (
	"fmt"

	"BTCSentinel/internal/model"
)

// Risk bounds for a single position, as a fraction of equity.
const (
	MinRisk = 0.01
	MaxRisk = 0.05
)

// Size converts a risk budget into units: equity*risk spread over the distance
// to the stop, with notional capped at equity*maxLeverage.
func Size(entry, stop, equity, risk, maxLeverage float64) (model.PositionPlan, error) {
	if risk < MinRisk || risk > MaxRisk {
		return model.PositionPlan{}, fmt.Errorf("risk %.4f outside [%.2f, %.2f]", risk, MinRisk, MaxRisk)
	}
	if entry <= stop || stop <= 0 {
		return model.PositionPlan{}, fmt.Errorf("entry %.2f must be above a positive stop %.2f", entry, stop)
	}
	if equity <= 0 || maxLeverage <= 0 {
		return model.PositionPlan{}, fmt.Errorf("equity and max leverage must be positive")
	}

	plan := model.PositionPlan{StopPrice: stop, RiskCash: equity * risk}
	plan.Units = plan.RiskCash / (entry - stop)
	plan.Notional = plan.Units * entry

	// Cap to available leverage
	if limit := equity * maxLeverage; plan.Notional > limit {
		plan.Notional = limit
		plan.Units = limit / entry
		plan.RiskCash = plan.Units * (entry - stop)
		plan.Capped = true
	}
	plan.Leverage = plan.Notional / equity
	return plan, nil
}
