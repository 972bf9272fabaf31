package recorder

import (
	"context"
	"time"

	"BTCSentinel/internal/model"
)

// BacktestRun is one persisted backtest with the parameters it ran with.
type BacktestRun struct {
	ID     string               `json:"id"`
	At     time.Time            `json:"at"`
	Params interface{}          `json:"params"`
	Result model.BacktestResult `json:"result"`
}

// Recorder persists signal history for later analysis.
type Recorder interface {
	RecordSnapshot(ctx context.Context, snap model.ScoreSnapshot) error
	RecordForecast(ctx context.Context, f model.ForecastResult) error
	RecordBacktest(ctx context.Context, run BacktestRun) error
	RecentScores(ctx context.Context, n int) ([]model.ScoreSnapshot, error)
	Close() error
}
