package recorder

import (
	"context"

	"BTCSentinel/internal/model"
)

// NoopRecorder is used when no recorder database is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordSnapshot(context.Context, model.ScoreSnapshot) error  { return nil }
func (n *NoopRecorder) RecordForecast(context.Context, model.ForecastResult) error { return nil }
func (n *NoopRecorder) RecordBacktest(context.Context, BacktestRun) error          { return nil }
func (n *NoopRecorder) Close() error                                               { return nil }

func (n *NoopRecorder) RecentScores(context.Context, int) ([]model.ScoreSnapshot, error) {
	return nil, nil
}
