package recorder

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BTCSentinel/internal/model"
)

func openTemp(t *testing.T) *SQLiteRecorder {
	t.Helper()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "data", "recorder.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func snapshot(at time.Time, cycle float64) model.ScoreSnapshot {
	return model.ScoreSnapshot{
		Time:  at,
		Close: 42000,
		Bottom: []model.SubScore{
			{Name: model.SlotAHR999, Value: 0.4, Points: 20, MaxPoints: 20, Available: true},
			{Name: model.SlotMVRVZ, Value: math.NaN(), MaxPoints: 20, Note: "insufficient history"},
		},
		Heat:        []model.SubScore{{Name: model.SlotMayer, Value: 1.1, Points: 5, MaxPoints: 15, Available: true}},
		BearBottom:  50,
		BullHeat:    10,
		RawCycle:    cycle,
		Cycle:       cycle,
		Tier:        model.Tier{Label: "accumulate", Stance: "buy"},
		Unavailable: 1,
	}
}

func TestSQLiteRecorder_SnapshotsRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := openTemp(t)

	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, r.RecordSnapshot(ctx, snapshot(day, 40)))
	require.NoError(t, r.RecordSnapshot(ctx, snapshot(day.AddDate(0, 0, 1), 45)))
	require.NoError(t, r.RecordSnapshot(ctx, snapshot(day.AddDate(0, 0, 2), 50)))

	got, err := r.RecentScores(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Time.Equal(day.AddDate(0, 0, 2)))
	assert.Equal(t, 50.0, got[0].Cycle)
	assert.True(t, got[1].Time.Equal(day.AddDate(0, 0, 1)))
	assert.NotEmpty(t, got[0].ID)

	require.Len(t, got[0].Bottom, 2)
	assert.InDelta(t, 0.4, got[0].Bottom[0].Value, 1e-12)
	assert.True(t, math.IsNaN(got[0].Bottom[1].Value))
	assert.Equal(t, "insufficient history", got[0].Bottom[1].Note)
	assert.Equal(t, "accumulate", got[0].Tier.Label)

	none, err := r.RecentScores(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteRecorder_ReplacesSnapshotByID(t *testing.T) {
	ctx := context.Background()
	r := openTemp(t)

	s := snapshot(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 40)
	s.ID = "fixed"
	require.NoError(t, r.RecordSnapshot(ctx, s))
	s.Cycle = 60
	require.NoError(t, r.RecordSnapshot(ctx, s))

	got, err := r.RecentScores(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 60.0, got[0].Cycle)
}

func TestSQLiteRecorder_ForecastAndBacktest(t *testing.T) {
	ctx := context.Background()
	r := openTemp(t)

	require.NoError(t, r.RecordForecast(ctx, model.ForecastResult{
		AsOf:         time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Season:       model.SeasonSummer,
		Mode:         "top",
		TargetMedian: 120000,
		IntervalLow:  math.NaN(),
		ExpectedDate: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
		Confidence:   60,
	}))

	run := BacktestRun{
		Params: map[string]float64{"band_low": 0.99},
		Result: model.BacktestResult{
			Trades:        []model.Trade{{PnL: 10, PnLPct: 1}},
			InitialEquity: 1000,
			FinalEquity:   1010,
			ROI:           0.01,
			Bars:          500,
		},
	}
	require.NoError(t, r.RecordBacktest(ctx, run))

	var forecasts, trades int
	require.NoError(t, r.db.QueryRow(`SELECT COUNT(*) FROM forecasts`).Scan(&forecasts))
	require.NoError(t, r.db.QueryRow(`SELECT trades FROM backtest_runs`).Scan(&trades))
	assert.Equal(t, 1, forecasts)
	assert.Equal(t, 1, trades)
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	ctx := context.Background()
	assert.NoError(t, r.RecordSnapshot(ctx, model.ScoreSnapshot{}))
	assert.NoError(t, r.RecordBacktest(ctx, BacktestRun{}))
	got, err := r.RecentScores(ctx, 5)
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, r.Close())
}
