package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"BTCSentinel/internal/logger"
	"BTCSentinel/internal/model"
)

// SQLiteRecorder persists snapshots, forecasts and backtest summaries to a
// single SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log *logger.Entry
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create recorder dir: %w", err)
	}
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: logger.GetLogger().WithComponent("recorder")}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	r.log.WithField("path", dbPath).Info("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL`,
		`CREATE TABLE IF NOT EXISTS score_snapshots (
			id          TEXT PRIMARY KEY,
			timestamp   INTEGER NOT NULL,
			close       REAL,
			bear_bottom REAL,
			bull_heat   REAL,
			raw_cycle   REAL,
			cycle       REAL,
			tier_label  TEXT,
			tier_stance TEXT,
			no_data     INTEGER NOT NULL DEFAULT 0,
			unavailable INTEGER NOT NULL DEFAULT 0,
			payload     TEXT NOT NULL,
			recorded_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_ts ON score_snapshots(timestamp)`,

		`CREATE TABLE IF NOT EXISTS forecasts (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			as_of         INTEGER NOT NULL,
			season        TEXT,
			mode          TEXT,
			cycle_index   INTEGER,
			current_price REAL,
			target_low    REAL,
			target_median REAL,
			target_high   REAL,
			interval_low  REAL,
			interval_high REAL,
			expected_date INTEGER,
			confidence    INTEGER,
			recorded_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_forecasts_ts ON forecasts(as_of)`,

		`CREATE TABLE IF NOT EXISTS backtest_runs (
			id           TEXT PRIMARY KEY,
			timestamp    INTEGER NOT NULL,
			bars         INTEGER,
			trades       INTEGER,
			roi          REAL,
			win_rate     REAL,
			sharpe       REAL,
			max_drawdown REAL,
			final_equity REAL,
			params       TEXT,
			result       TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_backtests_ts ON backtest_runs(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(s), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i > 0 {
		return s[:i]
	}
	return s
}

// finite maps NaN and ±Inf to NULL.
func finite(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func (r *SQLiteRecorder) RecordSnapshot(ctx context.Context, snap model.ScoreSnapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err = r.db.ExecContext(ctx, `INSERT OR REPLACE INTO score_snapshots
		(id, timestamp, close, bear_bottom, bull_heat, raw_cycle, cycle,
		 tier_label, tier_stance, no_data, unavailable, payload, recorded_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		snap.ID, snap.Time.Unix(), finite(snap.Close),
		finite(snap.BearBottom), finite(snap.BullHeat), finite(snap.RawCycle), finite(snap.Cycle),
		snap.Tier.Label, snap.Tier.Stance, snap.NoData, snap.Unavailable,
		string(payload), time.Now().Unix(),
	)
	return err
}

func (r *SQLiteRecorder) RecordForecast(ctx context.Context, f model.ForecastResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `INSERT INTO forecasts
		(as_of, season, mode, cycle_index, current_price,
		 target_low, target_median, target_high, interval_low, interval_high,
		 expected_date, confidence, recorded_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		f.AsOf.Unix(), string(f.Season), f.Mode, f.CycleIndex, finite(f.CurrentPrice),
		finite(f.TargetLow), finite(f.TargetMedian), finite(f.TargetHigh),
		finite(f.IntervalLow), finite(f.IntervalHigh),
		f.ExpectedDate.Unix(), f.Confidence, time.Now().Unix(),
	)
	return err
}

func (r *SQLiteRecorder) RecordBacktest(ctx context.Context, run BacktestRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.At.IsZero() {
		run.At = time.Now()
	}
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	result, err := json.Marshal(run.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	res := run.Result

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err = r.db.ExecContext(ctx, `INSERT INTO backtest_runs
		(id, timestamp, bars, trades, roi, win_rate, sharpe, max_drawdown, final_equity, params, result)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.At.Unix(), res.Bars, len(res.Trades),
		finite(res.ROI), finite(res.WinRate), finite(res.Sharpe), finite(res.MaxDrawdown), finite(res.FinalEquity),
		string(params), string(result),
	)
	return err
}

// RecentScores returns up to n snapshots, newest first.
func (r *SQLiteRecorder) RecentScores(ctx context.Context, n int) ([]model.ScoreSnapshot, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT payload FROM score_snapshots ORDER BY timestamp DESC, recorded_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ScoreSnapshot
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var snap model.ScoreSnapshot
		if err := json.Unmarshal([]byte(payload), &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		restoreNaN(snap.Bottom)
		restoreNaN(snap.Heat)
		out = append(out, snap)
	}
	return out, rows.Err()
}

// restoreNaN puts back the NaN readings that were written as null.
func restoreNaN(subs []model.SubScore) {
	for i := range subs {
		if !subs[i].Available {
			subs[i].Value = math.NaN()
		}
	}
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info("closing sqlite recorder")
	return r.db.Close()
}
