package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"BTCSentinel/internal/logger"
	"BTCSentinel/internal/metrics"
	"BTCSentinel/internal/model"
)

// UpsertStats counts what an upsert did per bar.
type UpsertStats struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
}

func (s *UpsertStats) add(o UpsertStats) {
	s.Inserted += o.Inserted
	s.Updated += o.Updated
	s.Unchanged += o.Unchanged
}

// Written is the number of rows that changed on disk.
func (s UpsertStats) Written() int { return s.Inserted + s.Updated }

// YearStore keeps one SQLite file per calendar year. Writers are serialized by
// a single mutex; WAL mode lets readers proceed during a write.
type YearStore struct {
	dir         string
	symbol      string
	granularity model.Granularity

	mu sync.Mutex // write lock

	dbMu sync.Mutex
	dbs  map[int]*sql.DB

	log *logger.Entry
}

// Open prepares a store rooted at dir. Partition files are opened lazily.
func Open(dir, symbol string, g model.Granularity) (*YearStore, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("unsupported granularity %q", g)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	s := &YearStore{
		dir:         dir,
		symbol:      strings.ToUpper(symbol),
		granularity: g,
		dbs:         make(map[int]*sql.DB),
		log:         logger.GetLogger().WithComponent("store"),
	}
	s.log.WithFields(logger.Fields{"dir": dir, "symbol": s.symbol, "granularity": g}).Info("year store opened")
	return s, nil
}

func (s *YearStore) Symbol() string { return s.symbol }

func (s *YearStore) Granularity() model.Granularity { return s.granularity }

func (s *YearStore) prefix() string {
	return fmt.Sprintf("%s_%s_", strings.ToLower(s.symbol), s.granularity)
}

// Path returns the partition file for year.
func (s *YearStore) Path(year int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s%d.db", s.prefix(), year))
}

func (s *YearStore) partition(year int, create bool) (*sql.DB, error) {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	if db, ok := s.dbs[year]; ok {
		return db, nil
	}
	path := s.Path(year)
	if !create {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	s.dbs[year] = db
	return db, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL`,
		`CREATE TABLE IF NOT EXISTS klines (
			open_time INTEGER PRIMARY KEY,
			open      REAL NOT NULL,
			high      REAL NOT NULL,
			low       REAL NOT NULL,
			close     REAL NOT NULL,
			volume    REAL NOT NULL
		)`,
	}
	for _, st := range stmts {
		if _, err := db.Exec(st); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(st), err)
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

// Upsert writes bars keyed by open time. Identical bars are left alone, bars
// whose payload differs overwrite the stored row. The whole batch is validated
// before anything is written, and each year commits in one transaction.
func (s *YearStore) Upsert(ctx context.Context, bars []model.Bar) (UpsertStats, error) {
	var total UpsertStats
	if len(bars) == 0 {
		return total, nil
	}
	series := model.Series{Symbol: s.symbol, Granularity: s.granularity, Bars: bars}
	if err := series.Validate(); err != nil {
		return total, err
	}

	byYear := make(map[int][]model.Bar)
	var years []int
	for _, b := range bars {
		y := b.Time.UTC().Year()
		if _, ok := byYear[y]; !ok {
			years = append(years, y)
		}
		byYear[y] = append(byYear[y], b)
	}
	sort.Ints(years)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, y := range years {
		stats, err := s.upsertYear(ctx, y, byYear[y])
		if err != nil {
			return total, fmt.Errorf("upsert %d: %w", y, err)
		}
		total.add(stats)
	}
	metrics.StoreRows.WithLabelValues("inserted").Add(float64(total.Inserted))
	metrics.StoreRows.WithLabelValues("updated").Add(float64(total.Updated))
	metrics.StoreRows.WithLabelValues("unchanged").Add(float64(total.Unchanged))
	s.log.WithFields(logger.Fields{
		"inserted":  total.Inserted,
		"updated":   total.Updated,
		"unchanged": total.Unchanged,
		"years":     years,
	}).Debug("upsert committed")
	return total, nil
}

func (s *YearStore) upsertYear(ctx context.Context, year int, bars []model.Bar) (UpsertStats, error) {
	var stats UpsertStats
	db, err := s.partition(year, true)
	if err != nil {
		return stats, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	sel, err := tx.PrepareContext(ctx, `SELECT open, high, low, close, volume FROM klines WHERE open_time = ?`)
	if err != nil {
		return stats, err
	}
	defer sel.Close()
	ins, err := tx.PrepareContext(ctx, `INSERT INTO klines (open_time, open, high, low, close, volume) VALUES (?,?,?,?,?,?)`)
	if err != nil {
		return stats, err
	}
	defer ins.Close()
	upd, err := tx.PrepareContext(ctx, `UPDATE klines SET open=?, high=?, low=?, close=?, volume=? WHERE open_time=?`)
	if err != nil {
		return stats, err
	}
	defer upd.Close()

	for _, b := range bars {
		ms := b.Time.UnixMilli()
		cur := model.Bar{Time: b.Time}
		err := sel.QueryRowContext(ctx, ms).Scan(&cur.Open, &cur.High, &cur.Low, &cur.Close, &cur.Volume)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := ins.ExecContext(ctx, ms, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
				return stats, fmt.Errorf("insert %d: %w", ms, err)
			}
			stats.Inserted++
		case err != nil:
			return stats, fmt.Errorf("lookup %d: %w", ms, err)
		case cur.Equal(b):
			stats.Unchanged++
		default:
			if _, err := upd.ExecContext(ctx, b.Open, b.High, b.Low, b.Close, b.Volume, ms); err != nil {
				return stats, fmt.Errorf("update %d: %w", ms, err)
			}
			stats.Updated++
		}
	}
	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("commit: %w", err)
	}
	return stats, nil
}

// Read returns stored bars with from <= t <= to in native granularity.
func (s *YearStore) Read(ctx context.Context, from, to time.Time) (model.Series, error) {
	out := model.Series{Symbol: s.symbol, Granularity: s.granularity}
	years, err := s.Years()
	if err != nil {
		return out, err
	}
	for _, y := range years {
		if y < from.UTC().Year() || (!to.IsZero() && y > to.UTC().Year()) {
			continue
		}
		db, err := s.partition(y, false)
		if err != nil {
			return out, err
		}
		if db == nil {
			continue
		}
		bars, err := readRange(ctx, db, from, to)
		if err != nil {
			return out, fmt.Errorf("read %d: %w", y, err)
		}
		out.Bars = append(out.Bars, bars...)
	}
	return out, nil
}

func readRange(ctx context.Context, db *sql.DB, from, to time.Time) ([]model.Bar, error) {
	hi := int64(1<<62 - 1)
	if !to.IsZero() {
		hi = to.UnixMilli()
	}
	rows, err := db.QueryContext(ctx,
		`SELECT open_time, open, high, low, close, volume FROM klines
		 WHERE open_time >= ? AND open_time <= ? ORDER BY open_time`,
		from.UnixMilli(), hi)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var ms int64
		var b model.Bar
		if err := rows.Scan(&ms, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		b.Time = time.UnixMilli(ms).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// ReadResampled reads bars and aggregates them into target granularity.
func (s *YearStore) ReadResampled(ctx context.Context, from, to time.Time, target model.Granularity) (model.Series, error) {
	native, err := s.Read(ctx, from, to)
	if err != nil {
		return native, err
	}
	return native.Resample(target)
}

// Years lists the partitions present on disk, ascending.
func (s *YearStore) Years() ([]int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list store dir: %w", err)
	}
	re := regexp.MustCompile("^" + regexp.QuoteMeta(s.prefix()) + `(\d{4})\.db$`)
	var years []int
	for _, e := range entries {
		m := re.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		y, _ := strconv.Atoi(m[1])
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
}

// LatestInYear returns the newest open time stored for year.
func (s *YearStore) LatestInYear(ctx context.Context, year int) (time.Time, bool, error) {
	db, err := s.partition(year, false)
	if err != nil || db == nil {
		return time.Time{}, false, err
	}
	var ms sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(open_time) FROM klines`).Scan(&ms); err != nil {
		return time.Time{}, false, err
	}
	if !ms.Valid {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms.Int64).UTC(), true, nil
}

// Latest returns the newest open time across all partitions.
func (s *YearStore) Latest(ctx context.Context) (time.Time, bool, error) {
	years, err := s.Years()
	if err != nil {
		return time.Time{}, false, err
	}
	for i := len(years) - 1; i >= 0; i-- {
		t, ok, err := s.LatestInYear(ctx, years[i])
		if err != nil {
			return time.Time{}, false, err
		}
		if ok {
			return t, true, nil
		}
	}
	return time.Time{}, false, nil
}

// Coverage reports which years are stored, the row count and the time span.
func (s *YearStore) Coverage(ctx context.Context) (model.Coverage, error) {
	var cov model.Coverage
	years, err := s.Years()
	if err != nil {
		return cov, err
	}
	for _, y := range years {
		db, err := s.partition(y, false)
		if err != nil {
			return cov, err
		}
		if db == nil {
			continue
		}
		var n int64
		var lo, hi sql.NullInt64
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*), MIN(open_time), MAX(open_time) FROM klines`).Scan(&n, &lo, &hi); err != nil {
			return cov, fmt.Errorf("coverage %d: %w", y, err)
		}
		if n == 0 {
			continue
		}
		cov.Years = append(cov.Years, y)
		cov.Rows += n
		if cov.Earliest.IsZero() {
			cov.Earliest = time.UnixMilli(lo.Int64).UTC()
		}
		cov.Latest = time.UnixMilli(hi.Int64).UTC()
	}
	return cov, nil
}

// Close closes every open partition.
func (s *YearStore) Close() error {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	var errs []error
	for y, db := range s.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %d: %w", y, err))
		}
	}
	s.dbs = make(map[int]*sql.DB)
	s.log.Info("year store closed")
	return errors.Join(errs...)
}
