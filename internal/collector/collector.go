// Package collector appends closed bars from the remote venues to the local
// year store.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"BTCSentinel/internal/logger"
	"BTCSentinel/internal/model"
	"BTCSentinel/internal/resolver"
	"BTCSentinel/internal/source"
	"BTCSentinel/internal/store"
)

// boundaryDays is how far into January the previous year is still topped up.
const boundaryDays = 7

// Store is the write side of the year store.
type Store interface {
	Symbol() string
	Granularity() model.Granularity
	LatestInYear(ctx context.Context, year int) (time.Time, bool, error)
	Upsert(ctx context.Context, bars []model.Bar) (store.UpsertStats, error)
}

// Remote is the remote part of the venue chain.
type Remote interface {
	FetchRemote(ctx context.Context, req source.Request) (model.Series, []resolver.Attempt, error)
}

// YearReport summarizes one year's run.
type YearReport struct {
	Year     int               `json:"year"`
	From     time.Time         `json:"from"`
	To       time.Time         `json:"to"`
	Fetched  int               `json:"fetched"`
	Stats    store.UpsertStats `json:"stats"`
	UpToDate bool              `json:"up_to_date"`
}

// Report is the outcome of one collector run.
type Report struct {
	RunID string       `json:"run_id"`
	Years []YearReport `json:"years"`
}

// Collector owns the incremental-append path into the store.
type Collector struct {
	store  Store
	remote Remote
	deep   source.BarSource
	now    func() time.Time
	log    *logger.Entry
}

// NewCollector creates a collector. deep serves the range before the primary
// venue's first bar and may be nil.
func NewCollector(st Store, remote Remote, deep source.BarSource) *Collector {
	return &Collector{
		store:  st,
		remote: remote,
		deep:   deep,
		now:    time.Now,
		log:    logger.GetLogger().WithComponent("collector"),
	}
}

// AppendLatest tops up the current year, and the previous one during the
// first days of January.
func (c *Collector) AppendLatest(ctx context.Context) (Report, error) {
	now := c.now().UTC()
	years := []int{now.Year()}
	if now.YearDay() <= boundaryDays {
		years = []int{now.Year() - 1, now.Year()}
	}
	return c.run(ctx, "append", years)
}

// RefreshYear resumes a single year from its latest stored bar.
func (c *Collector) RefreshYear(ctx context.Context, year int) (Report, error) {
	if year < 2009 || year > c.now().UTC().Year() {
		return Report{}, fmt.Errorf("year %d out of range", year)
	}
	return c.run(ctx, "refresh", []int{year})
}

// BackfillFrom refreshes every year from fromYear through the current one.
func (c *Collector) BackfillFrom(ctx context.Context, fromYear int) (Report, error) {
	cur := c.now().UTC().Year()
	if fromYear < 2009 || fromYear > cur {
		return Report{}, fmt.Errorf("from year %d out of range", fromYear)
	}
	years := make([]int, 0, cur-fromYear+1)
	for y := fromYear; y <= cur; y++ {
		years = append(years, y)
	}
	return c.run(ctx, "backfill", years)
}

func (c *Collector) run(ctx context.Context, op string, years []int) (Report, error) {
	rep := Report{RunID: uuid.New().String()}
	log := c.log.WithFields(logger.Fields{"run_id": rep.RunID, "operation": op, "symbol": c.store.Symbol()})
	start := time.Now()
	log.WithField("years", years).Info("collector run started")

	var errs []error
	for _, y := range years {
		yr, err := c.year(ctx, y, log)
		rep.Years = append(rep.Years, yr)
		if err != nil {
			log.WithField("year", y).WithError(err).Error("year failed")
			errs = append(errs, fmt.Errorf("year %d: %w", y, err))
			if ctx.Err() != nil {
				break
			}
		}
	}
	logger.LogPerformanceEntry(log, op, time.Since(start), logger.Fields{"years": len(rep.Years), "failed": len(errs)})
	return rep, errors.Join(errs...)
}

// year fetches [LatestInYear+step, last closed bar of the year] and upserts it.
func (c *Collector) year(ctx context.Context, year int, log *logger.Entry) (YearReport, error) {
	g := c.store.Granularity()
	step := g.Interval()
	yr := YearReport{Year: year}

	yearStart := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year+1, 1, 1, 0, 0, 0, 0, time.UTC).Add(-step)
	if closed := c.now().UTC().Truncate(step).Add(-step); closed.Before(end) {
		end = closed
	}
	from := yearStart
	latest, ok, err := c.store.LatestInYear(ctx, year)
	if err != nil {
		return yr, fmt.Errorf("latest in year: %w", err)
	}
	if ok {
		from = latest.Add(step)
	}
	yr.From, yr.To = from, end
	if from.After(end) {
		yr.UpToDate = true
		return yr, nil
	}

	var bars []model.Bar
	split := source.BinanceFirstBar
	if from.Before(split) && c.deep != nil {
		deepEnd := split.Add(-step)
		if end.Before(deepEnd) {
			deepEnd = end
		}
		s, err := c.deep.FetchBars(ctx, source.Request{Symbol: c.store.Symbol(), Granularity: g, Start: from, End: deepEnd})
		if err != nil {
			return yr, fmt.Errorf("deep history: %w", err)
		}
		bars = append(bars, s.Bars...)
		from = split
	}
	if !from.After(end) {
		s, attempts, err := c.remote.FetchRemote(ctx, source.Request{Symbol: c.store.Symbol(), Granularity: g, Start: from, End: end})
		if err != nil {
			return yr, fmt.Errorf("remote chain (%d attempts): %w", len(attempts), err)
		}
		bars = append(bars, s.Bars...)
	}

	batch := model.Series{Symbol: c.store.Symbol(), Granularity: g, Bars: bars}
	if err := batch.Validate(); err != nil {
		return yr, err
	}
	yr.Fetched = batch.Len()
	if batch.Empty() {
		return yr, nil
	}
	stats, err := c.store.Upsert(ctx, batch.Bars)
	if err != nil {
		return yr, fmt.Errorf("upsert: %w", err)
	}
	yr.Stats = stats
	if gaps := batch.Gaps(); len(gaps) > 0 {
		log.WithFields(logger.Fields{"year": year, "gaps": len(gaps)}).Warn("fetched batch has gaps")
	}
	log.WithFields(logger.Fields{
		"year":      year,
		"fetched":   yr.Fetched,
		"inserted":  stats.Inserted,
		"updated":   stats.Updated,
		"unchanged": stats.Unchanged,
	}).Info("year collected")
	return yr, nil
}
