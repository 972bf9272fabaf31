package source

import (
	"context"
	"time"

	"BTCSentinel/internal/model"
)

// YearReader is the read side of the year-partitioned store.
type YearReader interface {
	ReadResampled(ctx context.Context, from, to time.Time, target model.Granularity) (model.Series, error)
}

// Local serves bars from the local cache, resampled to the requested
// granularity.
type Local struct {
	store YearReader
}

func NewLocal(store YearReader) *Local { return &Local{store: store} }

func (l *Local) Name() string { return NameLocal }

func (l *Local) FetchBars(ctx context.Context, req Request) (model.Series, error) {
	if err := req.validate(NameLocal); err != nil {
		return model.Series{}, err
	}
	s, err := l.store.ReadResampled(ctx, req.Start, req.End, req.Granularity)
	if err != nil {
		return model.Series{}, wrap(NameLocal, err)
	}
	s.Symbol = req.symbol()
	return s, nil
}
