package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BTCSentinel/internal/fetch"
	"BTCSentinel/internal/model"
	"BTCSentinel/internal/store"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testDeps() Deps {
	return Deps{
		HTTP: fetch.NewHTTPClient(fetch.Options{Timeout: 5 * time.Second}),
		Policy: fetch.Policy{
			MaxRetries: 1,
			Sleep:      func(context.Context, time.Duration) error { return nil },
		},
	}
}

func serve(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func dailyReq() Request {
	return Request{Granularity: model.GranularityDay, Start: day0, End: day0.AddDate(0, 0, 1)}
}

func TestBinanceSpot_FetchBars(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		d0, d1 := day0.UnixMilli(), day0.AddDate(0, 0, 1).UnixMilli()
		fmt.Fprintf(w, `[
			[%d,"42000","42500","41800","42300","100",%d,"0",10,"0","0","0"],
			[%d,"42300","43000","42100","42900","120",%d,"0",10,"0","0","0"]
		]`, d0, d1-1, d1, d1+86400000-1)
	})
	s, err := NewBinanceSpot(srv.URL, testDeps()).FetchBars(context.Background(), dailyReq())
	require.NoError(t, err)
	require.Len(t, s.Bars, 2)
	assert.Equal(t, day0, s.Bars[0].Time)
	assert.Equal(t, 42900.0, s.Bars[1].Close)
	assert.NoError(t, s.Validate())
}

func TestBinanceSpot_GeoBlockIsPermanent(t *testing.T) {
	var calls int32
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnavailableForLegalReasons)
		fmt.Fprint(w, `{"code":0,"msg":"Service unavailable from a restricted location"}`)
	})
	_, err := NewBinanceSpot(srv.URL, testDeps()).FetchBars(context.Background(), dailyReq())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrPermanentSource)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestBinanceSpot_ServerErrorIsRetriedThenTransient(t *testing.T) {
	var calls int32
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := NewBinanceSpot(srv.URL, testDeps()).FetchBars(context.Background(), dailyReq())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrTransientNetwork)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestBybit_RetCodeIsPermanent(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"retCode":10001,"retMsg":"params error","result":{},"time":1}`)
	})
	_, err := NewBybit(srv.URL, testDeps()).FetchBars(context.Background(), dailyReq())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrPermanentSource)
}

func TestBybit_FetchBarsNewestFirst(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		d0, d1 := day0.UnixMilli(), day0.AddDate(0, 0, 1).UnixMilli()
		fmt.Fprintf(w, `{"retCode":0,"retMsg":"OK","result":{"symbol":"BTCUSDT","category":"spot","list":[
			["%d","42300","43000","42100","42900","120","0"],
			["%d","42000","42500","41800","42300","100","0"]
		]},"time":1}`, d1, d0)
	})
	s, err := NewBybit(srv.URL, testDeps()).FetchBars(context.Background(), dailyReq())
	require.NoError(t, err)
	require.Len(t, s.Bars, 2)
	assert.True(t, s.Bars[0].Time.Before(s.Bars[1].Time))
	assert.NoError(t, s.Validate())
}

func TestOKX_FetchBars(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v5/market/history-candles", r.URL.Path)
		assert.Equal(t, "BTC-USDT", r.URL.Query().Get("instId"))
		assert.Equal(t, "1Dutc", r.URL.Query().Get("bar"))
		d0, d1 := day0.UnixMilli(), day0.AddDate(0, 0, 1).UnixMilli()
		fmt.Fprintf(w, `{"code":"0","msg":"","data":[
			["%d","42300","43000","42100","42900","120","0","0","1"],
			["%d","42000","42500","41800","42300","100","0","0","1"]
		]}`, d1, d0)
	})
	s, err := NewOKX(srv.URL, testDeps()).FetchBars(context.Background(), dailyReq())
	require.NoError(t, err)
	require.Len(t, s.Bars, 2)
	assert.Equal(t, day0, s.Bars[0].Time)
	assert.Equal(t, 42300.0, s.Bars[0].Close)
}

func TestOKX_ErrorCodeIsPermanent(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"51001","msg":"Instrument ID does not exist","data":[]}`)
	})
	_, err := NewOKX(srv.URL, testDeps()).FetchBars(context.Background(), dailyReq())
	assert.ErrorIs(t, err, model.ErrPermanentSource)
}

func TestKraken_FetchBarsFollowsCursor(t *testing.T) {
	d0, d1 := day0.Unix(), day0.AddDate(0, 0, 1).Unix()
	var calls int32
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "XBTUSD", r.URL.Query().Get("pair"))
		assert.Equal(t, "1440", r.URL.Query().Get("interval"))
		since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
		if since >= d1 {
			fmt.Fprintf(w, `{"error":[],"result":{"XXBTZUSD":[],"last":%d}}`, d1)
			return
		}
		fmt.Fprintf(w, `{"error":[],"result":{"XXBTZUSD":[
			[%d,"42000.0","42500.0","41800.0","42300.0","42200.0","12.5",100],
			[%d,"42300.0","43000.0","42100.0","42900.0","42600.0","14.0",120]
		],"last":%d}}`, d0, d1, d1)
	})
	s, err := NewKraken(srv.URL, testDeps()).FetchBars(context.Background(), dailyReq())
	require.NoError(t, err)
	require.Len(t, s.Bars, 2)
	assert.Equal(t, 12.5, s.Bars[0].Volume)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestKraken_ErrorArrayIsPermanent(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":["EQuery:Unknown asset pair"],"result":{}}`)
	})
	_, err := NewKraken(srv.URL, testDeps()).FetchBars(context.Background(), dailyReq())
	assert.ErrorIs(t, err, model.ErrPermanentSource)
}

func TestBinanceFunding_PagesAssembledInOrder(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/fundingRate", r.URL.Path)
		start, _ := strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
		// two events per page, the second one duplicated
		e1, e2 := start, start+int64(fundingInterval/time.Millisecond)
		fmt.Fprintf(w, `[
			{"symbol":"BTCUSDT","fundingRate":"0.0001","fundingTime":%d,"markPrice":"1"},
			{"symbol":"BTCUSDT","fundingRate":"0.0002","fundingTime":%d,"markPrice":"1"},
			{"symbol":"BTCUSDT","fundingRate":"0.0002","fundingTime":%d,"markPrice":"1"}
		]`, e1, e2, e2)
	})
	from := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(2*fundingInterval*defaultPageLimit + 9*time.Hour) // three pages
	got, err := NewBinanceFunding(srv.URL, testDeps(), 2).FetchMetrics(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, got, 6)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].Time.After(got[i-1].Time))
	}
	assert.Equal(t, from, got[0].Time)
	assert.Equal(t, model.MetricFundingRate, got[0].Name)
}

func TestStablecoins_SkipsPlaceholdersAndStringDates(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stablecoincharts/all", r.URL.Path)
		fmt.Fprintf(w, `[
			{"date":"%d","totalCirculating":{"peggedUSD":12}},
			{"date":%d,"totalCirculating":{"peggedUSD":150000000000}}
		]`, day0.Unix(), day0.AddDate(0, 0, 1).Unix())
	})
	got, err := NewStablecoins(srv.URL, testDeps()).FetchMetrics(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, day0.AddDate(0, 0, 1), got[0].Time)
	assert.Equal(t, 150e9, got[0].Value)
}

func TestDefiLlamaTVL(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/historicalChainTvl/Bitcoin", r.URL.Path)
		fmt.Fprintf(w, `[{"date":%d,"tvl":1.5e9},{"date":%d,"tvl":1.6e9}]`, day0.Unix(), day0.AddDate(0, 0, 1).Unix())
	})
	got, err := NewDefiLlamaTVL(srv.URL, testDeps()).FetchMetrics(context.Background(), day0.AddDate(0, 0, 1), time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1.6e9, got[0].Value)
}

func TestFRED_SkipsMissingObservations(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DEXJPUS", r.URL.Query().Get("id"))
		fmt.Fprint(w, "observation_date,DEXJPUS\n2024-01-01,.\n2024-01-02,141.2\n2024-01-03,143.0\n")
	})
	f, err := NewFRED(srv.URL, "DEXJPUS", testDeps())
	require.NoError(t, err)
	assert.Equal(t, "fred_dexjpus", f.Name())
	got, err := f.FetchMetrics(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.MetricUSDJPY, got[0].Name)
	assert.Equal(t, 141.2, got[0].Value)

	_, err = NewFRED(srv.URL, "GDP", testDeps())
	assert.Error(t, err)
}

func TestFearGreed(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"name":"Fear and Greed Index","data":[
			{"value":"72","value_classification":"Greed","timestamp":"%d"},
			{"value":"25","value_classification":"Extreme Fear","timestamp":"%d"}
		],"metadata":{"error":null}}`, day0.AddDate(0, 0, 1).Unix(), day0.Unix())
	})
	got, err := NewFearGreed(srv.URL, testDeps()).FetchMetrics(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 25.0, got[0].Value)
	assert.Equal(t, 72.0, got[1].Value)
}

func TestPoolRate(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pools", r.URL.Path)
		fmt.Fprint(w, `{"status":"success","data":[
			{"chain":"Ethereum","project":"aave-v3","symbol":"USDT","apyBase":4.1,"tvlUsd":1000},
			{"chain":"Ethereum","project":"aave-v3","symbol":"USDT","apyBase":5.2,"tvlUsd":900000},
			{"chain":"Arbitrum","project":"aave-v3","symbol":"USDT","apyBase":9.9,"tvlUsd":9000000},
			{"chain":"Ethereum","project":"makerdao","symbol":"SDAI","apy":6.0,"tvlUsd":5000}
		]}`)
	})
	aave, err := NewAaveRate(srv.URL, testDeps()).FetchRate(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.052, aave, 1e-12)

	maker, err := NewMakerRate(srv.URL, testDeps()).FetchRate(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.06, maker, 1e-12)

	missing := newPoolRate("x", poolMatch{project: "compound", chain: "Ethereum", symbols: []string{"USDC"}}, srv.URL, testDeps())
	_, err = missing.FetchRate(context.Background())
	assert.ErrorIs(t, err, model.ErrDataIntegrity)
}

func TestMockSource_Deterministic(t *testing.T) {
	m := &MockSource{Price: 60000}
	req := Request{Granularity: model.Granularity15m, Start: day0, End: day0.Add(2 * time.Hour)}
	a, err := m.FetchBars(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, a.Bars, 9)
	assert.NoError(t, a.Validate())

	req.Start = day0.Add(time.Hour)
	b, err := m.FetchBars(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, a.Bars[4:], b.Bars)
	assert.Len(t, m.Requests(), 2)

	m.Err = errors.New("down")
	_, err = m.FetchBars(context.Background(), req)
	assert.Error(t, err)
}

func TestLocal_ResamplesStore(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(t.TempDir(), "BTCUSDT", model.Granularity15m)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	native := generateMockBars("BTCUSDT", 60000, Request{Granularity: model.Granularity15m, Start: day0, End: day0.Add(48*time.Hour - 15*time.Minute)})
	_, err = st.Upsert(ctx, native.Bars)
	require.NoError(t, err)

	s, err := NewLocal(st).FetchBars(ctx, Request{Granularity: model.GranularityDay, Start: day0, End: day0.AddDate(0, 0, 2)})
	require.NoError(t, err)
	require.Len(t, s.Bars, 2)
	assert.Equal(t, native.Bars[95].Close, s.Bars[0].Close)
	assert.Equal(t, native.Bars[0].Open, s.Bars[0].Open)
}

func TestHealthTracker(t *testing.T) {
	h := NewHealthTracker(2, time.Hour)
	assert.Equal(t, model.HealthAvailable, h.Health("binance"))

	transient := model.NewSourceError("binance", model.ErrTransientNetwork, errors.New("timeout"))
	assert.Error(t, h.Do("binance", func() error { return transient }))
	assert.Equal(t, model.HealthDegraded, h.Health("binance"))

	require.NoError(t, h.Do("binance", func() error { return nil }))
	assert.Equal(t, model.HealthAvailable, h.Health("binance"))

	permanent := model.NewSourceError("okx", model.ErrPermanentSource, errors.New("451"))
	_ = h.Do("okx", func() error { return permanent })
	assert.Equal(t, model.HealthUnavailable, h.Health("okx"))

	_ = h.Do("bybit", func() error { return transient })
	_ = h.Do("bybit", func() error { return transient })
	assert.Equal(t, model.HealthUnavailable, h.Health("bybit"))

	called := false
	err := h.Do("bybit", func() error { called = true; return nil })
	assert.False(t, called)
	assert.ErrorIs(t, err, model.ErrTransientNetwork)

	snap := h.Snapshot()
	assert.Len(t, snap, 3)
	assert.Equal(t, model.HealthAvailable, snap["binance"])
}

func TestDefaultDeps(t *testing.T) {
	d := DefaultDeps()
	require.NotNil(t, d.HTTP)
	assert.Equal(t, 30*time.Second, d.HTTP.Timeout)
	assert.Equal(t, 3, d.Policy.MaxRetries)
	assert.Equal(t, 4*time.Second, d.Policy.Backoff(2))
}
