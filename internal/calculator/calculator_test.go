package calculator

import (
	"math"
	"testing"
	"time"

	"BTCSentinel/internal/model"
)

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func dailySeries(closes []float64) model.Series {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	s := model.Series{Symbol: "BTCUSDT", Granularity: model.GranularityDay}
	for i, c := range closes {
		s.Bars = append(s.Bars, model.Bar{
			Time: start.AddDate(0, 0, i), Open: c, High: c * 1.01, Low: c * 0.99, Close: c, Volume: 1,
		})
	}
	return s
}

func countLeadingNaN(x []float64) int {
	n := 0
	for _, v := range x {
		if !math.IsNaN(v) {
			break
		}
		n++
	}
	return n
}

func TestSMA(t *testing.T) {
	got := SMA([]float64{1, 2, 3, 4, 5}, 3)
	if countLeadingNaN(got) != 2 {
		t.Fatalf("expected 2 leading NaN, got %v", got)
	}
	if got[2] != 2 || got[4] != 4 {
		t.Errorf("unexpected SMA values: %v", got)
	}
}

func TestSMA_NaNInsideWindow(t *testing.T) {
	got := SMA([]float64{1, 2, math.NaN(), 4, 5, 6, 7}, 3)
	for i := 2; i <= 4; i++ {
		if !math.IsNaN(got[i]) {
			t.Errorf("slot %d should be NaN, got %v", i, got[i])
		}
	}
	if got[5] != 5 {
		t.Errorf("got[5] = %v, want 5", got[5])
	}
}

func TestEMA_SeededWithSMA(t *testing.T) {
	x := []float64{2, 4, 6, 8}
	got := EMA(x, 3)
	if countLeadingNaN(got) != 2 {
		t.Fatalf("expected 2 leading NaN, got %v", got)
	}
	if got[2] != 4 {
		t.Errorf("seed = %v, want 4", got[2])
	}
	if want := 0.5*8 + 0.5*4; got[3] != want {
		t.Errorf("got[3] = %v, want %v", got[3], want)
	}
}

func TestRSI(t *testing.T) {
	up := RSI(ramp(30, 100, 1), 14)
	if countLeadingNaN(up) != 14 {
		t.Fatalf("expected 14 leading NaN, got %d", countLeadingNaN(up))
	}
	if up[29] != 100 {
		t.Errorf("all gains should give 100, got %v", up[29])
	}
	down := RSI(ramp(30, 100, -1), 14)
	if down[29] != 0 {
		t.Errorf("all losses should give 0, got %v", down[29])
	}
	flat := RSI(ramp(20, 100, 0), 14)
	if flat[19] != 50 {
		t.Errorf("flat series should give 50, got %v", flat[19])
	}
}

func TestPeriodicRSI_NoLookahead(t *testing.T) {
	closes := ramp(600, 100, 0.5)
	for i := 300; i < 600; i += 7 {
		closes[i] -= 20
	}
	s := dailySeries(closes)
	full := PeriodicRSI(s.Times(), closes, MonthKey, 14)

	cut := 400
	partial := PeriodicRSI(s.Times()[:cut], closes[:cut], MonthKey, 14)
	for i := 0; i < cut; i++ {
		a, b := full[i], partial[i]
		if math.IsNaN(a) != math.IsNaN(b) || (!math.IsNaN(a) && a != b) {
			t.Fatalf("slot %d changed when later bars were added: %v vs %v", i, a, b)
		}
	}
	if !math.IsNaN(full[0]) {
		t.Error("first month must be NaN")
	}
	if math.IsNaN(full[599]) {
		t.Error("after 19 months the monthly RSI must be defined")
	}
}

func TestMACD_LeadingWindow(t *testing.T) {
	res := MACD(ramp(60, 100, 1), 12, 26, 9)
	if countLeadingNaN(res.MACD) != 25 {
		t.Errorf("MACD leading NaN = %d, want 25", countLeadingNaN(res.MACD))
	}
	if countLeadingNaN(res.Signal) != 33 {
		t.Errorf("signal leading NaN = %d, want 33", countLeadingNaN(res.Signal))
	}
}

func TestADX_TrendingSeries(t *testing.T) {
	s := dailySeries(ramp(80, 100, 1))
	res := ADX(s.Highs(), s.Lows(), s.Closes(), 14)
	if countLeadingNaN(res.ADX) != 27 {
		t.Fatalf("ADX leading NaN = %d, want 27", countLeadingNaN(res.ADX))
	}
	if res.ADX[79] < 50 {
		t.Errorf("steady uptrend should have strong ADX, got %v", res.ADX[79])
	}
	if res.PlusDI[79] <= res.MinusDI[79] {
		t.Errorf("+DI should dominate in an uptrend")
	}
	atr := ATR(s.Highs(), s.Lows(), s.Closes(), 14)
	if countLeadingNaN(atr) != 14 {
		t.Errorf("ATR leading NaN = %d, want 14", countLeadingNaN(atr))
	}
}

func TestPivots(t *testing.T) {
	p := Pivots([]float64{12, 0}, []float64{8, 0}, []float64{10, 0})
	if !math.IsNaN(p.P[0]) {
		t.Error("first pivot must be NaN")
	}
	if p.P[1] != 10 || p.R1[1] != 12 || p.S1[1] != 8 || p.R2[1] != 14 || p.S2[1] != 6 {
		t.Errorf("unexpected pivots: %+v", p)
	}
}

func TestFitPowerLaw_RecoversCoefficients(t *testing.T) {
	var times []time.Time
	var closes []float64
	for d := 1000; d < 5000; d += 10 {
		ts := Genesis.AddDate(0, 0, d)
		times = append(times, ts)
		closes = append(closes, DefaultPowerLaw.Price(ts))
	}
	fit, err := FitPowerLaw(times, closes)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if math.Abs(fit.Slope-DefaultPowerLaw.Slope) > 1e-6 || math.Abs(fit.Intercept-DefaultPowerLaw.Intercept) > 1e-5 {
		t.Errorf("fit = %+v", fit)
	}
	if _, err := FitPowerLaw(times[:1], closes[:1]); err == nil {
		t.Error("expected insufficient history error")
	}
}

func TestCompute_LeadingWindowsAreNaN(t *testing.T) {
	f := Compute(dailySeries(ramp(800, 1000, 5)), Options{})
	checks := []struct {
		name string
		col  []float64
		want int
	}{
		{"AHR999", f.AHR999, 199},
		{"MVRVZ", f.MVRVZ, 199},
		{"PiGap", f.PiGap, 349},
		{"Puell", f.Puell, 364},
		{"Mayer", f.Mayer, 729},
		{"SMA200W", f.SMA200WRatio, 800},
	}
	for _, c := range checks {
		if got := countLeadingNaN(c.col); got != c.want {
			t.Errorf("%s leading NaN = %d, want %d", c.name, got, c.want)
		}
	}
	row, ok := f.Latest()
	if !ok {
		t.Fatal("expected a latest row")
	}
	if !math.IsNaN(row.SMA200W) {
		t.Error("200-week ratio needs 1400 bars")
	}
	if math.IsNaN(row.PowerLaw) || row.PowerLaw <= 0 {
		t.Errorf("power law ratio should be defined, got %v", row.PowerLaw)
	}
}

func TestAHR999_Formula(t *testing.T) {
	ts := []time.Time{Genesis.AddDate(0, 0, 5000)}
	got := AHR999(ts, []float64{20000}, []float64{25000})
	fair := math.Pow(10, 2.68+0.00057*5000)
	want := (20000.0 / 25000.0) * (20000.0 / fair)
	if math.Abs(got[0]-want) > 1e-12 {
		t.Errorf("AHR999 = %v, want %v", got[0], want)
	}
}

func TestParseMA(t *testing.T) {
	kind, n, err := ParseMA("ema20")
	if err != nil || kind != "EMA" || n != 20 {
		t.Errorf("ParseMA(ema20) = %s %d %v", kind, n, err)
	}
	if _, _, err := ParseMA("WMA10"); err == nil {
		t.Error("expected error for unsupported kind")
	}
}

func TestKDJ(t *testing.T) {
	high := []float64{1, 2, 3, 4}
	low := []float64{0, 1, 2, 3}
	k := KDJ(high, low, high, 3, 3)
	if !math.IsNaN(k.K[1]) || !math.IsNaN(k.J[1]) {
		t.Error("KDJ before the first full window must be NaN")
	}
	want := []struct{ k, d, j float64 }{
		{200.0 / 3, 500.0 / 9, 800.0 / 9},
		{700.0 / 9, 1700.0 / 27, 2900.0 / 27},
	}
	for n, w := range want {
		i := n + 2
		if math.Abs(k.K[i]-w.k) > 1e-9 || math.Abs(k.D[i]-w.d) > 1e-9 || math.Abs(k.J[i]-w.j) > 1e-9 {
			t.Errorf("KDJ[%d] = %.4f/%.4f/%.4f, want %.4f/%.4f/%.4f", i, k.K[i], k.D[i], k.J[i], w.k, w.d, w.j)
		}
	}

	flat := KDJ([]float64{5, 5, 5}, []float64{5, 5, 5}, []float64{5, 5, 5}, 3, 3)
	if flat.K[2] != 50 || flat.J[2] != 50 {
		t.Errorf("flat window KDJ = %v/%v, want 50", flat.K[2], flat.J[2])
	}
}

func TestCompute_SMA200Slope(t *testing.T) {
	f := Compute(dailySeries(ramp(260, 100, 1)), Options{})
	if n := countLeadingNaN(f.SMA200Slope); n != WindowSMA200-1+SlopeLag {
		t.Errorf("slope leading NaN = %d, want %d", n, WindowSMA200-1+SlopeLag)
	}
	if got := Last(f.SMA200Slope); math.Abs(got-SlopeLag) > 1e-9 {
		t.Errorf("slope of a unit ramp = %v, want %d", got, SlopeLag)
	}
	if got := Diff([]float64{1, math.NaN(), 4}, 1); !math.IsNaN(got[1]) || !math.IsNaN(got[2]) {
		t.Errorf("Diff must propagate NaN: %v", got)
	}
}
