package model

import "time"

// Exit reasons.
const (
	ExitTrendBreak = "trend_break"
)

// Trade is one completed entry→exit cycle of a backtest.
type Trade struct {
	EntryTime  time.Time `json:"entry_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitTime   time.Time `json:"exit_time"`
	ExitPrice  float64   `json:"exit_price"`
	PnL        float64   `json:"pnl"`
	PnLPct     float64   `json:"pnl_pct"`
	ExitReason string    `json:"exit_reason"`
}

// OpenPosition is a position still held at the end of a backtest.
type OpenPosition struct {
	EntryTime  time.Time `json:"entry_time"`
	EntryPrice float64   `json:"entry_price"`
	MarkPrice  float64   `json:"mark_price"`
	Units      float64   `json:"units"`
}

// BacktestResult summarizes one backtest run. Trades belong to the run.
type BacktestResult struct {
	Trades        []Trade       `json:"trades"`
	Open          *OpenPosition `json:"open,omitempty"`
	InitialEquity float64       `json:"initial_equity"`
	FinalEquity   float64       `json:"final_equity"`
	ROI           float64       `json:"roi"`
	WinRate       float64       `json:"win_rate"`
	Sharpe        float64       `json:"sharpe"`
	MaxDrawdown   float64       `json:"max_drawdown"`
	AvgProfit     float64       `json:"avg_profit"`
	AvgLoss       float64       `json:"avg_loss"`
	Bars          int           `json:"bars"`
}

// PositionPlan is the output of Kelly sizing.
type PositionPlan struct {
	Units     float64 `json:"units"`
	Notional  float64 `json:"notional"`
	RiskCash  float64 `json:"risk_cash"`
	Leverage  float64 `json:"leverage"`
	Capped    bool    `json:"capped"`
	StopPrice float64 `json:"stop_price"`
}

// GridResult is one evaluated parameter combination of a grid search.
type GridResult struct {
	BandLow  float64        `json:"band_low"`
	BandHigh float64        `json:"band_high"`
	RSIMin   float64        `json:"rsi_min"`
	ADXMin   float64        `json:"adx_min"`
	Result   BacktestResult `json:"result"`
}
