package model

import "time"

// Rate provenance steps.
const (
	RateSourceAave     = "aave_v3_usdt"
	RateSourceMaker    = "makerdao_dsr"
	RateSourceFallback = "static_default"
)

// RateQuote is a resolved risk-free rate and where it came from.
type RateQuote struct {
	Rate      float64   `json:"rate"`
	Source    string    `json:"source"`
	Step      int       `json:"step"`
	FetchedAt time.Time `json:"fetched_at"`
}

// ProductType is the structured product direction.
type ProductType string

const (
	SellHigh ProductType = "SELL_HIGH" // covered call, principal in BTC
	BuyLow   ProductType = "BUY_LOW"   // cash-secured put, principal in USD
)

// OptionQuote is the priced view of one strike.
type OptionQuote struct {
	Product    ProductType `json:"product"`
	Spot       float64     `json:"spot"`
	Strike     float64     `json:"strike"`
	Days       float64     `json:"days"`
	Volatility float64     `json:"volatility"`
	Rate       RateQuote   `json:"rate"`
	Premium    float64     `json:"premium"`
	APY        float64     `json:"apy"`
	Delta      float64     `json:"delta"`
}

// LadderRung is one strike of a suggested ladder.
type LadderRung struct {
	Tier     int         `json:"tier"`
	Quote    OptionQuote `json:"quote"`
	Weight   float64     `json:"weight"`
	Distance float64     `json:"distance_pct"`
}

// Settlement assets of the rolling product backtest.
const (
	AssetBTC  = "BTC"
	AssetUSDT = "USDT"
)

// DualEvent is one open or settlement of the rolling product backtest.
// Balance is denominated in Asset.
type DualEvent struct {
	Action    string      `json:"action"`
	Time      time.Time   `json:"time"`
	Product   ProductType `json:"product"`
	Spot      float64     `json:"spot"`
	Strike    float64     `json:"strike"`
	Days      int         `json:"days"`
	APY       float64     `json:"apy"`
	Exercised bool        `json:"exercised,omitempty"`
	Asset     string      `json:"asset"`
	Balance   float64     `json:"balance"`
	EquityBTC float64     `json:"equity_btc"`
}

// DualBacktestResult summarizes a rolling product backtest.
type DualBacktestResult struct {
	Events     []DualEvent `json:"events"`
	Opened     int         `json:"opened"`
	Exercised  int         `json:"exercised"`
	FinalAsset string      `json:"final_asset"`
	Balance    float64     `json:"balance"`
	EquityBTC  float64     `json:"equity_btc"`
	ReturnBTC  float64     `json:"return_btc"`
	HoldReturn float64     `json:"hold_return"`
	Start      time.Time   `json:"start"`
	End        time.Time   `json:"end"`
}
