package model

import (
	"encoding/json"
	"math"
	"time"
)

// Sub-indicator slot names, in panel order.
const (
	SlotAHR999   = "AHR999"
	SlotMVRVZ    = "MVRV_Z"
	SlotPiGap    = "PiCycle_Gap"
	SlotSMA200W  = "SMA200W_Ratio"
	SlotPuell    = "Puell_Proxy"
	SlotRSIM     = "RSI_Monthly"
	SlotPowerLaw = "PowerLaw_Ratio"
	SlotMayer    = "Mayer_Multiple"
)

// Slots is the fixed panel of valuation sub-indicators.
var Slots = []string{SlotAHR999, SlotMVRVZ, SlotPiGap, SlotSMA200W, SlotPuell, SlotRSIM, SlotPowerLaw, SlotMayer}

// IndicatorRow holds the valuation indicators for a single bar. Unavailable
// readings are NaN.
type IndicatorRow struct {
	Time     time.Time `json:"time"`
	Close    float64   `json:"close"`
	AHR999   float64   `json:"ahr999"`
	MVRVZ    float64   `json:"mvrv_z"`
	PiGap    float64   `json:"pi_gap"`
	SMA200W  float64   `json:"sma200w_ratio"`
	Puell    float64   `json:"puell_proxy"`
	RSIM     float64   `json:"rsi_monthly"`
	PowerLaw float64   `json:"powerlaw_ratio"`
	Mayer    float64   `json:"mayer"`
}

type indicatorRowJSON struct {
	Time     time.Time `json:"time"`
	Close    *float64  `json:"close"`
	AHR999   *float64  `json:"ahr999"`
	MVRVZ    *float64  `json:"mvrv_z"`
	PiGap    *float64  `json:"pi_gap"`
	SMA200W  *float64  `json:"sma200w_ratio"`
	Puell    *float64  `json:"puell_proxy"`
	RSIM     *float64  `json:"rsi_monthly"`
	PowerLaw *float64  `json:"powerlaw_ratio"`
	Mayer    *float64  `json:"mayer"`
}

// MarshalJSON writes NaN readings as null.
func (r IndicatorRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(indicatorRowJSON{
		Time:     r.Time,
		Close:    finitePtr(r.Close),
		AHR999:   finitePtr(r.AHR999),
		MVRVZ:    finitePtr(r.MVRVZ),
		PiGap:    finitePtr(r.PiGap),
		SMA200W:  finitePtr(r.SMA200W),
		Puell:    finitePtr(r.Puell),
		RSIM:     finitePtr(r.RSIM),
		PowerLaw: finitePtr(r.PowerLaw),
		Mayer:    finitePtr(r.Mayer),
	})
}

// UnmarshalJSON reads null readings back as NaN.
func (r *IndicatorRow) UnmarshalJSON(b []byte) error {
	var v indicatorRowJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = IndicatorRow{
		Time:     v.Time,
		Close:    orNaN(v.Close),
		AHR999:   orNaN(v.AHR999),
		MVRVZ:    orNaN(v.MVRVZ),
		PiGap:    orNaN(v.PiGap),
		SMA200W:  orNaN(v.SMA200W),
		Puell:    orNaN(v.Puell),
		RSIM:     orNaN(v.RSIM),
		PowerLaw: orNaN(v.PowerLaw),
		Mayer:    orNaN(v.Mayer),
	}
	return nil
}

func finitePtr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func orNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// Value returns the reading for a slot name.
func (r IndicatorRow) Value(slot string) float64 {
	switch slot {
	case SlotAHR999:
		return r.AHR999
	case SlotMVRVZ:
		return r.MVRVZ
	case SlotPiGap:
		return r.PiGap
	case SlotSMA200W:
		return r.SMA200W
	case SlotPuell:
		return r.Puell
	case SlotRSIM:
		return r.RSIM
	case SlotPowerLaw:
		return r.PowerLaw
	case SlotMayer:
		return r.Mayer
	}
	return math.NaN()
}

// SubScore is one slot of a score panel.
type SubScore struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Points    float64 `json:"points"`
	MaxPoints float64 `json:"max_points"`
	Available bool    `json:"available"`
	Note      string  `json:"note"`
}

// MarshalJSON writes NaN readings as null.
func (s SubScore) MarshalJSON() ([]byte, error) {
	type alias SubScore
	v := struct {
		alias
		Value *float64 `json:"value"`
	}{alias: alias(s)}
	v.Value = finitePtr(s.Value)
	return json.Marshal(v)
}

// Tier maps a cycle score range to a label.
type Tier struct {
	Label  string `json:"label"`
	Stance string `json:"stance"`
}

// ScoreSnapshot is the scoring output for one timestamp.
type ScoreSnapshot struct {
	ID          string     `json:"id,omitempty"`
	Time        time.Time  `json:"time"`
	Close       float64    `json:"close"`
	Bottom      []SubScore `json:"bottom"`
	Heat        []SubScore `json:"heat"`
	BearBottom  float64    `json:"bear_bottom"`
	BullHeat    float64    `json:"bull_heat"`
	RawCycle    float64    `json:"raw_cycle"`
	Cycle       float64    `json:"cycle"`
	Tier        Tier       `json:"tier"`
	NoData      bool       `json:"no_data"`
	Unavailable int        `json:"unavailable"`
}
