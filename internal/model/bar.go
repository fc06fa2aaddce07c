// Package model defines the shared market-data types used across the
// dashboard backend: OHLCV bars, timeframe granularities, positions,
// and trade records.
package model

import (
	"encoding/json"
	"time"
)

// Bar is a single OHLCV sample for one granularity interval.
// Bars are immutable once produced and ordered strictly by timestamp
// ascending within a series.
type Bar struct {
	TS     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	data, _ := json.Marshal(b)
	return data
}

// Closes extracts the close prices of a series, index-aligned with the input.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].Close
	}
	return out
}
