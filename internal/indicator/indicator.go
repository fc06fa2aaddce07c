// Package indicator computes technical indicator series over OHLCV bars.
//
// Every computation is a pure batch transformation: an ordered series of N
// bars plus a validated request produce one or more named output lines of
// exactly N values, index-aligned with the input. Positions where not enough
// trailing history exists hold the explicit Undefined marker, never zero —
// consumers must be able to tell "not yet computable" from "computed zero".
//
// The package holds no state between calls and is safe for concurrent use.
package indicator

import (
	"fmt"
	"math"

	"tradedeck/internal/model"
)

// Kind identifies an indicator type.
type Kind string

const (
	KindSMA       Kind = "SMA"
	KindEMA       Kind = "EMA"
	KindBollinger Kind = "BOLLINGER"
	KindRSI       Kind = "RSI"
	KindMACD      Kind = "MACD"
	KindVolume    Kind = "VOLUME"
)

// Undefined returns the warm-up sentinel. It is NaN internally; the API
// layer serializes it as JSON null.
func Undefined() float64 {
	return math.NaN()
}

// IsUndefined reports whether v is the warm-up sentinel.
func IsUndefined(v float64) bool {
	return math.IsNaN(v)
}

// Request specifies one indicator to compute.
// Period applies to SMA, EMA, BOLLINGER, and RSI. The Fast/Slow/Signal
// periods apply to MACD only. VOLUME takes no parameters.
type Request struct {
	Kind         Kind `json:"kind"`
	Period       int  `json:"period,omitempty"`
	FastPeriod   int  `json:"fast_period,omitempty"`
	SlowPeriod   int  `json:"slow_period,omitempty"`
	SignalPeriod int  `json:"signal_period,omitempty"`
}

// InvalidParameterError reports a structurally invalid request parameter.
// Insufficient history is NOT an invalid parameter — a period larger than
// the series legitimately yields an all-Undefined line.
type InvalidParameterError struct {
	Field  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Field, e.Reason)
}

func invalidParam(field, reason string) error {
	return &InvalidParameterError{Field: field, Reason: reason}
}

// Validate checks the request parameters. It never inspects series length.
func (r Request) Validate() error {
	switch r.Kind {
	case KindSMA, KindEMA, KindBollinger, KindRSI:
		if r.Period <= 0 {
			return invalidParam("period", "must be a positive integer")
		}
	case KindMACD:
		if r.FastPeriod <= 0 {
			return invalidParam("fast_period", "must be a positive integer")
		}
		if r.SlowPeriod <= 0 {
			return invalidParam("slow_period", "must be a positive integer")
		}
		if r.SignalPeriod <= 0 {
			return invalidParam("signal_period", "must be a positive integer")
		}
		if r.FastPeriod >= r.SlowPeriod {
			return invalidParam("fast_period", "must be less than slow_period")
		}
	case KindVolume:
		// no parameters
	default:
		return invalidParam("kind", fmt.Sprintf("unknown indicator kind %q", string(r.Kind)))
	}
	return nil
}

// Name returns a display identifier like "SMA_20" or "MACD_12_26_9".
func (r Request) Name() string {
	switch r.Kind {
	case KindMACD:
		return fmt.Sprintf("MACD_%d_%d_%d", r.FastPeriod, r.SlowPeriod, r.SignalPeriod)
	case KindVolume:
		return "VOLUME"
	default:
		return fmt.Sprintf("%s_%d", r.Kind, r.Period)
	}
}

// Output holds the named lines produced for one request. Every line has
// exactly the same length as the input series.
type Output struct {
	Kind  Kind                 `json:"kind"`
	Name  string               `json:"name"`
	Lines map[string][]float64 `json:"lines"`
}

// Compute runs one indicator over the series. The series is read-only;
// fresh output slices are allocated on every call, so identical inputs
// always produce bit-identical, independent outputs.
func Compute(bars []model.Bar, req Request) (Output, error) {
	if err := req.Validate(); err != nil {
		return Output{}, err
	}

	out := Output{Kind: req.Kind, Name: req.Name(), Lines: make(map[string][]float64, 3)}
	closes := model.Closes(bars)

	switch req.Kind {
	case KindSMA:
		out.Lines["sma"] = SMA(closes, req.Period)
	case KindEMA:
		out.Lines["ema"] = EMA(closes, req.Period)
	case KindBollinger:
		upper, middle, lower := Bollinger(closes, req.Period)
		out.Lines["upper"] = upper
		out.Lines["middle"] = middle
		out.Lines["lower"] = lower
	case KindRSI:
		out.Lines["rsi"] = RSI(closes, req.Period)
	case KindMACD:
		macd, signal, hist := MACD(closes, req.FastPeriod, req.SlowPeriod, req.SignalPeriod)
		out.Lines["macd"] = macd
		out.Lines["signal"] = signal
		out.Lines["histogram"] = hist
	case KindVolume:
		vol := make([]float64, len(bars))
		for i := range bars {
			vol[i] = bars[i].Volume
		}
		out.Lines["volume"] = vol
	}

	return out, nil
}

// ComputeAll runs every request over the series, failing fast on the first
// invalid request before any computation proceeds.
func ComputeAll(bars []model.Bar, reqs []Request) ([]Output, error) {
	for _, req := range reqs {
		if err := req.Validate(); err != nil {
			return nil, err
		}
	}
	outs := make([]Output, 0, len(reqs))
	for _, req := range reqs {
		out, err := Compute(bars, req)
		if err != nil {
			return nil, err
		}
		outs = append(outs, out)
	}
	return outs, nil
}

// undefinedSlice allocates an n-length line prefilled with the sentinel.
func undefinedSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
