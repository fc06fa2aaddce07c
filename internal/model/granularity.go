package model

import (
	"fmt"
	"time"
)

// Granularity enumerates the chart timeframes supported by the exchange API.
// The string values match the exchange's candle endpoint verbatim.
type Granularity string

const (
	OneMinute     Granularity = "ONE_MINUTE"
	FiveMinute    Granularity = "FIVE_MINUTE"
	FifteenMinute Granularity = "FIFTEEN_MINUTE"
	ThirtyMinute  Granularity = "THIRTY_MINUTE"
	OneHour       Granularity = "ONE_HOUR"
	TwoHour       Granularity = "TWO_HOUR"
	SixHour       Granularity = "SIX_HOUR"
	OneDay        Granularity = "ONE_DAY"
	OneWeek       Granularity = "ONE_WEEK"
	OneMonth      Granularity = "ONE_MONTH"
)

var granularityDurations = map[Granularity]time.Duration{
	OneMinute:     time.Minute,
	FiveMinute:    5 * time.Minute,
	FifteenMinute: 15 * time.Minute,
	ThirtyMinute:  30 * time.Minute,
	OneHour:       time.Hour,
	TwoHour:       2 * time.Hour,
	SixHour:       6 * time.Hour,
	OneDay:        24 * time.Hour,
	OneWeek:       7 * 24 * time.Hour,
	OneMonth:      30 * 24 * time.Hour,
}

// ParseGranularity validates a granularity string from the API surface.
func ParseGranularity(s string) (Granularity, error) {
	g := Granularity(s)
	if _, ok := granularityDurations[g]; !ok {
		return "", fmt.Errorf("unknown granularity %q", s)
	}
	return g, nil
}

// Duration returns the bar interval for this granularity.
// ONE_MONTH is approximated as 30 days.
func (g Granularity) Duration() time.Duration {
	return granularityDurations[g]
}

// Granularities returns all supported granularities in ascending interval order.
func Granularities() []Granularity {
	return []Granularity{
		OneMinute, FiveMinute, FifteenMinute, ThirtyMinute,
		OneHour, TwoHour, SixHour, OneDay, OneWeek, OneMonth,
	}
}
