package indicator

// EMA computes the exponential moving average of closes.
//
// Seeding convention: output[period-1] is the SMA of the first period
// closes. From there the standard recurrence applies:
//
//	out[i] = (closes[i] - out[i-1]) * k + out[i-1],  k = 2/(period+1)
//
// Indices before period-1 hold Undefined.
func EMA(closes []float64, period int) []float64 {
	out := undefinedSlice(len(closes))
	if len(closes) < period {
		return out
	}

	var sum float64
	for i := 0; i < period; i++ {
		sum += closes[i]
	}
	out[period-1] = sum / float64(period)

	k := 2.0 / float64(period+1)
	for i := period; i < len(closes); i++ {
		out[i] = (closes[i]-out[i-1])*k + out[i-1]
	}
	return out
}
