package indicator

// MACD computes the Moving Average Convergence Divergence lines.
//
// macd[i] = EMA(fast)[i] - EMA(slow)[i], Undefined wherever either EMA is
// still warming up (the slow EMA defines from index slow-1, so macd does
// too). The signal line is seeded at index slow+signal-2 — the first index
// with signal defined macd values — with the arithmetic mean of those
// values, then follows the EMA recurrence with k = 2/(signal+1). The
// histogram is macd - signal wherever both are defined.
//
// Callers must ensure fast < slow and all periods positive; Compute
// validates this before dispatch.
func MACD(closes []float64, fast, slow, signal int) (macd, signalLine, histogram []float64) {
	n := len(closes)
	macd = undefinedSlice(n)
	signalLine = undefinedSlice(n)
	histogram = undefinedSlice(n)

	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)
	for i := slow - 1; i < n; i++ {
		macd[i] = fastEMA[i] - slowEMA[i]
	}

	// Signal seed: mean of the first signal defined macd values.
	seedIdx := slow + signal - 2
	if seedIdx >= n {
		return macd, signalLine, histogram
	}
	var sum float64
	for i := slow - 1; i <= seedIdx; i++ {
		sum += macd[i]
	}
	signalLine[seedIdx] = sum / float64(signal)

	k := 2.0 / float64(signal+1)
	for i := seedIdx + 1; i < n; i++ {
		signalLine[i] = (macd[i]-signalLine[i-1])*k + signalLine[i-1]
	}

	for i := seedIdx; i < n; i++ {
		histogram[i] = macd[i] - signalLine[i]
	}
	return macd, signalLine, histogram
}
