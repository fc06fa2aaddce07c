package indicator

// SMA computes the simple moving average of closes over a trailing window.
// output[i] is the arithmetic mean of closes[i-period+1..i]; indices with
// fewer than period values of history hold Undefined. Maintains a rolling
// sum, so the whole line is O(N).
func SMA(closes []float64, period int) []float64 {
	out := undefinedSlice(len(closes))

	var sum float64
	for i, c := range closes {
		sum += c
		if i >= period {
			sum -= closes[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}
