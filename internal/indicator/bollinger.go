package indicator

import "math"

// bollingerWidth is the band distance in standard deviations.
const bollingerWidth = 2.0

// Bollinger computes Bollinger Bands: middle = SMA(period), upper/lower =
// middle ± 2 population standard deviations of the trailing period closes
// (sum of squared deviations divided by period, not period-1). All three
// lines hold Undefined for indices before period-1.
func Bollinger(closes []float64, period int) (upper, middle, lower []float64) {
	middle = SMA(closes, period)
	upper = undefinedSlice(len(closes))
	lower = undefinedSlice(len(closes))

	for i := period - 1; i < len(closes); i++ {
		mean := middle[i]
		var sq float64
		for j := i - period + 1; j <= i; j++ {
			d := closes[j] - mean
			sq += d * d
		}
		sd := math.Sqrt(sq / float64(period))
		upper[i] = mean + bollingerWidth*sd
		lower[i] = mean - bollingerWidth*sd
	}
	return upper, middle, lower
}
