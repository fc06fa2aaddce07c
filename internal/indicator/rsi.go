package indicator

// RSI computes a windowed Relative Strength Index over bar-to-bar close
// deltas. For bar index i >= period, the trailing period deltas are the
// window: avgGain = sum(positive deltas)/period, avgLoss = sum(|negative
// deltas|)/period, RSI = 100 - 100/(1 + avgGain/avgLoss), or exactly 100
// when avgLoss is zero. Bar indices below period hold Undefined.
//
// This is deliberately NOT Wilder's smoothed RSI: each point is recomputed
// from its own window. Chart output compatibility depends on keeping this
// convention.
//
// The sums are rebuilt from scratch per index rather than maintained as
// rolling totals: add/remove residue would leave a pure-gain window with a
// nonzero loss sum, missing the exact avgLoss == 0 branch and letting
// values stray outside [0, 100].
func RSI(closes []float64, period int) []float64 {
	out := undefinedSlice(len(closes))
	if len(closes) < 2 {
		return out
	}

	// Delta j corresponds to the move into bar j+1.
	deltas := make([]float64, len(closes)-1)
	for j := range deltas {
		deltas[j] = closes[j+1] - closes[j]
	}

	for i := period; i < len(closes); i++ {
		var gainSum, lossSum float64
		for j := i - period; j < i; j++ {
			if d := deltas[j]; d > 0 {
				gainSum += d
			} else {
				lossSum -= d
			}
		}

		avgGain := gainSum / float64(period)
		avgLoss := lossSum / float64(period)
		if avgLoss == 0 {
			out[i] = 100.0
			continue
		}
		rs := avgGain / avgLoss
		out[i] = 100.0 - 100.0/(1.0+rs)
	}
	return out
}
