package market

import (
	"botcontrol/pkg/exchange"
)

// rsi computes the Wilder relative strength index over the final period of the
// series. Returns 50 (neutral) when there is not enough data.
func rsi(klines []exchange.Kline, period int) float64 {
	if len(klines) < period+1 {
		return 50
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := klines[i].Close - klines[i-1].Close
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	// Wilder smoothing over the remainder of the series.
	for i := period + 1; i < len(klines); i++ {
		change := klines[i].Close - klines[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// adx computes the average directional index, the trend-strength oscillator
// the strategy uses to distinguish trending from ranging markets.
func adx(klines []exchange.Kline, period int) float64 {
	if len(klines) < 2*period+1 {
		return 0
	}

	var trSum, plusDMSum, minusDMSum float64
	dxValues := make([]float64, 0, len(klines))

	prev := klines[0]
	for i := 1; i < len(klines); i++ {
		k := klines[i]

		tr := k.High - k.Low
		if hc := abs(k.High - prev.Close); hc > tr {
			tr = hc
		}
		if lc := abs(k.Low - prev.Close); lc > tr {
			tr = lc
		}

		upMove := k.High - prev.High
		downMove := prev.Low - k.Low
		plusDM, minusDM := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}

		// Wilder smoothing of TR and DM.
		if i <= period {
			trSum += tr
			plusDMSum += plusDM
			minusDMSum += minusDM
		} else {
			trSum = trSum - trSum/float64(period) + tr
			plusDMSum = plusDMSum - plusDMSum/float64(period) + plusDM
			minusDMSum = minusDMSum - minusDMSum/float64(period) + minusDM
		}

		if i >= period && trSum > 0 {
			plusDI := 100 * plusDMSum / trSum
			minusDI := 100 * minusDMSum / trSum
			sum := plusDI + minusDI
			if sum > 0 {
				dxValues = append(dxValues, 100*abs(plusDI-minusDI)/sum)
			} else {
				dxValues = append(dxValues, 0)
			}
		}

		prev = k
	}

	if len(dxValues) < period {
		return 0
	}
	adxVal := 0.0
	for _, dx := range dxValues[:period] {
		adxVal += dx
	}
	adxVal /= float64(period)
	for _, dx := range dxValues[period:] {
		adxVal = (adxVal*float64(period-1) + dx) / float64(period)
	}
	return adxVal
}

// momentum is the percent change of the close over the lookback window.
func momentum(klines []exchange.Kline, lookback int) float64 {
	if len(klines) <= lookback {
		return 0
	}
	old := klines[len(klines)-1-lookback].Close
	if old == 0 {
		return 0
	}
	return (klines[len(klines)-1].Close - old) / old * 100
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
