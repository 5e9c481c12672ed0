package advisory

import (
	"fmt"
	"math"

	"mandi-advisor/internal/storage"
)

// Trend labels for the price-history view.
const (
	TrendInsufficient = "insufficient_data"
	TrendDeclining    = "declining"
	TrendHighStable   = "high_stable"
	TrendRising       = "rising"
	TrendLow          = "low"
	TrendVolatile     = "volatile"
	TrendStable       = "stable"
)

const trendSpan = 7

// TrendAnalysis summarises a history window for display.
type TrendAnalysis struct {
	Trend           string  `json:"trend"`
	Recommendation  string  `json:"recommendation"`
	Reason          string  `json:"reason"`
	Current         float64 `json:"current_price,omitempty"`
	Min             float64 `json:"min_price,omitempty"`
	Max             float64 `json:"max_price,omitempty"`
	Avg             float64 `json:"avg_price,omitempty"`
	TrendPct        float64 `json:"trend_pct"`
	PricePercentile float64 `json:"price_percentile"`
	VolatilityPct   float64 `json:"volatility"`
}

// AnalyzeTrend classifies a newest-first history. Percentile here is the
// position of the newest price inside the window's min..max range.
func AnalyzeTrend(history storage.TimeSeries) TrendAnalysis {
	if len(history) < 2 {
		return TrendAnalysis{
			Trend:          TrendInsufficient,
			Recommendation: "Monitor market",
			Reason:         "Not enough historical data",
		}
	}

	prices := history.ModalPrices(0)
	current := prices[0]
	lo, hi := prices[0], prices[0]
	for _, p := range prices {
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}
	avg := mean(prices)

	recentAvg := mean(prices[:min(trendSpan, len(prices))])
	olderAvg := mean(prices[len(prices)-min(trendSpan, len(prices)):])

	trendPct := ratioPct(recentAvg-olderAvg, olderAvg)
	volatility := ratioPct(sampleStdDev(prices, avg), avg)
	percentile := 50.0
	if hi-lo > 0 {
		percentile = (current - lo) / (hi - lo) * 100
	}

	// thresholds apply to unrounded values; rounding is for display only
	a := TrendAnalysis{
		Current:         current,
		Min:             lo,
		Max:             hi,
		Avg:             avg,
		TrendPct:        round1(trendPct),
		PricePercentile: math.Round(percentile),
		VolatilityPct:   round1(volatility),
	}

	switch {
	case percentile > 75 && trendPct < -2:
		a.Trend = TrendDeclining
		a.Recommendation = "Good time to sell"
		a.Reason = fmt.Sprintf("Price is %.0f%% of the period range and declining", a.PricePercentile)
	case percentile > 70 && volatility < 15:
		a.Trend = TrendHighStable
		a.Recommendation = "Good time to sell"
		a.Reason = fmt.Sprintf("Price is near the period high (%.0f%%) and stable", a.PricePercentile)
	case percentile < 30 && trendPct > 2:
		a.Trend = TrendRising
		a.Recommendation = "Wait - prices are rising"
		a.Reason = fmt.Sprintf("Price is %.0f%% of the period range and rising %.1f%%", a.PricePercentile, math.Abs(a.TrendPct))
	case percentile < 40:
		a.Trend = TrendLow
		a.Recommendation = "Wait for better prices"
		a.Reason = fmt.Sprintf("Price is only %.0f%% of the period range", a.PricePercentile)
	case volatility > 25:
		a.Trend = TrendVolatile
		a.Recommendation = "Market unstable, monitor closely"
		a.Reason = fmt.Sprintf("High price volatility (%.1f%%)", a.VolatilityPct)
	default:
		a.Trend = TrendStable
		a.Recommendation = "Monitor market"
		a.Reason = fmt.Sprintf("Prices are stable around %.0f%% of range", a.PricePercentile)
	}
	return a
}

// sampleStdDev uses the n-1 denominator.
func sampleStdDev(values []float64, avg float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		d := v - avg
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}
