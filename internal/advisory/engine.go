// Package advisory turns a short modal price history into a sell/hold call.
package advisory

import (
	"math"

	"mandi-advisor/internal/storage"
)

// Action is the recommended move.
type Action string

// Confidence grades an Action.
type Confidence string

const (
	Sell Action = "SELL"
	Hold Action = "HOLD"

	Low    Confidence = "LOW"
	Medium Confidence = "MEDIUM"
	High   Confidence = "HIGH"
)

const (
	// richMinPoints is the history length that unlocks the statistical rules.
	richMinPoints = 3
	// statsWindow bounds the prices used for volatility and percentile.
	statsWindow = 10
	// trendHalf is the size of each half compared by the trend signal.
	trendHalf = 5
)

// Quote is the current market quote for the series being advised on.
type Quote struct {
	Min   float64 `json:"min_price"`
	Max   float64 `json:"max_price"`
	Modal float64 `json:"modal_price"`
}

// Recommendation is built fresh per request and never persisted.
type Recommendation struct {
	Action          Action     `json:"action"`
	Confidence      Confidence `json:"confidence"`
	Rule            string     `json:"rule"`
	Reason          string     `json:"reason"`
	ReasonHi        string     `json:"reason_hi"`
	TrendPct        *float64   `json:"trend_pct,omitempty"`
	VolatilityPct   *float64   `json:"volatility,omitempty"`
	PricePercentile *float64   `json:"price_percentile,omitempty"`
}

// Signals are the inputs every rule predicate sees.
type Signals struct {
	Points     int
	Modal      float64
	Midpoint   float64
	Volatility float64
	TrendPct   float64
	Percentile float64
}

// Engine evaluates ordered rule lists; it holds no mutable state.
type Engine struct {
	rich     []Rule
	degraded []Rule
}

// NewEngine returns an engine with the standard rule sets.
func NewEngine() *Engine {
	return &Engine{rich: RichRules(), degraded: DegradedRules()}
}

// NewEngineWithRules lets callers supply their own ordered rules.
func NewEngineWithRules(rich, degraded []Rule) *Engine {
	return &Engine{rich: rich, degraded: degraded}
}

// Recommend advises on quote given a newest-first history of the same key.
func (e *Engine) Recommend(quote Quote, history storage.TimeSeries) Recommendation {
	if len(history) < richMinPoints {
		return evaluate(e.degraded, DegradedSignals(quote, len(history)))
	}

	sig := RichSignals(quote, history.ModalPrices(statsWindow))
	rec := evaluate(e.rich, sig)

	trend := round1(sig.TrendPct)
	volatility := round1(sig.Volatility)
	percentile := math.Round(sig.Percentile)
	rec.TrendPct = &trend
	rec.VolatilityPct = &volatility
	rec.PricePercentile = &percentile
	return rec
}

// DegradedSignals estimates volatility from the quote's own spread.
func DegradedSignals(quote Quote, points int) Signals {
	return Signals{
		Points:     points,
		Modal:      quote.Modal,
		Midpoint:   (quote.Min + quote.Max) / 2,
		Volatility: ratioPct(quote.Max-quote.Min, quote.Modal),
	}
}

// RichSignals computes the statistical signals from newest-first prices,
// of which at most the newest statsWindow are used.
func RichSignals(quote Quote, prices []float64) Signals {
	if len(prices) > statsWindow {
		prices = prices[:statsWindow]
	}

	sig := Signals{
		Points:   len(prices),
		Modal:    quote.Modal,
		Midpoint: (quote.Min + quote.Max) / 2,
	}
	if len(prices) == 0 {
		return sig
	}

	avg := mean(prices)
	sig.Volatility = ratioPct(stdDev(prices, avg), avg)

	if len(prices) >= 2*trendHalf {
		recentAvg := mean(prices[:trendHalf])
		olderAvg := mean(prices[trendHalf : 2*trendHalf])
		sig.TrendPct = ratioPct(recentAvg-olderAvg, olderAvg)
	}

	below := 0
	for _, p := range prices {
		if p < quote.Modal {
			below++
		}
	}
	sig.Percentile = float64(below) / float64(len(prices)) * 100
	return sig
}

func evaluate(rules []Rule, sig Signals) Recommendation {
	for _, rule := range rules {
		if rule.When(sig) {
			return rule.recommendation(sig)
		}
	}
	return Recommendation{Action: Hold, Confidence: Low, Rule: "no_rule"}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdDev is the population standard deviation around avg.
func stdDev(values []float64, avg float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		d := v - avg
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// ratioPct returns num/den as a percentage, or 0 when den is not positive or
// the result is not finite.
func ratioPct(num, den float64) float64 {
	if den <= 0 || math.IsNaN(den) {
		return 0
	}
	v := num * 100 / den
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
