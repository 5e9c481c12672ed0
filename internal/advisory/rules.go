package advisory

import "fmt"

// Rule is one (predicate, outcome) pair. Rules are evaluated in order and
// the first match wins.
type Rule struct {
	Name       string
	When       func(Signals) bool
	Action     Action
	Confidence Confidence
	// Reason renders the English and Hindi rationale.
	Reason func(Signals) (string, string)
}

func (r Rule) recommendation(sig Signals) Recommendation {
	en, hi := r.Reason(sig)
	return Recommendation{
		Action:     r.Action,
		Confidence: r.Confidence,
		Rule:       r.Name,
		Reason:     en,
		ReasonHi:   hi,
	}
}

func fixed(en, hi string) func(Signals) (string, string) {
	return func(Signals) (string, string) { return en, hi }
}

// RichRules apply when at least three days of history exist.
func RichRules() []Rule {
	return []Rule{
		{
			Name:       "high_percentile_stable",
			When:       func(s Signals) bool { return s.Percentile > 75 && s.Volatility < 20 },
			Action:     Sell,
			Confidence: High,
			Reason: func(s Signals) (string, string) {
				return fmt.Sprintf("Price at %.0fth percentile with stable market. Good opportunity to sell.", s.Percentile),
					fmt.Sprintf("मूल्य %.0fवें प्रतिशतक पर स्थिर बाजार के साथ। बेचने का अच्छा अवसर।", s.Percentile)
			},
		},
		{
			Name:       "declining_from_high",
			When:       func(s Signals) bool { return s.Percentile > 60 && s.TrendPct < -5 },
			Action:     Sell,
			Confidence: Medium,
			Reason: fixed(
				"Prices declining from recent highs. Consider selling now.",
				"हाल के उच्चतम स्तर से मूल्य गिर रहे हैं। अब बेचने पर विचार करें।",
			),
		},
		{
			Name:       "rising_trend",
			When:       func(s Signals) bool { return s.TrendPct > 10 && s.Percentile > 30 },
			Action:     Hold,
			Confidence: Medium,
			Reason: fixed(
				"Strong upward trend. Prices may rise further. Hold for better rates.",
				"मजबूत ऊपर की प्रवृत्ति। मूल्य और बढ़ सकते हैं। प्रतीक्षा करें।",
			),
		},
		{
			Name:       "too_volatile",
			When:       func(s Signals) bool { return s.Volatility > 25 },
			Action:     Hold,
			Confidence: Medium,
			Reason: fixed(
				"Market highly volatile. Wait for stabilization before selling.",
				"बाजार अत्यधिक अस्थिर। बेचने से पहले स्थिरता की प्रतीक्षा करें।",
			),
		},
		{
			Name:       "below_average",
			When:       func(s Signals) bool { return s.Percentile < 30 },
			Action:     Hold,
			Confidence: High,
			Reason: fixed(
				"Price well below recent average. Hold for better opportunities.",
				"मूल्य हाल के औसत से काफी नीचे। बेहतर अवसरों की प्रतीक्षा करें।",
			),
		},
		{
			Name:       "neutral",
			When:       func(Signals) bool { return true },
			Action:     Hold,
			Confidence: Medium,
			Reason: fixed(
				"Market conditions neutral. Monitor prices before deciding.",
				"बाजार की स्थिति तटस्थ। निर्णय लेने से पहले मूल्यों की निगरानी करें।",
			),
		},
	}
}

// DegradedRules apply with fewer than three days of history.
func DegradedRules() []Rule {
	return []Rule{
		{
			Name:       "insufficient_data_wide_spread",
			When:       func(s Signals) bool { return s.Volatility > 30 },
			Action:     Hold,
			Confidence: Low,
			Reason: fixed(
				"High price volatility detected. Wait for market stabilization.",
				"उच्च मूल्य अस्थिरता। बाजार स्थिरता की प्रतीक्षा करें।",
			),
		},
		{
			Name:       "above_midpoint",
			When:       func(s Signals) bool { return s.Modal > s.Midpoint },
			Action:     Sell,
			Confidence: Medium,
			Reason: fixed(
				"Price is above market average. Good time to sell.",
				"मूल्य बाजार औसत से ऊपर है। बेचने का अच्छा समय।",
			),
		},
		{
			Name:       "below_midpoint",
			When:       func(Signals) bool { return true },
			Action:     Hold,
			Confidence: Medium,
			Reason: fixed(
				"Price below average. Consider holding for better rates.",
				"मूल्य औसत से नीचे। बेहतर दरों के लिए प्रतीक्षा करें।",
			),
		},
	}
}
