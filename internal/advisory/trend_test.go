package advisory

import "testing"

func TestAnalyzeTrend(t *testing.T) {
	tests := []struct {
		name    string
		modals  []float64
		trend   string
		percent float64
	}{
		{"single point", []float64{100}, TrendInsufficient, 0},
		{"steady climb to the high", []float64{100, 98, 96, 94, 92, 90, 88, 86, 84, 82}, TrendHighStable, 100},
		{"high but falling off", []float64{180, 100, 200, 200, 200, 200, 200, 200, 200, 200}, TrendDeclining, 80},
		{"flat range reads as midpoint", []float64{100, 100, 100}, TrendStable, 50},
		{"low and recovering", []float64{110, 100, 100, 100, 100, 100, 100, 200, 200}, TrendLow, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnalyzeTrend(series(tt.modals...))
			if got.Trend != tt.trend {
				t.Fatalf("trend = %s, want %s (%+v)", got.Trend, tt.trend, got)
			}
			if tt.trend != TrendInsufficient && got.PricePercentile != tt.percent {
				t.Fatalf("percentile = %v, want %v", got.PricePercentile, tt.percent)
			}
			if got.Reason == "" || got.Recommendation == "" {
				t.Fatal("analysis must carry text")
			}
		})
	}
}

func TestAnalyzeTrendClassifiesBeforeRounding(t *testing.T) {
	tests := []struct {
		name     string
		modals   []float64
		trend    string
		percent  float64
		trendPct float64
	}{
		// percentile 75.4 displays as 75 but still clears the > 75 cutoff
		{
			name:     "percentile just above 75",
			modals:   []float64{854, 800, 800, 800, 800, 800, 800, 1100, 100, 1000, 1000, 1000, 1000, 1000},
			trend:    TrendDeclining,
			percent:  75,
			trendPct: -8.8,
		},
		// trend -2.04 displays as -2.0 but still clears the < -2 cutoff
		{
			name:     "trend just below -2",
			modals:   []float64{1000, 976.2, 976.2, 976.2, 976.2, 976.2, 976.2, 1000, 1000, 1000, 1000, 1000, 1000, 1000},
			trend:    TrendDeclining,
			percent:  100,
			trendPct: -2.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnalyzeTrend(series(tt.modals...))
			if got.Trend != tt.trend {
				t.Fatalf("trend = %s, want %s (%+v)", got.Trend, tt.trend, got)
			}
			if got.PricePercentile != tt.percent || got.TrendPct != tt.trendPct {
				t.Fatalf("displayed percentile/trend = %v/%v, want %v/%v", got.PricePercentile, got.TrendPct, tt.percent, tt.trendPct)
			}
		})
	}
}
