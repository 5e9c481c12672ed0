package storage

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-day format used in documents and APIs.
const DateLayout = "2006-01-02"

// PriceObservation is one day of prices for a region and commodity.
type PriceObservation struct {
	State      string          `json:"state,omitempty"`
	District   string          `json:"district,omitempty"`
	Commodity  string          `json:"commodity,omitempty"`
	Date       time.Time       `json:"date"`
	MinPrice   decimal.Decimal `json:"min_price"`
	MaxPrice   decimal.Decimal `json:"max_price"`
	ModalPrice decimal.Decimal `json:"modal_price"`
}

// Key returns the normalized series key of the observation.
func (o PriceObservation) Key() Key {
	return NormalizeKey(o.State, o.District, o.Commodity)
}

// TimeSeries is a newest-first run of observations for one key.
type TimeSeries []PriceObservation

// SortNewestFirst orders the series by descending date in place.
func (ts TimeSeries) SortNewestFirst() {
	slices.SortStableFunc(ts, func(a, b PriceObservation) int {
		return b.Date.Compare(a.Date)
	})
}

// Window returns at most n newest entries; n <= 0 returns the whole series.
func (ts TimeSeries) Window(n int) TimeSeries {
	if n <= 0 || len(ts) <= n {
		return ts
	}
	return ts[:n]
}

// ModalPrices returns the modal prices of the newest n entries as floats.
func (ts TimeSeries) ModalPrices(n int) []float64 {
	window := ts.Window(n)
	out := make([]float64, len(window))
	for i, obs := range window {
		out[i] = obs.ModalPrice.InexactFloat64()
	}
	return out
}

// UserCheck records a user looking up a commodity price.
type UserCheck struct {
	CheckedAt   time.Time       `json:"timestamp"`
	Commodity   string          `json:"commodity"`
	CommodityHi string          `json:"commodity_hi,omitempty"`
	State       string          `json:"state"`
	District    string          `json:"district"`
	Market      string          `json:"market"`
	MinPrice    decimal.Decimal `json:"min_price"`
	MaxPrice    decimal.Decimal `json:"max_price"`
	ModalPrice  decimal.Decimal `json:"modal_price"`
}

// CommodityCount ranks commodities by how often they were checked.
type CommodityCount struct {
	Commodity string `json:"commodity"`
	Count     int    `json:"count"`
}

// readCapHint bounds preallocation for caller-supplied row limits.
const readCapHint = 90

func capHint(limit int) int {
	return max(0, min(limit, readCapHint))
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// rankCommodities sorts counts by frequency, then name.
func rankCommodities(counts map[string]int) []CommodityCount {
	ranked := make([]CommodityCount, 0, len(counts))
	for commodity, count := range counts {
		ranked = append(ranked, CommodityCount{Commodity: commodity, Count: count})
	}
	slices.SortFunc(ranked, func(a, b CommodityCount) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		switch {
		case a.Commodity < b.Commodity:
			return -1
		case a.Commodity > b.Commodity:
			return 1
		}
		return 0
	})
	return ranked
}
