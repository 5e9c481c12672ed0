package fetcher

import (
	"context"

	"github.com/shopspring/decimal"
)

// Query filters the upstream feed. Empty fields are not sent.
type Query struct {
	State     string
	District  string
	Commodity string
}

// Record is one market's prices for a commodity as reported upstream.
type Record struct {
	Commodity   string          `json:"commodity_en"`
	State       string          `json:"state"`
	District    string          `json:"district"`
	Market      string          `json:"market"`
	Variety     string          `json:"variety"`
	Grade       string          `json:"grade"`
	ArrivalDate string          `json:"arrival_date"`
	Unit        string          `json:"unit"`
	MinPrice    decimal.Decimal `json:"min_price"`
	MaxPrice    decimal.Decimal `json:"max_price"`
	ModalPrice  decimal.Decimal `json:"modal_price"`
}

// Result is a feed answer. IsFallback marks a state-wide answer returned
// because the district had no records.
type Result struct {
	Records    []Record `json:"data"`
	IsFallback bool     `json:"isFallback"`
}

// PriceFeed retrieves mandi prices from the government feed.
type PriceFeed interface {
	FetchPrices(ctx context.Context, q Query) (Result, error)
}
