package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.data.gov.in/resource"

// FeedOptions parameterise the data.gov.in fetcher.
type FeedOptions struct {
	BaseURL        string
	ResourceID     string
	APIKey         string
	UserAgent      string
	Timeout        time.Duration
	RequestsPerSec float64
	MaxRetries     uint64
	Limit          int
	// MaxElapsed caps total retry time; zero uses 30s.
	MaxElapsed time.Duration
}

// Feed fetches mandi prices from the data.gov.in resource API. The upstream
// is rate-limited and frequently returns empty pages, so requests share a
// limiter and transient failures are retried with exponential backoff.
type Feed struct {
	opts    FeedOptions
	client  *resty.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewFeed constructs a feed fetcher.
func NewFeed(opts FeedOptions, logger zerolog.Logger) *Feed {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RequestsPerSec <= 0 {
		opts.RequestsPerSec = 2
	}
	if opts.Limit <= 0 {
		opts.Limit = 500
	}
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = 30 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}

	return &Feed{
		opts:    opts,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1),
		logger:  logger.With().Str("component", "price_feed").Logger(),
	}
}

type feedResponse struct {
	Records []feedRecord `json:"records"`
}

type feedRecord struct {
	State       string    `json:"state"`
	District    string    `json:"district"`
	Market      string    `json:"market"`
	Commodity   string    `json:"commodity"`
	Variety     string    `json:"variety"`
	Grade       string    `json:"grade"`
	ArrivalDate string    `json:"arrival_date"`
	MinPrice    feedPrice `json:"min_price"`
	MaxPrice    feedPrice `json:"max_price"`
	ModalPrice  feedPrice `json:"modal_price"`
}

// feedPrice accepts quoted or bare numbers; anything unparsable reads as zero.
type feedPrice struct {
	decimal.Decimal
}

func (p *feedPrice) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(bytes.Trim(data, `"`)))
	if raw == "" || raw == "null" || raw == "NR" {
		p.Decimal = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		p.Decimal = decimal.Zero
		return nil
	}
	p.Decimal = d
	return nil
}

// FetchPrices queries the feed. When a district query comes back empty it
// retries once for the whole state and flags the result as a fallback.
func (f *Feed) FetchPrices(ctx context.Context, q Query) (Result, error) {
	if f.opts.ResourceID == "" {
		return Result{}, errors.New("feed resource id not configured")
	}

	records, err := f.fetch(ctx, q)
	if err != nil {
		return Result{}, err
	}

	fallback := false
	if len(records) == 0 && q.State != "" && q.District != "" {
		stateWide := Query{State: q.State, Commodity: q.Commodity}
		records, err = f.fetch(ctx, stateWide)
		if err != nil {
			f.logger.Warn().Err(err).Str("state", q.State).Msg("state-wide fallback query failed")
			return Result{Records: []Record{}}, nil
		}
		fallback = len(records) > 0
	}

	return Result{Records: records, IsFallback: fallback}, nil
}

func (f *Feed) fetch(ctx context.Context, q Query) ([]Record, error) {
	params := map[string]string{
		"api-key": f.opts.APIKey,
		"format":  "json",
		"offset":  "0",
		"limit":   fmt.Sprintf("%d", f.opts.Limit),
	}
	if q.State != "" {
		params["filters[state]"] = q.State
	}
	if q.District != "" {
		params["filters[district]"] = q.District
	}
	if q.Commodity != "" {
		params["filters[commodity]"] = q.Commodity
	}

	var payload feedResponse
	operation := func() error {
		if err := f.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		payload = feedResponse{}
		resp, err := f.client.R().
			SetContext(ctx).
			SetQueryParams(params).
			SetResult(&payload).
			Get("/" + f.opts.ResourceID)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("feed request: %w", err)
		}

		status := resp.StatusCode()
		switch {
		case status == http.StatusTooManyRequests || status >= 500:
			return fmt.Errorf("feed status %d", status)
		case status < 200 || status >= 300:
			return backoff.Permanent(fmt.Errorf("feed status %d: %s", status, truncate(resp.String(), 256)))
		}
		return nil
	}

	var strategy backoff.BackOff = newBackOff(f.opts.MaxElapsed)
	strategy = backoff.WithMaxRetries(strategy, f.opts.MaxRetries)
	strategy = backoff.WithContext(strategy, ctx)

	notify := func(err error, wait time.Duration) {
		f.logger.Warn().Err(err).Dur("retry_in", wait).Msg("price feed request failed; retrying")
	}
	if err := backoff.RetryNotify(operation, strategy, notify); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(payload.Records))
	for _, r := range payload.Records {
		if r.State == "" || r.District == "" {
			continue
		}
		commodity := r.Commodity
		if commodity == "" {
			commodity = "Unknown"
		}
		market := r.Market
		if market == "" {
			market = r.District + " Mandi"
		}
		arrival := r.ArrivalDate
		if arrival == "" {
			arrival = time.Now().UTC().Format("02/01/2006")
		}
		records = append(records, Record{
			Commodity:   commodity,
			State:       r.State,
			District:    r.District,
			Market:      market,
			Variety:     r.Variety,
			Grade:       r.Grade,
			ArrivalDate: arrival,
			Unit:        "Quintal",
			MinPrice:    r.MinPrice.Decimal,
			MaxPrice:    r.MaxPrice.Decimal,
			ModalPrice:  r.ModalPrice.Decimal,
		})
	}

	f.logger.Debug().
		Str("state", q.State).
		Str("district", q.District).
		Str("commodity", q.Commodity).
		Int("records", len(records)).
		Msg("feed page fetched")
	return records, nil
}

func newBackOff(maxElapsed time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = maxElapsed
	return b
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ PriceFeed = (*Feed)(nil)
