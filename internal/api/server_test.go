package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"mandi-advisor/internal/config"
	"mandi-advisor/internal/fetcher"
	"mandi-advisor/internal/service"
	"mandi-advisor/internal/storage"
)

type stubFeed struct {
	result fetcher.Result
	err    error
}

func (f *stubFeed) FetchPrices(context.Context, fetcher.Query) (fetcher.Result, error) {
	return f.result, f.err
}

type stubSchema struct {
	configured bool
	err        error
	calls      int
}

func (s *stubSchema) Configured() bool { return s.configured }

func (s *stubSchema) EnsureSchema(context.Context) error {
	s.calls++
	return s.err
}

func newTestServer(t *testing.T, feed fetcher.PriceFeed, schema SchemaBootstrapper) *httptest.Server {
	t.Helper()
	files := storage.NewFiles(afero.NewMemMapFs(), storage.FilesOptions{}, zerolog.Nop())
	history := service.NewHistory(nil, files, 30, zerolog.Nop())
	svc := service.New(&config.Config{}, history, nil, feed, nil, nil, nil, zerolog.Nop())

	opts := Options{RequestTimeout: 5 * time.Second}
	if schema != nil {
		opts.Schema = schema
	}
	srv := httptest.NewServer(NewHandler(svc, opts, zerolog.Nop()).Router())
	t.Cleanup(srv.Close)
	return srv
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	resp := get(t, srv.URL+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["ok"] != true {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestPriceHistoryRequiresParams(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	resp := get(t, srv.URL+"/api/price-history?state=Goa&district=North+Goa")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["error"] == nil {
		t.Fatal("error message expected")
	}
}

func TestSavePriceThenReadHistory(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	resp := post(t, srv.URL+"/api/scrape-prices", `{"state":"Maharashtra","district":"Nashik","commodity":"Onion","min_price":1200,"max_price":1800,"modal_price":"1550"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save failed with %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["source"] != string(service.SourceFallback) {
		t.Fatalf("expected fallback source, got %v", body["source"])
	}

	resp = get(t, srv.URL+"/api/price-history?state=Maharashtra&district=Nashik&commodity=Onion&days=7")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history failed with %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["count"] != float64(1) {
		t.Fatalf("expected one point, got %v", body["count"])
	}
	history := body["history"].([]any)
	point := history[0].(map[string]any)
	if point["modal_price"] != float64(1550) || point["date"] != time.Now().UTC().Format(storage.DateLayout) {
		t.Fatalf("unexpected point %v", point)
	}
	analysis := body["analysis"].(map[string]any)
	if analysis["trend"] != "insufficient_data" {
		t.Fatalf("single point should be insufficient, got %v", analysis["trend"])
	}
}

func TestPriceHistoryEmptyHasNoAnalysis(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	body := decodeBody(t, get(t, srv.URL+"/api/price-history?state=Goa&district=North+Goa&commodity=Rice"))
	if body["count"] != float64(0) || body["analysis"] != nil {
		t.Fatalf("unexpected empty history body %v", body)
	}
}

func TestOversizedWindowsAreServed(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	for _, path := range []string{
		"/api/price-history?state=Goa&district=North+Goa&commodity=Rice&days=100000000000",
		"/api/user-history?limit=100000000000",
	} {
		resp := get(t, srv.URL+path)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: unexpected status %d", path, resp.StatusCode)
		}
		if body := decodeBody(t, resp); body["success"] != true {
			t.Fatalf("%s: unexpected body %v", path, body)
		}
	}
}

func TestRecommend(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	resp := post(t, srv.URL+"/api/recommend", `{"commodity":"Onion","state":"Maharashtra","district":"Nashik","modal_price":100,"min_price":80,"max_price":220}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["action"] != "HOLD" || body["confidence"] != "LOW" {
		t.Fatalf("expected HOLD/LOW, got %v", body)
	}
	if body["reason"] == "" || body["reason_hi"] == "" {
		t.Fatal("both rationales expected")
	}
	if _, ok := body["trend_pct"]; ok {
		t.Fatal("degraded recommendation must omit metrics")
	}

	resp = post(t, srv.URL+"/api/recommend", `{"modal_price":100}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing fields should be rejected, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = post(t, srv.URL+"/api/recommend", `not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body should be rejected, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestScrapePrices(t *testing.T) {
	feed := &stubFeed{result: fetcher.Result{
		Records: []fetcher.Record{{
			Commodity: "Onion", State: "Maharashtra", District: "Nashik", Market: "Lasalgaon",
			MinPrice: decimal.NewFromInt(1200), MaxPrice: decimal.NewFromInt(1800), ModalPrice: decimal.NewFromInt(1550),
		}},
		IsFallback: true,
	}}
	srv := newTestServer(t, feed, nil)

	body := decodeBody(t, get(t, srv.URL+"/api/scrape-prices?state=Maharashtra&district=Niphad"))
	if body["success"] != true || body["count"] != float64(1) || body["isFallback"] != true || body["requestedDistrict"] != "Niphad" {
		t.Fatalf("unexpected scrape body %v", body)
	}
	if body["stored"] != float64(1) {
		t.Fatalf("record should be persisted, got %v", body["stored"])
	}

	history := decodeBody(t, get(t, srv.URL+"/api/price-history?state=Maharashtra&district=Niphad&commodity=Onion"))
	if history["count"] != float64(1) {
		t.Fatalf("scraped price should be readable under requested district, got %v", history["count"])
	}
}

func TestScrapePricesErrors(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	resp := get(t, srv.URL+"/api/scrape-prices?state=Goa")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("missing feed should be 503, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	srv = newTestServer(t, &stubFeed{err: errors.New("feed status 500")}, nil)
	resp = get(t, srv.URL+"/api/scrape-prices?state=Goa")
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("upstream failure should be 502, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); len(body["data"].([]any)) != 0 {
		t.Fatal("error body should carry empty data")
	}
}

func TestUserHistory(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	for _, c := range []string{"Onion", "Garlic", "Onion"} {
		resp := post(t, srv.URL+"/api/user-history", `{"commodity":"`+c+`","commodity_hi":"प्याज","state":"Maharashtra","district":"Nashik","market":"Lasalgaon","min_price":1,"max_price":3,"modal_price":2}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("save check failed with %d", resp.StatusCode)
		}
		resp.Body.Close()
	}

	body := decodeBody(t, get(t, srv.URL+"/api/user-history?limit=2"))
	if body["count"] != float64(2) {
		t.Fatalf("limit not honoured: %v", body["count"])
	}
	first := body["history"].([]any)[0].(map[string]any)
	if first["commodity"] != "Onion" || first["timestamp"] == nil {
		t.Fatalf("newest check should come first, got %v", first)
	}

	stats := decodeBody(t, get(t, srv.URL+"/api/user-history?type=stats"))
	ranked := stats["stats"].([]any)
	top := ranked[0].(map[string]any)
	if top["commodity"] != "Onion" || top["count"] != float64(2) {
		t.Fatalf("unexpected stats %v", ranked)
	}

	resp := post(t, srv.URL+"/api/user-history", `{"state":"Goa"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing commodity should be 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestInitDB(t *testing.T) {
	tests := []struct {
		name    string
		schema  *stubSchema
		status  int
		success bool
	}{
		{"no database", nil, http.StatusOK, false},
		{"not configured", &stubSchema{}, http.StatusOK, false},
		{"initialised", &stubSchema{configured: true}, http.StatusOK, true},
		{"unreachable", &stubSchema{configured: true, err: storage.ErrUnavailable}, http.StatusOK, false},
		{"schema error", &stubSchema{configured: true, err: errors.New("syntax error")}, http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var schema SchemaBootstrapper
			if tt.schema != nil {
				schema = tt.schema
			}
			srv := newTestServer(t, nil, schema)
			resp := get(t, srv.URL+"/api/init-db")
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			body := decodeBody(t, resp)
			if tt.status == http.StatusOK && body["success"] != tt.success {
				t.Fatalf("success = %v, want %v", body["success"], tt.success)
			}
		})
	}
}
