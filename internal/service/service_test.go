package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"mandi-advisor/internal/advisory"
	"mandi-advisor/internal/config"
	"mandi-advisor/internal/fetcher"
	"mandi-advisor/internal/storage"
)

func testConfig(regions ...string) *config.Config {
	cfg := &config.Config{}
	cfg.Collector.Regions = regions
	cfg.Collector.LockKey = 42
	cfg.Alerting.Enabled = true
	return cfg
}

func record(commodity string, lo, hi, modal int64) fetcher.Record {
	return fetcher.Record{
		Commodity:  commodity,
		State:      "Maharashtra",
		District:   "Nashik",
		Market:     "Lasalgaon",
		MinPrice:   decimal.NewFromInt(lo),
		MaxPrice:   decimal.NewFromInt(hi),
		ModalPrice: decimal.NewFromInt(modal),
	}
}

func TestIngestStoresUnderRequestedDistrict(t *testing.T) {
	ctx := context.Background()
	primary := newMemBackend()
	h, _ := newTestHistory(primary)

	feed := &stubFeed{result: fetcher.Result{
		Records:    []fetcher.Record{record("Onion", 1200, 1800, 1550), record("Tomato", 800, 1000, 900)},
		IsFallback: true,
	}}
	svc := New(testConfig(), h, nil, feed, nil, nil, nil, zerolog.Nop())

	res, err := svc.Ingest(ctx, fetcher.Query{State: "Maharashtra", District: "Niphad"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Stored != 2 || !res.IsFallback {
		t.Fatalf("expected 2 stored fallback records, got %+v", res)
	}

	series, _ := h.Read(ctx, "Maharashtra", "Niphad", "Onion", 0)
	if len(series) != 1 || !series[0].ModalPrice.Equal(decimal.NewFromInt(1550)) {
		t.Fatalf("state-wide rows should be filed under the requested district, got %+v", series)
	}
}

func TestIngestWithoutDistrictDoesNotPersist(t *testing.T) {
	primary := newMemBackend()
	h, _ := newTestHistory(primary)
	feed := &stubFeed{result: fetcher.Result{Records: []fetcher.Record{record("Onion", 1, 2, 3)}}}
	svc := New(testConfig(), h, nil, feed, nil, nil, nil, zerolog.Nop())

	res, err := svc.Ingest(context.Background(), fetcher.Query{State: "Maharashtra"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Stored != 0 || primary.writes != 0 {
		t.Fatalf("state-only queries must not persist, stored %d", res.Stored)
	}
}

func TestIngestErrors(t *testing.T) {
	h, _ := newTestHistory(nil)

	svc := New(testConfig(), h, nil, nil, nil, nil, nil, zerolog.Nop())
	if _, err := svc.Ingest(context.Background(), fetcher.Query{State: "Goa"}); !errors.Is(err, ErrFeedNotConfigured) {
		t.Fatalf("expected ErrFeedNotConfigured, got %v", err)
	}

	svc = New(testConfig(), h, nil, &stubFeed{err: errors.New("upstream down")}, nil, nil, nil, zerolog.Nop())
	if _, err := svc.Ingest(context.Background(), fetcher.Query{State: "Goa"}); err == nil {
		t.Fatal("feed errors should surface")
	}
}

func TestAdviseUsesStoredHistory(t *testing.T) {
	ctx := context.Background()
	primary := newMemBackend()
	h, _ := newTestHistory(primary)
	for i := 1; i <= 10; i++ {
		modal := int64(120)
		if i > 5 {
			modal = 100
		}
		if _, err := h.WriteObservation(ctx, obs(i, modal)); err != nil {
			t.Fatal(err)
		}
	}
	svc := New(testConfig(), h, nil, nil, nil, nil, nil, zerolog.Nop())

	rec := svc.Advise(ctx, AdviceRequest{
		State: "Maharashtra", District: "Nashik", Commodity: "Onion",
		MinPrice: decimal.NewFromInt(110), MaxPrice: decimal.NewFromInt(140), ModalPrice: decimal.NewFromInt(130),
	})
	if rec.Action != advisory.Sell || rec.Confidence != advisory.High {
		t.Fatalf("expected SELL/HIGH, got %s/%s (%s)", rec.Action, rec.Confidence, rec.Rule)
	}

	empty := svc.Advise(ctx, AdviceRequest{
		State: "Kerala", District: "Idukki", Commodity: "Cardamom",
		MinPrice: decimal.NewFromInt(80), MaxPrice: decimal.NewFromInt(220), ModalPrice: decimal.NewFromInt(100),
	})
	if empty.Action != advisory.Hold || empty.Confidence != advisory.Low || empty.TrendPct != nil {
		t.Fatalf("no history should take the degraded branch, got %+v", empty)
	}

	view := svc.PriceHistory(ctx, "Maharashtra", "Nashik", "Onion", 0)
	if len(view.History) != 10 || view.Source != SourcePrimary || view.Analysis.Trend == advisory.TrendInsufficient {
		t.Fatalf("unexpected history view %+v", view)
	}
}

func TestCollectNotifiesOnSellHigh(t *testing.T) {
	ctx := context.Background()
	primary := newMemBackend()
	h, _ := newTestHistory(primary)
	for i := 1; i <= 10; i++ {
		modal := int64(120)
		if i > 5 {
			modal = 100
		}
		if _, err := h.WriteObservation(ctx, obs(i, modal)); err != nil {
			t.Fatal(err)
		}
	}

	feed := &stubFeed{result: fetcher.Result{Records: []fetcher.Record{
		record("Onion", 110, 140, 130),
		record("Garlic", 80, 220, 100),
	}}}
	notifier := &recordingNotifier{}
	locker := &stubLocker{acquired: true}
	svc := New(testConfig("Maharashtra/Nashik"), h, nil, feed, nil, notifier, locker, zerolog.Nop())

	if err := svc.Collect(ctx, today); err != nil {
		t.Fatalf("collect should succeed: %v", err)
	}
	if len(notifier.notes) != 1 || notifier.notes[0].Commodity != "Onion" || notifier.notes[0].Action != "SELL" {
		t.Fatalf("expected one SELL notice for Onion, got %+v", notifier.notes)
	}
	if locker.released != 1 {
		t.Fatalf("lock should be released once, got %d", locker.released)
	}
	if len(feed.queries) != 1 || feed.queries[0].District != "Nashik" {
		t.Fatalf("unexpected feed queries %+v", feed.queries)
	}
}

func TestCollectSkipsWhenLockHeld(t *testing.T) {
	h, _ := newTestHistory(nil)
	feed := &stubFeed{}
	svc := New(testConfig("Goa/North Goa"), h, nil, feed, nil, nil, &stubLocker{acquired: false}, zerolog.Nop())

	if err := svc.Collect(context.Background(), today); err != nil {
		t.Fatal(err)
	}
	if len(feed.queries) != 0 {
		t.Fatal("collection must not run while another process holds the lock")
	}
}

func TestCollectProceedsWhenLockStoreUnavailable(t *testing.T) {
	h, _ := newTestHistory(nil)
	feed := &stubFeed{}
	locker := &stubLocker{err: storage.ErrUnavailable}
	svc := New(testConfig("Goa/North Goa"), h, nil, feed, nil, nil, locker, zerolog.Nop())

	if err := svc.Collect(context.Background(), today); err != nil {
		t.Fatal(err)
	}
	if len(feed.queries) != 1 {
		t.Fatal("unreachable lock store should not block collection")
	}
}

func TestCollectFailsWhenEveryRegionFails(t *testing.T) {
	h, _ := newTestHistory(nil)
	feed := &stubFeed{err: errors.New("timeout")}
	svc := New(testConfig("Goa/North Goa", "Punjab/Ludhiana"), h, nil, feed, nil, nil, nil, zerolog.Nop())

	if err := svc.Collect(context.Background(), today); err == nil {
		t.Fatal("expected an error when no region succeeds")
	}
}

func TestRunRequiresScheduler(t *testing.T) {
	h, _ := newTestHistory(nil)
	svc := New(testConfig("Goa/North Goa"), h, nil, nil, nil, nil, nil, zerolog.Nop())
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("run without scheduler should fail")
	}
}

func TestSeedWritesDailyHistory(t *testing.T) {
	ctx := context.Background()
	primary := newMemBackend()
	h, _ := newTestHistory(primary)
	svc := New(testConfig(), h, nil, nil, nil, nil, nil, zerolog.Nop())

	src, err := svc.Seed(ctx, SeedRequest{
		State: "Maharashtra", District: "Nashik", Commodity: "Onion",
		Days: 14, BasePrice: decimal.NewFromInt(1500), Rand: rand.New(rand.NewPCG(1, 2)),
	})
	if err != nil || src != SourcePrimary {
		t.Fatalf("seed should write to primary, got %s %v", src, err)
	}

	series, _ := h.Read(ctx, "Maharashtra", "Nashik", "Onion", 30)
	if len(series) != 14 {
		t.Fatalf("expected 14 days, got %d", len(series))
	}
	if !series[0].Date.Equal(storage.Day(today)) || !series[13].Date.Equal(storage.Day(today).Add(-13*24*time.Hour)) {
		t.Fatalf("unexpected date span %s..%s", series[13].Date, series[0].Date)
	}
	for _, o := range series {
		if !o.MinPrice.LessThan(o.ModalPrice) || !o.MaxPrice.GreaterThan(o.ModalPrice) {
			t.Fatalf("min < modal < max violated: %+v", o)
		}
	}

	if _, err := svc.Seed(ctx, SeedRequest{State: "Goa", District: "North Goa", Commodity: "Rice"}); err == nil {
		t.Fatal("zero base price should be rejected")
	}
}
