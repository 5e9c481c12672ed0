package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"mandi-advisor/internal/alerting"
	"mandi-advisor/internal/fetcher"
	"mandi-advisor/internal/storage"
)

var today = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

// memBackend is an in-memory primary whose availability can be toggled.
type memBackend struct {
	mu          sync.Mutex
	down        bool
	series      map[storage.Key]storage.TimeSeries
	checks      []storage.UserCheck
	writes      int
	limits      []int
	checkLimits []int
}

func newMemBackend() *memBackend {
	return &memBackend{series: map[storage.Key]storage.TimeSeries{}}
}

func (m *memBackend) setDown(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = down
}

func (m *memBackend) unavailable() error {
	if m.down {
		return storage.ErrUnavailable
	}
	return nil
}

func (m *memBackend) UpsertObservation(_ context.Context, obs storage.PriceObservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.unavailable(); err != nil {
		return err
	}
	m.writes++
	key := obs.Key()
	for i, existing := range m.series[key] {
		if existing.Date.Equal(obs.Date) {
			m.series[key][i] = obs
			return nil
		}
	}
	m.series[key] = append(m.series[key], obs)
	return nil
}

// RecentObservations deliberately answers oldest first.
func (m *memBackend) RecentObservations(_ context.Context, key storage.Key, limit int) (storage.TimeSeries, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.unavailable(); err != nil {
		return nil, err
	}
	m.limits = append(m.limits, limit)
	out := append(storage.TimeSeries{}, m.series[key]...)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memBackend) AppendUserCheck(_ context.Context, check storage.UserCheck) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.unavailable(); err != nil {
		return err
	}
	m.checks = append([]storage.UserCheck{check}, m.checks...)
	return nil
}

func (m *memBackend) RecentUserChecks(_ context.Context, limit int) ([]storage.UserCheck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.unavailable(); err != nil {
		return nil, err
	}
	m.checkLimits = append(m.checkLimits, limit)
	if len(m.checks) > limit {
		return m.checks[:limit], nil
	}
	return m.checks, nil
}

func (m *memBackend) CommodityStats(_ context.Context, window int) ([]storage.CommodityCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.unavailable(); err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for i, c := range m.checks {
		if i >= window {
			break
		}
		counts[c.Commodity]++
	}
	out := make([]storage.CommodityCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, storage.CommodityCount{Commodity: name, Count: n})
	}
	return out, nil
}

func newFallback() *storage.Files {
	return storage.NewFiles(afero.NewMemMapFs(), storage.FilesOptions{}, zerolog.Nop())
}

func newTestHistory(primary storage.Backend) (*History, *storage.Files) {
	fallback := newFallback()
	h := NewHistory(primary, fallback, 0, zerolog.Nop())
	h.now = func() time.Time { return today }
	return h, fallback
}

func obs(daysAgo int, modal int64) storage.PriceObservation {
	price := decimal.NewFromInt(modal)
	return storage.PriceObservation{
		State:      "Maharashtra",
		District:   "Nashik",
		Commodity:  "Onion",
		Date:       storage.Day(today).AddDate(0, 0, -daysAgo),
		MinPrice:   price,
		MaxPrice:   price,
		ModalPrice: price,
	}
}

type stubFeed struct {
	result  fetcher.Result
	err     error
	queries []fetcher.Query
}

func (f *stubFeed) FetchPrices(_ context.Context, q fetcher.Query) (fetcher.Result, error) {
	f.queries = append(f.queries, q)
	return f.result, f.err
}

type recordingNotifier struct {
	notes []alerting.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note alerting.Notification) error {
	n.notes = append(n.notes, note)
	return nil
}

type stubLocker struct {
	acquired bool
	err      error
	released int
}

func (l *stubLocker) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	if l.err != nil || !l.acquired {
		return nil, false, l.err
	}
	return func() { l.released++ }, true, nil
}
