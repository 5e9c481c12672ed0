package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
)

const (
	historyDir      = "price-history"
	userChecksFile  = "user-commodity-history.json"
	documentSuffix  = ".json"
	defaultHistCap  = 90
	defaultCheckCap = 500
)

// FilesOptions tune the document store.
type FilesOptions struct {
	HistoryCap int
	ChecksCap  int
}

// Files is the local document store used when Postgres cannot be reached.
// Each series key owns one JSON document holding its capped history.
// Read-modify-write cycles are not locked across processes; the last rename
// wins.
type Files struct {
	fs         afero.Fs
	historyCap int
	checksCap  int
	logger     zerolog.Logger
	now        func() time.Time
}

// NewFiles wires an afero filesystem into a document store.
func NewFiles(fsys afero.Fs, opts FilesOptions, logger zerolog.Logger) *Files {
	if opts.HistoryCap <= 0 {
		opts.HistoryCap = defaultHistCap
	}
	if opts.ChecksCap <= 0 {
		opts.ChecksCap = defaultCheckCap
	}
	return &Files{
		fs:         fsys,
		historyCap: opts.HistoryCap,
		checksCap:  opts.ChecksCap,
		logger:     logger.With().Str("component", "document_store").Logger(),
		now:        time.Now,
	}
}

// NewOSFiles roots a document store at dir on the local disk.
func NewOSFiles(dir string, opts FilesOptions, logger zerolog.Logger) *Files {
	return NewFiles(afero.NewBasePathFs(afero.NewOsFs(), dir), opts, logger)
}

// document is the on-disk shape of one history entry.
type document struct {
	Date       string          `json:"date"`
	MinPrice   decimal.Decimal `json:"min_price"`
	MaxPrice   decimal.Decimal `json:"max_price"`
	ModalPrice decimal.Decimal `json:"modal_price"`
	State      string          `json:"state,omitempty"`
	District   string          `json:"district,omitempty"`
	Commodity  string          `json:"commodity,omitempty"`
}

func seriesPath(key Key) string {
	return path.Join(historyDir, key.String()+documentSuffix)
}

// UpsertObservation replaces or appends the observation's day, keeps the
// newest HistoryCap days and rewrites the document. Failures are logged and
// swallowed.
func (f *Files) UpsertObservation(ctx context.Context, obs PriceObservation) error {
	key := obs.Key()
	series := f.load(key)

	obs.Date = Day(obs.Date)
	replaced := false
	for i := range series {
		if series[i].Date.Equal(obs.Date) {
			series[i] = obs
			replaced = true
			break
		}
	}
	if !replaced {
		series = append(series, obs)
	}

	series.SortNewestFirst()
	series = series.Window(f.historyCap)

	docs := make([]document, len(series))
	for i, o := range series {
		docs[i] = document{
			Date:       o.Date.Format(DateLayout),
			MinPrice:   o.MinPrice,
			MaxPrice:   o.MaxPrice,
			ModalPrice: o.ModalPrice,
			State:      o.State,
			District:   o.District,
			Commodity:  o.Commodity,
		}
	}

	if err := f.writeJSON(seriesPath(key), docs); err != nil {
		f.logger.Warn().Err(err).Str("key", key.String()).Msg("unable to save price history")
	}
	return nil
}

// RecentObservations returns up to limit newest observations. Missing or
// corrupt documents read as empty history.
func (f *Files) RecentObservations(ctx context.Context, key Key, limit int) (TimeSeries, error) {
	series := f.load(key)
	series.SortNewestFirst()
	return series.Window(limit), nil
}

// Keys lists every series key with a document.
func (f *Files) Keys() ([]Key, error) {
	entries, err := afero.ReadDir(f.fs, historyDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list history documents: %w", err)
	}
	keys := make([]Key, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, documentSuffix) {
			continue
		}
		keys = append(keys, Key(strings.TrimSuffix(name, documentSuffix)))
	}
	return keys, nil
}

func (f *Files) load(key Key) TimeSeries {
	var docs []document
	if !f.readJSON(seriesPath(key), &docs) {
		return TimeSeries{}
	}

	series := make(TimeSeries, 0, len(docs))
	for _, d := range docs {
		date, err := time.Parse(DateLayout, d.Date)
		if err != nil {
			f.logger.Debug().Str("key", key.String()).Str("date", d.Date).Msg("skipping entry with bad date")
			continue
		}
		series = append(series, PriceObservation{
			State:      d.State,
			District:   d.District,
			Commodity:  d.Commodity,
			Date:       date,
			MinPrice:   d.MinPrice,
			MaxPrice:   d.MaxPrice,
			ModalPrice: d.ModalPrice,
		})
	}
	return series
}

// AppendUserCheck prepends the check and keeps the newest ChecksCap entries.
func (f *Files) AppendUserCheck(ctx context.Context, check UserCheck) error {
	checks := f.loadChecks()
	if check.CheckedAt.IsZero() {
		check.CheckedAt = f.now().UTC()
	}

	checks = append([]UserCheck{check}, checks...)
	if len(checks) > f.checksCap {
		checks = checks[:f.checksCap]
	}

	if err := f.writeJSON(userChecksFile, checks); err != nil {
		f.logger.Warn().Err(err).Msg("unable to save user history")
	}
	return nil
}

// RecentUserChecks returns up to limit newest checks.
func (f *Files) RecentUserChecks(ctx context.Context, limit int) ([]UserCheck, error) {
	checks := f.loadChecks()
	if limit > 0 && len(checks) > limit {
		checks = checks[:limit]
	}
	return checks, nil
}

// CommodityStats ranks commodities across the newest window checks.
func (f *Files) CommodityStats(ctx context.Context, window int) ([]CommodityCount, error) {
	checks, _ := f.RecentUserChecks(ctx, window)
	counts := make(map[string]int)
	for _, c := range checks {
		counts[c.Commodity]++
	}
	return rankCommodities(counts), nil
}

func (f *Files) loadChecks() []UserCheck {
	var checks []UserCheck
	if !f.readJSON(userChecksFile, &checks) {
		return []UserCheck{}
	}
	return checks
}

func (f *Files) readJSON(name string, dst any) bool {
	raw, err := afero.ReadFile(f.fs, name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			f.logger.Warn().Err(err).Str("file", name).Msg("unable to read document")
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		f.logger.Warn().Err(err).Str("file", name).Msg("corrupt document treated as empty")
		return false
	}
	return true
}

// writeJSON stages the payload in a temp file and renames it into place so
// readers never observe a partial document.
func (f *Files) writeJSON(name string, payload any) error {
	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	dir := path.Dir(name)
	if err := f.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(f.fs, dir, "."+path.Base(name)+".*")
	if err != nil {
		return fmt.Errorf("stage %s: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		_ = f.fs.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = f.fs.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := f.fs.Rename(tmpName, name); err != nil {
		_ = f.fs.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

var _ Backend = (*Files)(nil)
