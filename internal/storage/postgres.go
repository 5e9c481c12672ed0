package storage

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"mandi-advisor/internal/config"
)

//go:embed sql/*.sql
var schemaFS embed.FS

const (
	upsertObservationSQL = `INSERT INTO price_history (
        series_key,
        state,
        district,
        commodity,
        date,
        min_price,
        max_price,
        modal_price
    ) VALUES (
        $1,$2,$3,$4,$5,$6::numeric,$7::numeric,$8::numeric
    )
    ON CONFLICT (series_key, date) DO UPDATE
    SET
        state       = EXCLUDED.state,
        district    = EXCLUDED.district,
        commodity   = EXCLUDED.commodity,
        min_price   = EXCLUDED.min_price,
        max_price   = EXCLUDED.max_price,
        modal_price = EXCLUDED.modal_price,
        updated_at  = NOW();`

	listRecentObservationsSQL = `SELECT
        state,
        district,
        commodity,
        date,
        min_price::text,
        max_price::text,
        modal_price::text
    FROM price_history
    WHERE series_key = $1
    ORDER BY date DESC
    LIMIT $2;`

	insertUserCheckSQL = `INSERT INTO user_commodity_history (
        commodity,
        commodity_hi,
        state,
        district,
        market,
        modal_price,
        min_price,
        max_price
    ) VALUES (
        $1,$2,$3,$4,$5,$6::numeric,$7::numeric,$8::numeric
    );`

	listRecentUserChecksSQL = `SELECT
        checked_at,
        commodity,
        COALESCE(commodity_hi, ''),
        state,
        district,
        market,
        min_price::text,
        max_price::text,
        modal_price::text
    FROM user_commodity_history
    ORDER BY checked_at DESC
    LIMIT $1;`

	commodityStatsSQL = `SELECT commodity, COUNT(*)
    FROM (
        SELECT commodity
        FROM user_commodity_history
        ORDER BY checked_at DESC
        LIMIT $1
    ) recent
    GROUP BY commodity;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Postgres is the structured store. The pool is created on first use and
// shared by every key for the life of the process; Close releases it.
type Postgres struct {
	cfg    config.DatabaseConfig
	logger zerolog.Logger

	poolMux sync.Mutex
	pool    *pgxpool.Pool
}

// NewPostgres builds the adapter without touching the network.
func NewPostgres(cfg config.DatabaseConfig, logger zerolog.Logger) *Postgres {
	return &Postgres{cfg: cfg, logger: logger.With().Str("component", "postgres_store").Logger()}
}

// Configured reports whether a DSN was supplied.
func (p *Postgres) Configured() bool {
	return p != nil && p.cfg.DSN != ""
}

// Close releases the underlying pool resources.
func (p *Postgres) Close() {
	if p == nil {
		return
	}
	p.poolMux.Lock()
	defer p.poolMux.Unlock()
	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, ErrNotConfigured
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}
	if cfg.AcquireTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// getPool memoizes a successfully created pool. Failures are not cached so
// the next call probes again.
func (p *Postgres) getPool(ctx context.Context) (*pgxpool.Pool, error) {
	if p == nil {
		return nil, ErrNotConfigured
	}
	p.poolMux.Lock()
	defer p.poolMux.Unlock()

	if p.pool != nil {
		return p.pool, nil
	}
	pool, err := NewPool(ctx, p.cfg)
	if err != nil {
		return nil, err
	}
	p.pool = pool
	return pool, nil
}

// opContext bounds a single operation, pool acquisition included.
func (p *Postgres) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := p.cfg.AcquireTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (p *Postgres) unavailable(op string, err error) error {
	p.logger.Warn().Err(err).Str("op", op).Msg("structured store unavailable")
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (p *Postgres) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	ctx, cancel := p.opContext(ctx)
	defer cancel()

	pool, err := p.getPool(ctx)
	if err != nil {
		return nil, false, p.unavailable("advisory lock", err)
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, p.unavailable("advisory lock", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, p.unavailable("advisory lock", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			p.logger.Warn().Err(err).Int64("lock_key", key).Msg("advisory unlock failed")
		}
		conn.Release()
	}
	return unlock, true, nil
}

// EnsureSchema applies the embedded schema. Every statement is idempotent;
// the advisory lock keeps concurrent processes from racing on catalog rows.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.opContext(ctx)
	defer cancel()

	pool, err := p.getPool(ctx)
	if err != nil {
		return p.unavailable("ensure schema", err)
	}

	if p.cfg.BootstrapLock != 0 {
		unlock, acquired, err := p.TryAdvisoryLock(ctx, p.cfg.BootstrapLock)
		if err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		if !acquired {
			p.logger.Info().Msg("schema bootstrap running elsewhere; skipping")
			return nil
		}
		defer unlock()
	}

	entries, err := schemaFS.ReadDir("sql")
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := schemaFS.ReadFile("sql/" + name)
		if err != nil {
			return fmt.Errorf("read schema %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(body)); err != nil {
			return p.unavailable("apply "+name, err)
		}
	}

	p.logger.Info().Int("files", len(names)).Msg("schema ready")
	return nil
}

// UpsertObservation inserts the day's prices or replaces them if the day exists.
func (p *Postgres) UpsertObservation(ctx context.Context, obs PriceObservation) error {
	return p.upsert(ctx, obs.Key(), obs)
}

// ImportSeries writes a whole series under an explicit key, e.g. when
// migrating documents whose raw region names are unknown.
func (p *Postgres) ImportSeries(ctx context.Context, key Key, series TimeSeries) (int, error) {
	written := 0
	for _, obs := range series {
		if err := p.upsert(ctx, key, obs); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func (p *Postgres) upsert(ctx context.Context, key Key, obs PriceObservation) error {
	ctx, cancel := p.opContext(ctx)
	defer cancel()

	pool, err := p.getPool(ctx)
	if err != nil {
		return p.unavailable("upsert observation", err)
	}

	_, execErr := pool.Exec(ctx, upsertObservationSQL,
		key.String(),
		obs.State,
		obs.District,
		obs.Commodity,
		Day(obs.Date),
		obs.MinPrice.String(),
		obs.MaxPrice.String(),
		obs.ModalPrice.String(),
	)
	if execErr != nil {
		return p.unavailable("upsert observation", execErr)
	}
	return nil
}

// RecentObservations lists up to limit observations for key, newest first.
// An empty series with a nil error means no history yet.
func (p *Postgres) RecentObservations(ctx context.Context, key Key, limit int) (TimeSeries, error) {
	ctx, cancel := p.opContext(ctx)
	defer cancel()

	pool, err := p.getPool(ctx)
	if err != nil {
		return nil, p.unavailable("list observations", err)
	}

	rows, queryErr := pool.Query(ctx, listRecentObservationsSQL, key.String(), limit)
	if queryErr != nil {
		return nil, p.unavailable("list observations", queryErr)
	}
	defer rows.Close()

	series := make(TimeSeries, 0, capHint(limit))
	for rows.Next() {
		obs, scanErr := scanObservation(rows)
		if scanErr != nil {
			return nil, p.unavailable("scan observation", scanErr)
		}
		series = append(series, obs)
	}
	if rows.Err() != nil {
		return nil, p.unavailable("list observations", rows.Err())
	}
	return series, nil
}

// AppendUserCheck logs a check; the server assigns the timestamp.
func (p *Postgres) AppendUserCheck(ctx context.Context, check UserCheck) error {
	ctx, cancel := p.opContext(ctx)
	defer cancel()

	pool, err := p.getPool(ctx)
	if err != nil {
		return p.unavailable("append user check", err)
	}

	var commodityHi interface{}
	if check.CommodityHi != "" {
		commodityHi = check.CommodityHi
	}

	_, execErr := pool.Exec(ctx, insertUserCheckSQL,
		check.Commodity,
		commodityHi,
		check.State,
		check.District,
		check.Market,
		check.ModalPrice.String(),
		check.MinPrice.String(),
		check.MaxPrice.String(),
	)
	if execErr != nil {
		return p.unavailable("append user check", execErr)
	}
	return nil
}

// RecentUserChecks lists the newest checks.
func (p *Postgres) RecentUserChecks(ctx context.Context, limit int) ([]UserCheck, error) {
	ctx, cancel := p.opContext(ctx)
	defer cancel()

	pool, err := p.getPool(ctx)
	if err != nil {
		return nil, p.unavailable("list user checks", err)
	}

	rows, queryErr := pool.Query(ctx, listRecentUserChecksSQL, limit)
	if queryErr != nil {
		return nil, p.unavailable("list user checks", queryErr)
	}
	defer rows.Close()

	checks := make([]UserCheck, 0, capHint(limit))
	for rows.Next() {
		var (
			check                  UserCheck
			minStr, maxStr, modStr string
		)
		if err := rows.Scan(
			&check.CheckedAt,
			&check.Commodity,
			&check.CommodityHi,
			&check.State,
			&check.District,
			&check.Market,
			&minStr,
			&maxStr,
			&modStr,
		); err != nil {
			return nil, p.unavailable("scan user check", err)
		}
		if check.MinPrice, check.MaxPrice, check.ModalPrice, err = parsePrices(minStr, maxStr, modStr); err != nil {
			return nil, p.unavailable("scan user check", err)
		}
		checks = append(checks, check)
	}
	if rows.Err() != nil {
		return nil, p.unavailable("list user checks", rows.Err())
	}
	return checks, nil
}

// CommodityStats ranks commodities across the newest window checks.
func (p *Postgres) CommodityStats(ctx context.Context, window int) ([]CommodityCount, error) {
	ctx, cancel := p.opContext(ctx)
	defer cancel()

	pool, err := p.getPool(ctx)
	if err != nil {
		return nil, p.unavailable("commodity stats", err)
	}

	rows, queryErr := pool.Query(ctx, commodityStatsSQL, window)
	if queryErr != nil {
		return nil, p.unavailable("commodity stats", queryErr)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			commodity string
			count     int64
		)
		if err := rows.Scan(&commodity, &count); err != nil {
			return nil, p.unavailable("scan commodity stats", err)
		}
		counts[commodity] = int(count)
	}
	if rows.Err() != nil {
		return nil, p.unavailable("commodity stats", rows.Err())
	}
	return rankCommodities(counts), nil
}

func scanObservation(rows pgx.Rows) (PriceObservation, error) {
	var (
		obs                    PriceObservation
		minStr, maxStr, modStr string
	)
	if err := rows.Scan(
		&obs.State,
		&obs.District,
		&obs.Commodity,
		&obs.Date,
		&minStr,
		&maxStr,
		&modStr,
	); err != nil {
		return PriceObservation{}, err
	}

	var err error
	obs.MinPrice, obs.MaxPrice, obs.ModalPrice, err = parsePrices(minStr, maxStr, modStr)
	if err != nil {
		return PriceObservation{}, err
	}
	obs.Date = Day(obs.Date)
	return obs, nil
}

func parsePrices(minStr, maxStr, modStr string) (decimal.Decimal, decimal.Decimal, decimal.Decimal, error) {
	minPrice, err := decimal.NewFromString(minStr)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("parse min price: %w", err)
	}
	maxPrice, err := decimal.NewFromString(maxStr)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("parse max price: %w", err)
	}
	modalPrice, err := decimal.NewFromString(modStr)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("parse modal price: %w", err)
	}
	return minPrice, maxPrice, modalPrice, nil
}

var _ Backend = (*Postgres)(nil)
