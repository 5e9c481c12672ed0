package storage

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable signals that a backend could not serve the call and the
	// caller should fall back. It is distinct from an empty result.
	ErrUnavailable = errors.New("storage: backend unavailable")
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

// HistoryStore persists daily price observations per series key.
type HistoryStore interface {
	UpsertObservation(ctx context.Context, obs PriceObservation) error
	RecentObservations(ctx context.Context, key Key, limit int) (TimeSeries, error)
}

// CheckStore persists the user check log.
type CheckStore interface {
	AppendUserCheck(ctx context.Context, check UserCheck) error
	RecentUserChecks(ctx context.Context, limit int) ([]UserCheck, error)
	CommodityStats(ctx context.Context, window int) ([]CommodityCount, error)
}

// Backend is one interchangeable persistence variant.
type Backend interface {
	HistoryStore
	CheckStore
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error)
}
