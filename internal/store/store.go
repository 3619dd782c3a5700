// Package store persists the sync state and the merged station/price model so
// a restart does not force a full re-bootstrap.
package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fuelwatch/fuelwatch/internal/models"
	"github.com/fuelwatch/fuelwatch/internal/snapshot"
)

// Store is the persistence interface for the sync engine. Implementations
// must write the model and the sync state atomically so a crash between the
// two cannot leave a cursor ahead of its data.
type Store interface {
	// LoadState returns the persisted sync state, or the zero state when
	// no pass has ever succeeded.
	LoadState(ctx context.Context) (models.SyncState, error)

	// LoadModel rebuilds the merged model from persisted rows.
	LoadModel(ctx context.Context) (*snapshot.Model, error)

	// SaveSnapshot replaces the persisted model and sync state in one
	// transaction.
	SaveSnapshot(ctx context.Context, model *snapshot.Model, state models.SyncState) error

	// Counts returns the number of persisted stations and price records.
	Counts(ctx context.Context) (stations, prices int64, err error)

	// Ping checks the backing store is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Drivers supported by New.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// New opens a store for the given driver. dsn is the file path for sqlite and
// the connection string for postgres.
func New(ctx context.Context, driver, dsn string, logger zerolog.Logger) (Store, error) {
	switch driver {
	case DriverSQLite:
		return NewSQLite(ctx, dsn, logger)
	case DriverPostgres:
		return NewPostgres(ctx, dsn, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
