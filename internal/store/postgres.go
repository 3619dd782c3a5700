package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"github.com/fuelwatch/fuelwatch/internal/models"
	"github.com/fuelwatch/fuelwatch/internal/snapshot"
)

// Postgres is the PostgreSQL store backend for deployments that already run a
// database server.
type Postgres struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewPostgres opens a connection to the given DSN and ensures the schema
// exists.
func NewPostgres(ctx context.Context, dsn string, logger zerolog.Logger) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	p := &Postgres{
		db:     db,
		logger: logger.With().Str("component", "store").Str("driver", DriverPostgres).Logger(),
	}
	if err := p.createTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS stations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		brand TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		postcode TEXT NOT NULL DEFAULT '',
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		closed BOOLEAN NOT NULL DEFAULT FALSE
	);
	CREATE TABLE IF NOT EXISTS prices (
		station_id TEXT NOT NULL,
		fuel_type TEXT NOT NULL,
		price_tenths INTEGER NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (station_id, fuel_type)
	);
	CREATE INDEX IF NOT EXISTS idx_prices_fuel_type ON prices(fuel_type);
	CREATE TABLE IF NOT EXISTS sync_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		cursor_at TIMESTAMPTZ,
		last_sync_at TIMESTAMPTZ,
		bootstrapped BOOLEAN NOT NULL DEFAULT FALSE
	);
	`
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}
	return nil
}

// LoadState returns the persisted sync state.
func (p *Postgres) LoadState(ctx context.Context) (models.SyncState, error) {
	var state models.SyncState
	var cursor, lastSync sql.NullTime

	err := p.db.QueryRowContext(ctx,
		"SELECT cursor_at, last_sync_at, bootstrapped FROM sync_state WHERE id = 1",
	).Scan(&cursor, &lastSync, &state.Bootstrapped)
	if err == sql.ErrNoRows {
		return models.SyncState{}, nil
	}
	if err != nil {
		return state, fmt.Errorf("loading sync state: %w", err)
	}

	if cursor.Valid {
		state.Cursor = cursor.Time.UTC()
	}
	if lastSync.Valid {
		state.LastSync = lastSync.Time.UTC()
	}
	return state, nil
}

// LoadModel rebuilds the merged model from persisted rows.
func (p *Postgres) LoadModel(ctx context.Context) (*snapshot.Model, error) {
	model := snapshot.NewModel()

	rows, err := p.db.QueryContext(ctx,
		"SELECT id, name, brand, address, postcode, latitude, longitude, closed FROM stations",
	)
	if err != nil {
		return nil, fmt.Errorf("querying stations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var st models.Station
		if err := rows.Scan(&st.ID, &st.Name, &st.Brand, &st.Address, &st.Postcode, &st.Latitude, &st.Longitude, &st.Closed); err != nil {
			return nil, fmt.Errorf("scanning station: %w", err)
		}
		model.Stations[st.ID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stations: %w", err)
	}

	priceRows, err := p.db.QueryContext(ctx,
		"SELECT station_id, fuel_type, price_tenths, recorded_at FROM prices",
	)
	if err != nil {
		return nil, fmt.Errorf("querying prices: %w", err)
	}
	defer priceRows.Close()

	for priceRows.Next() {
		var record models.PriceRecord
		var fuel string
		var tenths int
		var recordedAt time.Time
		if err := priceRows.Scan(&record.StationID, &fuel, &tenths, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning price: %w", err)
		}
		record.FuelType = models.FuelType(fuel)
		record.Price = models.Price(tenths)
		record.RecordedAt = recordedAt.UTC()

		byFuel := model.Prices[record.StationID]
		if byFuel == nil {
			byFuel = make(map[models.FuelType]models.PriceRecord)
			model.Prices[record.StationID] = byFuel
		}
		byFuel[record.FuelType] = record
	}
	if err := priceRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating prices: %w", err)
	}

	return model, nil
}

// SaveSnapshot replaces the persisted model and sync state in one
// transaction.
func (p *Postgres) SaveSnapshot(ctx context.Context, model *snapshot.Model, state models.SyncState) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			p.logger.Error().Err(err).Msg("rollback failed")
		}
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM prices"); err != nil {
		return fmt.Errorf("clearing prices: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM stations"); err != nil {
		return fmt.Errorf("clearing stations: %w", err)
	}

	stationStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO stations (id, name, brand, address, postcode, latitude, longitude, closed) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
	)
	if err != nil {
		return fmt.Errorf("preparing station insert: %w", err)
	}
	defer stationStmt.Close()

	for _, st := range model.Stations {
		if _, err := stationStmt.ExecContext(ctx, st.ID, st.Name, st.Brand, st.Address, st.Postcode, st.Latitude, st.Longitude, st.Closed); err != nil {
			return fmt.Errorf("inserting station %s: %w", st.ID, err)
		}
	}

	priceStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO prices (station_id, fuel_type, price_tenths, recorded_at) VALUES ($1, $2, $3, $4)",
	)
	if err != nil {
		return fmt.Errorf("preparing price insert: %w", err)
	}
	defer priceStmt.Close()

	for _, byFuel := range model.Prices {
		for _, record := range byFuel {
			if _, err := priceStmt.ExecContext(ctx, record.StationID, string(record.FuelType), int(record.Price), record.RecordedAt.UTC()); err != nil {
				return fmt.Errorf("inserting price for station %s: %w", record.StationID, err)
			}
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_state (id, cursor_at, last_sync_at, bootstrapped) VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			cursor_at = EXCLUDED.cursor_at,
			last_sync_at = EXCLUDED.last_sync_at,
			bootstrapped = EXCLUDED.bootstrapped
	`, nullableTime(state.Cursor), nullableTime(state.LastSync), state.Bootstrapped)
	if err != nil {
		return fmt.Errorf("saving sync state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}

	p.logger.Debug().
		Int("stations", len(model.Stations)).
		Int("prices", model.PriceCount()).
		Time("cursor", state.Cursor).
		Msg("persisted snapshot")
	return nil
}

// Counts returns the number of persisted stations and price records.
func (p *Postgres) Counts(ctx context.Context) (int64, int64, error) {
	var stations, prices int64
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM stations").Scan(&stations); err != nil {
		return 0, 0, fmt.Errorf("counting stations: %w", err)
	}
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM prices").Scan(&prices); err != nil {
		return 0, 0, fmt.Errorf("counting prices: %w", err)
	}
	return stations, prices, nil
}

// Ping checks the database connection is alive.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection.
func (p *Postgres) Close() error {
	return p.db.Close()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}
