package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/rs/zerolog"

	"github.com/fuelwatch/fuelwatch/internal/models"
	"github.com/fuelwatch/fuelwatch/internal/snapshot"
)

// SQLite is the default embedded store backend.
type SQLite struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLite opens (and if necessary creates) the sqlite database at path.
func NewSQLite(ctx context.Context, path string, logger zerolog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 10000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring database: %w", err)
		}
	}

	s := &SQLite{
		db:     db,
		logger: logger.With().Str("component", "store").Str("driver", DriverSQLite).Logger(),
	}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS stations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		brand TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		postcode TEXT NOT NULL DEFAULT '',
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		closed INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS prices (
		station_id TEXT NOT NULL,
		fuel_type TEXT NOT NULL,
		price_tenths INTEGER NOT NULL,
		recorded_at TEXT NOT NULL,
		PRIMARY KEY (station_id, fuel_type)
	);
	CREATE INDEX IF NOT EXISTS idx_prices_fuel_type ON prices(fuel_type);
	CREATE TABLE IF NOT EXISTS sync_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		cursor_at TEXT NOT NULL DEFAULT '',
		last_sync_at TEXT NOT NULL DEFAULT '',
		bootstrapped INTEGER NOT NULL DEFAULT 0
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}
	return nil
}

// LoadState returns the persisted sync state.
func (s *SQLite) LoadState(ctx context.Context) (models.SyncState, error) {
	var state models.SyncState
	var cursor, lastSync string
	var bootstrapped int

	err := s.db.QueryRowContext(ctx,
		"SELECT cursor_at, last_sync_at, bootstrapped FROM sync_state WHERE id = 1",
	).Scan(&cursor, &lastSync, &bootstrapped)
	if err == sql.ErrNoRows {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("loading sync state: %w", err)
	}

	state.Cursor, err = parseStoredTime(cursor)
	if err != nil {
		return state, fmt.Errorf("parsing cursor: %w", err)
	}
	state.LastSync, err = parseStoredTime(lastSync)
	if err != nil {
		return state, fmt.Errorf("parsing last sync time: %w", err)
	}
	state.Bootstrapped = bootstrapped != 0
	return state, nil
}

// LoadModel rebuilds the merged model from persisted rows.
func (s *SQLite) LoadModel(ctx context.Context) (*snapshot.Model, error) {
	model := snapshot.NewModel()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, brand, address, postcode, latitude, longitude, closed FROM stations",
	)
	if err != nil {
		return nil, fmt.Errorf("querying stations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var st models.Station
		var closed int
		if err := rows.Scan(&st.ID, &st.Name, &st.Brand, &st.Address, &st.Postcode, &st.Latitude, &st.Longitude, &closed); err != nil {
			return nil, fmt.Errorf("scanning station: %w", err)
		}
		st.Closed = closed != 0
		model.Stations[st.ID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stations: %w", err)
	}

	priceRows, err := s.db.QueryContext(ctx,
		"SELECT station_id, fuel_type, price_tenths, recorded_at FROM prices",
	)
	if err != nil {
		return nil, fmt.Errorf("querying prices: %w", err)
	}
	defer priceRows.Close()

	for priceRows.Next() {
		var record models.PriceRecord
		var fuel, recordedAt string
		var tenths int
		if err := priceRows.Scan(&record.StationID, &fuel, &tenths, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning price: %w", err)
		}
		record.FuelType = models.FuelType(fuel)
		record.Price = models.Price(tenths)
		record.RecordedAt, err = parseStoredTime(recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing price timestamp: %w", err)
		}

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
func (s *SQLite) SaveSnapshot(ctx context.Context, model *snapshot.Model, state models.SyncState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			s.logger.Error().Err(err).Msg("rollback failed")
		}
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM prices"); err != nil {
		return fmt.Errorf("clearing prices: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM stations"); err != nil {
		return fmt.Errorf("clearing stations: %w", err)
	}

	stationStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO stations (id, name, brand, address, postcode, latitude, longitude, closed) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("preparing station insert: %w", err)
	}
	defer stationStmt.Close()

	for _, st := range model.Stations {
		closed := 0
		if st.Closed {
			closed = 1
		}
		if _, err := stationStmt.ExecContext(ctx, st.ID, st.Name, st.Brand, st.Address, st.Postcode, st.Latitude, st.Longitude, closed); err != nil {
			return fmt.Errorf("inserting station %s: %w", st.ID, err)
		}
	}

	priceStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO prices (station_id, fuel_type, price_tenths, recorded_at) VALUES (?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("preparing price insert: %w", err)
	}
	defer priceStmt.Close()

	for _, byFuel := range model.Prices {
		for _, record := range byFuel {
			if _, err := priceStmt.ExecContext(ctx, record.StationID, string(record.FuelType), int(record.Price), formatStoredTime(record.RecordedAt)); err != nil {
				return fmt.Errorf("inserting price for station %s: %w", record.StationID, err)
			}
		}
	}

	bootstrapped := 0
	if state.Bootstrapped {
		bootstrapped = 1
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_state (id, cursor_at, last_sync_at, bootstrapped) VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			cursor_at = excluded.cursor_at,
			last_sync_at = excluded.last_sync_at,
			bootstrapped = excluded.bootstrapped
	`, formatStoredTime(state.Cursor), formatStoredTime(state.LastSync), bootstrapped)
	if err != nil {
		return fmt.Errorf("saving sync state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}

	s.logger.Debug().
		Int("stations", len(model.Stations)).
		Int("prices", model.PriceCount()).
		Time("cursor", state.Cursor).
		Msg("persisted snapshot")
	return nil
}

// Counts returns the number of persisted stations and price records.
func (s *SQLite) Counts(ctx context.Context) (int64, int64, error) {
	var stations, prices int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM stations").Scan(&stations); err != nil {
		return 0, 0, fmt.Errorf("counting stations: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM prices").Scan(&prices); err != nil {
		return 0, 0, fmt.Errorf("counting prices: %w", err)
	}
	return stations, prices, nil
}

// Ping checks the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// parseStoredTime parses an RFC 3339 timestamp column, treating the empty
// string as the zero time.
func parseStoredTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func formatStoredTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
