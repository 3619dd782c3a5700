// Package poller drives the periodic sync passes: fetch, merge, persist,
// re-rank, publish. One poller owns the sync state and the merged model; all
// passes run strictly sequentially.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fuelwatch/fuelwatch/internal/api/fuelfinder"
	"github.com/fuelwatch/fuelwatch/internal/models"
	"github.com/fuelwatch/fuelwatch/internal/ranking"
	"github.com/fuelwatch/fuelwatch/internal/snapshot"
	"github.com/fuelwatch/fuelwatch/internal/store"
)

const (
	// DefaultPollInterval is the steady-state cadence between incremental
	// fetches.
	DefaultPollInterval = 2 * time.Hour
	// DefaultBootstrapRetryInterval is the fast retry cadence used until
	// the first full fetch has succeeded.
	DefaultBootstrapRetryInterval = 5 * time.Minute
)

// API is the upstream surface the poller needs.
type API interface {
	FetchStations(ctx context.Context, since *time.Time) ([]models.Station, error)
	FetchPrices(ctx context.Context, since *time.Time) ([]models.PriceUpdate, error)
}

// DistanceFunc resolves driving distances from origin to each destination.
// A nil result entry means unavailable.
type DistanceFunc func(ctx context.Context, origin models.Coordinate, destinations []models.Coordinate) []*float64

// Metrics receives pass-level observations. Implemented by the HTTP server's
// Prometheus metrics.
type Metrics interface {
	RecordPass(success bool, duration time.Duration)
	RecordBatchFailures(count int)
	RecordLastSync(ts time.Time)
	RecordModelSize(stations, prices int)
	RecordCheapest(fuel string, pencePerLitre float64)
}

// Config holds the ranking inputs and scheduling cadences.
type Config struct {
	Origin      models.Coordinate
	RadiusMiles float64
	FuelTypes   []models.FuelType
	TopN        int

	PollInterval           time.Duration
	BootstrapRetryInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.TopN <= 0 {
		c.TopN = ranking.DefaultTopN
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.BootstrapRetryInterval <= 0 {
		c.BootstrapRetryInterval = DefaultBootstrapRetryInterval
	}
}

// Status is a point-in-time view of the poller for the status endpoint.
type Status struct {
	Running      bool       `json:"running"`
	Bootstrapped bool       `json:"bootstrapped"`
	Degraded     bool       `json:"degraded"`
	Cursor       *time.Time `json:"cursor,omitempty"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
	NextTickAt   *time.Time `json:"next_tick_at,omitempty"`
	LastError    *string    `json:"last_error,omitempty"`
}

// Poller owns the sync state and merged model. The host's scheduler is the
// Start loop; Tick is the single entry point for one pass and can also be
// invoked directly for a one-shot sync.
type Poller struct {
	api      API
	store    store.Store
	holder   *snapshot.Holder
	cfg      Config
	logger   zerolog.Logger
	metrics  Metrics
	distance DistanceFunc

	// model and state are touched only by the single active pass.
	model *snapshot.Model
	state models.SyncState

	mu         sync.RWMutex
	running    bool
	degraded   bool
	nextTickAt time.Time
	lastError  error
}

// New creates a poller. The holder receives published snapshots; the store
// persists them.
func New(api API, st store.Store, holder *snapshot.Holder, cfg Config, logger zerolog.Logger) *Poller {
	cfg.applyDefaults()
	return &Poller{
		api:    api,
		store:  st,
		holder: holder,
		cfg:    cfg,
		logger: logger.With().Str("component", "poller").Logger(),
		model:  snapshot.NewModel(),
	}
}

// SetMetrics wires pass-level metrics recording.
func (p *Poller) SetMetrics(m Metrics) {
	p.metrics = m
}

// SetDistanceFunc wires the optional driving-distance enrichment.
func (p *Poller) SetDistanceFunc(f DistanceFunc) {
	p.distance = f
}

// Restore loads the persisted sync state and model. When a bootstrap had
// completed before the restart, rankings are published immediately so the
// service serves data without waiting for the first pass.
func (p *Poller) Restore(ctx context.Context) error {
	state, err := p.store.LoadState(ctx)
	if err != nil {
		return err
	}
	model, err := p.store.LoadModel(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
	p.model = model

	if state.Bootstrapped {
		p.holder.Publish(model, p.computeRankings(ctx, model, state.LastSync))
		p.logger.Info().
			Int("stations", len(model.Stations)).
			Int("prices", model.PriceCount()).
			Time("cursor", state.Cursor).
			Msg("restored persisted snapshot")
	}
	return nil
}

// Start runs the polling loop until the context is cancelled. Before the
// first successful bootstrap, failed passes are retried at the short
// interval; afterwards every pass (successful or not) waits the full polling
// interval.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	p.logger.Info().
		Dur("pollInterval", p.cfg.PollInterval).
		Dur("bootstrapRetryInterval", p.cfg.BootstrapRetryInterval).
		Msg("starting polling loop")

	timer := time.NewTimer(0)
	defer timer.Stop()
	// Drain the immediate first firing into the first pass below.
	<-timer.C

	for {
		if err := p.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				p.logger.Info().Msg("polling loop stopped")
				return ctx.Err()
			}
		}

		interval := p.cfg.PollInterval
		if !p.state.Bootstrapped {
			interval = p.cfg.BootstrapRetryInterval
		}

		next := time.Now().Add(interval)
		p.mu.Lock()
		p.nextTickAt = next
		p.mu.Unlock()
		p.logger.Info().Time("nextTick", next).Msg("next sync scheduled")

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("polling loop stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Tick performs one full sync pass: fetch stations and prices (sequentially,
// honoring the upstream concurrency limit), merge, persist model and state
// atomically, then recompute and publish rankings. On any failure the
// previous snapshot and sync state are left untouched, so the next pass
// re-requests the same window.
func (p *Poller) Tick(ctx context.Context) error {
	start := time.Now()
	requestTime := start.UTC()

	var since *time.Time
	if p.state.Bootstrapped {
		cursor := p.state.Cursor
		since = &cursor
		p.logger.Info().Time("since", cursor).Msg("starting incremental sync")
	} else {
		p.logger.Info().Msg("starting full bootstrap sync")
	}

	stations, err := p.api.FetchStations(ctx, since)
	if err != nil {
		return p.fail(err, time.Since(start))
	}
	prices, err := p.api.FetchPrices(ctx, since)
	if err != nil {
		return p.fail(err, time.Since(start))
	}

	merged := snapshot.Merge(p.model, stations, prices)

	state := models.SyncState{
		Cursor:       requestTime,
		LastSync:     time.Now().UTC(),
		Bootstrapped: true,
	}
	// The cursor never regresses, even if clocks misbehave.
	if state.Cursor.Before(p.state.Cursor) {
		state.Cursor = p.state.Cursor
	}

	if err := p.store.SaveSnapshot(ctx, merged, state); err != nil {
		return p.fail(err, time.Since(start))
	}

	rankings := p.computeRankings(ctx, merged, state.LastSync)
	p.holder.Publish(merged, rankings)
	p.model = merged

	p.mu.Lock()
	p.state = state
	p.degraded = false
	p.lastError = nil
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.RecordPass(true, time.Since(start))
		p.metrics.RecordLastSync(state.LastSync)
		p.metrics.RecordModelSize(len(merged.Stations), merged.PriceCount())
		for fuel, view := range rankings.ByFuel {
			if len(view.Cheapest) > 0 {
				p.metrics.RecordCheapest(string(fuel), view.Cheapest[0].Price.PencePerLitre())
			}
		}
	}

	p.logger.Info().
		Int("stationUpdates", len(stations)).
		Int("priceUpdates", len(prices)).
		Int("stations", len(merged.Stations)).
		Int("prices", merged.PriceCount()).
		Time("cursor", state.Cursor).
		Dur("duration", time.Since(start)).
		Msg("sync pass complete")
	return nil
}

// fail records a failed pass. Once bootstrapped, the last published snapshot
// keeps serving unchanged.
func (p *Poller) fail(err error, duration time.Duration) error {
	p.mu.Lock()
	p.degraded = p.state.Bootstrapped
	p.lastError = err
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.RecordPass(false, duration)
		var partial *fuelfinder.PartialError
		if errors.As(err, &partial) {
			failed := len(partial.FailedBatches)
			if partial.Truncated {
				failed++
			}
			p.metrics.RecordBatchFailures(failed)
		}
	}

	event := p.logger.Warn().Err(err).Dur("duration", duration)
	if p.state.Bootstrapped {
		event.Msg("sync pass failed, serving last known data")
	} else {
		event.Msg("bootstrap failed, no data available yet")
	}
	return err
}

// computeRankings derives the outbound model for every selected fuel type
// from a merged model.
func (p *Poller) computeRankings(ctx context.Context, model *snapshot.Model, updatedAt time.Time) *models.Rankings {
	labels := models.ResolveLabels(p.cfg.FuelTypes)

	rankings := &models.Rankings{
		ByFuel:    make(map[models.FuelType]models.FuelView, len(p.cfg.FuelTypes)),
		Labels:    labels,
		UpdatedAt: updatedAt,
	}

	for _, fuel := range p.cfg.FuelTypes {
		view := ranking.View(model, fuel, labels[fuel], p.cfg.Origin, p.cfg.RadiusMiles, p.cfg.TopN)
		p.enrichDrivingDistances(ctx, &view)
		rankings.ByFuel[fuel] = view
	}
	return rankings
}

// enrichDrivingDistances fills driving distances for the top-N entries only.
// Failures leave the great-circle distance as the fallback.
func (p *Poller) enrichDrivingDistances(ctx context.Context, view *models.FuelView) {
	if p.distance == nil || len(view.Cheapest) == 0 {
		return
	}

	destinations := make([]models.Coordinate, len(view.Cheapest))
	for i, entry := range view.Cheapest {
		destinations[i] = models.Coordinate{Latitude: entry.Station.Latitude, Longitude: entry.Station.Longitude}
	}

	distances := p.distance(ctx, p.cfg.Origin, destinations)
	for i := range view.Cheapest {
		if i < len(distances) && distances[i] != nil {
			view.Cheapest[i].DrivingDistanceMiles = distances[i]
			if entry, ok := view.Stations[view.Cheapest[i].Station.ID]; ok {
				entry.DrivingDistanceMiles = distances[i]
				view.Stations[entry.Station.ID] = entry
			}
		}
	}
}

// Bootstrapped reports whether a full fetch has ever completed.
func (p *Poller) Bootstrapped() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.Bootstrapped
}

// Status returns a point-in-time view for the status endpoint.
func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := Status{
		Running:      p.running,
		Bootstrapped: p.state.Bootstrapped,
		Degraded:     p.degraded,
	}
	if !p.state.Cursor.IsZero() {
		cursor := p.state.Cursor
		status.Cursor = &cursor
	}
	if !p.state.LastSync.IsZero() {
		lastSync := p.state.LastSync
		status.LastSyncAt = &lastSync
	}
	if !p.nextTickAt.IsZero() {
		next := p.nextTickAt
		status.NextTickAt = &next
	}
	if p.lastError != nil {
		msg := p.lastError.Error()
		status.LastError = &msg
	}
	return status
}
