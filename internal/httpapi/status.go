package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fuelwatch/fuelwatch/internal/models"
	"github.com/fuelwatch/fuelwatch/internal/poller"
	"github.com/fuelwatch/fuelwatch/internal/snapshot"
	"github.com/fuelwatch/fuelwatch/internal/store"
)

// StatusResponse is the /status payload.
type StatusResponse struct {
	Status        string                          `json:"status"`
	UptimeSeconds int64                           `json:"uptime_seconds"`
	Poller        poller.Status                   `json:"poller"`
	Database      DatabaseStatus                  `json:"database"`
	Fuels         map[models.FuelType]FuelSummary `json:"fuels,omitempty"`
}

// DatabaseStatus describes the persistence backend.
type DatabaseStatus struct {
	Connected bool  `json:"connected"`
	Stations  int64 `json:"stations"`
	Prices    int64 `json:"prices"`
}

// FuelSummary is the per-fuel slice of the status payload.
type FuelSummary struct {
	Label         string  `json:"label"`
	Cheapest      *string `json:"cheapest,omitempty"`
	StationsFound int     `json:"stations_found"`
}

// StatusHandler handles the /status endpoint.
type StatusHandler struct {
	poller    *poller.Poller
	holder    *snapshot.Holder
	store     store.Store
	startTime time.Time
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(p *poller.Poller, holder *snapshot.Holder, st store.Store) *StatusHandler {
	return &StatusHandler{
		poller:    p,
		holder:    holder,
		store:     st,
		startTime: time.Now(),
	}
}

// ServeHTTP implements the http.Handler interface.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pollerStatus := h.poller.Status()

	response := StatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Poller:        pollerStatus,
		Database:      h.databaseStatus(r.Context()),
	}
	if !pollerStatus.Bootstrapped {
		response.Status = "unavailable"
	} else if pollerStatus.Degraded {
		response.Status = "degraded"
	}

	if rankings := h.holder.Rankings(); rankings != nil {
		response.Fuels = make(map[models.FuelType]FuelSummary, len(rankings.ByFuel))
		for fuel, view := range rankings.ByFuel {
			summary := FuelSummary{
				Label:         view.Label,
				StationsFound: len(view.Stations),
			}
			if len(view.Cheapest) > 0 {
				price := view.Cheapest[0].Price.String()
				summary.Cheapest = &price
			}
			response.Fuels[fuel] = summary
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
}

func (h *StatusHandler) databaseStatus(ctx context.Context) DatabaseStatus {
	status := DatabaseStatus{Connected: false}

	if h.store == nil {
		return status
	}
	if err := h.store.Ping(ctx); err != nil {
		return status
	}
	status.Connected = true

	stations, prices, err := h.store.Counts(ctx)
	if err == nil {
		status.Stations = stations
		status.Prices = prices
	}
	return status
}
