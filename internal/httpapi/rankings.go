package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/fuelwatch/fuelwatch/internal/models"
	"github.com/fuelwatch/fuelwatch/internal/snapshot"
)

// RankingsHandler serves the current rankings. Until the first successful
// sync pass it answers 503.
type RankingsHandler struct {
	holder *snapshot.Holder
}

// NewRankingsHandler creates a new RankingsHandler.
func NewRankingsHandler(holder *snapshot.Holder) *RankingsHandler {
	return &RankingsHandler{holder: holder}
}

// ServeHTTP implements the http.Handler interface. An optional "fuel" query
// parameter narrows the response to a single fuel type.
func (h *RankingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rankings := h.holder.Rankings()
	if rankings == nil {
		http.Error(w, "no data available yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if raw := r.URL.Query().Get("fuel"); raw != "" {
		fuel, err := models.ParseFuelType(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		view, ok := rankings.ByFuel[fuel]
		if !ok {
			http.Error(w, "fuel type not selected", http.StatusNotFound)
			return
		}
		if err := json.NewEncoder(w).Encode(view); err != nil {
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
		}
		return
	}

	if err := json.NewEncoder(w).Encode(rankings); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
