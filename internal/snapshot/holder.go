package snapshot

import (
	"sync"

	"github.com/fuelwatch/fuelwatch/internal/models"
)

// Holder owns the snapshot pointer shared between the sync pass and readers.
// The pass swaps in a new model and rankings after every successful merge;
// readers always see the last successfully published pair. Only the brief
// pointer swap is locked, never the network I/O of the next pass.
type Holder struct {
	mu       sync.RWMutex
	model    *Model
	rankings *models.Rankings
}

// NewHolder returns a Holder with no published snapshot. Readers receive nil
// until the first successful pass, which is the "unavailable" state before a
// bootstrap has ever completed.
func NewHolder() *Holder {
	return &Holder{}
}

// Publish swaps in a new model and its computed rankings.
func (h *Holder) Publish(model *Model, rankings *models.Rankings) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.model = model
	h.rankings = rankings
}

// Model returns the last published model, or nil before the first successful
// pass.
func (h *Holder) Model() *Model {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.model
}

// Rankings returns the last published rankings, or nil before the first
// successful pass.
func (h *Holder) Rankings() *models.Rankings {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rankings
}
