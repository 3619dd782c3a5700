// Package routing provides an optional OpenRouteService client for enriching
// ranked stations with driving distances. Lookup failures degrade to
// "unavailable" and never abort ranking.
package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/fuelwatch/fuelwatch/internal/models"
)

const (
	// DefaultMatrixURL is the ORS driving-car matrix endpoint.
	DefaultMatrixURL = "https://api.openrouteservice.org/v2/matrix/driving-car"

	requestTimeout = 30 * time.Second
	metersPerMile  = 1609.344

	// cacheTTL keeps resolved distances for one polling window so each
	// station is looked up at most once per refresh.
	cacheTTL     = 2 * time.Hour
	cacheCleanup = 30 * time.Minute
)

// Client queries the OpenRouteService matrix API for driving distances from a
// fixed origin.
type Client struct {
	httpClient *http.Client
	matrixURL  string
	apiKey     string
	cache      *cache.Cache
	logger     zerolog.Logger
}

// New creates a routing client. The matrixURL defaults to the public ORS
// endpoint when empty.
func New(matrixURL, apiKey string, logger zerolog.Logger) *Client {
	if matrixURL == "" {
		matrixURL = DefaultMatrixURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		matrixURL: matrixURL,
		apiKey:    apiKey,
		cache:     cache.New(cacheTTL, cacheCleanup),
		logger:    logger.With().Str("component", "routing").Logger(),
	}
}

// matrixRequest is the ORS matrix API request body. ORS expects
// [longitude, latitude] pairs with the origin first.
type matrixRequest struct {
	Locations    [][2]float64 `json:"locations"`
	Sources      []int        `json:"sources"`
	Destinations []int        `json:"destinations"`
	Metrics      []string     `json:"metrics"`
}

// matrixResponse is the ORS matrix API response body.
type matrixResponse struct {
	Distances [][]*float64 `json:"distances"`
}

// DrivingDistances returns the driving distance in miles from origin to each
// destination, or nil for destinations that could not be resolved. Results
// are cached for one polling window.
func (c *Client) DrivingDistances(ctx context.Context, origin models.Coordinate, destinations []models.Coordinate) []*float64 {
	results := make([]*float64, len(destinations))
	if len(destinations) == 0 {
		return results
	}

	// Serve whatever is already cached and collect the rest for one
	// matrix call.
	var missing []int
	for i, dest := range destinations {
		if miles, found := c.cache.Get(cacheKey(origin, dest)); found {
			v := miles.(float64)
			results[i] = &v
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return results
	}

	distances, err := c.queryMatrix(ctx, origin, destinations, missing)
	if err != nil {
		c.logger.Warn().Err(err).Int("destinations", len(missing)).Msg("driving distance lookup failed")
		return results
	}

	for n, i := range missing {
		d := distances[n]
		if d == nil || *d < 0 {
			continue
		}
		miles := roundTenth(*d / metersPerMile)
		results[i] = &miles
		c.cache.Set(cacheKey(origin, destinations[i]), miles, cache.DefaultExpiration)
	}
	return results
}

func (c *Client) queryMatrix(ctx context.Context, origin models.Coordinate, destinations []models.Coordinate, missing []int) ([]*float64, error) {
	locations := make([][2]float64, 0, len(missing)+1)
	locations = append(locations, [2]float64{origin.Longitude, origin.Latitude})
	dests := make([]int, 0, len(missing))
	for n, i := range missing {
		locations = append(locations, [2]float64{destinations[i].Longitude, destinations[i].Latitude})
		dests = append(dests, n+1)
	}

	payload, err := json.Marshal(matrixRequest{
		Locations:    locations,
		Sources:      []int{0},
		Destinations: dests,
		Metrics:      []string{"distance"},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding matrix request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.matrixURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating matrix request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing matrix request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("matrix API returned %d: %s", resp.StatusCode, body)
	}

	var matrix matrixResponse
	if err := json.NewDecoder(resp.Body).Decode(&matrix); err != nil {
		return nil, fmt.Errorf("parsing matrix response: %w", err)
	}
	if len(matrix.Distances) == 0 || len(matrix.Distances[0]) != len(missing) {
		return nil, fmt.Errorf("matrix response carried %d rows, want 1 row of %d distances", len(matrix.Distances), len(missing))
	}
	return matrix.Distances[0], nil
}

func cacheKey(origin, dest models.Coordinate) string {
	return fmt.Sprintf("%.5f,%.5f->%.5f,%.5f", origin.Latitude, origin.Longitude, dest.Latitude, dest.Longitude)
}

func roundTenth(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
