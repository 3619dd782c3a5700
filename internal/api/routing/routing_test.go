package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuelwatch/fuelwatch/internal/models"
)

var (
	testOrigin = models.Coordinate{Latitude: 51.5, Longitude: -0.12}
	destA      = models.Coordinate{Latitude: 51.52, Longitude: -0.1}
	destB      = models.Coordinate{Latitude: 51.48, Longitude: -0.14}
)

func TestDrivingDistances(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "test-key", r.Header.Get("Authorization"))

		var req matrixRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		// Origin first, as [longitude, latitude].
		assert.Equal(t, [2]float64{-0.12, 51.5}, req.Locations[0])
		assert.Equal(t, []int{0}, req.Sources)
		assert.Equal(t, []string{"distance"}, req.Metrics)

		// 1609.344 m is exactly one mile.
		fmt.Fprint(w, `{"distances": [[1609.344, 3218.688]]}`)
	}))
	defer srv.Close()

	client := New(srv.URL, "test-key", zerolog.Nop())

	distances := client.DrivingDistances(context.Background(), testOrigin, []models.Coordinate{destA, destB})
	require.Len(t, distances, 2)
	require.NotNil(t, distances[0])
	assert.Equal(t, 1.0, *distances[0])
	require.NotNil(t, distances[1])
	assert.Equal(t, 2.0, *distances[1])

	// Cached pairs do not trigger another matrix call.
	distances = client.DrivingDistances(context.Background(), testOrigin, []models.Coordinate{destA, destB})
	require.NotNil(t, distances[0])
	assert.Equal(t, 1.0, *distances[0])
	assert.Equal(t, 1, requests)
}

func TestDrivingDistancesPartialCache(t *testing.T) {
	var lastRequest matrixRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&lastRequest))
		distances := make([]string, len(lastRequest.Locations)-1)
		for i := range distances {
			distances[i] = "1609.344"
		}
		fmt.Fprintf(w, `{"distances": [[%s]]}`, strings.Join(distances, ", "))
	}))
	defer srv.Close()

	client := New(srv.URL, "test-key", zerolog.Nop())

	client.DrivingDistances(context.Background(), testOrigin, []models.Coordinate{destA})
	client.DrivingDistances(context.Background(), testOrigin, []models.Coordinate{destA, destB})

	// Only the uncached destination went into the second matrix call.
	assert.Len(t, lastRequest.Locations, 2)
}

func TestDrivingDistancesFailureReturnsNils(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := New(srv.URL, "test-key", zerolog.Nop())

	distances := client.DrivingDistances(context.Background(), testOrigin, []models.Coordinate{destA, destB})
	require.Len(t, distances, 2)
	assert.Nil(t, distances[0])
	assert.Nil(t, distances[1])
}

func TestDrivingDistancesUnroutable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// null marks an unroutable destination.
		fmt.Fprint(w, `{"distances": [[null, 1609.344]]}`)
	}))
	defer srv.Close()

	client := New(srv.URL, "test-key", zerolog.Nop())

	distances := client.DrivingDistances(context.Background(), testOrigin, []models.Coordinate{destA, destB})
	assert.Nil(t, distances[0])
	require.NotNil(t, distances[1])
	assert.Equal(t, 1.0, *distances[1])
}
