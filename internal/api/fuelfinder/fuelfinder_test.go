package fuelfinder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuelwatch/fuelwatch/internal/models"
)

// testServer wires an httptest server that hands out tokens and serves the
// stations endpoint from a per-batch handler.
func testServer(t *testing.T, pageFor func(batch int, r *http.Request) (int, string)) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == tokenPath {
			require.Equal(t, http.MethodPost, r.Method)
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "client_credentials", r.FormValue("grant_type"))
			fmt.Fprint(w, `{"success": true, "data": {"access_token": "test-token", "expires_in": 3600}}`)
			return
		}

		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		batch, err := parseBatch(r)
		require.NoError(t, err)

		status, body := pageFor(batch, r)
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)

	client := New(srv.URL, "id", "secret", DefaultRetryPolicy(), zerolog.Nop())
	client.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return client, srv
}

func parseBatch(r *http.Request) (int, error) {
	var batch int
	_, err := fmt.Sscanf(r.URL.Query().Get("batch-number"), "%d", &batch)
	return batch, err
}

func stationsPage(from, n int) string {
	records := make([]json.RawMessage, 0, n)
	for i := from; i < from+n; i++ {
		records = append(records, json.RawMessage(fmt.Sprintf(
			`{"node_id": "n%04d", "trading_name": "Station %d", "brand_name": "Shell", "location": {"latitude": 51.5, "longitude": -0.12, "postcode": "SW1A 1AA"}}`, i, i)))
	}
	body, _ := json.Marshal(records)
	return string(body)
}

func TestFetchStationsSinglePage(t *testing.T) {
	client, _ := testServer(t, func(batch int, r *http.Request) (int, string) {
		assert.Empty(t, r.URL.Query().Get("effective-start-timestamp"))
		if batch == 1 {
			return http.StatusOK, stationsPage(0, 3)
		}
		return http.StatusOK, `[]`
	})

	stations, err := client.FetchStations(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, stations, 3)
	assert.Equal(t, "n0000", stations[0].ID)
	assert.Equal(t, "Station 0", stations[0].Name)
	assert.Equal(t, 51.5, stations[0].Latitude)
}

func TestFetchStationsPaginates(t *testing.T) {
	client, _ := testServer(t, func(batch int, r *http.Request) (int, string) {
		switch batch {
		case 1:
			return http.StatusOK, stationsPage(0, BatchSize)
		case 2:
			return http.StatusOK, stationsPage(BatchSize, 40)
		default:
			return http.StatusOK, `[]`
		}
	})

	stations, err := client.FetchStations(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, stations, BatchSize+40)
}

func TestFetchStationsIncrementalWindow(t *testing.T) {
	since := time.Date(2026, 8, 28, 6, 0, 0, 0, time.UTC)

	var sawFilter bool
	client, _ := testServer(t, func(batch int, r *http.Request) (int, string) {
		if r.URL.Query().Get("effective-start-timestamp") == "2026-08-28 06:00:00" {
			sawFilter = true
		}
		return http.StatusOK, `[]`
	})

	// An empty incremental window is a success with zero records.
	stations, err := client.FetchStations(context.Background(), &since)
	require.NoError(t, err)
	assert.Empty(t, stations)
	assert.True(t, sawFilter)
}

func TestGetRetriesTransientFailures(t *testing.T) {
	var attempts int
	client, _ := testServer(t, func(batch int, r *http.Request) (int, string) {
		attempts++
		if attempts < 3 {
			return http.StatusInternalServerError, `boom`
		}
		return http.StatusOK, stationsPage(0, 1)
	})

	stations, err := client.FetchStations(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, stations, 1)
	assert.Equal(t, 3, attempts)
}

func TestGetRetriesRateLimit(t *testing.T) {
	var attempts int
	client, _ := testServer(t, func(batch int, r *http.Request) (int, string) {
		attempts++
		if attempts == 1 {
			return http.StatusTooManyRequests, `slow down`
		}
		return http.StatusOK, stationsPage(0, 1)
	})

	_, err := client.FetchStations(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestFatalStatusAbortsImmediately(t *testing.T) {
	var attempts int
	client, _ := testServer(t, func(batch int, r *http.Request) (int, string) {
		attempts++
		return http.StatusForbidden, `denied`
	})

	_, err := client.FetchStations(context.Background(), nil)
	require.Error(t, err)

	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, http.StatusForbidden, fatal.Status)
	assert.Equal(t, 1, attempts, "fatal errors are not retried")
}

func TestFailedBatchRetriedInResiliencePass(t *testing.T) {
	attemptsPerBatch := make(map[int]int)
	client, _ := testServer(t, func(batch int, r *http.Request) (int, string) {
		attemptsPerBatch[batch]++
		switch batch {
		case 1:
			return http.StatusOK, stationsPage(0, BatchSize)
		case 2:
			// Fails the whole in-line retry budget, succeeds in the
			// resilience pass.
			if attemptsPerBatch[2] <= DefaultRetryPolicy().MaxAttempts {
				return http.StatusInternalServerError, `boom`
			}
			return http.StatusOK, stationsPage(BatchSize, BatchSize)
		case 3:
			return http.StatusOK, stationsPage(2*BatchSize, 10)
		default:
			return http.StatusOK, `[]`
		}
	})

	stations, err := client.FetchStations(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, stations, 2*BatchSize+10)
}

func TestPartialResultWhenBatchStaysFailed(t *testing.T) {
	client, _ := testServer(t, func(batch int, r *http.Request) (int, string) {
		switch batch {
		case 1:
			return http.StatusOK, stationsPage(0, BatchSize)
		case 2:
			return http.StatusInternalServerError, `boom`
		case 3:
			return http.StatusOK, stationsPage(2*BatchSize, 10)
		default:
			return http.StatusOK, `[]`
		}
	})

	stations, err := client.FetchStations(context.Background(), nil)

	var partial *PartialError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []int{2}, partial.FailedBatches)
	assert.False(t, partial.Truncated)
	// Records from succeeded batches come back alongside the error.
	assert.Len(t, stations, BatchSize+10)
}

func TestConsecutiveFailuresTruncatePagination(t *testing.T) {
	requestedBatches := make(map[int]bool)
	client, _ := testServer(t, func(batch int, r *http.Request) (int, string) {
		requestedBatches[batch] = true
		switch batch {
		case 1:
			return http.StatusOK, stationsPage(0, BatchSize)
		default:
			return http.StatusInternalServerError, `boom`
		}
	})

	stations, err := client.FetchStations(context.Background(), nil)

	var partial *PartialError
	require.ErrorAs(t, err, &partial)
	assert.True(t, partial.Truncated)
	assert.Len(t, stations, BatchSize)
	// Pagination stopped after the second consecutive failure.
	assert.False(t, requestedBatches[4])
}

func TestTokenRefreshOn401(t *testing.T) {
	tokens := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == tokenPath {
			tokens++
			fmt.Fprintf(w, `{"access_token": "tok%d", "expires_in": 3600}`, tokens)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	client := New(srv.URL, "id", "secret", DefaultRetryPolicy(), zerolog.Nop())
	client.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	stations, err := client.FetchStations(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, stations)
	assert.Equal(t, 2, tokens, "401 triggered exactly one token refresh")
}

func TestRecoverable401ObservedAsReauth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == tokenPath {
			fmt.Fprint(w, `{"access_token": "fresh", "expires_in": 3600}`)
			return
		}
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	client := New(srv.URL, "id", "secret", DefaultRetryPolicy(), zerolog.Nop())
	client.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	client.accessToken = "stale"
	client.tokenExpiry = time.Now().Add(time.Hour)

	observed := make(map[string]int)
	client.RequestObserver = func(status string, duration time.Duration) {
		observed[status]++
	}

	_, err := client.FetchStations(context.Background(), nil)
	require.NoError(t, err)

	// The 401 recovered after a token refresh, so it must not count as
	// a fatal request.
	assert.Equal(t, 1, observed["reauth"])
	assert.Zero(t, observed["fatal"])
	assert.GreaterOrEqual(t, observed["ok"], 1)
}

func TestTestConnectionRejectsBadCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": "invalid_client"}`)
	}))
	defer srv.Close()

	client := New(srv.URL, "id", "wrong", DefaultRetryPolicy(), zerolog.Nop())

	err := client.TestConnection(context.Background())
	var auth *AuthError
	assert.ErrorAs(t, err, &auth)
}

func TestFetchPricesConversion(t *testing.T) {
	client, _ := testServer(t, func(batch int, r *http.Request) (int, string) {
		if batch > 1 {
			return http.StatusOK, `[]`
		}
		return http.StatusOK, `{"results": [
			{"node_id": "n1", "fuel_prices": [
				{"fuel_type": "E10", "price": 128.9, "price_last_updated": "2026-08-27 10:00:00"},
				{"fuel_type": "B7_STANDARD", "price": null, "price_last_updated": "2026-08-27 10:00:00"},
				{"fuel_type": "E5", "price": 1.399, "price_last_updated": "2026-08-27T10:00:00Z"},
				{"fuel_type": "LPG", "price": 80.0}
			]}
		]}`
	})

	updates, err := client.FetchPrices(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, updates, 3, "unknown fuel types are dropped")

	assert.Equal(t, models.Price(1289), updates[0].Price)
	assert.False(t, updates[0].Absent)
	assert.Equal(t, time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC), updates[0].RecordedAt)

	// A null price is an explicit absence.
	assert.True(t, updates[1].Absent)
	assert.Equal(t, models.FuelB7Standard, updates[1].FuelType)

	// Pound-denominated prices are normalised.
	assert.Equal(t, models.Price(1399), updates[2].Price)
}
