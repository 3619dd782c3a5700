package fuelfinder

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fuelwatch/fuelwatch/internal/models"
)

// FetchStations fetches station records across all batches. A nil since
// performs the full bootstrap fetch; otherwise only stations changed since
// that time are returned.
func (c *Client) FetchStations(ctx context.Context, since *time.Time) ([]models.Station, error) {
	raw, err := c.fetchBatches(ctx, stationsPath, fetchLabel("stations", since), since)

	stations := make([]models.Station, 0, len(raw))
	for _, msg := range raw {
		var record StationRecord
		if uerr := json.Unmarshal(msg, &record); uerr != nil || record.NodeID == "" {
			continue
		}
		stations = append(stations, record.Station())
	}
	return stations, err
}

// FetchPrices fetches price records across all batches, converted into merge
// inputs. A nil since performs the full bootstrap fetch.
func (c *Client) FetchPrices(ctx context.Context, since *time.Time) ([]models.PriceUpdate, error) {
	raw, err := c.fetchBatches(ctx, pricesPath, fetchLabel("prices", since), since)

	updates := make([]models.PriceUpdate, 0, len(raw))
	for _, msg := range raw {
		var record PriceListRecord
		if uerr := json.Unmarshal(msg, &record); uerr != nil || record.NodeID == "" {
			continue
		}
		updates = append(updates, record.Updates()...)
	}
	return updates, err
}

func fetchLabel(kind string, since *time.Time) string {
	if since != nil {
		return kind + " (incremental)"
	}
	return kind + " (full)"
}

// fetchBatches drives sequential pagination with failed-batch resilience.
//
// Pages are requested one at a time with a fixed delay in between. A page
// that fails after the client's own retries is recorded and pagination
// continues, except after two consecutive failures, which make the end of the
// dataset undeterminable. Once all pages are attempted, every failed page is
// retried once more with a longer delay before each attempt. Records from
// succeeded pages are always returned; if any page remains failed (or
// pagination was truncated) the error is a *PartialError.
//
// An empty incremental window is a success with zero records. Fatal failures
// abort immediately.
func (c *Client) fetchBatches(ctx context.Context, path, label string, since *time.Time) ([]json.RawMessage, error) {
	var (
		records          []json.RawMessage
		failed           []int
		consecutiveEmpty int
		truncated        bool
	)

	batch := 1
	for {
		if batch > 1 {
			if err := c.sleep(ctx, batchDelay); err != nil {
				return records, err
			}
		}

		page, err := c.getPage(ctx, path, batch, since)
		if err != nil {
			if isFatal(err) || ctx.Err() != nil {
				return records, err
			}

			failed = append(failed, batch)
			c.logger.Warn().
				Err(err).
				Str("fetch", label).
				Int("batch", batch).
				Msg("batch failed, continuing with next batch")

			if len(failed) >= 2 && failed[len(failed)-1] == failed[len(failed)-2]+1 {
				c.logger.Error().
					Str("fetch", label).
					Ints("batches", failed[len(failed)-2:]).
					Msg("two consecutive batch failures, stopping pagination")
				truncated = true
				break
			}
			batch++
			continue
		}

		if len(page) == 0 {
			consecutiveEmpty++
			if consecutiveEmpty >= 2 {
				break
			}
			batch++
			continue
		}
		consecutiveEmpty = 0

		records = append(records, page...)
		c.logger.Debug().
			Str("fetch", label).
			Int("batch", batch).
			Int("records", len(page)).
			Int("total", len(records)).
			Msg("fetched batch")

		if len(page) < BatchSize {
			break
		}
		batch++
	}

	// Resilience pass: one more attempt per failed batch.
	var stillFailed []int
	for _, b := range failed {
		if err := c.sleep(ctx, retryPassDelay); err != nil {
			return records, err
		}

		c.logger.Info().Str("fetch", label).Int("batch", b).Msg("retrying failed batch")
		page, err := c.getPage(ctx, path, b, since)
		if err != nil {
			if isFatal(err) || ctx.Err() != nil {
				return records, err
			}
			stillFailed = append(stillFailed, b)
			continue
		}
		records = append(records, page...)
	}

	if len(stillFailed) > 0 || truncated {
		return records, &PartialError{
			Label:         label,
			FailedBatches: stillFailed,
			Truncated:     truncated,
		}
	}

	c.logger.Debug().
		Str("fetch", label).
		Int("records", len(records)).
		Int("batches", batch).
		Msg("fetch complete")
	return records, nil
}

// isFatal reports whether err should abort the pass immediately.
func isFatal(err error) bool {
	var fatal *FatalError
	var auth *AuthError
	return errors.As(err, &fatal) || errors.As(err, &auth)
}
