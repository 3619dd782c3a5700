package fuelfinder

import (
	"fmt"
	"strings"
)

// TransientError is a retryable failure: a 5xx or 429 response, a network
// error or a request timeout. It surfaces from the client only once the retry
// policy is exhausted.
type TransientError struct {
	// Status is the HTTP status code, 0 for connection-level failures.
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transient API failure (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("transient API failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// FatalError is a non-retryable request failure, e.g. a 4xx response other
// than a rate limit. It aborts the current pass immediately.
type FatalError struct {
	Status int
	Err    error
}

func (e *FatalError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("API request failed (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("API request failed: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// AuthError indicates the OAuth token request was rejected, usually because
// of bad credentials.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// PartialError reports a fetch pass in which some batches never succeeded
// after the retry pass. The records that did succeed are returned alongside
// the error; callers must not advance the sync cursor for a partial pass.
type PartialError struct {
	Label string
	// FailedBatches lists the batch numbers still failed after retrying.
	FailedBatches []int
	// Truncated is set when two consecutive batch failures made the end of
	// the dataset undeterminable, so later batches were never requested.
	Truncated bool
}

func (e *PartialError) Error() string {
	parts := []string{}
	if len(e.FailedBatches) > 0 {
		parts = append(parts, fmt.Sprintf("%d batches failed after retry: %v", len(e.FailedBatches), e.FailedBatches))
	}
	if e.Truncated {
		parts = append(parts, "pagination truncated by consecutive batch failures")
	}
	return fmt.Sprintf("%s fetch incomplete: %s", e.Label, strings.Join(parts, "; "))
}
