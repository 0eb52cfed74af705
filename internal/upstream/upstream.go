package upstream

import (
	"context"
	"fmt"

	"pangancache/internal/model"
)

// Payload is the raw month-bucketed response as fetched: decoded JSON with a
// "request_data" echo and a "data" map keyed by year string. It is owned by
// the Fetch call that produced it and discarded after normalization.
type Payload map[string]any

// Client fetches one month-range window from the upstream price feed.
type Client interface {
	Fetch(ctx context.Context, params model.FetchParams) (Payload, error)
}

// FetchError reports an upstream failure after the retry budget, if any, was
// exhausted. Status is zero when no HTTP status code is to blame (transport
// failures, undecodable success responses).
type FetchError struct {
	Status   int
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream: fetch failed with status %d after %d attempt(s): %v", e.Status, e.Attempts, e.Err)
	}
	return fmt.Sprintf("upstream: fetch failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
