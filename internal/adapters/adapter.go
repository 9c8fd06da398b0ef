// Package adapters fetches and parses external benchmark sources into raw
// metrics. Each adapter is independent: a failure in one never blocks
// others, and transient failures fall back to the offline cache's last-good
// payload for that source.
package adapters

import (
	"context"
	"time"

	"github.com/modelgate/gateway/internal/metricstore"
)

// Adapter is the capability set every benchmark source implements.
type Adapter interface {
	// SourceTag is this adapter's unique identity in the catalog.
	SourceTag() string
	// SyncInterval is the recommended fetch cadence.
	SyncInterval() time.Duration
	// Fetch performs the (potentially blocking) I/O to retrieve raw payload
	// bytes. HTTP-backed implementations retry transient failures with
	// backoff inside FetchJSON, per their RetryConfig, before giving up.
	Fetch(ctx context.Context) ([]byte, error)
	// Parse is pure and deterministic: the same raw bytes always yield the
	// same metric list.
	Parse(raw []byte) ([]metricstore.RawMetric, error)
	// Validate reports whether raw looks like a well-formed payload for this
	// source, before Parse is attempted.
	Validate(raw []byte) bool
}

// RetryConfig bounds the exponential backoff used around Fetch.
type RetryConfig struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 4, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// backoffDelay returns the delay before attempt n (0-indexed), doubling
// each time and capped at MaxDelay.
func (c RetryConfig) backoffDelay(attempt int) time.Duration {
	d := c.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > c.MaxDelay {
			return c.MaxDelay
		}
	}
	return d
}
