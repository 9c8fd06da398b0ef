package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	gwerrors "github.com/modelgate/gateway/pkg/errors"
)

// NewHTTPClient builds the tuned client every HTTP-backed adapter shares,
// sized the way the benchmark runner sizes its load-test client.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        50,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// FetchJSON performs an HTTP GET against url with retry and exponential
// backoff on transient failures (5xx, timeout, connection error), honoring
// Retry-After on 429. An unrecoverable failure surfaces as DataUnavailable;
// callers are expected to fall back to the offline cache for this source.
func FetchJSON(ctx context.Context, client *http.Client, url, sourceTag string, retry RetryConfig) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retry.backoffDelay(attempt - 1)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, gwerrors.NewValidation(sourceTag, fmt.Sprintf("invalid request: %v", err))
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue // connection error / timeout: retry
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			if readErr != nil {
				lastErr = readErr
				continue
			}
			return body, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			if wait := retryAfterDelay(resp.Header.Get("Retry-After")); wait > 0 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(wait):
				}
			}
			lastErr = fmt.Errorf("%s: rate limited (429)", sourceTag)
			continue
		}

		if gwerrors.IsRetryable(resp.StatusCode) {
			lastErr = fmt.Errorf("%s: transient status %d", sourceTag, resp.StatusCode)
			continue
		}

		return nil, gwerrors.NewDataUnavailable(sourceTag, fmt.Sprintf("unrecoverable status %d", resp.StatusCode))
	}

	return nil, gwerrors.NewDataUnavailable(sourceTag, fmt.Sprintf("exhausted retries: %v", lastErr))
}

func retryAfterDelay(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}
