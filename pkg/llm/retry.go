package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
)

// doWithRetry issues the request and retries on 429 with exponential backoff
// (initialBackoff * 2^attempt). Any other status is returned to the caller as
// is; timeouts and context cancellation abort immediately.
func doWithRetry(ctx context.Context, client *http.Client, makeRequest func() (*http.Request, error)) (*http.Response, error) {
	var lastStatus string
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := initialBackoff * (1 << (attempt - 1))
			select {
			case <-ctx.Done():
				return nil, classifyContextErr(ctx.Err())
			case <-time.After(delay):
			}
		}

		req, err := makeRequest()
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, classifyContextErr(ctxErr)
			}
			return nil, err
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			lastStatus = resp.Status
			_ = resp.Body.Close()
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("%w: gave up after %d attempts (last status %s)", ErrRateLimited, maxRetries+1, lastStatus)
}

func classifyContextErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
