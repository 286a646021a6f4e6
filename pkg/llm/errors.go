package llm

import "errors"

// Failure classes surfaced by providers. Callers classify with errors.Is and
// decide whether a whole slot aborts (budget, configuration) or a single call
// degrades (everything else).
var (
	// ErrBudgetExceeded is returned before any network call once the monthly
	// spend ceiling has been reached.
	ErrBudgetExceeded = errors.New("llm: monthly budget exceeded")

	// ErrRateLimited is returned after retry attempts on 429 responses are
	// exhausted.
	ErrRateLimited = errors.New("llm: rate limited")

	// ErrTimeout is returned when a call is aborted at its deadline.
	ErrTimeout = errors.New("llm: request timed out")

	// ErrMalformedResponse covers API-level error payloads and responses from
	// which no usable candidate could be extracted.
	ErrMalformedResponse = errors.New("llm: malformed response")

	// ErrConfiguration covers invalid provider or request configuration,
	// rejected before any network activity.
	ErrConfiguration = errors.New("llm: invalid configuration")
)
