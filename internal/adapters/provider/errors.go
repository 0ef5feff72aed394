package provider

import "errors"

// Sentinel kinds for fetch errors. Callers match with errors.Is.
var (
	// ErrRateLimited surfaces after the exponential backoff budget for a
	// provider-reported rate-limit signal is exhausted. A Doer returns it
	// (possibly wrapped) to signal "too many requests".
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrFetchFailed surfaces after transient-failure retries are exhausted.
	ErrFetchFailed = errors.New("fetch failed")
)
