package domain

import "errors"

var (
	// ErrConfigurationUnavailable is returned when no shopping provider credential is configured
	ErrConfigurationUnavailable = errors.New("shopping provider not configured")

	// ErrNetworkTimeout is returned when an outbound call times out or the connection fails
	ErrNetworkTimeout = errors.New("network timeout")

	// ErrRateLimited is returned when the provider rate-limits a call
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrParseFailure is returned when a provider payload cannot be decoded
	ErrParseFailure = errors.New("malformed provider response")

	// ErrProviderFailure is returned for non-retryable upstream failures
	ErrProviderFailure = errors.New("shopping provider request failed")

	// ErrNoQualifyingCandidate is returned when validation leaves no candidate
	ErrNoQualifyingCandidate = errors.New("no qualifying candidate")

	// ErrResolutionFailure is returned when no direct product URL can be found
	ErrResolutionFailure = errors.New("direct product url not resolved")

	// ErrCacheStoreUnavailable is returned when the persistent cache cannot be reached
	ErrCacheStoreUnavailable = errors.New("cache store unavailable")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")
)
