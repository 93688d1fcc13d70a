package registry

import "errors"

// Sentinel errors for registry loading. Callers should use errors.Is to check.
var (
	// ErrFetchFailed indicates the registry could not be retrieved.
	ErrFetchFailed = errors.New("registry: fetch failed")
	// ErrHTTPStatus indicates a non-2xx response from the registry URL.
	ErrHTTPStatus = errors.New("registry: unexpected HTTP status")
	// ErrDecode indicates the registry body is not a valid registry document.
	ErrDecode = errors.New("registry: malformed registry JSON")
)
