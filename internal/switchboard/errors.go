package switchboard

import "errors"

// Sentinel errors for the dispositions spec.md §7 enumerates. Where one of
// them is returned, errors.Is identifies it through any %w wrapping.
var (
	// ErrNoPermission names a missing LISTEN/INITIATE/LIST_LISTENERS
	// permission. The permission checks in handleServerRequested,
	// handleDirectTCPIP and runList reject the request directly and do not
	// return it.
	ErrNoPermission = errors.New("insufficient permissions")
	// ErrDynamicPortUnsupported names a tcpip-forward request with port 0
	// (§4.4 step 4, §8 P9). handleServerRequested rejects such a request by
	// returning false and does not return this error.
	ErrDynamicPortUnsupported = errors.New("dynamic listen port not supported")
	// ErrDuplicatePort is returned by createListener when the same port is
	// already published by the same session (§8 P6).
	ErrDuplicatePort = errors.New("duplicate listen port")
	// ErrPortNotFound is returned when a resolved publisher has no listener
	// on the requested port.
	ErrPortNotFound = errors.New("port not found on slave")
)
