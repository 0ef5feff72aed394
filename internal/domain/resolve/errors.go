package resolve

import "errors"

// Sentinel kinds for resolution errors.
var (
	// ErrUnresolvableEntity is returned for empty or blank identity input
	// rather than creating a degenerate canonical entity.
	ErrUnresolvableEntity = errors.New("unresolvable entity")
)
