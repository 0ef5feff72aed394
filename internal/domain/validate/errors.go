package validate

import "errors"

// ErrValidationFailed is returned when a hard rule fails; callers must
// not persist the offending value.
var ErrValidationFailed = errors.New("validation failed")
