// Package integrate merges normalized provider records for the same match
// or player into one consistent record.
package integrate

import "errors"

// Sentinel kinds for integration errors.
var (
	// ErrKindMismatch is returned when a record of the wrong variant is
	// handed to a merge operation.
	ErrKindMismatch = errors.New("record kind mismatch")

	// ErrUnresolvedRecord is returned when a record reaches the integrator
	// without canonical entity IDs.
	ErrUnresolvedRecord = errors.New("record not resolved")

	// ErrKeyMismatch is returned when an incoming record's derived match
	// key does not match the record it is being merged into.
	ErrKeyMismatch = errors.New("match key mismatch")

	// ErrRecordFinal is returned when new data arrives for a finalized record.
	ErrRecordFinal = errors.New("record is final")
)
