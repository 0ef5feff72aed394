package shapley

import "errors"

var (
	// ErrNoPlayers is returned for a game without players.
	ErrNoPlayers = errors.New("game has no players")

	// ErrTooManyPlayers is returned when exact enumeration is asked for
	// more players than the exact threshold allows.
	ErrTooManyPlayers = errors.New("too many players for exact enumeration")

	// ErrUnstableValue is returned when the characteristic function
	// keeps failing past the retry bound.
	ErrUnstableValue = errors.New("characteristic function unstable")
)
