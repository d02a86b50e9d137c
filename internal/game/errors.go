package game

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed indicates a structurally invalid command, rejected
	// before it reaches the controller.
	ErrMalformed = errors.New("malformed command")

	// ErrOutOfRange indicates a command parameter outside its allowed range.
	ErrOutOfRange = errors.New("parameter out of range")

	// ErrNotYourTurn is returned when a player acts out of turn.
	ErrNotYourTurn = errors.New("not your turn")

	// ErrTableFull is returned when a join would exceed max players.
	ErrTableFull = errors.New("table is full")

	// ErrTableInProgress is returned when an operation requires the table
	// to be between hands.
	ErrTableInProgress = errors.New("hand in progress")

	// ErrInsufficientChips is returned when a buy-in or bet cannot be
	// covered by the player's stack.
	ErrInsufficientChips = errors.New("insufficient chips")

	// ErrTableClosed is returned for commands against a closed or frozen
	// table.
	ErrTableClosed = errors.New("table closed")

	// ErrTableCorrupt is returned after an invariant violation has
	// quarantined the table.
	ErrTableCorrupt = errors.New("table corrupt")
)

// IllegalActionError rejects a player action without mutating state.
// The reason is surfaced to the submitter only.
type IllegalActionError struct {
	Reason string
}

func (e *IllegalActionError) Error() string {
	return fmt.Sprintf("illegal action: %s", e.Reason)
}

func illegalf(format string, args ...any) error {
	return &IllegalActionError{Reason: fmt.Sprintf(format, args...)}
}
