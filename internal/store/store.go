package store

import (
	"context"
	"errors"

	"github.com/lox/holdemd/internal/game"
)

// ErrNotFound is returned when a table has no stored snapshot.
var ErrNotFound = errors.New("store: not found")

// Store persists table event logs and snapshots. Events are written ahead
// of acknowledgement: a dispatcher appends the batch an action produced
// before replying to the actor, so an acknowledged action is never lost.
type Store interface {
	// AppendEvents durably appends a batch of events for one table.
	// Sequence numbers must be new; re-appending an existing sequence is
	// an error.
	AppendEvents(ctx context.Context, tableID string, events []game.Event) error

	// LoadEvents returns the table's events with Seq > sinceSeq in
	// sequence order. sinceSeq 0 replays the whole log.
	LoadEvents(ctx context.Context, tableID string, sinceSeq int64) ([]game.Event, error)

	// SaveSnapshot replaces the table's snapshot.
	SaveSnapshot(ctx context.Context, snap *game.Snapshot) error

	// LoadSnapshot returns the table's latest snapshot, or ErrNotFound.
	LoadSnapshot(ctx context.Context, tableID string) (*game.Snapshot, error)

	// TableIDs lists every table with stored state, for restart recovery.
	TableIDs(ctx context.Context) ([]string, error)

	Close() error
}
