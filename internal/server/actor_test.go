package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/holdemd/internal/game"
	"github.com/lox/holdemd/internal/store"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

// newTestActor builds an actor around a fresh table with its creation
// events already persisted, mirroring what the registry does.
func newTestActor(t *testing.T, st store.Store, clock quartz.Clock, timeout time.Duration) *TableActor {
	t.Helper()

	table, events, err := game.NewTable("tbl-1", "alice", 6, 10, 20, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.NoError(t, st.AppendEvents(context.Background(), table.ID, events))

	actor := NewTableActor(table, st, testLogger(), clock, timeout)
	actor.Start(time.Time{})
	t.Cleanup(actor.Stop)
	return actor
}

func seatTwo(t *testing.T, actor *TableActor) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, actor.Join(ctx, "alice", 1000))
	require.NoError(t, actor.Join(ctx, "bob", 1000))
}

// drain reads events until the predicate matches or the deadline hits.
func drain(t *testing.T, ch <-chan game.Event, stopAt func(game.Event) bool) []game.Event {
	t.Helper()
	var out []game.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, e)
			if stopAt != nil && stopAt(e) {
				return out
			}
		case <-deadline:
			t.Fatalf("timed out draining events, have %d", len(out))
		}
	}
}

func TestActorTurnTimeoutAutoFolds(t *testing.T) {
	mock := quartz.NewMock(t)
	actor := newTestActor(t, store.NewMemoryStore(), mock, 30*time.Second)
	seatTwo(t, actor)
	ctx := context.Background()

	require.NoError(t, actor.StartHand(ctx, "alice"))

	view, err := actor.View(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "preflop", view.Phase)
	require.NotZero(t, view.CurrentTurnSeat)

	// Nobody acts; the 30s turn timer folds the seat and, heads-up, the
	// hand completes.
	mock.Advance(30 * time.Second).MustWait(ctx)

	require.Eventually(t, func() bool {
		v, err := actor.View(ctx, "alice")
		return err == nil && v.Phase == "complete"
	}, 5*time.Second, 10*time.Millisecond)

	// The big blind collected the folded small blind's chips.
	view, err = actor.View(ctx, "bob")
	require.NoError(t, err)
	for _, p := range view.Players {
		switch p.UserID {
		case "alice":
			assert.Equal(t, 990, p.Stack)
		case "bob":
			assert.Equal(t, 1010, p.Stack)
		}
	}
}

func TestActorTimeoutEmitsNormalActionEvent(t *testing.T) {
	mock := quartz.NewMock(t)
	st := store.NewMemoryStore()
	actor := newTestActor(t, st, mock, 30*time.Second)
	seatTwo(t, actor)
	ctx := context.Background()

	require.NoError(t, actor.StartHand(ctx, "alice"))
	mock.Advance(30 * time.Second).MustWait(ctx)

	require.Eventually(t, func() bool {
		v, err := actor.View(ctx, "alice")
		return err == nil && v.Phase == "complete"
	}, 5*time.Second, 10*time.Millisecond)

	// The synthesized fold is durably logged like any player action.
	all, err := st.LoadEvents(ctx, actor.ID(), 0)
	require.NoError(t, err)
	var folds int
	for _, e := range all {
		if at, ok := e.Payload.(*game.ActionTaken); ok && at.Action == game.Fold {
			folds++
		}
	}
	assert.Equal(t, 1, folds)
}

func TestActorActionCancelsTimer(t *testing.T) {
	mock := quartz.NewMock(t)
	st := store.NewMemoryStore()
	actor := newTestActor(t, st, mock, 30*time.Second)
	seatTwo(t, actor)
	ctx := context.Background()

	require.NoError(t, actor.StartHand(ctx, "alice"))

	// Small blind acts before the deadline; the old timer must not fold
	// anyone once time passes.
	require.NoError(t, actor.Act(ctx, "alice", game.Call, 0))
	mock.Advance(29 * time.Second).MustWait(ctx)
	require.NoError(t, actor.Act(ctx, "bob", game.Check, 0))

	mock.Advance(60 * time.Second).MustWait(ctx)
	require.Eventually(t, func() bool {
		v, err := actor.View(ctx, "alice")
		return err == nil && v.Phase == "complete"
	}, 5*time.Second, 10*time.Millisecond)

	// Both pre-flop actions landed before their deadlines, so any timeout
	// fold can only appear after the flop was revealed.
	all, err := st.LoadEvents(ctx, actor.ID(), 0)
	require.NoError(t, err)
	flopSeen := false
	for _, e := range all {
		if e.Type == game.EventFlopRevealed {
			flopSeen = true
		}
		if at, ok := e.Payload.(*game.ActionTaken); ok && at.Action == game.Fold {
			assert.True(t, flopSeen, "fold before the flop means a stale timer fired")
		}
	}
}

func TestActorStampsTurnDeadline(t *testing.T) {
	mock := quartz.NewMock(t)
	st := store.NewMemoryStore()
	actor := newTestActor(t, st, mock, 30*time.Second)
	seatTwo(t, actor)
	ctx := context.Background()

	start := mock.Now()
	require.NoError(t, actor.StartHand(ctx, "alice"))

	all, err := st.LoadEvents(ctx, actor.ID(), 0)
	require.NoError(t, err)

	var stamped bool
	for _, e := range all {
		if tc, ok := e.Payload.(*game.TurnChanged); ok {
			assert.Equal(t, start.Add(30*time.Second).UnixMilli(), tc.DeadlineMillis)
			assert.Equal(t, start, e.Timestamp)
			stamped = true
		}
	}
	assert.True(t, stamped)
}

func TestSubscribeReplaysThenStreamsLive(t *testing.T) {
	actor := newTestActor(t, store.NewMemoryStore(), quartz.NewReal(), 30*time.Second)
	seatTwo(t, actor)
	ctx := context.Background()

	require.NoError(t, actor.StartHand(ctx, "alice"))

	view, err := actor.View(ctx, "alice")
	require.NoError(t, err)
	seen := view.LastSeq

	ch, cancel, err := actor.Subscribe(ctx, "alice", 0)
	require.NoError(t, err)
	defer cancel()

	replay := drain(t, ch, func(e game.Event) bool { return e.Seq == seen })
	require.Equal(t, seen, replay[len(replay)-1].Seq)
	for i, e := range replay {
		require.Equal(t, int64(i+1), e.Seq, "replay must be gapless from 1")
	}

	// Live continuation carries on from the replay with no gap or overlap.
	require.NoError(t, actor.Act(ctx, "alice", game.Fold, 0))
	live := drain(t, ch, func(e game.Event) bool {
		return e.Type == game.EventHandComplete
	})
	require.NotEmpty(t, live)
	assert.Equal(t, seen+1, live[0].Seq)
	for i := 1; i < len(live); i++ {
		assert.Equal(t, live[i-1].Seq+1, live[i].Seq)
	}
}

func TestSubscribeReplayOverSQLite(t *testing.T) {
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "holdem.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	actor := newTestActor(t, st, quartz.NewReal(), 30*time.Second)
	seatTwo(t, actor)
	ctx := context.Background()

	require.NoError(t, actor.StartHand(ctx, "alice"))
	require.NoError(t, actor.Act(ctx, "alice", game.Fold, 0))

	ch, cancel, err := actor.Subscribe(ctx, "bob", 0)
	require.NoError(t, err)
	defer cancel()

	events := drain(t, ch, func(e game.Event) bool { return e.Type == game.EventHandComplete })
	for i, e := range events {
		require.Equal(t, int64(i+1), e.Seq)
	}
	require.Equal(t, game.EventTableCreated, events[0].Type)
}

func TestSubscribeSinceSkipsOldEvents(t *testing.T) {
	actor := newTestActor(t, store.NewMemoryStore(), quartz.NewReal(), 30*time.Second)
	seatTwo(t, actor)
	ctx := context.Background()

	view, err := actor.View(ctx, "alice")
	require.NoError(t, err)
	since := view.LastSeq

	ch, cancel, err := actor.Subscribe(ctx, "bob", since)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, actor.StartHand(ctx, "alice"))
	events := drain(t, ch, func(e game.Event) bool { return e.Type == game.EventTurnChanged })
	require.NotEmpty(t, events)
	assert.Equal(t, since+1, events[0].Seq)
	assert.Equal(t, game.EventHandStarted, events[0].Type)
}

func TestSubscribeRedactsOtherHoleCards(t *testing.T) {
	actor := newTestActor(t, store.NewMemoryStore(), quartz.NewReal(), 30*time.Second)
	seatTwo(t, actor)
	ctx := context.Background()

	aliceCh, cancelA, err := actor.Subscribe(ctx, "alice", 0)
	require.NoError(t, err)
	defer cancelA()
	watcherCh, cancelW, err := actor.Subscribe(ctx, "watcher", 0)
	require.NoError(t, err)
	defer cancelW()

	require.NoError(t, actor.StartHand(ctx, "alice"))

	checkDeals := func(events []game.Event, viewer string) {
		var deals int
		for _, e := range events {
			hc, ok := e.Payload.(*game.HoleCardsDealt)
			if !ok {
				continue
			}
			deals++
			owner := "alice"
			if hc.Seat == 2 {
				owner = "bob"
			}
			if owner == viewer {
				assert.Len(t, hc.Cards, 2, "own cards visible")
			} else {
				assert.Empty(t, hc.Cards, "%s must not see seat %d cards", viewer, hc.Seat)
			}
		}
		assert.Equal(t, 2, deals)
	}

	checkDeals(drain(t, aliceCh, func(e game.Event) bool { return e.Type == game.EventTurnChanged }), "alice")
	checkDeals(drain(t, watcherCh, func(e game.Event) bool { return e.Type == game.EventTurnChanged }), "watcher")
}

func TestSubscribeReplayRedactsFromLogHistory(t *testing.T) {
	actor := newTestActor(t, store.NewMemoryStore(), quartz.NewReal(), 30*time.Second)
	seatTwo(t, actor)
	ctx := context.Background()

	require.NoError(t, actor.StartHand(ctx, "alice"))

	// Subscribing after the deal replays it; redaction must still hold.
	ch, cancel, err := actor.Subscribe(ctx, "bob", 0)
	require.NoError(t, err)
	defer cancel()

	events := drain(t, ch, func(e game.Event) bool { return e.Type == game.EventTurnChanged })
	for _, e := range events {
		if hc, ok := e.Payload.(*game.HoleCardsDealt); ok {
			if hc.Seat == 2 {
				assert.Len(t, hc.Cards, 2)
			} else {
				assert.Empty(t, hc.Cards)
			}
		}
	}
}

// failingStore drops into failure mode on demand.
type failingStore struct {
	store.Store
	mu   sync.Mutex
	fail bool
}

func (f *failingStore) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func (f *failingStore) AppendEvents(ctx context.Context, tableID string, events []game.Event) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return errors.New("disk gone")
	}
	return f.Store.AppendEvents(ctx, tableID, events)
}

func TestActorFreezesWhenPersistenceFails(t *testing.T) {
	st := &failingStore{Store: store.NewMemoryStore()}
	actor := newTestActor(t, st, quartz.NewReal(), 30*time.Second)
	seatTwo(t, actor)
	ctx := context.Background()

	require.NoError(t, actor.StartHand(ctx, "alice"))

	st.setFail(true)
	err := actor.Act(ctx, "alice", game.Call, 0)
	require.ErrorIs(t, err, game.ErrTableClosed)

	// Frozen means frozen: even after storage recovers, the table stays
	// closed.
	st.setFail(false)
	err = actor.Act(ctx, "bob", game.Check, 0)
	assert.ErrorIs(t, err, game.ErrTableClosed)
}

func TestActorRejectionsAreUnicastNotLogged(t *testing.T) {
	st := store.NewMemoryStore()
	actor := newTestActor(t, st, quartz.NewReal(), 30*time.Second)
	seatTwo(t, actor)
	ctx := context.Background()

	require.NoError(t, actor.StartHand(ctx, "alice"))

	before, err := st.LoadEvents(ctx, actor.ID(), 0)
	require.NoError(t, err)

	err = actor.Act(ctx, "bob", game.Check, 0)
	require.ErrorIs(t, err, game.ErrNotYourTurn)

	var illegal *game.IllegalActionError
	err = actor.Act(ctx, "alice", game.Check, 0)
	require.ErrorAs(t, err, &illegal)

	// A rejected action leaves no trace in the durable log.
	after, err := st.LoadEvents(ctx, actor.ID(), 0)
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))
}

func TestActorSerializesConcurrentJoins(t *testing.T) {
	actor := newTestActor(t, store.NewMemoryStore(), quartz.NewReal(), 30*time.Second)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = actor.Join(ctx, fmt.Sprintf("user-%d", i), 1000)
		}(i)
	}
	wg.Wait()

	joined := 0
	for _, err := range errs {
		if err == nil {
			joined++
		} else {
			assert.ErrorIs(t, err, game.ErrTableFull)
		}
	}
	assert.Equal(t, 6, joined)

	view, err := actor.View(ctx, "")
	require.NoError(t, err)
	assert.Len(t, view.Players, 6)
}

func TestActorStopRejectsFurtherCommands(t *testing.T) {
	actor := newTestActor(t, store.NewMemoryStore(), quartz.NewReal(), 30*time.Second)
	ctx := context.Background()

	require.NoError(t, actor.Join(ctx, "alice", 1000))
	actor.Stop()

	err := actor.Join(ctx, "bob", 1000)
	assert.ErrorIs(t, err, game.ErrTableClosed)
}
