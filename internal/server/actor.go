package server

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/holdemd/internal/game"
	"github.com/lox/holdemd/internal/store"
)

// persistAttempts bounds the retries of a failed event append before the
// table is frozen.
const persistAttempts = 3

// subscriberBuffer is the per-subscriber event channel capacity. A
// subscriber that falls this far behind is dropped and must resubscribe
// from its last seen sequence.
const subscriberBuffer = 256

// TableActor owns one table. All access goes through its mailbox and is
// executed by a single goroutine, so the table itself never needs locks.
// Events an action produces are persisted before the action is
// acknowledged.
type TableActor struct {
	id          string
	logger      *log.Logger
	clock       quartz.Clock
	store       store.Store
	turnTimeout time.Duration

	table *game.Table // owned by run; never touched outside it

	requests chan request
	timeouts chan int64
	stop     chan struct{}
	done     chan struct{}

	// run-loop state
	turnEpoch    int64
	turnTimer    *quartz.Timer
	turnDeadline time.Time
	subscribers  map[int64]*subscriber
	nextSubID    int64
}

type request struct {
	run   func() (interface{}, error)
	reply chan result
}

type result struct {
	value interface{}
	err   error
}

type subscriber struct {
	userID string
	ch     chan game.Event
}

// NewTableActor wraps a table. Start must be called before use.
func NewTableActor(table *game.Table, st store.Store, logger *log.Logger, clock quartz.Clock, turnTimeout time.Duration) *TableActor {
	return &TableActor{
		id:          table.ID,
		logger:      logger.WithPrefix("table").With("table", table.ID),
		clock:       clock,
		store:       st,
		turnTimeout: turnTimeout,
		table:       table,
		requests:    make(chan request),
		timeouts:    make(chan int64, 8),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		subscribers: make(map[int64]*subscriber),
	}
}

// Start launches the actor goroutine. If deadline is non-zero the table
// was restored mid-turn and the timer resumes against the original
// wall-clock deadline; a deadline already in the past times the turn out
// immediately.
func (a *TableActor) Start(deadline time.Time) {
	go a.run(deadline)
}

// Stop shuts the actor down. Pending requests fail with ErrTableClosed.
func (a *TableActor) Stop() {
	select {
	case <-a.done:
	case a.stop <- struct{}{}:
		<-a.done
	}
}

func (a *TableActor) ID() string { return a.id }

func (a *TableActor) run(deadline time.Time) {
	defer close(a.done)
	defer func() {
		if a.turnTimer != nil {
			a.turnTimer.Stop()
		}
		for id, sub := range a.subscribers {
			close(sub.ch)
			delete(a.subscribers, id)
		}
	}()

	if !deadline.IsZero() && a.table.CurrentTurnSeat != 0 {
		a.resumeTimer(deadline)
	}

	for {
		select {
		case req := <-a.requests:
			value, err := req.run()
			req.reply <- result{value: value, err: err}

		case epoch := <-a.timeouts:
			a.handleTimeout(epoch)

		case <-a.stop:
			return
		}
	}
}

// do runs fn on the actor goroutine and waits for its result.
func (a *TableActor) do(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	req := request{run: fn, reply: make(chan result, 1)}
	select {
	case a.requests <- req:
	case <-a.done:
		return nil, game.ErrTableClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Join seats a user at the table.
func (a *TableActor) Join(ctx context.Context, userID string, buyIn int) error {
	_, err := a.do(ctx, func() (interface{}, error) {
		events, err := a.table.Join(userID, buyIn)
		if err != nil {
			return nil, err
		}
		return nil, a.commit(events)
	})
	return err
}

// Leave releases the user's seat, folding first if the seat holds cards.
func (a *TableActor) Leave(ctx context.Context, userID string) error {
	_, err := a.do(ctx, func() (interface{}, error) {
		events, err := a.table.Leave(userID)
		if err != nil {
			return nil, err
		}
		return nil, a.commit(events)
	})
	return err
}

// StartHand begins a new hand.
func (a *TableActor) StartHand(ctx context.Context, userID string) error {
	_, err := a.do(ctx, func() (interface{}, error) {
		events, err := a.table.StartHand(userID)
		if err != nil {
			return nil, err
		}
		return nil, a.commit(events)
	})
	return err
}

// Act applies a betting action for the user. The acknowledgement is sent
// only after the resulting events are durable.
func (a *TableActor) Act(ctx context.Context, userID string, action game.Action, amount int) error {
	_, err := a.do(ctx, func() (interface{}, error) {
		events, err := a.table.Apply(userID, action, amount)
		if err != nil {
			return nil, err
		}
		return nil, a.commit(events)
	})
	return err
}

// Close permanently closes the table.
func (a *TableActor) Close(ctx context.Context, reason string) error {
	_, err := a.do(ctx, func() (interface{}, error) {
		events := a.table.Close(reason)
		return nil, a.commit(events)
	})
	return err
}

// View projects the table state as seen by userID.
func (a *TableActor) View(ctx context.Context, userID string) (game.PublicState, error) {
	v, err := a.do(ctx, func() (interface{}, error) {
		return a.table.ProjectView(userID), nil
	})
	if err != nil {
		return game.PublicState{}, err
	}
	return v.(game.PublicState), nil
}

// Subscribe streams the table's events to userID, replaying the durable
// log after sinceSeq first and then continuing live with no gap: the
// replay and the registration happen in one actor turn, so no event can
// land between them. Hole cards belonging to other users are withheld.
// The returned cancel func releases the subscription.
func (a *TableActor) Subscribe(ctx context.Context, userID string, sinceSeq int64) (<-chan game.Event, func(), error) {
	type subscription struct {
		id int64
		ch chan game.Event
	}

	v, err := a.do(ctx, func() (interface{}, error) {
		replay, err := a.store.LoadEvents(ctx, a.id, sinceSeq)
		if err != nil {
			return nil, err
		}

		// The channel holds the whole replay plus live headroom so the
		// backlog never blocks the actor.
		sub := &subscriber{userID: userID, ch: make(chan game.Event, len(replay)+subscriberBuffer)}
		seats := make(map[int]string)
		for _, e := range replay {
			sub.ch <- redactForUser(e, ownerOfReplayed(e, seats), userID)
		}

		id := a.nextSubID
		a.nextSubID++
		a.subscribers[id] = sub
		return subscription{id: id, ch: sub.ch}, nil
	})
	if err != nil {
		return nil, nil, err
	}

	sub := v.(subscription)
	cancel := func() {
		_, _ = a.do(context.Background(), func() (interface{}, error) {
			if s, ok := a.subscribers[sub.id]; ok {
				close(s.ch)
				delete(a.subscribers, sub.id)
			}
			return nil, nil
		})
	}
	return sub.ch, cancel, nil
}

// commit makes a batch durable and visible: stamp timestamps and turn
// deadlines, persist, snapshot, fan out to subscribers, manage the turn
// timer. Persistence failure freezes the table; nothing unstored is ever
// acknowledged or delivered.
func (a *TableActor) commit(events []game.Event) error {
	if len(events) == 0 {
		return nil
	}

	now := a.clock.Now()
	armed := false
	for i := range events {
		events[i].Timestamp = now
		if tc, ok := events[i].Payload.(*game.TurnChanged); ok {
			a.turnDeadline = now.Add(a.turnTimeout)
			tc.DeadlineMillis = a.turnDeadline.UnixMilli()
			armed = true
		}
	}

	if err := a.persist(events); err != nil {
		a.logger.Error("persistence failed, freezing table", "error", err)
		a.table.Freeze()
		return game.ErrTableClosed
	}

	for id, sub := range a.subscribers {
		for _, e := range events {
			select {
			case sub.ch <- redactForUser(e, a.ownerOfSeatEvent(e), sub.userID):
				continue
			default:
			}
			// Slow consumer: drop it rather than stall the table. It can
			// resubscribe from its last seen sequence.
			a.logger.Warn("subscriber lagging, dropping", "user", sub.userID)
			close(sub.ch)
			delete(a.subscribers, id)
			break
		}
	}

	switch {
	case armed:
		a.armTimer(a.turnDeadline)
	case a.table.CurrentTurnSeat == 0:
		a.stopTimer()
	}
	return nil
}

func (a *TableActor) persist(events []game.Event) error {
	var err error
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		if err = a.store.AppendEvents(context.Background(), a.id, events); err == nil {
			break
		}
		a.logger.Warn("event append failed", "attempt", attempt, "error", err)
	}
	if err != nil {
		return err
	}

	snap := a.table.Snapshot()
	snap.TurnDeadline = a.turnDeadline
	if a.table.CurrentTurnSeat == 0 {
		snap.TurnDeadline = time.Time{}
	}
	return a.store.SaveSnapshot(context.Background(), snap)
}

func (a *TableActor) armTimer(deadline time.Time) {
	a.stopTimer()
	a.turnEpoch++
	epoch := a.turnEpoch
	a.turnTimer = a.clock.AfterFunc(deadline.Sub(a.clock.Now()), func() {
		select {
		case a.timeouts <- epoch:
		default:
		}
	})
}

func (a *TableActor) resumeTimer(deadline time.Time) {
	a.turnDeadline = deadline
	a.turnEpoch++
	epoch := a.turnEpoch

	remaining := deadline.Sub(a.clock.Now())
	if remaining <= 0 {
		// Deadline elapsed while the process was down.
		select {
		case a.timeouts <- epoch:
		default:
		}
		return
	}
	a.turnTimer = a.clock.AfterFunc(remaining, func() {
		select {
		case a.timeouts <- epoch:
		default:
		}
	})
}

func (a *TableActor) stopTimer() {
	if a.turnTimer != nil {
		a.turnTimer.Stop()
		a.turnTimer = nil
	}
}

// handleTimeout fires the auto-action for an expired turn. A stale epoch
// means the turn already moved on and the timeout is ignored.
func (a *TableActor) handleTimeout(epoch int64) {
	if epoch != a.turnEpoch {
		return
	}
	seat := a.table.CurrentTurnSeat
	if seat == 0 {
		return
	}
	a.logger.Info("turn timed out", "seat", seat)
	events, err := a.table.AutoAction(seat)
	if err != nil {
		a.logger.Error("auto action failed", "seat", seat, "error", err)
		return
	}
	if err := a.commit(events); err != nil {
		a.logger.Error("auto action commit failed", "seat", seat, "error", err)
	}
}

// ownerOfSeatEvent resolves who may see a private event's cards on the
// live path, using the current seat assignment.
func (a *TableActor) ownerOfSeatEvent(e game.Event) string {
	hc, ok := e.Payload.(*game.HoleCardsDealt)
	if !ok {
		return ""
	}
	if p := a.table.Seat(hc.Seat); p != nil {
		return p.UserID
	}
	return ""
}

// ownerOfReplayed resolves private-event ownership during replay by
// tracking seat assignments through the log itself.
func ownerOfReplayed(e game.Event, seats map[int]string) string {
	switch p := e.Payload.(type) {
	case *game.PlayerJoined:
		seats[p.Seat] = p.UserID
	case *game.PlayerLeft:
		delete(seats, p.Seat)
	case *game.HoleCardsDealt:
		return seats[p.Seat]
	}
	return ""
}

// redactForUser withholds another user's hole cards while keeping the
// event envelope, so subscribers still observe a gapless sequence.
func redactForUser(e game.Event, owner, userID string) game.Event {
	if hc, ok := e.Payload.(*game.HoleCardsDealt); ok && owner != userID {
		e.Payload = &game.HoleCardsDealt{Seat: hc.Seat}
	}
	return e
}
