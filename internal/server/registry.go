package server

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/lox/holdemd/internal/game"
	"github.com/lox/holdemd/internal/store"
)

// ErrTableNotFound is returned when a table ID resolves to nothing.
var ErrTableNotFound = errors.New("table not found")

// TableSummary is the lobby-level description of a table.
type TableSummary struct {
	TableID    string `json:"tableId"`
	MaxPlayers int    `json:"maxPlayers"`
	SmallBlind int    `json:"smallBlind"`
	BigBlind   int    `json:"bigBlind"`
	Players    int    `json:"players"`
	Phase      string `json:"phase"`
	HandNumber int64  `json:"handNumber"`
}

// Registry owns the set of live table actors. It creates tables, routes
// by ID and recovers persisted tables on startup.
type Registry struct {
	logger      *log.Logger
	clock       quartz.Clock
	store       store.Store
	turnTimeout time.Duration
	newRand     func() *rand.Rand

	mu     sync.RWMutex
	actors map[string]*TableActor
}

// NewRegistry creates an empty registry. newRand seeds each table's
// shuffle source; production passes a crypto-seeded constructor, tests
// pass a fixed seed.
func NewRegistry(st store.Store, logger *log.Logger, clock quartz.Clock, turnTimeout time.Duration, newRand func() *rand.Rand) *Registry {
	return &Registry{
		logger:      logger.WithPrefix("registry"),
		clock:       clock,
		store:       st,
		turnTimeout: turnTimeout,
		newRand:     newRand,
		actors:      make(map[string]*TableActor),
	}
}

// CreateTable creates a table with a fresh ID, persists its creation
// record and starts its actor.
func (r *Registry) CreateTable(ctx context.Context, owner string, maxPlayers, smallBlind, bigBlind int, autoStart bool) (*TableActor, error) {
	return r.CreateTableWithID(ctx, uuid.NewString(), owner, maxPlayers, smallBlind, bigBlind, autoStart)
}

// CreateTableWithID creates a table under a caller-chosen ID. Config-
// declared tables use their name as the ID so restarts recover them
// instead of creating duplicates.
func (r *Registry) CreateTableWithID(ctx context.Context, id, owner string, maxPlayers, smallBlind, bigBlind int, autoStart bool) (*TableActor, error) {
	r.mu.RLock()
	_, exists := r.actors[id]
	r.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("table %s already exists", id)
	}

	table, events, err := game.NewTable(id, owner, maxPlayers, smallBlind, bigBlind, r.newRand())
	if err != nil {
		return nil, err
	}
	table.AutoStart = autoStart

	now := r.clock.Now()
	for i := range events {
		events[i].Timestamp = now
	}
	if err := r.store.AppendEvents(ctx, id, events); err != nil {
		return nil, fmt.Errorf("persist table creation: %w", err)
	}
	if err := r.store.SaveSnapshot(ctx, table.Snapshot()); err != nil {
		return nil, fmt.Errorf("persist table snapshot: %w", err)
	}

	actor := NewTableActor(table, r.store, r.logger, r.clock, r.turnTimeout)
	r.mu.Lock()
	r.actors[id] = actor
	r.mu.Unlock()
	actor.Start(time.Time{})

	r.logger.Info("table created", "table", id, "owner", owner, "blinds", fmt.Sprintf("%d/%d", smallBlind, bigBlind))
	return actor, nil
}

// Get returns the actor for a table ID.
func (r *Registry) Get(tableID string) (*TableActor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	actor, ok := r.actors[tableID]
	if !ok {
		return nil, ErrTableNotFound
	}
	return actor, nil
}

// List summarizes every live table for the lobby.
func (r *Registry) List(ctx context.Context) []TableSummary {
	r.mu.RLock()
	actors := make([]*TableActor, 0, len(r.actors))
	for _, a := range r.actors {
		actors = append(actors, a)
	}
	r.mu.RUnlock()

	summaries := make([]TableSummary, 0, len(actors))
	for _, a := range actors {
		view, err := a.View(ctx, "")
		if err != nil {
			continue
		}
		summaries = append(summaries, TableSummary{
			TableID:    view.TableID,
			MaxPlayers: view.MaxPlayers,
			SmallBlind: view.SmallBlind,
			BigBlind:   view.BigBlind,
			Players:    len(view.Players),
			Phase:      view.Phase,
			HandNumber: view.HandNumber,
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].TableID < summaries[j].TableID })
	return summaries
}

// Recover restores every persisted table from its snapshot. Tables that
// were mid-turn resume their original wall-clock deadline, so a timeout
// that elapsed during downtime fires immediately.
func (r *Registry) Recover(ctx context.Context) error {
	ids, err := r.store.TableIDs(ctx)
	if err != nil {
		return fmt.Errorf("list persisted tables: %w", err)
	}

	for _, id := range ids {
		snap, err := r.store.LoadSnapshot(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("persisted table has no snapshot, skipping", "table", id)
			continue
		}
		if err != nil {
			return fmt.Errorf("load snapshot for %s: %w", id, err)
		}

		table, err := game.RestoreTable(snap, r.newRand())
		if err != nil {
			return fmt.Errorf("restore table %s: %w", id, err)
		}
		if table.Phase == game.Frozen || table.Phase == game.Corrupt {
			r.logger.Warn("skipping closed table", "table", id, "phase", table.Phase)
			continue
		}

		actor := NewTableActor(table, r.store, r.logger, r.clock, r.turnTimeout)
		r.mu.Lock()
		r.actors[id] = actor
		r.mu.Unlock()
		actor.Start(snap.TurnDeadline)
		r.logger.Info("table recovered", "table", id, "phase", table.Phase, "hand", table.HandNumber)
	}
	return nil
}

// StopAll stops every actor. Snapshots are already durable; this just
// quiesces the goroutines.
func (r *Registry) StopAll() {
	r.mu.Lock()
	actors := r.actors
	r.actors = make(map[string]*TableActor)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, a := range actors {
		wg.Add(1)
		go func(a *TableActor) {
			defer wg.Done()
			a.Stop()
		}(a)
	}
	wg.Wait()
}
