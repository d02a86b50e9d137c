package game

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/lox/holdemd/internal/deck"
)

// PlayerSnapshot is the durable form of a seated player.
type PlayerSnapshot struct {
	Seat           int         `json:"seat"`
	UserID         string      `json:"userId"`
	Stack          int         `json:"stack"`
	CommittedRound int         `json:"committedRound"`
	CommittedHand  int         `json:"committedHand"`
	Status         Status      `json:"status"`
	HasActed       bool        `json:"hasActed"`
	Role           Role        `json:"role"`
	HoleCards      []deck.Card `json:"holeCards,omitempty"`
	DealtIn        bool        `json:"dealtIn"`
	Leaving        bool        `json:"leaving"`
}

// Snapshot is the full durable state of a table, including the permuted
// deck order and cursor so a restored table continues the same hand. The
// turn deadline is owned by the dispatcher and carried along so a restart
// honors the wall-clock-absolute timeout.
type Snapshot struct {
	TableID            string           `json:"tableId"`
	Owner              string           `json:"owner"`
	MaxPlayers         int              `json:"maxPlayers"`
	SmallBlind         int              `json:"smallBlind"`
	BigBlind           int              `json:"bigBlind"`
	AutoStart          bool             `json:"autoStart"`
	Phase              Phase            `json:"phase"`
	DealerSeat         int              `json:"dealerSeat"`
	HandNumber         int64            `json:"handNumber"`
	CurrentBet         int              `json:"currentBet"`
	LastRaiseIncrement int              `json:"lastRaiseIncrement"`
	CurrentTurnSeat    int              `json:"currentTurnSeat"`
	Community          []deck.Card      `json:"community,omitempty"`
	Players            []PlayerSnapshot `json:"players"`
	DeckOrder          []deck.Card      `json:"deckOrder,omitempty"`
	DeckCursor         int              `json:"deckCursor"`
	Burned             int              `json:"burned"`
	NextSeq            int64            `json:"nextSeq"`
	HandBankroll       int              `json:"handBankroll"`
	TurnDeadline       time.Time        `json:"turnDeadline,omitempty"`
}

// Snapshot captures the table's complete state.
func (t *Table) Snapshot() *Snapshot {
	snap := &Snapshot{
		TableID:            t.ID,
		Owner:              t.Owner,
		MaxPlayers:         t.MaxPlayers,
		SmallBlind:         t.SmallBlind,
		BigBlind:           t.BigBlind,
		AutoStart:          t.AutoStart,
		Phase:              t.Phase,
		DealerSeat:         t.DealerSeat,
		HandNumber:         t.HandNumber,
		CurrentBet:         t.CurrentBet,
		LastRaiseIncrement: t.LastRaiseIncrement,
		CurrentTurnSeat:    t.CurrentTurnSeat,
		Community:          append([]deck.Card(nil), t.Community...),
		Burned:             t.burned,
		NextSeq:            t.nextSeq,
		HandBankroll:       t.handBankroll,
	}
	if t.deck != nil {
		snap.DeckOrder = t.deck.Order()
		snap.DeckCursor = t.deck.Cursor()
	}
	for _, p := range t.Players() {
		snap.Players = append(snap.Players, PlayerSnapshot{
			Seat:           p.Seat,
			UserID:         p.UserID,
			Stack:          p.Stack,
			CommittedRound: p.CommittedRound,
			CommittedHand:  p.CommittedHand,
			Status:         p.Status,
			HasActed:       p.HasActed,
			Role:           p.Role,
			HoleCards:      append([]deck.Card(nil), p.HoleCards...),
			DealtIn:        p.DealtIn,
			Leaving:        p.Leaving,
		})
	}
	return snap
}

// RestoreTable rehydrates a table from a snapshot. The rng seeds future
// shuffles; the in-flight hand, if any, continues from the snapshotted
// deck order.
func RestoreTable(snap *Snapshot, rng *rand.Rand) (*Table, error) {
	t := &Table{
		ID:                 snap.TableID,
		Owner:              snap.Owner,
		MaxPlayers:         snap.MaxPlayers,
		SmallBlind:         snap.SmallBlind,
		BigBlind:           snap.BigBlind,
		AutoStart:          snap.AutoStart,
		Phase:              snap.Phase,
		DealerSeat:         snap.DealerSeat,
		HandNumber:         snap.HandNumber,
		CurrentBet:         snap.CurrentBet,
		LastRaiseIncrement: snap.LastRaiseIncrement,
		CurrentTurnSeat:    snap.CurrentTurnSeat,
		Community:          append([]deck.Card(nil), snap.Community...),
		players:            make(map[int]*Player, len(snap.Players)),
		burned:             snap.Burned,
		rng:                rng,
		nextSeq:            snap.NextSeq,
		handBankroll:       snap.HandBankroll,
	}
	if t.nextSeq < 1 {
		return nil, fmt.Errorf("snapshot has invalid next sequence %d", snap.NextSeq)
	}
	if len(snap.DeckOrder) > 0 {
		d, err := deck.Restore(snap.DeckOrder, snap.DeckCursor)
		if err != nil {
			return nil, err
		}
		t.deck = d
	}
	for _, ps := range snap.Players {
		if ps.Seat < 1 || ps.Seat > t.MaxPlayers {
			return nil, fmt.Errorf("snapshot seat %d out of range", ps.Seat)
		}
		if _, dup := t.players[ps.Seat]; dup {
			return nil, fmt.Errorf("snapshot has duplicate seat %d", ps.Seat)
		}
		t.players[ps.Seat] = &Player{
			Seat:           ps.Seat,
			UserID:         ps.UserID,
			Stack:          ps.Stack,
			CommittedRound: ps.CommittedRound,
			CommittedHand:  ps.CommittedHand,
			Status:         ps.Status,
			HasActed:       ps.HasActed,
			Role:           ps.Role,
			HoleCards:      append([]deck.Card(nil), ps.HoleCards...),
			DealtIn:        ps.DealtIn,
			Leaving:        ps.Leaving,
		}
	}
	return t, nil
}
