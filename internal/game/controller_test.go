package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/holdemd/internal/deck"
)

func TestHeadsUpBigBlindWinsOnFold(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t, 10, 20, map[string]int{"alice": 1000, "bob": 1000}, "alice", "bob")

	events, err := tbl.StartHand("alice")
	require.NoError(t, err)

	// First hand rotates the button to seat 1; heads-up the button posts
	// the small blind and acts first pre-flop.
	assert.Equal(t, 1, tbl.DealerSeat)
	assert.Equal(t, SmallBlind, tbl.Seat(1).Role)
	assert.Equal(t, BigBlind, tbl.Seat(2).Role)
	assert.Equal(t, 1, tbl.CurrentTurnSeat)

	events, err = tbl.Apply("alice", Fold, 0)
	require.NoError(t, err)

	assert.Equal(t, Complete, tbl.Phase)
	assert.Equal(t, 990, tbl.Seat(1).Stack)
	assert.Equal(t, 1010, tbl.Seat(2).Stack)
	assert.Equal(t, 1, countEvents(events, EventActionTaken))
	assert.Equal(t, 1, countEvents(events, EventHandComplete))
	assert.Zero(t, countEvents(events, EventFlopRevealed))
	assert.Zero(t, countEvents(events, EventShowdown))
	requireConserved(t, tbl, 2000)
}

func TestThreePlayerShowdownToRiver(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t, 10, 20,
		map[string]int{"alice": 500, "bob": 500, "carol": 500},
		"alice", "bob", "carol")

	// Dealer is seat 1, so hole cards go out to seats 2, 3, 1 in two
	// passes, then burn/flop/burn/turn/burn/river.
	stackDeck(tbl,
		"9h", "2c", "As",
		"9d", "7d", "Ks",
		"2d", "Qs", "Js", "2s",
		"3c", "5h",
		"4c", "3d")

	_, err := tbl.StartHand("alice")
	require.NoError(t, err)

	require.Equal(t, []deck.Card{deck.MustParse("As"), deck.MustParse("Ks")}, tbl.Seat(1).HoleCards)
	require.Equal(t, []deck.Card{deck.MustParse("9h"), deck.MustParse("9d")}, tbl.Seat(2).HoleCards)
	require.Equal(t, 1, tbl.CurrentTurnSeat)

	_, err = tbl.Apply("alice", Raise, 60)
	require.NoError(t, err)
	assert.Equal(t, 440, tbl.Seat(1).Stack)
	assert.Equal(t, 60, tbl.Seat(1).CommittedRound)

	_, err = tbl.Apply("bob", Call, 0)
	require.NoError(t, err)

	flopEvents, err := tbl.Apply("carol", Fold, 0)
	require.NoError(t, err)
	require.Equal(t, Flop, tbl.Phase)
	require.Equal(t,
		[]deck.Card{deck.MustParse("Qs"), deck.MustParse("Js"), deck.MustParse("2s")},
		tbl.Community)
	// Post-flop action starts left of the dealer.
	require.Equal(t, 2, lastTurnSeat(flopEvents))

	var final []Event
	for _, street := range []Phase{Turn, River, Complete} {
		_, err = tbl.Apply("bob", Check, 0)
		require.NoError(t, err)
		final, err = tbl.Apply("alice", Check, 0)
		require.NoError(t, err)
		require.Equal(t, street, tbl.Phase)
	}

	require.Equal(t, 1, countEvents(final, EventShowdown))
	var sd *Showdown
	for _, e := range final {
		if p, ok := e.Payload.(*Showdown); ok {
			sd = p
		}
	}
	require.NotNil(t, sd)
	assert.Equal(t, map[int]int{1: 140}, sd.Payouts)
	for _, h := range sd.Hands {
		if h.Seat == 1 {
			assert.Equal(t, "Flush, Ace High", h.Description)
		}
	}

	assert.Equal(t, 580, tbl.Seat(1).Stack)
	assert.Equal(t, 440, tbl.Seat(2).Stack)
	assert.Equal(t, 480, tbl.Seat(3).Stack)
	requireConserved(t, tbl, 1500)
}

func TestSidePotWithOneAllIn(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t, 5, 10,
		map[string]int{"alice": 50, "bob": 500, "carol": 500},
		"alice", "bob", "carol")

	stackDeck(tbl,
		"Ks", "Qs", "Ah",
		"Kd", "Qd", "Ad",
		"2h", "2c", "7d", "9h",
		"4s", "3s",
		"6h", "5d")

	_, err := tbl.StartHand("alice")
	require.NoError(t, err)
	require.Equal(t, 1, tbl.CurrentTurnSeat)

	_, err = tbl.Apply("alice", AllIn, 0)
	require.NoError(t, err)
	assert.Equal(t, AllInStatus, tbl.Seat(1).Status)
	assert.Equal(t, 50, tbl.CurrentBet)

	_, err = tbl.Apply("bob", Call, 0)
	require.NoError(t, err)
	_, err = tbl.Apply("carol", Raise, 200)
	require.NoError(t, err)
	_, err = tbl.Apply("bob", Call, 0)
	require.NoError(t, err)

	require.Equal(t, Flop, tbl.Phase)

	var final []Event
	for tbl.Phase != Complete {
		_, err = tbl.Apply("bob", Check, 0)
		require.NoError(t, err)
		final, err = tbl.Apply("carol", Check, 0)
		require.NoError(t, err)
	}

	var sd *Showdown
	for _, e := range final {
		if p, ok := e.Payload.(*Showdown); ok {
			sd = p
		}
	}
	require.NotNil(t, sd)

	// Main pot 3x50 for everyone, side pot 2x150 for the big stacks.
	require.Len(t, sd.Pots, 2)
	assert.Equal(t, PotResult{Amount: 150, Eligible: []int{1, 2, 3}, Winners: []int{1}}, sd.Pots[0])
	assert.Equal(t, PotResult{Amount: 300, Eligible: []int{2, 3}, Winners: []int{2}}, sd.Pots[1])
	assert.Equal(t, map[int]int{1: 150, 2: 300}, sd.Payouts)

	assert.Equal(t, 150, tbl.Seat(1).Stack)
	assert.Equal(t, 600, tbl.Seat(2).Stack)
	assert.Equal(t, 300, tbl.Seat(3).Stack)
	requireConserved(t, tbl, 1050)
}

func TestAutoActionFoldsWhenCheckIllegal(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t, 10, 20, map[string]int{"alice": 1000, "bob": 1000}, "alice", "bob")
	_, err := tbl.StartHand("alice")
	require.NoError(t, err)

	// Small blind owes chips pre-flop, so the synthesized action folds.
	events, err := tbl.AutoAction(1)
	require.NoError(t, err)

	require.Equal(t, 1, countEvents(events, EventActionTaken))
	for _, e := range events {
		if at, ok := e.Payload.(*ActionTaken); ok {
			assert.Equal(t, Fold, at.Action)
			assert.Equal(t, 1, at.Seat)
		}
	}
	assert.Equal(t, Complete, tbl.Phase)
	assert.Equal(t, 1010, tbl.Seat(2).Stack)
}

func TestAutoActionChecksWhenLegal(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t, 10, 20, map[string]int{"alice": 1000, "bob": 1000}, "alice", "bob")
	_, err := tbl.StartHand("alice")
	require.NoError(t, err)

	_, err = tbl.Apply("alice", Call, 0)
	require.NoError(t, err)

	// Big blind's option: nothing to call, so the timeout checks.
	events, err := tbl.AutoAction(2)
	require.NoError(t, err)
	for _, e := range events {
		if at, ok := e.Payload.(*ActionTaken); ok {
			assert.Equal(t, Check, at.Action)
		}
	}
	assert.Equal(t, Flop, tbl.Phase)
}

func TestBigBlindGetsOption(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t, 10, 20,
		map[string]int{"alice": 500, "bob": 500, "carol": 500},
		"alice", "bob", "carol")
	_, err := tbl.StartHand("alice")
	require.NoError(t, err)

	// Everyone limps; the big blind still gets to act before the flop.
	_, err = tbl.Apply("alice", Call, 0)
	require.NoError(t, err)
	_, err = tbl.Apply("bob", Call, 0)
	require.NoError(t, err)
	require.Equal(t, PreFlop, tbl.Phase)
	require.Equal(t, 3, tbl.CurrentTurnSeat)

	_, err = tbl.Apply("carol", Check, 0)
	require.NoError(t, err)
	assert.Equal(t, Flop, tbl.Phase)
}

func TestActionLegality(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t, 10, 20,
		map[string]int{"alice": 500, "bob": 500, "carol": 500},
		"alice", "bob", "carol")
	_, err := tbl.StartHand("alice")
	require.NoError(t, err)
	require.Equal(t, 1, tbl.CurrentTurnSeat)

	// Out of turn.
	_, err = tbl.Apply("bob", Call, 0)
	assert.ErrorIs(t, err, ErrNotYourTurn)

	// Check facing a bet.
	_, err = tbl.Apply("alice", Check, 0)
	var illegal *IllegalActionError
	assert.ErrorAs(t, err, &illegal)

	// Raise below the minimum without being all-in.
	_, err = tbl.Apply("alice", Raise, 30)
	assert.ErrorAs(t, err, &illegal)

	// Raise beyond the stack.
	_, err = tbl.Apply("alice", Raise, 600)
	assert.ErrorIs(t, err, ErrInsufficientChips)

	// Rejected actions must not have mutated anything.
	assert.Equal(t, 500, tbl.Seat(1).Stack)
	assert.Equal(t, 0, tbl.Seat(1).CommittedRound)
	assert.Equal(t, 20, tbl.CurrentBet)
	assert.Equal(t, 1, tbl.CurrentTurnSeat)

	// A raise for the entire stack is accepted and leaves the seat all-in.
	_, err = tbl.Apply("alice", Raise, 500)
	require.NoError(t, err)
	assert.Equal(t, AllInStatus, tbl.Seat(1).Status)
	assert.Equal(t, 500, tbl.CurrentBet)
}

func TestShortAllInDoesNotReopenAction(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t, 10, 20,
		map[string]int{"alice": 1000, "bob": 1000, "carol": 120},
		"alice", "bob", "carol")
	_, err := tbl.StartHand("alice")
	require.NoError(t, err)

	_, err = tbl.Apply("alice", Raise, 100)
	require.NoError(t, err)
	assert.Equal(t, 80, tbl.LastRaiseIncrement)

	_, err = tbl.Apply("bob", Call, 0)
	require.NoError(t, err)

	// Carol's raise to 120 is her whole stack, short of a full raise:
	// the bet to call rises but the raise increment does not, and prior
	// actors stay acted.
	events, err := tbl.Apply("carol", Raise, 120)
	require.NoError(t, err)
	assert.Equal(t, 120, tbl.CurrentBet)
	assert.Equal(t, 80, tbl.LastRaiseIncrement)
	assert.True(t, tbl.Seat(1).HasActed)
	assert.True(t, tbl.Seat(2).HasActed)

	// Alice owes 20 more so she acts again, but cannot raise below the
	// original minimum.
	require.Equal(t, 1, lastTurnSeat(events))
	_, err = tbl.Apply("alice", Raise, 150)
	var illegal *IllegalActionError
	assert.ErrorAs(t, err, &illegal)

	_, err = tbl.Apply("alice", Call, 0)
	require.NoError(t, err)
	_, err = tbl.Apply("bob", Call, 0)
	require.NoError(t, err)
	assert.Equal(t, Flop, tbl.Phase)
	requireConserved(t, tbl, 2120)
}

func TestFullAllInReopensAction(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t, 10, 20,
		map[string]int{"alice": 1000, "bob": 1000, "carol": 300},
		"alice", "bob", "carol")
	_, err := tbl.StartHand("alice")
	require.NoError(t, err)

	_, err = tbl.Apply("alice", Raise, 100)
	require.NoError(t, err)
	_, err = tbl.Apply("bob", Call, 0)
	require.NoError(t, err)

	// 300 total is a full raise over 100; betting reopens.
	_, err = tbl.Apply("carol", AllIn, 0)
	require.NoError(t, err)
	assert.Equal(t, 300, tbl.CurrentBet)
	assert.Equal(t, 200, tbl.LastRaiseIncrement)
	assert.False(t, tbl.Seat(1).HasActed)
	assert.False(t, tbl.Seat(2).HasActed)
}

func TestAllInRunoutDealsRemainingStreets(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t, 10, 20, map[string]int{"alice": 500, "bob": 500}, "alice", "bob")
	_, err := tbl.StartHand("alice")
	require.NoError(t, err)

	_, err = tbl.Apply("alice", AllIn, 0)
	require.NoError(t, err)
	events, err := tbl.Apply("bob", Call, 0)
	require.NoError(t, err)

	// Both players all-in (or matched): the board runs out with no
	// further betting.
	assert.Equal(t, Complete, tbl.Phase)
	assert.Len(t, tbl.Community, 5)
	assert.Equal(t, 1, countEvents(events, EventFlopRevealed))
	assert.Equal(t, 1, countEvents(events, EventTurnRevealed))
	assert.Equal(t, 1, countEvents(events, EventRiverRevealed))
	assert.Equal(t, 1, countEvents(events, EventShowdown))
	assert.Zero(t, countEvents(events, EventTurnChanged))
	requireConserved(t, tbl, 1000)
}

func TestLeaveMidHandAutoFoldsAndReleasesSeat(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t, 10, 20,
		map[string]int{"alice": 500, "bob": 500, "carol": 500},
		"alice", "bob", "carol")
	_, err := tbl.StartHand("alice")
	require.NoError(t, err)
	require.Equal(t, 1, tbl.CurrentTurnSeat)

	// Carol (big blind) leaves while it is not her turn: immediate fold,
	// seat held until the hand completes.
	events, err := tbl.Leave("carol")
	require.NoError(t, err)
	assert.Equal(t, Folded, tbl.Seat(3).Status)
	assert.Equal(t, 1, countEvents(events, EventActionTaken))
	assert.Equal(t, 1, tbl.CurrentTurnSeat, "acting seat must not move on an out-of-turn fold")

	_, err = tbl.Apply("alice", Call, 0)
	require.NoError(t, err)
	_, err = tbl.Apply("bob", Call, 0)
	require.NoError(t, err)
	require.Equal(t, Flop, tbl.Phase)

	var final []Event
	for tbl.Phase != Complete {
		_, err = tbl.Apply("bob", Check, 0)
		require.NoError(t, err)
		final, err = tbl.Apply("alice", Check, 0)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, countEvents(final, EventPlayerLeft))
	assert.Nil(t, tbl.Seat(3))
}

func TestStartHandValidation(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t, 10, 20, map[string]int{"alice": 500, "bob": 500}, "alice", "bob")

	// Only the owner may start when auto-start is off.
	_, err := tbl.StartHand("bob")
	var illegal *IllegalActionError
	assert.ErrorAs(t, err, &illegal)

	tbl.AutoStart = true
	_, err = tbl.StartHand("bob")
	require.NoError(t, err)

	// Mid-hand restarts are rejected.
	_, err = tbl.StartHand("alice")
	assert.ErrorIs(t, err, ErrTableInProgress)
}

func TestStartHandNeedsTwoFundedPlayers(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t, 10, 20, map[string]int{"alice": 500, "bob": 0}, "alice", "bob")

	_, err := tbl.StartHand("alice")
	var illegal *IllegalActionError
	assert.ErrorAs(t, err, &illegal)
}

func TestDealerButtonRotates(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t, 10, 20,
		map[string]int{"alice": 500, "bob": 500, "carol": 500},
		"alice", "bob", "carol")

	playHandToFoldWin := func() {
		_, err := tbl.StartHand("alice")
		require.NoError(t, err)
		for tbl.Phase != Complete {
			seat := tbl.CurrentTurnSeat
			_, err := tbl.AutoAction(seat)
			require.NoError(t, err)
		}
	}

	playHandToFoldWin()
	first := tbl.DealerSeat
	playHandToFoldWin()
	assert.Equal(t, first%3+1, tbl.DealerSeat)
}

func TestEventSequencingIsStrictlyIncreasing(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t, 10, 20, map[string]int{"alice": 500, "bob": 500}, "alice", "bob")

	var all []Event
	events, err := tbl.StartHand("alice")
	require.NoError(t, err)
	all = append(all, events...)

	events, err = tbl.Apply("alice", Fold, 0)
	require.NoError(t, err)
	all = append(all, events...)

	for i := 1; i < len(all); i++ {
		require.Equal(t, all[i-1].Seq+1, all[i].Seq, "gap or reorder at index %d", i)
	}
	assert.Equal(t, all[len(all)-1].Seq+1, tbl.NextSeq())
}

func TestDeckConservation(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t, 10, 20,
		map[string]int{"alice": 500, "bob": 500, "carol": 500},
		"alice", "bob", "carol")
	_, err := tbl.StartHand("alice")
	require.NoError(t, err)

	_, err = tbl.Apply("alice", AllIn, 0)
	require.NoError(t, err)
	_, err = tbl.Apply("bob", AllIn, 0)
	require.NoError(t, err)
	_, err = tbl.Apply("carol", AllIn, 0)
	require.NoError(t, err)
	require.Equal(t, Complete, tbl.Phase)

	// remaining + community + hole cards + burns == 52
	assert.Equal(t, 52, tbl.deck.Remaining()+len(tbl.Community)+2*3+tbl.burned)
}
