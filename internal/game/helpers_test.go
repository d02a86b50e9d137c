package game

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lox/holdemd/internal/deck"
)

// newTestTable seats the given users with the given stacks. The first
// user owns the table. Buy-ins below the table minimum are applied
// directly to the stack after joining.
func newTestTable(t *testing.T, smallBlind, bigBlind int, stacks map[string]int, users ...string) *Table {
	t.Helper()

	tbl, _, err := NewTable("tbl-test", users[0], 9, smallBlind, bigBlind, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	for _, u := range users {
		_, err := tbl.Join(u, bigBlind*MinBuyInBigBlinds)
		require.NoError(t, err)
		tbl.playerByUser(u).Stack = stacks[u]
	}
	return tbl
}

// stackDeck scripts the next hand's deal.
func stackDeck(tbl *Table, cards ...string) {
	parsed := make([]deck.Card, len(cards))
	for i, s := range cards {
		parsed[i] = deck.MustParse(s)
	}
	tbl.newDeck = func() *deck.Deck { return deck.NewStacked(parsed...) }
}

// requireConserved asserts the universal chip conservation invariant.
func requireConserved(t *testing.T, tbl *Table, totalBuyIns int) {
	t.Helper()
	total := 0
	for _, p := range tbl.Players() {
		total += p.Stack + p.CommittedHand
	}
	require.Equal(t, totalBuyIns, total, "chips created or destroyed")
	require.NotEqual(t, Corrupt, tbl.Phase)
}

// countEvents tallies events of a kind.
func countEvents(events []Event, kind EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == kind {
			n++
		}
	}
	return n
}

// lastTurnSeat returns the seat of the last TurnChanged event, or 0.
func lastTurnSeat(events []Event) int {
	seat := 0
	for _, e := range events {
		if tc, ok := e.Payload.(*TurnChanged); ok {
			seat = tc.Seat
		}
	}
	return seat
}
