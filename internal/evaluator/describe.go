package evaluator

import (
	"fmt"

	"github.com/lox/holdemd/internal/deck"
)

// Describe renders a human-readable hand description, e.g.
// "Full House, Queens full of Tens". Presentational only; ordering
// always goes through Compare.
func (s Strength) Describe() string {
	tb := s.Tiebreakers
	switch s.Category {
	case StraightFlush:
		if len(tb) > 0 && tb[0] == deck.Ace {
			return "Royal Flush"
		}
		return fmt.Sprintf("Straight Flush, %s High", rankName(tb, 0))
	case Quads:
		return fmt.Sprintf("Four of a Kind, %s", plural(tb, 0))
	case FullHouse:
		return fmt.Sprintf("Full House, %s full of %s", plural(tb, 0), plural(tb, 1))
	case Flush:
		return fmt.Sprintf("Flush, %s High", rankName(tb, 0))
	case Straight:
		return fmt.Sprintf("Straight, %s High", rankName(tb, 0))
	case Trips:
		return fmt.Sprintf("Three of a Kind, %s", plural(tb, 0))
	case TwoPair:
		return fmt.Sprintf("Two Pair, %s and %s", plural(tb, 0), plural(tb, 1))
	case Pair:
		return fmt.Sprintf("Pair of %s", plural(tb, 0))
	default:
		return fmt.Sprintf("High Card %s", rankName(tb, 0))
	}
}

func rankName(tb []deck.Rank, i int) string {
	if i >= len(tb) {
		return "?"
	}
	return tb[i].Name()
}

func plural(tb []deck.Rank, i int) string {
	if i >= len(tb) {
		return "?"
	}
	if tb[i] == deck.Six {
		return "Sixes"
	}
	return tb[i].Name() + "s"
}
