// Package evaluator ranks Texas Hold'em hands. Given five to seven cards
// it finds the best five-card hand and produces a totally ordered
// strength key (category plus tiebreakers) suitable for showdown
// comparison and pot splitting.
package evaluator

import (
	"errors"

	"github.com/lox/holdemd/internal/deck"
)

// ErrInsufficientCards is returned when fewer than five cards are supplied.
var ErrInsufficientCards = errors.New("need at least 5 cards to evaluate")

// Category is the hand class, ordered weakest to strongest.
type Category int

const (
	HighCard Category = iota
	Pair
	TwoPair
	Trips
	Straight
	Flush
	FullHouse
	Quads
	StraightFlush
)

// String returns the display name of the category
func (c Category) String() string {
	switch c {
	case HighCard:
		return "High Card"
	case Pair:
		return "Pair"
	case TwoPair:
		return "Two Pair"
	case Trips:
		return "Three of a Kind"
	case Straight:
		return "Straight"
	case Flush:
		return "Flush"
	case FullHouse:
		return "Full House"
	case Quads:
		return "Four of a Kind"
	case StraightFlush:
		return "Straight Flush"
	default:
		return "Unknown"
	}
}

// Strength is a comparable hand-strength key. Two strengths compare by
// category first, then lexicographically on tiebreakers. Within a
// category tiebreakers always have the same length, so equal keys are
// genuine ties. In a wheel straight the ace ranks as one.
type Strength struct {
	Category    Category
	Tiebreakers []deck.Rank
}

// Compare returns -1, 0 or 1 as a sorts before, with or after b.
func Compare(a, b Strength) int {
	if a.Category != b.Category {
		if a.Category < b.Category {
			return -1
		}
		return 1
	}
	for i := range a.Tiebreakers {
		if i >= len(b.Tiebreakers) {
			return 1
		}
		if a.Tiebreakers[i] != b.Tiebreakers[i] {
			if a.Tiebreakers[i] < b.Tiebreakers[i] {
				return -1
			}
			return 1
		}
	}
	if len(b.Tiebreakers) > len(a.Tiebreakers) {
		return -1
	}
	return 0
}

// Evaluate returns the strength of the best five-card hand available in
// the given five to seven cards.
func Evaluate(cards []deck.Card) (Strength, error) {
	if len(cards) < 5 {
		return Strength{}, ErrInsufficientCards
	}
	if len(cards) == 5 {
		return evaluate5(cards), nil
	}

	var best Strength
	have := false
	pick := make([]deck.Card, 5)
	n := len(cards)

	// Enumerate every 5-card selection; at most C(7,5)=21.
	var recurse func(start, depth int)
	recurse = func(start, depth int) {
		if depth == 5 {
			s := evaluate5(pick)
			if !have || Compare(s, best) > 0 {
				best = s
				have = true
			}
			return
		}
		for i := start; i <= n-(5-depth); i++ {
			pick[depth] = cards[i]
			recurse(i+1, depth+1)
		}
	}
	recurse(0, 0)
	return best, nil
}

// evaluate5 ranks exactly five cards.
func evaluate5(cards []deck.Card) Strength {
	var counts [15]int // indexed by rank value 2..14
	flush := true
	for i, c := range cards {
		counts[c.Rank]++
		if i > 0 && c.Suit != cards[0].Suit {
			flush = false
		}
	}

	straightHigh, isStraight := straightHighRank(counts)

	if isStraight && flush {
		return Strength{Category: StraightFlush, Tiebreakers: []deck.Rank{straightHigh}}
	}

	// Group ranks by multiplicity, highest count first, then highest rank.
	var quads, trips, pairs, singles []deck.Rank
	for r := deck.Ace; r >= deck.Two; r-- {
		switch counts[r] {
		case 4:
			quads = append(quads, r)
		case 3:
			trips = append(trips, r)
		case 2:
			pairs = append(pairs, r)
		case 1:
			singles = append(singles, r)
		}
	}

	switch {
	case len(quads) == 1:
		return Strength{Category: Quads, Tiebreakers: append([]deck.Rank{quads[0]}, singles...)}
	case len(trips) == 1 && len(pairs) == 1:
		return Strength{Category: FullHouse, Tiebreakers: []deck.Rank{trips[0], pairs[0]}}
	case flush:
		return Strength{Category: Flush, Tiebreakers: singles}
	case isStraight:
		return Strength{Category: Straight, Tiebreakers: []deck.Rank{straightHigh}}
	case len(trips) == 1:
		return Strength{Category: Trips, Tiebreakers: append([]deck.Rank{trips[0]}, singles...)}
	case len(pairs) == 2:
		return Strength{Category: TwoPair, Tiebreakers: append([]deck.Rank{pairs[0], pairs[1]}, singles...)}
	case len(pairs) == 1:
		return Strength{Category: Pair, Tiebreakers: append([]deck.Rank{pairs[0]}, singles...)}
	default:
		return Strength{Category: HighCard, Tiebreakers: singles}
	}
}

// straightHighRank reports whether five distinct ranks form a straight and
// returns the high card. The wheel A-2-3-4-5 counts with the ace low, so
// its high card is Five and it ranks below every other straight.
func straightHighRank(counts [15]int) (deck.Rank, bool) {
	for r := deck.Ace; r >= deck.Six; r-- {
		run := true
		for i := 0; i < 5; i++ {
			if counts[int(r)-i] != 1 {
				run = false
				break
			}
		}
		if run {
			return r, true
		}
	}
	if counts[deck.Ace] == 1 && counts[deck.Two] == 1 && counts[deck.Three] == 1 &&
		counts[deck.Four] == 1 && counts[deck.Five] == 1 {
		return deck.Five, true
	}
	return 0, false
}
