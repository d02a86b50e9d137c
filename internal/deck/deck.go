package deck

import (
	"errors"
	"math/rand"
)

// ErrDeckExhausted is returned when a draw asks for more cards than remain.
var ErrDeckExhausted = errors.New("deck exhausted")

// Deck is an ordered permutation of the 52-card universe with a cursor
// pointing at the next undealt card. The permutation is fixed at shuffle
// time; draws only advance the cursor, so a deck can be snapshotted and
// restored mid-hand.
type Deck struct {
	cards  [52]Card
	cursor int
}

// ordered returns the 52 cards in catalog order.
func ordered() [52]Card {
	var cards [52]Card
	i := 0
	for suit := Spades; suit <= Clubs; suit++ {
		for rank := Two; rank <= Ace; rank++ {
			cards[i] = Card{Rank: rank, Suit: suit}
			i++
		}
	}
	return cards
}

// NewShuffled builds a full deck and Fisher-Yates shuffles it with the
// supplied rng. The rng is the table's private, seedable source; tests
// pass a fixed seed to reproduce deals.
func NewShuffled(rng *rand.Rand) *Deck {
	d := &Deck{cards: ordered()}
	for i := len(d.cards) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
	return d
}

// NewStacked builds a deck that deals the given cards first, in order,
// followed by the rest of the catalog. Test hook for scripted hands.
func NewStacked(top ...Card) *Deck {
	d := &Deck{}
	seen := make(map[Card]bool, len(top))
	i := 0
	for _, c := range top {
		d.cards[i] = c
		seen[c] = true
		i++
	}
	for _, c := range ordered() {
		if !seen[c] {
			d.cards[i] = c
			i++
		}
	}
	return d
}

// Draw removes the next n cards, advancing the cursor.
func (d *Deck) Draw(n int) ([]Card, error) {
	if n < 0 || d.cursor+n > len(d.cards) {
		return nil, ErrDeckExhausted
	}
	cards := make([]Card, n)
	copy(cards, d.cards[d.cursor:d.cursor+n])
	d.cursor += n
	return cards, nil
}

// Burn discards the next card face-down.
func (d *Deck) Burn() error {
	_, err := d.Draw(1)
	return err
}

// Remaining returns the number of undealt cards.
func (d *Deck) Remaining() int {
	return len(d.cards) - d.cursor
}

// Cursor returns the index of the next undealt card, for snapshots.
func (d *Deck) Cursor() int {
	return d.cursor
}

// Order returns the full permuted order, for snapshots.
func (d *Deck) Order() []Card {
	out := make([]Card, len(d.cards))
	copy(out, d.cards[:])
	return out
}

// Restore rebuilds a deck from a snapshotted order and cursor.
func Restore(order []Card, cursor int) (*Deck, error) {
	if len(order) != 52 {
		return nil, errors.New("deck order must contain exactly 52 cards")
	}
	if cursor < 0 || cursor > 52 {
		return nil, errors.New("deck cursor out of range")
	}
	seen := make(map[Card]bool, 52)
	for _, c := range order {
		if seen[c] {
			return nil, errors.New("duplicate card in deck order")
		}
		seen[c] = true
	}
	d := &Deck{cursor: cursor}
	copy(d.cards[:], order)
	return d, nil
}
