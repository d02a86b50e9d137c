package deck

import "fmt"

// Suit represents a card suit
type Suit int

const (
	Spades Suit = iota
	Hearts
	Diamonds
	Clubs
)

// String returns the display glyph for the suit
func (s Suit) String() string {
	switch s {
	case Spades:
		return "♠"
	case Hearts:
		return "♥"
	case Diamonds:
		return "♦"
	case Clubs:
		return "♣"
	default:
		return "?"
	}
}

// letter returns the ASCII wire form of the suit
func (s Suit) letter() byte {
	switch s {
	case Spades:
		return 's'
	case Hearts:
		return 'h'
	case Diamonds:
		return 'd'
	case Clubs:
		return 'c'
	default:
		return '?'
	}
}

// Rank represents a card rank, Two through Ace (aces high)
type Rank int

const (
	Two Rank = iota + 2
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

var rankChars = map[Rank]byte{
	Two: '2', Three: '3', Four: '4', Five: '5', Six: '6', Seven: '7',
	Eight: '8', Nine: '9', Ten: 'T', Jack: 'J', Queen: 'Q', King: 'K', Ace: 'A',
}

// String returns the single-character rank form (T for ten)
func (r Rank) String() string {
	if c, ok := rankChars[r]; ok {
		return string(c)
	}
	return "?"
}

// Name returns the spelled-out rank used in hand descriptions
func (r Rank) Name() string {
	switch r {
	case Two:
		return "Two"
	case Three:
		return "Three"
	case Four:
		return "Four"
	case Five:
		return "Five"
	case Six:
		return "Six"
	case Seven:
		return "Seven"
	case Eight:
		return "Eight"
	case Nine:
		return "Nine"
	case Ten:
		return "Ten"
	case Jack:
		return "Jack"
	case Queen:
		return "Queen"
	case King:
		return "King"
	case Ace:
		return "Ace"
	default:
		return "?"
	}
}

// Card is one of the 52 rank/suit combinations
type Card struct {
	Rank Rank
	Suit Suit
}

// String returns the display form of a card (e.g. "A♠")
func (c Card) String() string {
	return fmt.Sprintf("%s%s", c.Rank, c.Suit)
}

// MarshalText encodes the card in compact ASCII form (e.g. "As", "Td")
func (c Card) MarshalText() ([]byte, error) {
	rc, ok := rankChars[c.Rank]
	if !ok {
		return nil, fmt.Errorf("invalid rank %d", c.Rank)
	}
	return []byte{rc, c.Suit.letter()}, nil
}

// UnmarshalText decodes the compact ASCII form
func (c *Card) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Parse decodes a card from its compact ASCII form ("As", "Td", "9h")
func Parse(s string) (Card, error) {
	if len(s) != 2 {
		return Card{}, fmt.Errorf("invalid card %q", s)
	}

	var rank Rank
	found := false
	for r, ch := range rankChars {
		if ch == s[0] {
			rank = r
			found = true
			break
		}
	}
	if !found {
		return Card{}, fmt.Errorf("invalid rank in card %q", s)
	}

	var suit Suit
	switch s[1] {
	case 's':
		suit = Spades
	case 'h':
		suit = Hearts
	case 'd':
		suit = Diamonds
	case 'c':
		suit = Clubs
	default:
		return Card{}, fmt.Errorf("invalid suit in card %q", s)
	}

	return Card{Rank: rank, Suit: suit}, nil
}

// MustParse is Parse that panics on bad input; for tests and fixtures.
func MustParse(s string) Card {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}
