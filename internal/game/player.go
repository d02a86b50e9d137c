package game

import "github.com/lox/holdemd/internal/deck"

// Status is a player's standing within the current hand
type Status int

const (
	Active Status = iota
	Folded
	AllInStatus
	SittingOut
)

// String returns the wire form of the status
func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Folded:
		return "folded"
	case AllInStatus:
		return "allin"
	case SittingOut:
		return "sittingout"
	default:
		return "unknown"
	}
}

// Role marks blind and button positions for the current hand
type Role int

const (
	NoRole Role = iota
	Dealer
	SmallBlind
	BigBlind
)

// String returns the wire form of the role
func (r Role) String() string {
	switch r {
	case Dealer:
		return "dealer"
	case SmallBlind:
		return "smallblind"
	case BigBlind:
		return "bigblind"
	default:
		return "none"
	}
}

// Player is a seated participant. Seat numbers are 1-based and unique per
// table. CommittedRound and CommittedHand track chips moved from the
// stack this betting round and this hand respectively; the pot total is
// always the sum of CommittedHand across seats.
type Player struct {
	Seat           int
	UserID         string
	Stack          int
	CommittedRound int
	CommittedHand  int
	Status         Status
	HasActed       bool
	Role           Role
	HoleCards      []deck.Card

	// DealtIn marks seats that received hole cards this hand; the chip
	// conservation check sums over exactly these seats.
	DealtIn bool

	// Leaving is set when the user leaves mid-hand; the seat is released
	// once the hand completes.
	Leaving bool
}

// commit moves up to amount chips from the stack into the current round's
// committed total, flipping the player all-in when the stack empties.
func (p *Player) commit(amount int) int {
	if amount > p.Stack {
		amount = p.Stack
	}
	p.Stack -= amount
	p.CommittedRound += amount
	p.CommittedHand += amount
	if p.Stack == 0 && p.Status == Active {
		p.Status = AllInStatus
	}
	return amount
}

// inHand reports whether the player still holds cards this hand.
func (p *Player) inHand() bool {
	return p.Status == Active || p.Status == AllInStatus
}
