package game

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lox/holdemd/internal/deck"
)

// EventType identifies the payload shape of an event
type EventType string

const (
	EventTableCreated   EventType = "table_created"
	EventPlayerJoined   EventType = "player_joined"
	EventPlayerLeft     EventType = "player_left"
	EventHandStarted    EventType = "hand_started"
	EventHoleCardsDealt EventType = "hole_cards_dealt"
	EventBlindPosted    EventType = "blind_posted"
	EventActionTaken    EventType = "action_taken"
	EventTurnChanged    EventType = "turn_changed"
	EventFlopRevealed   EventType = "flop_revealed"
	EventTurnRevealed   EventType = "turn_revealed"
	EventRiverRevealed  EventType = "river_revealed"
	EventShowdown       EventType = "showdown"
	EventHandComplete   EventType = "hand_complete"
	EventTableClosed    EventType = "table_closed"
	EventTableCorrupt   EventType = "table_corrupt"
)

// Payload is the typed body of an event. The set of implementations is
// closed; persistence and consumers rely on the shape being exhaustive
// per kind.
type Payload interface {
	Kind() EventType
}

// Event is one append-only record in a table's log. Sequence numbers
// strictly increase per table; consumers dedupe on them.
type Event struct {
	Seq       int64
	Hand      int64
	Type      EventType
	Timestamp time.Time
	Payload   Payload
}

type eventJSON struct {
	Seq       int64           `json:"seq"`
	Hand      int64           `json:"hand"`
	Type      EventType       `json:"kind"`
	Timestamp time.Time       `json:"ts"`
	Payload   json.RawMessage `json:"payload"`
}

// MarshalJSON encodes the envelope with the payload inline
func (e Event) MarshalJSON() ([]byte, error) {
	body, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(eventJSON{
		Seq:       e.Seq,
		Hand:      e.Hand,
		Type:      e.Type,
		Timestamp: e.Timestamp,
		Payload:   body,
	})
}

// UnmarshalJSON decodes the envelope, resolving the payload type from kind
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	payload, err := newPayload(raw.Type)
	if err != nil {
		return err
	}
	if len(raw.Payload) > 0 {
		if err := json.Unmarshal(raw.Payload, payload); err != nil {
			return err
		}
	}
	e.Seq = raw.Seq
	e.Hand = raw.Hand
	e.Type = raw.Type
	e.Timestamp = raw.Timestamp
	e.Payload = payload
	return nil
}

func newPayload(kind EventType) (Payload, error) {
	switch kind {
	case EventTableCreated:
		return &TableCreated{}, nil
	case EventPlayerJoined:
		return &PlayerJoined{}, nil
	case EventPlayerLeft:
		return &PlayerLeft{}, nil
	case EventHandStarted:
		return &HandStarted{}, nil
	case EventHoleCardsDealt:
		return &HoleCardsDealt{}, nil
	case EventBlindPosted:
		return &BlindPosted{}, nil
	case EventActionTaken:
		return &ActionTaken{}, nil
	case EventTurnChanged:
		return &TurnChanged{}, nil
	case EventFlopRevealed:
		return &FlopRevealed{}, nil
	case EventTurnRevealed:
		return &TurnRevealed{}, nil
	case EventRiverRevealed:
		return &RiverRevealed{}, nil
	case EventShowdown:
		return &Showdown{}, nil
	case EventHandComplete:
		return &HandComplete{}, nil
	case EventTableClosed:
		return &TableClosed{}, nil
	case EventTableCorrupt:
		return &TableCorrupt{}, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
}

// TableCreated opens a table's event log
type TableCreated struct {
	TableID    string `json:"tableId"`
	Owner      string `json:"owner"`
	MaxPlayers int    `json:"maxPlayers"`
	SmallBlind int    `json:"smallBlind"`
	BigBlind   int    `json:"bigBlind"`
}

func (*TableCreated) Kind() EventType { return EventTableCreated }

// PlayerJoined records a buy-in at a seat
type PlayerJoined struct {
	Seat   int    `json:"seat"`
	UserID string `json:"userId"`
	BuyIn  int    `json:"buyIn"`
}

func (*PlayerJoined) Kind() EventType { return EventPlayerJoined }

// PlayerLeft records a seat being released
type PlayerLeft struct {
	Seat   int    `json:"seat"`
	UserID string `json:"userId"`
}

func (*PlayerLeft) Kind() EventType { return EventPlayerLeft }

// HandStarted records the dealt positions for a new hand
type HandStarted struct {
	DealerSeat int   `json:"dealerSeat"`
	SmallBlind int   `json:"smallBlind"`
	BigBlind   int   `json:"bigBlind"`
	SeatOrder  []int `json:"seatOrder"`
}

func (*HandStarted) Kind() EventType { return EventHandStarted }

// HoleCardsDealt is private to its seat; the dispatcher delivers it only
// to that seat's subscriber and redacts it everywhere else.
type HoleCardsDealt struct {
	Seat  int         `json:"seat"`
	Cards []deck.Card `json:"cards"`
}

func (*HoleCardsDealt) Kind() EventType { return EventHoleCardsDealt }

// BlindPosted records a forced bet
type BlindPosted struct {
	Seat   int    `json:"seat"`
	Blind  string `json:"blind"` // "small" or "big"
	Amount int    `json:"amount"`
}

func (*BlindPosted) Kind() EventType { return EventBlindPosted }

// ActionTaken records an accepted player action, including synthesized
// timeout folds, which are indistinguishable from user-initiated ones.
type ActionTaken struct {
	Seat          int    `json:"seat"`
	Action        Action `json:"action"`
	Amount        int    `json:"amount"`
	NewPot        int    `json:"newPot"`
	NewCurrentBet int    `json:"newCurrentBet"`
}

func (*ActionTaken) Kind() EventType { return EventActionTaken }

// TurnChanged announces the next seat to act. DeadlineMillis is stamped by
// the dispatcher when it arms the turn timer.
type TurnChanged struct {
	Seat           int   `json:"seat"`
	DeadlineMillis int64 `json:"deadlineMillis"`
}

func (*TurnChanged) Kind() EventType { return EventTurnChanged }

// FlopRevealed carries the first three community cards
type FlopRevealed struct {
	Cards []deck.Card `json:"cards"`
}

func (*FlopRevealed) Kind() EventType { return EventFlopRevealed }

// TurnRevealed carries the fourth community card
type TurnRevealed struct {
	Card deck.Card `json:"card"`
}

func (*TurnRevealed) Kind() EventType { return EventTurnRevealed }

// RiverRevealed carries the fifth community card
type RiverRevealed struct {
	Card deck.Card `json:"card"`
}

func (*RiverRevealed) Kind() EventType { return EventRiverRevealed }

// SeatHand is one revealed hand at showdown
type SeatHand struct {
	Seat        int         `json:"seat"`
	HoleCards   []deck.Card `json:"holeCards"`
	Description string      `json:"description"`
}

// PotResult is one pot layer's outcome
type PotResult struct {
	Amount   int   `json:"amount"`
	Eligible []int `json:"eligible"`
	Winners  []int `json:"winners"`
}

// Showdown reveals the contested hands and the payout per seat
type Showdown struct {
	Hands   []SeatHand  `json:"hands"`
	Pots    []PotResult `json:"pots"`
	Payouts map[int]int `json:"payouts"`
}

func (*Showdown) Kind() EventType { return EventShowdown }

// HandComplete closes a hand. Payouts covers the fold-win case where no
// showdown happened.
type HandComplete struct {
	Payouts map[int]int `json:"payouts"`
}

func (*HandComplete) Kind() EventType { return EventHandComplete }

// TableClosed terminates a table's log
type TableClosed struct {
	Reason string `json:"reason,omitempty"`
}

func (*TableClosed) Kind() EventType { return EventTableClosed }

// TableCorrupt is the diagnostic record emitted when an invariant
// postcondition fails and the table is quarantined.
type TableCorrupt struct {
	Reason string `json:"reason"`
}

func (*TableCorrupt) Kind() EventType { return EventTableCorrupt }
