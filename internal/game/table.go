package game

import (
	"fmt"
	"math/rand"

	"github.com/lox/holdemd/internal/deck"
)

// Phase is the table's position in the hand lifecycle
type Phase int

const (
	Lobby Phase = iota
	PreFlop
	Flop
	Turn
	River
	ShowdownPhase
	Complete
	Frozen
	Corrupt
)

// String returns the wire form of the phase
func (p Phase) String() string {
	switch p {
	case Lobby:
		return "lobby"
	case PreFlop:
		return "preflop"
	case Flop:
		return "flop"
	case Turn:
		return "turn"
	case River:
		return "river"
	case ShowdownPhase:
		return "showdown"
	case Complete:
		return "complete"
	case Frozen:
		return "frozen"
	case Corrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// MinBuyInBigBlinds is the minimum buy-in expressed in big blinds.
const MinBuyInBigBlinds = 10

// Table is the sole source of truth for one poker table. It is mutated
// only by the owning actor, one command at a time, so it needs no
// internal locking.
type Table struct {
	ID         string
	Owner      string
	MaxPlayers int
	SmallBlind int
	BigBlind   int
	AutoStart  bool

	Phase      Phase
	DealerSeat int
	HandNumber int64

	CurrentBet         int
	LastRaiseIncrement int
	CurrentTurnSeat    int // 0 when nobody is to act

	Community []deck.Card
	players   map[int]*Player // keyed by seat

	deck   *deck.Deck
	burned int
	rng    *rand.Rand

	// newDeck overrides the shuffle for scripted hands in tests.
	newDeck func() *deck.Deck

	nextSeq int64

	// handBankroll is Σ(stack+committed) over players dealt into the
	// current hand, fixed at StartHand; the chip conservation check
	// verifies it after every mutation.
	handBankroll int
}

// NewTable creates an empty table in the Lobby phase and emits the
// TableCreated record.
func NewTable(id, owner string, maxPlayers, smallBlind, bigBlind int, rng *rand.Rand) (*Table, []Event, error) {
	if maxPlayers < 2 || maxPlayers > 9 {
		return nil, nil, fmt.Errorf("%w: maxPlayers %d", ErrOutOfRange, maxPlayers)
	}
	if smallBlind <= 0 || bigBlind <= smallBlind {
		return nil, nil, fmt.Errorf("%w: blinds %d/%d", ErrOutOfRange, smallBlind, bigBlind)
	}

	t := &Table{
		ID:         id,
		Owner:      owner,
		MaxPlayers: maxPlayers,
		SmallBlind: smallBlind,
		BigBlind:   bigBlind,
		Phase:      Lobby,
		players:    make(map[int]*Player),
		rng:        rng,
		nextSeq:    1,
	}
	events := []Event{t.emit(&TableCreated{
		TableID:    id,
		Owner:      owner,
		MaxPlayers: maxPlayers,
		SmallBlind: smallBlind,
		BigBlind:   bigBlind,
	})}
	return t, events, nil
}

// emit stamps the next sequence number onto a payload. Timestamps are
// assigned by the dispatcher when events are persisted.
func (t *Table) emit(p Payload) Event {
	e := Event{
		Seq:     t.nextSeq,
		Hand:    t.HandNumber,
		Type:    p.Kind(),
		Payload: p,
	}
	t.nextSeq++
	return e
}

// NextSeq returns the sequence number the next event will carry.
func (t *Table) NextSeq() int64 {
	return t.nextSeq
}

// Join seats a user at the lowest free seat.
func (t *Table) Join(userID string, buyIn int) ([]Event, error) {
	if t.Phase == Corrupt {
		return nil, ErrTableCorrupt
	}
	if t.Phase == Frozen {
		return nil, ErrTableClosed
	}
	if buyIn < t.BigBlind*MinBuyInBigBlinds {
		return nil, fmt.Errorf("%w: buy-in %d below minimum %d", ErrInsufficientChips, buyIn, t.BigBlind*MinBuyInBigBlinds)
	}
	for _, p := range t.players {
		if p.UserID == userID {
			return nil, illegalf("user %s already seated at seat %d", userID, p.Seat)
		}
	}

	seat := 0
	for s := 1; s <= t.MaxPlayers; s++ {
		if _, taken := t.players[s]; !taken {
			seat = s
			break
		}
	}
	if seat == 0 {
		return nil, ErrTableFull
	}

	t.players[seat] = &Player{
		Seat:   seat,
		UserID: userID,
		Stack:  buyIn,
		Status: SittingOut,
	}
	return []Event{t.emit(&PlayerJoined{Seat: seat, UserID: userID, BuyIn: buyIn})}, nil
}

// Leave releases the user's seat. Mid-hand the seat turns SittingOut,
// auto-folds if it holds cards, and is released when the hand completes.
func (t *Table) Leave(userID string) ([]Event, error) {
	if t.Phase == Corrupt {
		return nil, ErrTableCorrupt
	}
	if t.Phase == Frozen {
		return nil, ErrTableClosed
	}
	p := t.playerByUser(userID)
	if p == nil {
		return nil, illegalf("user %s is not seated", userID)
	}

	if !t.handInProgress() || !p.inHand() {
		delete(t.players, p.Seat)
		return []Event{t.emit(&PlayerLeft{Seat: p.Seat, UserID: userID})}, nil
	}

	// Seat stays occupied until the hand finishes so committed chips
	// remain in play; an active seat folds immediately.
	p.Leaving = true
	if p.Status == Active {
		return t.applyToSeat(p, Fold, 0)
	}
	return nil, nil
}

// Close marks the table closed and emits the terminal record.
func (t *Table) Close(reason string) []Event {
	events := []Event{t.emit(&TableClosed{Reason: reason})}
	t.Phase = Frozen
	return events
}

// Freeze stops the table without a log record, used when persistence has
// failed and nothing more can be stored.
func (t *Table) Freeze() {
	t.Phase = Frozen
}

func (t *Table) handInProgress() bool {
	switch t.Phase {
	case PreFlop, Flop, Turn, River, ShowdownPhase:
		return true
	}
	return false
}

func (t *Table) playerByUser(userID string) *Player {
	for _, p := range t.players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// Seat returns the player at a seat, or nil.
func (t *Table) Seat(seat int) *Player {
	return t.players[seat]
}

// Players returns the seated players in seat order.
func (t *Table) Players() []*Player {
	out := make([]*Player, 0, len(t.players))
	for s := 1; s <= t.MaxPlayers; s++ {
		if p, ok := t.players[s]; ok {
			out = append(out, p)
		}
	}
	return out
}

// PotTotal is the chips committed to the current hand across all seats.
func (t *Table) PotTotal() int {
	total := 0
	for _, p := range t.players {
		total += p.CommittedHand
	}
	return total
}

// nextSeatFrom walks clockwise from (but excluding) seat, returning the
// first occupied seat matching pred, or 0.
func (t *Table) nextSeatFrom(seat int, pred func(*Player) bool) int {
	for i := 1; i <= t.MaxPlayers; i++ {
		s := (seat+i-1)%t.MaxPlayers + 1
		if p, ok := t.players[s]; ok && pred(p) {
			return s
		}
	}
	return 0
}

func inHandPred(p *Player) bool { return p.inHand() }

func activePred(p *Player) bool { return p.Status == Active }

// countInHand returns how many seats still hold cards.
func (t *Table) countInHand() int {
	n := 0
	for _, p := range t.players {
		if p.inHand() {
			n++
		}
	}
	return n
}

// countActive returns how many seats can still act.
func (t *Table) countActive() int {
	n := 0
	for _, p := range t.players {
		if p.Status == Active {
			n++
		}
	}
	return n
}

// checkConservation verifies that no chips were created or destroyed
// since the hand began. A failure marks the table Corrupt; the caller
// appends the diagnostic event and refuses further commands.
func (t *Table) checkConservation() *Event {
	if !t.handInProgress() && t.Phase != Complete {
		return nil
	}
	total := 0
	for _, p := range t.players {
		if p.DealtIn {
			total += p.Stack + p.CommittedHand
		}
	}
	if t.handBankroll != 0 && total != t.handBankroll {
		t.Phase = Corrupt
		e := t.emit(&TableCorrupt{
			Reason: fmt.Sprintf("chip conservation violated: have %d, expected %d", total, t.handBankroll),
		})
		return &e
	}
	return nil
}
