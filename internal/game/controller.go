package game

import (
	"fmt"

	"github.com/lox/holdemd/internal/deck"
	"github.com/lox/holdemd/internal/evaluator"
)

// StartHand deals a new hand. It requires the table to be between hands,
// at least two seated players with positive stacks, and byUserID to be
// the owner (or any seated user when auto-start is enabled).
func (t *Table) StartHand(byUserID string) ([]Event, error) {
	switch t.Phase {
	case Lobby, Complete:
	case Frozen:
		return nil, ErrTableClosed
	case Corrupt:
		return nil, ErrTableCorrupt
	default:
		return nil, ErrTableInProgress
	}

	if byUserID != t.Owner {
		if !t.AutoStart {
			return nil, illegalf("only the table owner may start a hand")
		}
		if t.playerByUser(byUserID) == nil {
			return nil, illegalf("user %s is not seated", byUserID)
		}
	}

	var dealt []*Player
	for _, p := range t.Players() {
		if p.Stack > 0 && !p.Leaving {
			dealt = append(dealt, p)
		}
	}
	if len(dealt) < 2 {
		return nil, illegalf("need at least 2 players with chips, have %d", len(dealt))
	}

	t.HandNumber++
	t.Phase = PreFlop
	t.Community = nil
	t.burned = 0
	t.CurrentBet = t.BigBlind
	t.LastRaiseIncrement = t.BigBlind
	if t.newDeck != nil {
		t.deck = t.newDeck()
	} else {
		t.deck = deck.NewShuffled(t.rng)
	}

	for _, p := range dealt {
		p.Status = Active
		p.Role = NoRole
		p.HasActed = false
		p.CommittedRound = 0
		p.CommittedHand = 0
		p.HoleCards = nil
		p.DealtIn = true
	}

	// Rotate the button one occupied seat clockwise.
	t.DealerSeat = t.nextSeatFrom(t.DealerSeat, func(p *Player) bool { return p.DealtIn })
	dealer := t.players[t.DealerSeat]
	dealer.Role = Dealer

	var sbSeat, bbSeat int
	if len(dealt) == 2 {
		// Heads-up: the button posts the small blind.
		sbSeat = t.DealerSeat
		bbSeat = t.nextSeatFrom(sbSeat, func(p *Player) bool { return p.DealtIn })
	} else {
		sbSeat = t.nextSeatFrom(t.DealerSeat, func(p *Player) bool { return p.DealtIn })
		bbSeat = t.nextSeatFrom(sbSeat, func(p *Player) bool { return p.DealtIn })
	}
	t.players[sbSeat].Role = SmallBlind
	t.players[bbSeat].Role = BigBlind

	var seatOrder []int
	s := t.DealerSeat
	for range dealt {
		seatOrder = append(seatOrder, s)
		s = t.nextSeatFrom(s, func(p *Player) bool { return p.DealtIn })
	}

	t.handBankroll = 0
	for _, p := range dealt {
		t.handBankroll += p.Stack
	}

	events := []Event{t.emit(&HandStarted{
		DealerSeat: t.DealerSeat,
		SmallBlind: t.SmallBlind,
		BigBlind:   t.BigBlind,
		SeatOrder:  seatOrder,
	})}

	// A short-stacked blind posts all-in for what it has.
	sb := t.players[sbSeat].commit(t.SmallBlind)
	events = append(events, t.emit(&BlindPosted{Seat: sbSeat, Blind: "small", Amount: sb}))
	bb := t.players[bbSeat].commit(t.BigBlind)
	events = append(events, t.emit(&BlindPosted{Seat: bbSeat, Blind: "big", Amount: bb}))

	// Two round-robin passes starting left of the dealer.
	for pass := 0; pass < 2; pass++ {
		seat := t.DealerSeat
		for range dealt {
			seat = t.nextSeatFrom(seat, func(p *Player) bool { return p.DealtIn })
			card, err := t.deck.Draw(1)
			if err != nil {
				return nil, err
			}
			t.players[seat].HoleCards = append(t.players[seat].HoleCards, card[0])
		}
	}
	for _, seat := range seatOrder {
		events = append(events, t.emit(&HoleCardsDealt{
			Seat:  seat,
			Cards: append([]deck.Card(nil), t.players[seat].HoleCards...),
		}))
	}

	// Pre-flop action starts left of the big blind; heads-up the small
	// blind (the button) acts first.
	var first int
	if len(dealt) == 2 {
		first = sbSeat
	} else {
		first = t.nextSeatFrom(bbSeat, func(p *Player) bool { return p.DealtIn })
	}
	if t.players[first].Status != Active {
		first = t.nextSeatFrom(first, activePred)
	}

	if t.countActive() < 2 || first == 0 {
		// Blinds alone put everyone all-in; run the board out.
		t.CurrentTurnSeat = 0
		runout, err := t.advanceStreet()
		if err != nil {
			return nil, err
		}
		events = append(events, runout...)
	} else {
		t.CurrentTurnSeat = first
		events = append(events, t.emit(&TurnChanged{Seat: first}))
	}

	if diag := t.checkConservation(); diag != nil {
		events = append(events, *diag)
	}
	return events, nil
}

// Apply validates and applies a player action. A rejected action returns
// an error and leaves the table untouched.
func (t *Table) Apply(userID string, action Action, amount int) ([]Event, error) {
	switch t.Phase {
	case Frozen:
		return nil, ErrTableClosed
	case Corrupt:
		return nil, ErrTableCorrupt
	case PreFlop, Flop, Turn, River:
	default:
		return nil, illegalf("no betting round in progress")
	}

	p := t.playerByUser(userID)
	if p == nil {
		return nil, illegalf("user %s is not seated", userID)
	}
	if p.Seat != t.CurrentTurnSeat {
		return nil, ErrNotYourTurn
	}
	return t.applyToSeat(p, action, amount)
}

// AutoAction synthesizes the timeout action for a seat: check when legal,
// fold otherwise. It is a first-class action and emits the same
// ActionTaken record a user-submitted action would.
func (t *Table) AutoAction(seat int) ([]Event, error) {
	switch t.Phase {
	case PreFlop, Flop, Turn, River:
	default:
		return nil, illegalf("no betting round in progress")
	}
	p := t.players[seat]
	if p == nil || seat != t.CurrentTurnSeat {
		return nil, ErrNotYourTurn
	}
	action := Fold
	if p.CommittedRound == t.CurrentBet {
		action = Check
	}
	return t.applyToSeat(p, action, 0)
}

// applyToSeat performs the legality check and effects from the action
// table, then advances the turn, street or hand as required. Turn
// ownership is the caller's concern: forced folds from leaves may arrive
// out of turn and must not disturb the acting seat.
func (t *Table) applyToSeat(p *Player, action Action, amount int) ([]Event, error) {
	if p.Status != Active {
		return nil, illegalf("seat %d cannot act with status %s", p.Seat, p.Status)
	}
	wasTurn := p.Seat == t.CurrentTurnSeat

	moved := 0
	switch action {
	case Fold:
		p.Status = Folded
		p.HasActed = true

	case Check:
		if p.CommittedRound != t.CurrentBet {
			return nil, illegalf("cannot check, %d to call", t.CurrentBet-p.CommittedRound)
		}
		p.HasActed = true

	case Call:
		if t.CurrentBet <= p.CommittedRound {
			return nil, illegalf("nothing to call")
		}
		if p.Stack < 1 {
			return nil, fmt.Errorf("%w: empty stack", ErrInsufficientChips)
		}
		moved = p.commit(t.CurrentBet - p.CommittedRound)
		p.HasActed = true

	case Raise:
		if amount <= 0 {
			return nil, fmt.Errorf("%w: raise amount must be positive", ErrMalformed)
		}
		total := p.CommittedRound + p.Stack
		if amount > total {
			return nil, fmt.Errorf("%w: raise to %d exceeds stack", ErrInsufficientChips, amount)
		}
		if amount <= t.CurrentBet {
			return nil, illegalf("raise to %d does not exceed current bet %d", amount, t.CurrentBet)
		}
		if amount < t.CurrentBet+t.LastRaiseIncrement {
			// Below the minimum raise is only permitted as an all-in.
			if amount != total {
				return nil, illegalf("raise to %d below minimum %d", amount, t.CurrentBet+t.LastRaiseIncrement)
			}
			moved = t.applyAllIn(p)
		} else {
			moved = p.commit(amount - p.CommittedRound)
			t.LastRaiseIncrement = amount - t.CurrentBet
			t.CurrentBet = amount
			t.reopenAction(p.Seat)
		}
		p.HasActed = true

	case AllIn:
		if p.Stack <= 0 {
			return nil, fmt.Errorf("%w: empty stack", ErrInsufficientChips)
		}
		moved = t.applyAllIn(p)
		p.HasActed = true

	default:
		return nil, fmt.Errorf("%w: unknown action", ErrMalformed)
	}

	events := []Event{t.emit(&ActionTaken{
		Seat:          p.Seat,
		Action:        action,
		Amount:        moved,
		NewPot:        t.PotTotal(),
		NewCurrentBet: t.CurrentBet,
	})}

	next, err := t.afterAction(p.Seat, wasTurn)
	if err != nil {
		return nil, err
	}
	events = append(events, next...)

	if diag := t.checkConservation(); diag != nil {
		events = append(events, *diag)
	}
	return events, nil
}

// applyAllIn commits the whole stack. A full-increment all-in is a raise
// and reopens action; a short all-in raises the bet to call but does not
// reopen action for players who already acted at the prior bet.
func (t *Table) applyAllIn(p *Player) int {
	moved := p.commit(p.Stack)
	total := p.CommittedRound
	if total > t.CurrentBet {
		if total-t.CurrentBet >= t.LastRaiseIncrement {
			t.LastRaiseIncrement = total - t.CurrentBet
			t.reopenAction(p.Seat)
		}
		t.CurrentBet = total
	}
	return moved
}

// reopenAction clears has-acted for every other player still able to act.
func (t *Table) reopenAction(raiserSeat int) {
	for _, other := range t.players {
		if other.Seat != raiserSeat && other.Status == Active {
			other.HasActed = false
		}
	}
}

// afterAction decides what follows an accepted action: fold-win, street
// advancement, showdown, or the next seat's turn. An out-of-turn forced
// fold leaves the acting seat unchanged.
func (t *Table) afterAction(actedSeat int, wasTurn bool) ([]Event, error) {
	if t.countInHand() == 1 {
		return t.finishByFold()
	}
	if t.roundComplete() {
		t.CurrentTurnSeat = 0
		return t.advanceStreet()
	}
	if !wasTurn {
		return nil, nil
	}

	next := t.nextSeatFrom(actedSeat, func(p *Player) bool {
		return p.Status == Active && (!p.HasActed || p.CommittedRound < t.CurrentBet)
	})
	if next == 0 {
		// Nobody owes action but the predicate disagreed; treat as
		// round completion to avoid stalling the hand.
		t.CurrentTurnSeat = 0
		return t.advanceStreet()
	}
	t.CurrentTurnSeat = next
	return []Event{t.emit(&TurnChanged{Seat: next})}, nil
}

// roundComplete reports whether the betting round has closed: every
// Active player has acted and matched the current bet.
func (t *Table) roundComplete() bool {
	for _, p := range t.players {
		if p.Status != Active {
			continue
		}
		if !p.HasActed || p.CommittedRound != t.CurrentBet {
			return false
		}
	}
	return true
}

// advanceStreet resets the betting round and deals the next street. When
// no further betting is possible it keeps dealing through to showdown.
func (t *Table) advanceStreet() ([]Event, error) {
	var events []Event

	for {
		for _, p := range t.players {
			p.CommittedRound = 0
			if p.Status == Active {
				p.HasActed = false
			}
		}
		t.CurrentBet = 0
		t.LastRaiseIncrement = t.BigBlind

		switch t.Phase {
		case PreFlop:
			if err := t.deck.Burn(); err != nil {
				return nil, err
			}
			t.burned++
			cards, err := t.deck.Draw(3)
			if err != nil {
				return nil, err
			}
			t.Community = append(t.Community, cards...)
			t.Phase = Flop
			events = append(events, t.emit(&FlopRevealed{Cards: cards}))

		case Flop, Turn:
			if err := t.deck.Burn(); err != nil {
				return nil, err
			}
			t.burned++
			cards, err := t.deck.Draw(1)
			if err != nil {
				return nil, err
			}
			t.Community = append(t.Community, cards[0])
			if t.Phase == Flop {
				t.Phase = Turn
				events = append(events, t.emit(&TurnRevealed{Card: cards[0]}))
			} else {
				t.Phase = River
				events = append(events, t.emit(&RiverRevealed{Card: cards[0]}))
			}

		case River:
			t.Phase = ShowdownPhase
			sd, err := t.showdown()
			if err != nil {
				return nil, err
			}
			return append(events, sd...), nil
		}

		// Betting needs at least two players who can still act; with
		// everyone else all-in the remaining streets are dealt out.
		if t.countActive() >= 2 {
			first := t.nextSeatFrom(t.DealerSeat, activePred)
			t.CurrentTurnSeat = first
			events = append(events, t.emit(&TurnChanged{Seat: first}))
			return events, nil
		}
	}
}

// finishByFold ends the hand immediately when a single player remains;
// no cards are shown.
func (t *Table) finishByFold() ([]Event, error) {
	var winner *Player
	for _, p := range t.players {
		if p.inHand() {
			winner = p
			break
		}
	}
	if winner == nil {
		return nil, fmt.Errorf("no players remain in hand %d", t.HandNumber)
	}

	// Collect the pot out of the committed columns, then award it.
	pot := t.PotTotal()
	for _, p := range t.players {
		p.CommittedRound = 0
		p.CommittedHand = 0
	}
	winner.Stack += pot
	payouts := map[int]int{winner.Seat: pot}

	t.CurrentTurnSeat = 0
	t.Phase = Complete
	events := []Event{t.emit(&HandComplete{Payouts: payouts})}
	events = append(events, t.endHand()...)
	return events, nil
}

// showdown reveals the contested hands, builds the pot layers and pays
// out the winners.
func (t *Table) showdown() ([]Event, error) {
	contrib := make(map[int]int)
	eligible := make(map[int]bool)
	strengths := make(map[int]evaluator.Strength)
	var hands []SeatHand

	for _, p := range t.Players() {
		if p.DealtIn {
			contrib[p.Seat] = p.CommittedHand
		}
		if !p.inHand() {
			continue
		}
		strength, err := evaluator.Evaluate(append(append([]deck.Card(nil), p.HoleCards...), t.Community...))
		if err != nil {
			return nil, err
		}
		eligible[p.Seat] = true
		strengths[p.Seat] = strength
		hands = append(hands, SeatHand{
			Seat:        p.Seat,
			HoleCards:   append([]deck.Card(nil), p.HoleCards...),
			Description: strength.Describe(),
		})
	}

	pots := BuildPots(contrib, eligible)
	payouts, results := Distribute(pots, strengths, t.DealerSeat, t.MaxPlayers)

	paid := 0
	for _, amount := range payouts {
		paid += amount
	}
	if paid != t.PotTotal() {
		t.Phase = Corrupt
		diag := t.emit(&TableCorrupt{
			Reason: fmt.Sprintf("payout mismatch: distributed %d of pot %d", paid, t.PotTotal()),
		})
		return []Event{diag}, nil
	}

	// Collect the pot out of the committed columns, then award it.
	for _, p := range t.players {
		p.CommittedRound = 0
		p.CommittedHand = 0
	}
	for seat, amount := range payouts {
		t.players[seat].Stack += amount
	}

	t.CurrentTurnSeat = 0
	t.Phase = Complete
	events := []Event{
		t.emit(&Showdown{Hands: hands, Pots: results, Payouts: payouts}),
		t.emit(&HandComplete{Payouts: payouts}),
	}
	events = append(events, t.endHand()...)
	return events, nil
}

// endHand verifies conservation one last time, then clears per-hand state
// and releases seats whose users left mid-hand.
func (t *Table) endHand() []Event {
	var events []Event
	if diag := t.checkConservation(); diag != nil {
		return []Event{*diag}
	}
	t.handBankroll = 0

	for _, p := range t.Players() {
		p.CommittedRound = 0
		p.CommittedHand = 0
		p.HasActed = false
		p.HoleCards = nil
		p.Role = NoRole
		p.DealtIn = false
		if p.Leaving {
			delete(t.players, p.Seat)
			events = append(events, t.emit(&PlayerLeft{Seat: p.Seat, UserID: p.UserID}))
		} else if p.Stack == 0 {
			// Busted players sit out until they rebuy or leave.
			p.Status = SittingOut
		} else {
			p.Status = Active
		}
	}
	return events
}
