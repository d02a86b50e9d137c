package game

import "github.com/lox/holdemd/internal/deck"

// PlayerView is the public projection of a seated player. Hole cards
// never appear here; showdown reveals go through the event log.
type PlayerView struct {
	Seat           int    `json:"seat"`
	UserID         string `json:"userId"`
	Stack          int    `json:"stack"`
	CommittedRound int    `json:"committedRound"`
	CommittedHand  int    `json:"committedHand"`
	Status         string `json:"status"`
	Role           string `json:"role"`
	HasActed       bool   `json:"hasActed"`
}

// PublicState is the projection of a table for one viewer: all public
// table state plus only the viewer's own hole cards.
type PublicState struct {
	TableID         string       `json:"tableId"`
	Phase           string       `json:"phase"`
	HandNumber      int64        `json:"handNumber"`
	MaxPlayers      int          `json:"maxPlayers"`
	SmallBlind      int          `json:"smallBlind"`
	BigBlind        int          `json:"bigBlind"`
	DealerSeat      int          `json:"dealerSeat"`
	Pot             int          `json:"pot"`
	CurrentBet      int          `json:"currentBet"`
	CurrentTurnSeat int          `json:"currentTurnSeat"`
	Community       []deck.Card  `json:"community"`
	Players         []PlayerView `json:"players"`
	YourSeat        int          `json:"yourSeat,omitempty"`
	YourCards       []deck.Card  `json:"yourCards,omitempty"`
	LastSeq         int64        `json:"lastSeq"`
}

// ProjectView renders the table as seen by userID. Spectators receive
// the same view with no seat or cards.
func (t *Table) ProjectView(userID string) PublicState {
	view := PublicState{
		TableID:         t.ID,
		Phase:           t.Phase.String(),
		HandNumber:      t.HandNumber,
		MaxPlayers:      t.MaxPlayers,
		SmallBlind:      t.SmallBlind,
		BigBlind:        t.BigBlind,
		DealerSeat:      t.DealerSeat,
		Pot:             t.PotTotal(),
		CurrentBet:      t.CurrentBet,
		CurrentTurnSeat: t.CurrentTurnSeat,
		Community:       append([]deck.Card(nil), t.Community...),
		LastSeq:         t.nextSeq - 1,
	}
	for _, p := range t.Players() {
		view.Players = append(view.Players, PlayerView{
			Seat:           p.Seat,
			UserID:         p.UserID,
			Stack:          p.Stack,
			CommittedRound: p.CommittedRound,
			CommittedHand:  p.CommittedHand,
			Status:         p.Status.String(),
			Role:           p.Role.String(),
			HasActed:       p.HasActed,
		})
		if p.UserID == userID {
			view.YourSeat = p.Seat
			view.YourCards = append([]deck.Card(nil), p.HoleCards...)
		}
	}
	return view
}
