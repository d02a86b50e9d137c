package game

import (
	"sort"

	"github.com/lox/holdemd/internal/evaluator"
)

// Pot is one layer of the pot: the chips between two contribution
// thresholds and the seats that can win them.
type Pot struct {
	Amount   int
	Eligible []int
}

// BuildPots layers the per-seat hand contributions into a main pot and
// side pots. Thresholds are the distinct contribution levels of eligible
// (non-folded) seats, ascending; each layer collects every seat's
// contribution between the previous threshold and its own, and is won
// only by eligible seats that reached it.
func BuildPots(contrib map[int]int, eligible map[int]bool) []Pot {
	var thresholds []int
	seen := make(map[int]bool)
	for seat, c := range contrib {
		if eligible[seat] && c > 0 && !seen[c] {
			seen[c] = true
			thresholds = append(thresholds, c)
		}
	}
	sort.Ints(thresholds)
	if len(thresholds) == 0 {
		return nil
	}

	seats := make([]int, 0, len(contrib))
	for seat := range contrib {
		seats = append(seats, seat)
	}
	sort.Ints(seats)

	var pots []Pot
	prev := 0
	for _, threshold := range thresholds {
		pot := Pot{}
		for _, seat := range seats {
			c := contrib[seat]
			layer := min(c, threshold) - min(c, prev)
			pot.Amount += layer
			if eligible[seat] && c >= threshold {
				pot.Eligible = append(pot.Eligible, seat)
			}
		}
		if pot.Amount > 0 {
			pots = append(pots, pot)
		}
		prev = threshold
	}

	// Contributions above the top eligible threshold can only come from
	// seats that folded after out-betting the field (a leave mid-raise);
	// those chips fold into the top layer so none are stranded.
	surplus := 0
	for _, seat := range seats {
		if contrib[seat] > prev {
			surplus += contrib[seat] - prev
		}
	}
	if surplus > 0 && len(pots) > 0 {
		pots[len(pots)-1].Amount += surplus
	}
	return pots
}

// Distribute awards each pot layer to its strongest eligible seats,
// splitting ties equally. Remainder chips go to the earliest winner
// clockwise from the dealer button so payouts are deterministic.
func Distribute(pots []Pot, strengths map[int]evaluator.Strength, dealerSeat, maxPlayers int) (map[int]int, []PotResult) {
	payouts := make(map[int]int)
	results := make([]PotResult, 0, len(pots))

	for _, pot := range pots {
		winners := potWinners(pot.Eligible, strengths)
		if len(winners) == 0 {
			continue
		}

		share := pot.Amount / len(winners)
		remainder := pot.Amount % len(winners)
		for _, seat := range winners {
			payouts[seat] += share
		}
		if remainder > 0 {
			payouts[firstClockwise(winners, dealerSeat, maxPlayers)] += remainder
		}

		results = append(results, PotResult{
			Amount:   pot.Amount,
			Eligible: append([]int(nil), pot.Eligible...),
			Winners:  winners,
		})
	}
	return payouts, results
}

// potWinners returns the eligible seats holding the maximum strength key.
func potWinners(eligible []int, strengths map[int]evaluator.Strength) []int {
	var winners []int
	var best evaluator.Strength
	for _, seat := range eligible {
		s, ok := strengths[seat]
		if !ok {
			continue
		}
		if len(winners) == 0 {
			winners = []int{seat}
			best = s
			continue
		}
		switch evaluator.Compare(s, best) {
		case 1:
			winners = []int{seat}
			best = s
		case 0:
			winners = append(winners, seat)
		}
	}
	sort.Ints(winners)
	return winners
}

// firstClockwise picks the seat among candidates reached first when
// walking clockwise from the seat after the dealer button.
func firstClockwise(candidates []int, dealerSeat, maxPlayers int) int {
	member := make(map[int]bool, len(candidates))
	for _, s := range candidates {
		member[s] = true
	}
	for i := 1; i <= maxPlayers; i++ {
		s := (dealerSeat+i-1)%maxPlayers + 1
		if member[s] {
			return s
		}
	}
	return candidates[0]
}
