package lottery

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	domain "github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
)

// Matcher decides whether a guess wins against the drawn numbers.
type Matcher interface {
	Match(guess, winning domain.Guess) bool
}

// PositionalMatcher requires every number to match in the same position.
type PositionalMatcher struct{}

func (PositionalMatcher) Match(guess, winning domain.Guess) bool {
	return guess == winning
}

// SetMatcher ignores order: the guess wins when it holds the same numbers,
// with the same multiplicities, as the draw.
type SetMatcher struct{}

func (SetMatcher) Match(guess, winning domain.Guess) bool {
	sort.Ints(guess[:])
	sort.Ints(winning[:])
	return guess == winning
}

// PayoutPolicy splits the pool between winners. The returned rollover stays
// in the pool for the next round; payouts plus rollover must equal pool.
type PayoutPolicy interface {
	Allocate(pool uint64, winners []common.Address) (payouts []domain.Payout, rollover uint64)
}

// EvenSplit pays every winner pool/len(winners) and rolls the remainder over.
type EvenSplit struct{}

func (EvenSplit) Allocate(pool uint64, winners []common.Address) ([]domain.Payout, uint64) {
	if len(winners) == 0 {
		return nil, pool
	}
	share := pool / uint64(len(winners))
	if share == 0 {
		return nil, pool
	}
	payouts := make([]domain.Payout, 0, len(winners))
	for _, w := range winners {
		payouts = append(payouts, domain.Payout{Player: w, Amount: share})
	}
	return payouts, pool - share*uint64(len(winners))
}

var modulus = uint256.NewInt(domain.MaxNumber)

// drawNumbers maps the first five words onto [MinNumber, MaxNumber].
func drawNumbers(words []*uint256.Int) (domain.Guess, error) {
	var g domain.Guess
	if len(words) < domain.NumbersPerGuess {
		return g, ErrRandomnessMalformed
	}
	for i := 0; i < domain.NumbersPerGuess; i++ {
		if words[i] == nil {
			return g, ErrRandomnessMalformed
		}
		g[i] = int(new(uint256.Int).Mod(words[i], modulus).Uint64()) + domain.MinNumber
	}
	return g, nil
}

// findWinners returns each winning player once, in entry order.
func findWinners(entries []domain.Entry, winning domain.Guess, m Matcher) []common.Address {
	seen := make(map[common.Address]struct{})
	var winners []common.Address
	for _, e := range entries {
		if !m.Match(e.Numbers, winning) {
			continue
		}
		if _, dup := seen[e.Player]; dup {
			continue
		}
		seen[e.Player] = struct{}{}
		winners = append(winners, e.Player)
	}
	return winners
}
