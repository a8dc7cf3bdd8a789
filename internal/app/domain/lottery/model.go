// Package lottery holds the data types of the recurring five-number lottery.
package lottery

import (
	"fmt"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Number range and guess size.
const (
	MinNumber       = 1
	MaxNumber       = 69
	NumbersPerGuess = 5
)

// Amounts and request ids are kept within a signed 64-bit range so they
// round-trip through BIGINT columns.
const (
	MaxPool      uint64    = math.MaxInt64
	MaxRequestID RequestID = math.MaxInt64
)

// State is the lifecycle state of the current round.
type State string

const (
	StateOpen        State = "open"
	StateCalculating State = "calculating"
)

// RequestID identifies a randomness request. Zero is never issued.
type RequestID uint64

// Guess is an ordered sequence of five numbers.
type Guess [NumbersPerGuess]int

// GuessFromSlice copies exactly NumbersPerGuess values into a Guess. Range
// checks are left to the caller.
func GuessFromSlice(nums []int) (Guess, error) {
	var g Guess
	if len(nums) != NumbersPerGuess {
		return g, fmt.Errorf("expected %d numbers, got %d", NumbersPerGuess, len(nums))
	}
	copy(g[:], nums)
	return g, nil
}

// InRange reports whether every number lies in [MinNumber, MaxNumber].
func (g Guess) InRange() bool {
	for _, n := range g {
		if n < MinNumber || n > MaxNumber {
			return false
		}
	}
	return true
}

// RandomnessParams are passed through to the randomness coordinator untouched.
type RandomnessParams struct {
	KeyHash              string `json:"key_hash" yaml:"gas_lane"`
	SubscriptionID       uint64 `json:"subscription_id" yaml:"subscription_id"`
	CallbackGasLimit     uint32 `json:"callback_gas_limit" yaml:"callback_gas_limit"`
	RequestConfirmations uint16 `json:"request_confirmations" yaml:"request_confirmations"`
	NumWords             uint32 `json:"num_words" yaml:"num_words"`
}

// Config is the immutable per-deployment configuration.
type Config struct {
	EntryFee   uint64
	Interval   time.Duration
	Randomness RandomnessParams
}

// Validate checks the configuration before a round is created.
func (c Config) Validate() error {
	if c.EntryFee == 0 {
		return fmt.Errorf("entry fee must be positive")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("draw interval must be positive")
	}
	if c.Randomness.NumWords < NumbersPerGuess {
		return fmt.Errorf("randomness num_words must be at least %d, got %d", NumbersPerGuess, c.Randomness.NumWords)
	}
	return nil
}

// Entry is one paid guess in the current round.
type Entry struct {
	Index     int            `json:"index"`
	Player    common.Address `json:"player"`
	Numbers   Guess          `json:"numbers"`
	Amount    uint64         `json:"amount"`
	EnteredAt time.Time      `json:"entered_at"`
}

// UpkeepStatus is the result of evaluating the upkeep predicate.
type UpkeepStatus struct {
	Needed bool   `json:"upkeep_needed"`
	Reason string `json:"reason,omitempty"`
}

// Round is the persisted form of the round aggregate.
type Round struct {
	Number             uint64                    `json:"number"`
	State              State                     `json:"state"`
	Pool               uint64                    `json:"pool"`
	Entries            []Entry                   `json:"entries"`
	PendingRequest     RequestID                 `json:"pending_request,omitempty"`
	LastRequest        RequestID                 `json:"last_request,omitempty"`
	LastTimestamp      time.Time                 `json:"last_timestamp"`
	RecentWinners      []common.Address          `json:"recent_winners"`
	LastWinningNumbers *Guess                    `json:"last_winning_numbers,omitempty"`
	Withdrawals        map[common.Address]uint64 `json:"withdrawals,omitempty"`
}

// Status is the read-only view exposed to external callers.
type Status struct {
	RoundNumber        uint64           `json:"round_number"`
	State              State            `json:"state"`
	EntryFee           uint64           `json:"entry_fee"`
	Interval           time.Duration    `json:"interval_ns"`
	Pool               uint64           `json:"pool"`
	EntryCount         int              `json:"entry_count"`
	PendingRequest     RequestID        `json:"pending_request,omitempty"`
	LastTimestamp      time.Time        `json:"last_timestamp"`
	RecentWinners      []common.Address `json:"recent_winners"`
	LastWinningNumbers *Guess           `json:"last_winning_numbers,omitempty"`
}

// Payout is the aggregate amount owed to one winner for one settlement.
type Payout struct {
	Player common.Address `json:"player"`
	Amount uint64         `json:"amount"`
}

// Settlement records the outcome of one fulfilled draw.
type Settlement struct {
	ID             string           `json:"id"`
	RoundNumber    uint64           `json:"round_number"`
	RequestID      RequestID        `json:"request_id"`
	WinningNumbers Guess            `json:"winning_numbers"`
	EntryCount     int              `json:"entry_count"`
	Winners        []common.Address `json:"winners"`
	Payouts        []Payout         `json:"payouts"`
	PoolBefore     uint64           `json:"pool_before"`
	PaidOut        uint64           `json:"paid_out"`
	Rollover       uint64           `json:"rollover"`
	SettledAt      time.Time        `json:"settled_at"`
}
