package lottery

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	domain "github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
)

// Upkeep predicate reasons, in evaluation order.
const (
	reasonNotOpen   = "round not open"
	reasonTooEarly  = "interval not elapsed"
	reasonPoolEmpty = "pool empty"
	reasonNoEntries = "no entries"
)

// round is the single mutable aggregate. It is never shared: the service
// clones it, mutates the clone and swaps it in once the clone is persisted.
type round struct {
	number        uint64
	state         domain.State
	pool          uint64
	entries       []domain.Entry
	pending       domain.RequestID
	lastRequest   domain.RequestID
	lastTimestamp time.Time
	recentWinners []common.Address
	lastNumbers   *domain.Guess
	withdrawals   map[common.Address]uint64
}

func newRound(now time.Time) *round {
	return &round{
		number:        1,
		state:         domain.StateOpen,
		lastTimestamp: now.UTC(),
		withdrawals:   make(map[common.Address]uint64),
	}
}

func roundFromRecord(rec domain.Round) *round {
	r := &round{
		number:        rec.Number,
		state:         rec.State,
		pool:          rec.Pool,
		entries:       append([]domain.Entry(nil), rec.Entries...),
		pending:       rec.PendingRequest,
		lastRequest:   rec.LastRequest,
		lastTimestamp: rec.LastTimestamp.UTC(),
		recentWinners: append([]common.Address(nil), rec.RecentWinners...),
		withdrawals:   make(map[common.Address]uint64, len(rec.Withdrawals)),
	}
	if r.state == "" {
		r.state = domain.StateOpen
	}
	if r.lastRequest < r.pending {
		r.lastRequest = r.pending
	}
	if rec.LastWinningNumbers != nil {
		g := *rec.LastWinningNumbers
		r.lastNumbers = &g
	}
	for k, v := range rec.Withdrawals {
		r.withdrawals[k] = v
	}
	return r
}

func (r *round) record() domain.Round {
	c := r.clone()
	return domain.Round{
		Number:             c.number,
		State:              c.state,
		Pool:               c.pool,
		Entries:            c.entries,
		PendingRequest:     c.pending,
		LastRequest:        c.lastRequest,
		LastTimestamp:      c.lastTimestamp,
		RecentWinners:      c.recentWinners,
		LastWinningNumbers: c.lastNumbers,
		Withdrawals:        c.withdrawals,
	}
}

func (r *round) clone() *round {
	c := *r
	c.entries = append([]domain.Entry(nil), r.entries...)
	c.recentWinners = append([]common.Address(nil), r.recentWinners...)
	if r.lastNumbers != nil {
		g := *r.lastNumbers
		c.lastNumbers = &g
	}
	c.withdrawals = make(map[common.Address]uint64, len(r.withdrawals))
	for k, v := range r.withdrawals {
		c.withdrawals[k] = v
	}
	return &c
}

// checkUpkeep evaluates the upkeep predicate without side effects.
func (r *round) checkUpkeep(now time.Time, interval time.Duration) domain.UpkeepStatus {
	switch {
	case r.state != domain.StateOpen:
		return domain.UpkeepStatus{Reason: reasonNotOpen}
	case now.Sub(r.lastTimestamp) < interval:
		return domain.UpkeepStatus{Reason: reasonTooEarly}
	case r.pool == 0:
		return domain.UpkeepStatus{Reason: reasonPoolEmpty}
	case len(r.entries) == 0:
		return domain.UpkeepStatus{Reason: reasonNoEntries}
	}
	return domain.UpkeepStatus{Needed: true}
}

// canAccept reports whether amount fits in the pool without passing MaxPool.
func (r *round) canAccept(amount uint64) bool {
	return r.pool <= domain.MaxPool && amount <= domain.MaxPool-r.pool
}

func (r *round) enter(entry domain.Entry) domain.Entry {
	entry.Index = len(r.entries)
	r.entries = append(r.entries, entry)
	r.pool += entry.Amount
	return entry
}

func (r *round) requestDraw(id domain.RequestID) {
	r.pending = id
	if id > r.lastRequest {
		r.lastRequest = id
	}
	r.state = domain.StateCalculating
}

// reset closes the settled round and opens the next one with the rolled over
// pool. Payouts are credited as pending withdrawals until disbursed.
func (r *round) reset(now time.Time, numbers domain.Guess, winners []common.Address, payouts []domain.Payout, rollover uint64) {
	for _, p := range payouts {
		r.withdrawals[p.Player] += p.Amount
	}
	r.number++
	r.state = domain.StateOpen
	r.pool = rollover
	r.entries = nil
	r.pending = 0
	r.lastTimestamp = now.UTC()
	r.recentWinners = append([]common.Address(nil), winners...)
	r.lastNumbers = &numbers
}

func (r *round) debit(player common.Address, amount uint64) {
	if r.withdrawals[player] <= amount {
		delete(r.withdrawals, player)
		return
	}
	r.withdrawals[player] -= amount
}

func (r *round) credit(player common.Address, amount uint64) {
	r.withdrawals[player] += amount
}
