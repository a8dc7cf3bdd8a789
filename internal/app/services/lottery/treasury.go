package lottery

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrRecipientRejected is returned by Treasury for blocked recipients.
var ErrRecipientRejected = errors.New("recipient rejected transfer")

// Disburser moves value out of the lottery to a player.
type Disburser interface {
	Transfer(ctx context.Context, to common.Address, amount uint64) error
}

// Treasury is an in-memory balance book of what has been paid to each player.
type Treasury struct {
	mu       sync.RWMutex
	balances map[common.Address]uint64
	blocked  map[common.Address]bool
	total    uint64
}

var _ Disburser = (*Treasury)(nil)

// NewTreasury returns an empty treasury.
func NewTreasury() *Treasury {
	return &Treasury{
		balances: make(map[common.Address]uint64),
		blocked:  make(map[common.Address]bool),
	}
}

// Transfer credits amount to the recipient.
func (t *Treasury) Transfer(ctx context.Context, to common.Address, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.blocked[to] {
		return ErrRecipientRejected
	}
	t.balances[to] += amount
	t.total += amount
	return nil
}

// Block makes every later transfer to addr fail.
func (t *Treasury) Block(addr common.Address) {
	t.mu.Lock()
	t.blocked[addr] = true
	t.mu.Unlock()
}

// Unblock reverses Block.
func (t *Treasury) Unblock(addr common.Address) {
	t.mu.Lock()
	delete(t.blocked, addr)
	t.mu.Unlock()
}

// Balance returns the total transferred to addr.
func (t *Treasury) Balance(addr common.Address) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balances[addr]
}

// Total returns the sum of all transfers.
func (t *Treasury) Total() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.total
}
