// Package testutil provides common testing utilities and mock implementations.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	domain "github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/storage"
	"github.com/R3E-Network/lottery_layer/internal/app/storage/memory"
)

// ErrStoreUnavailable is returned by FlakyStore while failing.
var ErrStoreUnavailable = errors.New("store unavailable")

// MockCoordinator is a test implementation of the randomness coordinator. It
// hands out sequential request ids starting at 1 and records the parameters
// of every request.
type MockCoordinator struct {
	mu     sync.Mutex
	nextID domain.RequestID
	err    error
	params []domain.RandomnessParams
}

// RequestRandomWords records params and returns the next id, or the
// configured error.
func (m *MockCoordinator) RequestRandomWords(_ context.Context, params domain.RandomnessParams) (domain.RequestID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.nextID++
	m.params = append(m.params, params)
	return m.nextID, nil
}

// FailWith makes subsequent requests return err. A nil err clears it.
func (m *MockCoordinator) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Requests returns the recorded request parameters.
func (m *MockCoordinator) Requests() []domain.RandomnessParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.RandomnessParams(nil), m.params...)
}

// FlakyStore wraps a LotteryStore and can be switched to fail SaveRound.
type FlakyStore struct {
	storage.LotteryStore
	failing atomic.Bool
}

// NewFlakyStore wraps an in-memory store.
func NewFlakyStore() *FlakyStore {
	return &FlakyStore{LotteryStore: memory.New()}
}

// SetFailing toggles SaveRound failures.
func (s *FlakyStore) SetFailing(fail bool) { s.failing.Store(fail) }

// SaveRound fails with ErrStoreUnavailable while failing.
func (s *FlakyStore) SaveRound(ctx context.Context, round domain.Round) error {
	if s.failing.Load() {
		return ErrStoreUnavailable
	}
	return s.LotteryStore.SaveRound(ctx, round)
}

// Address returns a deterministic player address for n.
func Address(n uint64) common.Address {
	return common.HexToAddress(fmt.Sprintf("0x%040x", n))
}

// Words converts small values into randomness words.
func Words(vals ...uint64) []*uint256.Int {
	out := make([]*uint256.Int, len(vals))
	for i, v := range vals {
		out[i] = uint256.NewInt(v)
	}
	return out
}
