package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	domain "github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu          sync.RWMutex
	round       *domain.Round
	settlements []domain.Settlement
}

var _ storage.LotteryStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// LotteryStore implementation -------------------------------------------------

func (s *Store) SaveRound(_ context.Context, round domain.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneRound(round)
	s.round = &cp
	return nil
}

func (s *Store) LoadRound(_ context.Context) (domain.Round, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.round == nil {
		return domain.Round{}, false, nil
	}
	return cloneRound(*s.round), true, nil
}

func (s *Store) AppendSettlement(_ context.Context, settlement domain.Settlement) (domain.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if settlement.ID == "" {
		settlement.ID = uuid.NewString()
	}
	if settlement.SettledAt.IsZero() {
		settlement.SettledAt = time.Now().UTC()
	}
	settlement = cloneSettlement(settlement)
	s.settlements = append(s.settlements, settlement)
	return cloneSettlement(settlement), nil
}

func (s *Store) ListSettlements(_ context.Context, limit int) ([]domain.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.settlements)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.Settlement, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, cloneSettlement(s.settlements[i]))
	}
	return out, nil
}

func cloneRound(r domain.Round) domain.Round {
	r.Entries = append([]domain.Entry(nil), r.Entries...)
	r.RecentWinners = append([]common.Address(nil), r.RecentWinners...)
	if r.LastWinningNumbers != nil {
		g := *r.LastWinningNumbers
		r.LastWinningNumbers = &g
	}
	if r.Withdrawals != nil {
		w := make(map[common.Address]uint64, len(r.Withdrawals))
		for k, v := range r.Withdrawals {
			w[k] = v
		}
		r.Withdrawals = w
	}
	return r
}

func cloneSettlement(s domain.Settlement) domain.Settlement {
	s.Winners = append([]common.Address(nil), s.Winners...)
	s.Payouts = append([]domain.Payout(nil), s.Payouts...)
	return s
}
