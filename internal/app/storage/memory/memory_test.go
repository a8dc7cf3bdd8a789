package memory

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	domain "github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
)

func TestRoundSnapshotIsIsolated(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, ok, err := store.LoadRound(ctx); err != nil || ok {
		t.Fatalf("fresh store: ok=%v err=%v", ok, err)
	}

	player := common.HexToAddress("0x01")
	round := domain.Round{
		Number:      1,
		State:       domain.StateOpen,
		Pool:        10,
		Entries:     []domain.Entry{{Player: player, Numbers: domain.Guess{1, 2, 3, 4, 5}, Amount: 10}},
		Withdrawals: map[common.Address]uint64{player: 5},
	}
	if err := store.SaveRound(ctx, round); err != nil {
		t.Fatalf("save round: %v", err)
	}

	round.Entries[0].Amount = 99
	round.Withdrawals[player] = 99

	loaded, ok, err := store.LoadRound(ctx)
	if err != nil || !ok {
		t.Fatalf("load round: ok=%v err=%v", ok, err)
	}
	if loaded.Entries[0].Amount != 10 || loaded.Withdrawals[player] != 5 {
		t.Fatalf("stored snapshot was mutated: %+v", loaded)
	}
}

func TestListSettlementsNewestFirst(t *testing.T) {
	store := New()
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		saved, err := store.AppendSettlement(ctx, domain.Settlement{RoundNumber: uint64(i), RequestID: domain.RequestID(i)})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if saved.ID == "" {
			t.Fatalf("expected generated id")
		}
	}

	list, _ := store.ListSettlements(ctx, 2)
	if len(list) != 2 || list[0].RequestID != 3 || list[1].RequestID != 2 {
		t.Fatalf("unexpected order: %+v", list)
	}
	all, _ := store.ListSettlements(ctx, 0)
	if len(all) != 3 {
		t.Fatalf("limit 0 should return all, got %d", len(all))
	}
}
