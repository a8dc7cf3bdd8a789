package storage

import (
	"context"

	domain "github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
)

// LotteryStore persists the single round aggregate and the settlement history.
//
// SaveRound must replace the stored snapshot atomically: either the whole
// round is written or the previous snapshot remains.
type LotteryStore interface {
	SaveRound(ctx context.Context, round domain.Round) error
	// LoadRound returns false when nothing has been saved yet.
	LoadRound(ctx context.Context) (domain.Round, bool, error)

	AppendSettlement(ctx context.Context, settlement domain.Settlement) (domain.Settlement, error)
	// ListSettlements returns the newest settlements first. A limit <= 0
	// returns all of them.
	ListSettlements(ctx context.Context, limit int) ([]domain.Settlement, error)
}
