package app

import (
	"context"
	"fmt"

	lotterysvc "github.com/R3E-Network/lottery_layer/internal/app/services/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/services/vrf"
	"github.com/R3E-Network/lottery_layer/internal/app/storage"
	"github.com/R3E-Network/lottery_layer/pkg/logger"
)

// vrfRecovery resumes the local coordinator from the restored round. It is
// registered after the lottery so the round has been loaded when it starts.
type vrfRecovery struct {
	lottery *lotterysvc.Service
	local   *vrf.LocalCoordinator
	store   storage.LotteryStore
	log     *logger.Logger
}

func (r *vrfRecovery) Name() string { return "vrf-recovery" }

func (r *vrfRecovery) Start(ctx context.Context) error {
	last := r.lottery.LastRequest()
	settled, err := r.store.ListSettlements(ctx, 1)
	if err != nil {
		return fmt.Errorf("load last settlement: %w", err)
	}
	if len(settled) > 0 && settled[0].RequestID > last {
		last = settled[0].RequestID
	}
	r.local.Reserve(last)

	pending := r.lottery.PendingRequest()
	if pending == 0 {
		return nil
	}
	if err := r.local.Restore(pending, r.lottery.Config().Randomness); err != nil {
		return fmt.Errorf("restore request %d: %w", pending, err)
	}
	r.log.WithField("request_id", pending).
		WithField("last_request", last).
		Info("pending draw resumed")
	return nil
}

func (r *vrfRecovery) Stop(context.Context) error { return nil }
