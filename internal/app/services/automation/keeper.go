package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	domain "github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/metrics"
	lotterysvc "github.com/R3E-Network/lottery_layer/internal/app/services/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/system"
	"github.com/R3E-Network/lottery_layer/pkg/logger"
)

// Upkeeper is the lottery surface the keeper drives.
type Upkeeper interface {
	CheckUpkeep(ctx context.Context) domain.UpkeepStatus
	PerformUpkeep(ctx context.Context) (domain.RequestID, error)
}

// Keeper polls the upkeep predicate on a cron schedule and performs upkeep
// when it holds.
type Keeper struct {
	target   Upkeeper
	log      *logger.Logger
	schedule string
	timeout  time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

var _ system.Service = (*Keeper)(nil)

// NewKeeper creates a keeper polling every interval.
func NewKeeper(target Upkeeper, interval time.Duration, log *logger.Logger) (*Keeper, error) {
	if target == nil {
		return nil, fmt.Errorf("upkeep target is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("keeper interval must be positive")
	}
	if log == nil {
		log = logger.NewDefault("keeper")
	}
	return &Keeper{
		target:   target,
		log:      log,
		schedule: "@every " + interval.String(),
		timeout:  30 * time.Second,
	}, nil
}

func (k *Keeper) Name() string { return "lottery-keeper" }

// Start schedules the polling job.
func (k *Keeper) Start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.running {
		return nil
	}

	cronLog := cron.PrintfLogger(k.log)
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	if _, err := c.AddFunc(k.schedule, func() {
		runCtx, cancel := context.WithTimeout(context.Background(), k.timeout)
		defer cancel()
		_, _, _ = k.RunOnce(runCtx)
	}); err != nil {
		return fmt.Errorf("schedule keeper %q: %w", k.schedule, err)
	}
	c.Start()
	k.cron = c
	k.running = true
	k.log.WithField("schedule", k.schedule).Info("keeper started")
	return nil
}

// Stop cancels the schedule and waits for a running job to finish.
func (k *Keeper) Stop(ctx context.Context) error {
	k.mu.Lock()
	if !k.running {
		k.mu.Unlock()
		return nil
	}
	c := k.cron
	k.cron = nil
	k.running = false
	k.mu.Unlock()

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	k.log.Info("keeper stopped")
	return nil
}

// RunOnce evaluates upkeep and performs it when needed. It reports the issued
// request id and whether upkeep was performed. Losing a race with another
// trigger is not an error.
func (k *Keeper) RunOnce(ctx context.Context) (domain.RequestID, bool, error) {
	start := time.Now()
	status := k.target.CheckUpkeep(ctx)
	if !status.Needed {
		metrics.RecordKeeperRun("skipped", time.Since(start))
		k.log.WithField("reason", status.Reason).Debug("upkeep not needed")
		return 0, false, nil
	}

	id, err := k.target.PerformUpkeep(ctx)
	switch {
	case errors.Is(err, lotterysvc.ErrUpkeepNotNeeded):
		metrics.RecordKeeperRun("skipped", time.Since(start))
		k.log.WithError(err).Debug("upkeep raced with another trigger")
		return 0, false, nil
	case err != nil:
		metrics.RecordKeeperRun("error", time.Since(start))
		k.log.WithError(err).Warn("perform upkeep failed")
		return 0, false, err
	}
	metrics.RecordKeeperRun("performed", time.Since(start))
	k.log.WithField("request_id", id).Info("upkeep performed")
	return id, true, nil
}
