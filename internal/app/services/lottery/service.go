package lottery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	domain "github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/events"
	"github.com/R3E-Network/lottery_layer/internal/app/metrics"
	"github.com/R3E-Network/lottery_layer/internal/app/storage"
	"github.com/R3E-Network/lottery_layer/internal/app/system"
	"github.com/R3E-Network/lottery_layer/pkg/logger"
)

// Coordinator issues randomness requests. Fulfilment arrives later through
// Service.FulfillRandomWords.
type Coordinator interface {
	RequestRandomWords(ctx context.Context, params domain.RandomnessParams) (domain.RequestID, error)
}

// Option customises a Service.
type Option func(*Service)

// WithNotifier sets the notification sink. Defaults to events.Noop.
func WithNotifier(n events.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithDisburser sets where winnings are sent. Defaults to a fresh Treasury.
func WithDisburser(d Disburser) Option {
	return func(s *Service) { s.disburser = d }
}

// WithMatcher replaces the default PositionalMatcher.
func WithMatcher(m Matcher) Option {
	return func(s *Service) { s.matcher = m }
}

// WithPayoutPolicy replaces the default EvenSplit.
func WithPayoutPolicy(p PayoutPolicy) Option {
	return func(s *Service) { s.payout = p }
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// Service runs the recurring lottery. Every operation is serialised by a
// single mutex, and state only changes after the new round snapshot has been
// persisted.
type Service struct {
	cfg         domain.Config
	coordinator Coordinator
	store       storage.LotteryStore
	notifier    events.Notifier
	disburser   Disburser
	matcher     Matcher
	payout      PayoutPolicy
	clock       clock.Clock
	log         *logger.Logger

	mu    sync.Mutex
	round *round
}

var _ system.Service = (*Service)(nil)

// New constructs a lottery service with an open, empty first round.
func New(cfg domain.Config, coordinator Coordinator, store storage.LotteryStore, log *logger.Logger, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lottery config: %w", err)
	}
	if coordinator == nil {
		return nil, fmt.Errorf("randomness coordinator is required")
	}
	if store == nil {
		return nil, fmt.Errorf("lottery store is required")
	}
	if log == nil {
		log = logger.NewDefault("lottery")
	}
	s := &Service{
		cfg:         cfg,
		coordinator: coordinator,
		store:       store,
		notifier:    events.Noop{},
		matcher:     PositionalMatcher{},
		payout:      EvenSplit{},
		clock:       clock.New(),
		log:         log,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.disburser == nil {
		s.disburser = NewTreasury()
	}
	s.round = newRound(s.clock.Now())
	return s, nil
}

// Name implements system.Service.
func (s *Service) Name() string { return "lottery" }

// Start restores the persisted round, or persists the fresh one when the
// store is empty.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok, err := s.store.LoadRound(ctx)
	if err != nil {
		return fmt.Errorf("load round: %w", err)
	}
	if !ok {
		return s.commit(ctx, s.round.clone())
	}
	s.round = roundFromRecord(rec)
	metrics.RecordRoundState(string(s.round.state), s.round.pool)
	s.log.WithField("round", s.round.number).
		WithField("state", s.round.state).
		WithField("pool", s.round.pool).
		WithField("entries", len(s.round.entries)).
		Info("lottery round restored")
	return nil
}

// Stop implements system.Service.
func (s *Service) Stop(context.Context) error { return nil }

// commit persists next and makes it the current round. On error the current
// round is untouched.
func (s *Service) commit(ctx context.Context, next *round) error {
	if err := s.store.SaveRound(ctx, next.record()); err != nil {
		return fmt.Errorf("persist round: %w", err)
	}
	s.round = next
	metrics.RecordRoundState(string(next.state), next.pool)
	return nil
}

// RequestCanceller is implemented by coordinators that can drop a request
// the lottery will never accept a fulfilment for.
type RequestCanceller interface {
	CancelRequest(ctx context.Context, id domain.RequestID) error
}

// Enter records a paid guess. Checks run in order: payment, range, state,
// then pool capacity.
func (s *Service) Enter(ctx context.Context, player common.Address, guess domain.Guess, paid uint64) (domain.Entry, error) {
	if paid < s.cfg.EntryFee {
		metrics.RecordEntryRejected("payment_insufficient")
		return domain.Entry{}, fmt.Errorf("%w: paid %d, fee %d", ErrPaymentInsufficient, paid, s.cfg.EntryFee)
	}
	if !guess.InRange() {
		metrics.RecordEntryRejected("guess_out_of_range")
		return domain.Entry{}, fmt.Errorf("%w: %v not within [%d,%d]", ErrGuessOutOfRange, guess, domain.MinNumber, domain.MaxNumber)
	}

	s.mu.Lock()
	if s.round.state != domain.StateOpen {
		s.mu.Unlock()
		metrics.RecordEntryRejected("round_not_open")
		return domain.Entry{}, ErrRoundNotOpen
	}
	if !s.round.canAccept(paid) {
		pool := s.round.pool
		s.mu.Unlock()
		metrics.RecordEntryRejected("pool_overflow")
		return domain.Entry{}, fmt.Errorf("%w: pool %d, paid %d, max %d", ErrPoolOverflow, pool, paid, domain.MaxPool)
	}
	next := s.round.clone()
	entry := next.enter(domain.Entry{
		Player:    player,
		Numbers:   guess,
		Amount:    paid,
		EnteredAt: s.clock.Now().UTC(),
	})
	if err := s.commit(ctx, next); err != nil {
		s.mu.Unlock()
		return domain.Entry{}, err
	}
	number, pool := next.number, next.pool
	s.mu.Unlock()

	metrics.RecordEntry(pool)
	s.log.WithField("round", number).
		WithField("player", player.Hex()).
		WithField("index", entry.Index).
		WithField("amount", paid).
		Debug("entry accepted")
	s.notifier.Notify(ctx, events.GameEntered(number, entry))
	return entry, nil
}

// CheckUpkeep reports whether a draw should be requested now.
func (s *Service) CheckUpkeep(ctx context.Context) domain.UpkeepStatus {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round.checkUpkeep(s.clock.Now(), s.cfg.Interval)
}

// PerformUpkeep closes entry and requests randomness for the draw.
func (s *Service) PerformUpkeep(ctx context.Context) (domain.RequestID, error) {
	s.mu.Lock()
	status := s.round.checkUpkeep(s.clock.Now(), s.cfg.Interval)
	if !status.Needed {
		err := &UpkeepNotNeededError{
			Reason:  status.Reason,
			Pool:    s.round.pool,
			Entries: len(s.round.entries),
			State:   s.round.state,
		}
		s.mu.Unlock()
		return 0, err
	}

	id, err := s.coordinator.RequestRandomWords(ctx, s.cfg.Randomness)
	if err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("request randomness: %w", err)
	}
	if id == 0 {
		s.mu.Unlock()
		return 0, fmt.Errorf("request randomness: coordinator returned id 0")
	}

	next := s.round.clone()
	next.requestDraw(id)
	if err := s.commit(ctx, next); err != nil {
		s.mu.Unlock()
		s.abandonRequest(ctx, id, err)
		return 0, err
	}
	number := next.number
	s.mu.Unlock()

	metrics.RecordDrawRequested()
	s.log.WithField("round", number).
		WithField("request_id", id).
		Info("draw requested")
	s.notifier.Notify(ctx, events.DrawRequested(number, id))
	return id, nil
}

// abandonRequest handles a request issued for a draw that was never
// persisted. Fulfilments for it are rejected as stale; coordinators that
// support it are told to drop the request.
func (s *Service) abandonRequest(ctx context.Context, id domain.RequestID, cause error) {
	entry := s.log.WithError(cause).WithField("request_id", id)
	canceller, ok := s.coordinator.(RequestCanceller)
	if !ok {
		entry.Error("randomness request orphaned at coordinator")
		return
	}
	if err := canceller.CancelRequest(ctx, id); err != nil {
		entry.WithField("cancel_error", err.Error()).Error("randomness request orphaned at coordinator")
		return
	}
	entry.Warn("randomness request cancelled after persist failure")
}

// FulfillRandomWords settles the round for the pending request. Each request
// settles at most once; any other id is rejected without side effects.
func (s *Service) FulfillRandomWords(ctx context.Context, id domain.RequestID, words []*uint256.Int) error {
	s.mu.Lock()
	if id == 0 || s.round.state != domain.StateCalculating || id != s.round.pending {
		pending := s.round.pending
		s.mu.Unlock()
		return fmt.Errorf("%w: got %d, pending %d", ErrUnknownOrStaleRequest, id, pending)
	}
	numbers, err := drawNumbers(words)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: need %d words, got %d", err, domain.NumbersPerGuess, len(words))
	}

	now := s.clock.Now().UTC()
	settled := s.round
	winners := findWinners(settled.entries, numbers, s.matcher)
	payouts, rollover := s.payout.Allocate(settled.pool, winners)
	var paidOut uint64
	for _, p := range payouts {
		paidOut += p.Amount
	}
	if paidOut+rollover != settled.pool {
		s.mu.Unlock()
		return fmt.Errorf("payout policy allocated %d+%d of pool %d", paidOut, rollover, settled.pool)
	}

	next := settled.clone()
	next.reset(now, numbers, winners, payouts, rollover)
	if err := s.commit(ctx, next); err != nil {
		s.mu.Unlock()
		return err
	}

	for _, p := range payouts {
		if err := s.disburse(ctx, p.Player, p.Amount); err != nil {
			metrics.RecordDisbursementFailure()
			s.log.WithError(err).
				WithField("player", p.Player.Hex()).
				WithField("amount", p.Amount).
				Warn("payout left as pending withdrawal")
		}
	}
	s.mu.Unlock()

	record := domain.Settlement{
		RoundNumber:    settled.number,
		RequestID:      id,
		WinningNumbers: numbers,
		EntryCount:     len(settled.entries),
		Winners:        winners,
		Payouts:        payouts,
		PoolBefore:     settled.pool,
		PaidOut:        paidOut,
		Rollover:       rollover,
		SettledAt:      now,
	}
	if saved, err := s.store.AppendSettlement(ctx, record); err != nil {
		s.log.WithError(err).WithField("request_id", id).Warn("record settlement history")
	} else {
		record = saved
	}

	outcome := "rollover"
	if len(winners) > 0 {
		outcome = "winners"
	}
	metrics.RecordSettlement(outcome, paidOut)
	s.log.WithField("round", settled.number).
		WithField("request_id", id).
		WithField("numbers", numbers).
		WithField("winners", len(winners)).
		WithField("paid_out", paidOut).
		WithField("rollover", rollover).
		Info("round settled")
	s.notifier.Notify(ctx, events.WinnersPicked(record))
	return nil
}

// disburse debits the pending withdrawal, persists, then transfers. A failed
// transfer restores the pending withdrawal. Callers hold s.mu.
func (s *Service) disburse(ctx context.Context, player common.Address, amount uint64) error {
	debited := s.round.clone()
	debited.debit(player, amount)
	if err := s.commit(ctx, debited); err != nil {
		return err
	}
	if err := s.disburser.Transfer(ctx, player, amount); err != nil {
		restored := s.round.clone()
		restored.credit(player, amount)
		if cerr := s.commit(ctx, restored); cerr != nil {
			// Keep the credit in memory; the next successful commit persists it.
			s.round = restored
			s.log.WithError(cerr).WithField("player", player.Hex()).Error("persist restored withdrawal")
		}
		return fmt.Errorf("%w: %v", ErrDisbursementFailure, err)
	}
	return nil
}

// Withdraw retries the transfer of a player's pending withdrawal.
func (s *Service) Withdraw(ctx context.Context, player common.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	amount := s.round.withdrawals[player]
	if amount == 0 {
		return 0, ErrNothingToWithdraw
	}
	if err := s.disburse(ctx, player, amount); err != nil {
		return 0, err
	}
	s.log.WithField("player", player.Hex()).WithField("amount", amount).Info("withdrawal paid")
	return amount, nil
}

// Config returns the immutable configuration.
func (s *Service) Config() domain.Config { return s.cfg }

// EntryFee returns the configured entry fee.
func (s *Service) EntryFee() uint64 { return s.cfg.EntryFee }

// Interval returns the configured draw interval.
func (s *Service) Interval() time.Duration { return s.cfg.Interval }

// State returns the current round state.
func (s *Service) State() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round.state
}

// Pool returns the current prize pool.
func (s *Service) Pool() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round.pool
}

// EntryCount returns the number of entries in the current round.
func (s *Service) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.round.entries)
}

// Entry returns the entry at index in the current round.
func (s *Service) Entry(index int) (domain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.round.entries) {
		return domain.Entry{}, fmt.Errorf("%w: index %d of %d", ErrEntryNotFound, index, len(s.round.entries))
	}
	return s.round.entries[index], nil
}

// LastTimestamp returns when the current round opened.
func (s *Service) LastTimestamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round.lastTimestamp
}

// RecentWinners returns the winners of the last settled round.
func (s *Service) RecentWinners() []common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]common.Address(nil), s.round.recentWinners...)
}

// LastWinningNumbers returns the last drawn numbers; false before any draw.
func (s *Service) LastWinningNumbers() (domain.Guess, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.round.lastNumbers == nil {
		return domain.Guess{}, false
	}
	return *s.round.lastNumbers, true
}

// PendingRequest returns the outstanding request id, 0 when none.
func (s *Service) PendingRequest() domain.RequestID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round.pending
}

// LastRequest returns the highest request id this lottery has issued, 0
// before the first draw.
func (s *Service) LastRequest() domain.RequestID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round.lastRequest
}

// PendingWithdrawal returns the amount owed to player after failed transfers.
func (s *Service) PendingWithdrawal(player common.Address) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round.withdrawals[player]
}

// Snapshot returns every readable field at once.
func (s *Service) Snapshot() domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.round.clone()
	return domain.Status{
		RoundNumber:        r.number,
		State:              r.state,
		EntryFee:           s.cfg.EntryFee,
		Interval:           s.cfg.Interval,
		Pool:               r.pool,
		EntryCount:         len(r.entries),
		PendingRequest:     r.pending,
		LastTimestamp:      r.lastTimestamp,
		RecentWinners:      r.recentWinners,
		LastWinningNumbers: r.lastNumbers,
	}
}

// Settlements returns the newest settlements first.
func (s *Service) Settlements(ctx context.Context, limit int) ([]domain.Settlement, error) {
	return s.store.ListSettlements(ctx, limit)
}
