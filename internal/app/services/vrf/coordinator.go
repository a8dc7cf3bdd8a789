// Package vrf provides randomness coordinators for the lottery: an in-process
// coordinator for development networks and an HTTP client for an external
// oracle.
package vrf

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	domain "github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/system"
	"github.com/R3E-Network/lottery_layer/pkg/logger"
)

// MaxNumWords bounds a single request.
const MaxNumWords = 500

var (
	ErrNonexistentRequest = errors.New("nonexistent request")
	ErrInvalidNumWords    = errors.New("invalid number of words")
	ErrNoConsumer         = errors.New("no consumer attached")
)

// Consumer receives fulfilled randomness.
type Consumer interface {
	FulfillRandomWords(ctx context.Context, id domain.RequestID, words []*uint256.Int) error
}

// Request is an outstanding randomness request.
type Request struct {
	ID          domain.RequestID        `json:"request_id"`
	Params      domain.RandomnessParams `json:"params"`
	RequestedAt time.Time               `json:"requested_at"`
}

// LocalCoordinator issues sequential request ids starting at 1 and derives
// words deterministically from the id. When started, it fulfils requests
// older than its delay in the background.
type LocalCoordinator struct {
	log      *logger.Logger
	clock    clock.Clock
	delay    time.Duration
	interval time.Duration

	mu       sync.Mutex
	consumer Consumer
	nextID   domain.RequestID
	pending  map[domain.RequestID]Request
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
}

var _ system.Service = (*LocalCoordinator)(nil)

// LocalOption customises a LocalCoordinator.
type LocalOption func(*LocalCoordinator)

// WithFulfilmentDelay sets how long a request waits before the background
// worker fulfils it.
func WithFulfilmentDelay(d time.Duration) LocalOption {
	return func(c *LocalCoordinator) { c.delay = d }
}

// WithPollInterval sets how often the background worker scans for requests.
func WithPollInterval(d time.Duration) LocalOption {
	return func(c *LocalCoordinator) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithLocalClock replaces the wall clock.
func WithLocalClock(clk clock.Clock) LocalOption {
	return func(c *LocalCoordinator) { c.clock = clk }
}

// NewLocalCoordinator creates a coordinator without a consumer. Attach one
// with SetConsumer before fulfilling.
func NewLocalCoordinator(log *logger.Logger, opts ...LocalOption) *LocalCoordinator {
	if log == nil {
		log = logger.NewDefault("vrf-local")
	}
	c := &LocalCoordinator{
		log:      log,
		clock:    clock.New(),
		interval: time.Second,
		pending:  make(map[domain.RequestID]Request),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetConsumer attaches the contract-side receiver of fulfilments.
func (c *LocalCoordinator) SetConsumer(consumer Consumer) {
	c.mu.Lock()
	c.consumer = consumer
	c.mu.Unlock()
}

// RequestRandomWords records a request and returns its id. It never calls
// back into the consumer synchronously.
func (c *LocalCoordinator) RequestRandomWords(ctx context.Context, params domain.RandomnessParams) (domain.RequestID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if params.NumWords == 0 || params.NumWords > MaxNumWords {
		return 0, fmt.Errorf("%w: %d", ErrInvalidNumWords, params.NumWords)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.pending[id] = Request{ID: id, Params: params, RequestedAt: c.clock.Now().UTC()}
	c.log.WithField("request_id", id).
		WithField("num_words", params.NumWords).
		Debug("randomness requested")
	return id, nil
}

// Reserve keeps ids up to and including id from being issued again.
func (c *LocalCoordinator) Reserve(id domain.RequestID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id > c.nextID {
		c.nextID = id
	}
}

// Restore re-registers a request issued before a restart so it can still be
// fulfilled. Its fulfilment delay counts from now.
func (c *LocalCoordinator) Restore(id domain.RequestID, params domain.RandomnessParams) error {
	if id == 0 {
		return fmt.Errorf("%w: %d", ErrNonexistentRequest, id)
	}
	if params.NumWords == 0 || params.NumWords > MaxNumWords {
		return fmt.Errorf("%w: %d", ErrInvalidNumWords, params.NumWords)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if id > c.nextID {
		c.nextID = id
	}
	if _, ok := c.pending[id]; !ok {
		c.pending[id] = Request{ID: id, Params: params, RequestedAt: c.clock.Now().UTC()}
	}
	c.log.WithField("request_id", id).Info("randomness request restored")
	return nil
}

// CancelRequest drops an outstanding request.
func (c *LocalCoordinator) CancelRequest(_ context.Context, id domain.RequestID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[id]; !ok {
		return fmt.Errorf("%w: %d", ErrNonexistentRequest, id)
	}
	delete(c.pending, id)
	return nil
}

// Pending lists outstanding requests ordered by id.
func (c *LocalCoordinator) Pending() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Request, 0, len(c.pending))
	for _, r := range c.pending {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Fulfill delivers the derived words for id to the consumer.
func (c *LocalCoordinator) Fulfill(ctx context.Context, id domain.RequestID) error {
	c.mu.Lock()
	req, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrNonexistentRequest, id)
	}
	return c.FulfillWithWords(ctx, id, DeriveWords(id, req.Params.NumWords))
}

// FulfillWithWords delivers caller supplied words. The request is consumed
// only when the consumer accepts them.
func (c *LocalCoordinator) FulfillWithWords(ctx context.Context, id domain.RequestID, words []*uint256.Int) error {
	c.mu.Lock()
	_, ok := c.pending[id]
	consumer := c.consumer
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrNonexistentRequest, id)
	}
	if consumer == nil {
		return ErrNoConsumer
	}
	if err := consumer.FulfillRandomWords(ctx, id, words); err != nil {
		return fmt.Errorf("fulfil request %d: %w", id, err)
	}
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
	c.log.WithField("request_id", id).Info("randomness fulfilled")
	return nil
}

// DeriveWords returns keccak256(abi.encode(id, i)) for i in [0, n).
func DeriveWords(id domain.RequestID, n uint32) []*uint256.Int {
	out := make([]*uint256.Int, n)
	idWord := uint256.NewInt(uint64(id)).Bytes32()
	for i := uint32(0); i < n; i++ {
		idx := uint256.NewInt(uint64(i)).Bytes32()
		buf := make([]byte, 0, 64)
		buf = append(buf, idWord[:]...)
		buf = append(buf, idx[:]...)
		out[i] = new(uint256.Int).SetBytes(crypto.Keccak256(buf))
	}
	return out
}

func (c *LocalCoordinator) Name() string { return "vrf-local-coordinator" }

// Start launches the background fulfiller.
func (c *LocalCoordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	c.mu.Unlock()

	ticker := c.clock.Ticker(c.interval)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				c.tick(runCtx)
			}
		}
	}()

	c.log.WithField("delay", c.delay).Info("local vrf fulfiller started")
	return nil
}

// Stop halts the background fulfiller.
func (c *LocalCoordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	c.running = false
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.log.Info("local vrf fulfiller stopped")
	return nil
}

func (c *LocalCoordinator) tick(ctx context.Context) {
	now := c.clock.Now()
	for _, req := range c.Pending() {
		if now.Sub(req.RequestedAt) < c.delay {
			continue
		}
		if err := c.Fulfill(ctx, req.ID); err != nil {
			c.log.WithError(err).
				WithField("request_id", req.ID).
				Warn("background fulfilment failed")
		}
	}
}
