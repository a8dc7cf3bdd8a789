package app

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	domain "github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/events"
	"github.com/R3E-Network/lottery_layer/internal/app/services/automation"
	lotterysvc "github.com/R3E-Network/lottery_layer/internal/app/services/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/services/vrf"
	"github.com/R3E-Network/lottery_layer/internal/app/storage"
	"github.com/R3E-Network/lottery_layer/internal/app/storage/memory"
	"github.com/R3E-Network/lottery_layer/internal/app/system"
	"github.com/R3E-Network/lottery_layer/pkg/logger"
)

// Options configures the application. Nil collaborators default to
// in-process implementations.
type Options struct {
	Lottery domain.Config

	// Store defaults to the in-memory store.
	Store storage.LotteryStore
	// Coordinator defaults to a LocalCoordinator.
	Coordinator lotterysvc.Coordinator
	// Disburser defaults to an in-memory Treasury.
	Disburser lotterysvc.Disburser
	Matcher   lotterysvc.Matcher
	Payout    lotterysvc.PayoutPolicy

	// KeeperInterval enables the upkeep keeper when positive.
	KeeperInterval time.Duration
	// AutoFulfil starts the local coordinator's background fulfiller.
	AutoFulfil      bool
	FulfilmentDelay time.Duration

	// Publisher, when set, receives every notification on RedisChannel.
	Publisher    events.Publisher
	RedisChannel string

	EventBuffer int
	Clock       clock.Clock
}

// Application ties the lottery services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Lottery  *lotterysvc.Service
	Events   *events.Bus
	Treasury *lotterysvc.Treasury
	LocalVRF *vrf.LocalCoordinator
	Keeper   *automation.Keeper
}

// New builds a fully initialised application.
func New(opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if opts.Store == nil {
		opts.Store = memory.New()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	bus := events.NewBus(opts.EventBuffer)
	if opts.Publisher != nil {
		pub := events.NewRedisPublisher(opts.Publisher, opts.RedisChannel, log)
		bus.Subscribe(pub.Handler())
	}

	application := &Application{
		manager: system.NewManager(),
		log:     log,
		Events:  bus,
	}

	coordinator := opts.Coordinator
	if coordinator == nil {
		application.LocalVRF = vrf.NewLocalCoordinator(log,
			vrf.WithFulfilmentDelay(opts.FulfilmentDelay),
			vrf.WithLocalClock(opts.Clock))
		coordinator = application.LocalVRF
	}

	disburser := opts.Disburser
	if disburser == nil {
		application.Treasury = lotterysvc.NewTreasury()
		disburser = application.Treasury
	}

	svcOpts := []lotterysvc.Option{
		lotterysvc.WithNotifier(bus),
		lotterysvc.WithDisburser(disburser),
		lotterysvc.WithClock(opts.Clock),
	}
	if opts.Matcher != nil {
		svcOpts = append(svcOpts, lotterysvc.WithMatcher(opts.Matcher))
	}
	if opts.Payout != nil {
		svcOpts = append(svcOpts, lotterysvc.WithPayoutPolicy(opts.Payout))
	}
	lottery, err := lotterysvc.New(opts.Lottery, coordinator, opts.Store, log, svcOpts...)
	if err != nil {
		return nil, err
	}
	application.Lottery = lottery

	services := []system.Service{lottery}
	if application.LocalVRF != nil {
		application.LocalVRF.SetConsumer(lottery)
		services = append(services, &vrfRecovery{
			lottery: lottery,
			local:   application.LocalVRF,
			store:   opts.Store,
			log:     log,
		})
		if opts.AutoFulfil {
			services = append(services, application.LocalVRF)
		}
	}
	if opts.KeeperInterval > 0 {
		keeper, err := automation.NewKeeper(lottery, opts.KeeperInterval, log)
		if err != nil {
			return nil, fmt.Errorf("configure keeper: %w", err)
		}
		application.Keeper = keeper
		services = append(services, keeper)
	}

	for _, svc := range services {
		if err := application.manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}
	return application, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
