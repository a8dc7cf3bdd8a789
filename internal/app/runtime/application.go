package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	app "github.com/R3E-Network/lottery_layer/internal/app"
	"github.com/R3E-Network/lottery_layer/internal/app/httpapi"
	lotterysvc "github.com/R3E-Network/lottery_layer/internal/app/services/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/services/vrf"
	"github.com/R3E-Network/lottery_layer/internal/app/storage/postgres"
	"github.com/R3E-Network/lottery_layer/internal/config"
	"github.com/R3E-Network/lottery_layer/internal/platform/migrations"
	"github.com/R3E-Network/lottery_layer/pkg/logger"
)

// Options overrides parts of the loaded configuration.
type Options struct {
	// Addr overrides SERVER_HOST/SERVER_PORT.
	Addr      string
	AuditFile string
}

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	app        *app.Application
	httpServer *http.Server
	closers    []io.Closer
}

// NewApplication constructs the lottery service from cfg. External
// connections (postgres, redis) are opened and checked here.
func NewApplication(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*Application, error) {
	if log == nil {
		log = logger.New(cfg.Logging.Logger())
	}
	a := &Application{cfg: cfg, log: log}

	appOpts, err := a.buildOptions(ctx)
	if err != nil {
		a.closeAll()
		return nil, err
	}
	application, err := app.New(appOpts, log)
	if err != nil {
		a.closeAll()
		return nil, err
	}
	a.app = application

	handler, err := httpapi.NewHandler(application, httpapi.Options{
		CallbackToken: cfg.Lottery.CallbackToken,
		EntryRate:     cfg.Server.EntryRate,
		EntryBurst:    cfg.Server.EntryBurst,
		CORSOrigins:   cfg.Server.CORSOrigins,
		AuditFile:     opts.AuditFile,
		Log:           log,
	})
	if err != nil {
		a.closeAll()
		return nil, err
	}

	addr := opts.Addr
	if addr == "" {
		addr = cfg.Server.Address()
	}
	a.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// App exposes the wired application.
func (a *Application) App() *app.Application { return a.app }

func (a *Application) buildOptions(ctx context.Context) (app.Options, error) {
	cfg := a.cfg
	lotteryCfg, err := cfg.LotteryConfig()
	if err != nil {
		return app.Options{}, err
	}
	matcher, err := SelectMatcher(cfg.Lottery.Matcher)
	if err != nil {
		return app.Options{}, err
	}
	opts := app.Options{
		Lottery:         lotteryCfg,
		Matcher:         matcher,
		KeeperInterval:  cfg.Lottery.KeeperPoll,
		FulfilmentDelay: cfg.Lottery.FulfilmentDelay,
		RedisChannel:    cfg.Redis.Channel,
	}

	if strings.TrimSpace(cfg.Database.DSN) != "" {
		db, err := openDatabase(ctx, cfg.Database)
		if err != nil {
			return app.Options{}, fmt.Errorf("open database: %w", err)
		}
		a.closers = append(a.closers, db)
		opts.Store = postgres.New(db)
		a.log.Info("using postgres store")
	} else {
		a.log.Warn("DATABASE_URL not set; round state is kept in memory only")
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, client)
		if err := client.Ping(ctx).Err(); err != nil {
			return app.Options{}, fmt.Errorf("ping redis: %w", err)
		}
		opts.Publisher = client
		a.log.WithField("channel", cfg.Redis.Channel).Info("publishing notifications to redis")
	}

	network := cfg.Network()
	if cfg.IsDevelopment() {
		opts.AutoFulfil = true
		a.log.WithField("network", network.Name).Info("using in-process randomness coordinator")
		return opts, nil
	}
	coordinator, err := vrf.NewHTTPCoordinator(&http.Client{Timeout: 15 * time.Second},
		cfg.Lottery.CoordinatorURL, cfg.Lottery.CoordinatorKey, cfg.Lottery.CallbackURL, a.log)
	if err != nil {
		return app.Options{}, fmt.Errorf("network %s: %w", network.Name, err)
	}
	opts.Coordinator = coordinator
	a.log.WithField("network", network.Name).
		WithField("coordinator", network.VRFCoordinator).
		Info("using remote randomness coordinator")
	return opts, nil
}

// Run starts the services and the HTTP server and blocks until the context
// is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		lotteryCfg := a.app.Lottery.Config()
		a.log.WithField("addr", a.httpServer.Addr).
			WithField("entry_fee", lotteryCfg.EntryFee).
			WithField("interval", lotteryCfg.Interval).
			Info("lottery API listening")
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server, the services and any open
// connections.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var errs []error
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := a.app.Stop(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	a.closeAll()
	return errors.Join(errs...)
}

func (a *Application) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.WithError(err).Warn("error closing connection")
		}
	}
	a.closers = nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn not configured")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	if cfg.MigrateOnStart {
		if err := migrations.Apply(ctx, db.DB); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
	}
	return db, nil
}

// SelectMatcher maps a configured matcher name to its implementation.
func SelectMatcher(name string) (lotterysvc.Matcher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "positional":
		return lotterysvc.PositionalMatcher{}, nil
	case "set", "unordered":
		return lotterysvc.SetMatcher{}, nil
	default:
		return nil, fmt.Errorf("unknown matcher %q (want positional or set)", name)
	}
}
