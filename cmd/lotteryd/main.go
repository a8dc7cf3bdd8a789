// Package main runs the lottery service: the round state machine, the
// upkeep keeper, the randomness coordinator client and the HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/R3E-Network/lottery_layer/internal/app/runtime"
	"github.com/R3E-Network/lottery_layer/internal/config"
	"github.com/R3E-Network/lottery_layer/pkg/logger"
)

func main() {
	var (
		envFile   = flag.String("env", ".env", "Path to an optional .env file")
		addr      = flag.String("addr", "", "Listen address (overrides SERVER_HOST/SERVER_PORT)")
		auditFile = flag.String("audit-file", "", "Append state-changing requests to this JSONL file")
	)
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Logging.Logger())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := runtime.NewApplication(ctx, cfg, log, runtime.Options{Addr: *addr, AuditFile: *auditFile})
	if err != nil {
		log.WithError(err).Fatal("failed to initialise lotteryd")
	}

	runErr := application.Run(ctx)
	if runErr != nil {
		log.WithError(runErr).Error("lotteryd stopped unexpectedly")
	} else {
		log.Info("shutdown signal received")
	}
	if err := application.Shutdown(context.Background()); err != nil {
		log.WithError(err).Error("shutdown")
	}
	if runErr != nil {
		os.Exit(1)
	}
}
