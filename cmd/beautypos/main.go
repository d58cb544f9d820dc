// beautypos is the offline-first point-of-sale terminal for the shop: a
// local SQLite-backed store fronted by an HTTP API, kept in sync with the
// remote spreadsheet backend whenever connectivity allows.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/beautystore/beautypos/api"
	"github.com/beautystore/beautypos/config"
	posErrors "github.com/beautystore/beautypos/errors"
	"github.com/beautystore/beautypos/gateway"
	"github.com/beautystore/beautypos/gateway/appsscript"
	"github.com/beautystore/beautypos/localstore/sqlite"
	"github.com/beautystore/beautypos/logging"
	"github.com/beautystore/beautypos/repository"
	"github.com/beautystore/beautypos/sync"
)

func main() {
	if err := run(); err != nil {
		logging.Default().Error("fatal", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	logging.Init(logging.GetConfigFromEnv())
	logger := logging.WithComponent(logging.Component("main"))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	store, err := sqlite.New(sqlite.DefaultConfig(cfg.DatabasePath))
	if err != nil {
		return fmt.Errorf("opening local store: %w", err)
	}
	defer store.Close()

	var remote gateway.Caller
	if cfg.RemoteBaseURL != "" {
		remote = appsscript.New(cfg.RemoteBaseURL, appsscript.WithTimeout(cfg.RemoteTimeout))
	} else {
		logger.Warn("no remote endpoint configured, running purely offline")
		remote = offlineRemote{}
	}

	engine := sync.New(store, store, remote, sync.Options{
		SyncInterval:  cfg.SyncInterval,
		RemoteTimeout: cfg.RemoteTimeout,
	})
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("starting sync engine: %w", err)
	}

	products := repository.NewProducts(store, store, engine, cfg)
	sales := repository.NewSales(store, store, engine, cfg)
	server := api.NewServer(engine, products, sales, cfg)

	logger.Info("beautypos starting",
		slog.String("addr", cfg.HTTPAddr),
		slog.String("db", cfg.DatabasePath),
		slog.Bool("remote_configured", cfg.RemoteBaseURL != ""))

	if err := server.Serve(ctx, cfg.HTTPAddr); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	engine.Wait()
	logger.Info("beautypos stopped")
	return nil
}

// offlineRemote keeps the engine permanently offline when no remote
// endpoint is configured; every queued operation waits for a real one.
type offlineRemote struct{}

func (offlineRemote) Call(ctx context.Context, action gateway.Action, payload interface{}) (*gateway.Response, error) {
	return nil, posErrors.NewNetworkError(posErrors.OpCall,
		fmt.Errorf("%s: no remote endpoint configured", action))
}
