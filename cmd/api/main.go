package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stakedeck/stakedeck/internal/api"
	"github.com/stakedeck/stakedeck/internal/chain"
	"github.com/stakedeck/stakedeck/internal/config"
	"github.com/stakedeck/stakedeck/internal/dashboard"
	"github.com/stakedeck/stakedeck/internal/ledger"
	"github.com/stakedeck/stakedeck/internal/logging"
	"github.com/stakedeck/stakedeck/internal/metrics"
	"github.com/stakedeck/stakedeck/internal/util"
	"github.com/stakedeck/stakedeck/pkg/types"
)

var version = "dev"

func main() {
	configPath := flag.String("config", config.DefaultConfigPath(), "Path to config file")
	listenAddr := flag.String("listen", "", "Listen address (overrides api.listen_addr)")
	mock := flag.Bool("mock", false, "Serve the in-memory mock ledger")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *mock {
		cfg.Mock = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.API.ListenAddr = *listenAddr
	}
	logging.Configure(os.Stdout, cfg.Log.Format, cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prom := metrics.NewPrometheusCollector(metrics.NewCollector())

	var (
		reader   ledger.Reader
		client   *chain.Client
		platform common.Address
	)
	if cfg.Mock {
		m := ledger.NewMockPlatform(common.Address{})
		if err := m.SeedUser(types.MustUserID("ROOT1"), common.HexToAddress("0x00000000000000000000000000000000000000a1"), types.UserID{}); err != nil {
			logging.Warn("mock seed failed", logging.Err(err))
		}
		reader = m
		logging.Info("serving mock ledger", logging.Component("api"))
	} else {
		client, err = chain.NewClient(cfg.ChainClientConfig(), nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating chain client: %v\n", err)
			os.Exit(1)
		}
		if err := client.Connect(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to chain: %v\n", err)
			os.Exit(1)
		}
		defer client.Close()

		platform = common.HexToAddress(cfg.Contracts.Platform)
		contract, err := ledger.NewPlatformContract(client, platform)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error binding platform contract: %v\n", err)
			os.Exit(1)
		}
		reader = contract
	}

	gw := ledger.NewGateway(reader,
		ledger.WithObserver(prom),
		ledger.WithRateLimit(cfg.Chain.RPCRateLimit, max(1, int(cfg.Chain.RPCRateLimit))),
	)
	dashboards := dashboard.NewService(gw)

	server := api.NewServer(api.ServerConfigFrom(cfg.API), gw, dashboards,
		api.WithMetrics(prom),
		api.WithVersion(version),
	)
	if err := server.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting server: %v\n", err)
		os.Exit(1)
	}

	var watcher *ledger.EventWatcher
	if client != nil {
		watcher, err = ledger.NewEventWatcher(client, platform, server.HandleLedgerEvent, cfg.PollInterval())
		if err != nil {
			logging.Error("failed to create event watcher", logging.Err(err), logging.Component("api"))
		} else if err := watcher.Start(ctx); err != nil {
			logging.Error("failed to start event watcher", logging.Err(err), logging.Component("api"))
			watcher = nil
		}
	}

	util.SafeGoWithName("config-watch", func() {
		err := config.Watch(ctx, *configPath, func(next *config.Config) {
			server.ApplyConfig(api.ServerConfigFrom(next.API))
			logging.Configure(os.Stdout, next.Log.Format, next.Log.Level)
			logging.Info("config reloaded", "path", *configPath, logging.Component("api"))
		})
		if err != nil {
			logging.Warn("config reload disabled", logging.Err(err), logging.Component("api"))
		}
	})

	logging.Info("stakedeck API started",
		"addr", server.Addr(),
		"mock", cfg.Mock,
		"websocket", cfg.API.WebSocketEnabled,
		logging.Component("api"))

	<-ctx.Done()
	logging.Info("Shutting down...", logging.Component("api"))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if watcher != nil {
		watcher.Stop()
	}
	if err := server.Stop(shutdownCtx); err != nil {
		logging.Error("Error during shutdown", logging.Err(err), logging.Component("api"))
	}

	logging.Info("Shutdown complete", logging.Component("api"))
}
