package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	ledgerconfig "lendledger/config"
	"lendledger/core/host"
	"lendledger/core/types"
	"lendledger/gateway/middleware"
	"lendledger/native/bank"
	nativecommon "lendledger/native/common"
	"lendledger/native/lending"
	"lendledger/observability/logging"
	telemetry "lendledger/observability/otel"
	"lendledger/services/lendingd/archive"
	"lendledger/services/lendingd/config"
	"lendledger/services/lendingd/server"
	"lendledger/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/lendingd/config.yaml", "path to lendingd config")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "lendingd: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(os.Getenv("LEND_ENV"))
	logger := logging.SetupWithOptions(logging.Options{
		Service:    "lendingd",
		Env:        env,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})

	ledgerCfg, err := ledgerconfig.Load(cfg.EngineConfig)
	if err != nil {
		return fmt.Errorf("load engine config: %w", err)
	}
	telemetryCfg := telemetry.FromEnv("lendingd", env)
	telemetryCfg.Network = ledgerCfg.NetworkName
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetryCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	db, err := storage.NewLevelDB(filepath.Join(ledgerCfg.DataDir, "ledger"))
	if err != nil {
		return fmt.Errorf("open ledger store: %w", err)
	}
	defer db.Close()

	genesis, err := ledgerCfg.Genesis()
	if err != nil {
		return err
	}
	if applied, err := bank.New(db).ApplyGenesis(genesis); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	} else if applied {
		logger.Info("genesis balances applied", slog.Int("accounts", len(genesis)))
	}

	engine := lending.NewEngine(ledgerCfg.Lending.Params())
	engine.SetStorage(db)
	engine.SetLogger(logger)

	clock, err := buildClock(cfg.Clock)
	if err != nil {
		return err
	}
	if err := bootstrapOwner(engine, db, clock, ledgerCfg, logger); err != nil {
		return err
	}

	var arch *archive.Archive
	if cfg.Archive.Driver != "" {
		arch, err = archive.Open(cfg.Archive.Driver, cfg.Archive.DSN, logger)
		if err != nil {
			return err
		}
		defer arch.Close()
	}

	limits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for name, limit := range cfg.RateLimits {
		limits[name] = middleware.RateLimit{RatePerSecond: limit.RatePerSecond, Burst: limit.Burst}
	}
	faucetLimit, err := cfg.Faucet.Limit()
	if err != nil {
		return err
	}
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	srv, err := server.New(server.Config{
		Engine:  engine,
		Store:   db,
		Clock:   clock,
		Pauses:  pausesFrom(ledgerCfg),
		Quota:   ledgerCfg.Quota.Runtime(),
		Archive: arch,
		Auth: middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:        cfg.Auth.Enabled,
			HMACSecret:     cfg.Auth.HMACSecret,
			Issuer:         cfg.Auth.Issuer,
			Audience:       cfg.Auth.Audience,
			OptionalPaths:  []string{"/v1/status", "/v1/loans"},
			AllowAnonymous: cfg.Auth.AllowAnonymous,
			ClockSkew:      cfg.Auth.ClockSkew,
		}, logger),
		AuthEnabled:   cfg.Auth.Enabled,
		RateLimiter:   middleware.NewRateLimiter(limits, logger),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{ServiceName: "lendingd", Module: "lending", LogRequests: true}, logger),
		CORS:          middleware.CORSConfig{AllowedOrigins: cfg.CORS.AllowedOrigins},
		FaucetEnabled: cfg.Faucet.Enabled,
		FaucetLimit:   faucetLimit,
		MetricsPath:   metricsPath,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	if !cfg.Auth.Enabled {
		logger.Warn("authentication disabled; callers are taken from the X-Caller header")
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("lendingd listening", slog.String("addr", cfg.ListenAddress), slog.String("network", ledgerCfg.NetworkName))
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing server stop", slog.String("error", err.Error()))
			_ = httpServer.Close()
		}
		return nil
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	}
}

func buildClock(cfg config.ClockConfig) (host.Clock, error) {
	switch cfg.Mode {
	case config.ClockWall:
		genesis, err := cfg.GenesisTime()
		if err != nil {
			return nil, err
		}
		return host.WallClock{Genesis: genesis, BlockTime: cfg.BlockTime}, nil
	default:
		return host.NewManualClock(cfg.StartHeight), nil
	}
}

// bootstrapOwner makes the holder of the configured owner key the ledger
// owner on first start.
func bootstrapOwner(engine *lending.Engine, db storage.Database, clock host.Clock, cfg *ledgerconfig.Config, logger *slog.Logger) error {
	current, err := engine.GetOwner()
	if err != nil {
		return err
	}
	if !current.IsZero() {
		return nil
	}
	key, err := cfg.LoadOwnerKey()
	if err != nil {
		return fmt.Errorf("load owner key: %w", err)
	}
	owner := key.PubKey().Address()
	tx, err := host.Begin(db, lending.ModuleAddress, owner, clock.Height(), types.Money{})
	if err != nil {
		return err
	}
	if err := engine.InitOwner(tx); err != nil {
		tx.Abort()
		return fmt.Errorf("init owner: %w", err)
	}
	if err := tx.Commit(nil); err != nil {
		return err
	}
	logger.Info("ledger owner initialised", slog.String("owner", owner.String()))
	return nil
}

func pausesFrom(cfg *ledgerconfig.Config) *nativecommon.Pauses {
	return nativecommon.NewPauses(cfg.Pauses.Modules()...)
}
