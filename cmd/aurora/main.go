// Command aurora runs the decision core: the DATA -> ANALYZE -> DECIDE ->
// RISK -> EXECUTE -> LOG cycle plus its operator-surface contract, wired the
// way the teacher's cmd/tradsys/main.go wires its unified server: load
// config, build components, start the Gin server in a goroutine, block on
// SIGINT/SIGTERM, shut down gracefully.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/auroratrading/core/internal/analyst"
	"github.com/auroratrading/core/internal/apiserver"
	"github.com/auroratrading/core/internal/audit"
	"github.com/auroratrading/core/internal/broker"
	"github.com/auroratrading/core/internal/config"
	"github.com/auroratrading/core/internal/executor"
	"github.com/auroratrading/core/internal/orchestrator"
	"github.com/auroratrading/core/internal/portfolio"
	"github.com/auroratrading/core/internal/resilience"
	"github.com/auroratrading/core/internal/risk"
	"github.com/auroratrading/core/internal/signal"
	"github.com/auroratrading/core/internal/store"
)

const (
	appName    = "Aurora Decision Core"
	appVersion = "1.0.0"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (overlaid by AURORA_* env vars)")
	migrate := flag.Bool("migrate", false, "run AutoMigrate against the configured database, then exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting", zap.String("service", appName), zap.String("version", appVersion), zap.String("env", cfg.Env))

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}

	repo := store.New(db)
	if *migrate {
		if err := repo.AutoMigrate(); err != nil {
			logger.Fatal("auto-migrate failed", zap.Error(err))
		}
		logger.Info("auto-migrate complete")
		return
	}

	breakers := resilience.NewFactory(logger)
	brokerClient := broker.New(cfg.Broker.BaseURL, cfg.Broker.DataURL, cfg.Broker.APIKey, cfg.Broker.APISecret,
		time.Duration(cfg.Broker.TimeoutSec)*time.Second, breakers)

	journal := audit.New(repo, logger)
	tracker := portfolio.New(brokerClient, repo, logger)
	scorer := signal.NewScorer(nil)
	analystClient := analyst.NewClient(cfg.Analyst.APIKey, cfg.Analyst.BaseURL, cfg.Analyst.Model, cfg.Analyst.MaxDailyRequests)
	riskMgr := risk.NewManager(cfg.Risk, repo, journal)
	exec := executor.New(riskMgr, brokerClient, repo, journal, logger)
	newsAdapter := broker.NewNewsAdapter(brokerClient)
	vixAdapter := broker.NewVIXAdapter(brokerClient, os.Getenv("AURORA_VIX_SYMBOL"))

	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		logger.Warn("unknown scheduler timezone, defaulting to UTC", zap.String("timezone", cfg.Scheduler.Timezone))
		loc = time.UTC
	}

	loop := orchestrator.New(orchestrator.Config{
		Symbols:              cfg.Scheduler.Symbols,
		CycleInterval:        time.Duration(cfg.Scheduler.CycleIntervalSeconds) * time.Second,
		DefaultAllocationPct: cfg.Scheduler.DefaultAllocationPct,
		Location:             loc,
		TradingStartHour:     cfg.Scheduler.TradingStartHour,
		TradingEndHour:       cfg.Scheduler.TradingEndHour,
	}, repo, brokerClient, tracker, scorer, analystClient, riskMgr, exec, journal, newsAdapter, vixAdapter, logger)

	apiCfg := apiserver.Config{
		ListenAddr:   cfg.API.ListenAddr,
		JWTSecret:    cfg.API.JWTSecret,
		RateLimitRPM: cfg.API.RateLimitRPS * 60,
	}
	api := apiserver.New(apiCfg, loop, journal, repo, apiserver.Settings{
		Mode:                 cfg.Env,
		Watchlist:            cfg.Scheduler.Symbols,
		CycleIntervalSeconds: cfg.Scheduler.CycleIntervalSeconds,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	httpServer := &http.Server{
		Addr:         cfg.API.ListenAddr,
		Handler:      api.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("api server listening", zap.String("addr", cfg.API.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	ossignal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server forced shutdown", zap.Error(err))
	}
	logger.Info("exited")
}
