package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/ebisiere/crossarb/internal/api"
	"github.com/ebisiere/crossarb/internal/api/handlers"
	"github.com/ebisiere/crossarb/internal/cache"
	"github.com/ebisiere/crossarb/internal/config"
	"github.com/ebisiere/crossarb/internal/database"
	"github.com/ebisiere/crossarb/internal/exchange"
	"github.com/ebisiere/crossarb/internal/executor"
	"github.com/ebisiere/crossarb/internal/logging"
	"github.com/ebisiere/crossarb/internal/metrics"
	"github.com/ebisiere/crossarb/internal/models"
	"github.com/ebisiere/crossarb/internal/notify"
	"github.com/ebisiere/crossarb/internal/pricecache"
	"github.com/ebisiere/crossarb/internal/ratelimit"
	"github.com/ebisiere/crossarb/internal/risk"
	"github.com/ebisiere/crossarb/internal/scanner"
	"github.com/ebisiere/crossarb/internal/validator"
)

func main() {
	// .env is optional; real deployments set environment variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.Environment)
	m := metrics.New()

	db, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	redisClient, err := database.NewRedisConnection(cfg.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()

	// Persisted operator settings, when configured, take precedence over the
	// thresholds and limits in the config file.
	if cfg.OperatorID != "" {
		settingsRepo := database.NewSettingsRepository(db.Pool, logger)
		settings, err := settingsRepo.Get(context.Background(), cfg.OperatorID)
		if err != nil {
			logger.WithError(err).WithField("operator", cfg.OperatorID).
				Fatal("Failed to load operator settings")
		}
		applyOperatorSettings(cfg, settings)
	}

	registry := exchange.NewRegistry(cfg.Venues, logger)

	publisher := cache.NewSnapshotPublisher(
		redisClient,
		time.Duration(cfg.PriceCache.SnapshotTTLSeconds)*time.Second,
		logger,
	)
	// Runs after the cache has stopped, so no poll cycle republishes.
	defer publisher.Invalidate(context.Background(), registry.Names())

	priceCache := pricecache.New(registry, cfg.Venues, cfg.PriceCache, publisher, m, logger)
	priceCache.Start()
	defer priceCache.Stop()

	limiter := ratelimit.NewLimiter(cfg.RateLimit, cfg.Venues, m, logger)
	queue := ratelimit.NewQueue(limiter, cfg.RateLimit, logger)
	queue.Start()
	defer queue.Stop()
	admission := ratelimit.NewAdmission(m, logger)

	calculator := risk.NewCalculator(logger)
	notifier := notify.New(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)

	pathScanner := scanner.New(priceCache, registry, cfg.Scanner, m, logger)

	preflight := validator.New(
		registry,
		calculator,
		notifier,
		priceCache,
		cfg.PriceCache.ReferenceQuote,
		cfg.Scanner.MinProfitPercent,
		cfg.Execution.FeeBufferPercent,
		logger,
	)

	historyRepo := database.NewHistoryRepository(db.Pool, logger)

	orchestrator := executor.NewOrchestrator(
		registry,
		preflight,
		queue,
		admission,
		cfg.Execution,
		historyRepo,
		notifier,
		m,
		logger,
	)

	var rotator *scanner.BridgeRotator
	if cfg.Scanner.RotationEnabled {
		rotator = scanner.NewBridgeRotator(
			pathScanner,
			cfg.Scanner.BridgeAssets,
			registry.Names(),
			quoteAssets(cfg.Venues),
			decimal.NewFromFloat(cfg.Risk.MaxTradeAmountUSD),
			time.Duration(cfg.Scanner.RotationSeconds)*time.Second,
			logger,
		)
		rotator.Start()
		defer rotator.Stop()
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	api.SetupRoutes(router, api.Handlers{
		Scan:    handlers.NewScanHandler(pathScanner, rotator, logger),
		Execute: handlers.NewExecuteHandler(orchestrator, historyRepo, cfg.Risk, logger),
		Status:  handlers.NewStatusHandler(priceCache, db, redisClient),
	}, m)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

// applyOperatorSettings overrides file-based thresholds and limits with the
// operator's persisted selection. Venue connection details stay file-based;
// the settings row only narrows which venues participate.
func applyOperatorSettings(cfg *config.Config, s *models.OperatorSettings) {
	if len(s.Venues) > 0 {
		selected := make(map[string]struct{}, len(s.Venues))
		for _, name := range s.Venues {
			selected[name] = struct{}{}
		}
		kept := cfg.Venues[:0]
		for _, v := range cfg.Venues {
			if _, ok := selected[v.Name]; ok {
				kept = append(kept, v)
			}
		}
		cfg.Venues = kept
	}
	if len(s.BridgeAssets) > 0 {
		cfg.Scanner.BridgeAssets = s.BridgeAssets
	}
	if s.MinProfitPercent.IsPositive() {
		cfg.Scanner.MinProfitPercent = s.MinProfitPercent.InexactFloat64()
	}
	if s.Limits.MaxBalancePercent.IsPositive() {
		cfg.Risk.MaxBalancePercent = s.Limits.MaxBalancePercent.InexactFloat64()
	}
	if s.Limits.MaxTradeAmountUSD.IsPositive() {
		cfg.Risk.MaxTradeAmountUSD = s.Limits.MaxTradeAmountUSD.InexactFloat64()
	}
	if s.Limits.MinReservePercent.IsPositive() {
		cfg.Risk.MinReservePercent = s.Limits.MinReservePercent.InexactFloat64()
	}
	if s.Limits.MaxConcurrentTrades > 0 {
		cfg.Risk.MaxConcurrentTrades = s.Limits.MaxConcurrentTrades
	}
	if s.Limits.MaxDailyTrades > 0 {
		cfg.Risk.MaxDailyTrades = s.Limits.MaxDailyTrades
	}
}

// quoteAssets collects the distinct quote currencies traded across all venues.
func quoteAssets(venues []config.VenueConfig) []string {
	seen := make(map[string]struct{})
	for _, v := range venues {
		for _, pair := range v.Pairs {
			if i := strings.Index(pair, "/"); i >= 0 {
				seen[pair[i+1:]] = struct{}{}
			}
		}
	}
	assets := make([]string, 0, len(seen))
	for a := range seen {
		assets = append(assets, a)
	}
	sort.Strings(assets)
	return assets
}
