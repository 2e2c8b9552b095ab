package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"walletpulse/internal/config"
	"walletpulse/internal/consensus"
	cronrunner "walletpulse/internal/cron"
	"walletpulse/internal/db"
	"walletpulse/internal/handler"
	"walletpulse/internal/ingest"
	"walletpulse/internal/logger"
	"walletpulse/internal/lots"
	"walletpulse/internal/models"
	"walletpulse/internal/queue"
	gormrepository "walletpulse/internal/repository/gorm"
	"walletpulse/internal/valuation"
	"walletpulse/internal/webhook"
)

func main() {
	cfgPath := os.Getenv("WP_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("WP_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Valuation chain in priority order: live stream when enabled, then the
	// historical klines source, then the aggregator quotes.
	var sources []valuation.PriceSource
	var spotStream *valuation.SpotStream
	if cfg.Valuation.SpotStream.Enabled {
		spotStream = &valuation.SpotStream{
			URL:       cfg.Valuation.SpotStream.URL,
			Freshness: cfg.Valuation.SpotStream.Freshness,
			Logger:    logger,
		}
		go func() {
			if err := spotStream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("spot stream stopped", zap.Error(err))
			}
		}()
		sources = append(sources, &valuation.StreamSource{Stream: spotStream})
	}
	httpClient := &http.Client{Timeout: cfg.Valuation.SourceTimeout}
	if cfg.Valuation.Binance.Enabled {
		sources = append(sources, &valuation.BinanceKlineSource{
			HTTP:     httpClient,
			Endpoint: cfg.Valuation.Binance.Endpoint,
			Symbol:   cfg.Valuation.Binance.Symbol,
		})
	}
	if cfg.Valuation.Jupiter.Enabled {
		sources = append(sources, &valuation.JupiterSource{
			HTTP:     httpClient,
			Endpoint: cfg.Valuation.Jupiter.Endpoint,
			Mint:     cfg.Valuation.Jupiter.SolMint,
		})
	}
	if cfg.Valuation.CoinGecko.Enabled {
		sources = append(sources, &valuation.CoinGeckoSource{
			HTTP:     httpClient,
			Endpoint: cfg.Valuation.CoinGecko.Endpoint,
			AssetID:  cfg.Valuation.CoinGecko.AssetID,
		})
	}
	resolver := &valuation.Resolver{
		Sources: sources,
		Cache:   valuation.NewCache(cfg.Valuation.CacheTTL),
		Timeout: cfg.Valuation.SourceTimeout,
		Logger:  logger,
	}

	normalizer := &webhook.Normalizer{Repo: store, Logger: logger}
	dispatcher := webhook.NewDispatcher(normalizer, logger, cfg.Webhook.QueueSize)
	go func() {
		if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("webhook dispatcher stopped", zap.Error(err))
		}
	}()

	ingestWorker := &ingest.Worker{
		Repo:           store,
		Valuator:       resolver,
		Logger:         logger,
		PollInterval:   cfg.Ingest.PollInterval,
		BatchSize:      cfg.Ingest.BatchSize,
		DebounceWindow: cfg.Ingest.DebounceWindow,
	}
	go func() {
		if err := ingestWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("ingest worker stopped", zap.Error(err))
		}
	}()

	lotService := &lots.Service{Repo: store, Logger: logger}
	detector := &consensus.Detector{
		Repo:       store,
		Logger:     logger,
		Window:     cfg.Consensus.Window,
		MinWallets: cfg.Consensus.MinWallets,
		SignalTTL:  cfg.Consensus.SignalTTL,
	}
	workers := cfg.Queue.Workers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		worker := &queue.Worker{
			Repo:          store,
			Lots:          lotService,
			Consensus:     detector,
			Logger:        logger,
			DrainInterval: cfg.Queue.DrainInterval,
			RetryDelay:    cfg.Queue.RetryDelay,
			MaxAttempts:   cfg.Queue.MaxAttempts,
		}
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("queue worker stopped", zap.Error(err))
			}
		}()
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	webhookHandler := &handler.WebhookHandler{Dispatcher: dispatcher}
	webhookHandler.Register(engine)
	walletHandler := &handler.WalletHandler{Repo: store}
	walletHandler.Register(engine)
	tradeHandler := &handler.TradeHandler{Repo: store}
	tradeHandler.Register(engine)
	lotHandler := &handler.LotHandler{Repo: store}
	lotHandler.Register(engine)
	signalHandler := &handler.SignalHandler{Repo: store}
	signalHandler.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	if cfg.Cron.Enabled {
		cronRunner := cronrunner.New(logger, ctx)
		_, err = cronRunner.Add(cfg.Cron.SignalExpiry, "signal_expiry", func(ctx context.Context) {
			expired, err := store.ExpireDueSignals(ctx, time.Now().UTC())
			if err != nil {
				logger.Warn("signal expiry sweep failed", zap.Error(err))
				return
			}
			if expired > 0 {
				logger.Info("signals expired", zap.Int64("count", expired))
			}
		})
		if err != nil {
			logger.Warn("cron register signal expiry failed", zap.Error(err))
		}

		_, err = cronRunner.Add(cfg.Cron.FailedRequeue, "stale_job_sweep", func(ctx context.Context) {
			reset, err := store.ResetStaleProcessingJobs(ctx, 10*time.Minute)
			if err != nil {
				logger.Warn("stale job sweep failed", zap.Error(err))
				return
			}
			if reset > 0 {
				logger.Info("stale jobs reset", zap.Int64("count", reset))
			}
		})
		if err != nil {
			logger.Warn("cron register stale job sweep failed", zap.Error(err))
		}

		_, err = cronRunner.Add(cfg.Cron.QueueBackfill, "queue_backfill", func(ctx context.Context) {
			if err := backfillRecomputes(ctx, store); err != nil {
				logger.Warn("queue backfill failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register queue backfill failed", zap.Error(err))
		}

		cronRunner.Start()
		defer cronRunner.Stop()
	}

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// backfillRecomputes schedules a full-wallet lot recompute for every wallet
// with ledger history. It repairs derived state after missed enqueues or
// out-of-order webhook delivery; duplicates are absorbed by the pending-job
// dedupe in the store.
func backfillRecomputes(ctx context.Context, store *gormrepository.Store) error {
	walletIDs, err := store.ListWalletIDsWithTrades(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(models.JobPayload{})
	if err != nil {
		return err
	}
	for _, walletID := range walletIDs {
		job := &models.QueueJob{
			WalletID:  walletID,
			JobType:   models.JobLotRecompute,
			Payload:   payload,
			Status:    models.JobPending,
			NextRunAt: time.Now().UTC(),
		}
		if err := store.EnqueueJob(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
