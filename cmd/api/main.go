package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vlourenco/atalho/internal/config"
	"github.com/vlourenco/atalho/internal/infrastructure/db"
	"github.com/vlourenco/atalho/internal/infrastructure/geoip"
	"github.com/vlourenco/atalho/internal/infrastructure/logger"
	"github.com/vlourenco/atalho/internal/infrastructure/telemetry"
	"github.com/vlourenco/atalho/internal/processing/cooldown"
	"github.com/vlourenco/atalho/internal/processing/links"
	"github.com/vlourenco/atalho/internal/processing/visits"
	mongoStorage "github.com/vlourenco/atalho/internal/storage/mongo"
	redisStorage "github.com/vlourenco/atalho/internal/storage/redis"
	httpTransport "github.com/vlourenco/atalho/internal/transport/http"
	"github.com/vlourenco/atalho/internal/transport/http/middleware"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.App.Env); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting application",
		zap.String("name", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("env", cfg.App.Env),
	)

	var shutdownTracer func(context.Context) error
	if cfg.OTel.Enabled {
		var err error
		shutdownTracer, err = telemetry.InitTracer(cfg.OTel.Endpoint, cfg.App.Name, cfg.App.Version)
		if err != nil {
			logger.Warn("Failed to initialize tracer, continuing without tracing", zap.Error(err))
		} else {
			logger.Info("OpenTelemetry tracer initialized", zap.String("endpoint", cfg.OTel.Endpoint))
		}
	}

	mongoConn, err := db.ConnectMongo(cfg.MongoDB.URI, cfg.MongoDB.Database)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer func() { _ = mongoConn.Disconnect() }()

	linkRepo, err := mongoStorage.NewLinksRepository(mongoConn)
	if err != nil {
		logger.Fatal("Failed to initialize links repository", zap.Error(err))
	}
	domainRepo, err := mongoStorage.NewDomainsRepository(mongoConn)
	if err != nil {
		logger.Fatal("Failed to initialize domains repository", zap.Error(err))
	}
	userRepo, err := mongoStorage.NewUsersRepository(mongoConn)
	if err != nil {
		logger.Fatal("Failed to initialize users repository", zap.Error(err))
	}
	hostRepo, err := mongoStorage.NewHostsRepository(mongoConn)
	if err != nil {
		logger.Fatal("Failed to initialize hosts repository", zap.Error(err))
	}
	ipRepo, err := mongoStorage.NewIPsRepository(mongoConn)
	if err != nil {
		logger.Fatal("Failed to initialize ips repository", zap.Error(err))
	}
	visitsRepo, err := mongoStorage.NewVisitsRepository(mongoConn, cfg.Stats.MaxMapKeys)
	if err != nil {
		logger.Fatal("Failed to initialize visits repository", zap.Error(err))
	}

	redisClient, err := redisStorage.New(redisStorage.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() { _ = redisClient.Close() }()

	linkCache := redisStorage.NewLinkCache(redisClient, "link")
	limiterStore := redisStorage.NewFixedWindowLimiter(redisClient, "rl:create", time.Minute)
	createLimiter := middleware.NewRedisFixedWindowLimiter(limiterStore, cfg.Limits.CreateRatePerMinute, cfg.Security.TrustProxyHeaders)

	cooldownStore := cooldown.NewStore(ipRepo, cfg.Limits.CooldownWindow)
	sweeper := cooldown.NewSweeper(cooldownStore, cfg.Limits.SweepInterval)
	sweeper.Start()
	defer sweeper.Stop()

	var geo visits.Geolocator = visits.NoopGeolocator{}
	if cfg.GeoIP.Endpoint != "" {
		geo = geoip.New(cfg.GeoIP.Endpoint, cfg.GeoIP.APIKey, cfg.GeoIP.Timeout)
	}
	aggregator := visits.NewAggregator(visitsRepo, linkRepo, geo)

	var dispatcher links.VisitDispatcher
	if cfg.Kafka.Enabled {
		kafkaDispatcher := visits.NewKafkaDispatcher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() { _ = kafkaDispatcher.Close() }()
		dispatcher = kafkaDispatcher
		logger.Info("Visit events publishing to Kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	} else {
		pool := visits.NewWorkerPool(aggregator, cfg.Stats.QueueSize, cfg.Stats.Workers)
		pool.Start()
		defer pool.Stop()
		dispatcher = pool
	}

	linkSvc := links.NewService(
		linkRepo,
		domainRepo,
		hostRepo,
		visitsRepo,
		linkCache,
		links.NewCryptoCodeGenerator(),
		cooldownStore,
		cfg.Shortener.CodeLength,
	)
	resolver := links.NewResolver(
		linkRepo,
		domainRepo,
		userRepo,
		linkCache,
		dispatcher,
		cfg.Shortener.DefaultDomain,
		cfg.Cache.TTL,
	)

	router := httpTransport.NewRouter(cfg, httpTransport.RouterDeps{
		LinkService:   linkSvc,
		Resolver:      resolver,
		Users:         userRepo,
		CreateLimiter: createLimiter,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if shutdownTracer != nil {
			_ = shutdownTracer(shutdownCtx)
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("Server starting",
		zap.String("port", cfg.Server.Port),
		zap.String("env", cfg.App.Env),
		zap.String("address", fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)),
	)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("Server error", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}
