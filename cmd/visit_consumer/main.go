package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/vlourenco/atalho/internal/events"
	"github.com/vlourenco/atalho/internal/infrastructure/db"
	"github.com/vlourenco/atalho/internal/infrastructure/geoip"
	"github.com/vlourenco/atalho/internal/infrastructure/logger"
	"github.com/vlourenco/atalho/internal/infrastructure/telemetry"
	"github.com/vlourenco/atalho/internal/processing/links"
	"github.com/vlourenco/atalho/internal/processing/visits"
	mongoStorage "github.com/vlourenco/atalho/internal/storage/mongo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type config struct {
	appEnv        string
	appName       string
	appVersion    string
	otelEndpoint  string
	mongoURI      string
	mongoDatabase string

	kafkaBrokers []string
	kafkaTopic   string
	kafkaGroupID string

	geoipEndpoint string
	geoipAPIKey   string
	geoipTimeout  time.Duration

	statsMaxMapKeys int

	fetchMaxWait   time.Duration
	operationTTL   time.Duration
	consumeBackoff time.Duration
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.appEnv); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	shutdownTracer, err := telemetry.InitTracer(
		cfg.otelEndpoint,
		fmt.Sprintf("%s-visit-consumer", cfg.appName),
		cfg.appVersion,
	)
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", zap.Error(err))
		shutdownTracer = nil
	} else {
		logger.Info("OpenTelemetry tracer initialized",
			zap.String("endpoint", cfg.otelEndpoint),
			zap.String("service", fmt.Sprintf("%s-visit-consumer", cfg.appName)),
		)
	}
	defer func() {
		if shutdownTracer == nil {
			return
		}
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("failed to shutdown tracer", zap.Error(err))
		}
	}()

	mongoConn, err := db.ConnectMongo(cfg.mongoURI, cfg.mongoDatabase)
	if err != nil {
		logger.Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	defer func() { _ = mongoConn.Disconnect() }()

	linkRepo, err := mongoStorage.NewLinksRepository(mongoConn)
	if err != nil {
		logger.Fatal("failed to initialize links repository", zap.Error(err))
	}
	visitsRepo, err := mongoStorage.NewVisitsRepository(mongoConn, cfg.statsMaxMapKeys)
	if err != nil {
		logger.Fatal("failed to initialize visits repository", zap.Error(err))
	}

	var geo visits.Geolocator = visits.NoopGeolocator{}
	if cfg.geoipEndpoint != "" {
		geo = geoip.New(cfg.geoipEndpoint, cfg.geoipAPIKey, cfg.geoipTimeout)
	}
	aggregator := visits.NewAggregator(visitsRepo, linkRepo, geo)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.kafkaBrokers,
		Topic:       cfg.kafkaTopic,
		GroupID:     cfg.kafkaGroupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     cfg.fetchMaxWait,
		StartOffset: kafka.FirstOffset,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			logger.Warn("failed to close kafka reader", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("visit consumer started",
		zap.Strings("kafka_brokers", cfg.kafkaBrokers),
		zap.String("kafka_topic", cfg.kafkaTopic),
		zap.String("kafka_group", cfg.kafkaGroupID),
	)

	tracer := otel.Tracer("visit-consumer")
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info("visit consumer stopping")
				return
			}
			logger.Error("failed to fetch kafka message", zap.Error(err))
			time.Sleep(cfg.consumeBackoff)
			continue
		}

		consumeCtx := contextFromKafkaHeaders(ctx, msg.Headers)
		consumeCtx, span := tracer.Start(
			consumeCtx,
			"kafka.consume.visit_recorded",
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination.name", msg.Topic),
				attribute.String("messaging.operation", "process"),
				attribute.Int("messaging.kafka.partition", msg.Partition),
				attribute.Int64("messaging.kafka.offset", msg.Offset),
			),
		)

		if err := processMessage(consumeCtx, msg, aggregator, cfg.operationTTL); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "process visit event failed")
			logger.Error("failed to process visit event",
				zap.Error(err),
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
			span.End()
			time.Sleep(cfg.consumeBackoff)
			continue
		}

		if err := reader.CommitMessages(consumeCtx, msg); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "commit kafka offset failed")
			logger.Error("failed to commit kafka offset",
				zap.Error(err),
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
			span.End()
			time.Sleep(cfg.consumeBackoff)
			continue
		}

		span.End()
	}
}

func processMessage(
	ctx context.Context,
	msg kafka.Message,
	aggregator *visits.Aggregator,
	operationTTL time.Duration,
) error {
	var event events.VisitRecorded
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logger.Warn("invalid visit event payload, skipping",
			zap.Error(err),
			zap.ByteString("payload", msg.Value),
		)
		return nil
	}
	if strings.TrimSpace(event.LinkID) == "" {
		logger.Warn("visit event missing link id, skipping", zap.String("event_id", event.EventID))
		return nil
	}

	occurredAt := msg.Time.UTC()
	if strings.TrimSpace(event.OccurredAt) != "" {
		parsed, err := time.Parse(time.RFC3339Nano, event.OccurredAt)
		if err != nil {
			logger.Warn("invalid event occurredAt, using kafka timestamp",
				zap.Error(err),
				zap.String("event_id", event.EventID),
			)
		} else {
			occurredAt = parsed.UTC()
		}
	}

	opCtx, cancel := context.WithTimeout(ctx, operationTTL)
	defer cancel()

	err := aggregator.Record(opCtx, links.VisitMeta{
		LinkID:     event.LinkID,
		Address:    event.Address,
		DomainID:   event.DomainID,
		UserAgent:  event.UserAgent,
		Referrer:   event.Referrer,
		RemoteIP:   event.RemoteIP,
		OccurredAt: occurredAt,
	})
	if err != nil {
		if errors.Is(err, links.ErrNotFound) {
			// Event is stale relative to current data (e.g. deleted link). Safe to skip.
			logger.Info("visit event skipped for missing link",
				zap.String("event_id", event.EventID),
				zap.String("address", event.Address),
			)
			return nil
		}
		return err
	}

	return nil
}

func loadConfig() (config, error) {
	cfg := config{
		appEnv:          getEnv("APP_ENV", "production"),
		appName:         getEnv("APP_NAME", "atalho"),
		appVersion:      getEnv("APP_VERSION", "0.1.0"),
		otelEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://jaeger:4318"),
		mongoURI:        getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		mongoDatabase:   getEnv("MONGODB_DATABASE", "atalho"),
		kafkaBrokers:    splitCSV(getEnv("KAFKA_BROKERS", "kafka:9092")),
		kafkaTopic:      getEnv("KAFKA_VISIT_TOPIC", "visits.recorded"),
		kafkaGroupID:    getEnv("KAFKA_VISIT_GROUP_ID", "visit-analytics"),
		geoipEndpoint:   getEnv("GEOIP_ENDPOINT", ""),
		geoipAPIKey:     getEnv("GEOIP_API_KEY", ""),
		geoipTimeout:    getEnvDuration("GEOIP_TIMEOUT", 2*time.Second),
		statsMaxMapKeys: getEnvInt("STATS_MAX_MAP_KEYS", 50),
		fetchMaxWait:    getEnvDuration("KAFKA_CONSUMER_MAX_WAIT", 500*time.Millisecond),
		operationTTL:    getEnvDuration("KAFKA_CONSUMER_OPERATION_TIMEOUT", 5*time.Second),
		consumeBackoff:  getEnvDuration("KAFKA_CONSUMER_BACKOFF", 500*time.Millisecond),
	}

	if len(cfg.kafkaBrokers) == 0 {
		return config{}, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if strings.TrimSpace(cfg.kafkaTopic) == "" {
		return config{}, fmt.Errorf("KAFKA_VISIT_TOPIC must not be empty")
	}
	if strings.TrimSpace(cfg.kafkaGroupID) == "" {
		return config{}, fmt.Errorf("KAFKA_VISIT_GROUP_ID must not be empty")
	}
	if cfg.statsMaxMapKeys <= 0 {
		return config{}, fmt.Errorf("STATS_MAX_MAP_KEYS must be > 0")
	}
	if cfg.operationTTL <= 0 {
		return config{}, fmt.Errorf("KAFKA_CONSUMER_OPERATION_TIMEOUT must be > 0")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func contextFromKafkaHeaders(parent context.Context, headers []kafka.Header) context.Context {
	carrier := propagation.MapCarrier{}
	for _, header := range headers {
		key := strings.ToLower(strings.TrimSpace(header.Key))
		if key == "" {
			continue
		}
		carrier.Set(key, string(header.Value))
	}
	return otel.GetTextMapPropagator().Extract(parent, carrier)
}
