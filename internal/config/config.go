package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	GeoIP     GeoIPConfig
	Shortener ShortenerConfig
	Limits    LimitsConfig
	Stats     StatsConfig
	Cache     CacheConfig
	Security  SecurityConfig
	OTel      OTelConfig
}

type AppConfig struct {
	Name    string
	Version string
	Env     string
}

type ServerConfig struct {
	Port string
	Host string
}

type MongoDBConfig struct {
	URI      string
	Database string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig controls the optional visit-event pipeline. When disabled the
// API aggregates visits in-process.
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
	GroupID string
}

type GeoIPConfig struct {
	Endpoint string // empty disables geolocation
	APIKey   string
	Timeout  time.Duration
}

type ShortenerConfig struct {
	BaseURL        string
	DefaultDomain  string
	CodeLength     int
	RedirectStatus int // 301 or 302
}

type LimitsConfig struct {
	CooldownWindow      time.Duration // anonymous creation cooldown
	SweepInterval       time.Duration
	CreateRatePerMinute int // fixed-window request limit on the create route
}

type StatsConfig struct {
	MaxMapKeys int // distinct country/referrer keys kept per link
	QueueSize  int // in-process visit dispatch queue capacity
	Workers    int // in-process visit aggregation workers
}

type CacheConfig struct {
	TTL time.Duration
}

type SecurityConfig struct {
	AdminAPIKeys []string
	// TrustProxyHeaders makes client-IP extraction honor X-Forwarded-For.
	// Only enable behind a reverse proxy that overwrites the header, or
	// clients can forge their way past the per-IP cooldown.
	TrustProxyHeaders bool
}

type OTelConfig struct {
	Enabled  bool
	Endpoint string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using environment variables")
	}

	cfg := &Config{
		App: AppConfig{
			Name:    GetEnv("APP_NAME", "atalho"),
			Version: GetEnv("APP_VERSION", "0.1.0"),
			Env:     GetEnv("APP_ENV", "development"),
		},
		Server: ServerConfig{
			Port: GetEnv("APP_PORT", "8080"),
			Host: GetEnv("APP_HOST", "localhost"),
		},
		MongoDB: MongoDBConfig{
			URI:      GetEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database: GetEnv("MONGODB_DATABASE", "atalho"),
		},
		Redis: RedisConfig{
			Addr:     GetEnv("REDIS_ADDR", "localhost:6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled: strings.EqualFold(GetEnv("KAFKA_ENABLED", "false"), "true"),
			Brokers: SplitCSV(GetEnv("KAFKA_BROKERS", "localhost:9092")),
			Topic:   GetEnv("KAFKA_VISIT_TOPIC", "visits.recorded"),
			GroupID: GetEnv("KAFKA_VISIT_GROUP_ID", "visit-analytics"),
		},
		GeoIP: GeoIPConfig{
			Endpoint: GetEnv("GEOIP_ENDPOINT", ""),
			APIKey:   GetEnv("GEOIP_API_KEY", ""),
			Timeout:  GetEnvDuration("GEOIP_TIMEOUT", 2*time.Second),
		},
		Shortener: ShortenerConfig{
			BaseURL:        GetEnv("SHORTENER_BASE_URL", "http://localhost:8080"),
			DefaultDomain:  GetEnv("DEFAULT_DOMAIN", "localhost"),
			CodeLength:     GetEnvInt("CODE_LENGTH", 6),
			RedirectStatus: GetEnvInt("REDIRECT_STATUS", 302),
		},
		Limits: LimitsConfig{
			CooldownWindow:      time.Duration(GetEnvInt("COOLDOWN_WINDOW_MINUTES", 30)) * time.Minute,
			SweepInterval:       GetEnvDuration("COOLDOWN_SWEEP_INTERVAL", 10*time.Minute),
			CreateRatePerMinute: GetEnvInt("CREATE_RATE_PER_MINUTE", 60),
		},
		Stats: StatsConfig{
			MaxMapKeys: GetEnvInt("STATS_MAX_MAP_KEYS", 50),
			QueueSize:  GetEnvInt("VISIT_QUEUE_SIZE", 1024),
			Workers:    GetEnvInt("VISIT_WORKERS", 4),
		},
		Cache: CacheConfig{
			TTL: GetEnvDuration("CACHE_TTL", time.Minute),
		},
		Security: SecurityConfig{
			AdminAPIKeys:      SplitCSV(GetEnv("ADMIN_API_KEYS", "")),
			TrustProxyHeaders: strings.EqualFold(GetEnv("TRUST_PROXY_HEADERS", "false"), "true"),
		},
		OTel: OTelConfig{
			Enabled:  strings.EqualFold(GetEnv("OTEL_ENABLED", "false"), "true"),
			Endpoint: GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318"),
		},
	}

	if cfg.Shortener.RedirectStatus != 301 && cfg.Shortener.RedirectStatus != 302 {
		return nil, fmt.Errorf("REDIRECT_STATUS must be 301 or 302 (got %d)", cfg.Shortener.RedirectStatus)
	}
	if cfg.Shortener.CodeLength < 4 || cfg.Shortener.CodeLength > 32 {
		return nil, fmt.Errorf("CODE_LENGTH must be between 4 and 32 (got %d)", cfg.Shortener.CodeLength)
	}
	if strings.TrimSpace(cfg.Shortener.DefaultDomain) == "" {
		return nil, fmt.Errorf("DEFAULT_DOMAIN must not be empty")
	}
	if cfg.Limits.CooldownWindow <= 0 {
		return nil, fmt.Errorf("COOLDOWN_WINDOW_MINUTES must be > 0")
	}
	if cfg.Stats.MaxMapKeys <= 0 {
		return nil, fmt.Errorf("STATS_MAX_MAP_KEYS must be > 0")
	}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker when KAFKA_ENABLED=true")
	}

	return cfg, nil
}
