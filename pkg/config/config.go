package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `env:", prefix=SERVER_"`
	MySQL     MySQLConfig     `env:", prefix=MYSQL_"`
	Redis     RedisConfig     `env:", prefix=REDIS_"`
	NATS      NATSConfig      `env:", prefix=NATS_"`
	InfluxDB  InfluxConfig    `env:", prefix=INFLUXDB_"`
	Exchange  ExchangeConfig  `env:", prefix=EXCHANGE_"`
	Ingest    IngestConfig    `env:", prefix=INGEST_"`
	Alerts    AlertsConfig    `env:", prefix=ALERTS_"`
	Retention RetentionConfig `env:", prefix=RETENTION_"`
	Security  SecurityConfig  `env:", prefix=SECURITY_"`
	Logging   LoggingConfig   `env:", prefix=LOG_"`
}

// ServerConfig holds read API server configuration
type ServerConfig struct {
	Host         string        `env:"HOST, default=0.0.0.0"`
	Port         int           `env:"PORT, default=8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT, default=30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT, default=30s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT, default=120s"`
	RecentWindow time.Duration `env:"RECENT_WINDOW, default=24h"`
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	Host            string        `env:"HOST, default=localhost"`
	Port            int           `env:"PORT, default=3306"`
	Database        string        `env:"DATABASE, default=screener"`
	User            string        `env:"USER, default=screener"`
	Password        string        `env:"PASSWORD, default=screener"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS, default=25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS, default=5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME, default=5m"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled      bool          `env:"ENABLED, default=false"`
	Host         string        `env:"HOST, default=localhost"`
	Port         int           `env:"PORT, default=6379"`
	Password     string        `env:"PASSWORD"`
	DB           int           `env:"DB, default=0"`
	PoolSize     int           `env:"POOL_SIZE, default=10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS, default=2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT, default=5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT, default=3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT, default=3s"`
	SnapshotTTL  time.Duration `env:"SNAPSHOT_TTL, default=10m"`
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	Enabled        bool          `env:"ENABLED, default=false"`
	URL            string        `env:"URL, default=nats://localhost:4222"`
	MaxReconnect   int           `env:"MAX_RECONNECT, default=10"`
	ReconnectWait  time.Duration `env:"RECONNECT_WAIT, default=2s"`
	PublishTimeout time.Duration `env:"PUBLISH_TIMEOUT, default=2s"`
}

// InfluxConfig holds InfluxDB configuration
type InfluxConfig struct {
	Enabled bool          `env:"ENABLED, default=false"`
	URL     string        `env:"URL, default=http://localhost:8086"`
	Token   string        `env:"TOKEN"`
	Org     string        `env:"ORG, default=screener"`
	Bucket  string        `env:"BUCKET, default=screener"`
	Timeout time.Duration `env:"TIMEOUT, default=10s"`
}

// ExchangeConfig holds exchange endpoints and request limits
type ExchangeConfig struct {
	FuturesURL    string        `env:"FUTURES_URL, default=https://fapi.binance.com"`
	SpotURL       string        `env:"SPOT_URL, default=https://api.binance.com"`
	QuoteAsset    string        `env:"QUOTE_ASSET, default=USDT"`
	TickerTimeout time.Duration `env:"TICKER_TIMEOUT, default=10s"`
	EnrichTimeout time.Duration `env:"ENRICH_TIMEOUT, default=5s"`
	RateLimit     time.Duration `env:"RATE_LIMIT, default=25ms"`
}

// IngestConfig holds ingestion loop configuration
type IngestConfig struct {
	Interval   time.Duration `env:"INTERVAL, default=5s"`
	Workers    int           `env:"WORKERS, default=4"`
	MaxBackoff time.Duration `env:"MAX_BACKOFF, default=1m"`
}

// AlertsConfig holds alert evaluation and notification configuration
type AlertsConfig struct {
	Cooldown       time.Duration `env:"COOLDOWN, default=5m"`
	Interval       time.Duration `env:"INTERVAL, default=1m"`
	TelegramToken  string        `env:"TELEGRAM_TOKEN"`
	TelegramAPIURL string        `env:"TELEGRAM_API_URL, default=https://api.telegram.org"`
	SendTimeout    time.Duration `env:"SEND_TIMEOUT, default=10s"`
	ParseMode      string        `env:"PARSE_MODE, default=HTML"`
}

// RetentionConfig holds snapshot retention configuration
type RetentionConfig struct {
	Hours     int `env:"HOURS, default=24"`
	BatchSize int `env:"BATCH_SIZE, default=5000"`
}

// SecurityConfig holds security configuration
type SecurityConfig struct {
	CORSEnabled bool     `env:"CORS_ENABLED, default=true"`
	CORSOrigins []string `env:"CORS_ORIGINS, default=*"`
	CORSMethods []string `env:"CORS_METHODS, default=GET,OPTIONS"`
	CORSHeaders []string `env:"CORS_HEADERS, default=*"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `env:"LEVEL, default=info"`
	Format string `env:"FORMAT, default=json"`
	Output string `env:"OUTPUT, default=stdout"`
}

// Load loads configuration from environment variables using go-envconfig
func Load() (*Config, error) {
	return LoadWithLookuper(envconfig.OsLookuper())
}

// LoadWithLookuper loads configuration from the given lookuper
func LoadWithLookuper(l envconfig.Lookuper) (*Config, error) {
	var cfg Config

	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.MySQL.Host == "" {
		return fmt.Errorf("MySQL host is required")
	}

	if c.Ingest.Interval <= 0 {
		return fmt.Errorf("ingest interval must be positive, got %s", c.Ingest.Interval)
	}

	if c.Ingest.Workers < 1 {
		return fmt.Errorf("ingest workers must be at least 1, got %d", c.Ingest.Workers)
	}

	if c.Alerts.Cooldown < 0 {
		return fmt.Errorf("alert cooldown must not be negative")
	}

	if c.Retention.Hours < 1 {
		return fmt.Errorf("retention hours must be at least 1, got %d", c.Retention.Hours)
	}

	if c.Redis.Enabled && c.Redis.Host == "" {
		return fmt.Errorf("Redis host is required when Redis is enabled")
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("NATS URL is required when NATS is enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		return fmt.Errorf("InfluxDB URL is required when InfluxDB is enabled")
	}

	return nil
}

// ValidateAlerts checks the settings needed to deliver notifications
func (c *Config) ValidateAlerts() error {
	if c.Alerts.TelegramToken == "" {
		return fmt.Errorf("ALERTS_TELEGRAM_TOKEN is required")
	}
	return nil
}

// GetMySQLDSN returns MySQL DSN string
func (c *Config) GetMySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true&loc=UTC",
		c.MySQL.User,
		c.MySQL.Password,
		c.MySQL.Host,
		c.MySQL.Port,
		c.MySQL.Database,
	)
}

// GetRedisAddr returns Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// GetServerAddr returns server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
