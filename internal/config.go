package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"http_server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Observability  ObservabilityConfig  `mapstructure:"observability"`
	Gateways       GatewaysConfig       `mapstructure:"gateways"`
	Resilience     ResilienceConfig     `mapstructure:"resilience"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GatewaysConfig carries vendor credentials per payment method. Any
// gateway left unconfigured operates in degraded mock mode; this is
// logged at startup, never silent.
type GatewaysConfig struct {
	Pix    PixGatewayConfig    `mapstructure:"pix"`
	Card   CardGatewayConfig   `mapstructure:"card"`
	Boleto BoletoGatewayConfig `mapstructure:"boleto"`
}

type PixGatewayConfig struct {
	APIURL         string        `mapstructure:"api_url"`
	APIKey         string        `mapstructure:"api_key"`
	MerchantID     string        `mapstructure:"merchant_id"`
	MerchantName   string        `mapstructure:"merchant_name"`
	MerchantCity   string        `mapstructure:"merchant_city"`
	Expiration     time.Duration `mapstructure:"expiration"`
	MaxAmount      string        `mapstructure:"max_amount"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type CardGatewayConfig struct {
	APIURL         string        `mapstructure:"api_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type BoletoGatewayConfig struct {
	APIURL           string        `mapstructure:"api_url"`
	APIKey           string        `mapstructure:"api_key"`
	BankCode         string        `mapstructure:"bank_code"`
	AgencyCode       string        `mapstructure:"agency_code"`
	AccountNumber    string        `mapstructure:"account_number"`
	DueDays          int           `mapstructure:"due_days"`
	MerchantName     string        `mapstructure:"merchant_name"`
	MerchantDocument string        `mapstructure:"merchant_document"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
}

// ResilienceConfig tunes the retry/circuit-breaker policy around
// outbound gateway calls.
type ResilienceConfig struct {
	MaxAttempts         int           `mapstructure:"max_attempts"`
	InitialBackoff      time.Duration `mapstructure:"initial_backoff"`
	CallTimeout         time.Duration `mapstructure:"call_timeout"`
	BreakerInterval     time.Duration `mapstructure:"breaker_interval"`
	BreakerCooldown     time.Duration `mapstructure:"breaker_cooldown"`
	BreakerMinRequests  uint32        `mapstructure:"breaker_min_requests"`
	BreakerFailureRatio float64       `mapstructure:"breaker_failure_ratio"`
}

// ReconciliationConfig drives the daily run. ScheduleHour 0 is a valid
// midnight schedule; loaders mark the hour unset with a negative value
// so ApplyDefaults can tell the two apart.
type ReconciliationConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	ScheduleHour  int           `mapstructure:"schedule_hour"`
	StuckAfter    time.Duration `mapstructure:"stuck_after"`
	AutoFailAfter time.Duration `mapstructure:"auto_fail_after"`
}

// ----------------- DEFAULTS -----------------

func (c *ResilienceConfig) ApplyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 15 * time.Second
	}
	if c.BreakerInterval <= 0 {
		c.BreakerInterval = time.Minute
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 2 * time.Minute
	}
	if c.BreakerMinRequests == 0 {
		c.BreakerMinRequests = 10
	}
	if c.BreakerFailureRatio <= 0 {
		c.BreakerFailureRatio = 0.6
	}
}

func (c *ReconciliationConfig) ApplyDefaults() {
	if c.ScheduleHour < 0 {
		c.ScheduleHour = 2
	}
	if c.StuckAfter <= 0 {
		c.StuckAfter = 24 * time.Hour
	}
	if c.AutoFailAfter <= 0 {
		c.AutoFailAfter = 48 * time.Hour
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// LoadConfigFromEnv builds a Config from environment variables for
// container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("SERVER_PORT", 8080),
			BaseURL:           getEnv("SERVER_BASE_URL", "http://localhost:8080"),
			ReadHeaderTimeout: getEnvAsDuration("SERVER_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:      getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:       getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Source:          getEnv("DATABASE_SOURCE", ""),
			MaxOpenConns:    getEnvAsInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DATABASE_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: getEnv("METRICS_ENABLED", "true") == "true",
				Path:    getEnv("METRICS_PATH", "/metrics"),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
		Gateways: GatewaysConfig{
			Pix: PixGatewayConfig{
				APIURL:         getEnv("GATEWAY_PIX_API_URL", "https://api.mercadopago.com/v1"),
				APIKey:         getEnv("GATEWAY_PIX_API_KEY", ""),
				MerchantID:     getEnv("GATEWAY_PIX_MERCHANT_ID", ""),
				MerchantName:   getEnv("GATEWAY_PIX_MERCHANT_NAME", ""),
				MerchantCity:   getEnv("GATEWAY_PIX_MERCHANT_CITY", "Sao Paulo"),
				Expiration:     getEnvAsDuration("GATEWAY_PIX_EXPIRATION", 24*time.Hour),
				MaxAmount:      getEnv("GATEWAY_PIX_MAX_AMOUNT", "50000"),
				RequestTimeout: getEnvAsDuration("GATEWAY_PIX_REQUEST_TIMEOUT", 15*time.Second),
			},
			Card: CardGatewayConfig{
				APIURL:         getEnv("GATEWAY_CARD_API_URL", "https://api.stripe.com/v1"),
				APIKey:         getEnv("GATEWAY_CARD_API_KEY", ""),
				RequestTimeout: getEnvAsDuration("GATEWAY_CARD_REQUEST_TIMEOUT", 15*time.Second),
			},
			Boleto: BoletoGatewayConfig{
				APIURL:           getEnv("GATEWAY_BOLETO_API_URL", "https://api.pagseguro.com/v1"),
				APIKey:           getEnv("GATEWAY_BOLETO_API_KEY", ""),
				BankCode:         getEnv("GATEWAY_BOLETO_BANK_CODE", "341"),
				AgencyCode:       getEnv("GATEWAY_BOLETO_AGENCY_CODE", "0001"),
				AccountNumber:    getEnv("GATEWAY_BOLETO_ACCOUNT_NUMBER", "0000001"),
				DueDays:          getEnvAsInt("GATEWAY_BOLETO_DUE_DAYS", 3),
				MerchantName:     getEnv("GATEWAY_BOLETO_MERCHANT_NAME", ""),
				MerchantDocument: getEnv("GATEWAY_BOLETO_MERCHANT_DOCUMENT", ""),
				RequestTimeout:   getEnvAsDuration("GATEWAY_BOLETO_REQUEST_TIMEOUT", 15*time.Second),
			},
		},
		Resilience: ResilienceConfig{
			MaxAttempts:    getEnvAsInt("RESILIENCE_MAX_ATTEMPTS", 3),
			InitialBackoff: getEnvAsDuration("RESILIENCE_INITIAL_BACKOFF", 500*time.Millisecond),
			CallTimeout:    getEnvAsDuration("RESILIENCE_CALL_TIMEOUT", 15*time.Second),
		},
		Reconciliation: ReconciliationConfig{
			Enabled:      getEnv("RECONCILIATION_ENABLED", "true") == "true",
			ScheduleHour: getEnvAsInt("RECONCILIATION_SCHEDULE_HOUR", 2),
		},
	}

	cfg.Resilience.ApplyDefaults()
	cfg.Reconciliation.ApplyDefaults()

	return cfg
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Reconciliation.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("reconciliation config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.BaseURL != "" {
		if _, err := url.Parse(c.BaseURL); err != nil {
			return fmt.Errorf("invalid base url %s: %w", c.BaseURL, err)
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("database source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *ReconciliationConfig) Validate() error {
	if c.ScheduleHour < 0 || c.ScheduleHour > 23 {
		return fmt.Errorf("schedule_hour must be within 0-23, got %d", c.ScheduleHour)
	}
	return nil
}
