package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application.
type Config struct {
	Env         string `envconfig:"APP_ENV" default:"production"`
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	NewRelic    NewRelicConfig
	Auth        AuthConfig
	Gateway     GatewayConfig
	Broker      BrokerConfig
	Booking     BookingConfig
	Revenue     RevenueConfig
	Installment InstallmentConfig
	Scheduler   SchedulerConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"10s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host        string        `envconfig:"DB_HOST" default:"localhost"`
	Port        string        `envconfig:"DB_PORT" default:"5432"`
	User        string        `envconfig:"DB_USER" default:"postgres"`
	Password    string        `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName      string        `envconfig:"DB_NAME" default:"car_rental"`
	SSLMode     string        `envconfig:"DB_SSLMODE" default:"disable"`
	LockTimeout time.Duration `envconfig:"DB_LOCK_TIMEOUT" default:"5s"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string `envconfig:"NEW_RELIC_APP_NAME" default:"car-rental-service"`
	LicenseKey string `envconfig:"NEW_RELIC_LICENSE_KEY"`
	Enabled    bool   `envconfig:"NEW_RELIC_ENABLED" default:"false"`
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`
}

// GatewayConfig holds PayHere merchant settings.
type GatewayConfig struct {
	MerchantID       string        `envconfig:"PAYHERE_MERCHANT_ID"`
	MerchantSecret   string        `envconfig:"PAYHERE_MERCHANT_SECRET"`
	Sandbox          bool          `envconfig:"PAYHERE_SANDBOX" default:"true"`
	ReturnURL        string        `envconfig:"PAYHERE_RETURN_URL"`
	CancelURL        string        `envconfig:"PAYHERE_CANCEL_URL"`
	NotifyURL        string        `envconfig:"PAYHERE_NOTIFY_URL"`
	APIBaseURL       string        `envconfig:"PAYHERE_API_BASE_URL"`
	Timeout          time.Duration `envconfig:"PAYHERE_TIMEOUT" default:"10s"`
	BreakerThreshold int64         `envconfig:"PAYHERE_BREAKER_THRESHOLD" default:"5"`
	Country          string        `envconfig:"PAYHERE_COUNTRY" default:"Sri Lanka"`
}

// BrokerConfig holds RabbitMQ settings. Events are dropped when AMQPURL is empty.
type BrokerConfig struct {
	AMQPURL        string        `envconfig:"AMQP_URL"`
	QueueSuffix    string        `envconfig:"AMQP_QUEUE_SUFFIX" default:"rental"`
	PublishTimeout time.Duration `envconfig:"EVENT_PUBLISH_TIMEOUT" default:"5s"`
}

// BookingConfig holds booking settings.
type BookingConfig struct {
	Currency        string        `envconfig:"BOOKING_CURRENCY" default:"LKR"`
	AvailabilityTTL time.Duration `envconfig:"BOOKING_AVAILABILITY_CACHE_TTL" default:"2m"`
}

// RevenueConfig holds the default revenue split, in percent.
type RevenueConfig struct {
	CommissionRate  float64 `envconfig:"COMMISSION_RATE" default:"15"`
	PlatformFeeRate float64 `envconfig:"PLATFORM_FEE_RATE" default:"2.5"`
}

// InstallmentConfig holds BNPL and EMI limits.
type InstallmentConfig struct {
	BNPLMinAmount      float64 `envconfig:"BNPL_MIN_AMOUNT" default:"5000"`
	BNPLMaxAmount      float64 `envconfig:"BNPL_MAX_AMOUNT" default:"100000"`
	BNPLMaxActivePlans int     `envconfig:"BNPL_MAX_ACTIVE_PLANS" default:"2"`
	EMIMinAmount       float64 `envconfig:"EMI_MIN_AMOUNT" default:"10000"`
}

// SchedulerConfig holds periodic job settings.
type SchedulerConfig struct {
	Enabled      bool   `envconfig:"SCHEDULER_ENABLED" default:"true"`
	Concurrency  int    `envconfig:"SCHEDULER_CONCURRENCY" default:"2"`
	ActivateSpec string `envconfig:"SCHEDULER_ACTIVATE_SPEC" default:"@every 5m"`
	OverdueSpec  string `envconfig:"SCHEDULER_OVERDUE_SPEC" default:"@every 1h"`

	// MonitorEnabled mounts the asynq dashboard, behind bearer auth.
	MonitorEnabled bool `envconfig:"SCHEDULER_MONITOR_ENABLED" default:"false"`
}

// Load reads an optional .env file and then the environment. Variables already set in the
// environment win over .env entries.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Development reports whether the service runs with development logging.
func (c *Config) Development() bool {
	return c.Env == "development"
}
