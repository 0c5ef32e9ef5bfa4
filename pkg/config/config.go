package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Fees         FeesConfig
	Escrow       EscrowConfig
	Reminders    RemindersConfig
	Checkout     CheckoutConfig
	Settlement   SettlementConfig
	Stripe       StripeConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Fees.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STALLSIDE_APP_ENV" required:"true"`
	Port         string `envconfig:"STALLSIDE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STALLSIDE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STALLSIDE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STALLSIDE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STALLSIDE_DB_DSN"`
	Driver string `envconfig:"STALLSIDE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STALLSIDE_DB_HOST"`
	LegacyPort     int    `envconfig:"STALLSIDE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STALLSIDE_DB_USER"`
	LegacyPassword string `envconfig:"STALLSIDE_DB_PASSWORD"`
	LegacyName     string `envconfig:"STALLSIDE_DB_NAME"`
	LegacySSLMode  string `envconfig:"STALLSIDE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STALLSIDE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STALLSIDE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STALLSIDE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STALLSIDE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STALLSIDE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STALLSIDE_REDIS_ADDR"`
	Password     string        `envconfig:"STALLSIDE_REDIS_PASSWORD"`
	DB           int           `envconfig:"STALLSIDE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STALLSIDE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STALLSIDE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STALLSIDE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STALLSIDE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STALLSIDE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STALLSIDE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STALLSIDE_AUTO_MIGRATE" default:"false"`
}

// FeesConfig carries the platform fee policy in basis points per checkout
// mode. Standard checkouts add the fee on top of the buyer total; escrow
// checkouts deduct it from each seller's payout.
type FeesConfig struct {
	StandardRateBPS int `envconfig:"STALLSIDE_FEES_STANDARD_RATE_BPS" default:"1000"`
	EscrowRateBPS   int `envconfig:"STALLSIDE_FEES_ESCROW_RATE_BPS" default:"500"`
}

func (f FeesConfig) validate() error {
	if f.StandardRateBPS <= 0 || f.StandardRateBPS >= 10000 {
		return fmt.Errorf("standard fee rate must be between 1 and 9999 basis points, got %d", f.StandardRateBPS)
	}
	if f.EscrowRateBPS <= 0 || f.EscrowRateBPS >= 10000 {
		return fmt.Errorf("escrow fee rate must be between 1 and 9999 basis points, got %d", f.EscrowRateBPS)
	}
	return nil
}

type EscrowConfig struct {
	HoldPeriod time.Duration `envconfig:"STALLSIDE_ESCROW_HOLD_PERIOD" default:"168h"`
}

type RemindersConfig struct {
	PickupReadyDelay time.Duration `envconfig:"STALLSIDE_REMINDERS_PICKUP_READY_DELAY" default:"1h"`
}

type CheckoutConfig struct {
	SuccessURL string `envconfig:"STALLSIDE_CHECKOUT_SUCCESS_URL" required:"true"`
	CancelURL  string `envconfig:"STALLSIDE_CHECKOUT_CANCEL_URL" required:"true"`
}

type SettlementConfig struct {
	Interval  time.Duration `envconfig:"STALLSIDE_SETTLEMENT_INTERVAL" default:"15m"`
	BatchSize int           `envconfig:"STALLSIDE_SETTLEMENT_BATCH_SIZE" default:"100"`
}

type StripeConfig struct {
	APIKey string `envconfig:"STALLSIDE_STRIPE_API_KEY"`
	Secret string `envconfig:"STALLSIDE_STRIPE_SECRET"`
	Env    string `envconfig:"STALLSIDE_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type GCPConfig struct {
	ProjectID string `envconfig:"STALLSIDE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic       string `envconfig:"STALLSIDE_PUBSUB_ORDERS_TOPIC" default:"ss-order-events"`
	NotificationTopic string `envconfig:"STALLSIDE_PUBSUB_NOTIFICATION_TOPIC" default:"ss-notification-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STALLSIDE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STALLSIDE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STALLSIDE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
