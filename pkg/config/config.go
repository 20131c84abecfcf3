package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "DENTHUB"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "DENTHUB_DB_DSN"
	EnvDBHost = "DENTHUB_DB_HOST"
	EnvDBUser = "DENTHUB_DB_USER"
	EnvDBName = "DENTHUB_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Billing      BillingConfig
	Cron         CronConfig
	Stripe       StripeConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DENTHUB_APP_ENV" required:"true"`
	Port         string `envconfig:"DENTHUB_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"DENTHUB_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DENTHUB_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"DENTHUB_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"DENTHUB_DB_DSN"`
	Driver string `envconfig:"DENTHUB_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DENTHUB_DB_HOST"`
	LegacyPort     int    `envconfig:"DENTHUB_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DENTHUB_DB_USER"`
	LegacyPassword string `envconfig:"DENTHUB_DB_PASSWORD"`
	LegacyName     string `envconfig:"DENTHUB_DB_NAME"`
	LegacySSLMode  string `envconfig:"DENTHUB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DENTHUB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DENTHUB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DENTHUB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DENTHUB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DENTHUB_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DENTHUB_REDIS_ADDR"`
	Password     string        `envconfig:"DENTHUB_REDIS_PASSWORD"`
	DB           int           `envconfig:"DENTHUB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DENTHUB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DENTHUB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DENTHUB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DENTHUB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DENTHUB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"DENTHUB_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"DENTHUB_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"DENTHUB_JWT_EXPIRATION_MINUTES" required:"true"`
}

// BillingConfig holds subscription lifecycle knobs.
type BillingConfig struct {
	TrialDays          int           `envconfig:"DENTHUB_BILLING_TRIAL_DAYS" default:"14"`
	GraceDays          int           `envconfig:"DENTHUB_BILLING_GRACE_DAYS" default:"7"`
	WebhookEventTTL    time.Duration `envconfig:"DENTHUB_BILLING_WEBHOOK_EVENT_TTL" default:"720h"`
	ExpireBatchLimit   int           `envconfig:"DENTHUB_BILLING_EXPIRE_BATCH_LIMIT" default:"250"`
	MinCancelReasonLen int           `envconfig:"DENTHUB_BILLING_MIN_CANCEL_REASON_LEN" default:"10"`
}

// TrialWindow returns the configured trial length as a duration.
func (b BillingConfig) TrialWindow() time.Duration {
	if b.TrialDays <= 0 {
		return 0
	}
	return time.Duration(b.TrialDays) * 24 * time.Hour
}

// GraceWindow returns the configured grace period as a duration.
func (b BillingConfig) GraceWindow() time.Duration {
	if b.GraceDays <= 0 {
		return 0
	}
	return time.Duration(b.GraceDays) * 24 * time.Hour
}

type CronConfig struct {
	Interval time.Duration `envconfig:"DENTHUB_CRON_INTERVAL" default:"24h"`
}

type StripeConfig struct {
	APIKey string `envconfig:"DENTHUB_STRIPE_API_KEY"`
	Secret string `envconfig:"DENTHUB_STRIPE_SECRET"`
	Env    string `envconfig:"DENTHUB_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"DENTHUB_AUTO_MIGRATE" default:"false"`
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
