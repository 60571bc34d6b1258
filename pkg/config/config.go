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
	DB           DBConfig
	Redis        RedisConfig
	Auth         AuthConfig
	Stripe       StripeConfig
	Email        EmailConfig
	GCP          GCPConfig
	GCS          GCSConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Webhook      WebhookConfig
	Settings     SettingsConfig
	Retry        RetryConfig
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
	Env          string `envconfig:"GRITSYNC_APP_ENV" required:"true"`
	Port         string `envconfig:"GRITSYNC_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"GRITSYNC_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GRITSYNC_LOG_WARN_STACK" default:"false"`
	BaseURL      string `envconfig:"GRITSYNC_APP_BASE_URL" default:"https://app.gritsync.com"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"GRITSYNC_DB_DSN"`
	Driver string `envconfig:"GRITSYNC_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"GRITSYNC_DB_HOST"`
	LegacyPort     int    `envconfig:"GRITSYNC_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GRITSYNC_DB_USER"`
	LegacyPassword string `envconfig:"GRITSYNC_DB_PASSWORD"`
	LegacyName     string `envconfig:"GRITSYNC_DB_NAME"`
	LegacySSLMode  string `envconfig:"GRITSYNC_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GRITSYNC_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GRITSYNC_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GRITSYNC_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GRITSYNC_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"GRITSYNC_REDIS_URL" required:"true"`
	Address      string        `envconfig:"GRITSYNC_REDIS_ADDR"`
	Password     string        `envconfig:"GRITSYNC_REDIS_PASSWORD"`
	DB           int           `envconfig:"GRITSYNC_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GRITSYNC_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GRITSYNC_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GRITSYNC_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GRITSYNC_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GRITSYNC_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// AuthConfig holds the Supabase project JWT settings used to validate bearer tokens.
type AuthConfig struct {
	JWTSecret string `envconfig:"GRITSYNC_SUPABASE_JWT_SECRET" required:"true"`
	Audience  string `envconfig:"GRITSYNC_SUPABASE_JWT_AUDIENCE" default:"authenticated"`
	Issuer    string `envconfig:"GRITSYNC_SUPABASE_JWT_ISSUER"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"GRITSYNC_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"GRITSYNC_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"GRITSYNC_STRIPE_ENV" default:"test"`
	Currency      string `envconfig:"GRITSYNC_STRIPE_CURRENCY" default:"usd"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type EmailConfig struct {
	ResendAPIKey string `envconfig:"GRITSYNC_RESEND_API_KEY"`
	DefaultFrom  string `envconfig:"GRITSYNC_EMAIL_FROM" default:"GritSync <noreply@gritsync.com>"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"GRITSYNC_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"GRITSYNC_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"GRITSYNC_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	ProofsBucket string `envconfig:"GRITSYNC_GCS_PROOFS_BUCKET" required:"true"`
}

type PubSubConfig struct {
	PaymentsTopic string `envconfig:"GRITSYNC_PUBSUB_PAYMENTS_TOPIC" default:"gritsync-payment-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"GRITSYNC_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"GRITSYNC_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"GRITSYNC_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type WebhookConfig struct {
	IdempotencyTTL time.Duration `envconfig:"GRITSYNC_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
	MaxBodyBytes   int64         `envconfig:"GRITSYNC_WEBHOOK_MAX_BODY_BYTES" default:"65536"`
}

type SettingsConfig struct {
	CacheTTL time.Duration `envconfig:"GRITSYNC_SETTINGS_CACHE_TTL" default:"60s"`
}

type RetryConfig struct {
	MaxRetries   int           `envconfig:"GRITSYNC_RETRY_MAX_RETRIES" default:"3"`
	InitialDelay time.Duration `envconfig:"GRITSYNC_RETRY_INITIAL_DELAY" default:"1s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"GRITSYNC_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"GRITSYNC_AUTO_MIGRATE" default:"false"`
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
