package config

const EnvPrefix = "GRITSYNC"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv = "GRITSYNC_APP_ENV"
	EnvPort   = "GRITSYNC_APP_PORT"

	EnvDBDSN  = "GRITSYNC_DB_DSN"
	EnvDBHost = "GRITSYNC_DB_HOST"
	EnvDBUser = "GRITSYNC_DB_USER"
	EnvDBName = "GRITSYNC_DB_NAME"
	EnvDBPort = "GRITSYNC_DB_PORT"

	EnvRedisURL = "GRITSYNC_REDIS_URL"

	EnvSupabaseJWTSecret = "GRITSYNC_SUPABASE_JWT_SECRET"

	EnvStripeAPIKey        = "GRITSYNC_STRIPE_API_KEY"
	EnvStripeWebhookSecret = "GRITSYNC_STRIPE_WEBHOOK_SECRET"

	EnvGCPProjectID    = "GRITSYNC_GCP_PROJECT_ID"
	EnvGCSProofsBucket = "GRITSYNC_GCS_PROOFS_BUCKET"

	EnvSettingsCacheTTL = "GRITSYNC_SETTINGS_CACHE_TTL"
	EnvRetryMaxRetries  = "GRITSYNC_RETRY_MAX_RETRIES"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
