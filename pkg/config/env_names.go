package config

// EnvPrefix is passed to envconfig; each field carries its full name in the
// struct tag, so the prefix only matters for envconfig's usage output.
const EnvPrefix = "grainstock"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "GRAINSTOCK_APP_ENV"
	EnvPort     = "GRAINSTOCK_APP_PORT"
	EnvLogLevel = "GRAINSTOCK_LOG_LEVEL"

	EnvDBDSN      = "GRAINSTOCK_DB_DSN"
	EnvDBHost     = "GRAINSTOCK_DB_HOST"
	EnvDBPort     = "GRAINSTOCK_DB_PORT"
	EnvDBUser     = "GRAINSTOCK_DB_USER"
	EnvDBPassword = "GRAINSTOCK_DB_PASSWORD"
	EnvDBName     = "GRAINSTOCK_DB_NAME"

	EnvRedisURL = "GRAINSTOCK_REDIS_URL"

	EnvGCPProjectID = "GRAINSTOCK_GCP_PROJECT_ID"

	EnvPubSubMovementsTopic = "GRAINSTOCK_PUBSUB_MOVEMENTS_TOPIC"
	EnvPubSubMovementsSub   = "GRAINSTOCK_PUBSUB_MOVEMENTS_SUBSCRIPTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
