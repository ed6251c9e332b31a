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
	Eventing     EventingConfig
	Ledger       LedgerConfig
	Reconcile    ReconcileConfig
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
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"GRAINSTOCK_APP_ENV" required:"true"`
	Port         string `envconfig:"GRAINSTOCK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"GRAINSTOCK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GRAINSTOCK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"GRAINSTOCK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"GRAINSTOCK_DB_DSN"`
	Driver string `envconfig:"GRAINSTOCK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"GRAINSTOCK_DB_HOST"`
	LegacyPort     int    `envconfig:"GRAINSTOCK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GRAINSTOCK_DB_USER"`
	LegacyPassword string `envconfig:"GRAINSTOCK_DB_PASSWORD"`
	LegacyName     string `envconfig:"GRAINSTOCK_DB_NAME"`
	LegacySSLMode  string `envconfig:"GRAINSTOCK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GRAINSTOCK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GRAINSTOCK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GRAINSTOCK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GRAINSTOCK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"GRAINSTOCK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"GRAINSTOCK_REDIS_ADDR"`
	Password     string        `envconfig:"GRAINSTOCK_REDIS_PASSWORD"`
	DB           int           `envconfig:"GRAINSTOCK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GRAINSTOCK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GRAINSTOCK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GRAINSTOCK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GRAINSTOCK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GRAINSTOCK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"GRAINSTOCK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"GRAINSTOCK_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"GRAINSTOCK_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type LedgerConfig struct {
	IdempotencyTTL  time.Duration `envconfig:"GRAINSTOCK_LEDGER_IDEMPOTENCY_TTL" default:"24h"`
	HistoryPageSize int           `envconfig:"GRAINSTOCK_LEDGER_HISTORY_PAGE_SIZE" default:"50"`
	HistoryPageMax  int           `envconfig:"GRAINSTOCK_LEDGER_HISTORY_PAGE_MAX" default:"500"`
}

type ReconcileConfig struct {
	Interval  time.Duration `envconfig:"GRAINSTOCK_RECONCILE_INTERVAL" default:"5m"`
	BatchSize int           `envconfig:"GRAINSTOCK_RECONCILE_BATCH_SIZE" default:"100"`
	LockTTL   time.Duration `envconfig:"GRAINSTOCK_RECONCILE_LOCK_TTL" default:"4m"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"GRAINSTOCK_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"GRAINSTOCK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"GRAINSTOCK_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	MovementsTopic        string `envconfig:"GRAINSTOCK_PUBSUB_MOVEMENTS_TOPIC" required:"true"`
	MovementsSubscription string `envconfig:"GRAINSTOCK_PUBSUB_MOVEMENTS_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"GRAINSTOCK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"GRAINSTOCK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"GRAINSTOCK_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
