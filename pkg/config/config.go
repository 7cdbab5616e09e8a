package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every environment variable the platform reads.
	EnvPrefix = "RAFFLEHQ"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "RAFFLEHQ_DB_DSN"
	EnvDBHost = "RAFFLEHQ_DB_HOST"
	EnvDBUser = "RAFFLEHQ_DB_USER"
	EnvDBName = "RAFFLEHQ_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App     AppConfig
	Service ServiceConfig
	DB      DBConfig
	Redis   RedisConfig
	Engine  EngineConfig
	Cron    CronConfig
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
	Env          string `envconfig:"RAFFLEHQ_APP_ENV" required:"true"`
	Port         string `envconfig:"RAFFLEHQ_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"RAFFLEHQ_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"RAFFLEHQ_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"RAFFLEHQ_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"RAFFLEHQ_DB_DSN"`
	Driver string `envconfig:"RAFFLEHQ_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"RAFFLEHQ_DB_HOST"`
	LegacyPort     int    `envconfig:"RAFFLEHQ_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"RAFFLEHQ_DB_USER"`
	LegacyPassword string `envconfig:"RAFFLEHQ_DB_PASSWORD"`
	LegacyName     string `envconfig:"RAFFLEHQ_DB_NAME"`
	LegacySSLMode  string `envconfig:"RAFFLEHQ_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RAFFLEHQ_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RAFFLEHQ_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RAFFLEHQ_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RAFFLEHQ_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"RAFFLEHQ_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"RAFFLEHQ_REDIS_URL" required:"true"`
	Address      string        `envconfig:"RAFFLEHQ_REDIS_ADDR"`
	Password     string        `envconfig:"RAFFLEHQ_REDIS_PASSWORD"`
	DB           int           `envconfig:"RAFFLEHQ_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RAFFLEHQ_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RAFFLEHQ_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RAFFLEHQ_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RAFFLEHQ_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RAFFLEHQ_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// EngineConfig tunes the ticket allocation and ledger engine.
type EngineConfig struct {
	AllocationMaxRetries  int           `envconfig:"RAFFLEHQ_ENGINE_ALLOCATION_MAX_RETRIES" default:"3"`
	MaxTicketsPerPurchase int           `envconfig:"RAFFLEHQ_ENGINE_MAX_TICKETS_PER_PURCHASE" default:"100"`
	PendingPaymentTTL     time.Duration `envconfig:"RAFFLEHQ_ENGINE_PENDING_PAYMENT_TTL" default:"30m"`
	ClampPurchaseDebits   bool          `envconfig:"RAFFLEHQ_ENGINE_CLAMP_PURCHASE_DEBITS" default:"false"`
	WebhookDedupTTL       time.Duration `envconfig:"RAFFLEHQ_ENGINE_WEBHOOK_DEDUP_TTL" default:"24h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"RAFFLEHQ_CRON_INTERVAL" default:"5m"`
	LockTTL  time.Duration `envconfig:"RAFFLEHQ_CRON_LOCK_TTL" default:"4m"`
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
