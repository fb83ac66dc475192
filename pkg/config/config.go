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
	JWT          JWTConfig
	Loyalty      LoyaltyConfig
	Settlement   SettlementConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
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
	Env          string   `envconfig:"AVTOVIN_APP_ENV" required:"true"`
	Port         string   `envconfig:"AVTOVIN_APP_PORT" default:"8080"`
	LogLevel     string   `envconfig:"AVTOVIN_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"AVTOVIN_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"AVTOVIN_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"AVTOVIN_DB_DSN"`
	Driver string `envconfig:"AVTOVIN_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"AVTOVIN_DB_HOST"`
	LegacyPort     int    `envconfig:"AVTOVIN_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"AVTOVIN_DB_USER"`
	LegacyPassword string `envconfig:"AVTOVIN_DB_PASSWORD"`
	LegacyName     string `envconfig:"AVTOVIN_DB_NAME"`
	LegacySSLMode  string `envconfig:"AVTOVIN_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"AVTOVIN_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"AVTOVIN_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"AVTOVIN_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"AVTOVIN_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// ensureDSN assembles a postgres DSN from the legacy host/user variables when
// AVTOVIN_DB_DSN is not set directly.
func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.LegacyHost == "" || d.LegacyUser == "" || d.LegacyName == "" {
		return fmt.Errorf("either AVTOVIN_DB_DSN or AVTOVIN_DB_HOST/USER/NAME must be set")
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.LegacyUser, d.LegacyPassword),
		Host:   fmt.Sprintf("%s:%d", d.LegacyHost, d.LegacyPort),
		Path:   d.LegacyName,
	}
	q := u.Query()
	q.Set("sslmode", d.LegacySSLMode)
	u.RawQuery = q.Encode()
	d.DSN = u.String()
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"AVTOVIN_REDIS_URL"`
	Address      string        `envconfig:"AVTOVIN_REDIS_ADDR"`
	Password     string        `envconfig:"AVTOVIN_REDIS_PASSWORD"`
	DB           int           `envconfig:"AVTOVIN_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"AVTOVIN_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"AVTOVIN_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"AVTOVIN_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"AVTOVIN_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"AVTOVIN_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"AVTOVIN_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"AVTOVIN_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"AVTOVIN_JWT_EXPIRATION_MINUTES" default:"43200"`
}

// LoyaltyConfig carries the pricing defaults applied when a partner has no
// explicit rates configured.
type LoyaltyConfig struct {
	RedemptionCapPercent     int     `envconfig:"AVTOVIN_LOYALTY_REDEMPTION_CAP_PERCENT" default:"50"`
	DefaultCommissionPercent float64 `envconfig:"AVTOVIN_LOYALTY_DEFAULT_COMMISSION_PERCENT" default:"5"`
	DefaultDiscountPercent   float64 `envconfig:"AVTOVIN_LOYALTY_DEFAULT_DISCOUNT_PERCENT" default:"0"`
}

type SettlementConfig struct {
	RunLockTTL time.Duration `envconfig:"AVTOVIN_SETTLEMENT_RUN_LOCK_TTL" default:"10m"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"AVTOVIN_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	NotificationTopic string        `envconfig:"AVTOVIN_PUBSUB_NOTIFICATION_TOPIC" default:"user-notifications"`
	PublishTimeout    time.Duration `envconfig:"AVTOVIN_PUBSUB_PUBLISH_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"AVTOVIN_AUTO_MIGRATE" default:"false"`
}
