package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Loans        LoansConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Loans.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"CIRCULATION_APP_ENV" required:"true"`
	Port         string   `envconfig:"CIRCULATION_APP_PORT" default:"8080"`
	LogLevel     string   `envconfig:"CIRCULATION_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"CIRCULATION_LOG_WARN_STACK" default:"false"`
	LogFormat    string   `envconfig:"CIRCULATION_LOG_FORMAT"`
	CORSOrigins  []string `envconfig:"CIRCULATION_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CIRCULATION_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CIRCULATION_DB_DSN"`
	Driver string `envconfig:"CIRCULATION_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CIRCULATION_DB_HOST"`
	LegacyPort     int    `envconfig:"CIRCULATION_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CIRCULATION_DB_USER"`
	LegacyPassword string `envconfig:"CIRCULATION_DB_PASSWORD"`
	LegacyName     string `envconfig:"CIRCULATION_DB_NAME"`
	LegacySSLMode  string `envconfig:"CIRCULATION_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CIRCULATION_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CIRCULATION_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CIRCULATION_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CIRCULATION_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CIRCULATION_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CIRCULATION_REDIS_ADDR"`
	Password     string        `envconfig:"CIRCULATION_REDIS_PASSWORD"`
	DB           int           `envconfig:"CIRCULATION_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CIRCULATION_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CIRCULATION_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CIRCULATION_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CIRCULATION_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CIRCULATION_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"CIRCULATION_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"CIRCULATION_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CIRCULATION_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"CIRCULATION_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON string `envconfig:"CIRCULATION_GCP_CREDENTIALS_JSON"`
	CredentialsFile string `envconfig:"CIRCULATION_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	BorrowTopic string `envconfig:"CIRCULATION_PUBSUB_BORROW_TOPIC" default:"library.borrow.v1"`
	ReturnTopic string `envconfig:"CIRCULATION_PUBSUB_RETURN_TOPIC" default:"library.return.v1"`
}

type OutboxConfig struct {
	BatchSize        int `envconfig:"CIRCULATION_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS   int `envconfig:"CIRCULATION_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts      int `envconfig:"CIRCULATION_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays    int `envconfig:"CIRCULATION_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetentionDays int `envconfig:"CIRCULATION_OUTBOX_DLQ_RETENTION_DAYS" default:"90"`
	PurgeBatchSize   int `envconfig:"CIRCULATION_OUTBOX_PURGE_BATCH_SIZE" default:"500"`
}

// LoansConfig holds the lending policy constants.
type LoansConfig struct {
	PeriodDays    int    `envconfig:"CIRCULATION_LOAN_PERIOD_DAYS" default:"14"`
	UnitFine      string `envconfig:"CIRCULATION_LOAN_UNIT_FINE" default:"500"`
	Currency      string `envconfig:"CIRCULATION_LOAN_CURRENCY" default:"JPY"`
	SourceService string `envconfig:"CIRCULATION_LOAN_SOURCE_SERVICE" default:"library-app-borrow-v1"`
	Timezone      string `envconfig:"CIRCULATION_LOAN_TIMEZONE" default:"Asia/Tokyo"`
}

// UnitFineAmount parses the configured per-day fine.
func (l LoansConfig) UnitFineAmount() (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(l.UnitFine))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", EnvLoanUnitFine, l.UnitFine, err)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", EnvLoanUnitFine)
	}
	return amount, nil
}

// Location resolves the timezone used to derive the current civil date.
func (l LoansConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(l.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", EnvLoanTimezone, l.Timezone, err)
	}
	return loc, nil
}

func (l LoansConfig) validate() error {
	if l.PeriodDays <= 0 {
		return fmt.Errorf("%s must be positive", EnvLoanPeriodDays)
	}
	if _, err := l.UnitFineAmount(); err != nil {
		return err
	}
	if _, err := l.Location(); err != nil {
		return err
	}
	return nil
}

type CronConfig struct {
	IntervalMinutes int           `envconfig:"CIRCULATION_CRON_INTERVAL_MINUTES" default:"60"`
	JobTimeout      time.Duration `envconfig:"CIRCULATION_CRON_JOB_TIMEOUT" default:"5m"`
}

// Interval returns the cron cadence.
func (c CronConfig) Interval() time.Duration {
	if c.IntervalMinutes <= 0 {
		return 0
	}
	return time.Duration(c.IntervalMinutes) * time.Minute
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
