package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Ledger       LedgerConfig
	Export       ExportConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Ledger.Tolerance(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MESSLEDGER_APP_ENV" required:"true"`
	Port         string `envconfig:"MESSLEDGER_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"MESSLEDGER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MESSLEDGER_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"MESSLEDGER_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MESSLEDGER_DB_DSN"`
	Driver string `envconfig:"MESSLEDGER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MESSLEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"MESSLEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MESSLEDGER_DB_USER"`
	LegacyPassword string `envconfig:"MESSLEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"MESSLEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"MESSLEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MESSLEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MESSLEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MESSLEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MESSLEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the embedded sqlite driver is selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

type RedisConfig struct {
	// URL is optional; without it idempotency replay is disabled.
	URL          string        `envconfig:"MESSLEDGER_REDIS_URL"`
	PoolSize     int           `envconfig:"MESSLEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MESSLEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MESSLEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MESSLEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MESSLEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != ""
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MESSLEDGER_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MESSLEDGER_AUTO_MIGRATE" default:"false"`
}

type LedgerConfig struct {
	CloseRequiresTally bool   `envconfig:"MESSLEDGER_CLOSE_REQUIRES_TALLY" default:"true"`
	TallyTolerance     string `envconfig:"MESSLEDGER_TALLY_TOLERANCE" default:"0.01"`
}

// Tolerance parses the configured tally tolerance.
func (l LedgerConfig) Tolerance() (decimal.Decimal, error) {
	raw := strings.TrimSpace(l.TallyTolerance)
	if raw == "" {
		return decimal.RequireFromString(DefaultTallyTolerance), nil
	}
	tol, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", EnvTallyTolerance, err)
	}
	if tol.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", EnvTallyTolerance)
	}
	return tol, nil
}

type ExportConfig struct {
	SheetName      string `envconfig:"MESSLEDGER_EXPORT_SHEET_NAME" default:"Summary"`
	FilenamePrefix string `envconfig:"MESSLEDGER_EXPORT_FILENAME_PREFIX" default:"period"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = DefaultSQLiteDSN
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
