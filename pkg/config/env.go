package config

const (
	EnvPrefix = "MESSLEDGER"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	DefaultSQLiteDSN      = "file:messledger.db?_foreign_keys=on"
	DefaultTallyTolerance = "0.01"
)

const (
	EnvAppEnv         = "MESSLEDGER_APP_ENV"
	EnvPort           = "MESSLEDGER_APP_PORT"
	EnvLogLevel       = "MESSLEDGER_LOG_LEVEL"
	EnvDBDSN          = "MESSLEDGER_DB_DSN"
	EnvDBDriver       = "MESSLEDGER_DB_DRIVER"
	EnvDBHost         = "MESSLEDGER_DB_HOST"
	EnvDBPort         = "MESSLEDGER_DB_PORT"
	EnvDBUser         = "MESSLEDGER_DB_USER"
	EnvDBPassword     = "MESSLEDGER_DB_PASSWORD"
	EnvDBName         = "MESSLEDGER_DB_NAME"
	EnvRedisURL       = "MESSLEDGER_REDIS_URL"
	EnvUseSQLite      = "MESSLEDGER_USE_SQLITE"
	EnvAutoMigrate    = "MESSLEDGER_AUTO_MIGRATE"
	EnvTallyTolerance = "MESSLEDGER_TALLY_TOLERANCE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
