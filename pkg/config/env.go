package config

const (
	EnvPrefix = "SHAREDWISHLIST"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	RelayRedis = "redis"
)

const (
	EnvAppEnv     = "SHAREDWISHLIST_APP_ENV"
	EnvPort       = "SHAREDWISHLIST_APP_PORT"
	EnvDBDSN      = "SHAREDWISHLIST_DB_DSN"
	EnvDBHost     = "SHAREDWISHLIST_DB_HOST"
	EnvDBUser     = "SHAREDWISHLIST_DB_USER"
	EnvDBName     = "SHAREDWISHLIST_DB_NAME"
	EnvDBPassword = "SHAREDWISHLIST_DB_PASSWORD"
	EnvRedisURL   = "SHAREDWISHLIST_REDIS_URL"
	EnvJWTSecret  = "SHAREDWISHLIST_JWT_SECRET"
	EnvUseSQLite  = "SHAREDWISHLIST_USE_SQLITE"
	EnvRelay      = "SHAREDWISHLIST_REALTIME_RELAY"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
