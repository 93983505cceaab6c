package config

// EnvPrefix is handed to envconfig; every field carries its full variable name.
const EnvPrefix = "MASKBALL"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "MASKBALL_APP_ENV"
	EnvPort     = "MASKBALL_APP_PORT"
	EnvLogLevel = "MASKBALL_LOG_LEVEL"

	EnvDBDSN    = "MASKBALL_DB_DSN"
	EnvDBDriver = "MASKBALL_DB_DRIVER"
	EnvDBHost   = "MASKBALL_DB_HOST"
	EnvDBUser   = "MASKBALL_DB_USER"
	EnvDBName   = "MASKBALL_DB_NAME"

	EnvRedisURL  = "MASKBALL_REDIS_URL"
	EnvJWTSecret = "MASKBALL_JWT_SECRET"
	EnvUseSQLite = "MASKBALL_USE_SQLITE"

	EnvOverrideTokenHash = "MASKBALL_STAFF_OVERRIDE_TOKEN_HASH"

	EnvCatalogPath        = "MASKBALL_TICKETS_CATALOG_PATH"
	EnvOrderPrefix        = "MASKBALL_TICKETS_ORDER_PREFIX"
	EnvPlatformFeePercent = "MASKBALL_TICKETS_PLATFORM_FEE_PERCENT"
	EnvCardFeePercent     = "MASKBALL_TICKETS_CARD_FEE_PERCENT"
	EnvCardFeeFlat        = "MASKBALL_TICKETS_CARD_FEE_FLAT"
	EnvGrabPayFeePercent  = "MASKBALL_TICKETS_GRABPAY_FEE_PERCENT"
	EnvGrabPayFeeFlat     = "MASKBALL_TICKETS_GRABPAY_FEE_FLAT"
	EnvProofMaxBytes      = "MASKBALL_TICKETS_PROOF_MAX_BYTES"
	EnvReservationTTL     = "MASKBALL_TICKETS_RESERVATION_TTL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
