package config

const EnvPrefix = "EVDMS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv    = "EVDMS_APP_ENV"
	EnvPort      = "EVDMS_APP_PORT"
	EnvLogLevel  = "EVDMS_LOG_LEVEL"
	EnvDBDSN     = "EVDMS_DB_DSN"
	EnvDBDriver  = "EVDMS_DB_DRIVER"
	EnvDBHost    = "EVDMS_DB_HOST"
	EnvDBUser    = "EVDMS_DB_USER"
	EnvDBName    = "EVDMS_DB_NAME"
	EnvRedisURL  = "EVDMS_REDIS_URL"
	EnvJWTSecret = "EVDMS_JWT_SECRET"
	EnvJWTIssuer = "EVDMS_JWT_ISSUER"

	EnvQuoteVATRate         = "EVDMS_QUOTE_VAT_RATE"
	EnvQuoteVIPDiscountRate = "EVDMS_QUOTE_VIP_DISCOUNT_RATE"
	EnvQuoteVIPThreshold    = "EVDMS_QUOTE_VIP_THRESHOLD"

	EnvVNPayTmnCode    = "EVDMS_VNPAY_TMN_CODE"
	EnvVNPayHashSecret = "EVDMS_VNPAY_HASH_SECRET"
	EnvVNPayReturnURL  = "EVDMS_VNPAY_RETURN_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
