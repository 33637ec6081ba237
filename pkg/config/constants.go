package config

const (
	EnvPrefix = "CIRCULATION"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv = "CIRCULATION_APP_ENV"
	EnvPort   = "CIRCULATION_APP_PORT"

	EnvCORSOrigins = "CIRCULATION_CORS_ORIGINS"

	EnvDBDSN  = "CIRCULATION_DB_DSN"
	EnvDBHost = "CIRCULATION_DB_HOST"
	EnvDBUser = "CIRCULATION_DB_USER"
	EnvDBName = "CIRCULATION_DB_NAME"

	EnvRedisURL     = "CIRCULATION_REDIS_URL"
	EnvJWTSecret    = "CIRCULATION_JWT_SECRET"
	EnvJWTIssuer    = "CIRCULATION_JWT_ISSUER"
	EnvGCPProjectID = "CIRCULATION_GCP_PROJECT_ID"

	EnvPubSubBorrowTopic = "CIRCULATION_PUBSUB_BORROW_TOPIC"
	EnvPubSubReturnTopic = "CIRCULATION_PUBSUB_RETURN_TOPIC"

	EnvLoanPeriodDays = "CIRCULATION_LOAN_PERIOD_DAYS"
	EnvLoanUnitFine   = "CIRCULATION_LOAN_UNIT_FINE"
	EnvLoanTimezone   = "CIRCULATION_LOAN_TIMEZONE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
