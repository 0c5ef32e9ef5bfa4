package config

const (
	// EnvPrefix is empty because every variable already carries the
	// STALLSIDE_ prefix in its envconfig tag.
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "STALLSIDE_DB_DSN"
	EnvDBHost = "STALLSIDE_DB_HOST"
	EnvDBUser = "STALLSIDE_DB_USER"
	EnvDBName = "STALLSIDE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
