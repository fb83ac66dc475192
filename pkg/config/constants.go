package config

const (
	// EnvPrefix scopes every environment variable consumed by the platform.
	EnvPrefix = "AVTOVIN"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)
