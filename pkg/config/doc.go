// Package config loads application configuration from environment variables
// into typed structs.
//
// It combines github.com/joho/godotenv, which reads .env files into the
// process environment, with github.com/caarlos0/env/v11, which parses the
// environment into structs using `env` and `envDefault` field tags.
//
// Each configuration type is parsed once and cached for the life of the
// process:
//
//	type Config struct {
//		Env      string `env:"APP_ENV" envDefault:"development"`
//		LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
// Additional .env files can be read explicitly with LoadEnv before the first
// Load. Tests that change the environment between loads call ResetCache.
package config
