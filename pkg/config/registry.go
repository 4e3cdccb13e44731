package config

import "time"

// RegistryConfig holds runtime configuration for the registry API service.
type RegistryConfig struct {
	Environment        string
	Addr               string
	DatabaseURL        string
	MigrationsDir      string
	AdminToken         string
	ShellBaseURL       string
	ShellTimeout       time.Duration
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
}

// LoadRegistryConfig constructs a RegistryConfig from environment variables.
func LoadRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("CCP_ADDR", ":8080"),
		DatabaseURL:        GetString("DATABASE_URL", "postgres://axiom:axiom@db:5432/axiom?sslmode=disable"),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", "./db/migrations"),
		AdminToken:         GetString("CCP_ADMIN_TOKEN", ""),
		ShellBaseURL:       GetString("SHELL_BASE_URL", "http://localhost:9000"),
		ShellTimeout:       time.Duration(GetInt("SHELL_TIMEOUT_SECONDS", 2)) * time.Second,
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}
