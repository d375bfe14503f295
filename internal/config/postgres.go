package config

import "github.com/kvelez/orderflow/internal/platform/logger"

type Postgres struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

func LoadPostgres(log *logger.Logger) Postgres {
	return Postgres{
		Host:     GetEnv("POSTGRES_HOST", "localhost", log),
		Port:     GetEnv("POSTGRES_PORT", "5432", log),
		User:     GetEnv("POSTGRES_USER", "postgres", log),
		Password: GetEnv("POSTGRES_PASSWORD", "", log),
		Name:     GetEnv("POSTGRES_NAME", "orderflow", log),
	}
}
