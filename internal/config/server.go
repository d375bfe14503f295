package config

import "github.com/kvelez/orderflow/internal/platform/logger"

// Server carries the admission HTTP process's own knobs; everything
// Temporal-side is loaded separately via temporalx.LoadConfig.
type Server struct {
	Port    string
	LogMode string
}

func LoadServer(log *logger.Logger) Server {
	return Server{
		Port:    GetEnv("PORT", "8080", log),
		LogMode: GetEnv("LOG_MODE", "development", log),
	}
}
