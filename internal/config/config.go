package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port       int
	UploadDir  string
	TempZipDir string
	NatsURL    string
	NatsToken  string
	// DatabaseURL enables the Postgres audit trail when set.
	DatabaseURL string
	LogLevel    string
}

func Load() Config {
	return Config{
		Port:        envInt("ALTERECHO_PORT", 8200),
		UploadDir:   envStr("ALTERECHO_UPLOAD_DIR", "uploads"),
		TempZipDir:  envStr("ALTERECHO_TEMP_ZIP_DIR", "temp_zip_extract"),
		NatsURL:     envStr("NATS_URL", ""),
		NatsToken:   envStr("NATS_TOKEN", ""),
		DatabaseURL: envStr("DATABASE_URL", ""),
		LogLevel:    envStr("LOG_LEVEL", "info"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
