// internal/config/config.go
package config

import (
	"os"
	"strconv"
)

// Config carries process-level settings, all sourced from the environment
// (a .env file is autoloaded in main). Unset values fall back to local-dev
// defaults; an empty DatabaseURL or RedisAddr disables that transport.
type Config struct {
	// Port the HTTP surface listens on.
	Port string
	// BaseURL is the externally reachable address used in share links.
	BaseURL string
	// RedisAddr is the network-channel broker. Empty disables the network leg.
	RedisAddr string
	// DatabaseURL is the storage-signal Postgres DSN. Empty disables that leg.
	DatabaseURL string
	// Role is "owner" or "player".
	Role string
	// Room joins an existing room (player) instead of minting a new one.
	Room string
	// BankPath is the question-bank JSON file loaded by an owner session.
	BankPath string
	// Seconds is the owner's full countdown.
	Seconds int
}

// FromEnv reads the QUIZRING_* environment.
func FromEnv() Config {
	port := getEnv("PORT", "8080")
	return Config{
		Port:        port,
		BaseURL:     getEnv("QUIZRING_BASE_URL", "http://localhost:"+port),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Role:        getEnv("QUIZRING_ROLE", "owner"),
		Room:        getEnv("QUIZRING_ROOM", ""),
		BankPath:    getEnv("QUIZRING_BANK", ""),
		Seconds:     getEnvInt("QUIZRING_SECONDS", 150),
	}
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
