package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr          string
	DBPath        string
	JWTSecret     string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	AllowedOrigin string
	// Redis - optional; refresh tokens fall back to process memory
	RedisURL string
	// JDoodle credentials for the /run endpoint
	JDoodleClientID     string
	JDoodleClientSecret string
	// Rooms idle longer than this are swept; zero disables the sweep
	RoomTTL time.Duration
}

func Load() Config {
	return Config{
		Addr:                getenv("CODEHIVE_ADDR", ":8080"),
		DBPath:              getenv("CODEHIVE_DB_PATH", "./data/codehive.db"),
		JWTSecret:           getenv("CODEHIVE_JWT_SECRET", "codehive-dev-secret"),
		AccessTTL:           time.Duration(getenvInt("CODEHIVE_ACCESS_TTL_SECONDS", 900)) * time.Second,
		RefreshTTL:          time.Duration(getenvInt("CODEHIVE_REFRESH_TTL_SECONDS", 2592000)) * time.Second,
		AllowedOrigin:       getenv("CODEHIVE_CORS_ORIGIN", "*"),
		RedisURL:            getenv("REDIS_URL", ""),
		JDoodleClientID:     getenv("JDOODLE_CLIENT_ID", ""),
		JDoodleClientSecret: getenv("JDOODLE_CLIENT_SECRET", ""),
		RoomTTL:             time.Duration(getenvInt("CODEHIVE_ROOM_TTL_HOURS", 0)) * time.Hour,
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
