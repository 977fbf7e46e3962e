package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr       string
	CORSOrigin string
	// Redis Configuration
	RedisURL  string
	KeyPrefix string
	// Secrets
	BoardPassword     string
	BoardPasswordHash string
	AdminSecret       string
	TokenSecret       string
	IdentitySalt      string
	AccessTTL         time.Duration
	// Board behavior
	AuthorPrefix         string
	MaxCommentLength     int
	MaxRunLength         int
	MaxPageLimit         int
	ReleaseClaimOnDelete bool
	// Login throttle thresholds
	Warn1            int
	Warn2            int
	BanAt            int
	BanDuration      time.Duration
	FailureRetention time.Duration
}

func Load() Config {
	return Config{
		Addr:       getenv("API_ADDR", ":8790"),
		CORSOrigin: getenv("BOARD_CORS_ORIGIN", "*"),
		RedisURL:   getenv("REDIS_URL", "redis://localhost:6379/0"),
		KeyPrefix:  getenv("BOARD_KEY_PREFIX", "board:"),
		// Plaintext password is a dev fallback, set BOARD_PASSWORD_HASH in production
		BoardPassword:        getenv("BOARD_PASSWORD", "letmein"),
		BoardPasswordHash:    getenv("BOARD_PASSWORD_HASH", ""),
		AdminSecret:          getenv("BOARD_ADMIN_SECRET", "board-dev-admin"),
		TokenSecret:          getenv("BOARD_TOKEN_SECRET", "board-dev-secret"),
		IdentitySalt:         getenv("BOARD_IDENTITY_SALT", "board-dev-salt"),
		AccessTTL:            time.Duration(getenvInt("BOARD_ACCESS_TTL_SECONDS", 86400)) * time.Second,
		AuthorPrefix:         getenv("BOARD_AUTHOR_PREFIX", "Guest "),
		MaxCommentLength:     getenvInt("BOARD_MAX_COMMENT_LENGTH", 300),
		MaxRunLength:         getenvInt("BOARD_MAX_RUN_LENGTH", 20),
		MaxPageLimit:         getenvInt("BOARD_MAX_PAGE_LIMIT", 50),
		ReleaseClaimOnDelete: getenvBool("BOARD_RELEASE_CLAIM_ON_DELETE", true),
		Warn1:                getenvInt("BOARD_LOGIN_WARN1", 5),
		Warn2:                getenvInt("BOARD_LOGIN_WARN2", 8),
		BanAt:                getenvInt("BOARD_LOGIN_BAN_AT", 10),
		BanDuration:          time.Duration(getenvInt("BOARD_LOGIN_BAN_SECONDS", 86400)) * time.Second,
		FailureRetention:     time.Duration(getenvInt("BOARD_LOGIN_RETENTION_SECONDS", 259200)) * time.Second,
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

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
