package common

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	Port            string
	SiteURL         string
	DBDriver        string
	SQLiteDB        string
	DatabaseURL     string
	SessionSecret   string
	ItemsPerPage    int
	IndexCacheTTL   time.Duration
	CacheDir        string
	MediaRoot       string
	MediaURL        string
	LoginURL        string
	BackofficeUsers []string
	LogLevel        string
	LogstashAddr    string
}

const (
	DefaultItemsPerPage  = 10
	DefaultIndexCacheTTL = 20 * time.Second
	DefaultLoginURL      = "/auth/login/"
)

// LoadConfig reads .env (when present) and the process environment. Variables
// already set in the environment are never overridden by .env.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("could not read .env file")
	}

	return &Config{
		Port:            getEnv("PORT", "8080"),
		SiteURL:         getEnv("SITE_URL", "http://localhost:8080"),
		DBDriver:        strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		SQLiteDB:        getEnv("SQLITE_DB", "yatube.db"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SessionSecret:   os.Getenv("SESSION_SECRET"),
		ItemsPerPage:    getEnvInt("ITEMS_PER_PAGE", DefaultItemsPerPage),
		IndexCacheTTL:   getEnvDuration("INDEX_CACHE_TTL", DefaultIndexCacheTTL),
		CacheDir:        getEnv("CACHE_DIR", "cache"),
		MediaRoot:       getEnv("MEDIA_ROOT", "media"),
		MediaURL:        strings.TrimRight(getEnv("MEDIA_URL", "/media"), "/"),
		LoginURL:        getEnv("LOGIN_URL", DefaultLoginURL),
		BackofficeUsers: splitList(os.Getenv("BACKOFFICE_USERS")),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogstashAddr:    os.Getenv("LOGSTASH_ADDR"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		log.WithField("key", key).WithField("value", raw).Warn("invalid integer, using default")
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v < 0 {
		log.WithField("key", key).WithField("value", raw).Warn("invalid duration, using default")
		return fallback
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
