package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv         string
	HTTPAddr       string
	MetricsAddr    string
	MySQLDSN       string
	RedisAddr      string
	RedisDB        int
	RedisPass      string
	Workers        int
	UpsertRetries  int
	UpsertRPS      int
	PersistTimeout time.Duration
	CacheTTL       time.Duration
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:         env("APP_ENV", "prod"),
		HTTPAddr:       env("HTTP_ADDR", ":8080"),
		MetricsAddr:    env("METRICS_ADDR", ":9100"),
		MySQLDSN:       env("MYSQL_DSN", "root:root@tcp(localhost:3306)/staybook?charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:      env("REDIS_ADDR", "localhost:6379"),
		RedisPass:      env("REDIS_PASSWORD", ""),
		RedisDB:        atoi("REDIS_DB", 0),
		Workers:        atoi("IMPORT_WORKERS", 8),
		UpsertRetries:  atoi("IMPORT_UPSERT_RETRIES", 2),
		UpsertRPS:      atoi("IMPORT_UPSERT_RPS", 50),
		PersistTimeout: time.Duration(atoi("IMPORT_PERSIST_TIMEOUT_SECONDS", 5)) * time.Second,
		CacheTTL:       time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,
	}
	if c.Workers <= 0 {
		log.Warn().Int("workers", c.Workers).Msg("IMPORT_WORKERS must be positive, using 8")
		c.Workers = 8
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
