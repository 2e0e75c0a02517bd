package database

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
)

// SQLiteConfig holds embedded database configuration.
type SQLiteConfig struct {
	BusyTimeout  time.Duration
	JournalMode  string
	ForeignKeys  bool
	MaxOpenConns int
}

// DefaultSQLiteConfig returns defaults tuned for one-writer-many-readers.
func DefaultSQLiteConfig() *SQLiteConfig {
	busyTimeout := 5 * time.Second
	if envTimeout := os.Getenv("SQLITE_BUSY_TIMEOUT_MS"); envTimeout != "" {
		if v, err := strconv.Atoi(envTimeout); err == nil {
			busyTimeout = time.Duration(v) * time.Millisecond
		}
	}

	return &SQLiteConfig{
		BusyTimeout:  busyTimeout,
		JournalMode:  "WAL",
		ForeignKeys:  true,
		MaxOpenConns: 1,
	}
}

func OpenSQLite(path string) (*sqlx.DB, error) {
	return OpenSQLiteWithConfig(path, DefaultSQLiteConfig())
}

func OpenSQLiteWithConfig(path string, cfg *SQLiteConfig) (*sqlx.DB, error) {
	if cfg == nil {
		cfg = DefaultSQLiteConfig()
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=%s&_foreign_keys=%s",
		url.PathEscape(path),
		cfg.BusyTimeout.Milliseconds(),
		cfg.JournalMode,
		boolPragma(cfg.ForeignKeys),
	)

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// SQLite allows one writer; a single connection serializes writes at
	// the pool instead of returning SQLITE_BUSY under load.
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func boolPragma(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns optimized Redis defaults.
func DefaultRedisConfig() *RedisConfig {
	poolSize := 50
	if envPool := os.Getenv("REDIS_POOL_SIZE"); envPool != "" {
		if v, err := strconv.Atoi(envPool); err == nil {
			poolSize = v
		}
	}

	return &RedisConfig{
		PoolSize:     poolSize,
		MinIdleConns: 10,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func NewRedis(redisURL string) (*redis.Client, error) {
	return NewRedisWithConfig(redisURL, DefaultRedisConfig())
}

func NewRedisWithConfig(redisURL string, cfg *RedisConfig) (*redis.Client, error) {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	opt.PoolSize = cfg.PoolSize
	opt.MinIdleConns = cfg.MinIdleConns
	opt.MaxRetries = cfg.MaxRetries
	opt.DialTimeout = cfg.DialTimeout
	opt.ReadTimeout = cfg.ReadTimeout
	opt.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

// RedisStats returns Redis pool statistics.
type RedisStats struct {
	Hits       uint32 `json:"hits"`
	Misses     uint32 `json:"misses"`
	Timeouts   uint32 `json:"timeouts"`
	TotalConns uint32 `json:"total_conns"`
	IdleConns  uint32 `json:"idle_conns"`
	StaleConns uint32 `json:"stale_conns"`
}

// GetRedisStats returns Redis pool statistics.
func GetRedisStats(client *redis.Client) *RedisStats {
	stat := client.PoolStats()
	return &RedisStats{
		Hits:       stat.Hits,
		Misses:     stat.Misses,
		Timeouts:   stat.Timeouts,
		TotalConns: stat.TotalConns,
		IdleConns:  stat.IdleConns,
		StaleConns: stat.StaleConns,
	}
}
