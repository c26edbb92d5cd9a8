package postgres

import "time"

// Config holds PostgreSQL connection settings for the driver. Prefer a
// full DSN via ConnString; pool tuning fields are optional.
type Config struct {
	ConnString      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PoolLabel       string
}

func dsn(cfg *Config) string {
	return cfg.ConnString
}
