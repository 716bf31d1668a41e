package storage

import "time"

// SQLiteConfig configures connection pooling for the sqlite-backed Store.
type SQLiteConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultSQLiteConfig returns default connection pool settings. A single
// sqlite file only needs one writer at a time, so MaxOpenConns is kept low
// to avoid SQLITE_BUSY contention rather than to bound resource use.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}
