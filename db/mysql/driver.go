package mysql

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Pool sizes the connection pool. Zero values keep the driver defaults.
type Pool struct {
	MaxOpen int
	MaxIdle int
	MaxLife time.Duration
}

// NormalizeDSN forces the options the result and event tables depend on:
// DATETIME columns scanned into time.Time in UTC, and utf8mb4 for player
// names unless the DSN already names a charset.
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("mysql: bad dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	out := cfg.FormatDSN()
	if DSNQuery(out).Has("charset") {
		return out, nil
	}
	sep := "?"
	if strings.Contains(out[strings.LastIndex(out, "/"):], "?") {
		sep = "&"
	}
	return out + sep + "charset=utf8mb4", nil
}

// DSNQuery returns the parameters after the database name of dsn.
func DSNQuery(dsn string) url.Values {
	slash := strings.LastIndex(dsn, "/")
	if slash < 0 {
		return url.Values{}
	}
	i := strings.IndexByte(dsn[slash:], '?')
	if i < 0 {
		return url.Values{}
	}
	q, err := url.ParseQuery(dsn[slash+i+1:])
	if err != nil {
		return url.Values{}
	}
	return q
}

// Open creates a GORM *DB backed by MySQL with a connection pool.
func Open(dsn string, pool Pool) (*gorm.DB, error) {
	dsn, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if pool.MaxOpen > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpen)
	}
	if pool.MaxIdle > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdle)
	}
	if pool.MaxLife > 0 {
		sqlDB.SetConnMaxLifetime(pool.MaxLife)
	}
	return db, nil
}
