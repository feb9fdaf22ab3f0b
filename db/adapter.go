package db

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/config"
	dbmysql "github.com/ClementNoelRenard/Running-Map-Run-For-Life/db/mysql"
	dbsqlite "github.com/ClementNoelRenard/Running-Map-Run-For-Life/db/sqlite"
)

const (
	ModeSQLite       = "sqlite"
	ModeSQLiteMemory = "sqlite_memory"
	ModeMySQL        = "mysql"
)

// Open returns a *gorm.DB for the configured database mode.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Mode {
	case ModeSQLite:
		return dbsqlite.Open(cfg.SQLitePath)
	case ModeSQLiteMemory:
		// a private shared-cache database per Open call
		return dbsqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	case ModeMySQL:
		return dbmysql.Open(cfg.MySQLDSN, dbmysql.Pool{
			MaxOpen: cfg.MySQLMaxOpen,
			MaxIdle: cfg.MySQLMaxIdle,
			MaxLife: cfg.MySQLMaxLife,
		})
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}
