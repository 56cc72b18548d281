// Package db opens the SQL databases that back the client state store.
package db

import (
	"fmt"
	"os"
	"path/filepath"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/zulandar/docchat/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DSN builds a MySQL DSN for the given server and database.
func DSN(user, host string, port int, database string) string {
	cfg := mysqldrv.NewConfig()
	cfg.User = user
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", host, port)
	cfg.DBName = database
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// ConnectMySQL opens a GORM connection to a MySQL-compatible database.
func ConnectMySQL(cfg config.MySQLConfig) (*gorm.DB, error) {
	dsn := DSN(cfg.User, cfg.Host, cfg.Port, cfg.Database)
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect to %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Database, err)
	}
	return db, nil
}

// ConnectSQLite opens (creating if needed) a sqlite database at path. The
// special path ":memory:" opens a private in-memory database.
func ConnectSQLite(path string) (*gorm.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("db: create directory for %s: %w", path, err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite %s: %w", path, err)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise see its own empty database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("db: open sqlite %s: %w", path, err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Connect opens the SQL database selected by the store config and migrates
// the client state schema. Only the sqlite and mysql drivers are SQL-backed.
func Connect(cfg config.StoreConfig) (*gorm.DB, error) {
	var (
		gormDB *gorm.DB
		err    error
	)
	switch cfg.Driver {
	case "sqlite":
		gormDB, err = ConnectSQLite(cfg.Path)
	case "mysql":
		gormDB, err = ConnectMySQL(cfg.MySQL)
	default:
		return nil, fmt.Errorf("db: driver %q is not SQL-backed", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(gormDB); err != nil {
		return nil, err
	}
	return gormDB, nil
}
