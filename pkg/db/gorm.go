package db

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mini-rpa/pkg/config"
)

// DefaultSQLiteDSN is used when db.type is sqlite and no DSN is configured.
const DefaultSQLiteDSN = "minirpa.db"

// Dialector picks the GORM dialector for the configured database.
// "mysql" selects MySQL/TiDB; anything else falls back to SQLite.
func Dialector(cfg config.DBConfig) (gorm.Dialector, error) {
	switch cfg.Type {
	case "mysql":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("db.type is mysql but no DSN is configured")
		}
		return mysql.Open(cfg.DSN), nil
	case "", "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = DefaultSQLiteDSN
			hlog.Infof("Using default SQLite DSN: %s", dsn)
		}
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported db.type %q", cfg.Type)
	}
}

// NewGormDB opens the journal database described by cfg.
func NewGormDB(cfg config.DBConfig, logLevel logger.LogLevel) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	hlog.Infof("Database connection established (%s).", dialector.Name())
	return db, nil
}

// AutoMigrate performs auto-migration for the given GORM models.
func AutoMigrate(db *gorm.DB, models ...interface{}) error {
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	hlog.Infof("Database migration completed for %d models.", len(models))
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
