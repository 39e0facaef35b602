package common

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectDb opens the database selected by cfg.DBDriver.
func ConnectDb(cfg *Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: GormLogger(log.StandardLogger()),
	}

	switch cfg.DBDriver {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL not set")
		}
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		log.Info("opened postgres db")
		return db, nil
	case "sqlite", "":
		if cfg.SQLiteDB == "" {
			return nil, fmt.Errorf("SQLITE_DB not set")
		}
		db, err := gorm.Open(sqlite.Open(SQLiteDSN(cfg.SQLiteDB)), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		log.WithField("file", cfg.SQLiteDB).Info("opened sqlite db")
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}

// GormLogger sends gorm's slow query and error lines to out. Missing rows are
// reported to callers as errors and are not logged.
func GormLogger(out *log.Logger) logger.Interface {
	return logger.New(out, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// SQLiteDSN turns foreign key enforcement on for the given sqlite file.
func SQLiteDSN(file string) string {
	sep := "?"
	if strings.Contains(file, "?") {
		sep = "&"
	}
	return file + sep + "_foreign_keys=on"
}
