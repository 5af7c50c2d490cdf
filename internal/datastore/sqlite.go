package datastore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/radiotracker/internal/conf"
	"github.com/tphakala/radiotracker/internal/errors"
	"github.com/tphakala/radiotracker/internal/logger"
)

// SQLiteStore implements DataStore for SQLite
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

// sqliteDSN appends connection parameters to a file path or URI. Writers
// wait on the busy timeout instead of failing with SQLITE_BUSY.
func sqliteDSN(path string) string {
	params := "_busy_timeout=5000&_foreign_keys=on"
	if !strings.Contains(path, "mode=memory") {
		params += "&_journal_mode=WAL"
	}
	if strings.Contains(path, "?") {
		return path + "&" + params
	}
	return path + "?" + params
}

// Open initializes the SQLite database connection
func (store *SQLiteStore) Open() error {
	dbPath := store.Settings.Database.SQLite.Path
	if dbPath == "" {
		return validationError("sqlite path is empty", "database.sqlite.path", dbPath)
	}

	if !strings.HasPrefix(dbPath, "file:") {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return errors.New(fmt.Errorf("failed to create database directory: %w", err)).
					Component("datastore").
					Category(errors.CategorySystem).
					Context("path", dir).
					Build()
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(sqliteDSN(dbPath)), newGormConfig(store.Settings))
	if err != nil {
		return dbError(err, "open", errors.PriorityCritical, "db_type", "sqlite", "path", dbPath)
	}

	// One writer at a time. Transactions must use their own tx handle or
	// they deadlock on the pool.
	sqlDB, err := db.DB()
	if err != nil {
		return dbError(err, "get_sql_db", errors.PriorityCritical)
	}
	sqlDB.SetMaxOpenConns(1)

	store.DB = db
	if err := performAutoMigration(db, "sqlite", dbPath); err != nil {
		_ = store.Close()
		return err
	}

	GetLogger().Info("SQLite database opened", logger.String("path", dbPath))
	return nil
}
