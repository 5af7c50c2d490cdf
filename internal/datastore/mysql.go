package datastore

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tphakala/radiotracker/internal/conf"
	"github.com/tphakala/radiotracker/internal/errors"
	"github.com/tphakala/radiotracker/internal/logger"
)

// MySQLStore implements DataStore for MySQL
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

// mysqlDSN builds the connection string. Times are stored and read as UTC.
func mysqlDSN(s conf.MySQLSettings) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		s.Username, s.Password, s.Host, s.Port, s.Database)
}

// Open initializes the MySQL database connection
func (store *MySQLStore) Open() error {
	cfg := store.Settings.Database.MySQL
	info := connectionInfo(store.Settings)

	db, err := gorm.Open(mysql.Open(mysqlDSN(cfg)), newGormConfig(store.Settings))
	if err != nil {
		return dbError(err, "open", errors.PriorityCritical, "db_type", "mysql", "connection", info)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return dbError(err, "get_sql_db", errors.PriorityCritical)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	store.DB = db
	store.lockRows = true
	if err := performAutoMigration(db, "mysql", info); err != nil {
		_ = store.Close()
		return err
	}

	GetLogger().Info("MySQL database opened", logger.String("connection", info))
	return nil
}
