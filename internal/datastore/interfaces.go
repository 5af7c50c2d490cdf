// interfaces.go: persistence contract and shared gorm implementation
package datastore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/radiotracker/internal/conf"
	"github.com/tphakala/radiotracker/internal/errors"
	"github.com/tphakala/radiotracker/internal/logger"
	"github.com/tphakala/radiotracker/internal/observability/metrics"
)

// Interface is the persistence collaborator used by the poll pipeline,
// the HTTP surface and the station commands.
type Interface interface {
	Open() error
	Close() error

	GetStation(ctx context.Context, id uint) (*Station, error)
	GetStationBySlug(ctx context.Context, slug string) (*Station, error)
	ListActiveStations(ctx context.Context) ([]Station, error)
	ListStations(ctx context.Context) ([]Station, error)
	UpsertStation(ctx context.Context, station *Station) error
	TouchLastScraped(ctx context.Context, stationID uint, at time.Time) error

	FindSongByKey(ctx context.Context, normalizedTitle, normalizedArtist string) (*Song, error)
	CreateSongIfAbsent(ctx context.Context, song *Song) (*Song, bool, error)

	LatestPlay(ctx context.Context, stationID uint) (*Play, error)
	RecordPlayIfChanged(ctx context.Context, play *Play) (bool, *Play, error)
	CountPlaysInWindow(ctx context.Context, stationID, songID uint, from, to time.Time) (int64, error)
	ListPlaysInWindow(ctx context.Context, stationID, songID uint, from, to time.Time) ([]Play, error)
	RecentPlays(ctx context.Context, stationID uint, limit int) ([]Play, error)

	SetMetrics(m *metrics.DatastoreMetrics)
}

// DataStore implements Interface on top of a gorm connection. The SQLite and
// MySQL stores embed it and only differ in how they open the connection.
type DataStore struct {
	DB      *gorm.DB
	metrics *metrics.DatastoreMetrics

	// lockRows enables SELECT ... FOR UPDATE on the station row inside the
	// play transaction; SQLite serializes writers itself.
	lockRows bool
}

// New creates a new instance of DataStore based on the provided configuration.
// The returned store is not yet open.
func New(settings *conf.Settings) (Interface, error) {
	switch settings.Database.Type {
	case "", "sqlite":
		return &SQLiteStore{Settings: settings}, nil
	case "mysql":
		return &MySQLStore{Settings: settings}, nil
	default:
		return nil, validationError("unsupported database type", "database.type", settings.Database.Type)
	}
}

// Close closes the underlying connection pool
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError(err, "get_sql_db", errors.PriorityMedium)
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close", errors.PriorityMedium)
	}
	GetLogger().Info("Database connection closed")
	return nil
}

// SetMetrics attaches datastore metrics; nil disables recording
func (ds *DataStore) SetMetrics(m *metrics.DatastoreMetrics) {
	ds.metrics = m
}

// observe records an operation outcome and returns err unchanged
func (ds *DataStore) observe(operation, table string, start time.Time, err error) {
	status := metrics.StatusSuccess
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		status = metrics.StatusError
		ds.metrics.RecordDbOperationError(operation, table, classifyDBError(err))
	}
	ds.metrics.RecordDbOperation(operation, table, status, time.Since(start).Seconds())
}

// updatePoolMetrics samples the connection pool
func (ds *DataStore) updatePoolMetrics() {
	if ds.metrics == nil || ds.DB == nil {
		return
	}
	if sqlDB, err := ds.DB.DB(); err == nil {
		stats := sqlDB.Stats()
		ds.metrics.UpdateConnectionMetrics(stats.OpenConnections, stats.Idle)
	}
}

func classifyDBError(err error) string {
	switch {
	case IsUniqueViolation(err):
		return "unique_violation"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "other"
	}
}

// newGormConfig returns the gorm configuration shared by both drivers
func newGormConfig(settings *conf.Settings) *gorm.Config {
	gormLogger := logger.NewGormLoggerAdapter(GetLogger().Module("sql"), settings.Database.SlowQueryThreshold).
		WithDuplicateDetector(IsUniqueViolation)
	return &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
}

// performAutoMigration creates or updates the schema for all models
func performAutoMigration(db *gorm.DB, dbType, connInfo string) error {
	start := time.Now()
	if err := db.AutoMigrate(&Station{}, &Song{}, &Play{}); err != nil {
		return dbError(err, "auto_migrate", errors.PriorityCritical,
			"db_type", dbType,
			"connection", connInfo,
			"action", "create_or_update_schema")
	}
	GetLogger().Info("Database schema ready",
		logger.String("db_type", dbType),
		logger.Duration("duration", time.Since(start)))
	return nil
}

// connectionInfo renders a loggable description of the target database
func connectionInfo(settings *conf.Settings) string {
	if settings.Database.Type == "mysql" {
		return fmt.Sprintf("%s:%s/%s", settings.Database.MySQL.Host, settings.Database.MySQL.Port, settings.Database.MySQL.Database)
	}
	return settings.Database.SQLite.Path
}
