package datastore

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/radiotracker/internal/errors"
)

const tableStations = "stations"

// GetStation loads a station by primary key
func (ds *DataStore) GetStation(ctx context.Context, id uint) (*Station, error) {
	start := time.Now()
	var station Station
	err := ds.DB.WithContext(ctx).First(&station, id).Error
	ds.observe("get", tableStations, start, err)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError("station", id)
	}
	if err != nil {
		return nil, dbError(err, "get_station", errors.PriorityMedium, "station_id", id)
	}
	return &station, nil
}

// GetStationBySlug loads a station by its unique slug
func (ds *DataStore) GetStationBySlug(ctx context.Context, slug string) (*Station, error) {
	start := time.Now()
	var station Station
	err := ds.DB.WithContext(ctx).Where("slug = ?", slug).First(&station).Error
	ds.observe("get", tableStations, start, err)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError("station", slug)
	}
	if err != nil {
		return nil, dbError(err, "get_station_by_slug", errors.PriorityMedium, "slug", slug)
	}
	return &station, nil
}

// ListActiveStations returns the stations that should be polled, ordered by id
func (ds *DataStore) ListActiveStations(ctx context.Context) ([]Station, error) {
	start := time.Now()
	var stations []Station
	err := ds.DB.WithContext(ctx).Where("active = ?", true).Order("id").Find(&stations).Error
	ds.observe("list", tableStations, start, err)
	if err != nil {
		return nil, dbError(err, "list_active_stations", errors.PriorityHigh)
	}
	return stations, nil
}

// ListStations returns every station, ordered by slug
func (ds *DataStore) ListStations(ctx context.Context) ([]Station, error) {
	start := time.Now()
	var stations []Station
	err := ds.DB.WithContext(ctx).Order("slug").Find(&stations).Error
	ds.observe("list", tableStations, start, err)
	if err != nil {
		return nil, dbError(err, "list_stations", errors.PriorityMedium)
	}
	return stations, nil
}

// UpsertStation inserts a station or updates the catalogue fields of the
// existing row with the same slug. LastScrapedAt is never overwritten.
// On return station.ID holds the stored row's id.
func (ds *DataStore) UpsertStation(ctx context.Context, station *Station) error {
	if station.Slug == "" {
		return validationError("station slug is required", "slug", station.Slug)
	}
	if !station.MetadataType.Valid() {
		return validationError("unsupported metadata type", "metadata_type", station.MetadataType)
	}

	start := time.Now()
	db := ds.DB.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "stream_url", "metadata_type", "source_slug", "source_id",
			"poll_interval", "active", "timezone", "updated_at",
		}),
	}).Create(station).Error
	ds.observe("upsert", tableStations, start, err)
	if err != nil {
		return dbError(err, "upsert_station", errors.PriorityMedium, "slug", station.Slug)
	}

	// MySQL reports a bogus LastInsertId on the update path
	var stored Station
	if err := db.Select("id").Where("slug = ?", station.Slug).First(&stored).Error; err != nil {
		return dbError(err, "upsert_station_refetch", errors.PriorityMedium, "slug", station.Slug)
	}
	station.ID = stored.ID
	return nil
}

// TouchLastScraped sets a station's LastScrapedAt
func (ds *DataStore) TouchLastScraped(ctx context.Context, stationID uint, at time.Time) error {
	start := time.Now()
	err := ds.DB.WithContext(ctx).Model(&Station{}).
		Where("id = ?", stationID).
		Update("last_scraped_at", at.UTC()).Error
	ds.observe("update", tableStations, start, err)
	if err != nil {
		return dbError(err, "touch_last_scraped", errors.PriorityLow, "station_id", stationID)
	}
	return nil
}
