package datastore

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/radiotracker/internal/errors"
	"github.com/tphakala/radiotracker/internal/observability/metrics"
)

const (
	tablePlays = "plays"

	// MaxRecentPlays caps RecentPlays
	MaxRecentPlays = 500
)

// latestPlayQuery orders by time, then id so plays sharing a timestamp
// still have a single latest row.
func latestPlayQuery(db *gorm.DB, stationID uint) *gorm.DB {
	return db.Where("station_id = ?", stationID).
		Order("played_at DESC").
		Order("id DESC").
		Limit(1)
}

// LatestPlay returns the most recent play of a station with its song
func (ds *DataStore) LatestPlay(ctx context.Context, stationID uint) (*Play, error) {
	start := time.Now()
	var play Play
	err := latestPlayQuery(ds.DB.WithContext(ctx), stationID).Preload("Song").Take(&play).Error
	ds.observe("get", tablePlays, start, err)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError("play", stationID)
	}
	if err != nil {
		return nil, dbError(err, "latest_play", errors.PriorityMedium, "station_id", stationID)
	}
	return &play, nil
}

// RecordPlayIfChanged inserts play unless the station's latest play is the
// same song. The check and insert run in one transaction, and a new play also
// stamps the station's LastScrapedAt with play.PlayedAt. It returns whether a
// row was written and the play that was latest before this call, if any.
func (ds *DataStore) RecordPlayIfChanged(ctx context.Context, play *Play) (bool, *Play, error) {
	if play.StationID == 0 || play.SongID == 0 {
		return false, nil, validationError("play requires station and song", "station_id", play.StationID)
	}
	play.PlayedAt = play.PlayedAt.UTC()
	if play.Source == "" {
		play.Source = PlaySourceLive
	}

	var (
		created  bool
		previous *Play
	)
	start := time.Now()
	err := ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if ds.lockRows {
			// Serializes recorders in other processes on the station row
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Select("id").First(&Station{}, play.StationID).Error; err != nil {
				return err
			}
		}

		var last Play
		err := latestPlayQuery(tx, play.StationID).Take(&last).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return err
		default:
			previous = &last
			if last.SongID == play.SongID {
				return nil
			}
		}

		if err := tx.Omit(clause.Associations).Create(play).Error; err != nil {
			return err
		}
		created = true
		return tx.Model(&Station{}).
			Where("id = ?", play.StationID).
			Update("last_scraped_at", play.PlayedAt).Error
	})

	status := "committed"
	if err != nil {
		status = "rollback"
	}
	ds.metrics.RecordTransaction("record_play", status, time.Since(start).Seconds())
	ds.observe(metrics.OpTransaction, tablePlays, start, err)
	ds.updatePoolMetrics()

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil, notFoundError("station", play.StationID)
		}
		return false, nil, dbError(err, "record_play", errors.PriorityHigh,
			"station_id", play.StationID,
			"song_id", play.SongID)
	}
	return created, previous, nil
}

// windowQuery selects a station's plays of one song in [from, to)
func windowQuery(db *gorm.DB, stationID, songID uint, from, to time.Time) *gorm.DB {
	return db.Model(&Play{}).
		Where("station_id = ? AND song_id = ? AND played_at >= ? AND played_at < ?",
			stationID, songID, from.UTC(), to.UTC())
}

// CountPlaysInWindow counts a station's plays of one song in [from, to)
func (ds *DataStore) CountPlaysInWindow(ctx context.Context, stationID, songID uint, from, to time.Time) (int64, error) {
	start := time.Now()
	var count int64
	err := windowQuery(ds.DB.WithContext(ctx), stationID, songID, from, to).Count(&count).Error
	ds.observe("count", tablePlays, start, err)
	if err != nil {
		return 0, dbError(err, "count_plays_in_window", errors.PriorityLow,
			"station_id", stationID, "song_id", songID)
	}
	return count, nil
}

// ListPlaysInWindow lists a station's plays of one song in [from, to), oldest first
func (ds *DataStore) ListPlaysInWindow(ctx context.Context, stationID, songID uint, from, to time.Time) ([]Play, error) {
	start := time.Now()
	var plays []Play
	err := windowQuery(ds.DB.WithContext(ctx), stationID, songID, from, to).
		Order("played_at ASC").Order("id ASC").
		Find(&plays).Error
	ds.observe("list", tablePlays, start, err)
	if err != nil {
		return nil, dbError(err, "list_plays_in_window", errors.PriorityLow,
			"station_id", stationID, "song_id", songID)
	}
	return plays, nil
}

// RecentPlays returns a station's latest plays with their songs, newest first
func (ds *DataStore) RecentPlays(ctx context.Context, stationID uint, limit int) ([]Play, error) {
	if limit <= 0 || limit > MaxRecentPlays {
		limit = MaxRecentPlays
	}
	start := time.Now()
	var plays []Play
	err := ds.DB.WithContext(ctx).
		Where("station_id = ?", stationID).
		Order("played_at DESC").Order("id DESC").
		Limit(limit).
		Preload("Song").
		Find(&plays).Error
	ds.observe("list", tablePlays, start, err)
	if err != nil {
		return nil, dbError(err, "recent_plays", errors.PriorityMedium, "station_id", stationID)
	}
	return plays, nil
}
