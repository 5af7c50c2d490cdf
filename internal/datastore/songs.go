package datastore

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/radiotracker/internal/errors"
	"github.com/tphakala/radiotracker/internal/logger"
)

const tableSongs = "songs"

// FindSongByKey looks a song up by its normalized title and artist
func (ds *DataStore) FindSongByKey(ctx context.Context, normalizedTitle, normalizedArtist string) (*Song, error) {
	start := time.Now()
	var song Song
	err := ds.DB.WithContext(ctx).
		Where("normalized_title = ? AND normalized_artist = ?", normalizedTitle, normalizedArtist).
		First(&song).Error
	ds.observe("get", tableSongs, start, err)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError("song", SongKey{Title: normalizedTitle, Artist: normalizedArtist}.String())
	}
	if err != nil {
		return nil, dbError(err, "find_song_by_key", errors.PriorityMedium,
			"normalized_title", normalizedTitle,
			"normalized_artist", normalizedArtist)
	}
	return &song, nil
}

// CreateSongIfAbsent inserts song unless a row with the same normalized key
// exists. It returns the stored row and whether this call created it. A lost
// race against a concurrent insert is not an error.
func (ds *DataStore) CreateSongIfAbsent(ctx context.Context, song *Song) (*Song, bool, error) {
	if song.NormalizedTitle == "" && song.NormalizedArtist == "" {
		return nil, false, validationError("song key is empty", "normalized_title", song.Title)
	}

	start := time.Now()
	res := ds.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "normalized_title"}, {Name: "normalized_artist"}},
		DoNothing: true,
	}).Create(song)
	ds.observe("insert", tableSongs, start, res.Error)

	switch {
	case res.Error == nil && res.RowsAffected == 1:
		return song, true, nil
	case res.Error != nil && !IsUniqueViolation(res.Error):
		return nil, false, dbError(res.Error, "create_song", errors.PriorityHigh,
			"normalized_title", song.NormalizedTitle,
			"normalized_artist", song.NormalizedArtist)
	}

	ds.metrics.RecordUniqueConflict(tableSongs)
	GetLogger().Debug("song already exists, re-fetching",
		logger.String("normalized_title", song.NormalizedTitle),
		logger.String("normalized_artist", song.NormalizedArtist))

	existing, err := ds.FindSongByKey(ctx, song.NormalizedTitle, song.NormalizedArtist)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}
