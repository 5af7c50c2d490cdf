// Package songs resolves observed (artist, title) pairs to stored songs,
// creating and classifying a song the first time it is seen.
package songs

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/tphakala/radiotracker/internal/classifier"
	"github.com/tphakala/radiotracker/internal/datastore"
	"github.com/tphakala/radiotracker/internal/errors"
	"github.com/tphakala/radiotracker/internal/logger"
	"github.com/tphakala/radiotracker/internal/observability/metrics"
	"github.com/tphakala/radiotracker/internal/songmeta"
)

// Hot cache lifetimes. Songs are immutable once created, so a stale entry
// is never wrong, only memory.
const (
	DefaultCacheTTL     = 30 * time.Minute
	defaultCacheCleanup = 2 * DefaultCacheTTL
)

// lookupTimeout bounds a shared find-or-create round trip
const lookupTimeout = 10 * time.Second

// Resolver maps observations to Song rows
type Resolver struct {
	store      datastore.Interface
	classifier *classifier.Classifier
	cache      *cache.Cache
	group      singleflight.Group
	metrics    *metrics.PipelineMetrics
}

type resolved struct {
	song    *datastore.Song
	created bool
}

// NewResolver creates a resolver. A nil classifier uses the built-in alias table.
func NewResolver(store datastore.Interface, c *classifier.Classifier, m *metrics.PipelineMetrics) *Resolver {
	if c == nil {
		c = classifier.New(nil)
	}
	return &Resolver{
		store:      store,
		classifier: c,
		cache:      cache.New(DefaultCacheTTL, defaultCacheCleanup),
		metrics:    m,
	}
}

// FindOrCreate returns the song for (artist, title), creating it on first
// sighting. Classification runs only at creation, against stationName, and
// is never revisited. created is true for callers whose lookup inserted the row.
func (r *Resolver) FindOrCreate(ctx context.Context, artist, title, stationName string) (*datastore.Song, bool, error) {
	nt, na := songmeta.Key(title, artist)
	if nt == "" {
		return nil, false, errors.Newf("title %q normalizes to an empty key", title).
			Component("songs").
			Category(errors.CategoryValidation).
			Context("artist", artist).
			Build()
	}
	key := datastore.SongKey{Title: nt, Artist: na}.String()

	if v, ok := r.cache.Get(key); ok {
		r.metrics.RecordSongCache(true)
		return copySong(v.(*datastore.Song)), false, nil
	}
	r.metrics.RecordSongCache(false)

	// Waiters from other stations share this lookup, so it must not end
	// when the caller that started it is cancelled.
	ch := r.group.DoChan(key, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		return r.lookupOrCreate(lookupCtx, artist, title, nt, na, stationName)
	})

	var out singleflight.Result
	select {
	case out = <-ch:
	case <-ctx.Done():
		return nil, false, errors.New(ctx.Err()).
			Component("songs").
			Category(errors.CategoryCancellation).
			Context("operation", "find_or_create").
			Build()
	}
	if out.Err != nil {
		return nil, false, out.Err
	}
	res := out.Val.(resolved)
	r.cache.Set(key, res.song, cache.DefaultExpiration)
	return copySong(res.song), res.created, nil
}

func (r *Resolver) lookupOrCreate(ctx context.Context, artist, title, nt, na, stationName string) (resolved, error) {
	song, err := r.store.FindSongByKey(ctx, nt, na)
	if err == nil {
		return resolved{song: song}, nil
	}
	if !errors.IsNotFound(err) {
		return resolved{}, err
	}

	verdict := r.classifier.Classify(artist, title, stationName)
	candidate := &datastore.Song{
		Title:            title,
		Artist:           artist,
		NormalizedTitle:  nt,
		NormalizedArtist: na,
	}
	if verdict.IsShow {
		candidate.IsNonSong = true
		candidate.NonSongType = datastore.NonSongShow
	}

	song, created, err := r.store.CreateSongIfAbsent(ctx, candidate)
	if err != nil {
		return resolved{}, err
	}
	if created {
		r.metrics.RecordSongCreated(song.IsNonSong)
		GetLogger().Info("new song",
			logger.Uint64("song_id", uint64(song.ID)),
			logger.String("artist", song.Artist),
			logger.String("title", song.Title),
			logger.Bool("non_song", song.IsNonSong),
			logger.String("classification_reason", verdict.Reason))
	}
	return resolved{song: song, created: created}, nil
}

func copySong(s *datastore.Song) *datastore.Song {
	c := *s
	return &c
}
