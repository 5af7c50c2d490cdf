package datastore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/radiotracker/internal/conf"
	"github.com/tphakala/radiotracker/internal/errors"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	settings := &conf.Settings{}
	settings.Database.Type = "sqlite"
	settings.Database.SQLite.Path = filepath.Join(t.TempDir(), "radiotracker.db")

	store := &SQLiteStore{Settings: settings}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedStation(t *testing.T, ds Interface, slug string) *Station {
	t.Helper()
	st := &Station{
		Slug:         slug,
		Name:         "Station " + slug,
		StreamURL:    "http://stream.example.com/" + slug,
		MetadataType: MetadataTypeICY,
		Active:       true,
	}
	require.NoError(t, ds.UpsertStation(context.Background(), st))
	require.NotZero(t, st.ID)
	return st
}

func seedSong(t *testing.T, ds Interface, title, artist string) *Song {
	t.Helper()
	song, _, err := ds.CreateSongIfAbsent(context.Background(), &Song{
		Title: title, Artist: artist,
		NormalizedTitle: title, NormalizedArtist: artist,
	})
	require.NoError(t, err)
	return song
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		dbType  string
		want    any
		wantErr bool
	}{
		{"default is sqlite", "", &SQLiteStore{}, false},
		{"sqlite", "sqlite", &SQLiteStore{}, false},
		{"mysql", "mysql", &MySQLStore{}, false},
		{"unknown", "postgres", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			settings := &conf.Settings{}
			settings.Database.Type = tt.dbType
			ds, err := New(settings)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, ds)
		})
	}
}

func TestUpsertStation(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)
	ctx := context.Background()

	st := seedStation(t, ds, "rock-fm")
	scraped := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, ds.TouchLastScraped(ctx, st.ID, scraped))

	updated := &Station{
		Slug:         "rock-fm",
		Name:         "Rock FM",
		MetadataType: MetadataTypeJSONAPI,
		SourceID:     42,
		Active:       false,
	}
	require.NoError(t, ds.UpsertStation(ctx, updated))
	assert.Equal(t, st.ID, updated.ID)

	got, err := ds.GetStationBySlug(ctx, "rock-fm")
	require.NoError(t, err)
	assert.Equal(t, "Rock FM", got.Name)
	assert.Equal(t, MetadataTypeJSONAPI, got.MetadataType)
	assert.Equal(t, int64(42), got.SourceID)
	assert.False(t, got.Active)
	require.NotNil(t, got.LastScrapedAt)
	assert.True(t, scraped.Equal(*got.LastScrapedAt))

	active, err := ds.ListActiveStations(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := ds.ListStations(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpsertStationValidation(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)

	err := ds.UpsertStation(context.Background(), &Station{Slug: "x", MetadataType: "rss"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestGetStationNotFound(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)

	_, err := ds.GetStation(context.Background(), 999)
	assert.True(t, errors.IsNotFound(err))
	_, err = ds.GetStationBySlug(context.Background(), "missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestCreateSongIfAbsent(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)
	ctx := context.Background()

	first, created, err := ds.CreateSongIfAbsent(ctx, &Song{
		Title: "Yesterday", Artist: "The Beatles",
		NormalizedTitle: "yesterday", NormalizedArtist: "beatles",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, first.ID)

	second, created, err := ds.CreateSongIfAbsent(ctx, &Song{
		Title: "YESTERDAY", Artist: "Beatles",
		NormalizedTitle: "yesterday", NormalizedArtist: "beatles",
		IsNonSong: true, NonSongType: NonSongShow,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Yesterday", second.Title, "existing row is returned unchanged")
	assert.False(t, second.IsNonSong)

	found, err := ds.FindSongByKey(ctx, "yesterday", "beatles")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	_, err = ds.FindSongByKey(ctx, "yesterday", "wings")
	assert.True(t, errors.IsNotFound(err))
}

func TestCreateSongIfAbsentConcurrent(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)
	ctx := context.Background()

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[uint]int{}
		creates int
	)
	for range workers {
		wg.Go(func() {
			song, created, err := ds.CreateSongIfAbsent(ctx, &Song{
				Title: "Hey Jude", Artist: "The Beatles",
				NormalizedTitle: "hey jude", NormalizedArtist: "beatles",
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[song.ID]++
			if created {
				creates++
			}
		})
	}
	wg.Wait()

	assert.Len(t, ids, 1, "all callers see the same row")
	assert.Equal(t, 1, creates)

	var count int64
	require.NoError(t, ds.DB.Model(&Song{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecordPlayIfChanged(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)
	ctx := context.Background()

	st := seedStation(t, ds, "pop-fm")
	songA := seedSong(t, ds, "a", "x")
	songB := seedSong(t, ds, "b", "x")
	t0 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	created, prev, err := ds.RecordPlayIfChanged(ctx, &Play{StationID: st.ID, SongID: songA.ID, PlayedAt: t0, Confidence: 1})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Nil(t, prev)

	created, prev, err = ds.RecordPlayIfChanged(ctx, &Play{StationID: st.ID, SongID: songA.ID, PlayedAt: t0.Add(time.Minute)})
	require.NoError(t, err)
	assert.False(t, created, "same song is a continuation")
	require.NotNil(t, prev)
	assert.Equal(t, songA.ID, prev.SongID)

	created, _, err = ds.RecordPlayIfChanged(ctx, &Play{StationID: st.ID, SongID: songB.ID, PlayedAt: t0.Add(4 * time.Minute)})
	require.NoError(t, err)
	assert.True(t, created)

	latest, err := ds.LatestPlay(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, songB.ID, latest.SongID)
	require.NotNil(t, latest.Song)
	assert.Equal(t, "b", latest.Song.Title)
	assert.Equal(t, PlaySourceLive, latest.Source)

	got, err := ds.GetStation(ctx, st.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastScrapedAt)
	assert.True(t, t0.Add(4*time.Minute).Equal(*got.LastScrapedAt))
}

func TestRecordPlayIfChangedConcurrent(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)
	ctx := context.Background()

	st := seedStation(t, ds, "busy-fm")
	song := seedSong(t, ds, "same", "artist")
	now := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Go(func() {
			_, _, err := ds.RecordPlayIfChanged(ctx, &Play{
				StationID: st.ID, SongID: song.ID,
				PlayedAt: now.Add(time.Duration(i) * time.Second),
			})
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	plays, err := ds.RecentPlays(ctx, st.ID, 0)
	require.NoError(t, err)
	assert.Len(t, plays, 1, "overlapping polls of the same song record one play")
}

func TestLatestPlayTieBreaksOnID(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)
	ctx := context.Background()

	st := seedStation(t, ds, "tie-fm")
	songA := seedSong(t, ds, "a", "x")
	songB := seedSong(t, ds, "b", "x")
	at := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	_, _, err := ds.RecordPlayIfChanged(ctx, &Play{StationID: st.ID, SongID: songA.ID, PlayedAt: at})
	require.NoError(t, err)
	_, _, err = ds.RecordPlayIfChanged(ctx, &Play{StationID: st.ID, SongID: songB.ID, PlayedAt: at})
	require.NoError(t, err)

	latest, err := ds.LatestPlay(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, songB.ID, latest.SongID)
}

func TestLatestPlayNotFound(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)

	_, err := ds.LatestPlay(context.Background(), 1)
	assert.True(t, errors.IsNotFound(err))
}

func TestPlaysInWindow(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)
	ctx := context.Background()

	st := seedStation(t, ds, "window-fm")
	hit := seedSong(t, ds, "hit", "x")
	filler := seedSong(t, ds, "filler", "x")
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	// hit at 09:00, 11:00, 17:00; filler in between
	for i, at := range []time.Time{base, base.Add(2 * time.Hour), base.Add(8 * time.Hour)} {
		_, _, err := ds.RecordPlayIfChanged(ctx, &Play{StationID: st.ID, SongID: hit.ID, PlayedAt: at})
		require.NoError(t, err, "hit %d", i)
		_, _, err = ds.RecordPlayIfChanged(ctx, &Play{StationID: st.ID, SongID: filler.ID, PlayedAt: at.Add(time.Minute)})
		require.NoError(t, err, "filler %d", i)
	}

	// Querying with a non-UTC zone must match the UTC-stored rows
	zone := time.FixedZone("UTC+2", 2*60*60)
	from := base.In(zone)
	to := base.Add(8 * time.Hour).In(zone)

	count, err := ds.CountPlaysInWindow(ctx, st.ID, hit.ID, from, to)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count, "end of window is exclusive")

	plays, err := ds.ListPlaysInWindow(ctx, st.ID, hit.ID, from, to)
	require.NoError(t, err)
	require.Len(t, plays, 2)
	assert.True(t, plays[0].PlayedAt.Before(plays[1].PlayedAt))

	recent, err := ds.RecentPlays(ctx, st.ID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, filler.ID, recent[0].SongID)
	assert.Equal(t, hit.ID, recent[1].SongID)
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)

	song := &Song{Title: "t", Artist: "a", NormalizedTitle: "t", NormalizedArtist: "a"}
	require.NoError(t, ds.DB.Create(song).Error)
	err := ds.DB.Create(&Song{Title: "t", Artist: "a", NormalizedTitle: "t", NormalizedArtist: "a"}).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(fmt.Errorf("boom")))
}
