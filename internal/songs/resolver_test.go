package songs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/radiotracker/internal/datastore"
	"github.com/tphakala/radiotracker/internal/errors"
	"github.com/tphakala/radiotracker/internal/testutil"
)

func countSongs(t *testing.T, store *datastore.SQLiteStore) int64 {
	t.Helper()
	var n int64
	require.NoError(t, store.DB.Model(&datastore.Song{}).Count(&n).Error)
	return n
}

func TestFindOrCreate(t *testing.T) {
	t.Parallel()

	store := testutil.NewSQLiteStore(t)
	r := NewResolver(store, nil, nil)

	first, created, err := r.FindOrCreate(t.Context(), "The Beatles", "Let It Be", "Rock FM")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, first.ID)
	assert.Equal(t, "let it be", first.NormalizedTitle)
	assert.Equal(t, "beatles", first.NormalizedArtist)
	assert.False(t, first.IsNonSong)

	// case, punctuation and the leading article collapse to the same key
	again, created, err := r.FindOrCreate(t.Context(), "beatles", "LET IT BE!", "Rock FM")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Let It Be", again.Title, "stored display text is the first sighting's")

	// a fresh resolver misses the cache but finds the row
	fresh := NewResolver(store, nil, nil)
	viaStore, created, err := fresh.FindOrCreate(t.Context(), "The Beatles", "Let It Be", "Other")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, viaStore.ID)

	assert.Equal(t, int64(1), countSongs(t, store))
}

func TestFindOrCreate_ReturnsCopies(t *testing.T) {
	t.Parallel()

	r := NewResolver(testutil.NewSQLiteStore(t), nil, nil)
	a, _, err := r.FindOrCreate(t.Context(), "Lorde", "Royals", "George FM")
	require.NoError(t, err)
	a.Title = "mutated"

	b, _, err := r.FindOrCreate(t.Context(), "Lorde", "Royals", "George FM")
	require.NoError(t, err)
	assert.Equal(t, "Royals", b.Title)
}

func TestFindOrCreate_EmptyKey(t *testing.T) {
	t.Parallel()

	r := NewResolver(testutil.NewSQLiteStore(t), nil, nil)
	_, _, err := r.FindOrCreate(t.Context(), "Someone", "!!!", "George FM")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestFindOrCreate_ConcurrentFirstSighting(t *testing.T) {
	t.Parallel()

	store := testutil.NewSQLiteStore(t)
	// two resolvers model two worker processes sharing one database
	resolvers := []*Resolver{NewResolver(store, nil, nil), NewResolver(store, nil, nil)}

	const workers = 24
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[uint]int)
	)
	for i := range workers {
		wg.Go(func() {
			r := resolvers[i%len(resolvers)]
			song, _, err := r.FindOrCreate(t.Context(), "Six60", "Only To Be", "The Edge")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			ids[song.ID]++
			mu.Unlock()
		})
	}
	wg.Wait()

	assert.Len(t, ids, 1, "every caller must see the same row")
	assert.Equal(t, int64(1), countSongs(t, store))
}

func TestFindOrCreate_ClassificationIsSticky(t *testing.T) {
	t.Parallel()

	t.Run("show stays a show", func(t *testing.T) {
		t.Parallel()
		r := NewResolver(testutil.NewSQLiteStore(t), nil, nil)

		show, created, err := r.FindOrCreate(t.Context(), "The Rock", "The Rock Breakfast", "The Rock")
		require.NoError(t, err)
		require.True(t, created)
		assert.True(t, show.IsNonSong)
		assert.Equal(t, datastore.NonSongShow, show.NonSongType)

		elsewhere, _, err := r.FindOrCreate(t.Context(), "The Rock", "The Rock Breakfast", "George FM")
		require.NoError(t, err)
		assert.Equal(t, show.ID, elsewhere.ID)
		assert.True(t, elsewhere.IsNonSong)
	})

	t.Run("song stays a song", func(t *testing.T) {
		t.Parallel()
		r := NewResolver(testutil.NewSQLiteStore(t), nil, nil)

		song, _, err := r.FindOrCreate(t.Context(), "The Rock", "Morning Show", "George FM")
		require.NoError(t, err)
		assert.False(t, song.IsNonSong)

		later, _, err := r.FindOrCreate(t.Context(), "The Rock", "Morning Show", "The Rock")
		require.NoError(t, err)
		assert.Equal(t, song.ID, later.ID)
		assert.False(t, later.IsNonSong)
	})
}

// gatedStore holds FindSongByKey until released
type gatedStore struct {
	datastore.Interface
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
	ctxErr  atomic.Value
}

func (g *gatedStore) FindSongByKey(ctx context.Context, nt, na string) (*datastore.Song, error) {
	if g.calls.Add(1) == 1 {
		close(g.entered)
	}
	<-g.release
	g.ctxErr.Store(fmt.Sprint(ctx.Err()))
	return g.Interface.FindSongByKey(ctx, nt, na)
}

func TestFindOrCreate_CancelledCallerDoesNotFailWaiters(t *testing.T) {
	t.Parallel()

	store := &gatedStore{
		Interface: testutil.NewSQLiteStore(t),
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	r := NewResolver(store, nil, nil)

	firstCtx, cancelFirst := context.WithCancel(t.Context())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := r.FindOrCreate(firstCtx, "Benee", "Supalonely", "ZM")
		firstErr <- err
	}()
	testutil.Receive(t, store.entered, testutil.ShortTestTimeout, "lookup did not start")

	type outcome struct {
		song *datastore.Song
		err  error
	}
	second := make(chan outcome, 1)
	go func() {
		song, _, err := r.FindOrCreate(t.Context(), "Benee", "Supalonely", "The Edge")
		second <- outcome{song, err}
	}()
	// let the second caller join the lookup in flight
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	err := testutil.Receive(t, firstErr, testutil.ShortTestTimeout, "cancelled caller did not return")
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))

	close(store.release)
	got := testutil.Receive(t, second, testutil.DefaultTestTimeout, "waiting caller did not return")
	require.NoError(t, got.err)
	assert.Equal(t, "Supalonely", got.song.Title)
	assert.Equal(t, int32(1), store.calls.Load(), "both callers share one lookup")
	assert.Equal(t, "<nil>", store.ctxErr.Load(), "shared lookup outlives the cancelled caller")
}
