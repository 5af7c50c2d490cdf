package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/radiotracker/internal/datastore"
	"github.com/tphakala/radiotracker/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeStations struct {
	mu       sync.Mutex
	stations []datastore.Station
}

func (f *fakeStations) ListActiveStations(context.Context) ([]datastore.Station, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []datastore.Station
	for _, st := range f.stations {
		if st.Active {
			out = append(out, st)
		}
	}
	return out, nil
}

func (f *fakeStations) set(stations ...datastore.Station) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stations = stations
}

func station(id uint, slug string, active bool, pollSeconds int) datastore.Station {
	return datastore.Station{
		ID:           id,
		Slug:         slug,
		Name:         slug,
		MetadataType: datastore.MetadataTypeICY,
		Active:       active,
		PollInterval: pollSeconds,
	}
}

func newQueue(t *testing.T, cfg MemoryQueueConfig) *MemoryQueue {
	t.Helper()
	q := NewMemoryQueue(cfg, nil)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

// startProcessing runs q.Process in the background and stops it at cleanup
func startProcessing(t *testing.T, q *MemoryQueue, h Handler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Process(ctx, h) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
}

func TestResyncIsIdempotent(t *testing.T) {
	t.Parallel()

	stations := &fakeStations{}
	stations.set(
		station(1, "rock-fm", true, 0),
		station(2, "the-edge", true, 45),
		station(3, "retired", false, 0),
	)
	q := newQueue(t, MemoryQueueConfig{RunImmediately: false})
	s := New(stations, q, Config{DefaultInterval: time.Minute}, nil)

	for range 2 {
		n, err := s.Resync(t.Context())
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	}

	jobs, err := q.ListRecurring(t.Context())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, JobID(1), jobs[0].ID)
	assert.Equal(t, time.Minute, jobs[0].Interval)
	assert.Equal(t, "rock-fm", jobs[0].Payload.Slug)
	assert.Equal(t, JobID(2), jobs[1].ID)
	assert.Equal(t, 45*time.Second, jobs[1].Interval)

	// deactivating a station drops its job on the next resync
	stations.set(station(1, "rock-fm", true, 0), station(2, "the-edge", false, 45))
	_, err = s.Resync(t.Context())
	require.NoError(t, err)
	jobs, err = q.ListRecurring(t.Context())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "station:1", jobs[0].ID)
}

func TestProcessRunsImmediatelyAndRepeats(t *testing.T) {
	t.Parallel()

	q := newQueue(t, MemoryQueueConfig{Workers: 2, RunImmediately: true})
	var runs atomic.Int32
	startProcessing(t, q, HandlerFunc(func(_ context.Context, p Payload) error {
		assert.Equal(t, "rock-fm", p.Slug)
		runs.Add(1)
		return nil
	}))

	require.NoError(t, q.AddRecurring(t.Context(), JobID(1), Payload{StationID: 1, Slug: "rock-fm"}, 20*time.Millisecond))
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestPanickingHandlerDoesNotStopQueue(t *testing.T) {
	t.Parallel()

	q := newQueue(t, MemoryQueueConfig{Workers: 1, RunImmediately: true})
	var calls atomic.Int32
	startProcessing(t, q, HandlerFunc(func(context.Context, Payload) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return assert.AnError
	}))

	require.NoError(t, q.AddRecurring(t.Context(), "station:9", Payload{StationID: 9}, 10*time.Millisecond))
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	stats := q.Stats()
	assert.Equal(t, uint64(1), stats.Panics)
	assert.GreaterOrEqual(t, stats.Failures, uint64(1))
}

func TestInFlightTicksAreSkipped(t *testing.T) {
	t.Parallel()

	q := newQueue(t, MemoryQueueConfig{Workers: 4, RunImmediately: true})
	release := make(chan struct{})
	var (
		running atomic.Int32
		maxSeen atomic.Int32
	)
	startProcessing(t, q, HandlerFunc(func(ctx context.Context, _ Payload) error {
		n := running.Add(1)
		defer running.Add(-1)
		if n > maxSeen.Load() {
			maxSeen.Store(n)
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}))

	require.NoError(t, q.AddRecurring(t.Context(), "station:1", Payload{StationID: 1}, 5*time.Millisecond))
	require.Eventually(t, func() bool { return q.Stats().SkippedTicks >= 3 }, 2*time.Second, 5*time.Millisecond)
	close(release)

	assert.Equal(t, int32(1), maxSeen.Load(), "a job must never overlap itself")
}

func TestResyncDoesNotOverlapRunningJob(t *testing.T) {
	t.Parallel()

	stations := &fakeStations{}
	stations.set(station(1, "rock-fm", true, 0))
	q := newQueue(t, MemoryQueueConfig{Workers: 4, RunImmediately: true})
	s := New(stations, q, Config{DefaultInterval: time.Hour}, nil)

	started := make(chan struct{}, 4)
	release := make(chan struct{})
	var (
		running atomic.Int32
		maxSeen atomic.Int32
	)
	startProcessing(t, q, HandlerFunc(func(ctx context.Context, _ Payload) error {
		n := running.Add(1)
		defer running.Add(-1)
		if n > maxSeen.Load() {
			maxSeen.Store(n)
		}
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}))

	_, err := s.Resync(t.Context())
	require.NoError(t, err)
	testutil.Receive(t, started, testutil.ShortTestTimeout, "first run did not start")

	// the re-added job dispatches at once and must find the old run still active
	_, err = s.Resync(t.Context())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return q.Stats().SkippedTicks >= 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Equal(t, 1, q.Stats().Jobs)

	close(release)
	require.Eventually(t, func() bool { return running.Load() == 0 }, time.Second, 5*time.Millisecond)

	// once idle, a resync runs the job again
	_, err = s.Resync(t.Context())
	require.NoError(t, err)
	testutil.Receive(t, started, testutil.ShortTestTimeout, "job did not run after resync")
}

func TestRemovedJobForgetsIdleFlag(t *testing.T) {
	t.Parallel()

	q := newQueue(t, MemoryQueueConfig{RunImmediately: false})
	require.NoError(t, q.AddRecurring(t.Context(), "station:1", Payload{}, time.Minute))
	require.NoError(t, q.RemoveRecurring(t.Context(), "station:1"))

	q.mu.Lock()
	defer q.mu.Unlock()
	assert.Empty(t, q.inFlight)
}

func TestReplaceKeepsSingleJob(t *testing.T) {
	t.Parallel()

	q := newQueue(t, MemoryQueueConfig{})
	require.NoError(t, q.AddRecurring(t.Context(), "station:1", Payload{Slug: "old"}, time.Minute))
	require.NoError(t, q.AddRecurring(t.Context(), "station:1", Payload{Slug: "new"}, 2*time.Minute))

	jobs, err := q.ListRecurring(t.Context())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "new", jobs[0].Payload.Slug)
	assert.Equal(t, 2*time.Minute, jobs[0].Interval)
}

func TestQueueErrors(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue(MemoryQueueConfig{}, nil)

	require.ErrorIs(t, q.AddRecurring(t.Context(), "", Payload{}, time.Second), ErrInvalidJob)
	require.ErrorIs(t, q.AddRecurring(t.Context(), "station:1", Payload{}, 0), ErrInvalidJob)
	require.ErrorIs(t, q.RemoveRecurring(t.Context(), "station:404"), ErrJobNotFound)

	require.NoError(t, q.AddRecurring(t.Context(), "station:1", Payload{}, time.Second))
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	require.ErrorIs(t, q.AddRecurring(t.Context(), "station:1", Payload{}, time.Second), ErrQueueClosed)
	_, err := q.ListRecurring(t.Context())
	require.ErrorIs(t, err, ErrQueueClosed)
	require.ErrorIs(t, q.Process(t.Context(), HandlerFunc(func(context.Context, Payload) error { return nil })), ErrQueueClosed)
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	stations := &fakeStations{}
	stations.set(station(1, "rock-fm", true, 0))
	q := newQueue(t, MemoryQueueConfig{})
	s := New(stations, q, Config{ResyncInterval: 10 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return q.Stats().Jobs == 1 }, time.Second, 5*time.Millisecond)
	stations.set(station(1, "rock-fm", true, 0), station(2, "george", true, 0))
	require.Eventually(t, func() bool { return q.Stats().Jobs == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	t.Parallel()

	st := datastore.Station{
		ID: 7, Slug: "george", Name: "George FM", StreamURL: "http://x",
		MetadataType: datastore.MetadataTypePageScrape, SourceSlug: "george-fm", Timezone: "Pacific/Auckland",
	}
	got := PayloadFromStation(&st).Station()
	assert.Equal(t, st.ID, got.ID)
	assert.Equal(t, st.SourceSlug, got.SourceSlug)
	assert.Equal(t, st.Timezone, got.Timezone)
	assert.Equal(t, "station:7", JobID(st.ID))
}
