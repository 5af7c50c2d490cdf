package events

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/radiotracker/internal/datastore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockConsumer implements EventConsumer for testing
type mockConsumer struct {
	name           string
	processedCount atomic.Int32
	errorOnProcess bool
	panicOnProcess bool
	processDelay   time.Duration
	mu             sync.Mutex
	events         []Event
}

func (m *mockConsumer) Name() string { return m.name }

func (m *mockConsumer) ProcessEvent(event Event) error {
	if m.processDelay > 0 {
		time.Sleep(m.processDelay)
	}

	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	m.processedCount.Add(1)

	if m.panicOnProcess {
		panic("consumer exploded")
	}
	if m.errorOnProcess {
		return fmt.Errorf("mock error")
	}
	return nil
}

func (m *mockConsumer) GetEvents() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func nowPlaying(slug string, songID uint) *NowPlayingEvent {
	return &NowPlayingEvent{
		Station:  datastore.Station{Slug: slug},
		Song:     datastore.Song{ID: songID},
		PlayedAt: time.Now(),
	}
}

func TestTryPublishWithoutConsumers(t *testing.T) {
	eb := New(nil)
	defer func() { require.NoError(t, eb.Shutdown(time.Second)) }()

	assert.False(t, eb.TryPublish(nowPlaying("a", 1)), "nothing to deliver to")
	assert.False(t, eb.TryPublish(nil))
}

func TestDeliveryInOrder(t *testing.T) {
	eb := New(&Config{BufferSize: 100, Workers: 1})
	consumer := &mockConsumer{name: "recorder"}
	require.NoError(t, eb.RegisterConsumer(consumer))

	for i := 1; i <= 20; i++ {
		require.True(t, eb.TryPublish(nowPlaying("a", uint(i))))
	}
	require.NoError(t, eb.Shutdown(time.Second))

	got := consumer.GetEvents()
	require.Len(t, got, 20, "shutdown drains buffered events")
	for i, ev := range got {
		assert.Equal(t, uint(i+1), ev.(*NowPlayingEvent).Song.ID)
	}
	stats := eb.GetStats()
	assert.Equal(t, uint64(20), stats.EventsReceived)
	assert.Equal(t, uint64(20), stats.EventsProcessed)
}

func TestDuplicateConsumerRejected(t *testing.T) {
	eb := New(nil)
	defer func() { require.NoError(t, eb.Shutdown(time.Second)) }()

	require.NoError(t, eb.RegisterConsumer(&mockConsumer{name: "x"}))
	assert.Error(t, eb.RegisterConsumer(&mockConsumer{name: "x"}))
}

func TestFailingConsumerDoesNotBlockOthers(t *testing.T) {
	eb := New(&Config{BufferSize: 10, Workers: 2})
	bad := &mockConsumer{name: "bad", panicOnProcess: true}
	erring := &mockConsumer{name: "erring", errorOnProcess: true}
	good := &mockConsumer{name: "good"}
	require.NoError(t, eb.RegisterConsumer(bad))
	require.NoError(t, eb.RegisterConsumer(erring))
	require.NoError(t, eb.RegisterConsumer(good))

	require.True(t, eb.TryPublish(nowPlaying("a", 1)))
	require.True(t, eb.TryPublish(&DuplicateAlertEvent{Station: datastore.Station{Slug: "a"}, Count: 2}))
	require.NoError(t, eb.Shutdown(time.Second))

	assert.Len(t, good.GetEvents(), 2)
	assert.Equal(t, uint64(4), eb.GetStats().ConsumerErrors)
}

func TestDropWhenBufferFull(t *testing.T) {
	eb := New(&Config{BufferSize: 1, Workers: 1})
	slow := &mockConsumer{name: "slow", processDelay: 50 * time.Millisecond}
	require.NoError(t, eb.RegisterConsumer(slow))

	accepted := 0
	for i := range 10 {
		if eb.TryPublish(nowPlaying("a", uint(i))) {
			accepted++
		}
	}
	require.NoError(t, eb.Shutdown(2*time.Second))

	assert.Less(t, accepted, 10)
	assert.Positive(t, eb.GetStats().EventsDropped)
}

func TestPublishAfterShutdown(t *testing.T) {
	eb := New(nil)
	require.NoError(t, eb.RegisterConsumer(&mockConsumer{name: "c"}))
	require.NoError(t, eb.Shutdown(time.Second))

	assert.False(t, eb.TryPublish(nowPlaying("a", 1)))
	assert.Error(t, eb.RegisterConsumer(&mockConsumer{name: "late"}))
}

func TestEventChannels(t *testing.T) {
	np := nowPlaying("rock-fm", 1)
	assert.Equal(t, []string{"station:rock-fm", ChannelPlays}, np.Channels())
	assert.Equal(t, EventTypeNowPlaying, np.EventType())

	alert := &DuplicateAlertEvent{Station: datastore.Station{Slug: "rock-fm"}}
	assert.Equal(t, []string{"station:rock-fm", ChannelAlerts}, alert.Channels())

	slug, ok := ParseStationChannel(np.Channels()[0])
	assert.True(t, ok)
	assert.Equal(t, "rock-fm", slug)
	_, ok = ParseStationChannel(ChannelPlays)
	assert.False(t, ok)
	assert.Equal(t, "rock-fm", alert.StationSlug())
}
