package poller

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/radiotracker/internal/classifier"
	"github.com/tphakala/radiotracker/internal/datastore"
	"github.com/tphakala/radiotracker/internal/events"
	"github.com/tphakala/radiotracker/internal/metadata"
	"github.com/tphakala/radiotracker/internal/observability/metrics"
	"github.com/tphakala/radiotracker/internal/playlog"
	"github.com/tphakala/radiotracker/internal/scheduler"
	"github.com/tphakala/radiotracker/internal/songs"
	testhelpers "github.com/tphakala/radiotracker/internal/testutil"
)

const icyMetaInt = 64

// icyStation serves a stream carrying one StreamTitle block after icyMetaInt audio bytes
func icyStation(t *testing.T, title string) *httptest.Server {
	t.Helper()

	meta := "StreamTitle='" + title + "';"
	n := (len(meta) + 15) / 16
	block := make([]byte, 1+n*16)
	block[0] = byte(n)
	copy(block[1:], meta)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.Header.Get("Icy-MetaData"))
		w.Header().Set("icy-metaint", strconv.Itoa(icyMetaInt))
		w.Header().Set("Content-Type", "audio/mpeg")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(bytes.Repeat([]byte{0xFF}, icyMetaInt))
		_, _ = w.Write(block)
		_, _ = w.Write(bytes.Repeat([]byte{0xFF}, icyMetaInt))
	}))
	t.Cleanup(srv.Close)
	return srv
}

type capturedEvents struct {
	events []events.Event
}

func (c *capturedEvents) TryPublish(e events.Event) bool {
	c.events = append(c.events, e)
	return true
}

func TestHandle_ICYStreamToPlay(t *testing.T) {
	t.Parallel()

	srv := icyStation(t, "Lorde - Royals")
	store := testhelpers.NewSQLiteStore(t)

	st := &datastore.Station{
		Slug:         "zm",
		Name:         "ZM",
		StreamURL:    srv.URL,
		MetadataType: datastore.MetadataTypeICY,
		PollInterval: 60,
		Active:       true,
	}
	require.NoError(t, store.UpsertStation(t.Context(), st))

	pm, err := metrics.NewPipelineMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	published := &capturedEvents{}
	resolver := songs.NewResolver(store, classifier.New(nil), pm)
	rec := playlog.NewRecorder(store, resolver, published, playlog.DefaultWorkHours(), playlog.WithMetrics(pm))
	registry := metadata.NewRegistry(metadata.NewICYExtractor(metadata.ICYConfig{Timeout: 5 * time.Second}))
	handler := New(registry, rec, store, pm)

	now := time.Date(2026, 10, 17, 23, 0, 0, 0, time.UTC)
	handler.SetClock(func() time.Time { return now })

	payload := scheduler.PayloadFromStation(st)
	require.NoError(t, handler.Handle(t.Context(), payload))

	plays, err := store.RecentPlays(t.Context(), st.ID, 10)
	require.NoError(t, err)
	require.Len(t, plays, 1)
	play := plays[0]
	require.NotNil(t, play.Song)
	assert.Equal(t, st.ID, play.StationID)
	assert.Equal(t, "Royals", play.Song.Title)
	assert.Equal(t, "Lorde", play.Song.Artist)
	assert.False(t, play.Song.IsNonSong, "Lorde does not match the station name")
	assert.Equal(t, datastore.NonSongNone, play.Song.NonSongType)
	assert.Contains(t, play.RawMetadata, "Lorde - Royals")
	assert.True(t, now.Equal(play.PlayedAt))

	require.Len(t, published.events, 1)
	np, ok := published.events[0].(*events.NowPlayingEvent)
	require.True(t, ok)
	assert.Equal(t, "zm", np.Station.Slug)
	assert.Equal(t, play.ID, np.Play.ID)

	// same track on the next tick is a continuation
	now = now.Add(time.Minute)
	require.NoError(t, handler.Handle(t.Context(), payload))

	plays, err = store.RecentPlays(t.Context(), st.ID, 10)
	require.NoError(t, err)
	assert.Len(t, plays, 1)
	assert.Len(t, published.events, 1)
}
