package poller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/radiotracker/internal/datastore"
	"github.com/tphakala/radiotracker/internal/errors"
	"github.com/tphakala/radiotracker/internal/metadata"
	"github.com/tphakala/radiotracker/internal/observability/metrics"
	"github.com/tphakala/radiotracker/internal/playlog"
	"github.com/tphakala/radiotracker/internal/scheduler"
	"github.com/tphakala/radiotracker/internal/songs"
	testhelpers "github.com/tphakala/radiotracker/internal/testutil"
)

type scriptedExtractor struct {
	results []*metadata.Result
	errs    []error
	calls   atomic.Int32
}

func (s *scriptedExtractor) Type() datastore.MetadataType { return datastore.MetadataTypeICY }

func (s *scriptedExtractor) Extract(context.Context, metadata.Source) (*metadata.Result, error) {
	i := int(s.calls.Add(1)) - 1
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return s.results[i], nil
}

type pollFixture struct {
	store   *datastore.SQLiteStore
	payload scheduler.Payload
	handler *Handler
	metrics *metrics.PipelineMetrics
	now     time.Time
}

func newPollFixture(t *testing.T, ex metadata.Extractor) *pollFixture {
	t.Helper()
	store := testhelpers.NewSQLiteStore(t)
	st := testhelpers.SeedStation(t, store, "rock-fm", datastore.MetadataTypeICY)

	pm, err := metrics.NewPipelineMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	f := &pollFixture{
		store:   store,
		payload: scheduler.PayloadFromStation(st),
		metrics: pm,
		now:     time.Date(2026, 10, 17, 1, 0, 0, 0, time.UTC),
	}
	rec := playlog.NewRecorder(store, songs.NewResolver(store, nil, pm), nil, playlog.DefaultWorkHours(),
		playlog.WithMetrics(pm))
	f.handler = New(metadata.NewRegistry(ex), rec, store, pm)
	f.handler.SetClock(func() time.Time { return f.now })
	return f
}

func (f *pollFixture) plays(t *testing.T) []datastore.Play {
	t.Helper()
	plays, err := f.store.RecentPlays(t.Context(), f.payload.StationID, 10)
	require.NoError(t, err)
	return plays
}

func TestHandle_RecordsThenContinues(t *testing.T) {
	t.Parallel()

	ex := &scriptedExtractor{results: []*metadata.Result{
		{Artist: "AC/DC", Title: "Thunderstruck", Raw: "AC/DC - Thunderstruck", Confidence: 1},
		{Artist: "AC/DC", Title: "Thunderstruck", Raw: "AC/DC - Thunderstruck", Confidence: 1},
	}}
	f := newPollFixture(t, ex)

	require.NoError(t, f.handler.Handle(t.Context(), f.payload))
	f.now = f.now.Add(time.Minute)
	require.NoError(t, f.handler.Handle(t.Context(), f.payload))

	plays := f.plays(t)
	require.Len(t, plays, 1)
	assert.Equal(t, "Thunderstruck", plays[0].Song.Title)

	st, err := f.store.GetStation(t.Context(), f.payload.StationID)
	require.NoError(t, err)
	require.NotNil(t, st.LastScrapedAt)
	assert.True(t, f.now.Equal(*st.LastScrapedAt), "continuation touches the scrape time")
}

func TestHandle_ParsesRawWhenNotSplit(t *testing.T) {
	t.Parallel()

	ex := &scriptedExtractor{results: []*metadata.Result{{Raw: "Split Enz - Six Months In A Leaky Boat", Confidence: 1}}}
	f := newPollFixture(t, ex)

	require.NoError(t, f.handler.Handle(t.Context(), f.payload))
	plays := f.plays(t)
	require.Len(t, plays, 1)
	assert.Equal(t, "Split Enz", plays[0].Song.Artist)
	assert.Equal(t, "Six Months In A Leaky Boat", plays[0].Song.Title)
}

func TestHandle_ExtractionFailureIsNotAnError(t *testing.T) {
	t.Parallel()

	ex := &scriptedExtractor{errs: []error{
		errors.New(metadata.ErrTimeout).Component("metadata").Category(errors.CategoryTimeout).Build(),
	}}
	f := newPollFixture(t, ex)

	require.NoError(t, f.handler.Handle(t.Context(), f.payload))
	assert.Empty(t, f.plays(t))
	assert.Equal(t, 1, testutil.CollectAndCount(f.metrics, "extraction_failures_total"))
}

func TestHandle_EmptyResultRecordsNothing(t *testing.T) {
	t.Parallel()

	ex := &scriptedExtractor{results: []*metadata.Result{{Empty: true}}}
	f := newPollFixture(t, ex)

	require.NoError(t, f.handler.Handle(t.Context(), f.payload))
	assert.Empty(t, f.plays(t))

	st, err := f.store.GetStation(t.Context(), f.payload.StationID)
	require.NoError(t, err)
	require.NotNil(t, st.LastScrapedAt)
}

func TestHandle_UnsupportedTypeFails(t *testing.T) {
	t.Parallel()

	f := newPollFixture(t, &scriptedExtractor{})
	p := f.payload
	p.MetadataType = datastore.MetadataTypeJSONAPI

	err := f.handler.Handle(t.Context(), p)
	require.Error(t, err)
	assert.ErrorIs(t, err, metadata.ErrUnsupportedProtocol)
}
