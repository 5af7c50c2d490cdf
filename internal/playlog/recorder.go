// Package playlog turns now-playing observations into play history. It
// deduplicates consecutive observations of the same song per station and
// raises alerts for songs repeated within work hours.
package playlog

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/radiotracker/internal/datastore"
	"github.com/tphakala/radiotracker/internal/events"
	"github.com/tphakala/radiotracker/internal/logger"
	"github.com/tphakala/radiotracker/internal/observability/metrics"
)

// Observation is one successful extraction, already split into artist and title
type Observation struct {
	Artist     string
	Title      string
	Raw        string
	Confidence float64
	DetectedAt time.Time
}

// Outcome describes what Record did with an observation
type Outcome struct {
	Song        *datastore.Song
	SongCreated bool
	Play        *datastore.Play // the new play, or the play being continued
	NewPlay     bool

	DuplicateCount int64 // plays of Song in the current work-hours window, 0 when not checked
	AlertPublished bool
}

// SongResolver finds or creates the song for an observation
type SongResolver interface {
	FindOrCreate(ctx context.Context, artist, title, stationName string) (*datastore.Song, bool, error)
}

// Publisher accepts events without blocking
type Publisher interface {
	TryPublish(event events.Event) bool
}

// Clock returns the current time
type Clock func() time.Time

// Recorder persists plays. Records for one station are serialized.
type Recorder struct {
	store     datastore.Interface
	resolver  SongResolver
	publisher Publisher
	workHours WorkHours
	metrics   *metrics.PipelineMetrics
	now       Clock

	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

// Option configures a Recorder
type Option func(*Recorder)

// WithClock overrides the clock used when an observation has no DetectedAt
func WithClock(c Clock) Option {
	return func(r *Recorder) { r.now = c }
}

// WithMetrics attaches pipeline metrics
func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// NewRecorder creates a recorder. publisher may be nil to disable events.
func NewRecorder(store datastore.Interface, resolver SongResolver, publisher Publisher, wh WorkHours, opts ...Option) *Recorder {
	r := &Recorder{
		store:     store,
		resolver:  resolver,
		publisher: publisher,
		workHours: wh,
		now:       func() time.Time { return time.Now().UTC() },
		locks:     make(map[uint]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) stationLock(id uint) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l
}

// Record resolves the observed song and appends a play unless the station's
// latest play is already that song.
func (r *Recorder) Record(ctx context.Context, station *datastore.Station, obs Observation) (*Outcome, error) {
	if obs.DetectedAt.IsZero() {
		obs.DetectedAt = r.now()
	}

	song, songCreated, err := r.resolver.FindOrCreate(ctx, obs.Artist, obs.Title, station.Name)
	if err != nil {
		return nil, err
	}
	outcome := &Outcome{Song: song, SongCreated: songCreated}

	lock := r.stationLock(station.ID)
	lock.Lock()
	play := &datastore.Play{
		StationID:   station.ID,
		SongID:      song.ID,
		PlayedAt:    obs.DetectedAt,
		RawMetadata: obs.Raw,
		Confidence:  obs.Confidence,
		Source:      datastore.PlaySourceLive,
	}
	created, previous, err := r.store.RecordPlayIfChanged(ctx, play)
	lock.Unlock()
	if err != nil {
		return nil, err
	}

	log := GetLogger().With(
		logger.String("station", station.Slug),
		logger.Uint64("song_id", uint64(song.ID)))

	if !created {
		outcome.Play = previous
		r.metrics.RecordContinuation(station.Slug)
		log.Debug("same song still playing")
		return outcome, nil
	}

	outcome.Play = play
	outcome.NewPlay = true
	r.metrics.RecordNewPlay(station.Slug, float64(play.PlayedAt.Unix()))
	log.Info("new play",
		logger.String("artist", song.Artist),
		logger.String("title", song.Title),
		logger.Bool("non_song", song.IsNonSong),
		logger.Float64("confidence", play.Confidence),
		logger.Time("played_at", play.PlayedAt))

	r.publish(&events.NowPlayingEvent{
		Station:  *station,
		Song:     *song,
		Play:     *play,
		PlayedAt: play.PlayedAt,
	})

	r.checkDuplicate(ctx, station, song, obs.DetectedAt, outcome)
	return outcome, nil
}

// checkDuplicate counts plays of song inside the current work-hours window
// and publishes an alert when there is more than one. Failures are logged only.
func (r *Recorder) checkDuplicate(ctx context.Context, station *datastore.Station, song *datastore.Song, at time.Time, outcome *Outcome) {
	from, to, ok := r.workHours.Window(at, r.workHours.stationLocation(station.Timezone))
	if !ok {
		return
	}

	log := GetLogger().With(
		logger.String("station", station.Slug),
		logger.Uint64("song_id", uint64(song.ID)))

	count, err := r.store.CountPlaysInWindow(ctx, station.ID, song.ID, from, to)
	if err != nil {
		log.Warn("duplicate play check failed", logger.Error(err))
		return
	}
	outcome.DuplicateCount = count
	if count <= 1 {
		return
	}

	plays, err := r.store.ListPlaysInWindow(ctx, station.ID, song.ID, from, to)
	if err != nil {
		log.Warn("failed to load duplicate plays", logger.Error(err))
		return
	}

	r.metrics.RecordDuplicateAlert(station.Slug)
	log.Info("song repeated within work hours",
		logger.String("title", song.Title),
		logger.Int64("count", count),
		logger.Time("window_start", from))

	outcome.AlertPublished = r.publish(&events.DuplicateAlertEvent{
		Station:     *station,
		Song:        *song,
		Count:       count,
		Plays:       plays,
		WindowStart: from,
		WindowEnd:   to,
		DetectedAt:  at,
	})
}

func (r *Recorder) publish(event events.Event) bool {
	if r.publisher == nil {
		return false
	}
	if !r.publisher.TryPublish(event) {
		GetLogger().Debug("event not delivered",
			logger.String("event_type", event.EventType()),
			logger.String("station", event.StationSlug()))
		return false
	}
	return true
}
