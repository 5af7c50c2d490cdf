// Package poller runs one polling cycle for a station: extract the current
// track, resolve the song and record the play.
package poller

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/radiotracker/internal/datastore"
	"github.com/tphakala/radiotracker/internal/logger"
	"github.com/tphakala/radiotracker/internal/metadata"
	"github.com/tphakala/radiotracker/internal/observability/metrics"
	"github.com/tphakala/radiotracker/internal/playlog"
	"github.com/tphakala/radiotracker/internal/scheduler"
	"github.com/tphakala/radiotracker/internal/songmeta"
)

// ExtractorSource picks the extractor for a metadata type
type ExtractorSource interface {
	For(t datastore.MetadataType) (metadata.Extractor, error)
}

// PlayRecorder records an observation for a station
type PlayRecorder interface {
	Record(ctx context.Context, station *datastore.Station, obs playlog.Observation) (*playlog.Outcome, error)
}

// ScrapeToucher marks a station as scraped
type ScrapeToucher interface {
	TouchLastScraped(ctx context.Context, stationID uint, at time.Time) error
}

// Handler is the scheduler job handler for station polling
type Handler struct {
	extractors ExtractorSource
	recorder   PlayRecorder
	toucher    ScrapeToucher
	metrics    *metrics.PipelineMetrics
	now        func() time.Time
}

// New creates a poll handler. toucher may be nil.
func New(extractors ExtractorSource, recorder PlayRecorder, toucher ScrapeToucher, m *metrics.PipelineMetrics) *Handler {
	return &Handler{
		extractors: extractors,
		recorder:   recorder,
		toucher:    toucher,
		metrics:    m,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the detection clock, for tests
func (h *Handler) SetClock(now func() time.Time) {
	h.now = now
}

// Handle implements scheduler.Handler. Extraction failures are logged and
// counted but do not fail the run; storage failures do.
func (h *Handler) Handle(ctx context.Context, p scheduler.Payload) error {
	ctx = logger.WithTraceID(ctx, uuid.NewString())
	log := GetLogger().WithContext(ctx).With(
		logger.String("station", p.Slug),
		logger.String("metadata_type", string(p.MetadataType)))

	station := p.Station()
	mtype := string(p.MetadataType)

	extractor, err := h.extractors.For(p.MetadataType)
	if err != nil {
		h.metrics.RecordCycleError("extractor")
		return err
	}

	start := time.Now()
	res, err := extractor.Extract(ctx, metadata.SourceFromStation(station))
	elapsed := time.Since(start).Seconds()
	if err != nil {
		reason := metadata.FailureReason(err)
		h.metrics.RecordExtraction(mtype, metrics.StatusError, elapsed)
		h.metrics.RecordExtractionFailure(mtype, reason)
		log.Warn("metadata extraction failed",
			logger.String("reason", reason),
			logger.Error(err))
		return nil
	}

	detectedAt := h.now()
	if res.Empty {
		h.metrics.RecordExtraction(mtype, metrics.StatusEmpty, elapsed)
		log.Debug("upstream reports nothing playing")
		h.touch(ctx, log, station.ID, detectedAt)
		return nil
	}
	h.metrics.RecordExtraction(mtype, metrics.StatusSuccess, elapsed)

	artist, title := res.Artist, res.Title
	if artist == "" && title == "" {
		parsed := songmeta.ParseRawMetadata(res.Raw)
		artist, title = parsed.Artist, parsed.Title
	}

	outcome, err := h.recorder.Record(ctx, station, playlog.Observation{
		Artist:     artist,
		Title:      title,
		Raw:        res.Raw,
		Confidence: res.Confidence,
		DetectedAt: detectedAt,
	})
	if err != nil {
		h.metrics.RecordCycleError("record")
		log.Error("failed to record play", logger.Error(err))
		return err
	}

	if !outcome.NewPlay {
		h.touch(ctx, log, station.ID, detectedAt)
	}
	return nil
}

func (h *Handler) touch(ctx context.Context, log logger.Logger, stationID uint, at time.Time) {
	if h.toucher == nil {
		return
	}
	if err := h.toucher.TouchLastScraped(ctx, stationID, at); err != nil {
		log.Warn("failed to update last scraped time", logger.Error(err))
	}
}

var _ scheduler.Handler = (*Handler)(nil)
