package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics covers extraction, song resolution and play recording.
// All methods are safe on a nil receiver so components can run without a
// registry in tests and one-shot commands.
type PipelineMetrics struct {
	extractionsTotal     *prometheus.CounterVec
	extractionDuration   *prometheus.HistogramVec
	extractionFailures   *prometheus.CounterVec
	songsCreatedTotal    *prometheus.CounterVec
	songCacheTotal       *prometheus.CounterVec
	newPlaysTotal        *prometheus.CounterVec
	continuationsTotal   *prometheus.CounterVec
	duplicateAlertsTotal *prometheus.CounterVec
	cycleErrorsTotal     *prometheus.CounterVec
	lastPlayTimestamp    *prometheus.GaugeVec

	collectors []prometheus.Collector
}

// NewPipelineMetrics creates and registers the pipeline collectors.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.extractionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractions_total",
			Help: "Total number of metadata extractions",
		},
		[]string{"type", "outcome"}, // outcome: success, empty, error
	)

	m.extractionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "extraction_duration_seconds",
			Help:    "Time taken by a single metadata extraction",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12), // 10ms to ~20s
		},
		[]string{"type"},
	)

	m.extractionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_failures_total",
			Help: "Total number of failed extractions by reason",
		},
		[]string{"type", "reason"}, // reason: timeout, no_match, invalid_response, unsupported, network
	)

	m.songsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "songs_created_total",
			Help: "Total number of songs created on first sighting",
		},
		[]string{"non_song"},
	)

	m.songCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "song_cache_lookups_total",
			Help: "Song hot cache lookups",
		},
		[]string{"result"}, // hit, miss
	)

	m.newPlaysTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plays_new_total",
			Help: "Total number of new plays recorded",
		},
		[]string{"station"},
	)

	m.continuationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plays_continuations_total",
			Help: "Total number of polls that observed the song already playing",
		},
		[]string{"station"},
	)

	m.duplicateAlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duplicate_alerts_total",
			Help: "Total number of duplicate play alerts raised during work hours",
		},
		[]string{"station"},
	)

	m.cycleErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poll_cycle_errors_total",
			Help: "Poll cycles that ended with a hard error",
		},
		[]string{"stage"}, // resolve, record
	)

	m.lastPlayTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "station_last_play_timestamp_seconds",
			Help: "Unix time of the latest new play per station",
		},
		[]string{"station"},
	)

	m.collectors = []prometheus.Collector{
		m.extractionsTotal,
		m.extractionDuration,
		m.extractionFailures,
		m.songsCreatedTotal,
		m.songCacheTotal,
		m.newPlaysTotal,
		m.continuationsTotal,
		m.duplicateAlertsTotal,
		m.cycleErrorsTotal,
		m.lastPlayTimestamp,
	}
}

// Describe implements the Collector interface
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// RecordExtraction records one extraction attempt and its duration.
func (m *PipelineMetrics) RecordExtraction(metadataType, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.extractionsTotal.WithLabelValues(metadataType, outcome).Inc()
	m.extractionDuration.WithLabelValues(metadataType).Observe(seconds)
}

// RecordExtractionFailure counts a failed extraction by reason.
func (m *PipelineMetrics) RecordExtractionFailure(metadataType, reason string) {
	if m == nil {
		return
	}
	m.extractionFailures.WithLabelValues(metadataType, reason).Inc()
}

// RecordSongCreated counts a song created on first sighting.
func (m *PipelineMetrics) RecordSongCreated(nonSong bool) {
	if m == nil {
		return
	}
	m.songsCreatedTotal.WithLabelValues(fmt.Sprintf("%t", nonSong)).Inc()
}

// RecordSongCache counts a hot cache lookup.
func (m *PipelineMetrics) RecordSongCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.songCacheTotal.WithLabelValues(result).Inc()
}

// RecordNewPlay counts a new play and stamps the station's last play time.
func (m *PipelineMetrics) RecordNewPlay(station string, unixSeconds float64) {
	if m == nil {
		return
	}
	m.newPlaysTotal.WithLabelValues(station).Inc()
	m.lastPlayTimestamp.WithLabelValues(station).Set(unixSeconds)
}

// RecordContinuation counts a poll that saw the same song again.
func (m *PipelineMetrics) RecordContinuation(station string) {
	if m == nil {
		return
	}
	m.continuationsTotal.WithLabelValues(station).Inc()
}

// RecordDuplicateAlert counts a raised duplicate alert.
func (m *PipelineMetrics) RecordDuplicateAlert(station string) {
	if m == nil {
		return
	}
	m.duplicateAlertsTotal.WithLabelValues(station).Inc()
}

// RecordCycleError counts a poll cycle that failed at the given stage.
func (m *PipelineMetrics) RecordCycleError(stage string) {
	if m == nil {
		return
	}
	m.cycleErrorsTotal.WithLabelValues(stage).Inc()
}
