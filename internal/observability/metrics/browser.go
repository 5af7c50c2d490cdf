package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// BrowserMetrics tracks the shared headless browser used for page scraping.
type BrowserMetrics struct {
	RSSBytes     prometheus.Gauge
	TabsInFlight prometheus.Gauge
	Starts       prometheus.Counter
	Recycles     *prometheus.CounterVec
}

// NewBrowserMetrics creates and registers browser metrics.
func NewBrowserMetrics(registry *prometheus.Registry) (*BrowserMetrics, error) {
	m := &BrowserMetrics{
		RSSBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "browser_rss_bytes",
			Help: "Resident set size of the headless browser process tree",
		}),
		TabsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "browser_tabs_in_flight",
			Help: "Browser tabs currently open for scraping",
		}),
		Starts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "browser_starts_total",
			Help: "Number of times the headless browser was launched",
		}),
		Recycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "browser_recycles_total",
			Help: "Number of browser restarts by reason",
		}, []string{"reason"}), // memory, crash
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register browser metrics: %w", err)
	}
	return m, nil
}

// Describe implements the prometheus.Collector interface.
func (m *BrowserMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.RSSBytes.Desc()
	ch <- m.TabsInFlight.Desc()
	ch <- m.Starts.Desc()
	m.Recycles.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *BrowserMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.RSSBytes
	ch <- m.TabsInFlight
	ch <- m.Starts
	m.Recycles.Collect(ch)
}

// SetRSS records the sampled browser RSS.
func (m *BrowserMetrics) SetRSS(bytes uint64) {
	if m == nil {
		return
	}
	m.RSSBytes.Set(float64(bytes))
}

// TabOpened adjusts the in-flight tab gauge.
func (m *BrowserMetrics) TabOpened(delta int) {
	if m == nil {
		return
	}
	m.TabsInFlight.Add(float64(delta))
}

// RecordStart counts a browser launch.
func (m *BrowserMetrics) RecordStart() {
	if m == nil {
		return
	}
	m.Starts.Inc()
}

// RecordRecycle counts a browser restart.
func (m *BrowserMetrics) RecordRecycle(reason string) {
	if m == nil {
		return
	}
	m.Recycles.WithLabelValues(reason).Inc()
}
