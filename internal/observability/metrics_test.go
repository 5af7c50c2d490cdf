package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewMetricsConcurrency verifies that NewMetrics can be called concurrently,
// each call owning a private registry.
func TestNewMetricsConcurrency(t *testing.T) {
	t.Parallel()

	const numGoroutines = 20
	var wg sync.WaitGroup
	errs := make(chan error, numGoroutines)

	for range numGoroutines {
		wg.Go(func() {
			m, err := NewMetrics()
			if err != nil {
				errs <- err
				return
			}
			m.Pipeline.RecordNewPlay("test", 1)
		})
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
}

func TestMetricsHandlerExposesPipelineCounters(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Pipeline.RecordExtraction("icy", "success", 0.2)
	m.Pipeline.RecordContinuation("rock-fm")
	m.Pipeline.RecordContinuation("rock-fm")
	m.Scheduler.TickSkipped()

	assert.Equal(t, 1, testutil.CollectAndCount(m.Scheduler, "scheduler_ticks_skipped_total"))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `plays_continuations_total{station="rock-fm"} 2`)
	assert.Contains(t, string(body), `extractions_total{outcome="success",type="icy"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
