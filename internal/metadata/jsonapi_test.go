package metadata

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFeedURL = "https://feeds.example.com/nowplaying/%d"

func newMockedJSONAPI(t *testing.T, cfg JSONAPIConfig) (*JSONAPIExtractor, *httpmock.MockTransport) {
	t.Helper()
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = testFeedURL
	}
	e := NewJSONAPIExtractor(cfg)
	mock := httpmock.NewMockTransport()
	e.Client().StdClient().Transport = mock
	t.Cleanup(func() { _ = e.Close() })
	return e, mock
}

func TestJSONAPIExtract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		status         int
		body           string
		wantErr        error
		wantArtist     string
		wantTitle      string
		wantConfidence float64
	}{
		{
			name:           "match",
			status:         http.StatusOK,
			body:           `{"artist":"Six60","title":"Don't Forget Your Roots","status":"match"}`,
			wantArtist:     "Six60",
			wantTitle:      "Don't Forget Your Roots",
			wantConfidence: 1.0,
		},
		{
			name:           "no status field",
			status:         http.StatusOK,
			body:           `{"artist":"Lorde","title":"Royals"}`,
			wantArtist:     "Lorde",
			wantTitle:      "Royals",
			wantConfidence: 1.0,
		},
		{
			name:           "non-match status lowers confidence",
			status:         http.StatusOK,
			body:           `{"artist":"Lorde","title":"Royals","status":"fuzzy"}`,
			wantArtist:     "Lorde",
			wantTitle:      "Royals",
			wantConfidence: 0.5,
		},
		{
			name:    "missing artist",
			status:  http.StatusOK,
			body:    `{"title":"Royals","status":"match"}`,
			wantErr: ErrInvalidResponse,
		},
		{
			name:    "empty title",
			status:  http.StatusOK,
			body:    `{"artist":"Lorde","title":"  "}`,
			wantErr: ErrInvalidResponse,
		},
		{
			name:    "unparsable body",
			status:  http.StatusOK,
			body:    `<html>oops</html>`,
			wantErr: ErrInvalidResponse,
		},
		{
			name:    "server error",
			status:  http.StatusBadGateway,
			body:    `{"artist":"Lorde","title":"Royals"}`,
			wantErr: ErrInvalidResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, mock := newMockedJSONAPI(t, JSONAPIConfig{})
			mock.RegisterResponder(http.MethodGet, "https://feeds.example.com/nowplaying/42",
				httpmock.NewStringResponder(tt.status, tt.body))

			res, err := e.Extract(t.Context(), Source{StationSlug: "george", SourceID: 42})
			assert.Equal(t, 1, mock.GetTotalCallCount())
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, res)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantArtist, res.Artist)
			assert.Equal(t, tt.wantTitle, res.Title)
			assert.InDelta(t, tt.wantConfidence, res.Confidence, 0.0001)
			assert.NotEmpty(t, res.Raw)
		})
	}
}

func TestJSONAPIExtract_MissingSourceID(t *testing.T) {
	t.Parallel()

	e, mock := newMockedJSONAPI(t, JSONAPIConfig{})
	_, err := e.Extract(t.Context(), Source{StationSlug: "george"})
	require.Error(t, err)
	assert.Equal(t, "invalid_source", FailureReason(err))
	assert.Zero(t, mock.GetTotalCallCount())
}

func TestJSONAPIExtract_RateLimited(t *testing.T) {
	t.Parallel()

	e, mock := newMockedJSONAPI(t, JSONAPIConfig{RateLimit: 0.1, Burst: 1})
	mock.RegisterResponder(http.MethodGet, "https://feeds.example.com/nowplaying/7",
		httpmock.NewStringResponder(http.StatusOK, `{"artist":"Lorde","title":"Royals"}`))

	_, err := e.Extract(t.Context(), Source{StationSlug: "george", SourceID: 7})
	require.NoError(t, err)

	// the next token is ten seconds away, beyond this deadline
	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()
	_, err = e.Extract(ctx, Source{StationSlug: "george", SourceID: 7})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, mock.GetTotalCallCount())
}

func TestJSONAPIExtract_TransportError(t *testing.T) {
	t.Parallel()

	e, mock := newMockedJSONAPI(t, JSONAPIConfig{})
	mock.RegisterResponder(http.MethodGet, "https://feeds.example.com/nowplaying/9",
		httpmock.NewErrorResponder(assert.AnError))

	_, err := e.Extract(t.Context(), Source{StationSlug: "george", SourceID: 9})
	require.Error(t, err)
	assert.Equal(t, "network", FailureReason(err))
}
