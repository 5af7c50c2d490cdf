package metadata

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/radiotracker/internal/errors"
)

// icyBlock encodes meta as a length-prefixed, NUL-padded metadata block
func icyBlock(meta string) []byte {
	n := (len(meta) + icyBlockUnit - 1) / icyBlockUnit
	b := make([]byte, 1+n*icyBlockUnit)
	b[0] = byte(n)
	copy(b[1:], meta)
	return b
}

// icyServer streams metaInt audio bytes in two flushed writes followed by block
func icyServer(t *testing.T, metaInt int, block []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.Header.Get("Icy-MetaData"))
		w.Header().Set("icy-metaint", strconv.Itoa(metaInt))
		w.Header().Set("Content-Type", "audio/mpeg")
		w.WriteHeader(http.StatusOK)

		flusher := w.(http.Flusher)
		audio := bytes.Repeat([]byte{0xFF}, metaInt)
		half := metaInt / 2
		_, _ = w.Write(audio[:half])
		flusher.Flush()
		// the boundary lands inside this write
		_, _ = w.Write(append(audio[half:], block[:1]...))
		flusher.Flush()
		_, _ = w.Write(block[1:])
		_, _ = w.Write(bytes.Repeat([]byte{0xFF}, 512))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestICY(timeout time.Duration) *ICYExtractor {
	return NewICYExtractor(ICYConfig{Timeout: timeout})
}

func TestICYExtract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		meta       string
		wantArtist string
		wantTitle  string
	}{
		{
			name:       "artist and title",
			meta:       "StreamTitle='Fleetwood Mac - Dreams';StreamUrl='';",
			wantArtist: "Fleetwood Mac",
			wantTitle:  "Dreams",
		},
		{
			name:       "apostrophes inside title",
			meta:       "StreamTitle='Guns N' Roses - Sweet Child O' Mine';StreamUrl='';",
			wantArtist: "Guns N' Roses",
			wantTitle:  "Sweet Child O' Mine",
		},
		{
			name:       "html entities",
			meta:       "StreamTitle='Simon &amp; Garfunkel - The Boxer';",
			wantArtist: "Simon & Garfunkel",
			wantTitle:  "The Boxer",
		},
		{
			name:       "no separator",
			meta:       "StreamTitle='Morning Show';",
			wantArtist: "Unknown Artist",
			wantTitle:  "Morning Show",
		},
		{
			name:       "latin-1 block",
			meta:       "StreamTitle='Beyonc\xe9 - Halo';",
			wantArtist: "Beyoncé",
			wantTitle:  "Halo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := icyServer(t, 8000, icyBlock(tt.meta))
			e := newTestICY(5 * time.Second)
			t.Cleanup(func() { _ = e.Close() })

			res, err := e.Extract(t.Context(), Source{StationSlug: "test", StreamURL: srv.URL})
			require.NoError(t, err)
			assert.False(t, res.Empty)
			assert.Equal(t, tt.wantArtist, res.Artist)
			assert.Equal(t, tt.wantTitle, res.Title)
			assert.NotContains(t, res.Raw, "\x00")
			assert.InDelta(t, 1.0, res.Confidence, 0.0001)
		})
	}
}

func TestICYExtract_EmptyBlock(t *testing.T) {
	t.Parallel()

	srv := icyServer(t, 16, []byte{0})
	e := newTestICY(5 * time.Second)

	res, err := e.Extract(t.Context(), Source{StationSlug: "test", StreamURL: srv.URL})
	require.NoError(t, err)
	assert.True(t, res.Empty)
	assert.Empty(t, res.Artist)
	assert.Empty(t, res.Title)
}

func TestICYExtract_BlankTitle(t *testing.T) {
	t.Parallel()

	srv := icyServer(t, 16, icyBlock("StreamTitle='  ';"))
	e := newTestICY(5 * time.Second)

	_, err := e.Extract(t.Context(), Source{StationSlug: "test", StreamURL: srv.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoMatch)
	assert.Equal(t, "no_match", FailureReason(err))
}

func TestICYExtract_MissingMetaInt(t *testing.T) {
	t.Parallel()

	for _, header := range []string{"", "abc", "0", "-5"} {
		t.Run("metaint="+header, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if header != "" {
					w.Header().Set("icy-metaint", header)
				}
				_, _ = w.Write([]byte("audio"))
			}))
			t.Cleanup(srv.Close)

			_, err := newTestICY(5*time.Second).Extract(t.Context(), Source{StationSlug: "test", StreamURL: srv.URL})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnsupportedProtocol)
		})
	}
}

func TestICYExtract_StallTimesOut(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("icy-metaint", "8000")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(bytes.Repeat([]byte{0xFF}, 100))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	start := time.Now()
	_, err := newTestICY(200*time.Millisecond).Extract(t.Context(), Source{StationSlug: "test", StreamURL: srv.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, errors.IsCategory(err, errors.CategoryTimeout))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestICYExtract_ShortRead(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("icy-metaint", "8000")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(bytes.Repeat([]byte{0xFF}, 100))
	}))
	t.Cleanup(srv.Close)

	res, err := newTestICY(5*time.Second).Extract(t.Context(), Source{StationSlug: "test", StreamURL: srv.URL})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Equal(t, "network", FailureReason(err))
}

func TestICYExtract_TruncatedBlock(t *testing.T) {
	t.Parallel()

	block := icyBlock("StreamTitle='Fleetwood Mac - Dreams';")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("icy-metaint", "16")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(bytes.Repeat([]byte{0xFF}, 16))
		_, _ = w.Write(block[:10])
	}))
	t.Cleanup(srv.Close)

	_, err := newTestICY(5*time.Second).Extract(t.Context(), Source{StationSlug: "test", StreamURL: srv.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestICYExtract_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	_, err := newTestICY(5*time.Second).Extract(t.Context(), Source{StationSlug: "test", StreamURL: srv.URL})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryHTTP))
}

func TestICYExtract_CallerCancel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("icy-metaint", "8000")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(t.Context())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := newTestICY(10*time.Second).Extract(ctx, Source{StationSlug: "test", StreamURL: srv.URL})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestParseStreamTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"StreamTitle='A - B';", "A - B", true},
		{"StreamTitle='A - B'", "A - B", true},
		{"StreamTitle='It's Over - Roy Orbison';StreamUrl='http://x';", "It's Over - Roy Orbison", true},
		{"StreamUrl='http://x';", "", false},
		{"StreamTitle='';", "", false},
	}
	for _, tt := range tests {
		got, ok := parseStreamTitle(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
