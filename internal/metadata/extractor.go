// Package metadata extracts the currently playing track from upstream
// sources: ICY stream metadata, rendered station pages and a JSON feed API.
package metadata

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tphakala/radiotracker/internal/datastore"
	"github.com/tphakala/radiotracker/internal/errors"
	"github.com/tphakala/radiotracker/internal/privacy"
)

// DefaultTimeout bounds a single extraction when none is configured
const DefaultTimeout = 10 * time.Second

// Sentinel errors. Extractors wrap them in an EnhancedError; test with errors.Is.
var (
	ErrUnsupportedProtocol = errors.NewStd("unsupported metadata protocol")
	ErrTimeout             = errors.NewStd("metadata extraction timed out")
	ErrNoMatch             = errors.NewStd("no now-playing information found")
	ErrPageLoadTimeout     = errors.NewStd("page load timed out")
	ErrInvalidResponse     = errors.NewStd("invalid metadata response")
)

// Source carries what an extractor needs to know about a station
type Source struct {
	StationSlug string
	StationName string
	StreamURL   string
	SourceSlug  string
	SourceID    int64
}

// SourceFromStation builds a Source from a stored station
func SourceFromStation(st *datastore.Station) Source {
	return Source{
		StationSlug: st.Slug,
		StationName: st.Name,
		StreamURL:   st.StreamURL,
		SourceSlug:  st.SourceSlug,
		SourceID:    st.SourceID,
	}
}

// Result is one observation of what is playing. Empty is set only when the
// upstream explicitly reported no track.
type Result struct {
	Artist     string
	Title      string
	Raw        string
	Empty      bool
	Confidence float64
}

// Extractor reads the now-playing track for one kind of upstream
type Extractor interface {
	Type() datastore.MetadataType
	Extract(ctx context.Context, src Source) (*Result, error)
}

// Registry maps metadata types to extractors
type Registry struct {
	mu         sync.RWMutex
	extractors map[datastore.MetadataType]Extractor
}

// NewRegistry returns a registry holding the given extractors
func NewRegistry(extractors ...Extractor) *Registry {
	r := &Registry{extractors: make(map[datastore.MetadataType]Extractor, len(extractors))}
	for _, e := range extractors {
		r.Register(e)
	}
	return r
}

// Register adds or replaces the extractor for e.Type()
func (r *Registry) Register(e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[e.Type()] = e
}

// For returns the extractor for t
func (r *Registry) For(t datastore.MetadataType) (Extractor, error) {
	r.mu.RLock()
	e, ok := r.extractors[t]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.New(fmt.Errorf("%w: %q", ErrUnsupportedProtocol, t)).
			Component("metadata").
			Category(errors.CategoryValidation).
			Context("metadata_type", string(t)).
			Build()
	}
	return e, nil
}

// Close releases resources held by extractors, such as the shared browser
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, e := range r.extractors {
		if c, ok := e.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// extractionError wraps a sentinel (and optional cause) with station context
func extractionError(sentinel, cause error, category errors.ErrorCategory, t datastore.MetadataType, src Source) error {
	err := sentinel
	if cause != nil {
		err = fmt.Errorf("%w: %w", sentinel, cause)
	}
	return errors.New(err).
		Component("metadata").
		Category(category).
		StationContext(src.StationSlug, string(t)).
		Context("url", privacy.RedactURL(src.StreamURL)).
		Build()
}

// networkError wraps a transport failure that has no sentinel
func networkError(cause error, t datastore.MetadataType, src Source, operation string) error {
	return errors.New(cause).
		Component("metadata").
		Category(errors.CategoryNetwork).
		StationContext(src.StationSlug, string(t)).
		Context("operation", operation).
		Build()
}

// FailureReason returns a short metric label for an extraction error
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrPageLoadTimeout):
		return "timeout"
	case errors.Is(err, ErrNoMatch):
		return "no_match"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, ErrUnsupportedProtocol):
		return "unsupported"
	case errors.IsCategory(err, errors.CategoryValidation):
		return "invalid_source"
	default:
		return "network"
	}
}

// timeoutOr maps a context deadline to ErrTimeout, anything else to a network error
func timeoutOr(ctx context.Context, cause error, t datastore.MetadataType, src Source, operation string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(cause, context.DeadlineExceeded) {
		return extractionError(ErrTimeout, cause, errors.CategoryTimeout, t, src)
	}
	return networkError(cause, t, src, operation)
}
