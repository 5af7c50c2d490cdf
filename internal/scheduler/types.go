// Package scheduler runs one recurring polling job per active station.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/tphakala/radiotracker/internal/datastore"
	"github.com/tphakala/radiotracker/internal/errors"
)

// Common errors returned by queue operations
var (
	ErrQueueClosed    = errors.NewStd("job queue has been closed")
	ErrJobNotFound    = errors.NewStd("job not found in queue")
	ErrInvalidJob     = errors.NewStd("invalid recurring job")
	ErrAlreadyRunning = errors.NewStd("queue is already processing")
)

// Payload carries everything a polling run needs about its station
type Payload struct {
	StationID    uint                   `json:"stationId"`
	Slug         string                 `json:"slug"`
	Name         string                 `json:"name"`
	StreamURL    string                 `json:"streamUrl"`
	MetadataType datastore.MetadataType `json:"metadataType"`
	SourceSlug   string                 `json:"sourceSlug,omitempty"`
	SourceID     int64                  `json:"sourceId,omitempty"`
	Timezone     string                 `json:"timezone,omitempty"`
}

// PayloadFromStation snapshots a station into a job payload
func PayloadFromStation(st *datastore.Station) Payload {
	return Payload{
		StationID:    st.ID,
		Slug:         st.Slug,
		Name:         st.Name,
		StreamURL:    st.StreamURL,
		MetadataType: st.MetadataType,
		SourceSlug:   st.SourceSlug,
		SourceID:     st.SourceID,
		Timezone:     st.Timezone,
	}
}

// Station rebuilds the station fields the pipeline needs
func (p Payload) Station() *datastore.Station {
	return &datastore.Station{
		ID:           p.StationID,
		Slug:         p.Slug,
		Name:         p.Name,
		StreamURL:    p.StreamURL,
		MetadataType: p.MetadataType,
		SourceSlug:   p.SourceSlug,
		SourceID:     p.SourceID,
		Timezone:     p.Timezone,
		Active:       true,
	}
}

// JobID returns the recurring job id for a station
func JobID(stationID uint) string {
	return fmt.Sprintf("station:%d", stationID)
}

// RecurringJob describes a registered recurring job
type RecurringJob struct {
	ID       string
	Payload  Payload
	Interval time.Duration
	AddedAt  time.Time
}

// Handler executes one run of a job
type Handler interface {
	Handle(ctx context.Context, payload Payload) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, payload Payload) error

// Handle implements Handler
func (f HandlerFunc) Handle(ctx context.Context, payload Payload) error {
	return f(ctx, payload)
}

// Queue stores recurring jobs and dispatches their ticks to a handler
type Queue interface {
	AddRecurring(ctx context.Context, id string, payload Payload, interval time.Duration) error
	ListRecurring(ctx context.Context) ([]RecurringJob, error)
	RemoveRecurring(ctx context.Context, id string) error
	Process(ctx context.Context, handler Handler) error // blocks until ctx is done
}

// Stats is a snapshot of queue counters
type Stats struct {
	Jobs         int
	Runs         uint64
	Failures     uint64
	Panics       uint64
	SkippedTicks uint64
}

func queueError(err error, operation string, kv ...any) error {
	b := errors.New(err).
		Component("scheduler").
		Category(errors.CategoryJobQueue).
		Context("operation", operation)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			b = b.Context(k, kv[i+1])
		}
	}
	return b.Build()
}
