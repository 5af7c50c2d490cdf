package scheduler

import (
	"context"
	"time"

	"github.com/tphakala/radiotracker/internal/datastore"
	"github.com/tphakala/radiotracker/internal/errors"
	"github.com/tphakala/radiotracker/internal/logger"
	"github.com/tphakala/radiotracker/internal/observability/metrics"
)

// Scheduler defaults
const (
	DefaultPollInterval   = 30 * time.Second
	DefaultResyncInterval = 10 * time.Minute
)

// Config configures a Scheduler
type Config struct {
	DefaultInterval time.Duration // for stations without their own interval
	ResyncInterval  time.Duration // 0 disables periodic resync
}

// StationLister is the slice of the datastore the scheduler reads
type StationLister interface {
	ListActiveStations(ctx context.Context) ([]datastore.Station, error)
}

// Scheduler keeps the queue's recurring jobs in step with the active stations
type Scheduler struct {
	stations StationLister
	queue    Queue
	cfg      Config
	metrics  *metrics.SchedulerMetrics
}

// New creates a scheduler
func New(stations StationLister, queue Queue, cfg Config, m *metrics.SchedulerMetrics) *Scheduler {
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = DefaultPollInterval
	}
	return &Scheduler{stations: stations, queue: queue, cfg: cfg, metrics: m}
}

// Resync removes every recurring job and adds one per active station. It
// returns the number of jobs registered.
func (s *Scheduler) Resync(ctx context.Context) (int, error) {
	n, err := s.resync(ctx)
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}
	s.metrics.RecordResync(status)
	return n, err
}

func (s *Scheduler) resync(ctx context.Context) (int, error) {
	existing, err := s.queue.ListRecurring(ctx)
	if err != nil {
		return 0, err
	}
	for _, job := range existing {
		if err := s.queue.RemoveRecurring(ctx, job.ID); err != nil && !errors.Is(err, ErrJobNotFound) {
			return 0, err
		}
	}

	stations, err := s.stations.ListActiveStations(ctx)
	if err != nil {
		return 0, err
	}

	added := 0
	for i := range stations {
		st := &stations[i]
		interval := s.cfg.DefaultInterval
		if st.PollInterval > 0 {
			interval = time.Duration(st.PollInterval) * time.Second
		}
		if err := s.queue.AddRecurring(ctx, JobID(st.ID), PayloadFromStation(st), interval); err != nil {
			return added, err
		}
		added++
	}

	GetLogger().Info("recurring jobs resynced",
		logger.Int("removed", len(existing)),
		logger.Int("added", added))
	return added, nil
}

// Run resyncs immediately and then on every resync interval until ctx is
// done. A failed periodic resync is logged and retried on the next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.Resync(ctx); err != nil {
		return err
	}
	if s.cfg.ResyncInterval <= 0 {
		<-ctx.Done()
		return nil
	}

	t := time.NewTicker(s.cfg.ResyncInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := s.Resync(ctx); err != nil {
				GetLogger().Warn("periodic resync failed", logger.Error(err))
			}
		}
	}
}
