// Package worker runs the polling pipeline, the notification sinks and the
// HTTP server until interrupted.
package worker

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/radiotracker/internal/buildinfo"
	"github.com/tphakala/radiotracker/internal/classifier"
	"github.com/tphakala/radiotracker/internal/conf"
	"github.com/tphakala/radiotracker/internal/datastore"
	"github.com/tphakala/radiotracker/internal/errors"
	"github.com/tphakala/radiotracker/internal/events"
	"github.com/tphakala/radiotracker/internal/httpcontroller"
	"github.com/tphakala/radiotracker/internal/logger"
	"github.com/tphakala/radiotracker/internal/metadata"
	"github.com/tphakala/radiotracker/internal/mqtt"
	"github.com/tphakala/radiotracker/internal/notification"
	"github.com/tphakala/radiotracker/internal/observability"
	"github.com/tphakala/radiotracker/internal/playlog"
	"github.com/tphakala/radiotracker/internal/poller"
	"github.com/tphakala/radiotracker/internal/scheduler"
	"github.com/tphakala/radiotracker/internal/songs"
)

const (
	shutdownTimeout    = 10 * time.Second
	eventDrainTimeout  = 5 * time.Second
	mqttConnectTimeout = 15 * time.Second
)

// Command creates the worker command.
func Command(info *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Poll stations and record plays",
		Long:  "Start the scheduler, extraction workers, event sinks and HTTP server. Stops cleanly on SIGINT or SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, conf.GetSettings(), info)
		},
	}

	cmd.Flags().Int("workers", viper.GetInt("scheduler.workers"), "Concurrent extraction workers")
	cmd.Flags().String("listen", viper.GetString("webserver.listen"), "HTTP listen address")
	_ = viper.BindPFlag("scheduler.workers", cmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("webserver.listen", cmd.Flags().Lookup("listen"))

	return cmd
}

// Run wires the pipeline from settings and blocks until ctx is done or a
// component fails.
func Run(ctx context.Context, settings *conf.Settings, info *buildinfo.Context) error {
	log := logger.Global().Module("worker")
	log.Info("starting worker", logger.String("version", info.GetVersion()))

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	ds, err := datastore.New(settings)
	if err != nil {
		return err
	}
	ds.SetMetrics(m.Datastore)
	if err := ds.Open(); err != nil {
		return err
	}
	defer func() {
		if err := ds.Close(); err != nil {
			log.Warn("failed to close datastore", logger.Error(err))
		}
	}()

	registry := metadata.NewDefaultRegistry(settings, m.Browser)
	defer func() {
		if err := registry.Close(); err != nil {
			log.Warn("failed to close extractors", logger.Error(err))
		}
	}()

	var mqttClient mqtt.Client
	bus := events.New(events.DefaultConfig())
	bus.SetMetrics(m.Notification)
	defer func() {
		// Drain before disconnecting so queued events still reach the broker.
		if err := bus.Shutdown(eventDrainTimeout); err != nil {
			log.Warn("event bus did not drain", logger.Error(err))
		}
		if mqttClient != nil {
			mqttClient.Disconnect()
		}
	}()

	broadcaster, mqttClient, err := registerSinks(ctx, settings, bus, m)
	if err != nil {
		return err
	}

	wh, err := playlog.WorkHoursFromSettings(&settings.Alerts.WorkHours)
	if err != nil {
		return err
	}

	resolver := songs.NewResolver(ds, classifier.New(settings.Classifier.Aliases), m.Pipeline)
	recorder := playlog.NewRecorder(ds, resolver, bus, wh, playlog.WithMetrics(m.Pipeline))
	handler := poller.New(registry, recorder, ds, m.Pipeline)

	queue := scheduler.NewMemoryQueue(scheduler.MemoryQueueConfig{
		Workers:        settings.Scheduler.Workers,
		RunImmediately: settings.Scheduler.RunImmediately,
	}, m.Scheduler)
	defer func() { _ = queue.Close() }()

	sched := scheduler.New(ds, queue, scheduler.Config{
		DefaultInterval: settings.Scheduler.DefaultInterval,
		ResyncInterval:  settings.Scheduler.ResyncInterval,
	}, m.Scheduler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return queue.Process(gctx, handler) })
	g.Go(func() error { return sched.Run(gctx) })

	if settings.WebServer.Enabled {
		opts := []httpcontroller.Option{httpcontroller.WithMetrics(m.HTTP, m.Handler())}
		if broadcaster != nil {
			opts = append(opts, httpcontroller.WithBroadcaster(broadcaster))
		}
		server := httpcontroller.New(settings, ds, opts...)

		g.Go(server.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker stopped with error", logger.Error(err))
		return err
	}
	log.Info("worker stopped")
	return nil
}

// registerSinks attaches the enabled MQTT, push and SSE consumers to bus.
func registerSinks(ctx context.Context, settings *conf.Settings, bus *events.EventBus, m *observability.Metrics) (*notification.Broadcaster, mqtt.Client, error) {
	log := logger.Global().Module("worker")
	rt := settings.Realtime

	var mqttClient mqtt.Client
	if rt.MQTT.Enabled {
		mqttClient = mqtt.NewClient(mqtt.ConfigFromSettings(settings), m.MQTT)
		connectCtx, cancel := context.WithTimeout(ctx, mqttConnectTimeout)
		err := mqttClient.Connect(connectCtx)
		cancel()
		if err != nil {
			// The MQTT consumer retries on later events; plays are still recorded.
			log.Warn("MQTT connect failed, continuing without broker", logger.Error(err))
		}
		if err := bus.RegisterConsumer(notification.NewMQTTConsumer(mqttClient, rt.MQTT.TopicPrefix)); err != nil {
			return nil, mqttClient, err
		}
	}

	push, err := notification.NewPushConsumerFromSettings(settings, m.Notification)
	if err != nil {
		return nil, mqttClient, err
	}
	if push != nil {
		if err := bus.RegisterConsumer(push); err != nil {
			return nil, mqttClient, err
		}
	}

	var broadcaster *notification.Broadcaster
	if rt.SSE.Enabled {
		broadcaster = notification.NewBroadcaster(notification.DefaultClientBuffer, m.Notification)
		if err := bus.RegisterConsumer(broadcaster); err != nil {
			return nil, mqttClient, err
		}
	}

	return broadcaster, mqttClient, nil
}
