package notification

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tphakala/radiotracker/internal/conf"
	"github.com/tphakala/radiotracker/internal/errors"
	"github.com/tphakala/radiotracker/internal/events"
	"github.com/tphakala/radiotracker/internal/logger"
	"github.com/tphakala/radiotracker/internal/observability/metrics"
	"github.com/tphakala/radiotracker/internal/privacy"
)

// DefaultPushTimeout bounds one delivery round across all URLs.
const DefaultPushTimeout = 10 * time.Second

// Sender delivers a message to every configured service. shoutrrr's
// ServiceRouter satisfies it.
type Sender interface {
	Send(message string, params *stypes.Params) []error
}

// PushConsumer forwards duplicate play alerts through shoutrrr.
type PushConsumer struct {
	name    string
	sender  Sender
	timeout time.Duration
	breaker *CircuitBreaker
	metrics *metrics.NotificationMetrics
}

// NewPushConsumer builds a shoutrrr router for urls. URL parse errors are
// returned with credentials scrubbed.
func NewPushConsumer(instance string, urls []string, timeout time.Duration, m *metrics.NotificationMetrics) (*PushConsumer, error) {
	if len(urls) == 0 {
		return nil, errors.Newf("at least one push URL is required").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if timeout <= 0 {
		timeout = DefaultPushTimeout
	}

	router, err := shoutrrr.CreateSender(slices.Clone(urls)...)
	if err != nil {
		return nil, errors.New(privacy.WrapError(err)).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Context("operation", "create_push_sender").
			Build()
	}
	router.Timeout = timeout
	router.SetLogger(log.New(io.Discard, "", 0))

	return newPushConsumer(instance, router, timeout, m), nil
}

// NewPushConsumerFromSettings returns nil when push delivery is disabled.
func NewPushConsumerFromSettings(settings *conf.Settings, m *metrics.NotificationMetrics) (*PushConsumer, error) {
	push := settings.Realtime.Push
	if !push.Enabled {
		return nil, nil
	}
	return NewPushConsumer(settings.Main.Name, push.URLs, push.Timeout, m)
}

func newPushConsumer(instance string, sender Sender, timeout time.Duration, m *metrics.NotificationMetrics) *PushConsumer {
	name := strings.TrimSpace(instance)
	if name == "" {
		name = "radiotracker"
	}
	return &PushConsumer{
		name:    name,
		sender:  sender,
		timeout: timeout,
		breaker: NewCircuitBreaker(DefaultCircuitBreakerConfig(), m, "shoutrrr"),
		metrics: m,
	}
}

// Name implements events.EventConsumer
func (p *PushConsumer) Name() string { return "push" }

// ProcessEvent sends duplicate alerts and ignores every other event type.
func (p *PushConsumer) ProcessEvent(event events.Event) error {
	alert, ok := event.(*events.DuplicateAlertEvent)
	if !ok {
		return nil
	}

	title, body := formatAlert(p.name, alert)

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	start := time.Now()
	err := p.breaker.Call(ctx, func(ctx context.Context) error {
		return p.send(ctx, title, body)
	})
	elapsed := time.Since(start).Seconds()

	if err != nil {
		p.metrics.RecordPush(metrics.StatusError, elapsed)
		GetLogger().Warn("push delivery failed",
			logger.String("station", alert.Station.Slug),
			logger.Error(err))
		return errors.New(err).
			Component("notification").
			Category(errors.CategoryNotification).
			Context("station", alert.Station.Slug).
			Build()
	}

	p.metrics.RecordPush(metrics.StatusSuccess, elapsed)
	GetLogger().Debug("push alert sent",
		logger.String("station", alert.Station.Slug),
		logger.Int64("count", alert.Count))
	return nil
}

func (p *PushConsumer) send(ctx context.Context, title, body string) error {
	params := stypes.Params{}
	params.SetTitle(title)

	done := make(chan error, 1)
	go func() {
		done <- firstError(p.sender.Send(body, &params))
	}()

	select {
	case err := <-done:
		if err != nil {
			return privacy.WrapError(err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func firstError(errs []error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

// formatAlert renders the push title and body for a duplicate alert.
func formatAlert(instance string, alert *events.DuplicateAlertEvent) (title, body string) {
	loc := alert.WindowStart.Location()
	station := alert.Station.Name
	if station == "" {
		station = alert.Station.Slug
	}

	title = fmt.Sprintf("[%s] Repeat on %s", instance, station)

	var b strings.Builder
	fmt.Fprintf(&b, "%s - %s played %d times today between %s and %s",
		alert.Song.Artist, alert.Song.Title, alert.Count,
		alert.WindowStart.Format("15:04"), alert.WindowEnd.Format("15:04"))
	if len(alert.Plays) > 0 {
		times := make([]string, 0, len(alert.Plays))
		for i := range alert.Plays {
			times = append(times, alert.Plays[i].PlayedAt.In(loc).Format("15:04"))
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(times, ", "))
	}
	return title, b.String()
}
