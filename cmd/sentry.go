package cmd

import (
	"fmt"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/radiotracker/internal/buildinfo"
	"github.com/tphakala/radiotracker/internal/conf"
	"github.com/tphakala/radiotracker/internal/errors"
	"github.com/tphakala/radiotracker/internal/privacy"
)

// initSentry enables error reporting when sentry.enabled is set. Events are
// scrubbed of stream URLs, credentials and host details before sending.
func initSentry(settings *conf.Settings, info *buildinfo.Context) error {
	if !settings.Sentry.Enabled {
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          info.Release(),
		BeforeSend:       beforeSend,
	})
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}

	errors.SetPrivacyScrubber(privacy.ScrubMessage)
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	return nil
}

// beforeSend strips host-identifying data from every event.
func beforeSend(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	event.Message = privacy.ScrubMessage(event.Message)

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	for i := range event.Exception {
		event.Exception[i].Value = privacy.ScrubMessage(event.Exception[i].Value)
	}
	return event
}
