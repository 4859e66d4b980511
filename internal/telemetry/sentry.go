// Package telemetry reports internal errors to Sentry with privacy filtering.
package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/DeGirum/face-recognition/internal/conf"
	"github.com/DeGirum/face-recognition/internal/errors"
	"github.com/DeGirum/face-recognition/internal/logger"
	"github.com/DeGirum/face-recognition/internal/privacy"
)

const flushTimeout = 2 * time.Second

// allowedExtras survive the privacy filter.
var allowedExtras = map[string]bool{
	"error_type": true,
	"component":  true,
}

// Init starts Sentry reporting when enabled and routes enhanced errors to it.
// The returned flush func must be called before exit; it is a no-op when
// reporting is disabled.
func Init(settings conf.SentrySettings, release string, log logger.Logger) (flush func(), err error) {
	if !settings.Enabled || settings.DSN == "" {
		errors.SetTelemetryReporter(nil)
		return func() {}, nil
	}

	err = sentry.Init(sentry.ClientOptions{
		Dsn:              settings.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          "facetrack@" + release,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return func() {}, fmt.Errorf("sentry initialization failed: %w", err)
	}

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	if log != nil {
		log.Info("error telemetry enabled", logger.String("release", release))
	}
	return func() { sentry.Flush(flushTimeout) }, nil
}

// applyPrivacyFilters strips host identity and scrubs credentials from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	for k := range event.Extra {
		if !allowedExtras[k] {
			delete(event.Extra, k)
		}
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	event.Message = privacy.ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = privacy.ScrubMessage(event.Exception[i].Value)
	}
	return event
}
