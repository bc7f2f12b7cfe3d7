package bootstrap

import (
	"log/slog"

	"github.com/target/report-runner/config"
	"github.com/target/report-runner/internal/observability/notify/email"
	"github.com/target/report-runner/internal/observability/notify/pagerduty"
	"github.com/target/report-runner/internal/observability/notify/slack"
	"github.com/target/report-runner/internal/observability/prom"
	"github.com/target/report-runner/internal/observability/statsd"
	"github.com/target/report-runner/internal/service/failurenotifier"
)

// ObservabilityContainer holds metrics and on-call adapters for one run.
type ObservabilityContainer struct {
	Metrics         statsd.Sink
	Pushgateway     *prom.Sink
	StatsdClient    *statsd.Client
	FailureNotifier *failurenotifier.Service
}

// Close releases the statsd socket.
func (c ObservabilityContainer) Close() error {
	if c.StatsdClient == nil {
		return nil
	}
	return c.StatsdClient.Close()
}

// buildObservability configures metrics and notification adapters. Misconfigured
// adapters are logged and skipped; observability never blocks a job.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig, oncall OnCallEmail) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var out ObservabilityContainer
	if cfg.Metrics.StatsdEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			out.StatsdClient = client
		}
	}
	out.Pushgateway = prom.NewSink(prom.Config{
		URL:       cfg.Metrics.PushgatewayURL,
		Namespace: cfg.Metrics.Prefix,
		Logger:    obsLogger,
	})

	var sinks []statsd.Sink
	if out.StatsdClient != nil {
		sinks = append(sinks, out.StatsdClient)
	}
	if out.Pushgateway != nil {
		sinks = append(sinks, out.Pushgateway)
	}
	out.Metrics = statsd.NewMulti(sinks...)

	out.FailureNotifier = buildFailureNotifier(obsLogger, cfg.Notifications, oncall)
	return out
}

// OnCallEmail is the optional email leg of on-call fan-out.
type OnCallEmail struct {
	Sender     email.Sender
	Recipients []string
}

func buildFailureNotifier(
	logger *slog.Logger,
	cfg config.ObservabilityNotificationsConfig,
	oncall OnCallEmail,
) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{Logger: baseLogger})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 3)

	if oncall.Sender != nil && len(oncall.Recipients) > 0 {
		sink, err := email.NewSink(oncall.Sender, oncall.Recipients)
		if err != nil {
			baseLogger.Error("failed to initialise on-call email notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "email", Sink: sink})
		}
	}

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger: baseLogger,
		Sinks:  sinks,
	})
}
