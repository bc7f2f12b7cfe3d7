package config

import (
	"net/url"
	"strings"
	"time"
)

const defaultObservabilityName = "report-runner"

// ObservabilityConfig groups configuration that controls metrics, lifecycle events
// and on-call fan-out.
type ObservabilityConfig struct {
	Metrics       ObservabilityMetricsConfig
	Notifications ObservabilityNotificationsConfig
	Events        EventsConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Notifications.Sanitize()
	c.Events.Sanitize()
}

// ObservabilityMetricsConfig controls emission of metrics to StatsD and a Prometheus Pushgateway.
type ObservabilityMetricsConfig struct {
	Enabled        bool   `env:"OBSERVABILITY_METRICS_ENABLED"         envDefault:"false"`
	StatsdAddress  string `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS"  envDefault:"127.0.0.1:8125"`
	Prefix         string `env:"OBSERVABILITY_METRICS_PREFIX"          envDefault:"report_runner"`
	PushgatewayURL string `env:"OBSERVABILITY_METRICS_PUSHGATEWAY_URL"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	c.Prefix = strings.Trim(strings.TrimSpace(c.Prefix), ".")
	c.PushgatewayURL = strings.TrimSpace(c.PushgatewayURL)
	if c.PushgatewayURL != "" {
		if u, err := url.Parse(c.PushgatewayURL); err != nil || u.Scheme == "" || u.Host == "" {
			c.PushgatewayURL = ""
		}
	}
	if !c.Enabled {
		c.PushgatewayURL = ""
	}
}

// StatsdEnabled returns true when StatsD emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) StatsdEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// ObservabilityNotificationsConfig controls outbound on-call notifications for
// infrastructure-level render failures. The email sink uses ONCALL_EMAILS.
type ObservabilityNotificationsConfig struct {
	Enabled    bool                        `env:"OBSERVABILITY_NOTIFICATIONS_ENABLED"     envDefault:"true"`
	Timeout    time.Duration               `env:"OBSERVABILITY_NOTIFICATIONS_TIMEOUT"     envDefault:"5s"`
	RetryLimit int                         `env:"OBSERVABILITY_NOTIFICATIONS_RETRY_LIMIT" envDefault:"1"`
	Slack      SlackNotificationConfig     `envPrefix:"OBSERVABILITY_NOTIFICATIONS_SLACK_"`
	PagerDuty  PagerDutyNotificationConfig `envPrefix:"OBSERVABILITY_NOTIFICATIONS_PAGERDUTY_"`
}

// Sanitize normalises notification configuration values.
func (c *ObservabilityNotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	c.RetryLimit = max(c.RetryLimit, 0)

	c.Slack.sanitize()
	c.PagerDuty.sanitize()

	if !c.Enabled {
		c.Slack.Enabled = false
		c.PagerDuty.Enabled = false
		return
	}
	if c.Slack.Enabled && c.Slack.WebhookURL == "" {
		c.Slack.Enabled = false
	}
	if c.PagerDuty.Enabled && c.PagerDuty.RoutingKey == "" {
		c.PagerDuty.Enabled = false
	}
}

// SlackNotificationConfig controls Slack webhook fan-out.
type SlackNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	WebhookURL string `env:"WEBHOOK_URL"`
	Channel    string `env:"CHANNEL"`
	Username   string `env:"USERNAME"    envDefault:"report-runner"`
}

func (c *SlackNotificationConfig) sanitize() {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	c.Channel = strings.TrimSpace(c.Channel)
	if c.Username = strings.TrimSpace(c.Username); c.Username == "" {
		c.Username = defaultObservabilityName
	}
}

// PagerDutyNotificationConfig controls PagerDuty Events API v2 fan-out.
type PagerDutyNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	RoutingKey string `env:"ROUTING_KEY"`
	Source     string `env:"SOURCE"      envDefault:"report-runner"`
	Component  string `env:"COMPONENT"   envDefault:"render-worker"`
}

func (c *PagerDutyNotificationConfig) sanitize() {
	c.RoutingKey = strings.TrimSpace(c.RoutingKey)
	if c.Source = strings.TrimSpace(c.Source); c.Source == "" {
		c.Source = defaultObservabilityName
	}
	if c.Component = strings.TrimSpace(c.Component); c.Component == "" {
		c.Component = "render-worker"
	}
}

// EventsConfig controls publication of job lifecycle events to RabbitMQ. A queue
// block in the job's config descriptor overrides Exchange.
type EventsConfig struct {
	AMQPURL  string        `env:"EVENTS_AMQP_URL"`
	Exchange string        `env:"EVENTS_EXCHANGE"        envDefault:"reports"`
	Timeout  time.Duration `env:"EVENTS_PUBLISH_TIMEOUT" envDefault:"5s"`
}

// Sanitize trims values and applies defaults.
func (c *EventsConfig) Sanitize() {
	c.AMQPURL = strings.TrimSpace(c.AMQPURL)
	c.Exchange = strings.TrimSpace(c.Exchange)
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
}

// Enabled reports whether an AMQP broker is configured.
func (c *EventsConfig) Enabled() bool {
	return c.AMQPURL != ""
}
