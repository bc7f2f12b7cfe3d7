package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestAppConfig_Defaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Fatalf("unexpected log defaults: %q %q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.WorkDir != os.TempDir() {
		t.Fatalf("expected work dir to default to temp dir, got %q", cfg.WorkDir)
	}
	if cfg.Delivery.ArchiveDir != filepath.Join(os.TempDir(), "report-archive") {
		t.Fatalf("unexpected archive dir %q", cfg.Delivery.ArchiveDir)
	}
	if cfg.Render.Timeout != 30*time.Minute {
		t.Fatalf("unexpected render timeout %v", cfg.Render.Timeout)
	}
	if cfg.Render.MemoryLimit != 2<<30 {
		t.Fatalf("unexpected memory limit %d", cfg.Render.MemoryLimit)
	}
	if cfg.Render.ReleaseWait != 2*time.Second {
		t.Fatalf("unexpected release wait %v", cfg.Render.ReleaseWait)
	}
	if cfg.Status.Retry != 1 || cfg.Status.Timeout != 10*time.Second {
		t.Fatalf("unexpected status defaults: %+v", cfg.Status)
	}
	if cfg.Postgres.Enabled || cfg.Redis.Enabled {
		t.Fatal("expected database and redis to be opt-in")
	}
	if cfg.Cache.LockTTL != 45*time.Minute {
		t.Fatalf("unexpected lock ttl %v", cfg.Cache.LockTTL)
	}
}

func TestAppConfig_ParseEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("WORK_DIR", "/var/tmp/reports")
	t.Setenv("ARCHIVE_DIR", "/srv/archive")
	t.Setenv("RENDER_ENGINE_COMMAND", "  /opt/engine/render --quiet ")
	t.Setenv("RENDER_TIMEOUT", "5m")
	t.Setenv("RENDER_MEMORY_LIMIT", "1048576")
	t.Setenv("ONCALL_EMAILS", "ops@example.com, ,dba@example.com")
	t.Setenv("STATUS_API_RETRY", "4")
	t.Setenv("STATUS_API_AUTH_ENABLED", "true")
	t.Setenv("STATUS_API_AUTH_CLIENT_ID", "runner")
	t.Setenv("STATUS_API_AUTH_CLIENT_SECRET", "s3cret")
	t.Setenv("STATUS_API_AUTH_ISSUER", "https://login.example.com/")
	t.Setenv("STATUS_API_AUTH_SCOPES", "status.write,status.read")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_URI", "cache:6379")
	t.Setenv("JOB_LOCK_TTL", "10m")
	t.Setenv("DB_ENABLED", "true")
	t.Setenv("DB_HOST", "pg")
	t.Setenv("EVENTS_AMQP_URL", "amqp://guest:guest@mq:5672/")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.LogLevel != "debug" || cfg.LogFormat != "text" {
		t.Fatalf("unexpected log settings: %q %q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.Delivery.ArchiveDir != "/srv/archive" {
		t.Fatalf("unexpected archive dir %q", cfg.Delivery.ArchiveDir)
	}
	if cfg.Render.EngineCommand != "/opt/engine/render --quiet" {
		t.Fatalf("engine command not trimmed: %q", cfg.Render.EngineCommand)
	}
	if cfg.Render.Timeout != 5*time.Minute || cfg.Render.MemoryLimit != 1048576 {
		t.Fatalf("unexpected render config: %+v", cfg.Render)
	}
	if !reflect.DeepEqual(cfg.Delivery.OnCallEmails, []string{"ops@example.com", "dba@example.com"}) {
		t.Fatalf("unexpected on-call list: %#v", cfg.Delivery.OnCallEmails)
	}
	if cfg.Status.Retry != 1 {
		t.Fatalf("expected retry to be clamped to 1, got %d", cfg.Status.Retry)
	}

	expectedAuth := StatusAuthConfig{
		Enabled:      true,
		ClientID:     "runner",
		ClientSecret: "s3cret",
		Issuer:       "https://login.example.com",
		Scopes:       []string{"status.write", "status.read"},
	}
	if !reflect.DeepEqual(cfg.Status.Auth, expectedAuth) {
		t.Fatalf("unexpected auth configuration:\nexpected: %#v\ngot:      %#v", expectedAuth, cfg.Status.Auth)
	}
	if !cfg.Redis.Enabled || cfg.Redis.URI != "cache:6379" || cfg.Cache.LockTTL != 10*time.Minute {
		t.Fatalf("unexpected redis config: %+v %+v", cfg.Redis, cfg.Cache)
	}
	if !cfg.Postgres.Enabled || cfg.Postgres.Host != "pg" {
		t.Fatalf("unexpected postgres config: %+v", cfg.Postgres)
	}
	if !cfg.Observability.Events.Enabled() || cfg.Observability.Events.Exchange != "reports" {
		t.Fatalf("unexpected events config: %+v", cfg.Observability.Events)
	}
}

func TestStatusAuthConfig_Sanitize_DisablesIncomplete(t *testing.T) {
	cfg := StatusAuthConfig{Enabled: true, ClientID: "runner"}
	cfg.Sanitize()
	if cfg.Enabled {
		t.Fatal("expected auth to be disabled without a token url or issuer")
	}

	cfg = StatusAuthConfig{Enabled: true, TokenURL: "https://login/token"}
	cfg.Sanitize()
	if cfg.Enabled {
		t.Fatal("expected auth to be disabled without a client id")
	}
}

func TestRenderConfig_Sanitize(t *testing.T) {
	cfg := RenderConfig{Timeout: -1, MemoryLimit: -5, ReleaseWait: -1, StderrLimit: 0, WorkerPath: "bin/worker"}
	cfg.Sanitize()

	if cfg.Timeout != defaultRenderTimeout || cfg.MemoryLimit != defaultRenderMemoryLimit {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ReleaseWait != defaultReleaseWait || cfg.StderrLimit != defaultStderrLimit {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !filepath.IsAbs(cfg.WorkerPath) {
		t.Fatalf("expected worker path to be absolute, got %q", cfg.WorkerPath)
	}

	cfg = RenderConfig{MemoryLimit: 0}
	cfg.Sanitize()
	if cfg.MemoryLimit != 0 {
		t.Fatal("a zero memory limit disables the watchdog and must be preserved")
	}
	if cfg.WorkerPath == "" {
		t.Fatal("expected worker path fallback")
	}
}

func TestRedisConfig_Sanitize(t *testing.T) {
	cfg := RedisConfig{Enabled: true, URI: " ", UseSentinel: true, SentinelNodes: []string{" "}}
	cfg.Sanitize()
	if cfg.UseSentinel {
		t.Fatal("expected sentinel mode to be disabled without nodes")
	}
	if cfg.Enabled {
		t.Fatal("expected redis to be disabled without any address")
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{Enabled: true, StatsdAddress: " "}
	cfg.Sanitize()
	if cfg.StatsdEnabled() {
		t.Fatalf("expected statsd to be disabled when address is empty")
	}

	cfg = ObservabilityMetricsConfig{
		Enabled:        true,
		StatsdAddress:  " statsd:1234 ",
		PushgatewayURL: " http://pushgateway:9091 ",
	}
	cfg.Sanitize()
	if !cfg.StatsdEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" {
		t.Fatalf("expected address to be trimmed, got %q", cfg.StatsdAddress)
	}
	if cfg.PushgatewayURL != "http://pushgateway:9091" {
		t.Fatalf("unexpected pushgateway url %q", cfg.PushgatewayURL)
	}

	cfg = ObservabilityMetricsConfig{Enabled: true, PushgatewayURL: "not a url"}
	cfg.Sanitize()
	if cfg.PushgatewayURL != "" {
		t.Fatalf("expected invalid pushgateway url to be dropped, got %q", cfg.PushgatewayURL)
	}

	cfg = ObservabilityMetricsConfig{Enabled: false, PushgatewayURL: "http://pushgateway:9091"}
	cfg.Sanitize()
	if cfg.PushgatewayURL != "" {
		t.Fatal("expected pushgateway to be disabled with metrics off")
	}
}

func TestObservabilityNotificationsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityNotificationsConfig{
		Enabled:    true,
		RetryLimit: -1,
		Slack:      SlackNotificationConfig{Enabled: true, WebhookURL: " ", Channel: "  "},
		PagerDuty:  PagerDutyNotificationConfig{Enabled: true, RoutingKey: " "},
	}
	cfg.Sanitize()

	if cfg.Timeout <= 0 {
		t.Fatalf("expected timeout to fall back to default, got %v", cfg.Timeout)
	}
	if cfg.RetryLimit != 0 {
		t.Fatalf("expected retry limit to be clamped to 0, got %d", cfg.RetryLimit)
	}
	if cfg.Slack.Enabled || cfg.PagerDuty.Enabled {
		t.Fatal("expected sinks without credentials to be disabled")
	}
	if cfg.PagerDuty.Source != "report-runner" || cfg.PagerDuty.Component != "render-worker" {
		t.Fatalf("unexpected pagerduty defaults: %+v", cfg.PagerDuty)
	}

	cfg = ObservabilityNotificationsConfig{
		Enabled:   false,
		Slack:     SlackNotificationConfig{Enabled: true, WebhookURL: "https://hooks.slack.com/services/test"},
		PagerDuty: PagerDutyNotificationConfig{Enabled: true, RoutingKey: "abc"},
	}
	cfg.Sanitize()
	if cfg.Slack.Enabled || cfg.PagerDuty.Enabled {
		t.Fatal("expected sinks to be disabled when top-level notifications disabled")
	}
}
