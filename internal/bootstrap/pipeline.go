package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/redis/go-redis/v9"

	"github.com/target/report-runner/config"
	"github.com/target/report-runner/internal/adapters/events"
	"github.com/target/report-runner/internal/adapters/mailer"
	"github.com/target/report-runner/internal/adapters/objectstore"
	"github.com/target/report-runner/internal/adapters/renderworker"
	"github.com/target/report-runner/internal/adapters/statusapi"
	"github.com/target/report-runner/internal/core"
	"github.com/target/report-runner/internal/data"
	"github.com/target/report-runner/internal/domain/model"
	"github.com/target/report-runner/internal/service/composer"
	"github.com/target/report-runner/internal/service/delivery"
	"github.com/target/report-runner/internal/service/orchestrator"
	"github.com/target/report-runner/internal/service/renderer"
)

// PipelineOptions groups the inputs for BuildPipeline.
type PipelineOptions struct {
	Config config.AppConfig
	// Run is the per-job config descriptor; it supplies SMTP, the status service URI,
	// object storage and the event exchange override.
	Run    model.RunConfig
	Logger *slog.Logger
}

// Pipeline is a fully wired orchestrator plus the resources it holds open.
type Pipeline struct {
	Orchestrator *orchestrator.Service
	closers      []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// Close releases every resource in reverse acquisition order.
func (p *Pipeline) Close() error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, c := range slices.Backward(p.closers) {
		if err := c.close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}

func (p *Pipeline) onClose(name string, fn func() error) {
	p.closers = append(p.closers, namedCloser{name: name, close: fn})
}

// BuildPipeline wires the orchestrator. It fails only for problems that make the job
// impossible to run (no SMTP transport, no status service URI, no render worker).
// Optional infrastructure that cannot be reached is logged and left out.
func BuildPipeline(ctx context.Context, opts PipelineOptions) (*Pipeline, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config
	p := &Pipeline{}

	smtp, err := mailer.New(mailer.Options{
		SMTP:    opts.Run.SMTP,
		Timeout: cfg.Delivery.SMTPTimeout,
		Retry:   1,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("configure smtp transport: %w", err)
	}

	status, err := buildStatusClient(ctx, logger, cfg.Status, opts.Run.StatusAPIURI)
	if err != nil {
		return nil, err
	}

	factory, err := renderworker.NewSpawner(renderworker.Options{
		WorkerPath:     cfg.Render.WorkerPath,
		Env:            engineEnv(cfg.Render),
		MemoryLimit:    cfg.Render.MemoryLimit,
		SampleInterval: cfg.Render.SampleInterval,
		StderrLimit:    cfg.Render.StderrLimit,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("configure render worker: %w", err)
	}

	obs := buildObservability(logger, cfg.Observability, OnCallEmail{
		Sender:     smtp,
		Recipients: cfg.Delivery.OnCallEmails,
	})
	p.onClose("statsd", obs.Close)

	svcOpts := orchestrator.ServiceOptions{
		Renderer: renderer.NewService(renderer.ServiceOptions{
			Factory: factory,
			Config:  renderer.Config{Timeout: cfg.Render.Timeout, ReleaseWait: cfg.Render.ReleaseWait},
			Logger:  logger,
		}),
		Router: delivery.NewPlanner(delivery.PlannerOptions{
			ArchiveDir: cfg.Delivery.ArchiveDir,
			Store: objectstore.New(objectstore.Options{
				Timeout: cfg.Delivery.ObjectStorageTimeout,
				Logger:  logger,
			}),
			Logger: logger,
		}),
		Composer: composer.New(composer.Options{AdminContact: cfg.Delivery.AdminContact}),
		Mailer:   smtp,
		Status:   status,
		WorkDir:  cfg.WorkDir,
		Metrics:  obs.Metrics,
		Logger:   logger,
	}
	if obs.FailureNotifier.Enabled() {
		svcOpts.OnCall = obs.FailureNotifier
	}
	if obs.Pushgateway != nil {
		svcOpts.Pusher = obs.Pushgateway
	}

	if cfg.Redis.Enabled {
		if client := connectRedis(logger, cfg.Redis); client != nil {
			p.onClose("redis", client.Close)
			cache := data.NewRedisCacheRepo(client, cfg.Redis.KeyPrefix)
			svcOpts.Locker = core.NewRunLockService(core.RunLockServiceOptions{Cache: cache, TTL: cfg.Cache.LockTTL})
			svcOpts.Snapshots = core.NewStatusSnapshotCache(cache, cfg.Cache.StatusCacheTTL)
		}
	}

	if cfg.Postgres.Enabled {
		if history := connectHistory(ctx, logger, cfg.Postgres, p); history != nil {
			svcOpts.History = history
		}
	}

	if publisher := dialEvents(logger, cfg.Observability.Events, opts.Run.Queue); publisher != nil {
		p.onClose("amqp", publisher.Close)
		svcOpts.Events = publisher
	}

	p.Orchestrator = orchestrator.NewService(svcOpts)
	return p, nil
}

func buildStatusClient(ctx context.Context, logger *slog.Logger, cfg config.StatusConfig, uri string) (*statusapi.Client, error) {
	base := &http.Client{}
	hc, err := statusapi.NewAuthenticatedHTTPClient(ctx, cfg.Auth, base)
	if err != nil {
		// Status calls are best-effort; an unauthenticated client still lets the
		// job run and the service will log the rejected calls.
		logger.WarnContext(ctx, "status service authentication unavailable", "error", err)
		hc = base
	}
	client, err := statusapi.NewClient(statusapi.Options{
		BaseURL:    uri,
		HTTPClient: hc,
		Timeout:    cfg.Timeout,
		Retry:      cfg.Retry,
	})
	if err != nil {
		return nil, fmt.Errorf("configure status client: %w", err)
	}
	return client, nil
}

func engineEnv(cfg config.RenderConfig) []string {
	if cfg.EngineCommand == "" {
		return nil
	}
	return []string{"RENDER_ENGINE_COMMAND=" + cfg.EngineCommand}
}

//nolint:ireturn // the concrete client type depends on the redis topology.
func connectRedis(logger *slog.Logger, cfg config.RedisConfig) redis.UniversalClient {
	client, err := ConnectRedis(DatabaseConfig{RedisConfig: cfg, Logger: logger})
	if err != nil {
		logger.Warn("redis unavailable; running without job lock and status cache", "error", err)
		return nil
	}
	return client
}

func connectHistory(ctx context.Context, logger *slog.Logger, cfg config.DBConfig, p *Pipeline) *data.DeliveryHistoryRepo {
	db, err := ConnectDB(DatabaseConfig{DBConfig: cfg, Logger: logger})
	if err != nil {
		logger.WarnContext(ctx, "database unavailable; delivery history disabled", "error", err)
		return nil
	}
	p.onClose("postgres", db.Close)

	if cfg.RunMigrationsOnStart {
		if err := RunMigrations(ctx, db, logger); err != nil {
			logger.WarnContext(ctx, "delivery history disabled", "error", err)
			return nil
		}
	}
	return data.NewDeliveryHistoryRepo(db)
}

// dialEvents connects the lifecycle event publisher. A queue block in the job's
// config descriptor names the exchange and its type.
func dialEvents(logger *slog.Logger, cfg config.EventsConfig, queue *model.QueueConfig) *events.Publisher {
	if !cfg.Enabled() {
		return nil
	}
	exchange, kind := cfg.Exchange, ""
	if queue != nil && queue.Name != "" {
		exchange, kind = queue.Name, queue.Type
	}
	publisher, err := events.Dial(events.Options{
		URL:      cfg.AMQPURL,
		Exchange: exchange,
		Kind:     kind,
		Timeout:  cfg.Timeout,
		Logger:   logger,
	})
	if err != nil {
		logger.Warn("lifecycle events disabled", "exchange", exchange, "error", err)
		return nil
	}
	return publisher
}
