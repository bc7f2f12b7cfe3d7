// Package prom adapts the statsd.Sink surface onto a Prometheus registry that is
// pushed to a Pushgateway when the job finishes. A one-shot process exits before any
// scraper could reach it, so metrics are pushed rather than served.
package prom

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/target/report-runner/internal/observability/statsd"
)

// Config configures the Pushgateway sink.
type Config struct {
	URL       string
	Job       string
	Namespace string
	Grouping  map[string]string
	Logger    *slog.Logger
}

// Sink accumulates metrics in a private registry until Push is called.
type Sink struct {
	cfg      Config
	registry *prometheus.Registry
	logger   *slog.Logger

	mu       sync.Mutex
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
	timings  map[string]*prometheus.HistogramVec
	// labels pins the label set of each metric name to the one seen first.
	labels map[string][]string
}

var _ statsd.Sink = (*Sink)(nil)

// NewSink returns nil when no Pushgateway URL is configured.
func NewSink(cfg Config) *Sink {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil
	}
	if cfg.Job == "" {
		cfg.Job = "report_runner"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		logger:   logger.With("component", "prom_push"),
		counters: make(map[string]*prometheus.CounterVec),
		gauges:   make(map[string]*prometheus.GaugeVec),
		timings:  make(map[string]*prometheus.HistogramVec),
		labels:   make(map[string][]string),
	}
}

// Registry exposes the underlying registry for tests.
func (s *Sink) Registry() *prometheus.Registry {
	if s == nil {
		return nil
	}
	return s.registry
}

// Count adds value to a counter.
func (s *Sink) Count(name string, value int64, tags map[string]string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, labels := s.project(name, tags)
	vec, ok := s.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: s.cfg.Namespace,
			Name:      metricName(name) + "_total",
			Help:      "Count of " + name,
		}, keys)
		if !s.register(vec) {
			return
		}
		s.counters[name] = vec
	}
	vec.With(labels).Add(float64(value))
}

// Gauge sets a gauge.
func (s *Sink) Gauge(name string, value float64, tags map[string]string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, labels := s.project(name, tags)
	vec, ok := s.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: s.cfg.Namespace,
			Name:      metricName(name),
			Help:      "Gauge of " + name,
		}, keys)
		if !s.register(vec) {
			return
		}
		s.gauges[name] = vec
	}
	vec.With(labels).Set(value)
}

// Timing observes a duration in seconds.
func (s *Sink) Timing(name string, value time.Duration, tags map[string]string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, labels := s.project(name, tags)
	vec, ok := s.timings[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: s.cfg.Namespace,
			Name:      metricName(name) + "_seconds",
			Help:      "Duration of " + name,
			Buckets:   prometheus.ExponentialBuckets(0.05, 4, 10),
		}, keys)
		if !s.register(vec) {
			return
		}
		s.timings[name] = vec
	}
	vec.With(labels).Observe(value.Seconds())
}

// Push sends everything gathered so far to the Pushgateway.
func (s *Sink) Push(ctx context.Context) error {
	if s == nil {
		return nil
	}
	pusher := push.New(s.cfg.URL, s.cfg.Job).Gatherer(s.registry)
	for k, v := range s.cfg.Grouping {
		pusher = pusher.Grouping(k, v)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", s.cfg.URL, err)
	}
	return nil
}

func (s *Sink) register(c prometheus.Collector) bool {
	if err := s.registry.Register(c); err != nil {
		s.logger.Debug("metric registration rejected", "error", err)
		return false
	}
	return true
}

// project maps tags onto the label set pinned for name. Missing labels are empty and
// labels not in the pinned set are dropped.
func (s *Sink) project(name string, tags map[string]string) ([]string, prometheus.Labels) {
	keys, ok := s.labels[name]
	if !ok {
		keys = labelKeys(tags)
		s.labels[name] = keys
	}
	labels := make(prometheus.Labels, len(keys))
	for _, k := range keys {
		labels[k] = tags[k]
	}
	return keys, labels
}

func labelKeys(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func metricName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_", " ", "_", "/", "_").Replace(strings.TrimSpace(name))
}
