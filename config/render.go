package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultRenderTimeout     = 30 * time.Minute
	defaultRenderMemoryLimit = 2 << 30
	defaultReleaseWait       = 2 * time.Second
	defaultStderrLimit       = 64 << 10
	renderWorkerBinary       = "report-render-worker"
)

// RenderConfig controls the out-of-process render fault boundary.
type RenderConfig struct {
	// WorkerPath is the render worker executable. Empty resolves to report-render-worker
	// next to the running binary, falling back to $PATH lookup.
	WorkerPath string `env:"RENDER_WORKER_PATH"`

	// EngineCommand is the external engine command line run inside the worker.
	EngineCommand string `env:"RENDER_ENGINE_COMMAND"`

	// Timeout bounds a single render; the worker's process group is killed on expiry.
	Timeout time.Duration `env:"RENDER_TIMEOUT" envDefault:"30m"`

	// MemoryLimit is the resident-set ceiling in bytes; 0 disables the watchdog.
	MemoryLimit int64 `env:"RENDER_MEMORY_LIMIT" envDefault:"2147483648"`

	// ReleaseWait is how long to wait for a faulted worker to be reaped.
	ReleaseWait time.Duration `env:"RENDER_RELEASE_WAIT" envDefault:"2s"`

	// StderrLimit caps how much worker stderr is retained for diagnostics.
	StderrLimit int `env:"RENDER_STDERR_LIMIT" envDefault:"65536"`

	// SampleInterval controls how often the memory watchdog samples the worker.
	SampleInterval time.Duration `env:"RENDER_SAMPLE_INTERVAL" envDefault:"250ms"`
}

// Sanitize applies guardrails to render configuration values.
func (c *RenderConfig) Sanitize() {
	c.EngineCommand = strings.TrimSpace(c.EngineCommand)
	if c.Timeout <= 0 {
		c.Timeout = defaultRenderTimeout
	}
	if c.MemoryLimit < 0 {
		c.MemoryLimit = defaultRenderMemoryLimit
	}
	if c.ReleaseWait < 0 {
		c.ReleaseWait = defaultReleaseWait
	}
	if c.StderrLimit <= 0 {
		c.StderrLimit = defaultStderrLimit
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = 250 * time.Millisecond
	}
	c.WorkerPath = resolveWorkerPath(strings.TrimSpace(c.WorkerPath))
}

func resolveWorkerPath(p string) string {
	if p != "" {
		return absOrEmpty(p)
	}
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), renderWorkerBinary)
		if _, statErr := os.Stat(candidate); statErr == nil {
			return candidate
		}
	}
	return renderWorkerBinary
}
