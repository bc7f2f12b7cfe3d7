// Package renderworker runs each render in a separate report-render-worker process.
//
// A Spawner starts one worker per render. The request is written to the worker's
// stdin as JSON and a single JSON response is read from its stdout once it exits.
// The worker runs in its own process group so a timeout, cancellation or memory
// overrun can kill it together with any engine process it started.
package renderworker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/target/report-runner/internal/core"
	"github.com/target/report-runner/internal/domain/model"
	"github.com/target/report-runner/internal/renderengine"
)

const (
	maxResponseBytes   = 4 << 20
	defaultStderrLimit = 64 << 10
	// reapTimeout bounds how long Render and Close wait for a killed worker to exit.
	reapTimeout = 10 * time.Second
)

var (
	_ core.BoundaryFactory = (*Spawner)(nil)
	_ core.RenderBoundary  = (*Process)(nil)
)

// Options configures a Spawner.
type Options struct {
	// WorkerPath is the worker executable.
	WorkerPath string
	// Args are passed to the worker before any other argument.
	Args []string
	// Env is appended to the parent's environment.
	Env []string
	// MemoryLimit is the resident-set ceiling in bytes; 0 disables the watchdog.
	MemoryLimit int64
	// SampleInterval is how often the watchdog samples the worker.
	SampleInterval time.Duration
	// StderrLimit caps retained stderr; only the tail is kept.
	StderrLimit int
	Logger      *slog.Logger
}

// Spawner implements core.BoundaryFactory.
type Spawner struct {
	opts   Options
	logger *slog.Logger
}

// NewSpawner validates opts and returns a Spawner.
func NewSpawner(opts Options) (*Spawner, error) {
	opts.WorkerPath = strings.TrimSpace(opts.WorkerPath)
	if opts.WorkerPath == "" {
		return nil, errors.New("render worker path is required")
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = 250 * time.Millisecond
	}
	if opts.StderrLimit <= 0 {
		opts.StderrLimit = defaultStderrLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Spawner{opts: opts, logger: logger.With("component", "renderworker")}, nil
}

// Open starts a fresh worker process.
func (s *Spawner) Open(ctx context.Context) (core.RenderBoundary, error) {
	path, err := exec.LookPath(s.opts.WorkerPath)
	if err != nil {
		return nil, fmt.Errorf("locate render worker %s: %w", s.opts.WorkerPath, err)
	}

	// #nosec G204 -- the worker path comes from operator configuration
	cmd := exec.Command(path, s.opts.Args...)
	cmd.Env = append(os.Environ(), s.opts.Env...)
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("render worker stdin: %w", err)
	}
	stdout := newTailBuffer(maxResponseBytes)
	stderr := newTailBuffer(s.opts.StderrLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("start render worker %s: %w", path, err)
	}

	p := &Process{
		cmd:      cmd,
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
		done:     make(chan struct{}),
		limit:    s.opts.MemoryLimit,
		interval: s.opts.SampleInterval,
		logger:   s.logger.With("pid", cmd.Process.Pid),
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	p.logger.DebugContext(ctx, "render worker started", "path", path)
	return p, nil
}

// Process is one running worker. It serves a single Render call.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *tailBuffer
	stderr *tailBuffer

	done    chan struct{}
	waitErr error

	limit    int64
	interval time.Duration
	peakRSS  atomic.Int64
	oom      atomic.Bool
	killed   atomic.Bool

	used      atomic.Bool
	closeOnce sync.Once
	logger    *slog.Logger
}

// PID returns the worker's process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Render sends req and waits for the worker to answer and exit.
func (p *Process) Render(ctx context.Context, req model.RenderRequest) model.RenderOutcome {
	if !p.used.CompareAndSwap(false, true) {
		return model.RenderFailed(model.FailureInterop, "the render worker was already used")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return model.RenderFailed(model.FailureInterop, fmt.Sprintf("encode render request: %v", err))
	}

	stopWatch := p.watch()
	defer stopWatch()

	go func() {
		// A worker that dies early closes its end of the pipe; the resulting write
		// error is reported through the exit status instead.
		_, _ = p.stdin.Write(append(payload, '\n'))
		_ = p.stdin.Close()
	}()

	select {
	case <-p.done:
	case <-ctx.Done():
		p.kill()
		if !p.reap() {
			return model.RenderFailed(model.FailureIsolation, "the render worker did not exit after being killed")
		}
		if p.oom.Load() {
			return p.outOfMemory()
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return model.RenderFailed(model.FailureIsolation, "the render did not finish within the allotted time")
		}
		return model.RenderFailed(model.FailureIsolation, "the render was canceled")
	}
	return p.classify()
}

// Close kills the worker if it is still running and waits for it to be reaped.
func (p *Process) Close() error {
	var err error
	p.closeOnce.Do(func() {
		select {
		case <-p.done:
		default:
			p.kill()
			if !p.reap() {
				err = fmt.Errorf("render worker %d did not exit", p.PID())
			}
		}
		_ = p.stdin.Close()
	})
	return err
}

func (p *Process) classify() model.RenderOutcome {
	stderr := strings.TrimSpace(p.stderr.String())

	if p.oom.Load() {
		return p.outOfMemory()
	}
	sig, signalled := killedBySignal(p.cmd.ProcessState)
	// A memory warning on stderr counts only when the worker exited abnormally.
	if (signalled || p.waitErr != nil) && strings.Contains(strings.ToLower(stderr), "out of memory") {
		return p.outOfMemory()
	}
	if signalled {
		if sig == "killed" {
			// SIGKILL from outside is almost always the kernel OOM killer.
			return p.outOfMemory()
		}
		return model.RenderFailed(model.FailureIsolation, withStderr("the render worker was terminated by signal "+sig, stderr))
	}
	if p.waitErr != nil {
		code := -1
		if p.cmd.ProcessState != nil {
			code = p.cmd.ProcessState.ExitCode()
		}
		return model.RenderFailed(model.FailureIsolation,
			withStderr(fmt.Sprintf("the render worker crashed (exit code %d)", code), stderr))
	}

	var resp renderengine.Response
	if err := json.Unmarshal(p.stdout.Bytes(), &resp); err != nil {
		return model.RenderFailed(model.FailureInterop, fmt.Sprintf("malformed response from render worker: %v", err))
	}
	out := resp.Outcome()
	if err := out.Validate(); err != nil {
		return model.RenderFailed(model.FailureInterop, "the render worker returned "+err.Error())
	}
	return out
}

func (p *Process) outOfMemory() model.RenderOutcome {
	detail := "the render worker ran out of memory"
	if peak := p.peakRSS.Load(); peak > 0 && p.limit > 0 {
		detail = fmt.Sprintf("%s (resident %d MiB, limit %d MiB)", detail, peak>>20, p.limit>>20)
	}
	return model.RenderOutOfMemory(detail)
}

// watch samples the worker's resident set and kills it above the limit.
func (p *Process) watch() (stop func()) {
	if p.limit <= 0 {
		return func() {}
	}
	quit := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-p.done:
				return
			case <-ticker.C:
				rss, err := residentBytes(p.PID())
				if err != nil {
					if errors.Is(err, errRSSUnsupported) {
						return
					}
					continue
				}
				if rss > p.peakRSS.Load() {
					p.peakRSS.Store(rss)
				}
				if rss > p.limit {
					p.logger.Warn("render worker over memory limit", "rss_bytes", rss, "limit_bytes", p.limit)
					p.oom.Store(true)
					p.kill()
					return
				}
			}
		}
	}()
	return func() {
		close(quit)
		wg.Wait()
	}
}

func (p *Process) kill() {
	if p.killed.Swap(true) {
		return
	}
	if err := killProcessGroup(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("kill render worker", "error", err)
	}
}

func (p *Process) reap() bool {
	select {
	case <-p.done:
		return true
	case <-time.After(reapTimeout):
		return false
	}
}

func withStderr(msg, stderr string) string {
	if stderr == "" {
		return msg
	}
	return msg + ": " + firstLine(stderr)
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
