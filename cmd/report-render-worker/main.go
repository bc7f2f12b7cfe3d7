// Command report-render-worker is the isolated half of the renderer. It reads one
// JSON render request from stdin, runs the engine named by RENDER_ENGINE_COMMAND
// and writes one JSON response to stdout. Logs go to stderr, which the parent keeps
// for diagnostics.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/target/report-runner/internal/bootstrap"
	"github.com/target/report-runner/internal/renderengine"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	logger := bootstrap.InitLogger(bootstrap.LoggerOptions{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
		Out:    os.Stderr,
	})

	var engine renderengine.Engine
	if cmdline := os.Getenv("RENDER_ENGINE_COMMAND"); cmdline != "" {
		ce, err := renderengine.NewCommandEngine(cmdline, nil)
		if err != nil {
			logger.ErrorContext(ctx, "invalid engine command", "error", err)
		} else {
			engine = ce
		}
	}

	w := renderengine.NewWorker(renderengine.WorkerOptions{Engine: engine, Logger: logger})
	if err := renderengine.Serve(ctx, os.Stdin, os.Stdout, w); err != nil {
		logger.ErrorContext(ctx, "render worker failed", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // the parent reads the exit status as an interop failure
	}
}
