// Command report-runner renders one report job and emails the result.
//
// Usage:
//
//	report-runner -c <config descriptor> -j <job descriptor> [-v]
//
// The process exits 0 once the job reached a terminal status, whether Completed
// or Failed; failures are reported through the status service and the email.
// A non-zero exit means the job could not be started.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// version is set through ldflags at build time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(runJob).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1) //nolint:forbidigo // the job could not be started
	}
}
