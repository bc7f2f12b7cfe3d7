package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/target/report-runner/internal/bootstrap"
	"github.com/target/report-runner/internal/descriptor"
)

type runOptions struct {
	ConfigPath string
	JobPath    string
	Verbose    bool
	Out        io.Writer
}

type runFunc func(ctx context.Context, opts runOptions) error

func newRootCmd(run runFunc) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:           "report-runner",
		Short:         "Render a report job and deliver it by email",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.JobPath == "" {
				return errors.New(`required flag "job" not set`)
			}
			opts.Out = cmd.OutOrStdout()
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to the config descriptor")
	cmd.Flags().StringVarP(&opts.JobPath, "job", "j", "", "Path to the job descriptor")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Trace to the console at debug level")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runJob(ctx context.Context, opts runOptions) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger := bootstrap.InitLogger(bootstrap.LoggerOptions{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Verbose: opts.Verbose,
	})

	if opts.Verbose {
		fmt.Fprintf(opts.Out, "config: %s\njob: %s\n", opts.ConfigPath, opts.JobPath)
	}

	runFile, err := descriptor.LoadRunConfig(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config descriptor: %w", err)
	}
	jobFile, err := descriptor.LoadJob(opts.JobPath)
	if err != nil {
		return fmt.Errorf("load job descriptor: %w", err)
	}
	logger.DebugContext(ctx, "descriptors loaded",
		"job_id", jobFile.Job.ID,
		"legacy_job", jobFile.Legacy,
		"derived_id", jobFile.DerivedID,
		"legacy_config", runFile.Legacy,
	)

	pipeline, err := bootstrap.BuildPipeline(ctx, bootstrap.PipelineOptions{
		Config: cfg,
		Run:    runFile.Config,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := pipeline.Close(); cerr != nil {
			logger.WarnContext(ctx, "release resources", "error", cerr)
		}
	}()

	res, err := pipeline.Orchestrator.Run(ctx, jobFile.Job, runFile.Config)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "job finished",
		"job_id", res.JobID,
		"state", res.State.String(),
		"duration", res.Duration,
	)
	return nil
}
