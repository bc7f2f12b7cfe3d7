package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, run runFunc, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(run)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd_Flags(t *testing.T) {
	var got runOptions
	_, err := execute(t, func(_ context.Context, opts runOptions) error {
		got = opts
		return nil
	}, "-c", "config.json", "-j", "job.json", "-v")

	require.NoError(t, err)
	assert.Equal(t, "config.json", got.ConfigPath)
	assert.Equal(t, "job.json", got.JobPath)
	assert.True(t, got.Verbose)
	assert.NotNil(t, got.Out)
}

func TestRootCmd_LongFlags(t *testing.T) {
	var got runOptions
	_, err := execute(t, func(_ context.Context, opts runOptions) error {
		got = opts
		return nil
	}, "--config", "c.yaml", "--job", "j.yaml")

	require.NoError(t, err)
	assert.Equal(t, "c.yaml", got.ConfigPath)
	assert.Equal(t, "j.yaml", got.JobPath)
	assert.False(t, got.Verbose)
}

func TestRootCmd_MissingFlags(t *testing.T) {
	called := false
	run := func(context.Context, runOptions) error {
		called = true
		return nil
	}

	_, err := execute(t, run, "-j", "job.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config")

	_, err = execute(t, run, "-c", "config.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job")

	assert.False(t, called)
}

func TestRootCmd_RejectsPositionalArgs(t *testing.T) {
	_, err := execute(t, func(context.Context, runOptions) error { return nil },
		"-c", "config.json", "-j", "job.json", "extra")
	require.Error(t, err)
}

func TestRootCmd_PropagatesRunError(t *testing.T) {
	boom := errors.New("boom")
	_, err := execute(t, func(context.Context, runOptions) error { return boom },
		"-c", "config.json", "-j", "job.json")
	require.ErrorIs(t, err, boom)
}

func TestRootCmd_Version(t *testing.T) {
	out, err := execute(t, func(context.Context, runOptions) error {
		t.Fatal("run must not be called for --version")
		return nil
	}, "--version")

	require.NoError(t, err)
	assert.Contains(t, out, version)
}
