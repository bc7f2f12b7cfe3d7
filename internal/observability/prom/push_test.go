package prom

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSink_NilWithoutURL(t *testing.T) {
	assert.Nil(t, NewSink(Config{URL: "  "}))

	var s *Sink
	assert.NotPanics(t, func() {
		s.Count("x", 1, nil)
		s.Gauge("x", 1, nil)
		s.Timing("x", time.Second, nil)
	})
	assert.NoError(t, s.Push(context.Background()))
}

func TestSink_ProjectsOntoFirstLabelSet(t *testing.T) {
	s := NewSink(Config{URL: "http://unused", Namespace: "rr"})
	require.NotNil(t, s)

	s.Count("stage.result", 1, map[string]string{"stage": "render", "result": "success"})
	s.Count("stage.result", 2, map[string]string{"stage": "render", "result": "success", "extra": "dropped"})
	s.Count("stage.result", 1, map[string]string{"stage": "send", "result": "error"})

	expected := `
# HELP rr_stage_result_total Count of stage.result
# TYPE rr_stage_result_total counter
rr_stage_result_total{result="error",stage="send"} 1
rr_stage_result_total{result="success",stage="render"} 3
`
	require.NoError(t, testutil.GatherAndCompare(s.Registry(), strings.NewReader(expected), "rr_stage_result_total"))
}

func TestSink_GaugeAndTiming(t *testing.T) {
	s := NewSink(Config{URL: "http://unused"})
	s.Gauge("job.artifact_bytes", 42, map[string]string{"format": "pdf"})
	s.Timing("job.duration", 1500*time.Millisecond, map[string]string{"format": "pdf"})

	count, err := testutil.GatherAndCount(s.Registry(), "job_artifact_bytes", "job_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSink_Push(t *testing.T) {
	var (
		mu     sync.Mutex
		path   string
		body   string
		method string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		path, body, method = r.URL.Path, string(b), r.Method
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSink(Config{URL: srv.URL, Grouping: map[string]string{"instance": "host1"}})
	s.Count("job.outcome", 1, map[string]string{"state": "completed"})

	require.NoError(t, s.Push(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/report_runner/instance/host1", path)
	assert.NotEmpty(t, body)
}

func TestSink_PushError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewSink(Config{URL: srv.URL})
	s.Count("job.outcome", 1, nil)
	err := s.Push(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "push metrics")
}
