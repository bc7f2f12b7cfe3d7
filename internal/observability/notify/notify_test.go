package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummary(t *testing.T) {
	tests := []struct {
		name    string
		payload JobFailurePayload
		want    string
	}{
		{"empty", JobFailurePayload{}, "Report job unknown (unknown report) failed"},
		{"kind", JobFailurePayload{JobID: "1", ReportName: "R", FailureKind: "interop"}, "Report job 1 (R) failed: interop"},
		{"oom wins", JobFailurePayload{JobID: "1", ReportName: "R", FailureKind: "isolation", OutOfMemory: true}, "Report job 1 (R) failed: out of memory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.payload.Summary())
		})
	}
}

func TestSinkFunc_Nil(t *testing.T) {
	var f SinkFunc
	assert.NoError(t, f.SendJobFailure(context.Background(), JobFailurePayload{}))
}

func TestPoster_RetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewPoster("test", nil, time.Second, 2)
	err := p.Post(context.Background(), srv.URL, []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test api 502")
	assert.Equal(t, int32(3), calls.Load())
}

func TestPoster_StopsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p := NewPoster("test", nil, time.Second, 5)
	err := p.Post(ctx, srv.URL, []byte(`{}`))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
