package statusapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/report-runner/config"
	"github.com/target/report-runner/internal/domain/model"
	apperrors "github.com/target/report-runner/internal/errors"
)

var jobID = uuid.MustParse("5d2b8c3a-7e41-4f0a-9c6d-1b2e3f4a5b6c")

func newTestClient(t *testing.T, srv *httptest.Server, retry int) *Client {
	t.Helper()
	c, err := NewClient(Options{BaseURL: srv.URL + "/api/", HTTPClient: srv.Client(), Timeout: time.Second, Retry: retry})
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Options{})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "statusApiUri", apperrors.GetField(err))

	_, err = NewClient(Options{BaseURL: "status-host/api"})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	c, err := NewClient(Options{BaseURL: "http://status:45732/api", Retry: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, c.retry)
	assert.Equal(t, defaultTimeout, c.timeout)
}

func TestClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/status/"+jobID.String(), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"`+jobID.String()+`","status":1,"start":"2024-03-01T08:00:00",`+
			`"end":"0001-01-01T00:00:00","filename":"Monthly Sales","requestor":"ana","worker":"RPT01","processID":4242}`)
	}))
	defer srv.Close()

	snap, err := newTestClient(t, srv, 0).Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, jobID, snap.ID)
	assert.Equal(t, "Monthly Sales", snap.Filename)
	assert.Equal(t, "ana", snap.Requestor)

	proc, ok := snap.State.(model.Processing)
	require.True(t, ok, "state %T", snap.State)
	assert.Equal(t, "RPT01", proc.Worker)
	assert.Equal(t, 4242, proc.PID)
	assert.Equal(t, 8, proc.Start.Hour())
}

func TestClient_GetNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 1).Get(context.Background(), jobID)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestClient_Push(t *testing.T) {
	var got model.StatusRecord
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/status", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	snap := model.StatusSnapshot{
		ID:        jobID,
		State:     model.Failed{Start: start, End: start.Add(time.Minute), Worker: "RPT01", Reason: "load"},
		Filename:  "Monthly Sales",
		Requestor: "ana",
	}
	require.NoError(t, newTestClient(t, srv, 0).Push(context.Background(), snap))

	assert.Equal(t, model.StateFailed, got.Status)
	assert.Equal(t, 0, got.ProcessID)
	assert.Equal(t, "RPT01", got.Worker)
	assert.Equal(t, "load", got.Reason)
	assert.True(t, got.End.Equal(start.Add(time.Minute)))
}

func TestClient_RetriesOnceOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := newTestClient(t, srv, 1).Push(context.Background(), model.StatusSnapshot{ID: jobID, State: model.Processing{}})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_GivesUpAfterRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "down for maintenance", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := newTestClient(t, srv, 1).Push(context.Background(), model.StatusSnapshot{ID: jobID, State: model.Processing{}})
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad record", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := newTestClient(t, srv, 1).Push(context.Background(), model.StatusSnapshot{ID: jobID, State: model.Processing{}})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "bad record"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := NewClient(Options{BaseURL: srv.URL, HTTPClient: srv.Client(), Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.Get(context.Background(), jobID)
	require.Error(t, err)
	assert.True(t, apperrors.IsTimeout(err), "got %v", err)
}

func TestNewAuthenticatedHTTPClient(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/authorize",
			"token_endpoint":         srv.URL + "/token",
			"jwks_uri":               srv.URL + "/jwks",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"tok-123","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/api/status/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.NotFound(w, r)
	})

	hc, err := NewAuthenticatedHTTPClient(context.Background(), config.StatusAuthConfig{
		Enabled:      true,
		ClientID:     "report-runner",
		ClientSecret: "secret",
		Issuer:       srv.URL,
	}, srv.Client())
	require.NoError(t, err)

	c, err := NewClient(Options{BaseURL: srv.URL + "/api", HTTPClient: hc, Timeout: time.Second})
	require.NoError(t, err)

	_, err = c.Get(context.Background(), jobID)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err), "authorized request reaches the handler: %v", err)

	_, _ = c.Get(context.Background(), jobID)
	assert.Equal(t, int32(1), tokenCalls.Load(), "token is cached between calls")
}

func TestNewAuthenticatedHTTPClient_Disabled(t *testing.T) {
	base := &http.Client{}
	hc, err := NewAuthenticatedHTTPClient(context.Background(), config.StatusAuthConfig{}, base)
	require.NoError(t, err)
	assert.Same(t, base, hc)

	_, err = NewAuthenticatedHTTPClient(context.Background(), config.StatusAuthConfig{Enabled: true, ClientID: "x"}, base)
	require.ErrorIs(t, err, ErrTokenEndpoint)
}
