// Package statusapi implements core.StatusClient against the HTTP job status service.
//
// The service exposes two endpoints relative to its base URI:
//
//	GET  {base}/status/{id}  -> StatusRecord, 404 when unknown
//	POST {base}/status       <- StatusRecord
package statusapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/target/report-runner/internal/core"
	"github.com/target/report-runner/internal/domain/model"
	apperrors "github.com/target/report-runner/internal/errors"
)

const (
	defaultTimeout  = 10 * time.Second
	maxResponseBody = 1 << 20
)

var _ core.StatusClient = (*Client)(nil)

// Options configures a Client.
type Options struct {
	// BaseURL is the status service root, e.g. http://status:45732/api.
	BaseURL string
	// HTTPClient defaults to a plain client; pass an OAuth2 client to authenticate.
	HTTPClient *http.Client
	// Timeout bounds each attempt.
	Timeout time.Duration
	// Retry is the number of extra attempts after a transport error or 5xx (0 or 1).
	Retry int
}

// Client is an HTTP status service client.
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
	retry   int
}

// NewClient validates opts and builds a Client.
func NewClient(opts Options) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		return nil, apperrors.ValidationField("statusApiUri", "status service URI is required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, apperrors.ValidationField("statusApiUri", "status service URI must be absolute")
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		base:    base,
		http:    hc,
		timeout: timeout,
		retry:   min(max(opts.Retry, 0), 1),
	}, nil
}

// Get fetches the stored snapshot for id.
func (c *Client) Get(ctx context.Context, id uuid.UUID) (*model.StatusSnapshot, error) {
	status, body, err := c.do(ctx, http.MethodGet, "status/"+id.String(), nil)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusNotFound:
		return nil, apperrors.NotFoundf("status record %s not found", id)
	case status < 200 || status > 299:
		return nil, statusError(http.MethodGet, status, body)
	}

	var rec model.StatusRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode status record")
	}
	if rec.ID == uuid.Nil {
		rec.ID = id
	}
	snap, err := rec.Snapshot()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode status record")
	}
	return &snap, nil
}

// Push stores snap on the service.
func (c *Client) Push(ctx context.Context, snap model.StatusSnapshot) error {
	payload, err := json.Marshal(model.NewStatusRecord(snap))
	if err != nil {
		return fmt.Errorf("encode status record: %w", err)
	}
	status, body, err := c.do(ctx, http.MethodPost, "status", payload)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return statusError(http.MethodPost, status, body)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	target := c.base.JoinPath(path).String()

	var lastErr error
	for attempt := 0; attempt <= c.retry; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, nil, apperrors.Wrap(err, apperrors.ErrCodeCanceled, "status request canceled")
		}
		status, body, err := c.once(ctx, method, target, payload)
		if err == nil && status < 500 {
			return status, body, nil
		}
		if err == nil {
			lastErr = statusError(method, status, body)
			if attempt == c.retry {
				return status, body, nil
			}
			continue
		}
		lastErr = err
	}
	return 0, nil, lastErr
}

func (c *Client) once(ctx context.Context, method, target string, payload []byte) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, nil, apperrors.Wrap(err, apperrors.ErrCodeTimeout, "status service timed out")
		}
		return 0, nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "status service unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "read status response")
	}
	return resp.StatusCode, body, nil
}

func statusError(method string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 256 {
		msg = msg[:256]
	}
	code := apperrors.ErrCodeInternal
	if status >= 500 {
		code = apperrors.ErrCodeUnavailable
	}
	return apperrors.New(code, fmt.Sprintf("status service %s returned %d: %s", method, status, msg))
}
