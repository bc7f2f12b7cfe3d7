package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Poster sends JSON bodies to a webhook-style endpoint with linear backoff between attempts.
type Poster struct {
	// Name prefixes error messages, e.g. "slack" or "pagerduty".
	Name       string
	Client     *http.Client
	RetryLimit int
}

// NewPoster builds a Poster with a default client bounded by timeout.
func NewPoster(name string, hc *http.Client, timeout time.Duration, retryLimit int) *Poster {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return &Poster{Name: name, Client: hc, RetryLimit: max(retryLimit, 0)}
}

// Post submits body to url, retrying non-2xx responses and transport errors.
func (p *Poster) Post(ctx context.Context, url string, body []byte) error {
	attempts := p.RetryLimit + 1
	var lastErr error
	for attempt := range attempts {
		lastErr = p.once(ctx, url, body)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		timer := time.NewTimer(time.Duration(attempt+1) * 200 * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func (p *Poster) once(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", p.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", p.Name, err)
	}

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	closeErr := resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s api %s: %s", p.Name, resp.Status, strings.TrimSpace(string(respBody)))
	}
	if readErr != nil || closeErr != nil {
		return errors.Join(readErr, closeErr)
	}
	return nil
}
