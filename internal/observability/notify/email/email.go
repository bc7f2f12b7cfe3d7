// Package email delivers on-call alerts to a fixed distribution list over SMTP.
package email

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/target/report-runner/internal/domain/model"
	"github.com/target/report-runner/internal/observability/notify"
)

// Sender is the transport used to deliver the alert.
type Sender interface {
	Send(ctx context.Context, draft model.EmailDraft) error
}

// Sink emails the on-call list.
type Sink struct {
	sender     Sender
	recipients []string
}

var _ notify.Sink = (*Sink)(nil)

// NewSink requires a sender and at least one recipient.
func NewSink(sender Sender, recipients []string) (*Sink, error) {
	if sender == nil {
		return nil, errors.New("email sender is required")
	}
	clean := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			clean = append(clean, r)
		}
	}
	if len(clean) == 0 {
		return nil, errors.New("on-call recipients are required")
	}
	return &Sink{sender: sender, recipients: clean}, nil
}

// SendJobFailure emails a short incident summary.
func (s *Sink) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	if err := s.sender.Send(ctx, s.draft(payload)); err != nil {
		return fmt.Errorf("send on-call email: %w", err)
	}
	return nil
}

func (s *Sink) draft(payload notify.JobFailurePayload) model.EmailDraft {
	occurred := payload.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}

	lines := []string{
		"The report render worker failed for infrastructure reasons.",
		"",
		"Job: " + payload.JobID,
		"Report: " + payload.ReportName,
		"Format: " + payload.OutputFormat,
		"Worker: " + payload.Worker,
		"Failure: " + payload.FailureKind,
		fmt.Sprintf("Out of memory: %t", payload.OutOfMemory),
		"Error class: " + payload.ErrorClass,
		"Detail: " + payload.Error,
		"Occurred: " + occurred.UTC().Format(time.RFC3339),
	}
	keys := make([]string, 0, len(payload.Metadata))
	for k := range payload.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, k+": "+payload.Metadata[k])
	}

	for i, l := range lines {
		lines[i] = html.EscapeString(l)
	}
	return model.EmailDraft{
		To:      append([]string(nil), s.recipients...),
		Subject: "[" + strings.ToUpper(fallback(payload.Severity, notify.SeverityCritical)) + "] " + payload.Summary(),
		Body:    strings.Join(lines, "<br />"),
	}
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
