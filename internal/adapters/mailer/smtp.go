// Package mailer sends composed notifications over SMTP.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
	"golang.org/x/net/idna"

	"github.com/target/report-runner/internal/core"
	"github.com/target/report-runner/internal/domain/model"
	"github.com/target/report-runner/internal/observability/notify/email"
)

// Mailer errors.
var (
	ErrNoRecipients = errors.New("mailer: draft has no recipients")
	ErrNoSender     = errors.New("mailer: sender address is required")
)

var (
	_ core.Mailer  = (*SMTPMailer)(nil)
	_ email.Sender = (*SMTPMailer)(nil)
)

// Options configures an SMTPMailer.
type Options struct {
	SMTP model.SMTPConfig
	// Timeout bounds each delivery attempt.
	Timeout time.Duration
	// Retry is the number of extra attempts after a failed delivery (0 or 1).
	Retry  int
	Logger *slog.Logger
}

// SMTPMailer delivers drafts through the relay named in the job's config descriptor.
type SMTPMailer struct {
	cfg     model.SMTPConfig
	timeout time.Duration
	retry   int
	logger  *slog.Logger

	// dial is swapped in tests.
	dial func(ctx context.Context, msg *gomail.Msg) error
}

// New validates the relay configuration and builds an SMTPMailer.
func New(opts Options) (*SMTPMailer, error) {
	cfg := opts.SMTP
	cfg.Server = strings.TrimSpace(cfg.Server)
	if cfg.Server == "" {
		return nil, model.ErrSMTPServerRequired
	}
	if strings.TrimSpace(cfg.Sender) == "" {
		return nil, ErrNoSender
	}

	m := &SMTPMailer{
		cfg:     cfg,
		timeout: opts.Timeout,
		retry:   min(max(opts.Retry, 0), 1),
		logger:  opts.Logger,
	}
	if m.timeout <= 0 {
		m.timeout = 60 * time.Second
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "mailer")
	m.dial = m.dialAndSend
	return m, nil
}

// Send builds the MIME message and hands it to the relay.
func (m *SMTPMailer) Send(ctx context.Context, draft model.EmailDraft) error {
	msg, err := m.message(draft)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= m.retry; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		attemptCtx, cancel := context.WithTimeout(ctx, m.timeout)
		lastErr = m.dial(attemptCtx, msg)
		cancel()
		if lastErr == nil {
			m.logger.InfoContext(ctx, "email sent",
				"subject", draft.Subject,
				"recipients", len(draft.Recipients()),
				"attachment", draft.HasAttachment(),
			)
			return nil
		}
		m.logger.WarnContext(ctx, "email delivery attempt failed", "attempt", attempt+1, "error", lastErr)
	}
	return fmt.Errorf("send email via %s: %w", m.cfg.Server, lastErr)
}

func (m *SMTPMailer) message(draft model.EmailDraft) (*gomail.Msg, error) {
	to, err := normalizeAll(draft.To)
	if err != nil {
		return nil, err
	}
	cc, err := normalizeAll(draft.CC)
	if err != nil {
		return nil, err
	}
	if len(to)+len(cc) == 0 {
		return nil, ErrNoRecipients
	}
	from, err := normalizeAddress(m.cfg.Sender)
	if err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}

	msg := gomail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("set from: %w", err)
	}
	if len(to) > 0 {
		if err := msg.To(to...); err != nil {
			return nil, fmt.Errorf("set to: %w", err)
		}
	}
	if len(cc) > 0 {
		if err := msg.Cc(cc...); err != nil {
			return nil, fmt.Errorf("set cc: %w", err)
		}
	}
	msg.Subject(draft.Subject)
	msg.SetBodyString(gomail.TypeTextHTML, draft.Body)
	if draft.HasAttachment() {
		msg.AttachFile(draft.AttachmentPath)
	}
	return msg, nil
}

func (m *SMTPMailer) dialAndSend(ctx context.Context, msg *gomail.Msg) error {
	opts := []gomail.Option{
		gomail.WithPort(m.cfg.SMTPPort()),
		gomail.WithTimeout(m.timeout),
	}
	if m.cfg.SSL {
		opts = append(opts, gomail.WithSSL())
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.cfg.Username),
			gomail.WithPassword(m.cfg.Password),
		)
	}

	client, err := gomail.NewClient(m.cfg.Server, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

func normalizeAll(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	for _, raw := range in {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		addr, err := normalizeAddress(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// normalizeAddress converts the domain part to its ASCII (punycode) form so relays
// without SMTPUTF8 accept it.
func normalizeAddress(raw string) (string, error) {
	parsed, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", raw, err)
	}
	at := strings.LastIndex(parsed.Address, "@")
	if at < 0 {
		return "", fmt.Errorf("invalid address %q", raw)
	}
	domain, err := idna.Lookup.ToASCII(parsed.Address[at+1:])
	if err != nil {
		return "", fmt.Errorf("invalid domain in %q: %w", raw, err)
	}
	return parsed.Address[:at+1] + domain, nil
}
