package config

import (
	"path/filepath"
	"strings"
	"time"
)

// DeliveryConfig controls how rendered artifacts and notifications leave the host.
type DeliveryConfig struct {
	// ArchiveDir receives artifacts too large to attach, under <ArchiveDir>/<jobid>/.
	// Defaults to <WORK_DIR>/report-archive.
	ArchiveDir string `env:"ARCHIVE_DIR"`

	// ObjectStorageTimeout bounds each upload attempt.
	ObjectStorageTimeout time.Duration `env:"OBJECT_STORAGE_TIMEOUT" envDefault:"5m"`

	// SMTPTimeout bounds each send attempt.
	SMTPTimeout time.Duration `env:"SMTP_TIMEOUT" envDefault:"60s"`

	// AdminContact is named in emails about templates that could not be loaded.
	AdminContact string `env:"ADMIN_CONTACT" envDefault:"your reporting administrator"`

	// OnCallEmails is the fixed distribution list for infrastructure failures.
	OnCallEmails []string `env:"ONCALL_EMAILS" envSeparator:","`
}

// Sanitize applies guardrails to delivery configuration values.
func (c *DeliveryConfig) Sanitize(workDir string) {
	c.ArchiveDir = absOrEmpty(c.ArchiveDir)
	if c.ArchiveDir == "" {
		c.ArchiveDir = filepath.Join(workDir, "report-archive")
	}
	if c.ObjectStorageTimeout <= 0 {
		c.ObjectStorageTimeout = 5 * time.Minute
	}
	if c.SMTPTimeout <= 0 {
		c.SMTPTimeout = 60 * time.Second
	}
	if c.AdminContact = strings.TrimSpace(c.AdminContact); c.AdminContact == "" {
		c.AdminContact = "your reporting administrator"
	}
	c.OnCallEmails = cleanList(c.OnCallEmails)
}
