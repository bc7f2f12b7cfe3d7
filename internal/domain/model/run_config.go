package model

import (
	"errors"
	"strings"
)

// SMTPConfig describes the mail relay used for requester notifications.
type SMTPConfig struct {
	Server   string `json:"server"   yaml:"server"`
	Port     int    `json:"port"     yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"` //nolint:gosec // loaded from an operator-owned file
	Sender   string `json:"sender"   yaml:"sender"`
	SSL      bool   `json:"ssl"      yaml:"ssl"`
}

// ObjectStorageConfig holds optional credentials for artifact uploads.
type ObjectStorageConfig struct {
	AuthURI    string `json:"authUri"    yaml:"authUri"`
	UserName   string `json:"userName"   yaml:"userName"`
	Password   string `json:"password"   yaml:"password"` //nolint:gosec // loaded from an operator-owned file
	TenantName string `json:"tenantName" yaml:"tenantName"`
	TenantID   string `json:"tenantId"   yaml:"tenantId"`
	Region     string `json:"region"     yaml:"region"`
	Container  string `json:"container"  yaml:"container"`
}

// Configured reports whether enough fields are present to attempt an upload.
func (c *ObjectStorageConfig) Configured() bool {
	return c != nil && strings.TrimSpace(c.Container) != "" && strings.TrimSpace(c.UserName) != ""
}

// QueueConfig names the message exchange that receives job lifecycle events.
type QueueConfig struct {
	Type string `json:"type" yaml:"type"`
	Name string `json:"name" yaml:"name"`
}

// RunConfig is the per-invocation configuration descriptor passed with -c.
type RunConfig struct {
	SMTP          SMTPConfig           `json:"smtp"                    yaml:"smtp"`
	StatusAPIURI  string               `json:"statusApiUri"            yaml:"statusApiUri"`
	ObjectStorage *ObjectStorageConfig `json:"objectStorage,omitempty" yaml:"objectStorage,omitempty"`
	Queue         *QueueConfig         `json:"queue,omitempty"         yaml:"queue,omitempty"`
}

// Run config validation errors.
var (
	ErrSMTPServerRequired = errors.New("smtp server is required")
	ErrSMTPSenderRequired = errors.New("smtp sender is required")
)

// Validate checks that the minimum delivery configuration is present.
// The status API URI is checked by the status client when the pipeline is built,
// so a missing URI stops the run before the job is picked up.
func (c RunConfig) Validate() error {
	if strings.TrimSpace(c.SMTP.Server) == "" {
		return ErrSMTPServerRequired
	}
	if strings.TrimSpace(c.SMTP.Sender) == "" {
		return ErrSMTPSenderRequired
	}
	return nil
}

// SMTPPort returns the configured port or the submission default.
func (c SMTPConfig) SMTPPort() int {
	if c.Port > 0 {
		return c.Port
	}
	if c.SSL {
		return 465
	}
	return 25
}
