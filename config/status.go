package config

import (
	"strings"
	"time"
)

// StatusConfig controls calls to the external job status service.
type StatusConfig struct {
	// Timeout bounds each GET/POST.
	Timeout time.Duration `env:"STATUS_API_TIMEOUT" envDefault:"10s"`
	// Retry is the number of extra attempts per call (0 or 1).
	Retry int `env:"STATUS_API_RETRY" envDefault:"1"`

	Auth StatusAuthConfig `envPrefix:"STATUS_API_AUTH_"`
}

// Sanitize applies guardrails to status configuration values.
func (c *StatusConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	c.Retry = min(max(c.Retry, 0), 1)
	c.Auth.Sanitize()
}

// StatusAuthConfig configures OAuth2 client-credentials authentication for the
// status service. The token endpoint is taken from TokenURL, or discovered from
// Issuer when TokenURL is empty.
type StatusAuthConfig struct {
	Enabled      bool     `env:"ENABLED"       envDefault:"false"`
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	TokenURL     string   `env:"TOKEN_URL"`
	Issuer       string   `env:"ISSUER"`
	Scopes       []string `env:"SCOPES"        envSeparator:","`
}

// Sanitize trims values and disables auth when it cannot work.
func (c *StatusAuthConfig) Sanitize() {
	c.ClientID = strings.TrimSpace(c.ClientID)
	c.ClientSecret = strings.TrimSpace(c.ClientSecret)
	c.TokenURL = strings.TrimSpace(c.TokenURL)
	c.Issuer = strings.TrimRight(strings.TrimSpace(c.Issuer), "/")
	c.Scopes = cleanList(c.Scopes)
	if c.ClientID == "" || (c.TokenURL == "" && c.Issuer == "") {
		c.Enabled = false
	}
}
