package statusapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/target/report-runner/config"
)

// ErrTokenEndpoint is returned when no token endpoint could be determined.
var ErrTokenEndpoint = errors.New("status auth: token endpoint not configured")

// NewAuthenticatedHTTPClient returns an http.Client that attaches client-credentials
// bearer tokens to every request. base supplies the transport (nil uses
// http.DefaultClient) and is also used for discovery and token requests.
// When cfg is disabled base is returned unchanged.
func NewAuthenticatedHTTPClient(ctx context.Context, cfg config.StatusAuthConfig, base *http.Client) (*http.Client, error) {
	if base == nil {
		base = http.DefaultClient
	}
	if !cfg.Enabled {
		return base, nil
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	tokenURL, err := resolveTokenURL(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       cfg.Scopes,
	}
	// The token source outlives the discovery call, so only the client value is carried over.
	return cc.Client(context.WithValue(context.Background(), oauth2.HTTPClient, base)), nil
}

func resolveTokenURL(ctx context.Context, cfg config.StatusAuthConfig) (string, error) {
	if cfg.TokenURL != "" {
		return cfg.TokenURL, nil
	}
	if cfg.Issuer == "" {
		return "", ErrTokenEndpoint
	}

	issuer := strings.TrimSuffix(cfg.Issuer, "/.well-known/openid-configuration")
	provider, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return "", fmt.Errorf("discover token endpoint for %s: %w", issuer, err)
	}
	tokenURL := provider.Endpoint().TokenURL
	if tokenURL == "" {
		return "", ErrTokenEndpoint
	}
	return tokenURL, nil
}
