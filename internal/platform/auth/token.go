package auth

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/c3dc-labs/hubloader-go/internal/platform/env"
)

// ClientConfig configures a client-credentials token source for callers of
// the registry API (deployctl, CI pipelines).
type ClientConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

func ClientConfigFromEnv() ClientConfig {
	return ClientConfig{
		TokenURL:     env.String("OIDC_TOKEN_URL", ""),
		ClientID:     env.String("OIDC_CLIENT_ID", ""),
		ClientSecret: env.String("OIDC_CLIENT_SECRET", ""),
		Scopes:       env.Strings("OIDC_SCOPES", nil),
	}
}

func (c ClientConfig) Enabled() bool {
	return strings.TrimSpace(c.TokenURL) != ""
}

func (c ClientConfig) Validate() error {
	if strings.TrimSpace(c.TokenURL) == "" {
		return errors.New("OIDC_TOKEN_URL is required")
	}
	if strings.TrimSpace(c.ClientID) == "" {
		return errors.New("OIDC_CLIENT_ID is required")
	}
	if strings.TrimSpace(c.ClientSecret) == "" {
		return errors.New("OIDC_CLIENT_SECRET is required")
	}
	return nil
}

func ServiceTokenSource(ctx context.Context, cfg ClientConfig) (oauth2.TokenSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cc := clientcredentials.Config{
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
	}
	return cc.TokenSource(ctx), nil
}
