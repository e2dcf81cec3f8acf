package openai

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/oauth2/clientcredentials"
)

// OAuthConfig describes a client-credentials grant for gateways that front the API.
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Enabled reports whether enough fields are set to request tokens.
func (c OAuthConfig) Enabled() bool {
	return strings.TrimSpace(c.TokenURL) != "" && strings.TrimSpace(c.ClientID) != ""
}

// NewOAuthHTTPClient returns an http.Client that attaches bearer tokens from the
// client-credentials flow. Tokens are cached and refreshed by the transport.
func NewOAuthHTTPClient(ctx context.Context, cfg OAuthConfig) *http.Client {
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	client := cc.Client(ctx)
	client.Timeout = requestTimeout()
	return client
}
