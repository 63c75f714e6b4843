package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/brizzai/session-broker/internal/config"
	"github.com/brizzai/session-broker/internal/logger"
	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Endpoints are the provider URLs the broker talks to.
type Endpoints struct {
	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

// discordStyleEndpoints derives the endpoints from a REST root such as
// https://discord.com/api/v9.
func discordStyleEndpoints(apiBaseURL string) Endpoints {
	base := strings.TrimSuffix(apiBaseURL, "/")
	return Endpoints{
		AuthURL:     base + "/oauth2/authorize",
		TokenURL:    base + "/oauth2/token",
		UserInfoURL: base + "/users/@me",
	}
}

// discoverEndpoints reads the issuer's OpenID discovery document.
func discoverEndpoints(ctx context.Context, issuer string, client *http.Client) (Endpoints, error) {
	if client != nil {
		ctx = oidc.ClientContext(ctx, client)
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return Endpoints{}, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	var claims struct {
		UserInfoURL string `json:"userinfo_endpoint"`
	}
	if err := provider.Claims(&claims); err != nil {
		return Endpoints{}, fmt.Errorf("failed to parse discovery document: %w", err)
	}

	endpoint := provider.Endpoint()
	return Endpoints{
		AuthURL:     endpoint.AuthURL,
		TokenURL:    endpoint.TokenURL,
		UserInfoURL: claims.UserInfoURL,
	}, nil
}

// ResolveEndpoints picks the provider URLs: discovery when an issuer is
// configured, the REST root otherwise. Explicit URLs always win.
func ResolveEndpoints(ctx context.Context, cfg *config.OAuthConfig, client *http.Client) (Endpoints, error) {
	var endpoints Endpoints
	if cfg.Issuer != "" {
		discovered, err := discoverEndpoints(ctx, cfg.Issuer, client)
		if err != nil {
			return Endpoints{}, err
		}
		endpoints = discovered
		logger.Info("Discovered provider endpoints",
			zap.String("issuer", cfg.Issuer),
			zap.String("auth_url", endpoints.AuthURL),
			zap.String("token_url", endpoints.TokenURL),
		)
	} else if cfg.APIBaseURL != "" {
		endpoints = discordStyleEndpoints(cfg.APIBaseURL)
	}

	if cfg.AuthURL != "" {
		endpoints.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoints.TokenURL = cfg.TokenURL
	}
	if cfg.UserInfoURL != "" {
		endpoints.UserInfoURL = cfg.UserInfoURL
	}

	if endpoints.AuthURL == "" || endpoints.TokenURL == "" || endpoints.UserInfoURL == "" {
		return Endpoints{}, fmt.Errorf("incomplete provider endpoints: %+v", endpoints)
	}
	return endpoints, nil
}

func (e Endpoints) oauth2Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   e.AuthURL,
		TokenURL:  e.TokenURL,
		AuthStyle: oauth2.AuthStyleInParams,
	}
}
