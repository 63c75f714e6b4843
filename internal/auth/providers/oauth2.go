package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/brizzai/session-broker/internal/auth/autherr"
	"github.com/brizzai/session-broker/internal/auth/constants"
	"github.com/brizzai/session-broker/internal/auth/models"
	"github.com/brizzai/session-broker/internal/config"
	"github.com/brizzai/session-broker/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"k8s.io/utils/clock"
)

// OAuth2Provider implements Provider for an authorization-code provider that
// takes client credentials in the form body.
type OAuth2Provider struct {
	oauth2Config *oauth2.Config
	userInfoURL  string
	idPath       string
	clock        clock.PassiveClock
	httpClient   *http.Client
}

// Option configures an OAuth2Provider.
type Option func(*OAuth2Provider)

// WithHTTPClient routes every provider call through client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *OAuth2Provider) {
		p.httpClient = client
	}
}

// NewOAuth2Provider builds a provider for already-resolved endpoints.
func NewOAuth2Provider(cfg *config.OAuthConfig, endpoints Endpoints, callbackURL string, clk clock.PassiveClock, opts ...Option) *OAuth2Provider {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = constants.DefaultScopes
	}

	p := &OAuth2Provider{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoints.oauth2Endpoint(),
			RedirectURL:  callbackURL,
			Scopes:       scopes,
		},
		userInfoURL: endpoints.UserInfoURL,
		idPath:      cfg.IDPath(),
		clock:       clk,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewProvider resolves the endpoints from configuration and builds the provider.
func NewProvider(ctx context.Context, cfg *config.Config, clk clock.PassiveClock, opts ...Option) (*OAuth2Provider, error) {
	p := NewOAuth2Provider(&cfg.OAuth, Endpoints{}, cfg.Session.CallbackURL(), clk, opts...)

	endpoints, err := ResolveEndpoints(ctx, &cfg.OAuth, p.httpClient)
	if err != nil {
		return nil, err
	}
	p.oauth2Config.Endpoint = endpoints.oauth2Endpoint()
	p.userInfoURL = endpoints.UserInfoURL
	return p, nil
}

func (p *OAuth2Provider) context(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

func (p *OAuth2Provider) AuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

func (p *OAuth2Provider) ExchangeCode(ctx context.Context, code string) (*models.AuthToken, error) {
	token, err := p.oauth2Config.Exchange(p.context(ctx), code)
	if err != nil {
		return nil, tokenError("exchange code", err)
	}
	return p.toAuthToken(token, constants.ExchangeMargin), nil
}

func (p *OAuth2Provider) Refresh(ctx context.Context, refreshToken string) (*models.AuthToken, error) {
	token, err := p.oauth2Config.TokenSource(p.context(ctx), &oauth2.Token{
		RefreshToken: refreshToken,
	}).Token()
	if err != nil {
		return nil, tokenError("refresh token", err)
	}
	return p.toAuthToken(token, constants.RefreshMargin), nil
}

func (p *OAuth2Provider) Identify(ctx context.Context, accessToken string) (*models.Profile, error) {
	const op = "identify user"

	client := oauth2.NewClient(p.context(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   constants.TokenType,
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, autherr.Internal(op, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		logger.Error("Failed to call userinfo endpoint", zap.Error(err))
		return nil, autherr.Internal(op, fmt.Errorf("failed to get user info: %w", err))
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("Failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, autherr.Provider(op, resp.Status, nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, autherr.Internal(op, fmt.Errorf("failed to read user info: %w", err))
	}
	profile, err := models.ParseProfile(body, p.idPath)
	if err != nil {
		return nil, autherr.Parse(op, err)
	}
	return profile, nil
}

// toAuthToken stamps the expiry against the broker's clock so the margin is
// applied once, in whole seconds.
func (p *OAuth2Provider) toAuthToken(token *oauth2.Token, margin time.Duration) *models.AuthToken {
	now := p.clock.Now()
	return &models.AuthToken{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    now.Add(expiresIn(token, now) - margin).Unix(),
	}
}

func expiresIn(token *oauth2.Token, now time.Time) time.Duration {
	if token.ExpiresIn > 0 {
		return time.Duration(token.ExpiresIn) * time.Second
	}
	switch v := token.Extra("expires_in").(type) {
	case float64:
		return time.Duration(v) * time.Second
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return time.Duration(n) * time.Second
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	if !token.Expiry.IsZero() {
		return token.Expiry.Sub(now)
	}
	return 0
}

func tokenError(op string, err error) error {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) && rErr.Response != nil {
		return autherr.Provider(op, rErr.Response.Status, err)
	}
	return autherr.Internal(op, err)
}
