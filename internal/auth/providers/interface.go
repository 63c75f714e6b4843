package providers

import (
	"context"

	"github.com/brizzai/session-broker/internal/auth/models"
)

//go:generate mockgen -destination=mocks/mock_provider.go -package=mocks -source=interface.go Provider

// Provider is the identity provider as seen by the session lifecycle
type Provider interface {
	// AuthCodeURL returns the provider's authorize URL carrying state and the
	// fixed callback URL
	AuthCodeURL(state string) string

	// ExchangeCode trades an authorization code for a token pair
	ExchangeCode(ctx context.Context, code string) (*models.AuthToken, error)

	// Refresh trades a refresh token for a new token pair
	Refresh(ctx context.Context, refreshToken string) (*models.AuthToken, error)

	// Identify fetches the profile of the access token's owner
	Identify(ctx context.Context, accessToken string) (*models.Profile, error)
}
