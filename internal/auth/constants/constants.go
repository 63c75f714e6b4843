package constants

import "time"

const (
	// DefaultCookieName is the session cookie's name
	DefaultCookieName = "mm-s-id"

	// TokenType for Bearer authentication
	TokenType = "Bearer"

	// Store key namespaces. User records are stored under the bare provider id.
	StateKeyPrefix   = "state-"
	SessionKeyPrefix = "session-"

	// StateValue is the placeholder stored for an issued state token
	StateValue = "true"

	// Query parameters of the provider callback
	StateQueryParam = "state"
	CodeQueryParam  = "code"

	// Callback and login routes
	LoginPath    = "/auth/login"
	CallbackPath = "/auth/callback"
	LogoutPath   = "/auth/logout"
)

const (
	// StateTTL bounds how long a login attempt may take
	StateTTL = 24 * time.Hour

	// SessionTTL is the lifetime of a session mapping. It is not renewed.
	SessionTTL = 31 * 24 * time.Hour

	// CookieLifetime is the Expires offset of the session cookie
	CookieLifetime = 31 * 24 * time.Hour

	// ExchangeMargin is subtracted from the provider's expires_in after a login
	ExchangeMargin = 20 * time.Second

	// RefreshMargin is subtracted from the provider's expires_in after a refresh
	RefreshMargin = 10 * time.Second
)

// DefaultScopes requested from the provider
var DefaultScopes = []string{"identify"}
