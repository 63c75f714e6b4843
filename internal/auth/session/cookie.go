package session

import (
	"net/http"
	"time"

	"github.com/brizzai/session-broker/internal/auth/constants"
)

// Cookie builds the session cookie for id.
func (s *Store) Cookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     s.cookieName,
		Value:    id,
		Path:     "/",
		Expires:  s.clock.Now().Add(constants.CookieLifetime).UTC(),
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// ExpiredCookie clears the session cookie in the browser.
func (s *Store) ExpiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// SessionID extracts the session id from a Cookie header. Malformed pairs
// set by other applications on the domain are skipped. A missing or empty
// session cookie yields ErrNoSession.
func (s *Store) SessionID(cookieHeader string) (string, error) {
	if cookieHeader == "" {
		return "", ErrNoSession
	}
	r := &http.Request{Header: http.Header{"Cookie": {cookieHeader}}}
	c, err := r.Cookie(s.cookieName)
	if err != nil || c.Value == "" {
		return "", ErrNoSession
	}
	return c.Value, nil
}
