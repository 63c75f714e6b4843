// Package providertest runs an in-process identity provider for tests.
package providertest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const (
	ClientID     = "test-client"
	ClientSecret = "test-secret"
	// Code is the only authorization code the server accepts.
	Code = "xyz"
	// DefaultProfile is returned from the user endpoint.
	DefaultProfile = `{"id":"80351110224678912","username":"Nelly","avatar":"8342729096ea3675442027381ff50dfe","discriminator":"1337","locale":"en-US","mfa_enabled":true}`
)

// Server is a Discord-shaped provider with an OpenID discovery document.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	ExpiresIn    int
	Profile      string
	TokenStatus  int // forces every token call to fail with this status
	UserStatus   int // forces the user endpoint to fail with this status
	issued       map[string]bool
	refreshes    []string
	exchanges    []map[string]string
	nextTokenSeq int
}

// NewServer starts a provider that is closed with the test.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		ExpiresIn: 604800,
		Profile:   DefaultProfile,
		issued:    make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/oauth2/token", s.handleToken)
	mux.HandleFunc("GET /api/users/@me", s.handleUser)
	mux.HandleFunc("GET /.well-known/openid-configuration", s.handleDiscovery)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)

	return s
}

// APIBaseURL is the REST root to configure the broker with.
func (s *Server) APIBaseURL() string {
	return s.URL + "/api"
}

// Refreshes returns the refresh tokens presented so far.
func (s *Server) Refreshes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.refreshes...)
}

// Exchanges returns the form bodies of the authorization-code grants received.
func (s *Server) Exchanges() []map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]string(nil), s.exchanges...)
}

// Set updates the server's behavior under its lock.
func (s *Server) Set(fn func(s *Server)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.TokenStatus != 0 {
		writeOAuthError(w, s.TokenStatus, "invalid_grant")
		return
	}
	if r.PostForm.Get("client_id") != ClientID || r.PostForm.Get("client_secret") != ClientSecret {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client")
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		form := make(map[string]string)
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		s.exchanges = append(s.exchanges, form)
		if r.PostForm.Get("code") != Code {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant")
			return
		}
	case "refresh_token":
		rt := r.PostForm.Get("refresh_token")
		s.refreshes = append(s.refreshes, rt)
		if !s.issued["refresh:"+rt] {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant")
			return
		}
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type")
		return
	}

	s.nextTokenSeq++
	access := fmt.Sprintf("access-%d", s.nextTokenSeq)
	refresh := fmt.Sprintf("refresh-%d", s.nextTokenSeq)
	s.issued["access:"+access] = true
	s.issued["refresh:"+refresh] = true

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "Bearer",
		"expires_in":    s.ExpiresIn,
		"scope":         "identify",
	})
}

// Issue mints a refresh token the server will accept, for seeding stored users.
func (s *Server) Issue(refreshToken string) {
	s.Set(func(s *Server) { s.issued["refresh:"+refreshToken] = true })
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.UserStatus != 0 {
		w.WriteHeader(s.UserStatus)
		return
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !s.issued["access:"+token] {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(s.Profile))
}

func (s *Server) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"issuer":                                s.URL,
		"authorization_endpoint":                s.URL + "/api/oauth2/authorize",
		"token_endpoint":                        s.URL + "/api/oauth2/token",
		"userinfo_endpoint":                     s.URL + "/api/users/@me",
		"jwks_uri":                              s.URL + "/keys",
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func writeOAuthError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
