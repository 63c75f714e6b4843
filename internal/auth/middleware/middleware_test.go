package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/brizzai/session-broker/internal/auth"
	"github.com/brizzai/session-broker/internal/auth/autherr"
	"github.com/brizzai/session-broker/internal/auth/models"
	"github.com/brizzai/session-broker/internal/config"
	"github.com/brizzai/session-broker/internal/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type authorizerFunc func(ctx context.Context, r *http.Request, allowRedirect bool) (auth.Result, error)

func (f authorizerFunc) Authorize(ctx context.Context, r *http.Request, allowRedirect bool) (auth.Result, error) {
	return f(ctx, r, allowRedirect)
}

func TestRequireUser(t *testing.T) {
	profile, err := models.NewProfile([]byte(`{"id":"1234"}`))
	require.NoError(t, err)
	user := &models.StoredUser{User: profile}

	tests := []struct {
		name       string
		result     auth.Result
		err        error
		wantStatus int
	}{
		{name: "authenticated", result: auth.Result{Outcome: auth.Authenticated, User: user}, wantStatus: http.StatusOK},
		{name: "unauthorized", err: autherr.Unauthorized("verify session", nil), wantStatus: http.StatusUnauthorized},
		{name: "provider error", err: autherr.Provider("refresh token", "500 Internal Server Error", nil), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authorizer := authorizerFunc(func(_ context.Context, _ *http.Request, allowRedirect bool) (auth.Result, error) {
				assert.False(t, allowRedirect, "guards never start a login")
				return tt.result, tt.err
			})
			writeError := func(w http.ResponseWriter, _ *http.Request, err error) {
				w.WriteHeader(autherr.HTTPStatus(err))
			}

			var seen *models.StoredUser
			handler := RequireUser(authorizer, writeError)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = UserFromContext(r.Context())
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/user", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, user, seen)
			} else {
				assert.Nil(t, seen)
			}
		})
	}
}

func TestSetCORSHeaders(t *testing.T) {
	rules := config.DefaultOrigins(config.EnvironmentStaging)

	tests := []struct {
		name            string
		origin          string
		wantOrigin      string
		wantCredentials string
	}{
		{name: "exact match", origin: "https://staging--message.anothercat.me", wantOrigin: "https://staging--message.anothercat.me", wantCredentials: "true"},
		{name: "localhost", origin: "http://localhost:3000", wantOrigin: "http://localhost:3000", wantCredentials: "true"},
		{name: "netlify preview", origin: "https://deploy-preview-12--musing-hugle-9b7494.netlify.app", wantOrigin: "https://deploy-preview-12--musing-hugle-9b7494.netlify.app", wantCredentials: "true"},
		{name: "netlify site root", origin: "https://musing-hugle-9b7494.netlify.app", wantOrigin: "https://musing-hugle-9b7494.netlify.app", wantCredentials: "true"},
		{name: "wildcard host as prefix of attacker domain", origin: "https://musing-hugle-9b7494.netlify.app.attacker.example", wantOrigin: "https://message.anothercat.me", wantCredentials: "false"},
		{name: "wildcard host glued to attacker label", origin: "https://evilmusing-hugle-9b7494.netlify.app", wantOrigin: "https://message.anothercat.me", wantCredentials: "false"},
		{name: "wildcard over plain http", origin: "http://deploy-preview-12--musing-hugle-9b7494.netlify.app", wantOrigin: "https://message.anothercat.me", wantCredentials: "false"},
		{name: "wildcard with port", origin: "https://musing-hugle-9b7494.netlify.app:8443", wantOrigin: "https://message.anothercat.me", wantCredentials: "false"},
		{name: "prefix of allowed origin", origin: "https://message.anothercat", wantOrigin: "https://message.anothercat.me", wantCredentials: "false"},
		{name: "unknown", origin: "https://evil.example", wantOrigin: "https://message.anothercat.me", wantCredentials: "false"},
		{name: "no origin", origin: "", wantOrigin: "https://message.anothercat.me", wantCredentials: "false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			SetCORSHeaders(h, tt.origin, rules, []string{http.MethodGet})
			assert.Equal(t, tt.wantOrigin, h.Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCredentials, h.Get("Access-Control-Allow-Credentials"))
			assert.Equal(t, "GET", h.Get("Access-Control-Allow-Methods"))
			assert.Equal(t, "Origin", h.Get("Vary"))
		})
	}
}

func TestCORS_Production(t *testing.T) {
	handler := CORS(config.DefaultOrigins(config.EnvironmentProduction))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://message.anothercat.me", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "false", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger.SetLogger(zap.New(core))
	t.Cleanup(func() { logger.SetLogger(nil) })

	handler := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Info("inside")
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?state=secret&code=secret", nil))

	requestID := rec.Header().Get(RequestIDHeader)
	require.NotEmpty(t, requestID)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, requestID, entries[0].ContextMap()["request_id"])

	fields := entries[1].ContextMap()
	assert.Equal(t, requestID, fields["request_id"])
	assert.Equal(t, "/auth/callback", fields["path"])
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
	assert.NotContains(t, entries[1].Message+fields["path"].(string), "secret")
}

func TestRequestLogger_KeepsIncomingID(t *testing.T) {
	handler := RequestLogger(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "abc", rec.Header().Get(RequestIDHeader))
}

func TestRequestLogger_ReplacesUntrustedID(t *testing.T) {
	handler := RequestLogger(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	for name, id := range map[string]string{
		"too long":      strings.Repeat("a", 65),
		"log injection": "abc\" request_id=forged",
		"control chars": "abc\x1b[31m",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			req.Header.Set(RequestIDHeader, id)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			assert.NotEqual(t, id, got)
			_, err := uuid.Parse(got)
			assert.NoError(t, err)
		})
	}
}
