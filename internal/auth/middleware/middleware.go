package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brizzai/session-broker/internal/auth"
	"github.com/brizzai/session-broker/internal/auth/models"
	"github.com/brizzai/session-broker/internal/config"
	"github.com/brizzai/session-broker/internal/logger"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type userContextKey struct{}

// RequestIDHeader carries the request id back to the client.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 64

// validRequestID accepts short ids made of letters, digits, '.', '_' and '-'.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}

// Authorizer resolves the user behind a request.
type Authorizer interface {
	Authorize(ctx context.Context, r *http.Request, allowRedirect bool) (auth.Result, error)
}

// ErrorWriter renders a failed request.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// WithUser stores user in ctx.
func WithUser(ctx context.Context, user *models.StoredUser) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the user stored by RequireUser.
func UserFromContext(ctx context.Context) (*models.StoredUser, bool) {
	user, ok := ctx.Value(userContextKey{}).(*models.StoredUser)
	return user, ok && user != nil
}

// RequireUser rejects requests without a valid session. It never starts a
// login redirect.
func RequireUser(authorizer Authorizer, writeError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, err := authorizer.Authorize(r.Context(), r, false)
			if err != nil {
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), result.User)))
		})
	}
}

// MatchOrigin finds the allow-list entry for origin. Non-wildcard rules must
// be equal to origin. A wildcard rule holds a host: it matches https origins
// whose host is that host or a "." or "--" prefixed subdomain of it, as in
// deploy-preview-12--site.netlify.app.
func MatchOrigin(rules []config.OriginRule, origin string) (config.OriginRule, bool) {
	if origin == "" {
		return config.OriginRule{}, false
	}
	for _, rule := range rules {
		if rule.Wildcard {
			if matchWildcard(rule.Origin, origin) {
				return rule, true
			}
			continue
		}
		if rule.Origin == origin {
			return rule, true
		}
	}
	return config.OriginRule{}, false
}

func matchWildcard(host, origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme != "https" || u.Port() != "" {
		return false
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" || u.User != nil {
		return false
	}
	h := strings.ToLower(u.Hostname())
	host = strings.ToLower(host)
	return h == host || strings.HasSuffix(h, "."+host) || strings.HasSuffix(h, "--"+host)
}

// SetCORSHeaders writes the CORS response headers for the request's Origin.
// Unknown origins get the first allowed origin and no credentials.
func SetCORSHeaders(h http.Header, origin string, rules []config.OriginRule, methods []string) {
	allowOrigin := ""
	credentials := "false"
	if rule, ok := MatchOrigin(rules, origin); ok {
		allowOrigin = rule.Origin
		credentials = "true"
		// wildcard rules hold a host, echo the verified origin
		if rule.Wildcard {
			allowOrigin = origin
		}
	} else if len(rules) > 0 {
		allowOrigin = rules[0].Origin
	}

	if allowOrigin != "" {
		h.Set("Access-Control-Allow-Origin", allowOrigin)
	}
	h.Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
	h.Set("Access-Control-Allow-Credentials", credentials)
	for _, v := range h.Values("Vary") {
		if v == "Origin" {
			return
		}
	}
	h.Add("Vary", "Origin")
}

// CORS attaches CORS headers to every response of the wrapped handler.
func CORS(rules []config.OriginRule, methods ...string) func(http.Handler) http.Handler {
	if len(methods) == 0 {
		methods = []string{http.MethodGet}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			SetCORSHeaders(w.Header(), r.Header.Get("Origin"), rules, methods)
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger tags each request with an id and logs it once served.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if !validRequestID(requestID) {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		reqLogger := logger.With(zap.String("request_id", requestID))
		ctx := logger.WithContext(r.Context(), reqLogger)

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		reqLogger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("user_agent", r.UserAgent()),
		)
	})
}
