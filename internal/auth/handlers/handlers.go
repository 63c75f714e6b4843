package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/brizzai/session-broker/internal/auth"
	"github.com/brizzai/session-broker/internal/auth/autherr"
	"github.com/brizzai/session-broker/internal/auth/middleware"
	"github.com/brizzai/session-broker/internal/auth/staff"
	"github.com/brizzai/session-broker/internal/config"
	"github.com/brizzai/session-broker/internal/logger"
	"github.com/brizzai/session-broker/internal/metrics"
	"github.com/brizzai/session-broker/internal/utils"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// HealthChecker reports whether the backing store is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Handler serves the broker's HTTP surface
type Handler struct {
	service     *auth.Service
	issuer      *staff.Issuer
	health      HealthChecker
	metrics     *metrics.Recorder
	metricsPath string
	origins     []config.OriginRule
}

// NewHandler creates a new Handler instance. issuer and recorder may be nil.
func NewHandler(cfg *config.Config, service *auth.Service, issuer *staff.Issuer, health HealthChecker, recorder *metrics.Recorder) *Handler {
	return &Handler{
		service:     service,
		issuer:      issuer,
		health:      health,
		metrics:     recorder,
		metricsPath: cfg.Metrics.Path,
		origins:     cfg.CORS.AllowOrigins,
	}
}

// Routes builds the router
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.NotFound(h.HandleNotFound)
	r.MethodNotAllowed(h.HandleNotFound)

	r.Get("/healthz", h.HandleHealth)
	if h.metrics != nil && h.metricsPath != "" {
		r.Method(http.MethodGet, h.metricsPath, h.metrics.Handler())
	}

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", h.HandleLogin)
		r.Get("/callback", h.HandleCallback)
		r.Get("/logout", h.HandleLogout)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.CORS(h.origins, http.MethodGet))
		r.Options("/user", h.HandleUserPreflight)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser(h.service, h.writeError))
			r.Get("/user", h.HandleUser)
			r.Get("/token", h.HandleToken)
			r.Get("/*", h.HandleNotFound)
		})
	})

	return r
}

// HandleLogin handles /auth/login
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Authorize(r.Context(), r, true)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	switch result.Outcome {
	case auth.Authenticated:
		http.Redirect(w, r, h.service.FinalRedirectURL(), http.StatusFound)
	default:
		http.Redirect(w, r, result.RedirectURL, http.StatusFound)
	}
}

// HandleCallback handles the provider redirect to /auth/callback
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	completion, err := h.service.CompleteRedirect(r.Context(), r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !completion.Handled {
		h.writeError(w, r, autherr.Unauthorized("complete redirect", nil))
		return
	}

	logger.FromContext(r.Context()).Info("User logged in", zap.String("user_id", completion.User.ID()))

	http.SetCookie(w, completion.Cookie)
	w.Header().Set("Location", completion.Location)
	w.WriteHeader(http.StatusFound)
}

// HandleLogout handles /auth/logout
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := h.service.Logout(r.Context(), r.Header.Get("Cookie"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if cookie != nil {
		http.SetCookie(w, cookie)
	}
	middleware.SetCORSHeaders(w.Header(), r.Header.Get("Origin"), h.origins, []string{http.MethodGet})
	http.Redirect(w, r, h.service.FinalRedirectURL(), http.StatusFound)
}

// HandleUser returns the signed-in user's profile
func (h *Handler) HandleUser(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.writeError(w, r, autherr.Unauthorized("user", nil))
		return
	}

	utils.WriteRawJSON(w, http.StatusOK, user.User.Raw)
}

// HandleUserPreflight answers the CORS preflight for /api/user
func (h *Handler) HandleUserPreflight(w http.ResponseWriter, _ *http.Request) {
	utils.WriteText(w, http.StatusOK, "OK")
}

// HandleToken issues a staff credential for the signed-in user
func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	if h.issuer == nil {
		h.HandleNotFound(w, r)
		return
	}
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.writeError(w, r, autherr.Unauthorized("token", nil))
		return
	}

	token, err := h.issuer.Issue(user)
	if err != nil {
		h.writeError(w, r, autherr.Internal("issue staff token", err))
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	utils.WriteJSON(w, map[string]interface{}{
		"token": token,
		"staff": h.issuer.IsStaff(user.ID()),
	})
}

// HandleHealth reports store connectivity
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.health.Ping(ctx); err != nil {
		logger.FromContext(r.Context()).Warn("Health check failed", zap.Error(err))
		utils.WriteError(w, "unavailable", "store unreachable", http.StatusServiceUnavailable)
		return
	}
	utils.WriteJSON(w, map[string]string{"status": "ok"})
}

// HandleNotFound is the catch-all
func (h *Handler) HandleNotFound(w http.ResponseWriter, _ *http.Request) {
	utils.WriteText(w, http.StatusNotFound, "Not Found.")
}

// writeError maps an error to its status and attaches CORS headers so
// browsers can read it
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := autherr.HTTPStatus(err)
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		log.Debug("Request unauthorized", zap.String("path", r.URL.Path), zap.Error(err))
	}

	middleware.SetCORSHeaders(w.Header(), r.Header.Get("Origin"), h.origins, []string{http.MethodGet})
	utils.WriteError(w, autherr.KindOf(err).String(), autherr.Describe(err), status)
}
