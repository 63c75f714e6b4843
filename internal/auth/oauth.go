package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/brizzai/session-broker/internal/auth/autherr"
	"github.com/brizzai/session-broker/internal/auth/constants"
	"github.com/brizzai/session-broker/internal/auth/models"
	"github.com/brizzai/session-broker/internal/auth/providers"
	"github.com/brizzai/session-broker/internal/auth/session"
	"github.com/brizzai/session-broker/internal/auth/state"
	"github.com/brizzai/session-broker/internal/config"
	"github.com/brizzai/session-broker/internal/logger"
	"github.com/brizzai/session-broker/internal/metrics"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

// Outcome tells the caller whether the request can proceed.
type Outcome int

const (
	Authenticated Outcome = iota
	NeedsLogin
)

// Result is returned by Authorize.
type Result struct {
	Outcome Outcome
	// User is set when Outcome is Authenticated.
	User *models.StoredUser
	// RedirectURL is the provider authorize URL when Outcome is NeedsLogin.
	RedirectURL string
}

// Completion is returned by CompleteRedirect. Handled is false when the
// request is not a valid callback.
type Completion struct {
	Handled  bool
	Cookie   *http.Cookie
	Location string
	User     *models.StoredUser
}

// Service runs the login handshake and keeps sessions fresh
type Service struct {
	config   *config.SessionConfig
	provider providers.Provider
	states   *state.Manager
	sessions *session.Store
	clock    clock.PassiveClock
	metrics  *metrics.Recorder
}

// NewService creates a new OAuth service
func NewService(cfg *config.Config, provider providers.Provider, states *state.Manager, sessions *session.Store, clk clock.PassiveClock, recorder *metrics.Recorder) *Service {
	return &Service{
		config:   &cfg.Session,
		provider: provider,
		states:   states,
		sessions: sessions,
		clock:    clk,
		metrics:  recorder,
	}
}

// Verify resolves the session in cookieHeader to its user, refreshing the
// access token when it has expired. A fresh token causes no store write.
func (s *Service) Verify(ctx context.Context, cookieHeader string) (*models.StoredUser, error) {
	const op = "verify session"

	id, err := s.sessions.SessionID(cookieHeader)
	if err != nil {
		s.metrics.Verification(metrics.ResultUnauthorized)
		return nil, autherr.Unauthorized(op, err)
	}

	user, err := s.sessions.Lookup(ctx, id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			s.metrics.Verification(metrics.ResultUnauthorized)
			return nil, autherr.Unauthorized(op, err)
		}
		s.metrics.Verification(metrics.ResultError)
		return nil, err
	}

	if !user.Auth.Expired(s.clock.Now()) {
		s.metrics.Verification(metrics.ResultFresh)
		return user, nil
	}

	// Concurrent requests past expiry may each refresh; the last write wins.
	token, err := s.provider.Refresh(ctx, user.Auth.RefreshToken)
	if err != nil {
		s.metrics.Refresh(metrics.ResultError)
		s.metrics.Verification(metrics.ResultError)
		logger.FromContext(ctx).Error("Failed to refresh access token",
			zap.String("user_id", user.ID()),
			zap.Error(err),
		)
		return nil, err
	}
	s.metrics.Refresh(metrics.ResultSuccess)

	refreshed, err := s.sessions.SaveAuth(ctx, user, token)
	if err != nil {
		s.metrics.Verification(metrics.ResultError)
		return nil, err
	}
	s.metrics.Verification(metrics.ResultRefreshed)
	logger.FromContext(ctx).Debug("Access token refreshed", zap.String("user_id", user.ID()))
	return refreshed, nil
}

// Authorize verifies the request's session. With allowRedirect an
// unauthenticated request yields NeedsLogin and a fresh state; without it the
// Unauthorized error is returned. Other errors always propagate.
func (s *Service) Authorize(ctx context.Context, r *http.Request, allowRedirect bool) (Result, error) {
	user, err := s.Verify(ctx, r.Header.Get("Cookie"))
	if err == nil {
		return Result{Outcome: Authenticated, User: user}, nil
	}
	if !allowRedirect || !autherr.IsUnauthorized(err) {
		return Result{}, err
	}

	st, err := s.states.Generate(ctx)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Outcome:     NeedsLogin,
		RedirectURL: s.provider.AuthCodeURL(st),
	}, nil
}

// CompleteRedirect finishes the handshake when r is a provider callback with
// a known state and a code.
func (s *Service) CompleteRedirect(ctx context.Context, r *http.Request) (Completion, error) {
	query := r.URL.Query()

	st := query.Get(constants.StateQueryParam)
	if st == "" {
		return Completion{}, nil
	}

	check := s.states.Check
	if s.config.SingleUseState {
		check = s.states.Consume
	}
	known, err := check(ctx, st)
	if err != nil {
		s.metrics.Login(metrics.ResultError)
		return Completion{}, err
	}
	if !known {
		s.metrics.Login(metrics.ResultRejected)
		logger.FromContext(ctx).Warn("Callback with unknown state")
		return Completion{}, nil
	}

	code := query.Get(constants.CodeQueryParam)
	if code == "" {
		s.metrics.Login(metrics.ResultRejected)
		return Completion{}, nil
	}

	token, err := s.provider.ExchangeCode(ctx, code)
	if err != nil {
		s.metrics.Login(metrics.ResultError)
		return Completion{}, err
	}

	persisted, err := s.sessions.Persist(ctx, token)
	if err != nil {
		s.metrics.Login(metrics.ResultError)
		return Completion{}, err
	}
	s.metrics.Login(metrics.ResultSuccess)

	return Completion{
		Handled:  true,
		Cookie:   persisted.Cookie,
		Location: s.config.FinalRedirectURL,
		User:     persisted.User,
	}, nil
}

// Logout revokes the request's session and returns the cookie that clears it
// in the browser. It returns nil when the request carries no session.
func (s *Service) Logout(ctx context.Context, cookieHeader string) (*http.Cookie, error) {
	id, err := s.sessions.SessionID(cookieHeader)
	if err != nil {
		return nil, nil
	}
	if err := s.sessions.Revoke(ctx, id); err != nil {
		return nil, err
	}
	return s.sessions.ExpiredCookie(), nil
}

// FinalRedirectURL is where the browser is sent once authenticated.
func (s *Service) FinalRedirectURL() string {
	return s.config.FinalRedirectURL
}
