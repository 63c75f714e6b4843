// Package session binds opaque session identifiers to stored users.
package session

import (
	"context"
	"errors"
	"net/http"

	"github.com/brizzai/session-broker/internal/auth/autherr"
	"github.com/brizzai/session-broker/internal/auth/constants"
	"github.com/brizzai/session-broker/internal/auth/models"
	"github.com/brizzai/session-broker/internal/config"
	"github.com/brizzai/session-broker/internal/entropy"
	"github.com/brizzai/session-broker/internal/kvstore"
	"github.com/brizzai/session-broker/internal/logger"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

var (
	// ErrNotFound means the session or its user record does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrNoSession means the request carries no usable session cookie.
	ErrNoSession = errors.New("no session cookie")
)

// Identifier fetches the profile behind an access token.
type Identifier interface {
	Identify(ctx context.Context, accessToken string) (*models.Profile, error)
}

// Store keeps session mappings and user records in a kvstore.Store.
type Store struct {
	kv         kvstore.Store
	entropy    entropy.Source
	identifier Identifier
	clock      clock.PassiveClock
	cookieName string
	idPath     string
}

// Option configures a Store.
type Option func(*Store)

// WithIDPath sets where the user id sits in stored profiles.
func WithIDPath(path string) Option {
	return func(s *Store) {
		s.idPath = path
	}
}

// Persisted is the outcome of a completed login.
type Persisted struct {
	SessionID string
	User      *models.StoredUser
	Cookie    *http.Cookie
}

func NewStore(kv kvstore.Store, source entropy.Source, identifier Identifier, clk clock.PassiveClock, cfg *config.SessionConfig, opts ...Option) *Store {
	name := cfg.CookieName
	if name == "" {
		name = constants.DefaultCookieName
	}
	s := &Store{
		kv:         kv,
		entropy:    source,
		identifier: identifier,
		clock:      clk,
		cookieName: name,
		idPath:     models.DefaultIDPath,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sessionKey(id string) string {
	return constants.SessionKeyPrefix + id
}

// CookieName is the name of the session cookie.
func (s *Store) CookieName() string {
	return s.cookieName
}

// Persist identifies the token's owner, stores the user record and opens a
// new session for it.
func (s *Store) Persist(ctx context.Context, token *models.AuthToken) (*Persisted, error) {
	const op = "persist session"

	profile, err := s.identifier.Identify(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	user := &models.StoredUser{User: profile, Auth: *token}
	if err := s.write(ctx, user); err != nil {
		return nil, err
	}

	id, err := s.entropy.Generate(ctx)
	if err != nil {
		return nil, autherr.Internal(op, err)
	}
	if err := s.kv.Put(ctx, sessionKey(id), user.ID(), constants.SessionTTL); err != nil {
		return nil, autherr.Internal(op, err)
	}

	logger.FromContext(ctx).Info("Session created", zap.String("user_id", user.ID()))

	return &Persisted{
		SessionID: id,
		User:      user,
		Cookie:    s.Cookie(id),
	}, nil
}

// Lookup resolves a session id to its user record.
func (s *Store) Lookup(ctx context.Context, sessionID string) (*models.StoredUser, error) {
	const op = "lookup session"

	userID, err := s.kv.Get(ctx, sessionKey(sessionID))
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, autherr.Internal(op, err)
	}

	raw, err := s.kv.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, autherr.Internal(op, err)
	}

	user, err := models.DecodeStoredUserAt(raw, s.idPath)
	if err != nil {
		return nil, autherr.Parse(op, err)
	}
	return user, nil
}

// SaveAuth replaces the user's token pair, keeping the profile.
func (s *Store) SaveAuth(ctx context.Context, user *models.StoredUser, token *models.AuthToken) (*models.StoredUser, error) {
	updated := &models.StoredUser{User: user.User, Auth: *token}
	if err := s.write(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// Revoke deletes the session mapping. The user record is left in place.
func (s *Store) Revoke(ctx context.Context, sessionID string) error {
	if err := s.kv.Delete(ctx, sessionKey(sessionID)); err != nil {
		return autherr.Internal("revoke session", err)
	}
	return nil
}

func (s *Store) write(ctx context.Context, user *models.StoredUser) error {
	value, err := user.Encode()
	if err != nil {
		return autherr.Parse("store user", err)
	}
	if err := s.kv.Put(ctx, user.ID(), value, kvstore.NoExpiry); err != nil {
		return autherr.Internal("store user", err)
	}
	return nil
}
