// Package state issues and checks the CSRF state tokens that guard the
// provider redirect.
package state

import (
	"context"
	"errors"

	"github.com/brizzai/session-broker/internal/auth/autherr"
	"github.com/brizzai/session-broker/internal/auth/constants"
	"github.com/brizzai/session-broker/internal/entropy"
	"github.com/brizzai/session-broker/internal/kvstore"
)

// Manager keeps issued state tokens in the store until they are used or expire.
type Manager struct {
	store   kvstore.Store
	entropy entropy.Source
}

func NewManager(store kvstore.Store, source entropy.Source) *Manager {
	return &Manager{store: store, entropy: source}
}

func key(token string) string {
	return constants.StateKeyPrefix + token
}

// Generate issues a new state token valid for constants.StateTTL.
func (m *Manager) Generate(ctx context.Context) (string, error) {
	token, err := m.entropy.Generate(ctx)
	if err != nil {
		return "", autherr.Internal("generate state", err)
	}
	if err := m.store.Put(ctx, key(token), constants.StateValue, constants.StateTTL); err != nil {
		return "", autherr.Internal("generate state", err)
	}
	return token, nil
}

// Check reports whether token was issued and has not expired or been consumed.
func (m *Manager) Check(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	if _, err := m.store.Get(ctx, key(token)); err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return false, nil
		}
		return false, autherr.Internal("check state", err)
	}
	return true, nil
}

// Consume checks token and deletes it so it cannot validate a second
// callback. Two callbacks racing between the read and the delete may both
// pass.
func (m *Manager) Consume(ctx context.Context, token string) (bool, error) {
	ok, err := m.Check(ctx, token)
	if err != nil || !ok {
		return ok, err
	}
	if err := m.store.Delete(ctx, key(token)); err != nil {
		return false, autherr.Internal("consume state", err)
	}
	return true, nil
}
