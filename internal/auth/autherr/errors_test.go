package autherr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name         string
		err          error
		kind         Kind
		status       int
		unauthorized bool
		provider     bool
	}{
		{name: "unauthorized", err: Unauthorized("verify", nil), kind: KindUnauthorized, status: http.StatusUnauthorized, unauthorized: true},
		{name: "wrapped unauthorized", err: fmt.Errorf("login: %w", Unauthorized("verify", base)), kind: KindUnauthorized, status: http.StatusUnauthorized, unauthorized: true},
		{name: "provider", err: Provider("refresh", "400 Bad Request", base), kind: KindProvider, status: http.StatusInternalServerError, provider: true},
		{name: "parse", err: Parse("lookup", base), kind: KindParse, status: http.StatusInternalServerError},
		{name: "plain error", err: base, kind: KindInternal, status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
			assert.Equal(t, tt.unauthorized, IsUnauthorized(tt.err))
			assert.Equal(t, tt.provider, IsProvider(tt.err))
		})
	}
}

func TestError_Message(t *testing.T) {
	err := Provider("exchange code", "401 Unauthorized", errors.New("invalid_client"))
	assert.Equal(t, "exchange code: provider_error (401 Unauthorized): invalid_client", err.Error())
	assert.Equal(t, "unauthorized", Unauthorized("", nil).Error())
}

func TestError_Unwrap(t *testing.T) {
	base := errors.New("boom")
	assert.ErrorIs(t, Internal("persist", base), base)
	assert.False(t, IsUnauthorized(nil))
}
