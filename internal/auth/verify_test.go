package auth

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/brizzai/session-broker/internal/auth/autherr"
	"github.com/brizzai/session-broker/internal/auth/models"
	"github.com/brizzai/session-broker/internal/auth/providers"
	"github.com/brizzai/session-broker/internal/auth/providers/providertest"
	"github.com/brizzai/session-broker/internal/entropy"
	"github.com/brizzai/session-broker/internal/kvstore"
	"github.com/brizzai/session-broker/internal/metrics"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

const concurrentVerifies = 16

// newLiveService wires the service to miniredis and an in-process provider,
// with one seeded session "s1" for user 1234.
func newLiveService(t *testing.T, expiresAt int64) (*Service, *miniredis.Miniredis, *providertest.Server, string) {
	t.Helper()

	server := providertest.NewServer(t)
	server.Issue("rt-old")

	cfg := testConfig()
	cfg.OAuth.ClientID = providertest.ClientID
	cfg.OAuth.ClientSecret = providertest.ClientSecret
	cfg.OAuth.APIBaseURL = server.APIBaseURL()

	p, err := providers.NewProvider(context.Background(), cfg, clocktesting.NewFakePassiveClock(testNow), providers.WithHTTPClient(server.Client()))
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	_, encoded := storedUser(t, expiresAt)
	require.NoError(t, mr.Set("1234", encoded))
	require.NoError(t, mr.Set("session-s1", "1234"))

	svc := newService(cfg, kvstore.NewRedisStore(client, ""), entropy.NewLocalSource(), p, metrics.NewRecorder())
	return svc, mr, server, encoded
}

type verifyResult struct {
	user *models.StoredUser
	err  error
}

func verifyConcurrently(svc *Service) []verifyResult {
	results := make([]verifyResult, concurrentVerifies)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user, err := svc.Verify(context.Background(), "mm-s-id=s1")
			results[i] = verifyResult{user: user, err: err}
		}(i)
	}
	wg.Wait()
	return results
}

func TestService_VerifyConcurrentFresh(t *testing.T) {
	svc, mr, server, before := newLiveService(t, testNow.Unix()+3600)
	want, _ := storedUser(t, testNow.Unix()+3600)

	for _, res := range verifyConcurrently(svc) {
		require.NoError(t, res.err)
		if diff := cmp.Diff(want, res.user); diff != "" {
			t.Errorf("user changed (-want +got):\n%s", diff)
		}
	}

	assert.Empty(t, server.Refreshes())
	after, err := mr.Get("1234")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestService_VerifyConcurrentExpired(t *testing.T) {
	svc, mr, server, _ := newLiveService(t, testNow.Unix()-1)

	for _, res := range verifyConcurrently(svc) {
		require.NoError(t, res.err)
		assert.Greater(t, res.user.Auth.ExpiresAt, testNow.Unix())
		assert.Equal(t, "1234", res.user.ID())
	}
	assert.Len(t, server.Refreshes(), concurrentVerifies)

	raw, err := mr.Get("1234")
	require.NoError(t, err)
	saved, err := models.DecodeStoredUser(raw)
	require.NoError(t, err)

	// whichever refresh landed last, its access and refresh tokens belong together
	assert.Equal(t, testNow.Unix()+604800-10, saved.Auth.ExpiresAt)
	require.True(t, strings.HasPrefix(saved.Auth.AccessToken, "access-"), saved.Auth.AccessToken)
	assert.Equal(t,
		strings.TrimPrefix(saved.Auth.AccessToken, "access-"),
		strings.TrimPrefix(saved.Auth.RefreshToken, "refresh-"),
	)
	assert.JSONEq(t, profileRaw, string(saved.User.Raw))
}

func TestService_VerifyConcurrentRefreshFailure(t *testing.T) {
	svc, mr, server, before := newLiveService(t, testNow.Unix()-1)
	server.Set(func(s *providertest.Server) { s.TokenStatus = http.StatusBadGateway })

	for _, res := range verifyConcurrently(svc) {
		assert.Nil(t, res.user)
		assert.True(t, autherr.IsProvider(res.err), "got %v", res.err)
	}

	after, err := mr.Get("1234")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
