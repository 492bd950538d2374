// Package httpacquirer_test contains unit tests for the httpacquirer package.
package httpacquirer_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawlkit/internal/acquire/httpacquirer"
	"github.com/JakeFAU/crawlkit/internal/engine"
	"github.com/JakeFAU/crawlkit/internal/identity"
)

type profileSink struct {
	mu       sync.Mutex
	profiles []*engine.Profile
}

func (s *profileSink) AppendProfiles(ps []*engine.Profile) {
	s.mu.Lock()
	s.profiles = append(s.profiles, ps...)
	s.mu.Unlock()
}

func (s *profileSink) all() []*engine.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*engine.Profile(nil), s.profiles...)
}

func testPool(t *testing.T) *identity.Pool {
	t.Helper()
	pool, err := identity.NewPool([]string{"agent-a", "agent-b"})
	require.NoError(t, err)
	return pool
}

func TestExecuteBatch_LocalProfilesWithoutEndpoint(t *testing.T) {
	acquirer := httpacquirer.New(httpacquirer.Config{}, nil)
	sink := &profileSink{}

	op := acquirer.ExecuteBatch(context.Background(), "", testPool(t), 4, sink)
	require.NoError(t, op.Join())

	profiles := sink.all()
	require.Len(t, profiles, 4)
	agents := map[string]int{}
	for _, p := range profiles {
		require.NotEmpty(t, p.ID)
		require.False(t, p.AcquiredAt.IsZero())
		agents[p.Identity]++
	}
	// Round-robin over two identities splits the batch evenly.
	assert.Equal(t, map[string]int{"agent-a": 2, "agent-b": 2}, agents)
}

func TestExecuteBatch_HandshakeCapturesSessionCookies(t *testing.T) {
	var mu sync.Mutex
	seenAgents := map[string]bool{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seenAgents[r.Header.Get("User-Agent")] = true
		mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "session-123"})
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	acquirer := httpacquirer.New(httpacquirer.Config{}, nil)
	sink := &profileSink{}

	op := acquirer.ExecuteBatch(context.Background(), ts.URL, testPool(t), 2, sink)
	require.NoError(t, op.Join())

	profiles := sink.all()
	require.Len(t, profiles, 2)
	for _, p := range profiles {
		assert.Equal(t, "session-123", p.Session["sid"])
	}
	assert.True(t, seenAgents["agent-a"])
	assert.True(t, seenAgents["agent-b"])
}

func TestExecuteBatch_FailedHandshakeShrinksBatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no sessions available", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	acquirer := httpacquirer.New(httpacquirer.Config{}, nil)
	sink := &profileSink{}

	op := acquirer.ExecuteBatch(context.Background(), ts.URL, testPool(t), 3, sink)

	// Handshake failures never fail the batch handle.
	require.NoError(t, op.Join())
	assert.Empty(t, sink.all())
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestExecuteBatch_StampsHandleWithConfiguredClock(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	acquirer := httpacquirer.New(httpacquirer.Config{Clock: fixedClock{now: now}}, nil)
	sink := &profileSink{}

	op := acquirer.ExecuteBatch(context.Background(), "", testPool(t), 1, sink)
	require.NoError(t, op.Join())

	assert.Equal(t, now, op.EnqueuedAt())
	profiles := sink.all()
	require.Len(t, profiles, 1)
	assert.Equal(t, now, profiles[0].AcquiredAt)
}
