// Package collyfetch_test contains unit tests for the collyfetch package.
package collyfetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawlkit/internal/engine"
	collyfetch "github.com/JakeFAU/crawlkit/internal/fetch/colly"
)

type collectSink struct {
	mu        sync.Mutex
	responses []*engine.Response
}

func (s *collectSink) AppendResponses(rs []*engine.Response) {
	s.mu.Lock()
	s.responses = append(s.responses, rs...)
	s.mu.Unlock()
}

func (s *collectSink) all() []*engine.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*engine.Response(nil), s.responses...)
}

func TestExecuteBatch_FetchesWithProfileIdentity(t *testing.T) {
	var gotUA, gotCookie string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		gotUA = r.Header.Get("User-Agent")
		gotCookie = r.Header.Get("Cookie")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html><title>ok</title></html>"))
	}))
	defer ts.Close()

	client := collyfetch.New(collyfetch.Config{Timeout: 5 * time.Second}, nil)
	sink := &collectSink{}

	op := client.ExecuteBatch(context.Background(), []*engine.Request{{
		ID:     "r1",
		URL:    ts.URL + "/page",
		Method: http.MethodGet,
		Profile: &engine.Profile{
			Identity: "crawl-test/1.0",
			Session:  map[string]string{"sid": "abc", "region": "us"},
		},
	}}, sink)

	require.NoError(t, op.Join())

	responses := sink.all()
	require.Len(t, responses, 1)
	res := responses[0]
	assert.False(t, res.Failed())
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(res.Body), "<title>ok</title>")
	assert.Equal(t, "r1", res.Request.ID)
	assert.Positive(t, res.Duration)

	assert.Equal(t, "crawl-test/1.0", gotUA)
	assert.Equal(t, "region=us; sid=abc", gotCookie)
}

func TestExecuteBatch_OneResponsePerRequest(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := collyfetch.New(collyfetch.Config{Parallelism: 2}, nil)
	sink := &collectSink{}

	reqs := []*engine.Request{
		{ID: "a", URL: ts.URL + "/a"},
		{ID: "b", URL: ts.URL + "/b"},
		{ID: "c", URL: ts.URL + "/c"},
	}
	op := client.ExecuteBatch(context.Background(), reqs, sink)
	require.NoError(t, op.Join())

	assert.Len(t, sink.all(), 3)
}

func TestExecuteBatch_EncodesFailureInResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	url := ts.URL
	ts.Close() // connection refused from here on

	client := collyfetch.New(collyfetch.Config{}, nil)
	sink := &collectSink{}

	op := client.ExecuteBatch(context.Background(), []*engine.Request{{ID: "r1", URL: url}}, sink)

	// The batch itself succeeds; the failure lives in the response.
	require.NoError(t, op.Join())
	responses := sink.all()
	require.Len(t, responses, 1)
	assert.True(t, responses[0].Failed())
	assert.NotEmpty(t, responses[0].Error)
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestExecuteBatch_StampsHandleWithConfiguredClock(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	client := collyfetch.New(collyfetch.Config{
		Timeout: 5 * time.Second,
		Clock:   fixedClock{now: now},
	}, nil)
	sink := &collectSink{}

	op := client.ExecuteBatch(context.Background(), []*engine.Request{{
		ID:     "r1",
		URL:    ts.URL + "/page",
		Method: http.MethodGet,
	}}, sink)
	require.NoError(t, op.Join())

	assert.Equal(t, now, op.EnqueuedAt())
	responses := sink.all()
	require.Len(t, responses, 1)
	assert.Equal(t, now, responses[0].FetchedAt)
}
