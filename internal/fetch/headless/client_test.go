package headless

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawlkit/internal/engine"
)

func TestResponseMeta_CapturesDocumentResponse(t *testing.T) {
	meta := newResponseMeta()

	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status: 200,
			URL:    "https://example.com/rendered",
			Headers: network.Headers{
				"Content-Type": "text/html",
				"Set-Cookie":   []interface{}{"a=1", "b=2"},
			},
		},
	})

	status, headers, url := meta.snapshot()
	assert.Equal(t, 200, status)
	assert.Equal(t, "https://example.com/rendered", url)
	assert.Equal(t, "text/html", headers.Get("Content-Type"))
	assert.Equal(t, []string{"a=1", "b=2"}, headers.Values("Set-Cookie"))
}

func TestResponseMeta_IgnoresSubresources(t *testing.T) {
	meta := newResponseMeta()

	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 404, URL: "https://example.com/img.png"},
	})

	status, _, url := meta.snapshot()
	assert.Equal(t, 0, status)
	assert.Empty(t, url)
}

func TestResponseMeta_SnapshotFallbacks(t *testing.T) {
	meta := newResponseMeta()

	status, headers, url := meta.snapshotWithFallbacks("https://example.com/requested", "")
	assert.Equal(t, 200, status)
	require.NotNil(t, headers)
	assert.Equal(t, "https://example.com/requested", url)

	_, _, url = meta.snapshotWithFallbacks("https://example.com/requested", "https://example.com/final")
	assert.Equal(t, "https://example.com/final", url)
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestExecuteBatch_StampsHandleWithConfiguredClock(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	client, err := New(Config{Clock: fixedClock{now: now}})
	require.NoError(t, err)
	defer client.Close()

	// An empty batch never launches a tab, so the handle finishes
	// without a browser present.
	op := client.ExecuteBatch(context.Background(), nil, noopSink{})
	require.NoError(t, op.Join())
	assert.Equal(t, now, op.EnqueuedAt())
}

type noopSink struct{}

func (noopSink) AppendResponses([]*engine.Response) {}
