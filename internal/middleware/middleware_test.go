// Package middleware_test contains unit tests for the middleware package.
package middleware_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawlkit/internal/engine"
	"github.com/JakeFAU/crawlkit/internal/middleware"
)

type uppercase struct{}

func (uppercase) ProcessResponses(_ context.Context, rs []*engine.Response) ([]*engine.Response, error) {
	return rs, nil
}

func (uppercase) ProcessEntities(_ context.Context, es []string) ([]string, error) {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e + "!"
	}
	return out, nil
}

func TestChain_AppliesMiddlewareInOrder(t *testing.T) {
	chain := middleware.NewChain[string](uppercase{}, uppercase{})

	es, err := chain.ProcessEntities(context.Background(), []string{"page"})
	require.NoError(t, err)
	assert.Equal(t, []string{"page!!"}, es)

	rs, err := chain.ProcessResponses(context.Background(), []*engine.Response{{StatusCode: 200}})
	require.NoError(t, err)
	assert.Len(t, rs, 1)
}

func TestChain_EmptyIsPassthrough(t *testing.T) {
	chain := middleware.NewChain[string]()

	es, err := chain.ProcessEntities(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, es)
}

func TestDedupe_DropsRepeatedBodies(t *testing.T) {
	dedupe := middleware.NewDedupe[string](nil)

	batch := []*engine.Response{
		{Request: &engine.Request{URL: "https://a.example.com/"}, Body: []byte("same body")},
		{Request: &engine.Request{URL: "https://b.example.com/"}, Body: []byte("same body")},
		{Request: &engine.Request{URL: "https://c.example.com/"}, Body: []byte("other body")},
	}

	kept, err := dedupe.ProcessResponses(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, kept, 2)
	assert.Equal(t, "https://a.example.com/", kept[0].Request.URL)
	assert.Equal(t, "https://c.example.com/", kept[1].Request.URL)

	// Deduplication state persists across batches.
	later, err := dedupe.ProcessResponses(context.Background(), []*engine.Response{
		{Request: &engine.Request{URL: "https://d.example.com/"}, Body: []byte("other body")},
	})
	require.NoError(t, err)
	assert.Empty(t, later)
}

func TestDedupe_PassesFailuresThrough(t *testing.T) {
	dedupe := middleware.NewDedupe[string](nil)

	batch := []*engine.Response{
		{Request: &engine.Request{URL: "https://a.example.com/down"}, Error: "timeout"},
		{Request: &engine.Request{URL: "https://b.example.com/down"}, Error: "timeout"},
	}

	kept, err := dedupe.ProcessResponses(context.Background(), batch)
	require.NoError(t, err)
	assert.Len(t, kept, 2)
}
