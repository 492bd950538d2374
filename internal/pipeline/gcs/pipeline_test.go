// Package gcs_test contains unit tests for the gcs pipeline.
package gcs_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/JakeFAU/crawlkit/internal/pipeline/gcs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

type article struct {
	URL string `json:"url"`
}

// newTestPipeline creates a pipeline pointed at a fake GCS JSON API.
func newTestPipeline(t *testing.T, handler http.Handler, prefix string) (*gcs.Pipeline[article], func()) {
	t.Helper()

	server := httptest.NewServer(handler)

	// Create a client that connects to the test server.
	// We also disable authentication for the test client.
	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)

	p, err := gcs.New[article](client, gcs.Config{Bucket: "test-bucket", Prefix: prefix})
	require.NoError(t, err)

	return p, server.Close
}

func TestPipeline_FlushEntities(t *testing.T) {
	nameRE := regexp.MustCompile(`^archive/entities/\d{8}T\d{6}Z-[0-9a-f-]{36}\.json$`)

	// This handler simulates the GCS JSON API for multipart uploads.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/test-bucket/o")
		assert.Equal(t, "multipart", r.URL.Query().Get("uploadType"))

		name := r.URL.Query().Get("name")
		assert.Regexp(t, nameRE, name)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `{"url":"https://example.com/a"}`)
		assert.Contains(t, string(body), "application/json")

		fmt.Fprintln(w, `{ "name": "`+name+`" }`)
	})

	p, cleanup := newTestPipeline(t, handler, "archive")
	defer cleanup()

	err := p.FlushEntities(context.Background(), []article{{URL: "https://example.com/a"}})
	assert.NoError(t, err)
}

func TestPipeline_FlushErrors(t *testing.T) {
	nameRE := regexp.MustCompile(`^errors/\d{8}T\d{6}Z-[0-9a-f-]{36}\.json$`)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		assert.Regexp(t, nameRE, name)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "fetch https://example.com/c: 503")

		fmt.Fprintln(w, `{ "name": "`+name+`" }`)
	})

	// An empty prefix must not leave a leading slash in the object name.
	p, cleanup := newTestPipeline(t, handler, "")
	defer cleanup()

	err := p.FlushErrors(context.Background(), []string{"fetch https://example.com/c: 503"})
	assert.NoError(t, err)
}

func TestPipeline_FlushEntities_UploadError(t *testing.T) {
	// This handler simulates a server error. The storage writer buffers
	// small objects, so the failure surfaces when the writer is closed.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	p, cleanup := newTestPipeline(t, handler, "archive")
	defer cleanup()

	err := p.FlushEntities(context.Background(), []article{{URL: "https://example.com/a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close writer")
}

func TestNew_Validation(t *testing.T) {
	_, err := gcs.New[article](nil, gcs.Config{Bucket: "test-bucket"})
	assert.ErrorContains(t, err, "storage client is required")

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	_, err = gcs.New[article](client, gcs.Config{})
	assert.ErrorContains(t, err, "bucket name is required")
}
