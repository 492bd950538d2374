// Package gcs provides an output pipeline that archives flushed batches
// as JSON objects in Google Cloud Storage.
package gcs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/crawlkit/internal/id/uuid"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	Prefix string
}

// Pipeline writes each flush as one newline-free JSON array object,
// named by flush time and a UUID so concurrent runs never collide.
type Pipeline[E any] struct {
	client *storage.Client
	bucket string
	prefix string
	idGen  *uuid.Generator
}

// New creates a GCS-backed pipeline.
func New[E any](client *storage.Client, cfg Config) (*Pipeline[E], error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Pipeline[E]{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		idGen:  uuid.New(),
	}, nil
}

// FlushEntities writes the batch under <prefix>/entities/.
func (p *Pipeline[E]) FlushEntities(ctx context.Context, es []E) error {
	data, err := json.Marshal(es)
	if err != nil {
		return fmt.Errorf("marshal entities: %w", err)
	}
	return p.putObject(ctx, "entities", data)
}

// FlushErrors writes the batch under <prefix>/errors/.
func (p *Pipeline[E]) FlushErrors(ctx context.Context, msgs []string) error {
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}
	return p.putObject(ctx, "errors", data)
}

func (p *Pipeline[E]) putObject(ctx context.Context, kind string, data []byte) error {
	id, err := p.idGen.NewID()
	if err != nil {
		return fmt.Errorf("object id: %w", err)
	}
	path := fmt.Sprintf("%s/%s-%s.json", kind, time.Now().UTC().Format("20060102T150405Z"), id)
	if p.prefix != "" {
		path = p.prefix + "/" + path
	}

	writer := p.client.Bucket(p.bucket).Object(path).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}
