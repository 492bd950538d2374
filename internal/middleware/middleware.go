// Package middleware provides composable harvest middleware for the
// engine: response filters that run before extraction and entity
// filters that run after it.
package middleware

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlkit/internal/engine"
	"github.com/JakeFAU/crawlkit/internal/hash/sha256"
)

// Chain runs each middleware in order, feeding the output of one into
// the next. An empty chain behaves like the engine's no-op default.
type Chain[E any] struct {
	mws []engine.Middleware[E]
}

// NewChain composes middlewares in execution order.
func NewChain[E any](mws ...engine.Middleware[E]) *Chain[E] {
	return &Chain[E]{mws: mws}
}

// ProcessResponses applies every middleware's response filter in order.
func (c *Chain[E]) ProcessResponses(ctx context.Context, rs []*engine.Response) ([]*engine.Response, error) {
	var err error
	for _, mw := range c.mws {
		rs, err = mw.ProcessResponses(ctx, rs)
		if err != nil {
			return nil, err
		}
	}
	return rs, nil
}

// ProcessEntities applies every middleware's entity filter in order.
func (c *Chain[E]) ProcessEntities(ctx context.Context, es []E) ([]E, error) {
	var err error
	for _, mw := range c.mws {
		es, err = mw.ProcessEntities(ctx, es)
		if err != nil {
			return nil, err
		}
	}
	return es, nil
}

// Dedupe drops responses whose body hash has been seen before, so that
// mirrored or aliased URLs are extracted only once per run. Failed
// responses pass through untouched; their bodies are empty and the
// error still needs to reach the extraction callback.
type Dedupe[E any] struct {
	hasher *sha256.Hasher
	logger *zap.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDedupe builds a Dedupe middleware.
func NewDedupe[E any](logger *zap.Logger) *Dedupe[E] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dedupe[E]{
		hasher: sha256.New(),
		logger: logger,
		seen:   make(map[string]struct{}),
	}
}

// ProcessResponses filters out responses with previously seen bodies.
func (d *Dedupe[E]) ProcessResponses(_ context.Context, rs []*engine.Response) ([]*engine.Response, error) {
	kept := rs[:0]
	for _, res := range rs {
		if res.Failed() || len(res.Body) == 0 {
			kept = append(kept, res)
			continue
		}
		digest, err := d.hasher.Hash(res.Body)
		if err != nil {
			return nil, err
		}
		if !d.markSeen(digest) {
			d.logger.Debug("dropping duplicate response",
				zap.String("url", res.Request.URL))
			continue
		}
		kept = append(kept, res)
	}
	return kept, nil
}

// ProcessEntities passes entities through unchanged.
func (d *Dedupe[E]) ProcessEntities(_ context.Context, es []E) ([]E, error) {
	return es, nil
}

func (d *Dedupe[E]) markSeen(digest string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[digest]; ok {
		return false
	}
	d.seen[digest] = struct{}{}
	return true
}
