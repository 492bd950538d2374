package engine

import "context"

// NopMiddleware passes responses and entities through unchanged.
type NopMiddleware[E any] struct{}

// ProcessResponses returns the batch as-is.
func (NopMiddleware[E]) ProcessResponses(_ context.Context, rs []*Response) ([]*Response, error) {
	return rs, nil
}

// ProcessEntities returns the batch as-is.
func (NopMiddleware[E]) ProcessEntities(_ context.Context, es []E) ([]E, error) {
	return es, nil
}

// NopPipeline accepts flushes and performs no external write. Callers
// relying on persistence must supply a real pipeline.
type NopPipeline[E any] struct{}

// FlushEntities discards the batch.
func (NopPipeline[E]) FlushEntities(_ context.Context, _ []E) error {
	return nil
}

// FlushErrors discards the batch.
func (NopPipeline[E]) FlushErrors(_ context.Context, _ []string) error {
	return nil
}
