package engine

import (
	"context"
	"time"

	"github.com/JakeFAU/crawlkit/internal/identity"
)

// Policy is the crawl strategy: it seeds the engine, is torn down by the
// drain, and turns each response into new work and extracted entities.
type Policy[E any] interface {
	// ProfileEndpoint returns the descriptor handed to the profile
	// acquirer when replenishing the pool.
	ProfileEndpoint() (string, error)
	// SeedTasks returns the initial crawl intents.
	SeedTasks() ([]*Task, error)
	// OnStart runs before the seed phase.
	OnStart(e *Engine[E]) error
	// OnStop runs at the end of drain. Residual tasks and scheduled
	// requests are not persisted by the engine; a policy that needs
	// them across restarts must persist them here.
	OnStop(e *Engine[E]) error
	// Extract is invoked once per harvested response.
	Extract(ctx context.Context, res *Response) (*ExtractResult[E], error)
}

// Middleware hooks into the harvest step. Implementations may filter or
// rewrite responses before extraction and entities after it.
type Middleware[E any] interface {
	ProcessResponses(ctx context.Context, rs []*Response) ([]*Response, error)
	ProcessEntities(ctx context.Context, es []E) ([]E, error)
}

// Pipeline receives flushed sink contents. Flush calls are made only
// with non-empty batches.
type Pipeline[E any] interface {
	FlushEntities(ctx context.Context, es []E) error
	FlushErrors(ctx context.Context, msgs []string) error
}

// ResponseSink is the write access granted to background fetch batches.
type ResponseSink interface {
	AppendResponses(rs []*Response)
}

// ProfileSink is the write access granted to background acquisition batches.
type ProfileSink interface {
	AppendProfiles(ps []*Profile)
}

// FetchClient executes a batch of requests concurrently, appending
// responses into the sink as they complete. The returned handle is
// finished after the last response has been written.
type FetchClient interface {
	ExecuteBatch(ctx context.Context, reqs []*Request, sink ResponseSink) *Operation
}

// ProfileAcquirer acquires execution profiles against the policy's
// endpoint descriptor, writing them into the sink as they complete.
type ProfileAcquirer interface {
	ExecuteBatch(ctx context.Context, endpoint string, ids *identity.Pool, concurrency int, sink ProfileSink) *Operation
}

// Clock abstracts time for not-before eligibility and throttle cadence.
type Clock interface {
	Now() time.Time
}
