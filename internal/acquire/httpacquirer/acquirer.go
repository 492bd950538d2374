// Package httpacquirer acquires execution profiles by performing a
// session handshake against the crawl policy's profile endpoint.
package httpacquirer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/crawlkit/internal/clock/system"
	"github.com/JakeFAU/crawlkit/internal/engine"
	"github.com/JakeFAU/crawlkit/internal/id/uuid"
	"github.com/JakeFAU/crawlkit/internal/identity"
)

// Config controls acquisition behavior.
type Config struct {
	Timeout time.Duration
	// Clock stamps operation handles and profiles. Defaults to the
	// system clock.
	Clock engine.Clock
}

// Acquirer implements engine.ProfileAcquirer over plain HTTP. An empty
// endpoint skips the handshake and mints local profiles, which is enough
// for targets that only vary by user agent.
type Acquirer struct {
	client *http.Client
	idGen  *uuid.Generator
	clock  engine.Clock
	logger *zap.Logger
}

// New builds an Acquirer.
func New(cfg Config, logger *zap.Logger) *Acquirer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Acquirer{
		client: &http.Client{Timeout: cfg.Timeout},
		idGen:  uuid.New(),
		clock:  cfg.Clock,
		logger: logger,
	}
}

// ExecuteBatch acquires up to concurrency profiles against the endpoint,
// appending each into the sink as it completes. A failed handshake
// shrinks the batch rather than failing it.
func (a *Acquirer) ExecuteBatch(
	ctx context.Context,
	endpoint string,
	ids *identity.Pool,
	concurrency int,
	sink engine.ProfileSink,
) *engine.Operation {
	if concurrency <= 0 {
		concurrency = 1
	}
	op := engine.NewOperation(a.clock.Now())
	go func() {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		for i := 0; i < concurrency; i++ {
			g.Go(func() error {
				p, err := a.acquireOne(gctx, endpoint, ids.Next())
				if err != nil {
					a.logger.Debug("profile acquisition failed", zap.Error(err))
					return nil
				}
				sink.AppendProfiles([]*engine.Profile{p})
				return nil
			})
		}
		op.Finish(g.Wait())
	}()
	return op
}

func (a *Acquirer) acquireOne(ctx context.Context, endpoint, ua string) (*engine.Profile, error) {
	id, err := a.idGen.NewID()
	if err != nil {
		return nil, fmt.Errorf("profile id: %w", err)
	}
	profile := &engine.Profile{
		ID:         id,
		Identity:   ua,
		AcquiredAt: a.clock.Now(),
		Session:    map[string]string{},
	}
	if endpoint == "" {
		return profile, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build handshake request: %w", err)
	}
	req.Header.Set("User-Agent", ua)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("handshake: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return nil, fmt.Errorf("drain handshake body: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("handshake status %d", resp.StatusCode)
	}
	for _, cookie := range resp.Cookies() {
		profile.Session[cookie.Name] = cookie.Value
	}
	return profile, nil
}
