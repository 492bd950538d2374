// Package collyfetch implements the engine's fetch client using gocolly.
package collyfetch

import (
	"context"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/crawlkit/internal/clock/system"
	"github.com/JakeFAU/crawlkit/internal/engine"
)

// Config controls collector behavior.
type Config struct {
	// Parallelism bounds concurrent fetches inside one batch.
	Parallelism  int
	Timeout      time.Duration
	IgnoreRobots bool
	// Clock stamps operation handles and responses. Defaults to the
	// system clock.
	Clock engine.Clock
}

// Client executes request batches with Colly collectors. Fetch failures
// are encoded into the Response rather than failing the batch; only the
// batch handle's lifecycle is the engine's concern.
type Client struct {
	cfg       Config
	base      *colly.Collector
	transport http.RoundTripper
	clock     engine.Clock
	logger    *zap.Logger
}

// New builds a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 8
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Client{
		cfg:       cfg,
		base:      c,
		transport: transport,
		clock:     cfg.Clock,
		logger:    logger,
	}
}

// ExecuteBatch fetches the requests concurrently, appending one Response
// per request into the sink as each completes. The returned handle
// finishes after the last response has been written.
func (c *Client) ExecuteBatch(ctx context.Context, reqs []*engine.Request, sink engine.ResponseSink) *engine.Operation {
	op := engine.NewOperation(c.clock.Now())
	go func() {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.cfg.Parallelism)
		for _, req := range reqs {
			g.Go(func() error {
				sink.AppendResponses([]*engine.Response{c.fetchOne(gctx, req)})
				return nil
			})
		}
		op.Finish(g.Wait())
	}()
	return op
}

func (c *Client) fetchOne(ctx context.Context, req *engine.Request) *engine.Response {
	res := &engine.Response{
		Request:   req,
		FetchedAt: c.clock.Now(),
	}

	collector := c.base.Clone()
	collector.IgnoreRobotsTxt = c.cfg.IgnoreRobots
	collector.SetRequestTimeout(c.cfg.Timeout)
	if req.Profile != nil && req.Profile.Identity != "" {
		collector.UserAgent = req.Profile.Identity
	}

	start := time.Now()
	collector.OnRequest(func(r *colly.Request) {
		if cookie := sessionCookie(req.Profile); cookie != "" {
			r.Headers.Set("Cookie", cookie)
		}
	})
	var fetchErr error
	collector.OnResponse(func(r *colly.Response) {
		res.StatusCode = r.StatusCode
		res.Headers = r.Headers.Clone()
		res.Body = append([]byte(nil), r.Body...)
		res.Duration = time.Since(start)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			res.StatusCode = r.StatusCode
		}
		fetchErr = err
	})

	visitErr := c.runVisit(ctx, collector, req.URL)
	if visitErr == nil {
		visitErr = fetchErr
	}
	if visitErr != nil {
		res.Error = visitErr.Error()
		res.Duration = time.Since(start)
		c.logger.Debug("fetch failed",
			zap.String("url", req.URL),
			zap.Error(visitErr))
	}
	return res
}

func (c *Client) runVisit(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// sessionCookie flattens the profile's opaque session state into a
// Cookie header value, keys sorted for determinism.
func sessionCookie(p *engine.Profile) string {
	if p == nil || len(p.Session) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p.Session))
	for k := range p.Session {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+p.Session[k])
	}
	return strings.Join(pairs, "; ")
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
