// Package headless contains a fetch client that executes JavaScript via
// a headless browser before yielding the rendered DOM.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/crawlkit/internal/clock/system"
	"github.com/JakeFAU/crawlkit/internal/engine"
)

// Config controls the behavior of the headless client.
type Config struct {
	// MaxParallel bounds concurrent browser tabs per batch.
	MaxParallel       int
	NavigationTimeout time.Duration
	// Clock stamps operation handles and responses. Defaults to the
	// system clock.
	Clock engine.Clock
}

// Client implements engine.FetchClient using chromedp and headless
// Chrome. Use it for crawl targets rendered entirely client-side.
type Client struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
	clock       engine.Clock
}

// New creates a headless client backed by a shared exec allocator.
func New(cfg Config) (*Client, error) {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 2
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = system.New()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Client{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		clock:       cfg.Clock,
	}, nil
}

// Close cancels the allocator context.
func (c *Client) Close() {
	c.allocCancel()
}

// ExecuteBatch renders the requests concurrently, appending one Response
// per request into the sink. Render failures are encoded per-response.
func (c *Client) ExecuteBatch(ctx context.Context, reqs []*engine.Request, sink engine.ResponseSink) *engine.Operation {
	op := engine.NewOperation(c.clock.Now())
	go func() {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.cfg.MaxParallel)
		for _, req := range reqs {
			g.Go(func() error {
				sink.AppendResponses([]*engine.Response{c.render(gctx, req)})
				return nil
			})
		}
		op.Finish(g.Wait())
	}()
	return op
}

func (c *Client) render(ctx context.Context, req *engine.Request) *engine.Response {
	res := &engine.Response{
		Request:   req,
		FetchedAt: c.clock.Now(),
	}

	taskCtx, taskCancel := chromedp.NewContext(c.allocator)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, c.cfg.NavigationTimeout)
	defer cancel()

	// Stop early if the batch context already failed.
	if err := ctx.Err(); err != nil {
		res.Error = err.Error()
		return res
	}

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	html, finalURL, err := c.runHeadless(taskCtx, req)
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	status, headers, _ := meta.snapshotWithFallbacks(req.URL, finalURL)
	if headers == nil {
		headers = http.Header{}
	}
	res.StatusCode = status
	res.Headers = headers
	res.Body = []byte(html)
	return res
}

func (c *Client) runHeadless(ctx context.Context, req *engine.Request) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		c.networkSetupAction(req.Profile),
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

func (c *Client) networkSetupAction(profile *engine.Profile) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if profile == nil {
			return nil
		}
		if profile.Identity != "" {
			if err := emulation.SetUserAgentOverride(profile.Identity).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(profile.Session) > 0 {
			headers := network.Headers{}
			for k, v := range profile.Session {
				headers["X-Session-"+k] = v
			}
			if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{
		headers: http.Header{},
	}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		case []interface{}:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshot() (int, http.Header, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.headers.Clone(), m.url
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	status, headers, url := m.snapshot()
	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}

	if status == 0 {
		status = http.StatusOK
	}
	return status, headers, url
}
