// Package static implements a reference crawl policy: fixed seed URLs,
// breadth-first link discovery up to a depth cap, one Page entity per
// fetched document.
package static

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/JakeFAU/crawlkit/internal/engine"
	"github.com/JakeFAU/crawlkit/internal/id/uuid"
)

// Page is the entity extracted for every successfully fetched document.
type Page struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	StatusCode int       `json:"status_code"`
	Depth      int       `json:"depth"`
	Links      int       `json:"links"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// Config controls seeding and link discovery.
type Config struct {
	SeedURLs        []string
	ProfileEndpoint string
	MaxDepth        int
	SameHostOnly    bool
	// RequestDelay pushes each discovered task's not-before time into
	// the future, spreading dispatch over successive ticks.
	RequestDelay time.Duration
}

// Policy implements engine.Policy[Page].
type Policy struct {
	cfg    Config
	idGen  *uuid.Generator
	logger *zap.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// New builds a Policy.
func New(cfg Config, logger *zap.Logger) *Policy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Policy{
		cfg:    cfg,
		idGen:  uuid.New(),
		logger: logger,
		seen:   make(map[string]struct{}),
	}
}

// ProfileEndpoint returns the session handshake endpoint; empty means
// profiles are minted locally.
func (p *Policy) ProfileEndpoint() (string, error) {
	return p.cfg.ProfileEndpoint, nil
}

// SeedTasks returns one depth-zero task per configured seed URL.
func (p *Policy) SeedTasks() ([]*engine.Task, error) {
	tasks := make([]*engine.Task, 0, len(p.cfg.SeedURLs))
	for _, raw := range p.cfg.SeedURLs {
		t, err := p.newTask(raw, 0)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// OnStart marks every seed as seen so extraction never re-discovers it.
func (p *Policy) OnStart(_ *engine.Engine[Page]) error {
	p.mu.Lock()
	for _, u := range p.cfg.SeedURLs {
		p.seen[u] = struct{}{}
	}
	p.mu.Unlock()
	p.logger.Info("crawl policy starting", zap.Int("seeds", len(p.cfg.SeedURLs)))
	return nil
}

// OnStop logs the teardown; this policy keeps no state worth persisting.
func (p *Policy) OnStop(e *engine.Engine[Page]) error {
	snap := e.Snapshot()
	p.logger.Info("crawl policy stopping",
		zap.Int("residual_tasks", snap.Tasks),
		zap.Int("residual_scheduled", snap.Scheduled))
	return nil
}

// Extract turns one response into a Page entity plus deeper tasks.
// Fetch failures and error statuses become extraction errors.
func (p *Policy) Extract(_ context.Context, res *engine.Response) (*engine.ExtractResult[Page], error) {
	out := &engine.ExtractResult[Page]{}
	if res.Failed() {
		out.Errors = append(out.Errors,
			fmt.Sprintf("fetch %s: %s", res.Request.URL, res.Error))
		return out, nil
	}
	if res.StatusCode >= http.StatusBadRequest {
		out.Errors = append(out.Errors,
			fmt.Sprintf("fetch %s: status %d", res.Request.URL, res.StatusCode))
		return out, nil
	}

	depth := depthOf(res.Request.Payload)
	title, links := parseDocument(res.Body)
	out.Entities = append(out.Entities, Page{
		URL:        res.Request.URL,
		Title:      title,
		StatusCode: res.StatusCode,
		Depth:      depth,
		Links:      len(links),
		FetchedAt:  res.FetchedAt,
	})

	if depth >= p.cfg.MaxDepth {
		return out, nil
	}
	base, err := url.Parse(res.Request.URL)
	if err != nil {
		out.Errors = append(out.Errors,
			fmt.Sprintf("parse base url %s: %v", res.Request.URL, err))
		return out, nil
	}
	for _, link := range links {
		target := resolveLink(base, link)
		if target == "" {
			continue
		}
		if p.cfg.SameHostOnly && !sameHost(base, target) {
			continue
		}
		if !p.markSeen(target) {
			continue
		}
		t, err := p.newTask(target, depth+1)
		if err != nil {
			return nil, err
		}
		out.Tasks = append(out.Tasks, t)
	}
	return out, nil
}

func (p *Policy) newTask(target string, depth int) (*engine.Task, error) {
	id, err := p.idGen.NewID()
	if err != nil {
		return nil, fmt.Errorf("task id: %w", err)
	}
	return &engine.Task{
		ID:        id,
		URL:       target,
		NotBefore: time.Now().UTC().Add(p.cfg.RequestDelay),
		Payload:   map[string]any{"depth": depth},
	}, nil
}

// markSeen returns true the first time a URL is observed.
func (p *Policy) markSeen(u string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.seen[u]; ok {
		return false
	}
	p.seen[u] = struct{}{}
	return true
}

func depthOf(payload map[string]any) int {
	if payload == nil {
		return 0
	}
	switch d := payload["depth"].(type) {
	case int:
		return d
	case float64:
		return int(d)
	default:
		return 0
	}
}

// parseDocument walks the HTML tree once, collecting the title text and
// every anchor href.
func parseDocument(body []byte) (string, []string) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", nil
	}
	var (
		title string
		links []string
		walk  func(*html.Node)
	)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "a":
				for _, attr := range n.Attr {
					if attr.Key == "href" && attr.Val != "" {
						links = append(links, attr.Val)
					}
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return title, links
}

// resolveLink turns an href into an absolute http(s) URL, dropping
// fragments; returns "" for anything uncrawlable.
func resolveLink(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}

func sameHost(base *url.URL, target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), base.Hostname())
}
