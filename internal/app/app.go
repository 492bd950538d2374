// Package app initializes and holds long-lived services, acting as the
// dependency injection container for the crawl binary.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlkit/internal/acquire/httpacquirer"
	"github.com/JakeFAU/crawlkit/internal/api"
	"github.com/JakeFAU/crawlkit/internal/config"
	"github.com/JakeFAU/crawlkit/internal/engine"
	collyfetch "github.com/JakeFAU/crawlkit/internal/fetch/colly"
	"github.com/JakeFAU/crawlkit/internal/fetch/headless"
	"github.com/JakeFAU/crawlkit/internal/identity"
	"github.com/JakeFAU/crawlkit/internal/logging"
	"github.com/JakeFAU/crawlkit/internal/middleware"
	gcspipeline "github.com/JakeFAU/crawlkit/internal/pipeline/gcs"
	pgpipeline "github.com/JakeFAU/crawlkit/internal/pipeline/postgres"
	pubsubpipeline "github.com/JakeFAU/crawlkit/internal/pipeline/pubsub"
	"github.com/JakeFAU/crawlkit/internal/policy/static"
)

// App holds the wired engine and its collaborators for one crawl run.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	eng     *engine.Engine[static.Page]
	srv     *http.Server
	closers []func()
}

// New builds every service from configuration, failing fast when any
// collaborator cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	a := &App{cfg: cfg, logger: logger}

	ids, err := identity.NewPool(cfg.Identity.UserAgents)
	if err != nil {
		return nil, fmt.Errorf("identity pool: %w", err)
	}

	pipeline, err := a.buildPipeline(ctx)
	if err != nil {
		return nil, err
	}
	fetcher, err := a.buildFetcher()
	if err != nil {
		return nil, err
	}
	acquirer := httpacquirer.New(
		httpacquirer.Config{Timeout: cfg.Acquire.Timeout},
		logger.Named("acquirer"),
	)
	policy := static.New(static.Config{
		SeedURLs:        cfg.Policy.SeedURLs,
		ProfileEndpoint: cfg.Policy.ProfileEndpoint,
		MaxDepth:        cfg.Policy.MaxDepth,
		SameHostOnly:    cfg.Policy.SameHostOnly,
		RequestDelay:    cfg.Policy.RequestDelay,
	}, logger.Named("policy"))

	var mw engine.Middleware[static.Page]
	if cfg.Policy.DedupeBodies {
		mw = middleware.NewChain[static.Page](
			middleware.NewDedupe[static.Page](logger.Named("dedupe")),
		)
	}

	args := cfg.Engine
	eng, err := engine.New[static.Page](
		policy,
		fetcher,
		acquirer,
		ids,
		&args,
		mw,
		pipeline,
		nil,
		logger.Named("engine"),
	)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	a.eng = eng

	if cfg.Server.Enabled {
		a.srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           api.NewServer(eng, logger.Named("api")).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return a, nil
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Engine returns the wired scheduling engine.
func (a *App) Engine() *engine.Engine[static.Page] {
	return a.eng
}

// Run serves the status API (if enabled) and drives the engine until it
// terminates or the context is interrupted.
func (a *App) Run(ctx context.Context) error {
	if a.srv != nil {
		go func() {
			a.logger.Info("status server listening", zap.String("addr", a.srv.Addr))
			if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("status server failed", zap.Error(err))
			}
		}()
	}

	runErr := a.eng.Run(ctx)

	if a.srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("status server shutdown failed", zap.Error(err))
		}
	}
	return runErr
}

// Close releases every service the container opened.
func (a *App) Close() {
	for _, closer := range a.closers {
		closer()
	}
	// Sync can fail when stderr is a terminal; nothing to do about it here.
	_ = a.logger.Sync()
}

func (a *App) buildPipeline(ctx context.Context) (engine.Pipeline[static.Page], error) {
	switch a.cfg.Pipeline.Provider {
	case "noop":
		a.logger.Info("using no-op pipeline; flushed output will be discarded")
		return engine.NopPipeline[static.Page]{}, nil
	case "postgres":
		p, err := pgpipeline.New[static.Page](ctx, pgpipeline.Config{
			DSN:         a.cfg.Pipeline.Postgres.DSN,
			EntityTable: a.cfg.Pipeline.Postgres.EntityTable,
			ErrorTable:  a.cfg.Pipeline.Postgres.ErrorTable,
			MaxConns:    a.cfg.Pipeline.Postgres.MaxConns,
			MinConns:    a.cfg.Pipeline.Postgres.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres pipeline: %w", err)
		}
		a.closers = append(a.closers, p.Close)
		return p, nil
	case "pubsub":
		p, err := pubsubpipeline.New[static.Page](ctx, pubsubpipeline.Config{
			ProjectID: a.cfg.Pipeline.PubSub.ProjectID,
			TopicID:   a.cfg.Pipeline.PubSub.TopicID,
		})
		if err != nil {
			return nil, fmt.Errorf("pubsub pipeline: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := p.Close(); err != nil {
				a.logger.Warn("close pubsub pipeline", zap.Error(err))
			}
		})
		return p, nil
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		p, err := gcspipeline.New[static.Page](client, gcspipeline.Config{
			Bucket: a.cfg.Pipeline.GCS.Bucket,
			Prefix: a.cfg.Pipeline.GCS.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs pipeline: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("close gcs client", zap.Error(err))
			}
		})
		return p, nil
	default:
		return nil, fmt.Errorf("unknown pipeline provider: %s", a.cfg.Pipeline.Provider)
	}
}

func (a *App) buildFetcher() (engine.FetchClient, error) {
	switch a.cfg.Fetch.Client {
	case "colly":
		return collyfetch.New(collyfetch.Config{
			Parallelism:  a.cfg.Fetch.Parallelism,
			Timeout:      a.cfg.Fetch.Timeout,
			IgnoreRobots: a.cfg.Fetch.IgnoreRobots,
		}, a.logger.Named("fetch")), nil
	case "headless":
		client, err := headless.New(headless.Config{
			MaxParallel:       a.cfg.Fetch.HeadlessMaxTab,
			NavigationTimeout: a.cfg.Fetch.NavTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("headless client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return client, nil
	default:
		return nil, fmt.Errorf("unknown fetch client: %s", a.cfg.Fetch.Client)
	}
}
