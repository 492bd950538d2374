package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlkit/internal/clock/system"
	"github.com/JakeFAU/crawlkit/internal/id/uuid"
	"github.com/JakeFAU/crawlkit/internal/identity"
	"github.com/JakeFAU/crawlkit/internal/metrics"
)

// Engine drives the fetch-parse-extract lifecycle for one crawl target.
// A single logical control thread owns the tick loop; long-latency I/O is
// delegated to background batches that report back through the work
// store. The loop suspends in exactly two places: the profile gate and
// the shutdown drain.
type Engine[E any] struct {
	store    *Store[E]
	args     Args
	ids      *identity.Pool
	policy   Policy[E]
	fetcher  FetchClient
	acquirer ProfileAcquirer
	mw       Middleware[E]
	pipeline Pipeline[E]
	clock    Clock
	idGen    *uuid.Generator
	logger   *zap.Logger

	state atomic.Value // State
	ticks atomic.Uint64
}

// New constructs an Engine. Policy, fetcher, acquirer and the identity
// pool are required; nil middleware, pipeline, args, clock and logger
// fall back to the no-op/default implementations.
func New[E any](
	policy Policy[E],
	fetcher FetchClient,
	acquirer ProfileAcquirer,
	ids *identity.Pool,
	args *Args,
	mw Middleware[E],
	pipeline Pipeline[E],
	clock Clock,
	logger *zap.Logger,
) (*Engine[E], error) {
	if policy == nil {
		return nil, errors.New("crawl policy is required")
	}
	if fetcher == nil {
		return nil, errors.New("fetch client is required")
	}
	if acquirer == nil {
		return nil, errors.New("profile acquirer is required")
	}
	if ids == nil || ids.Len() == 0 {
		return nil, errors.New("identity pool is required")
	}
	a := DefaultArgs()
	if args != nil {
		a = *args
	}
	if a.ProfileThrottle <= 0 {
		a.ProfileThrottle = 3
	}
	if mw == nil {
		mw = NopMiddleware[E]{}
	}
	if pipeline == nil {
		pipeline = NopPipeline[E]{}
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	e := &Engine[E]{
		store:    NewStore[E](),
		args:     a,
		ids:      ids,
		policy:   policy,
		fetcher:  fetcher,
		acquirer: acquirer,
		mw:       mw,
		pipeline: pipeline,
		clock:    clock,
		idGen:    uuid.New(),
		logger:   logger,
	}
	e.state.Store(StateRunning)
	return e, nil
}

// Store exposes the work store, primarily for policies that want to
// inject extra work from OnStart or persist residual work from OnStop.
func (e *Engine[E]) Store() *Store[E] {
	return e.store
}

// Args returns the backpressure configuration in effect.
func (e *Engine[E]) Args() Args {
	return e.args
}

// Snapshot returns a point-in-time view of the store and loop state.
func (e *Engine[E]) Snapshot() Snapshot {
	return Snapshot{
		State:      e.state.Load().(State),
		Tasks:      e.store.TaskLen(),
		Profiles:   e.store.ProfileLen(),
		Scheduled:  e.store.ScheduledLen(),
		Ready:      e.store.ReadyLen(),
		Responses:  e.store.ResponseLen(),
		Entities:   e.store.EntityLen(),
		Errors:     e.store.ErrorLen(),
		FetchOps:   e.store.FetchOpLen(),
		ProfileOps: e.store.ProfileOpLen(),
		Ticks:      e.ticks.Load(),
	}
}

// Run owns the process lifetime: it seeds the store, then ticks until
// every buffer and sink is empty or the context is canceled. A canceled
// context is observed at the top of the next tick and triggers the
// drain; it is never a preemptive abort. Any collaborator failure or
// engine invariant violation surfaces as the returned error.
func (e *Engine[E]) Run(ctx context.Context) error {
	// Background batches must survive the interrupt so the drain can
	// join them, so they run on a detached context.
	opCtx := context.WithoutCancel(ctx)

	if err := e.policy.OnStart(e); err != nil {
		return fmt.Errorf("policy on-start: %w", err)
	}
	if !e.args.SkipSeed {
		if err := e.seed(opCtx); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return e.drain(opCtx)
		default:
		}

		done, err := e.tick(opCtx)
		if err != nil {
			e.state.Store(StateTerminated)
			return err
		}
		if done {
			e.state.Store(StateTerminated)
			e.logger.Info("all buffers empty, exiting",
				zap.Uint64("ticks", e.ticks.Load()))
			return nil
		}
		if e.args.TickInterval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(e.args.TickInterval):
			}
		}
	}
}

// seed performs the initial profile acquisition (joined synchronously)
// and loads the policy's seed tasks.
func (e *Engine[E]) seed(ctx context.Context) error {
	endpoint, err := e.policy.ProfileEndpoint()
	if err != nil {
		return fmt.Errorf("seed profile endpoint: %w", err)
	}
	op := e.acquirer.ExecuteBatch(ctx, endpoint, e.ids, e.args.ProfileConcurrency, e.store)
	if err := op.Join(); err != nil {
		return fmt.Errorf("seed profile acquisition: %w", err)
	}
	tasks, err := e.policy.SeedTasks()
	if err != nil {
		return fmt.Errorf("seed tasks: %w", err)
	}
	e.store.PushTasks(tasks)
	e.logger.Info("seed complete",
		zap.Int("tasks", len(tasks)),
		zap.Int("profiles", e.store.ProfileLen()))
	return nil
}

// tick runs one round. Ordering is load-bearing: promotion feeds
// dispatch, harvest feeds the sinks, and the profile gate must precede
// minting. Returns done=true when the termination condition holds.
func (e *Engine[E]) tick(ctx context.Context) (bool, error) {
	now := e.clock.Now()
	e.ticks.Add(1)
	metrics.ObserveTick()
	defer e.updateGauges()

	// 1. Normal-path termination. An in-flight fetch batch still counts
	// as work: its responses have not reached the response buffer yet,
	// so exiting here would drop them. Profile acquisitions do not hold
	// the loop open; an unclaimed identity batch is not pending output.
	if e.store.Empty() && e.store.FetchOpLen() == 0 {
		return true, nil
	}

	// 2. Promote scheduled -> ready up to the high watermark.
	if e.store.ReadyLen() <= e.args.ReadyLowWater {
		moved := e.store.PromoteReady(now, e.args.ReadyHighWater)
		if moved > 0 {
			e.logger.Debug("promoted requests", zap.Int("moved", moved))
		}
	}

	// 3. Dispatch a fetch batch without blocking.
	if batch := e.store.TakeReady(e.args.ReadyBatch); len(batch) > 0 {
		op := e.fetcher.ExecuteBatch(ctx, batch, e.store)
		e.store.RegisterFetch(op)
		metrics.ObserveDispatch("fetch", len(batch))
		e.logger.Debug("dispatched fetch batch", zap.Int("requests", len(batch)))
	}

	// 4. Replenish profiles: unconditionally below the low watermark,
	// on the throttle cadence between watermarks.
	pool := e.store.ProfileLen()
	low := pool <= e.args.ProfileLowWater
	throttled := !low && pool <= e.args.ProfileHighWater &&
		now.Unix()%int64(e.args.ProfileThrottle) == 1
	if low || throttled {
		endpoint, err := e.policy.ProfileEndpoint()
		if err != nil {
			return false, fmt.Errorf("profile endpoint: %w", err)
		}
		op := e.acquirer.ExecuteBatch(ctx, endpoint, e.ids, e.args.ProfileConcurrency, e.store)
		e.store.RegisterProfile(op)
		metrics.ObserveDispatch("profile", e.args.ProfileConcurrency)
	}

	// 5. Harvest a bounded batch of responses through extraction.
	if err := e.harvest(ctx, e.args.ResponseBatch); err != nil {
		return false, err
	}

	// 6. + 7. Threshold-triggered sink flushes.
	if e.store.ErrorLen() > e.args.ErrorFlushThreshold {
		if err := e.flushErrors(ctx); err != nil {
			return false, err
		}
	}
	if e.store.EntityLen() > e.args.ResultFlushThreshold {
		if err := e.flushEntities(ctx); err != nil {
			return false, err
		}
	}

	// 8. Profile-sufficiency gate: the one blocking join per tick.
	if e.store.ProfileLen() < e.args.MinProfilesPerRound {
		op, ok := e.store.PopProfileOp()
		if !ok {
			return false, errors.New("profile pool below minimum with no acquisition in flight")
		}
		metrics.ObserveProfileGateJoin()
		e.logger.Debug("profile gate: joining acquisition",
			zap.Int("pool", e.store.ProfileLen()),
			zap.Int("min", e.args.MinProfilesPerRound))
		if err := op.Join(); err != nil {
			return false, fmt.Errorf("join profile acquisition: %w", err)
		}
	}

	// 9. Mint requests from tasks, one profile each.
	if err := e.mint(now); err != nil {
		return false, err
	}

	// 10. Reclaim whatever background operations already finished.
	if err := e.store.Reap(); err != nil {
		return false, fmt.Errorf("reap operations: %w", err)
	}
	return false, nil
}

// harvest hands up to limit responses (limit <= 0 means all) to the
// extraction callback and merges the results into the store.
func (e *Engine[E]) harvest(ctx context.Context, limit int) error {
	rs := e.store.TakeResponses(limit)
	if len(rs) == 0 {
		return nil
	}
	rs, err := e.mw.ProcessResponses(ctx, rs)
	if err != nil {
		return fmt.Errorf("middleware responses: %w", err)
	}
	for _, res := range rs {
		out, err := e.policy.Extract(ctx, res)
		if err != nil {
			return fmt.Errorf("extract response: %w", err)
		}
		if out == nil {
			continue
		}
		ents := out.Entities
		if len(ents) > 0 {
			ents, err = e.mw.ProcessEntities(ctx, ents)
			if err != nil {
				return fmt.Errorf("middleware entities: %w", err)
			}
		}
		e.store.PushTasks(out.Tasks)
		e.store.PushScheduled(out.Requests...)
		e.store.AppendEntities(ents)
		e.store.AppendErrors(out.Errors)
	}
	metrics.ObserveHarvest(len(rs))
	return nil
}

// mint converts up to TaskBatch tasks into requests, each consuming one
// profile. A task that cannot obtain a profile waits for a later tick.
func (e *Engine[E]) mint(now time.Time) error {
	minted := 0
	for minted < e.args.TaskBatch {
		task, ok := e.store.PopTask()
		if !ok {
			break
		}
		profile, ok := e.store.TakeProfile()
		if !ok {
			e.store.ReturnTask(task)
			break
		}
		id, err := e.idGen.NewID()
		if err != nil {
			return fmt.Errorf("mint request id: %w", err)
		}
		notBefore := now
		if task.NotBefore.After(now) {
			notBefore = task.NotBefore
		}
		e.store.PushScheduled(&Request{
			ID:        id,
			URL:       task.URL,
			Method:    "GET",
			NotBefore: notBefore,
			Profile:   profile,
			Payload:   task.Payload,
		})
		minted++
	}
	if minted > 0 {
		metrics.ObserveMint(minted)
		e.logger.Debug("minted requests", zap.Int("minted", minted))
	}
	return nil
}

// drain executes the shutdown procedure exactly once: join every
// in-flight fetch, harvest everything buffered, force-flush both sinks,
// then run the policy teardown. No partial drain, no forced cancels.
func (e *Engine[E]) drain(ctx context.Context) error {
	e.state.Store(StateDraining)
	start := e.clock.Now()
	ops := e.store.DrainFetchOps()
	e.logger.Info("interrupt observed, draining",
		zap.Int("fetch_ops", len(ops)),
		zap.Int("responses", e.store.ResponseLen()))

	for _, op := range ops {
		if err := op.Join(); err != nil {
			return fmt.Errorf("join fetch batch: %w", err)
		}
	}
	if err := e.harvest(ctx, 0); err != nil {
		return err
	}
	if err := e.flushEntities(ctx); err != nil {
		return err
	}
	if err := e.flushErrors(ctx); err != nil {
		return err
	}
	if err := e.policy.OnStop(e); err != nil {
		return fmt.Errorf("policy on-stop: %w", err)
	}

	e.state.Store(StateTerminated)
	elapsed := e.clock.Now().Sub(start)
	metrics.ObserveDrainDuration(elapsed.Seconds())
	e.logger.Info("drain complete", zap.Duration("elapsed", elapsed))
	return nil
}

// flushEntities empties the entity sink through the pipeline. Flushing
// an empty sink performs no pipeline call.
func (e *Engine[E]) flushEntities(ctx context.Context) error {
	es := e.store.TakeEntities()
	if len(es) == 0 {
		return nil
	}
	if err := e.pipeline.FlushEntities(ctx, es); err != nil {
		return fmt.Errorf("flush entities: %w", err)
	}
	metrics.ObserveFlush("entities", len(es))
	return nil
}

// flushErrors empties the error sink through the pipeline.
func (e *Engine[E]) flushErrors(ctx context.Context) error {
	msgs := e.store.TakeErrors()
	if len(msgs) == 0 {
		return nil
	}
	if err := e.pipeline.FlushErrors(ctx, msgs); err != nil {
		return fmt.Errorf("flush errors: %w", err)
	}
	metrics.ObserveFlush("errors", len(msgs))
	return nil
}

func (e *Engine[E]) updateGauges() {
	metrics.SetBufferDepth("tasks", e.store.TaskLen())
	metrics.SetBufferDepth("profiles", e.store.ProfileLen())
	metrics.SetBufferDepth("scheduled", e.store.ScheduledLen())
	metrics.SetBufferDepth("ready", e.store.ReadyLen())
	metrics.SetBufferDepth("responses", e.store.ResponseLen())
	metrics.SetBufferDepth("entities", e.store.EntityLen())
	metrics.SetBufferDepth("errors", e.store.ErrorLen())
	metrics.SetInflight("fetch", e.store.FetchOpLen())
	metrics.SetInflight("profile", e.store.ProfileOpLen())
}
