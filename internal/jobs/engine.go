package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oss-mcp/research-engine/internal/config"
	"github.com/oss-mcp/research-engine/internal/store"
	"github.com/oss-mcp/research-engine/internal/telemetry"
)

// Engine runs the pull-based worker pool described in spec.md §4.3: N
// worker goroutines loop claim -> execute -> finish, sleeping 750ms on an
// empty queue, with no broker in between. A background sweeper reclaims
// leases abandoned by crashed workers.
type Engine struct {
	store    *store.Store
	cfg      *config.Config
	log      telemetry.Logger
	metrics  telemetry.Metrics
	bcast    Broadcaster
	registry Registry

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	emptySleep time.Duration
}

// New builds an Engine. registry must have one Handler per job type the
// server accepts.
func New(st *store.Store, cfg *config.Config, log telemetry.Logger, metrics telemetry.Metrics, bcast Broadcaster, registry Registry) *Engine {
	return &Engine{
		store:      st,
		cfg:        cfg,
		log:        log,
		metrics:    metrics,
		bcast:      bcast,
		registry:   registry,
		cancels:    make(map[string]context.CancelFunc),
		emptySleep: 750 * time.Millisecond,
	}
}

// Run starts PARALLELISM worker goroutines plus the lease-reclaim sweeper
// and blocks until ctx is canceled.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Parallelism; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			e.workerLoop(ctx, worker)
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.reclaimLoop(ctx)
	}()
	<-ctx.Done()
	wg.Wait()
}

func (e *Engine) workerLoop(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		job, err := e.store.Claim(ctx, e.cfg.LeaseDuration)
		if err != nil {
			if errors.Is(err, store.ErrNoJobAvailable) {
				select {
				case <-ctx.Done():
					return
				case <-time.After(e.emptySleep):
				}
				continue
			}
			e.log.Error(ctx, "jobs: claim failed", "worker", worker, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(e.emptySleep):
			}
			continue
		}
		e.execute(ctx, job)
	}
}

func (e *Engine) execute(parent context.Context, job *store.Job) {
	ctx, cancel := context.WithCancel(parent)
	e.mu.Lock()
	e.cancels[job.ID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.cancels, job.ID)
		e.mu.Unlock()
		cancel()
	}()

	if job.Attempt > 1 {
		e.publish(ctx, job.ID, store.EventAbandoned, map[string]any{"attempt": job.Attempt})
	}
	e.publish(ctx, job.ID, store.EventStarted, map[string]any{"attempt": job.Attempt})

	hbDone := make(chan struct{})
	go e.heartbeatLoop(ctx, job.ID, hbDone)

	handler, ok := e.registry[job.Type]
	if !ok {
		close(hbDone)
		e.finish(ctx, job, nil, fmt.Errorf("jobs: no handler registered for type %q", job.Type))
		return
	}

	publish := func(ev store.JobEvent) {
		ev.JobID = job.ID
		e.appendAndBroadcast(ctx, ev)
	}

	result, err := withTimeout(ctx, e.cfg.JobTimeout, func(c context.Context) (out []byte, herr error) {
		defer func() {
			if r := recover(); r != nil {
				out, herr = nil, fmt.Errorf("jobs: handler panic: %v", r)
			}
		}()
		return handler(c, job, publish)
	})
	close(hbDone)
	e.finish(ctx, job, result, err)
}

func withTimeout(ctx context.Context, d time.Duration, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}

func (e *Engine) heartbeatLoop(ctx context.Context, jobID string, done <-chan struct{}) {
	ticker := time.NewTicker(e.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.store.Heartbeat(context.Background(), jobID, e.cfg.LeaseDuration, e.cfg.IdempotencyTTL); err != nil {
				e.log.Warn(ctx, "jobs: heartbeat failed", "job_id", jobID, "error", err)
			}
		}
	}
}

func (e *Engine) finish(ctx context.Context, job *store.Job, result []byte, err error) {
	bg := context.Background()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			_, _ = e.store.Cancel(bg, job.ID)
			e.publish(bg, job.ID, store.EventCanceled, map[string]any{})
			return
		}
		msg := err.Error()
		_ = e.store.Finish(bg, job.ID, store.JobFailed, nil, &msg)
		e.publish(bg, job.ID, store.EventError, map[string]any{"message": msg})
		e.metrics.IncCounter("jobs.failed", 1, "type", job.Type)
		return
	}
	_ = e.store.Finish(bg, job.ID, store.JobSucceeded, result, nil)
	e.publish(bg, job.ID, store.EventCompleted, map[string]any{})
	e.metrics.IncCounter("jobs.succeeded", 1, "type", job.Type)
}

// Cancel marks a job canceled and, if it is currently being executed by
// this engine instance, cancels its in-flight context so the handler
// observes it at its next suspension point, per spec.md §4.3.
func (e *Engine) Cancel(ctx context.Context, jobID string) (bool, error) {
	ok, err := e.store.Cancel(ctx, jobID)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	cancel, running := e.cancels[jobID]
	e.mu.Unlock()
	if running {
		// The handler's own context.Canceled return drives finish(), which
		// appends the canceled event; avoid double-publishing it here.
		cancel()
		return ok, nil
	}
	if ok {
		e.publish(ctx, jobID, store.EventCanceled, map[string]any{})
	}
	return ok, nil
}

func (e *Engine) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.LeaseDuration / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := e.store.ReclaimExpired(ctx)
			if err != nil {
				e.log.Error(ctx, "jobs: reclaim sweep failed", "error", err)
				continue
			}
			for _, id := range ids {
				e.publish(ctx, id, store.EventAbandoned, map[string]any{"reason": "lease_expired"})
				e.metrics.IncCounter("jobs.reclaimed", 1)
			}
		}
	}
}

func (e *Engine) publish(ctx context.Context, jobID string, evType store.EventType, payload map[string]any) {
	data, _ := json.Marshal(payload)
	e.appendAndBroadcast(ctx, store.JobEvent{JobID: jobID, EventType: evType, Payload: data})
}

func (e *Engine) appendAndBroadcast(ctx context.Context, ev store.JobEvent) {
	id, err := e.store.AppendEvent(context.Background(), ev.JobID, ev.EventType, ev.Payload)
	if err != nil {
		e.log.Error(ctx, "jobs: append event failed", "job_id", ev.JobID, "error", err)
		return
	}
	ev.ID = id
	ev.CreatedAt = time.Now().UTC()
	if e.bcast != nil {
		e.bcast.Publish(ev.JobID, ev)
	}
}
