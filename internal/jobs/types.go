// Package jobs implements the bounded, claim-based async job engine of
// spec.md §4.3: enqueue/claim/heartbeat/finish/cancel over a SQLite-backed
// lease, with a pull-based worker pool and a lease-reclaim sweeper.
package jobs

import (
	"context"

	"github.com/oss-mcp/research-engine/internal/store"
)

// Handler executes one job's payload. Implementations must observe ctx
// cancellation at each suspension point (spec.md §4.3 "Cancellation"): the
// engine cancels ctx when the job is canceled through Engine.Cancel, when
// the job timeout elapses, or when the engine shuts down. Losing the lease
// to another worker does not cancel ctx.
//
// A Handler should return the job result bytes on success, or a non-nil
// error on failure; the engine finalizes the job status accordingly and
// appends the terminal event itself, so Handler implementations need not
// call AppendEvent for "completed"/"error"/"canceled" — only for
// intermediate progress events.
type Handler func(ctx context.Context, job *store.Job, publish func(store.JobEvent)) ([]byte, error)

// Registry maps a job type to the Handler that executes it.
type Registry map[string]Handler
