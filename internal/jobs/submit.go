package jobs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oss-mcp/research-engine/internal/config"
	"github.com/oss-mcp/research-engine/internal/idempotency"
	"github.com/oss-mcp/research-engine/internal/store"
)

// SubmitResult is what Submit returns to the tool handler that called it,
// carrying enough information to build the {job_id, status, ...} response
// shape spec.md §4.5 describes for each idempotency branch.
type SubmitResult struct {
	JobID       string
	Status      store.JobStatus
	ExistingJob bool
	Cached      bool
	Result      []byte
}

// Submit enqueues a job honoring the idempotency branching of spec.md §4.5:
// a queued/running match is returned as-is, a succeeded match returns its
// cached result, a failed match is retried (linked via RetryOf) only if
// policy permits, and a canceled match always gets a fresh linked job.
// force_new bypasses key matching entirely. idempotencyKey == "" also
// bypasses matching (every submission gets its own job).
func Submit(ctx context.Context, st *store.Store, cache *idempotency.Cache, cfg *config.Config, policy idempotency.Policy, jobType string, params []byte, idempotencyKey string, forceNew bool) (SubmitResult, error) {
	if idempotencyKey == "" || forceNew {
		id, err := enqueue(ctx, st, jobType, params, "")
		if err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{JobID: id, Status: store.JobQueued}, nil
	}

	if _, err := st.CleanExpiredIdempotencyKeys(ctx); err != nil {
		return SubmitResult{}, fmt.Errorf("jobs: cleaning expired idempotency keys: %w", err)
	}

	if cachedID, ok := cache.Lookup(ctx, idempotencyKey); ok {
		existing, err := st.GetJob(ctx, cachedID)
		if err == nil {
			return branchOnExisting(ctx, st, cache, policy, existing, jobType, params, idempotencyKey, cfg.IdempotencyTTL)
		}
	}

	existing, err := st.GetByIdempotencyKey(ctx, idempotencyKey)
	switch {
	case err == nil:
		return branchOnExisting(ctx, st, cache, policy, existing, jobType, params, idempotencyKey, cfg.IdempotencyTTL)
	case err != store.ErrJobNotFound:
		return SubmitResult{}, err
	}

	id, err := enqueue(ctx, st, jobType, params, idempotencyKey)
	if err != nil {
		// Unique-index race: another submitter won between our lookup and
		// insert. Re-read the surviving row, per spec.md §4.3 Enqueue.
		if winner, gerr := st.GetByIdempotencyKey(ctx, idempotencyKey); gerr == nil {
			return resultFor(winner, true)
		}
		return SubmitResult{}, err
	}
	cache.Remember(ctx, idempotencyKey, id, cfg.IdempotencyTTL)
	return SubmitResult{JobID: id, Status: store.JobQueued}, nil
}

func branchOnExisting(ctx context.Context, st *store.Store, cache *idempotency.Cache, policy idempotency.Policy, existing *store.Job, jobType string, params []byte, key string, ttl time.Duration) (SubmitResult, error) {
	switch existing.Status {
	case store.JobQueued, store.JobRunning:
		return resultFor(existing, true)
	case store.JobSucceeded:
		return SubmitResult{JobID: existing.ID, Status: existing.Status, Cached: true, Result: existing.Result}, nil
	case store.JobCanceled:
		return retryLinked(ctx, st, cache, existing, jobType, params, key, ttl)
	case store.JobFailed:
		failedAt := existing.UpdatedAt
		if existing.FinishedAt != nil {
			failedAt = *existing.FinishedAt
		}
		if !policy.Allow(failedAt, existing.Attempt, time.Now().UTC()) {
			return SubmitResult{JobID: existing.ID, Status: existing.Status}, nil
		}
		return retryLinked(ctx, st, cache, existing, jobType, params, key, ttl)
	default:
		return resultFor(existing, true)
	}
}

// retryLinked detaches the key from the terminal predecessor so the unique
// index admits a fresh row carrying the same key, linked via RetryOf.
func retryLinked(ctx context.Context, st *store.Store, cache *idempotency.Cache, prev *store.Job, jobType string, params []byte, key string, ttl time.Duration) (SubmitResult, error) {
	if err := st.ClearIdempotencyKey(ctx, prev.ID); err != nil {
		return SubmitResult{}, err
	}
	id, err := enqueueRetry(ctx, st, jobType, params, key, prev.ID)
	if err != nil {
		return SubmitResult{}, err
	}
	cache.Remember(ctx, key, id, ttl)
	return SubmitResult{JobID: id, Status: store.JobQueued}, nil
}

func resultFor(j *store.Job, existingJob bool) (SubmitResult, error) {
	return SubmitResult{JobID: j.ID, Status: j.Status, ExistingJob: existingJob, Result: j.Result}, nil
}

func enqueue(ctx context.Context, st *store.Store, jobType string, params []byte, idempotencyKey string) (string, error) {
	return enqueueRetry(ctx, st, jobType, params, idempotencyKey, "")
}

func enqueueRetry(ctx context.Context, st *store.Store, jobType string, params []byte, idempotencyKey, retryOf string) (string, error) {
	id := newJobID()
	job := &store.Job{ID: id, Type: jobType, Params: params}
	if idempotencyKey != "" {
		key := idempotencyKey
		job.IdempotencyKey = &key
	}
	if retryOf != "" {
		ro := retryOf
		job.RetryOf = &ro
	}
	if err := st.Enqueue(ctx, job); err != nil {
		return "", err
	}
	payload, _ := json.Marshal(map[string]any{"idempotent": idempotencyKey != ""})
	_, _ = st.AppendEvent(ctx, id, store.EventSubmitted, payload)
	return id, nil
}

// newJobID builds an id matching the job_<unixnano>_<hex> shape dispatch's
// cross-alias detector recognizes.
func newJobID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return fmt.Sprintf("job_%d_%s", time.Now().UTC().UnixNano(), hex.EncodeToString(b))
}
