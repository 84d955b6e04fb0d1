package engine

import (
	"context"
	"sort"

	"github.com/sarveshkapre/embeddb/pkg/embedding"
	"github.com/sarveshkapre/embeddb/pkg/errors"
	"github.com/sarveshkapre/embeddb/pkg/logging"
	"github.com/sarveshkapre/embeddb/pkg/types"
	"github.com/sarveshkapre/embeddb/pkg/wal"
)

// JobInfo is one row's embedding job state, as listed to operators.
type JobInfo struct {
	RowID         int64
	Status        types.JobStatus
	ContentHash   uint64
	Attempts      int
	NextRetryAtMs int64
	HasNextRetry  bool
	LastError     string
	VectorDim     int // 0 unless Status == Ready
}

// JobBatchResult summarizes one ProcessPendingJobs call.
type JobBatchResult struct {
	Processed int // jobs that reached Ready
	Failed    int // jobs that exhausted max_attempts
	Retried   int // jobs rescheduled with backoff
}

// ProcessPendingJobs runs up to limit eligible embedding jobs for a
// table, in row-id order. limit <= 0 means all. nowMS is the caller's
// wall clock in milliseconds; eligibility is Pending status with no
// scheduled retry or a retry instant at or before nowMS.
//
// Each job loads its row through the shared visibility rule, renders
// the source fields, and calls the embedder. Success persists a Ready
// meta with the vector; failure increments the attempt counter and
// either schedules an exponential-backoff retry or, at the cap,
// transitions the job to Failed.
func (e *Engine) ProcessPendingJobs(ctx context.Context, table string, limit int, nowMS int64) (JobBatchResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen(); err != nil {
		return JobBatchResult{}, err
	}

	t, err := e.getTable(table)
	if err != nil {
		return JobBatchResult{}, err
	}
	if t.spec == nil {
		return JobBatchResult{}, errors.InvalidArgument("table %q has no embedding spec", table)
	}

	if err := e.maybeAutoCheckpoint(); err != nil {
		return JobBatchResult{}, err
	}

	eligible := make([]int64, 0)
	for rowID, m := range t.embedding {
		if m.Status != types.JobPending {
			continue
		}
		if m.HasNextRetry && m.NextRetryAtMs > nowMS {
			continue
		}
		eligible = append(eligible, rowID)
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i] < eligible[j] })
	if limit > 0 && len(eligible) > limit {
		eligible = eligible[:limit]
	}

	var result JobBatchResult
	for _, rowID := range eligible {
		m := t.embedding[rowID]

		entry, found, err := e.lookupRow(t, rowID)
		if err != nil {
			return result, err
		}
		if !found || entry.IsTombstone() {
			// The row is gone; the job has nothing to embed.
			delete(t.embedding, rowID)
			continue
		}

		hash := embedding.ContentHash(entry.Payload, t.spec.SourceColumns)
		text := embedding.RenderSourceText(entry.Payload, t.spec.SourceColumns)
		vector, embedErr := e.embedder.Embed(ctx, text)

		if embedErr == nil {
			newMeta := types.EmbeddingMeta{
				Status:      types.JobReady,
				ContentHash: hash,
				Attempts:    m.Attempts + 1,
				Vector:      vector,
			}
			if err := e.persistMeta(t, rowID, newMeta); err != nil {
				return result, err
			}
			result.Processed++
			continue
		}

		attempts := m.Attempts + 1
		if attempts >= e.cfg.Jobs.MaxAttempts {
			newMeta := types.EmbeddingMeta{
				Status:      types.JobFailed,
				ContentHash: hash,
				Attempts:    attempts,
				LastError:   truncateError(embedErr),
			}
			if err := e.persistMeta(t, rowID, newMeta); err != nil {
				return result, err
			}
			e.log.Warn("embedding job failed permanently",
				"table", table, "row_id", rowID, "attempts", attempts, logging.Err(embedErr))
			result.Failed++
			continue
		}

		newMeta := types.EmbeddingMeta{
			Status:        types.JobPending,
			ContentHash:   hash,
			Attempts:      attempts,
			HasNextRetry:  true,
			NextRetryAtMs: nowMS + backoffMS(e.cfg.Jobs.RetryBaseMS, e.cfg.Jobs.RetryMaxMS, attempts),
			LastError:     truncateError(embedErr),
		}
		if err := e.persistMeta(t, rowID, newMeta); err != nil {
			return result, err
		}
		result.Retried++
	}

	if result.Processed+result.Failed+result.Retried > 0 {
		e.log.Info("job batch complete", "table", table,
			"processed", result.Processed, "failed", result.Failed, "retried", result.Retried)
	}
	return result, nil
}

// RetryFailedJobs resets Failed jobs back to Pending, clearing their
// error and retry schedule. rowID narrows the reset to one row when
// non-nil. preserveAttempts keeps the attempt counter instead of the
// default reset to zero.
func (e *Engine) RetryFailedJobs(table string, rowID *int64, preserveAttempts bool) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen(); err != nil {
		return 0, err
	}

	t, err := e.getTable(table)
	if err != nil {
		return 0, err
	}

	if err := e.maybeAutoCheckpoint(); err != nil {
		return 0, err
	}

	targets := make([]int64, 0)
	for id, m := range t.embedding {
		if m.Status != types.JobFailed {
			continue
		}
		if rowID != nil && id != *rowID {
			continue
		}
		targets = append(targets, id)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })

	for _, id := range targets {
		m := t.embedding[id]
		newMeta := types.EmbeddingMeta{
			Status:      types.JobPending,
			ContentHash: m.ContentHash,
		}
		if preserveAttempts {
			newMeta.Attempts = m.Attempts
		}
		if err := e.persistMeta(t, id, newMeta); err != nil {
			return 0, err
		}
	}
	return len(targets), nil
}

// ListEmbeddingJobs returns every job for a table sorted by row id.
func (e *Engine) ListEmbeddingJobs(table string) ([]JobInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	t, err := e.getTable(table)
	if err != nil {
		return nil, err
	}

	jobs := make([]JobInfo, 0, len(t.embedding))
	for rowID, m := range t.embedding {
		jobs = append(jobs, JobInfo{
			RowID:         rowID,
			Status:        m.Status,
			ContentHash:   m.ContentHash,
			Attempts:      m.Attempts,
			NextRetryAtMs: m.NextRetryAtMs,
			HasNextRetry:  m.HasNextRetry,
			LastError:     m.LastError,
			VectorDim:     len(m.Vector),
		})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].RowID < jobs[j].RowID })
	return jobs, nil
}

// persistMeta appends an UpsertEmbeddingMeta record and applies it to
// the in-memory state only after the append succeeds.
func (e *Engine) persistMeta(t *tableState, rowID int64, meta types.EmbeddingMeta) error {
	if err := e.wal.Append(wal.Record{
		Kind:  wal.KindUpsertEmbeddingMeta,
		Table: t.name,
		RowID: rowID,
		Meta:  meta,
	}); err != nil {
		return err
	}
	m := meta.Clone()
	t.embedding[rowID] = &m
	return nil
}

// backoffMS computes min(retryMax, retryBase * 2^(attempts-1)),
// guarding the shift against overflow.
func backoffMS(base, max int64, attempts int) int64 {
	if attempts < 1 {
		attempts = 1
	}
	shift := attempts - 1
	if shift > 40 {
		return max
	}
	d := base << uint(shift)
	if d > max || d < 0 {
		return max
	}
	return d
}

// truncateError keeps stored job errors short.
func truncateError(err error) string {
	const maxLen = 256
	s := err.Error()
	if len(s) > maxLen {
		return s[:maxLen]
	}
	return s
}
