// Package jobs implements the domain operations over persisted job records:
// CRUD on top of the persistence adapter, the expiration computation and the
// purge of expired entries. The repository is the only owner of job lifecycle
// transitions; store failures never escape as errors on reads, they degrade
// to empty results.
package jobs

import (
	"context"
	"fmt"
	"time"

	log "github.com/go-pkgz/lgr"

	"jobtrack/app/store"
)

// Store defines the persistence adapter operations the repository needs.
type Store interface {
	Find(ctx context.Context, f store.Filter, order string) ([]store.Row, error)
	Insert(ctx context.Context, r store.Row) (store.Row, error)
	Patch(ctx context.Context, f store.Filter, p store.RowPatch) error
	Delete(ctx context.Context, f store.Filter) error
}

// graceMinutes is the fixed grace period added after the estimated completion
// time before a job becomes eligible for cleanup.
const graceMinutes = 24 * 60

// Repository owns the job lifecycle on top of the persistence adapter.
type Repository struct {
	Store Store
}

// ExpiryTime computes when a job expires: start time plus the total of all
// segment durations and delay minutes plus the grace period. Jobs without a
// start time never expire. Pure function, no store access.
func ExpiryTime(j store.Job) *time.Time {
	if j.StartTime == nil {
		return nil
	}
	minutes := float64(graceMinutes)
	for _, s := range j.Segments {
		minutes += s.Duration
	}
	for _, d := range j.Delays {
		minutes += d.Minutes
	}
	res := j.StartTime.Add(time.Duration(minutes * float64(time.Minute)))
	return &res
}

// All returns every job keyed by id, fetched newest-first. A store failure
// degrades to an empty result, callers can't tell "no jobs" from "store
// unreachable"; the failure is logged instead.
func (r *Repository) All(ctx context.Context) map[string]store.Job {
	rows, err := r.Store.Find(ctx, nil, "created_at.desc")
	if err != nil {
		log.Printf("[WARN] failed to load jobs: %v", err)
		return map[string]store.Job{}
	}
	res := make(map[string]store.Job, len(rows))
	for _, row := range rows {
		j := row.Job()
		res[j.ID] = j
	}
	return res
}

// Get returns the job with the given id, or false if it doesn't exist or the
// store call failed.
func (r *Repository) Get(ctx context.Context, id string) (store.Job, bool) {
	rows, err := r.Store.Find(ctx, store.Filter{store.Eq("job_id", id)}, "")
	if err != nil {
		log.Printf("[WARN] failed to load job %s: %v", id, err)
		return store.Job{}, false
	}
	if len(rows) == 0 {
		return store.Job{}, false
	}
	return rows[0].Job(), true
}

// Create computes server-assigned fields and inserts the job. A caller
// supplied createdAt is honored, otherwise it is set to now. The expiration
// is always recomputed, never taken from the caller.
func (r *Repository) Create(ctx context.Context, j store.Job) (store.Job, error) {
	now := time.Now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.LastUpdated = now
	j.ExpiresAt = ExpiryTime(j)

	row, err := r.Store.Insert(ctx, store.RowFromJob(j))
	if err != nil {
		log.Printf("[WARN] failed to create job %s: %v", j.ID, err)
		return store.Job{}, fmt.Errorf("create job %s: %w", j.ID, err)
	}
	return row.Job(), nil
}

// Update replaces the job's mutable fields. Id and createdAt are never
// touched, expiresAt is recomputed from the submitted fields and lastUpdated
// refreshed. Returns the submitted job merged with the refreshed fields.
func (r *Repository) Update(ctx context.Context, id string, j store.Job) (store.Job, error) {
	j.ID = id
	j.LastUpdated = time.Now().UTC()
	j.ExpiresAt = ExpiryTime(j)

	if err := r.Store.Patch(ctx, store.Filter{store.Eq("job_id", id)}, store.PatchFromJob(j)); err != nil {
		log.Printf("[WARN] failed to update job %s: %v", id, err)
		return store.Job{}, fmt.Errorf("update job %s: %w", id, err)
	}
	// round-trip through the row shape to apply the adapter's defaulting
	return store.RowFromJob(j).Job(), nil
}

// Delete removes the job and reports whether the store call succeeded, not
// whether the row existed.
func (r *Repository) Delete(ctx context.Context, id string) bool {
	if err := r.Store.Delete(ctx, store.Filter{store.Eq("job_id", id)}); err != nil {
		log.Printf("[WARN] failed to delete job %s: %v", id, err)
		return false
	}
	return true
}

// PurgeExpired removes every job whose expiration time has passed. Jobs
// without an expiration are kept. Re-running with no newly expired jobs is a
// no-op.
func (r *Repository) PurgeExpired(ctx context.Context) error {
	now := time.Now().UTC()
	f := store.Filter{store.Lt("expires_at", now), store.NotNull("expires_at")}
	if err := r.Store.Delete(ctx, f); err != nil {
		return fmt.Errorf("purge expired jobs: %w", err)
	}
	log.Printf("[DEBUG] expired jobs purged, cutoff %s", now.Format(time.RFC3339))
	return nil
}
