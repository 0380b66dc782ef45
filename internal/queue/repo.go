package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// claimAttempts bounds how many candidates a single Claim call races for
// before reporting the queue empty; losers back off to the next poll tick.
const claimAttempts = 3

type Repo struct {
	db         *gorm.DB
	maxRetries int
}

func NewRepo(db *gorm.DB, maxRetries int) *Repo {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Repo{db: db, maxRetries: maxRetries}
}

func (r *Repo) MaxRetries() int { return r.maxRetries }

// Enqueue inserts a pending job and returns its id. The row is visible to
// Claim as soon as this returns.
func (r *Repo) Enqueue(ctx context.Context, job *Job) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Status = JobPending
	job.RetryCount = 0
	job.Owner = nil
	job.ClaimedAt = nil
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return job.ID, nil
}

// Claim takes ownership of the highest-priority, earliest-created pending job.
// The transition is a single conditional update, so two workers racing on the
// same row produce exactly one winner; the loser moves to the next candidate.
// Returns (nil, nil) when no pending rows exist.
func (r *Repo) Claim(ctx context.Context, workerID string) (*Job, error) {
	for attempt := 0; attempt < claimAttempts; attempt++ {
		var j Job
		err := r.db.WithContext(ctx).
			Where("status = ?", JobPending).
			Order("priority DESC, created_at ASC").
			First(&j).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		res := r.db.WithContext(ctx).Model(&Job{}).
			Where("id = ? AND status = ?", j.ID, JobPending).
			Updates(map[string]any{
				"status":     JobProcessing,
				"owner":      workerID,
				"claimed_at": now,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			// another worker won this row
			continue
		}

		j.Status = JobProcessing
		j.Owner = &workerID
		j.ClaimedAt = &now

		// dashboard back-reference only; a lost update here is harmless
		_ = r.db.WithContext(ctx).Model(&Worker{}).
			Where("worker_id = ?", workerID).
			Updates(map[string]any{"current_job": j.ID, "status": WorkerBusy}).Error

		return &j, nil
	}
	return nil, nil
}

// MarkCompleted records the produced artifact and the worker's completion in
// one transaction so a crash cannot split them.
func (r *Repo) MarkCompleted(ctx context.Context, jobID, workerID, resultRef string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := tx.Model(&Job{}).
			Where("id = ? AND status = ? AND owner = ?", jobID, JobProcessing, workerID).
			Updates(map[string]any{
				"status":       JobCompleted,
				"result_ref":   resultRef,
				"completed_at": now,
				"owner":        nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("job %s not processing under worker %s", jobID, workerID)
		}
		return tx.Model(&Worker{}).
			Where("worker_id = ?", workerID).
			Updates(map[string]any{
				"jobs_completed": gorm.Expr("jobs_completed + 1"),
				"current_job":    nil,
				"status":         WorkerOnline,
			}).Error
	})
}

// MarkFailed records a failure. Below the retry budget the job goes back to
// pending and is immediately re-claimable; at the budget it is terminally
// failed. Returns whether the failure was terminal.
func (r *Repo) MarkFailed(ctx context.Context, jobID, workerID, errMsg string) (terminal bool, err error) {
	if len(errMsg) > 500 {
		errMsg = errMsg[:500]
	}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var j Job
		if err := tx.Where("id = ?", jobID).First(&j).Error; err != nil {
			return err
		}

		retries := j.RetryCount + 1
		status := JobPending
		if retries >= r.maxRetries {
			status = JobFailed
			terminal = true
		}

		res := tx.Model(&Job{}).
			Where("id = ? AND status = ? AND owner = ?", jobID, JobProcessing, workerID).
			Updates(map[string]any{
				"status":      status,
				"retry_count": retries,
				"error":       errMsg,
				"owner":       nil,
				"claimed_at":  nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("job %s not processing under worker %s", jobID, workerID)
		}

		updates := map[string]any{
			"current_job": nil,
			"status":      WorkerOnline,
		}
		if terminal {
			updates["jobs_failed"] = gorm.Expr("jobs_failed + 1")
		}
		return tx.Model(&Worker{}).Where("worker_id = ?", workerID).Updates(updates).Error
	})
	return terminal, err
}

// CancelPending cancels a job that has not been claimed yet. Processing jobs
// cannot be cancelled; abandonment is handled by stale reclamation.
func (r *Repo) CancelPending(ctx context.Context, jobID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", jobID, JobPending).
		Updates(map[string]any{
			"status": JobFailed,
			"error":  "cancelled by user",
		})
	return res.RowsAffected == 1, res.Error
}

func (r *Repo) GetJob(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repo) CountByStatus(ctx context.Context, status JobStatus) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Job{}).Where("status = ?", status).Count(&n).Error
	return n, err
}

// RegisterWorker upserts the registry row, preserving cumulative counters
// across restarts.
func (r *Repo) RegisterWorker(ctx context.Context, w *Worker) error {
	if w.Status == "" {
		w.Status = WorkerOnline
	}
	w.LastHeartbeat = time.Now().UTC()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "worker_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"hostname", "gpu_model", "status", "last_heartbeat",
		}),
	}).Create(w).Error
}

func (r *Repo) Heartbeat(ctx context.Context, workerID string, status WorkerStatus) error {
	return r.db.WithContext(ctx).Model(&Worker{}).
		Where("worker_id = ?", workerID).
		Updates(map[string]any{
			"status":         status,
			"last_heartbeat": time.Now().UTC(),
		}).Error
}

func (r *Repo) MarkWorkerOffline(ctx context.Context, workerID string) error {
	return r.db.WithContext(ctx).Model(&Worker{}).
		Where("worker_id = ?", workerID).
		Updates(map[string]any{"status": WorkerOffline, "current_job": nil}).Error
}

func (r *Repo) GetWorker(ctx context.Context, workerID string) (*Worker, error) {
	var w Worker
	if err := r.db.WithContext(ctx).First(&w, "worker_id = ?", workerID).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// ReclaimStale resets jobs abandoned by presumed-dead workers. A job is
// reclaimed only when its claim age AND its owner's heartbeat both exceed
// their thresholds; each reclaim consumes one retry so a crash-looping job
// still terminates. The owning worker is reconciled to offline.
func (r *Repo) ReclaimStale(ctx context.Context, claimAge, heartbeatAge time.Duration) (int, error) {
	now := time.Now().UTC()
	claimCutoff := now.Add(-claimAge)
	heartbeatCutoff := now.Add(-heartbeatAge)

	var stalled []Job
	if err := r.db.WithContext(ctx).
		Where("status = ? AND claimed_at < ?", JobProcessing, claimCutoff).
		Find(&stalled).Error; err != nil {
		return 0, err
	}

	reclaimed := 0
	for i := range stalled {
		j := &stalled[i]
		if j.Owner == nil {
			continue
		}

		var w Worker
		err := r.db.WithContext(ctx).First(&w, "worker_id = ?", *j.Owner).Error
		if err == nil && w.LastHeartbeat.After(heartbeatCutoff) {
			// owner is alive, just slow; leave the claim alone
			continue
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return reclaimed, err
		}

		retries := j.RetryCount + 1
		status := JobPending
		if retries >= r.maxRetries {
			status = JobFailed
		}
		msg := fmt.Sprintf("reclaimed: worker %s presumed dead", *j.Owner)

		res := r.db.WithContext(ctx).Model(&Job{}).
			Where("id = ? AND status = ? AND owner = ?", j.ID, JobProcessing, *j.Owner).
			Updates(map[string]any{
				"status":      status,
				"retry_count": retries,
				"error":       msg,
				"owner":       nil,
				"claimed_at":  nil,
			})
		if res.Error != nil {
			return reclaimed, res.Error
		}
		if res.RowsAffected == 0 {
			// the worker came back and finished in the meantime
			continue
		}
		reclaimed++

		_ = r.db.WithContext(ctx).Model(&Worker{}).
			Where("worker_id = ?", *j.Owner).
			Updates(map[string]any{"status": WorkerOffline, "current_job": nil}).Error
	}
	return reclaimed, nil
}
