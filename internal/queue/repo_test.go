package queue

import (
	"context"
	"strings"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(gormsqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Job{}, &Worker{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestClaimOrdersByPriorityThenAge(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db, 3)
	ctx := context.Background()

	idA, err := repo.Enqueue(ctx, &Job{Kind: JobTTS, ChatID: "1", ScriptText: "a", Priority: 0})
	if err != nil {
		t.Fatalf("enqueue A: %v", err)
	}
	idB, err := repo.Enqueue(ctx, &Job{Kind: JobTTS, ChatID: "1", ScriptText: "b", Priority: 5})
	if err != nil {
		t.Fatalf("enqueue B: %v", err)
	}

	first, err := repo.Claim(ctx, "w1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if first == nil || first.ID != idB {
		t.Fatalf("expected higher-priority job %s first, got %+v", idB, first)
	}
	second, err := repo.Claim(ctx, "w1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if second == nil || second.ID != idA {
		t.Fatalf("expected job %s second, got %+v", idA, second)
	}
}

func TestClaimIsExclusive(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db, 3)
	ctx := context.Background()

	id, err := repo.Enqueue(ctx, &Job{Kind: JobTTS, ChatID: "1", ScriptText: "x"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	won, err := repo.Claim(ctx, "w1")
	if err != nil {
		t.Fatalf("claim w1: %v", err)
	}
	if won == nil || won.ID != id {
		t.Fatalf("expected w1 to win job %s, got %+v", id, won)
	}
	if won.Owner == nil || *won.Owner != "w1" {
		t.Fatalf("expected owner w1, got %v", won.Owner)
	}
	if won.ClaimedAt == nil {
		t.Fatalf("expected claimed_at to be set")
	}

	lost, err := repo.Claim(ctx, "w2")
	if err != nil {
		t.Fatalf("claim w2: %v", err)
	}
	if lost != nil {
		t.Fatalf("expected w2 to find nothing, got job %s", lost.ID)
	}
}

func TestClaimEmptyQueueIsNotAnError(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db, 3)

	job, err := repo.Claim(context.Background(), "w1")
	if err != nil {
		t.Fatalf("claim on empty queue: %v", err)
	}
	if job != nil {
		t.Fatalf("expected no job, got %s", job.ID)
	}
}

func TestMarkCompletedRecordsResultAndStats(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db, 3)
	ctx := context.Background()

	if err := repo.RegisterWorker(ctx, &Worker{WorkerID: "w1", Hostname: "h1"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	id, err := repo.Enqueue(ctx, &Job{Kind: JobTTS, ChatID: "1", ScriptText: "x"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := repo.Claim(ctx, "w1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := repo.MarkCompleted(ctx, id, "w1", "ref-123"); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	job, err := repo.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != JobCompleted {
		t.Fatalf("expected completed, got %s", job.Status)
	}
	if job.ResultRef == nil || *job.ResultRef != "ref-123" {
		t.Fatalf("expected result_ref ref-123, got %v", job.ResultRef)
	}
	if job.Owner != nil {
		t.Fatalf("expected owner cleared on terminal status, got %v", *job.Owner)
	}

	w, err := repo.GetWorker(ctx, "w1")
	if err != nil {
		t.Fatalf("get worker: %v", err)
	}
	if w.JobsCompleted != 1 {
		t.Fatalf("expected jobs_completed=1, got %d", w.JobsCompleted)
	}
	if w.CurrentJob != nil {
		t.Fatalf("expected current_job cleared, got %v", *w.CurrentJob)
	}
}

func TestMarkFailedRetriesThenTerminal(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db, 2)
	ctx := context.Background()

	if err := repo.RegisterWorker(ctx, &Worker{WorkerID: "w1"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	id, err := repo.Enqueue(ctx, &Job{Kind: JobEncode, ChatID: "1", AudioRef: "a", ImageRef: "i"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// first failure: back to pending, one retry consumed
	if _, err := repo.Claim(ctx, "w1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	terminal, err := repo.MarkFailed(ctx, id, "w1", "encoder exploded")
	if err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if terminal {
		t.Fatalf("first failure should not be terminal")
	}
	job, _ := repo.GetJob(ctx, id)
	if job.Status != JobPending || job.RetryCount != 1 {
		t.Fatalf("expected pending retry=1, got %s retry=%d", job.Status, job.RetryCount)
	}
	if job.Owner != nil || job.ClaimedAt != nil {
		t.Fatalf("expected ownership cleared on retry")
	}
	if job.Error == nil || *job.Error != "encoder exploded" {
		t.Fatalf("expected error recorded, got %v", job.Error)
	}

	// second failure: retry budget spent
	if _, err := repo.Claim(ctx, "w1"); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	terminal, err = repo.MarkFailed(ctx, id, "w1", "encoder exploded again")
	if err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if !terminal {
		t.Fatalf("second failure should be terminal with maxRetries=2")
	}
	job, _ = repo.GetJob(ctx, id)
	if job.Status != JobFailed || job.RetryCount != 2 {
		t.Fatalf("expected failed retry=2, got %s retry=%d", job.Status, job.RetryCount)
	}

	// terminal jobs are never claimable again
	next, err := repo.Claim(ctx, "w2")
	if err != nil {
		t.Fatalf("claim after terminal: %v", err)
	}
	if next != nil {
		t.Fatalf("expected no claimable job, got %s", next.ID)
	}

	w, _ := repo.GetWorker(ctx, "w1")
	if w.JobsFailed != 1 {
		t.Fatalf("expected jobs_failed=1 (terminal only), got %d", w.JobsFailed)
	}
}

func TestReclaimStaleResetsAbandonedJob(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db, 3)
	ctx := context.Background()

	if err := repo.RegisterWorker(ctx, &Worker{WorkerID: "w1"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	id, err := repo.Enqueue(ctx, &Job{Kind: JobTTS, ChatID: "1", ScriptText: "x"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := repo.Claim(ctx, "w1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// simulate a dead worker: stale claim and stale heartbeat
	past := time.Now().UTC().Add(-1 * time.Hour)
	if err := db.Model(&Job{}).Where("id = ?", id).Update("claimed_at", past).Error; err != nil {
		t.Fatalf("backdate claim: %v", err)
	}
	if err := db.Model(&Worker{}).Where("worker_id = ?", "w1").Update("last_heartbeat", past).Error; err != nil {
		t.Fatalf("backdate heartbeat: %v", err)
	}

	n, err := repo.ReclaimStale(ctx, 30*time.Minute, 5*time.Minute)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reclaimed, got %d", n)
	}

	job, _ := repo.GetJob(ctx, id)
	if job.Status != JobPending {
		t.Fatalf("expected pending after reclaim, got %s", job.Status)
	}
	if job.RetryCount != 1 {
		t.Fatalf("expected reclaim to consume one retry, got %d", job.RetryCount)
	}
	if job.Owner != nil {
		t.Fatalf("expected owner cleared, got %v", *job.Owner)
	}

	w, _ := repo.GetWorker(ctx, "w1")
	if w.Status != WorkerOffline {
		t.Fatalf("expected owner worker reconciled offline, got %s", w.Status)
	}
}

func TestReclaimStaleSparesLiveWorkers(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db, 3)
	ctx := context.Background()

	if err := repo.RegisterWorker(ctx, &Worker{WorkerID: "w1"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	id, err := repo.Enqueue(ctx, &Job{Kind: JobTTS, ChatID: "1", ScriptText: "x"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := repo.Claim(ctx, "w1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// old claim, but the worker is still heartbeating: just a slow job
	past := time.Now().UTC().Add(-1 * time.Hour)
	if err := db.Model(&Job{}).Where("id = ?", id).Update("claimed_at", past).Error; err != nil {
		t.Fatalf("backdate claim: %v", err)
	}
	if err := repo.Heartbeat(ctx, "w1", WorkerBusy); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	n, err := repo.ReclaimStale(ctx, 30*time.Minute, 5*time.Minute)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 reclaimed for live worker, got %d", n)
	}

	job, _ := repo.GetJob(ctx, id)
	if job.Status != JobProcessing {
		t.Fatalf("expected job left processing, got %s", job.Status)
	}
}

func TestCancelPendingOnly(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db, 3)
	ctx := context.Background()

	id, err := repo.Enqueue(ctx, &Job{Kind: JobTTS, ChatID: "1", ScriptText: "x"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	cancelled, err := repo.CancelPending(ctx, id)
	if err != nil || !cancelled {
		t.Fatalf("expected pending job to cancel, got %v %v", cancelled, err)
	}

	id2, err := repo.Enqueue(ctx, &Job{Kind: JobTTS, ChatID: "1", ScriptText: "y"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := repo.Claim(ctx, "w1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	cancelled, err = repo.CancelPending(ctx, id2)
	if err != nil {
		t.Fatalf("cancel claimed: %v", err)
	}
	if cancelled {
		t.Fatalf("claimed job must not be cancellable")
	}
}
