package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/studioforge/media-platform/internal/media"
	"github.com/studioforge/media-platform/internal/notify"
	"github.com/studioforge/media-platform/internal/queue"
	"github.com/studioforge/media-platform/internal/tracker"
)

// storeFailureAlertAfter is how many consecutive failed poll cycles trigger an
// operator notification. The loop keeps retrying either way; the store may
// recover independently of the worker's lifecycle.
const storeFailureAlertAfter = 3

// Runner is the per-process polling loop: heartbeat, claim, execute, report.
// All coordination goes through the durable store; the AMQP nudge channel only
// shortens the wait between polls.
type Runner struct {
	repo     *queue.Repo
	tracker  *tracker.Repo
	engines  *media.Registry
	notifier notify.Notifier

	self         queue.Worker
	pollInterval time.Duration
	opsChat      string

	storeFailures int
}

func NewRunner(repo *queue.Repo, trk *tracker.Repo, engines *media.Registry, n notify.Notifier, self queue.Worker, pollInterval time.Duration, opsChat string) *Runner {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	return &Runner{
		repo:         repo,
		tracker:      trk,
		engines:      engines,
		notifier:     n,
		self:         self,
		pollInterval: pollInterval,
		opsChat:      opsChat,
	}
}

// Run polls until ctx is cancelled. nudges may be nil.
func (r *Runner) Run(ctx context.Context, nudges <-chan string) error {
	if err := r.repo.RegisterWorker(ctx, &r.self); err != nil {
		return fmt.Errorf("register worker: %w", err)
	}
	log.Printf("worker %s started, poll=%s", r.self.WorkerID, r.pollInterval)

	defer func() {
		offCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.repo.MarkWorkerOffline(offCtx, r.self.WorkerID); err != nil {
			log.Printf("worker %s: mark offline: %v", r.self.WorkerID, err)
		}
	}()

	backoff := r.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			log.Printf("worker %s shutting down", r.self.WorkerID)
			return nil
		}

		worked, err := r.tick(ctx)
		if err != nil {
			r.storeFailures++
			log.Printf("worker %s: poll cycle failed (%d consecutive): %v", r.self.WorkerID, r.storeFailures, err)
			if r.storeFailures == storeFailureAlertAfter && r.opsChat != "" {
				_ = r.notifier.Notify(ctx, r.opsChat,
					fmt.Sprintf("worker %s: store unreachable for %d cycles: %v", r.self.WorkerID, r.storeFailures, err))
			}
		} else {
			r.storeFailures = 0
		}

		if worked {
			// drain the queue before sleeping again
			backoff = r.pollInterval
			continue
		}

		select {
		case <-ctx.Done():
		case <-time.After(backoff):
			// empty queue: back off up to 4x to bound store load
			if backoff < 4*r.pollInterval {
				backoff *= 2
			}
		case jobID, ok := <-nudges:
			if ok {
				log.Printf("worker %s: nudged for job %s", r.self.WorkerID, jobID)
			}
			backoff = r.pollInterval
		}
	}
}

// tick runs one heartbeat+claim cycle. Returns whether a job was executed.
func (r *Runner) tick(ctx context.Context) (bool, error) {
	if err := r.repo.Heartbeat(ctx, r.self.WorkerID, queue.WorkerOnline); err != nil {
		return false, err
	}

	job, err := r.repo.Claim(ctx, r.self.WorkerID)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	if err := r.repo.Heartbeat(ctx, r.self.WorkerID, queue.WorkerBusy); err != nil {
		log.Printf("worker %s: busy heartbeat: %v", r.self.WorkerID, err)
	}

	r.execute(ctx, job)
	return true, nil
}

func (r *Runner) execute(ctx context.Context, job *queue.Job) {
	start := time.Now()
	log.Printf("worker %s: executing job=%s kind=%s retry=%d", r.self.WorkerID, job.ID, job.Kind, job.RetryCount)

	engine, err := r.engines.Get(job.Kind)
	if err == nil {
		var resultRef string
		resultRef, err = engine.Execute(ctx, job)
		if err == nil {
			r.reportSuccess(ctx, job, resultRef, time.Since(start))
			return
		}
	}
	r.reportFailure(ctx, job, err, time.Since(start))
}

func (r *Runner) reportSuccess(ctx context.Context, job *queue.Job, resultRef string, cost time.Duration) {
	if err := r.repo.MarkCompleted(ctx, job.ID, r.self.WorkerID, resultRef); err != nil {
		log.Printf("worker %s: job %s done but not recorded: %v", r.self.WorkerID, job.ID, err)
		return
	}
	log.Printf("worker %s: job %s completed cost=%s result=%s", r.self.WorkerID, job.ID, cost, resultRef)

	if job.DailyUnit() {
		kind := tracker.ArtifactAudio
		if job.Kind == queue.JobEncode {
			kind = tracker.ArtifactVideo
		}
		if _, err := r.tracker.RecordArtifact(ctx, job.Date, job.ChannelCode, job.VideoNumber, kind, resultRef); err != nil {
			// duplicate means a retry already landed it; anything else is
			// a deficiency the monitor will report
			if !errors.Is(err, tracker.ErrDuplicateArtifact) {
				log.Printf("worker %s: job %s: record %s artifact: %v", r.self.WorkerID, job.ID, kind, err)
			}
		}
	}

	msg := fmt.Sprintf("%s generation complete\njob: %s", job.Kind, job.ID)
	if job.DailyUnit() {
		msg += fmt.Sprintf("\nchannel: %s video %d (%s)", job.ChannelCode, job.VideoNumber, job.Date)
	}
	if err := r.notifier.Notify(ctx, job.ChatID, msg); err != nil {
		log.Printf("worker %s: notify %s: %v", r.self.WorkerID, job.ChatID, err)
	}
}

func (r *Runner) reportFailure(ctx context.Context, job *queue.Job, execErr error, cost time.Duration) {
	terminal, err := r.repo.MarkFailed(ctx, job.ID, r.self.WorkerID, execErr.Error())
	if err != nil {
		log.Printf("worker %s: job %s failed and not recorded: %v (exec error: %v)", r.self.WorkerID, job.ID, err, execErr)
		return
	}
	log.Printf("worker %s: job %s failed cost=%s terminal=%v err=%v", r.self.WorkerID, job.ID, cost, terminal, execErr)

	if terminal {
		msg := fmt.Sprintf("%s generation failed permanently\njob: %s\nerror: %s", job.Kind, job.ID, truncate(execErr.Error(), 200))
		if err := r.notifier.Notify(ctx, job.ChatID, msg); err != nil {
			log.Printf("worker %s: notify %s: %v", r.self.WorkerID, job.ChatID, err)
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
