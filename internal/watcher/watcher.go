package watcher

import (
	"context"
	"log"
	"time"

	"github.com/fitsync/fitsync-worker/internal/config"
	"github.com/fitsync/fitsync-worker/internal/models"
	"github.com/fitsync/fitsync-worker/internal/repository"
)

// JobScheduler restarts the driver loop for a recovered job
type JobScheduler interface {
	ScheduleRecovered(job *models.SyncJob)
}

// pendingGracePeriod is how long a pending job may sit unclaimed before the
// watcher assumes its creating instance died and reschedules it
const pendingGracePeriod = 2 * time.Minute

// Watcher handles the housekeeping nobody else owns: jobs orphaned by a
// crashed instance and terminal jobs past retention.
type Watcher struct {
	cfg       *config.Config
	jobRepo   *repository.SyncJobRepository
	scheduler JobScheduler
}

func New(cfg *config.Config, jobRepo *repository.SyncJobRepository, scheduler JobScheduler) *Watcher {
	return &Watcher{
		cfg:       cfg,
		jobRepo:   jobRepo,
		scheduler: scheduler,
	}
}

// Start begins the housekeeping loop
func (w *Watcher) Start(ctx context.Context) error {
	log.Println("Starting watcher for stale sync jobs...")

	// Sweep once on startup to recover jobs from a previous run
	if err := w.sweep(ctx); err != nil {
		log.Printf("Warning: startup sweep failed: %v", err)
	}

	ticker := time.NewTicker(time.Duration(w.cfg.PollInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Watcher shutting down...")
			return ctx.Err()
		case <-ticker.C:
			if err := w.sweep(ctx); err != nil {
				log.Printf("Error during watcher sweep: %v", err)
			}
		}
	}
}

// sweep recovers orphaned jobs and prunes old terminal jobs
func (w *Watcher) sweep(ctx context.Context) error {
	if err := w.requeuePendingJobs(ctx); err != nil {
		log.Printf("Error requeuing pending jobs: %v", err)
	}

	if err := w.recoverStaleJobs(ctx); err != nil {
		log.Printf("Error recovering stale jobs: %v", err)
	}

	cutoff := time.Now().AddDate(0, 0, -w.cfg.RetentionDays)
	deleted, err := w.jobRepo.DeleteTerminalJobsBefore(ctx, cutoff)
	if err != nil {
		log.Printf("Error pruning old jobs: %v", err)
	} else if deleted > 0 {
		log.Printf("Pruned %d terminal sync job(s) older than %d days", deleted, w.cfg.RetentionDays)
	}

	return nil
}

// requeuePendingJobs restarts driver loops for pending jobs whose creating
// instance never got theirs going
func (w *Watcher) requeuePendingJobs(ctx context.Context) error {
	olderThan := time.Now().Add(-pendingGracePeriod)
	jobs, err := w.jobRepo.GetStalePendingJobs(ctx, olderThan, 10)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		log.Printf("Requeuing orphaned pending job %s (user %s)", job.ID, job.UserID)
		j := job
		w.scheduler.ScheduleRecovered(&j)
	}

	return nil
}

// recoverStaleJobs marks running jobs that stopped checkpointing as failed so
// a resume call can pick them up from their watermark. A live driver loop
// updates the row at least once per chunk, so a row untouched past the
// threshold belongs to a dead instance.
func (w *Watcher) recoverStaleJobs(ctx context.Context) error {
	olderThan := time.Now().Add(-w.cfg.StaleJobThreshold)
	jobs, err := w.jobRepo.GetStaleRunningJobs(ctx, olderThan, 10)
	if err != nil {
		return err
	}

	if len(jobs) == 0 {
		return nil
	}

	log.Printf("Found %d stale running job(s) to recover", len(jobs))

	for _, job := range jobs {
		msg := "sync interrupted by worker restart; resume to continue"
		err := w.jobRepo.UpdateStatus(ctx, job.ID, models.JobStatusFailed, models.StatusUpdate{
			ErrorMessage: &msg,
		})
		if err != nil {
			log.Printf("Failed to recover stale job %s: %v", job.ID, err)
			continue
		}
		log.Printf("Marked stale job %s (user %s) as failed for resume", job.ID, job.UserID)
	}

	return nil
}
