package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/fitsync/fitsync-worker/internal/config"
	"github.com/fitsync/fitsync-worker/internal/models"
	"github.com/fitsync/fitsync-worker/internal/repository"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

var (
	ErrSyncAlreadyRunning = errors.New("a sync job is already running for this user")
	ErrProviderNotLinked  = errors.New("garmin account is not connected")
	ErrInvalidDateRange   = errors.New("invalid date range")
	ErrInvalidJobState    = errors.New("job is not in a state that allows this operation")
)

// actorGarminSync is the actor recorded on rows written by the sync job
const actorGarminSync = "garmin-sync"

// tokenExpirySkew refreshes tokens that expire within this window
const tokenExpirySkew = 5 * time.Minute

// incrementalFallbackDays is the tail window synced for a user whose
// provider link has no watermark yet
const incrementalFallbackDays = 7

// Orchestrator drives Garmin sync jobs: it creates them, runs the detached
// per-job driver loop, and answers status/pause/resume/cancel requests.
type Orchestrator struct {
	cfg        *config.Config
	jobs       JobStore
	links      ProviderLinkStore
	existing   ExistingDataStore
	fetcher    ProviderFetcher
	processor  DataProcessor
	registry   *Registry
	newLimiter func() *rate.Limiter

	now      func() time.Time
	schedule func(func())
	wg       sync.WaitGroup
}

func NewOrchestrator(
	cfg *config.Config,
	jobs JobStore,
	links ProviderLinkStore,
	existing ExistingDataStore,
	fetcher ProviderFetcher,
	processor DataProcessor,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		jobs:      jobs,
		links:     links,
		existing:  existing,
		fetcher:   fetcher,
		processor: processor,
		registry:  NewRegistry(),
		// Each driver loop paces itself; concurrent jobs must not share a budget
		newLimiter: func() *rate.Limiter {
			return rate.NewLimiter(rate.Every(cfg.ChunkDelay), 1)
		},
		now:      time.Now,
		schedule: func(f func()) { go f() },
	}
}

// StartResult is returned immediately from the entry points; the driver loop
// runs detached.
type StartResult struct {
	JobID       string
	ChunksTotal int
	StartDate   string
	EndDate     string
	UpToDate    bool
}

// JobStatus is the polling snapshot the caller's UI depends on
type JobStatus struct {
	Active             bool
	JobID              string
	Status             models.SyncJobStatus
	SyncType           models.SyncType
	PercentComplete    int
	ChunksTotal        int
	ChunksCompleted    int
	CurrentWindow      string
	Stage              string
	FailedChunks       []models.FailedChunk
	LastSuccessfulDate string
}

// StartIncrementalSync syncs the tail window since the provider watermark
// (or the last week when the user never synced). Returns UpToDate without
// creating a job when the watermark is already at today.
func (o *Orchestrator) StartIncrementalSync(ctx context.Context, userID string, metricTypes []string) (*StartResult, error) {
	link, err := o.links.GetByUserAndProvider(ctx, userID, models.ProviderGarmin)
	if err != nil {
		if errors.Is(err, repository.ErrProviderLinkNotFound) {
			return nil, ErrProviderNotLinked
		}
		return nil, err
	}

	if active, err := o.jobs.GetActiveJob(ctx, userID); err != nil {
		return nil, err
	} else if active != nil {
		return nil, ErrSyncAlreadyRunning
	}

	today := truncateToDay(o.now())
	var start time.Time
	if link.LastSuccessfulSyncDate != nil {
		start = truncateToDay(*link.LastSuccessfulSyncDate).AddDate(0, 0, 1)
	} else {
		start = today.AddDate(0, 0, -incrementalFallbackDays)
	}

	if start.After(today) {
		return &StartResult{UpToDate: true}, nil
	}

	// Incremental syncs always refetch the tail window
	return o.createAndSchedule(ctx, userID, models.SyncTypeIncremental, start, today, metricTypes, false)
}

// StartHistoricalSync backfills an explicit date range. skipExisting makes
// fully-present windows checkpoint without a provider round-trip.
func (o *Orchestrator) StartHistoricalSync(ctx context.Context, userID, startDate, endDate string, metricTypes []string, skipExisting bool) (*StartResult, error) {
	start, err := ParseDate(startDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDateRange, err)
	}
	end, err := ParseDate(endDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDateRange, err)
	}
	if start.After(end) {
		return nil, fmt.Errorf("%w: start date %s is after end date %s", ErrInvalidDateRange, startDate, endDate)
	}
	if end.After(truncateToDay(o.now())) {
		return nil, fmt.Errorf("%w: end date %s is in the future", ErrInvalidDateRange, endDate)
	}

	if _, err := o.links.GetByUserAndProvider(ctx, userID, models.ProviderGarmin); err != nil {
		if errors.Is(err, repository.ErrProviderLinkNotFound) {
			return nil, ErrProviderNotLinked
		}
		return nil, err
	}

	if active, err := o.jobs.GetActiveJob(ctx, userID); err != nil {
		return nil, err
	} else if active != nil {
		return nil, ErrSyncAlreadyRunning
	}

	return o.createAndSchedule(ctx, userID, models.SyncTypeHistorical, start, end, metricTypes, skipExisting)
}

func (o *Orchestrator) createAndSchedule(ctx context.Context, userID string, syncType models.SyncType, start, end time.Time, metricTypes []string, skipExisting bool) (*StartResult, error) {
	plan, err := PlanChunks(start, end, o.cfg.ChunkSizeDays)
	if err != nil {
		return nil, err
	}

	var metrics *string
	if len(metricTypes) > 0 {
		joined := strings.Join(metricTypes, ",")
		metrics = &joined
	}

	now := o.now()
	job := &models.SyncJob{
		ID:           uuid.New().String(),
		UserID:       userID,
		Status:       models.JobStatusPending,
		SyncType:     syncType,
		StartDate:    start,
		EndDate:      end,
		MetricTypes:  metrics,
		SkipExisting: skipExisting,
		ChunksTotal:  len(plan),
		CurrentStage: "Queued",
		FailedChunks: "[]",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := o.jobs.Create(ctx, job); err != nil {
		// The partial unique index may fire if another instance created a job
		// between our active check and this insert.
		if errors.Is(err, repository.ErrJobAlreadyActive) {
			return nil, ErrSyncAlreadyRunning
		}
		return nil, err
	}

	log.Printf("Created %s sync job %s for user %s (%s to %s, %d chunks)",
		syncType, job.ID, userID, start.Format(DateLayout), end.Format(DateLayout), len(plan))

	o.scheduleJob(job)

	return &StartResult{
		JobID:       job.ID,
		ChunksTotal: len(plan),
		StartDate:   start.Format(DateLayout),
		EndDate:     end.Format(DateLayout),
	}, nil
}

// GetJobStatus reports whether an active job exists plus a progress snapshot
// of the most recent job
func (o *Orchestrator) GetJobStatus(ctx context.Context, userID string) (*JobStatus, error) {
	job, err := o.jobs.GetActiveJob(ctx, userID)
	if err != nil {
		return nil, err
	}
	active := job != nil
	if job == nil {
		job, err = o.jobs.GetMostRecent(ctx, userID)
		if err != nil {
			return nil, err
		}
		if job == nil {
			return &JobStatus{}, nil
		}
	}

	status := &JobStatus{
		Active:          active,
		JobID:           job.ID,
		Status:          job.Status,
		SyncType:        job.SyncType,
		PercentComplete: job.PercentComplete(),
		ChunksTotal:     job.ChunksTotal,
		ChunksCompleted: job.ChunksCompleted,
		Stage:           job.CurrentStage,
	}
	if job.CurrentChunkStart != nil && job.CurrentChunkEnd != nil {
		status.CurrentWindow = fmt.Sprintf("%s to %s",
			job.CurrentChunkStart.Format(DateLayout), job.CurrentChunkEnd.Format(DateLayout))
	}
	if job.LastSuccessfulDate != nil {
		status.LastSuccessfulDate = job.LastSuccessfulDate.Format(DateLayout)
	}
	failed, err := job.FailedChunkList()
	if err != nil {
		log.Printf("Warning: failed to decode failure ledger for job %s: %v", job.ID, err)
	} else {
		status.FailedChunks = failed
	}
	return status, nil
}

// PauseJob suspends a running job at its next chunk boundary
func (o *Orchestrator) PauseJob(ctx context.Context, userID, jobID string) error {
	job, err := o.jobs.GetByID(ctx, userID, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusRunning {
		return fmt.Errorf("%w: cannot pause a %s job", ErrInvalidJobState, job.Status)
	}

	// Evict first so the loop stops before it can write past the pause
	o.registry.Remove(jobID)

	stage := "Paused"
	return o.jobs.UpdateStatus(ctx, jobID, models.JobStatusPaused, models.StatusUpdate{Stage: &stage})
}

// ResumeJob reschedules a paused or failed job; the driver loop picks up from
// last_successful_date
func (o *Orchestrator) ResumeJob(ctx context.Context, userID, jobID string) error {
	job, err := o.jobs.GetByID(ctx, userID, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusPaused && job.Status != models.JobStatusFailed {
		return fmt.Errorf("%w: cannot resume a %s job", ErrInvalidJobState, job.Status)
	}
	if o.registry.Contains(jobID) {
		return ErrSyncAlreadyRunning
	}

	// Failed is a terminal status, which the driver loop refuses to claim.
	// Requeue to pending first so the loop picks the job up again.
	stage := "Queued for resume"
	if err := o.jobs.UpdateStatus(ctx, jobID, models.JobStatusPending, models.StatusUpdate{Stage: &stage}); err != nil {
		return fmt.Errorf("failed to requeue job: %w", err)
	}

	log.Printf("Resuming sync job %s for user %s", jobID, userID)
	o.scheduleJob(job)
	return nil
}

// CancelJob stops a pending, running, or paused job. Cancellation is
// cooperative: an in-flight provider call is not interrupted, the loop stops
// at its next chunk boundary.
func (o *Orchestrator) CancelJob(ctx context.Context, userID, jobID string) error {
	job, err := o.jobs.GetByID(ctx, userID, jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return fmt.Errorf("%w: cannot cancel a %s job", ErrInvalidJobState, job.Status)
	}

	o.registry.Remove(jobID)

	stage := "Cancelled"
	return o.jobs.UpdateStatus(ctx, jobID, models.JobStatusCancelled, models.StatusUpdate{Stage: &stage})
}

// Wait blocks until every scheduled driver loop has exited. Used by shutdown.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// ScheduleRecovered starts the driver loop for a job found by the watcher:
// a pending row whose creating instance died before its detached loop ran.
// The loop's own guards handle the case where another instance got there
// first.
func (o *Orchestrator) ScheduleRecovered(job *models.SyncJob) {
	o.scheduleJob(job)
}

func (o *Orchestrator) scheduleJob(job *models.SyncJob) {
	o.wg.Add(1)
	o.schedule(func() {
		defer o.wg.Done()
		// Detached from the request context: the entry point returns
		// immediately and the loop owns its own lifetime.
		o.runJob(context.Background(), job)
	})
}

// runJob is the detached task wrapper: it owns the registry claim and the
// outer error boundary, so an escaping error marks the job failed instead of
// crashing the process.
func (o *Orchestrator) runJob(ctx context.Context, job *models.SyncJob) {
	if !o.registry.TryAdd(job.ID) {
		log.Printf("Job %s is already being processed by this instance, skipping", job.ID)
		return
	}
	defer o.registry.Remove(job.ID)

	if err := o.driveJob(ctx, job); err != nil {
		log.Printf("Sync job %s failed: %v", job.ID, err)
		// A cancel may have settled the row while the loop was failing;
		// never overwrite a terminal status.
		if current, gerr := o.jobs.GetByID(ctx, job.UserID, job.ID); gerr == nil && current.IsTerminal() {
			return
		}
		msg := err.Error()
		if updErr := o.jobs.UpdateStatus(ctx, job.ID, models.JobStatusFailed, models.StatusUpdate{ErrorMessage: &msg}); updErr != nil {
			log.Printf("Warning: failed to mark job %s as failed: %v", job.ID, updErr)
		}
	}
}

// driveJob is the core loop: claim, plan, filter to the watermark, then
// fetch/process/checkpoint chunk by chunk in ascending date order.
func (o *Orchestrator) driveJob(ctx context.Context, job *models.SyncJob) error {
	// Re-read the row: another instance may have claimed or finished it
	fresh, err := o.jobs.GetByID(ctx, job.UserID, job.ID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	if fresh.Status == models.JobStatusRunning {
		// Legitimate race in multi-instance deployment, not an error
		log.Printf("Job %s is already running on another instance, skipping", job.ID)
		return nil
	}
	if fresh.IsTerminal() {
		log.Printf("Job %s is already %s, nothing to do", job.ID, fresh.Status)
		return nil
	}

	stage := "Starting sync..."
	if err := o.jobs.UpdateStatus(ctx, job.ID, models.JobStatusRunning, models.StatusUpdate{Stage: &stage}); err != nil {
		return fmt.Errorf("failed to claim job: %w", err)
	}

	link, err := o.links.GetByUserAndProvider(ctx, job.UserID, models.ProviderGarmin)
	if err != nil {
		return fmt.Errorf("failed to load provider link: %w", err)
	}

	// The plan is deterministic for a given range, so re-deriving it after a
	// crash reproduces the same windows; only chunks past the watermark run.
	plan, err := PlanChunks(fresh.StartDate, fresh.EndDate, o.cfg.ChunkSizeDays)
	if err != nil {
		return err
	}

	completed := fresh.ChunksCompleted
	watermark := fresh.LastSuccessfulDate

	remaining := plan
	if watermark != nil {
		wm := truncateToDay(*watermark)
		remaining = nil
		for _, c := range plan {
			if c.Start.After(wm) {
				remaining = append(remaining, c)
			}
		}
	}

	var existing map[string]bool
	if fresh.SkipExisting && len(remaining) > 0 {
		// One aggregate query for the whole remaining range, not per chunk
		existing, err = o.existing.DatesWithData(ctx, job.UserID, models.ProviderGarmin, remaining[0].Start, truncateToDay(fresh.EndDate))
		if err != nil {
			return fmt.Errorf("failed to load existing-data index: %w", err)
		}
	}

	metricTypes := fresh.MetricTypeList()
	limiter := o.newLimiter()

	for _, chunk := range remaining {
		if !o.registry.Contains(job.ID) {
			// Cancelled or paused: the control call already wrote the status
			log.Printf("Job %s evicted from registry, stopping loop", job.ID)
			return nil
		}

		if fresh.SkipExisting {
			if needsSync, _ := ChunkNeedsSync(chunk, existing); !needsSync {
				completed++
				wm := chunk.End
				watermark = &wm
				if err := o.jobs.UpdateProgress(ctx, job.ID, models.ProgressUpdate{
					ChunkStart:         chunk.Start,
					ChunkEnd:           chunk.End,
					ChunksCompleted:    completed,
					LastSuccessfulDate: watermark,
					Stage:              fmt.Sprintf("Skipped %s (already synced)", chunk),
				}); err != nil {
					return fmt.Errorf("failed to checkpoint skipped chunk: %w", err)
				}
				continue
			}
		}

		if err := o.processChunk(ctx, fresh, link, chunk, metricTypes); err != nil {
			// A single chunk's failure never aborts the job: record it in
			// the ledger and move on.
			log.Printf("Chunk %s failed for job %s: %v", chunk, job.ID, err)
			if ferr := o.jobs.AddFailedChunk(ctx, job.ID, models.FailedChunk{
				Start: chunk.Start.Format(DateLayout),
				End:   chunk.End.Format(DateLayout),
				Error: err.Error(),
			}); ferr != nil {
				return fmt.Errorf("failed to record failed chunk: %w", ferr)
			}
			if perr := o.jobs.UpdateProgress(ctx, job.ID, models.ProgressUpdate{
				ChunkStart:         chunk.Start,
				ChunkEnd:           chunk.End,
				ChunksCompleted:    completed,
				LastSuccessfulDate: watermark,
				Stage:              fmt.Sprintf("Chunk %s failed, continuing", chunk),
			}); perr != nil {
				return fmt.Errorf("failed to checkpoint after chunk failure: %w", perr)
			}
		} else {
			completed++
			wm := chunk.End
			watermark = &wm
			if perr := o.jobs.UpdateProgress(ctx, job.ID, models.ProgressUpdate{
				ChunkStart:         chunk.Start,
				ChunkEnd:           chunk.End,
				ChunksCompleted:    completed,
				LastSuccessfulDate: watermark,
				Stage:              fmt.Sprintf("Completed %d of %d chunks", completed, fresh.ChunksTotal),
			}); perr != nil {
				return fmt.Errorf("failed to checkpoint progress: %w", perr)
			}
		}

		// Rate-limit courtesy to the provider between chunks
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("inter-chunk wait interrupted: %w", err)
		}
	}

	doneStage := "Sync complete"
	if err := o.jobs.UpdateStatus(ctx, job.ID, models.JobStatusCompleted, models.StatusUpdate{Stage: &doneStage}); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	if err := o.links.UpdateLastSyncDate(ctx, link.ID, truncateToDay(fresh.EndDate)); err != nil {
		log.Printf("Warning: failed to advance provider watermark for user %s: %v", job.UserID, err)
	}

	// Opportunistic housekeeping, never blocks the main flow
	if err := o.jobs.CleanupOldJobs(ctx, job.UserID, o.cfg.RetentionDays); err != nil {
		log.Printf("Warning: job history cleanup failed for user %s: %v", job.UserID, err)
	}

	log.Printf("Sync job %s completed (%d of %d chunks)", job.ID, completed, fresh.ChunksTotal)
	return nil
}

// processChunk runs the fetch/process round-trips for one window. Every
// provider call is bounded by the fetch timeout so a stuck call cannot stall
// the job forever.
func (o *Orchestrator) processChunk(ctx context.Context, job *models.SyncJob, link *models.ProviderLink, chunk Chunk, metricTypes []string) error {
	startStr := chunk.Start.Format(DateLayout)
	endStr := chunk.End.Format(DateLayout)

	accessToken, err := o.ensureAccessToken(ctx, link)
	if err != nil {
		return err
	}

	o.setStage(ctx, job.ID, fmt.Sprintf("Fetching health data for %s...", chunk))

	fetchCtx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
	wellness, err := o.fetcher.FetchHealthAndWellness(fetchCtx, accessToken, startStr, endStr, metricTypes)
	cancel()
	if err != nil {
		return fmt.Errorf("fetch health and wellness: %w", err)
	}

	if wellness != nil {
		o.setStage(ctx, job.ID, fmt.Sprintf("Processing %d daily summaries...", len(wellness.Dailies)))
		if err := o.processor.ProcessHealthAndWellness(ctx, job.UserID, actorGarminSync, wellness, startStr, endStr); err != nil {
			return fmt.Errorf("process health and wellness: %w", err)
		}

		o.setStage(ctx, job.ID, fmt.Sprintf("Processing %d sleep records...", len(wellness.Sleep)))
		if err := o.processor.ProcessSleepData(ctx, job.UserID, actorGarminSync, wellness.Sleep, startStr, endStr); err != nil {
			return fmt.Errorf("process sleep data: %w", err)
		}
	}

	o.setStage(ctx, job.ID, "Fetching activities...")

	fetchCtx, cancel = context.WithTimeout(ctx, o.cfg.FetchTimeout)
	activities, err := o.fetcher.FetchActivitiesAndWorkouts(fetchCtx, accessToken, startStr, endStr)
	cancel()
	if err != nil {
		return fmt.Errorf("fetch activities and workouts: %w", err)
	}

	if activities != nil {
		o.setStage(ctx, job.ID, fmt.Sprintf("Processing %d activities...", len(activities.Activities)))
		if err := o.processor.ProcessActivitiesAndWorkouts(ctx, job.UserID, actorGarminSync, activities, startStr, endStr); err != nil {
			return fmt.Errorf("process activities and workouts: %w", err)
		}
	}

	return nil
}

// ensureAccessToken refreshes the link's access token when it is expired or
// about to expire, persisting the new tokens
func (o *Orchestrator) ensureAccessToken(ctx context.Context, link *models.ProviderLink) (string, error) {
	if link.AccessToken == nil || link.RefreshToken == nil {
		return "", fmt.Errorf("provider link missing tokens")
	}

	if link.AccessTokenExpiresAt != nil && o.now().Add(tokenExpirySkew).Before(*link.AccessTokenExpiresAt) {
		return *link.AccessToken, nil
	}

	log.Printf("Access token expired for link %s, refreshing...", link.ID)
	result, err := o.fetcher.RefreshAccessToken(ctx, *link.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}

	if err := o.links.UpdateTokens(ctx, link.ID, result.AccessToken, result.RefreshToken, result.ExpiresAt); err != nil {
		return "", fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}

	link.AccessToken = &result.AccessToken
	link.RefreshToken = &result.RefreshToken
	link.AccessTokenExpiresAt = &result.ExpiresAt

	return result.AccessToken, nil
}

// setStage updates the UI stage text; a failed stage write never fails a chunk
func (o *Orchestrator) setStage(ctx context.Context, jobID, stage string) {
	if err := o.jobs.UpdateStage(ctx, jobID, stage); err != nil {
		log.Printf("Warning: failed to update stage for job %s: %v", jobID, err)
	}
}
