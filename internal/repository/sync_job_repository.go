package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fitsync/fitsync-worker/internal/models"
	"gorm.io/gorm"
)

var (
	ErrJobNotFound      = errors.New("sync job not found")
	ErrJobAlreadyActive = errors.New("an active sync job already exists for this user")
)

type SyncJobRepository struct {
	db *gorm.DB
}

func NewSyncJobRepository(db *gorm.DB) *SyncJobRepository {
	return &SyncJobRepository{db: db}
}

// Create inserts a new job in pending status. The partial unique index on
// (user_id) for pending/running rows turns a concurrent create into
// ErrJobAlreadyActive instead of a second active job.
func (r *SyncJobRepository) Create(ctx context.Context, job *models.SyncJob) error {
	result := r.db.WithContext(ctx).Create(job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrJobAlreadyActive
		}
		return fmt.Errorf("failed to create sync job: %w", result.Error)
	}
	return nil
}

// GetActiveJob returns the most recent pending or running job for the user,
// or nil when none exists
func (r *SyncJobRepository) GetActiveJob(ctx context.Context, userID string) (*models.SyncJob, error) {
	var job models.SyncJob
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, []models.SyncJobStatus{models.JobStatusPending, models.JobStatusRunning}).
		Order("created_at DESC").
		First(&job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query active job: %w", result.Error)
	}
	return &job, nil
}

// GetByID retrieves a job scoped to its owning user
func (r *SyncJobRepository) GetByID(ctx context.Context, userID, jobID string) (*models.SyncJob, error) {
	var job models.SyncJob
	result := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", jobID, userID).
		First(&job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get sync job: %w", result.Error)
	}
	return &job, nil
}

// GetMostRecent returns the latest job for the user regardless of status,
// or nil when the user never synced
func (r *SyncJobRepository) GetMostRecent(ctx context.Context, userID string) (*models.SyncJob, error) {
	var job models.SyncJob
	result := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query most recent job: %w", result.Error)
	}
	return &job, nil
}

// UpdateStatus transitions the job status. started_at is stamped on the first
// transition to running, completed_at on reaching completed or failed.
func (r *SyncJobRepository) UpdateStatus(ctx context.Context, jobID string, status models.SyncJobStatus, upd models.StatusUpdate) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": now,
	}

	if status == models.JobStatusRunning {
		updates["started_at"] = gorm.Expr("COALESCE(started_at, ?)", now)
	}
	if status == models.JobStatusCompleted || status == models.JobStatusFailed {
		updates["completed_at"] = now
	}
	if upd.ErrorMessage != nil {
		updates["error_message"] = upd.ErrorMessage
	}
	if upd.Stage != nil {
		updates["current_stage"] = *upd.Stage
	}

	result := r.db.WithContext(ctx).Model(&models.SyncJob{}).
		Where("id = ?", jobID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update job status: %w", result.Error)
	}
	return nil
}

// UpdateProgress writes the per-chunk checkpoint that makes resume possible
func (r *SyncJobRepository) UpdateProgress(ctx context.Context, jobID string, upd models.ProgressUpdate) error {
	result := r.db.WithContext(ctx).Model(&models.SyncJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"current_chunk_start":  upd.ChunkStart,
			"current_chunk_end":    upd.ChunkEnd,
			"chunks_completed":     upd.ChunksCompleted,
			"last_successful_date": upd.LastSuccessfulDate,
			"current_stage":        upd.Stage,
			"updated_at":           time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update job progress: %w", result.Error)
	}
	return nil
}

// UpdateStage is the lightweight status-text update for UI polling
func (r *SyncJobRepository) UpdateStage(ctx context.Context, jobID string, stage string) error {
	result := r.db.WithContext(ctx).Model(&models.SyncJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"current_stage": stage,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update job stage: %w", result.Error)
	}
	return nil
}

// AddFailedChunk appends to the failure ledger without touching progress
func (r *SyncJobRepository) AddFailedChunk(ctx context.Context, jobID string, chunk models.FailedChunk) error {
	encoded, err := json.Marshal([]models.FailedChunk{chunk})
	if err != nil {
		return fmt.Errorf("failed to encode failed chunk: %w", err)
	}

	result := r.db.WithContext(ctx).Model(&models.SyncJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"failed_chunks": gorm.Expr("failed_chunks || ?::jsonb", string(encoded)),
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record failed chunk: %w", result.Error)
	}
	return nil
}

// CleanupOldJobs deletes the user's terminal jobs older than the retention
// window. Best-effort housekeeping; callers may ignore the error.
func (r *SyncJobRepository) CleanupOldJobs(ctx context.Context, userID string, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ? AND created_at < ?",
			userID,
			[]models.SyncJobStatus{models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled},
			cutoff).
		Delete(&models.SyncJob{})
	if result.Error != nil {
		return fmt.Errorf("failed to cleanup old jobs: %w", result.Error)
	}
	return nil
}

// GetStalePendingJobs returns pending jobs that have sat unclaimed longer
// than the grace period, across all users. A pending row normally turns
// running within seconds of creation; an old one means the instance that
// created it died before starting the driver loop.
func (r *SyncJobRepository) GetStalePendingJobs(ctx context.Context, olderThan time.Time, limit int) ([]models.SyncJob, error) {
	var jobs []models.SyncJob
	result := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.JobStatusPending, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query stale pending jobs: %w", result.Error)
	}
	return jobs, nil
}

// GetStaleRunningJobs returns jobs still marked running whose last update is
// older than the threshold, across all users. Used by the watcher to recover
// jobs orphaned by a crashed instance.
func (r *SyncJobRepository) GetStaleRunningJobs(ctx context.Context, olderThan time.Time, limit int) ([]models.SyncJob, error) {
	var jobs []models.SyncJob
	result := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.JobStatusRunning, olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&jobs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query stale running jobs: %w", result.Error)
	}
	return jobs, nil
}

// DeleteTerminalJobsBefore is the cross-user variant of CleanupOldJobs,
// run by the watcher on its housekeeping tick
func (r *SyncJobRepository) DeleteTerminalJobsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?",
			[]models.SyncJobStatus{models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled},
			cutoff).
		Delete(&models.SyncJob{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete terminal jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
