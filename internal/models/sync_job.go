package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type SyncJobStatus string

const (
	JobStatusPending   SyncJobStatus = "pending"
	JobStatusRunning   SyncJobStatus = "running"
	JobStatusPaused    SyncJobStatus = "paused"
	JobStatusCompleted SyncJobStatus = "completed"
	JobStatusFailed    SyncJobStatus = "failed"
	JobStatusCancelled SyncJobStatus = "cancelled"
)

type SyncType string

const (
	SyncTypeHistorical  SyncType = "historical"  // user-requested backfill over an explicit range
	SyncTypeIncremental SyncType = "incremental" // tail window since the provider watermark
)

// FailedChunk is one entry in the append-only failure ledger. A failed chunk
// never aborts the job; the ledger tells the user which windows to retry.
type FailedChunk struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Error string `json:"error"`
}

type SyncJob struct {
	ID                 string        `gorm:"column:id;primaryKey"`
	UserID             string        `gorm:"column:user_id;index"`
	Status             SyncJobStatus `gorm:"column:status;index"`
	SyncType           SyncType      `gorm:"column:sync_type"`
	StartDate          time.Time     `gorm:"column:start_date"`
	EndDate            time.Time     `gorm:"column:end_date"`
	MetricTypes        *string       `gorm:"column:metric_types"` // comma-separated, NULL = all metrics
	SkipExisting       bool          `gorm:"column:skip_existing"`
	ChunksTotal        int           `gorm:"column:chunks_total"`
	ChunksCompleted    int           `gorm:"column:chunks_completed"`
	CurrentChunkStart  *time.Time    `gorm:"column:current_chunk_start"`
	CurrentChunkEnd    *time.Time    `gorm:"column:current_chunk_end"`
	LastSuccessfulDate *time.Time    `gorm:"column:last_successful_date"`
	CurrentStage       string        `gorm:"column:current_stage"`
	FailedChunks       string        `gorm:"column:failed_chunks"` // JSON array of FailedChunk
	ErrorMessage       *string       `gorm:"column:error_message"`
	CreatedAt          time.Time     `gorm:"column:created_at"`
	UpdatedAt          time.Time     `gorm:"column:updated_at"`
	StartedAt          *time.Time    `gorm:"column:started_at"`
	CompletedAt        *time.Time    `gorm:"column:completed_at"`
}

// TableName specifies the table name for GORM
func (SyncJob) TableName() string {
	return "sync_jobs"
}

// IsTerminal reports whether the job reached a final state
func (j *SyncJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed || j.Status == JobStatusCancelled
}

// IsActive reports whether the job counts toward the one-active-job-per-user rule
func (j *SyncJob) IsActive() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusRunning
}

// PercentComplete returns chunk progress as 0-100
func (j *SyncJob) PercentComplete() int {
	if j.ChunksTotal == 0 {
		return 0
	}
	return j.ChunksCompleted * 100 / j.ChunksTotal
}

// FailedChunkList decodes the failure ledger
func (j *SyncJob) FailedChunkList() ([]FailedChunk, error) {
	if j.FailedChunks == "" {
		return nil, nil
	}
	var chunks []FailedChunk
	if err := json.Unmarshal([]byte(j.FailedChunks), &chunks); err != nil {
		return nil, fmt.Errorf("failed to decode failed chunks: %w", err)
	}
	return chunks, nil
}

// MetricTypeList splits the optional metric subset; nil means all metrics
func (j *SyncJob) MetricTypeList() []string {
	if j.MetricTypes == nil || *j.MetricTypes == "" {
		return nil
	}
	return strings.Split(*j.MetricTypes, ",")
}

// StatusUpdate carries the optional fields a status transition may set.
// Typed fields instead of a generic map keep the writable surface explicit.
type StatusUpdate struct {
	ErrorMessage *string
	Stage        *string
}

// ProgressUpdate is the durable per-chunk checkpoint
type ProgressUpdate struct {
	ChunkStart         time.Time
	ChunkEnd           time.Time
	ChunksCompleted    int
	LastSuccessfulDate *time.Time
	Stage              string
}
