package service

import (
	"context"
	"time"

	"github.com/fitsync/fitsync-worker/internal/models"
)

// JobStore is the persistence surface the orchestrator drives. Implemented by
// repository.SyncJobRepository.
type JobStore interface {
	Create(ctx context.Context, job *models.SyncJob) error
	GetActiveJob(ctx context.Context, userID string) (*models.SyncJob, error)
	GetByID(ctx context.Context, userID, jobID string) (*models.SyncJob, error)
	GetMostRecent(ctx context.Context, userID string) (*models.SyncJob, error)
	UpdateStatus(ctx context.Context, jobID string, status models.SyncJobStatus, upd models.StatusUpdate) error
	UpdateProgress(ctx context.Context, jobID string, upd models.ProgressUpdate) error
	UpdateStage(ctx context.Context, jobID string, stage string) error
	AddFailedChunk(ctx context.Context, jobID string, chunk models.FailedChunk) error
	CleanupOldJobs(ctx context.Context, userID string, retentionDays int) error
}

// ProviderLinkStore exposes the per-user provider connection and watermark.
// Implemented by repository.ProviderLinkRepository.
type ProviderLinkStore interface {
	GetByUserAndProvider(ctx context.Context, userID, provider string) (*models.ProviderLink, error)
	UpdateTokens(ctx context.Context, linkID string, accessToken, refreshToken string, expiresAt time.Time) error
	UpdateLastSyncDate(ctx context.Context, linkID string, syncDate time.Time) error
}

// ExistingDataStore answers the skip-existing question in one aggregate query.
// Implemented by repository.EntryRepository.
type ExistingDataStore interface {
	DatesWithData(ctx context.Context, userID, source string, start, end time.Time) (map[string]bool, error)
}

// ProviderFetcher is the external provider's date-ranged data API.
// Implemented by garmin.Client.
type ProviderFetcher interface {
	FetchHealthAndWellness(ctx context.Context, accessToken, startDate, endDate string, metricTypes []string) (*WellnessData, error)
	FetchActivitiesAndWorkouts(ctx context.Context, accessToken, startDate, endDate string) (*ActivityData, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenRefreshResult, error)
}

// DataProcessor idempotently upserts fetched payloads into storage. Re-running
// a chunk must not duplicate rows.
type DataProcessor interface {
	ProcessHealthAndWellness(ctx context.Context, userID, actorID string, data *WellnessData, startDate, endDate string) error
	ProcessSleepData(ctx context.Context, userID, actorID string, sleep []SleepRecord, startDate, endDate string) error
	ProcessActivitiesAndWorkouts(ctx context.Context, userID, actorID string, payload *ActivityData, startDate, endDate string) error
}

// WellnessData is the health/wellness payload for one date window
type WellnessData struct {
	Dailies []DailySummary
	Sleep   []SleepRecord
}

type DailySummary struct {
	CalendarDate     string // YYYY-MM-DD
	Steps            int
	Calories         float64
	RestingHeartRate int
	RawPayload       string
}

type SleepRecord struct {
	CalendarDate    string // YYYY-MM-DD
	StartTime       time.Time
	EndTime         time.Time
	DurationMinutes int
	DeepMinutes     int
	LightMinutes    int
	RemMinutes      int
	AwakeMinutes    int
	RawPayload      string
}

// ActivityData is the activities/workouts payload for one date window
type ActivityData struct {
	Activities []Activity
	Workouts   []Workout
}

type Activity struct {
	ExternalID      string
	Name            string
	ActivityType    string
	CalendarDate    string // YYYY-MM-DD
	StartTime       time.Time
	DurationSeconds int
	DistanceMeters  float64
	Calories        float64
	RawPayload      string
}

type Workout struct {
	ExternalID   string
	Name         string
	WorkoutType  string
	CalendarDate string // YYYY-MM-DD
	RawPayload   string
}

type TokenRefreshResult struct {
	AccessToken  string
	RefreshToken string // may be same or rotated
	ExpiresAt    time.Time
}
