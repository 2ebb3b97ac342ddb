package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fitsync/fitsync-worker/internal/models"
	"github.com/google/uuid"
)

// EntryStore is the storage surface the processor writes through.
// Implemented by repository.EntryRepository.
type EntryStore interface {
	DeleteExerciseEntries(ctx context.Context, userID, source string, start, end time.Time) error
	DeleteSleepEntries(ctx context.Context, userID, source string, start, end time.Time) error
	DeleteWorkoutEntries(ctx context.Context, userID, source string, start, end time.Time) error
	InsertExerciseEntries(ctx context.Context, entries []models.ExerciseEntry) error
	InsertSleepEntries(ctx context.Context, entries []models.SleepEntry) error
	InsertWorkoutEntries(ctx context.Context, entries []models.WorkoutEntry) error
}

// GarminDataProcessor upserts fetched Garmin payloads. Idempotence comes from
// delete-then-reinsert scoped to (user, source, date range): reprocessing a
// chunk replaces its rows instead of duplicating them.
type GarminDataProcessor struct {
	entries EntryStore
}

func NewGarminDataProcessor(entries EntryStore) *GarminDataProcessor {
	return &GarminDataProcessor{entries: entries}
}

// ProcessHealthAndWellness stores daily summaries as exercise entries
func (p *GarminDataProcessor) ProcessHealthAndWellness(ctx context.Context, userID, actorID string, data *WellnessData, startDate, endDate string) error {
	if data == nil {
		return nil
	}

	start, end, err := parseRange(startDate, endDate)
	if err != nil {
		return err
	}

	if err := p.entries.DeleteExerciseEntries(ctx, userID, models.ProviderGarmin, start, end); err != nil {
		return err
	}

	now := time.Now()
	rows := make([]models.ExerciseEntry, 0, len(data.Dailies))
	for _, daily := range data.Dailies {
		entryDate, err := ParseDate(daily.CalendarDate)
		if err != nil {
			log.Printf("Warning: skipping daily summary with bad date %q: %v", daily.CalendarDate, err)
			continue
		}
		raw := daily.RawPayload
		rows = append(rows, models.ExerciseEntry{
			ID:         uuid.New().String(),
			UserID:     userID,
			ActorID:    actorID,
			EntryDate:  entryDate,
			Source:     models.ProviderGarmin,
			EntryType:  "daily_summary",
			Steps:      daily.Steps,
			Calories:   daily.Calories,
			RestingHR:  daily.RestingHeartRate,
			RawPayload: &raw,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	if err := p.entries.InsertExerciseEntries(ctx, rows); err != nil {
		return err
	}

	log.Printf("Stored %d daily summaries for user %s (%s to %s)", len(rows), userID, startDate, endDate)
	return nil
}

// ProcessSleepData stores sleep records
func (p *GarminDataProcessor) ProcessSleepData(ctx context.Context, userID, actorID string, sleep []SleepRecord, startDate, endDate string) error {
	start, end, err := parseRange(startDate, endDate)
	if err != nil {
		return err
	}

	if err := p.entries.DeleteSleepEntries(ctx, userID, models.ProviderGarmin, start, end); err != nil {
		return err
	}

	now := time.Now()
	rows := make([]models.SleepEntry, 0, len(sleep))
	for _, rec := range sleep {
		entryDate, err := ParseDate(rec.CalendarDate)
		if err != nil {
			log.Printf("Warning: skipping sleep record with bad date %q: %v", rec.CalendarDate, err)
			continue
		}
		raw := rec.RawPayload
		startTime := rec.StartTime
		endTime := rec.EndTime
		rows = append(rows, models.SleepEntry{
			ID:              uuid.New().String(),
			UserID:          userID,
			ActorID:         actorID,
			EntryDate:       entryDate,
			Source:          models.ProviderGarmin,
			StartTime:       &startTime,
			EndTime:         &endTime,
			DurationMinutes: rec.DurationMinutes,
			DeepMinutes:     rec.DeepMinutes,
			LightMinutes:    rec.LightMinutes,
			RemMinutes:      rec.RemMinutes,
			AwakeMinutes:    rec.AwakeMinutes,
			RawPayload:      &raw,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}

	if err := p.entries.InsertSleepEntries(ctx, rows); err != nil {
		return err
	}

	log.Printf("Stored %d sleep entries for user %s (%s to %s)", len(rows), userID, startDate, endDate)
	return nil
}

// ProcessActivitiesAndWorkouts stores activities and scheduled workouts as
// workout entries
func (p *GarminDataProcessor) ProcessActivitiesAndWorkouts(ctx context.Context, userID, actorID string, payload *ActivityData, startDate, endDate string) error {
	if payload == nil {
		return nil
	}

	start, end, err := parseRange(startDate, endDate)
	if err != nil {
		return err
	}

	if err := p.entries.DeleteWorkoutEntries(ctx, userID, models.ProviderGarmin, start, end); err != nil {
		return err
	}

	now := time.Now()
	rows := make([]models.WorkoutEntry, 0, len(payload.Activities)+len(payload.Workouts))
	for _, act := range payload.Activities {
		entryDate, err := ParseDate(act.CalendarDate)
		if err != nil {
			log.Printf("Warning: skipping activity %s with bad date %q: %v", act.ExternalID, act.CalendarDate, err)
			continue
		}
		externalID := act.ExternalID
		raw := act.RawPayload
		startTime := act.StartTime
		rows = append(rows, models.WorkoutEntry{
			ID:              uuid.New().String(),
			UserID:          userID,
			ActorID:         actorID,
			EntryDate:       entryDate,
			Source:          models.ProviderGarmin,
			ExternalID:      &externalID,
			Name:            act.Name,
			ActivityType:    act.ActivityType,
			StartTime:       &startTime,
			DurationSeconds: act.DurationSeconds,
			DistanceMeters:  act.DistanceMeters,
			Calories:        act.Calories,
			RawPayload:      &raw,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}
	for _, wk := range payload.Workouts {
		entryDate, err := ParseDate(wk.CalendarDate)
		if err != nil {
			log.Printf("Warning: skipping workout %s with bad date %q: %v", wk.ExternalID, wk.CalendarDate, err)
			continue
		}
		externalID := wk.ExternalID
		raw := wk.RawPayload
		rows = append(rows, models.WorkoutEntry{
			ID:           uuid.New().String(),
			UserID:       userID,
			ActorID:      actorID,
			EntryDate:    entryDate,
			Source:       models.ProviderGarmin,
			ExternalID:   &externalID,
			Name:         wk.Name,
			ActivityType: wk.WorkoutType,
			RawPayload:   &raw,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	if err := p.entries.InsertWorkoutEntries(ctx, rows); err != nil {
		return err
	}

	log.Printf("Stored %d workout entries for user %s (%s to %s)", len(rows), userID, startDate, endDate)
	return nil
}

func parseRange(startDate, endDate string) (time.Time, time.Time, error) {
	start, err := ParseDate(startDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad range start: %w", err)
	}
	end, err := ParseDate(endDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad range end: %w", err)
	}
	return start, end, nil
}
