package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/fitsync/fitsync-worker/internal/models"
	"gorm.io/gorm"
)

type EntryRepository struct {
	db *gorm.DB
}

func NewEntryRepository(db *gorm.DB) *EntryRepository {
	return &EntryRepository{db: db}
}

// DatesWithData returns the set of calendar dates in [start, end] that
// already hold records from the given source, as YYYY-MM-DD strings.
// One UNION query across every table that can hold provider data, not a
// query per day.
func (r *EntryRepository) DatesWithData(ctx context.Context, userID, source string, start, end time.Time) (map[string]bool, error) {
	query := `
		SELECT DISTINCT to_char(entry_date, 'YYYY-MM-DD') AS day FROM (
			SELECT entry_date FROM exercise_entries
			WHERE user_id = @user_id AND source = @source AND entry_date BETWEEN @start AND @end
			UNION
			SELECT entry_date FROM sleep_entries
			WHERE user_id = @user_id AND source = @source AND entry_date BETWEEN @start AND @end
			UNION
			SELECT entry_date FROM workout_entries
			WHERE user_id = @user_id AND source = @source AND entry_date BETWEEN @start AND @end
		) AS combined
	`

	var days []string
	result := r.db.WithContext(ctx).Raw(query, map[string]interface{}{
		"user_id": userID,
		"source":  source,
		"start":   start,
		"end":     end,
	}).Scan(&days)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query existing data dates: %w", result.Error)
	}

	existing := make(map[string]bool, len(days))
	for _, d := range days {
		existing[d] = true
	}
	return existing, nil
}

// DeleteExerciseEntries removes the source's exercise rows in the date range
// so a chunk can be reprocessed without duplicates
func (r *EntryRepository) DeleteExerciseEntries(ctx context.Context, userID, source string, start, end time.Time) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND source = ? AND entry_date BETWEEN ? AND ?", userID, source, start, end).
		Delete(&models.ExerciseEntry{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete exercise entries: %w", result.Error)
	}
	return nil
}

// DeleteSleepEntries removes the source's sleep rows in the date range
func (r *EntryRepository) DeleteSleepEntries(ctx context.Context, userID, source string, start, end time.Time) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND source = ? AND entry_date BETWEEN ? AND ?", userID, source, start, end).
		Delete(&models.SleepEntry{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete sleep entries: %w", result.Error)
	}
	return nil
}

// DeleteWorkoutEntries removes the source's workout rows in the date range
func (r *EntryRepository) DeleteWorkoutEntries(ctx context.Context, userID, source string, start, end time.Time) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND source = ? AND entry_date BETWEEN ? AND ?", userID, source, start, end).
		Delete(&models.WorkoutEntry{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete workout entries: %w", result.Error)
	}
	return nil
}

// InsertExerciseEntries bulk-inserts exercise entries
func (r *EntryRepository) InsertExerciseEntries(ctx context.Context, entries []models.ExerciseEntry) error {
	if len(entries) == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).CreateInBatches(entries, 100)
	if result.Error != nil {
		return fmt.Errorf("failed to insert exercise entries: %w", result.Error)
	}
	return nil
}

// InsertSleepEntries bulk-inserts sleep entries
func (r *EntryRepository) InsertSleepEntries(ctx context.Context, entries []models.SleepEntry) error {
	if len(entries) == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).CreateInBatches(entries, 100)
	if result.Error != nil {
		return fmt.Errorf("failed to insert sleep entries: %w", result.Error)
	}
	return nil
}

// InsertWorkoutEntries bulk-inserts workout entries
func (r *EntryRepository) InsertWorkoutEntries(ctx context.Context, entries []models.WorkoutEntry) error {
	if len(entries) == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).CreateInBatches(entries, 100)
	if result.Error != nil {
		return fmt.Errorf("failed to insert workout entries: %w", result.Error)
	}
	return nil
}
