package models

import "time"

// ExerciseEntry holds one day of activity-level health metrics (steps,
// calories, resting heart rate) from a provider or manual logging.
type ExerciseEntry struct {
	ID         string    `gorm:"column:id;primaryKey"`
	UserID     string    `gorm:"column:user_id;index"`
	ActorID    string    `gorm:"column:actor_id"`
	EntryDate  time.Time `gorm:"column:entry_date"`
	Source     string    `gorm:"column:source"`
	EntryType  string    `gorm:"column:entry_type"`
	Steps      int       `gorm:"column:steps"`
	Calories   float64   `gorm:"column:calories"`
	RestingHR  int       `gorm:"column:resting_hr"`
	RawPayload *string   `gorm:"column:raw_payload"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (ExerciseEntry) TableName() string {
	return "exercise_entries"
}

type SleepEntry struct {
	ID              string     `gorm:"column:id;primaryKey"`
	UserID          string     `gorm:"column:user_id;index"`
	ActorID         string     `gorm:"column:actor_id"`
	EntryDate       time.Time  `gorm:"column:entry_date"`
	Source          string     `gorm:"column:source"`
	StartTime       *time.Time `gorm:"column:start_time"`
	EndTime         *time.Time `gorm:"column:end_time"`
	DurationMinutes int        `gorm:"column:duration_minutes"`
	DeepMinutes     int        `gorm:"column:deep_minutes"`
	LightMinutes    int        `gorm:"column:light_minutes"`
	RemMinutes      int        `gorm:"column:rem_minutes"`
	AwakeMinutes    int        `gorm:"column:awake_minutes"`
	RawPayload      *string    `gorm:"column:raw_payload"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (SleepEntry) TableName() string {
	return "sleep_entries"
}

type WorkoutEntry struct {
	ID              string     `gorm:"column:id;primaryKey"`
	UserID          string     `gorm:"column:user_id;index"`
	ActorID         string     `gorm:"column:actor_id"`
	EntryDate       time.Time  `gorm:"column:entry_date"`
	Source          string     `gorm:"column:source"`
	ExternalID      *string    `gorm:"column:external_id"`
	Name            string     `gorm:"column:name"`
	ActivityType    string     `gorm:"column:activity_type"`
	StartTime       *time.Time `gorm:"column:start_time"`
	DurationSeconds int        `gorm:"column:duration_seconds"`
	DistanceMeters  float64    `gorm:"column:distance_meters"`
	Calories        float64    `gorm:"column:calories"`
	RawPayload      *string    `gorm:"column:raw_payload"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (WorkoutEntry) TableName() string {
	return "workout_entries"
}
