package service

import (
	"fmt"
	"time"
)

const (
	// DateLayout is the wire form for calendar dates
	DateLayout = "2006-01-02"

	// maxPlannedChunks caps plan iteration so a date-arithmetic bug can
	// never spin forever
	maxPlannedChunks = 10000
)

// Chunk is one bounded date window covered by a single fetch/process
// round-trip. Start and End are inclusive calendar dates at UTC midnight.
type Chunk struct {
	Start time.Time
	End   time.Time
}

func (c Chunk) String() string {
	return fmt.Sprintf("%s to %s", c.Start.Format(DateLayout), c.End.Format(DateLayout))
}

// PlanChunks splits [start, end] into contiguous, non-overlapping windows of
// at most chunkSizeDays days each, in ascending date order. The final window
// is truncated at end. start == end yields a single one-day window;
// start > end yields an empty plan.
func PlanChunks(start, end time.Time, chunkSizeDays int) ([]Chunk, error) {
	if chunkSizeDays < 1 {
		return nil, fmt.Errorf("chunk size must be at least 1 day, got %d", chunkSizeDays)
	}

	start = truncateToDay(start)
	end = truncateToDay(end)

	var chunks []Chunk
	for cursor := start; !cursor.After(end); {
		if len(chunks) >= maxPlannedChunks {
			return nil, fmt.Errorf("chunk plan exceeded %d windows for range %s to %s",
				maxPlannedChunks, start.Format(DateLayout), end.Format(DateLayout))
		}

		chunkEnd := cursor.AddDate(0, 0, chunkSizeDays-1)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		chunks = append(chunks, Chunk{Start: cursor, End: chunkEnd})
		cursor = chunkEnd.AddDate(0, 0, 1)
	}

	return chunks, nil
}

// ChunkNeedsSync enumerates every calendar day in the chunk against the
// existing-data set. A chunk needs syncing when any day is missing; the whole
// window is then refetched because the provider API takes a date range, not
// individual days.
func ChunkNeedsSync(chunk Chunk, existingDates map[string]bool) (bool, []string) {
	var missing []string
	for day := chunk.Start; !day.After(chunk.End); day = day.AddDate(0, 0, 1) {
		key := day.Format(DateLayout)
		if !existingDates[key] {
			missing = append(missing, key)
		}
	}
	return len(missing) > 0, missing
}

// ParseDate parses a YYYY-MM-DD string to a UTC calendar date
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return d, nil
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
