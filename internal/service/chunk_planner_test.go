package service

import (
	"testing"
	"time"
)

func date(s string) time.Time {
	d, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		panic(err)
	}
	return d
}

func TestPlanChunks_TwentyDayRange(t *testing.T) {
	chunks, err := PlanChunks(date("2024-01-01"), date("2024-01-20"), 7)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	expected := []Chunk{
		{Start: date("2024-01-01"), End: date("2024-01-07")},
		{Start: date("2024-01-08"), End: date("2024-01-14")},
		{Start: date("2024-01-15"), End: date("2024-01-20")},
	}

	if len(chunks) != len(expected) {
		t.Fatalf("expected %d chunks, got %d", len(expected), len(chunks))
	}
	for i, want := range expected {
		if !chunks[i].Start.Equal(want.Start) || !chunks[i].End.Equal(want.End) {
			t.Errorf("chunk %d: expected %s, got %s", i, want, chunks[i])
		}
	}
}

func TestPlanChunks_CoversRangeContiguously(t *testing.T) {
	cases := []struct {
		name  string
		start string
		end   string
		size  int
	}{
		{"one week exact", "2024-03-04", "2024-03-10", 7},
		{"spans month boundary", "2024-01-25", "2024-02-10", 7},
		{"spans leap day", "2024-02-26", "2024-03-05", 3},
		{"one day chunks", "2024-05-01", "2024-05-05", 1},
		{"single oversized chunk", "2024-05-01", "2024-05-03", 30},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end := date(tc.start), date(tc.end)
			chunks, err := PlanChunks(start, end, tc.size)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(chunks) == 0 {
				t.Fatal("expected at least one chunk")
			}

			if !chunks[0].Start.Equal(start) {
				t.Errorf("first chunk starts at %s, want %s", chunks[0].Start, start)
			}
			if !chunks[len(chunks)-1].End.Equal(end) {
				t.Errorf("last chunk ends at %s, want %s", chunks[len(chunks)-1].End, end)
			}

			for i, c := range chunks {
				if c.Start.After(c.End) {
					t.Errorf("chunk %d is inverted: %s", i, c)
				}
				days := int(c.End.Sub(c.Start).Hours()/24) + 1
				if days > tc.size {
					t.Errorf("chunk %d spans %d days, max is %d", i, days, tc.size)
				}
				if i > 0 {
					expectedStart := chunks[i-1].End.AddDate(0, 0, 1)
					if !c.Start.Equal(expectedStart) {
						t.Errorf("chunk %d is not contiguous: starts %s, want %s", i, c.Start, expectedStart)
					}
				}
			}
		})
	}
}

func TestPlanChunks_SingleDay(t *testing.T) {
	chunks, err := PlanChunks(date("2024-06-15"), date("2024-06-15"), 7)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if !chunks[0].Start.Equal(date("2024-06-15")) || !chunks[0].End.Equal(date("2024-06-15")) {
		t.Errorf("expected one-day window, got %s", chunks[0])
	}
}

func TestPlanChunks_InvertedRange(t *testing.T) {
	chunks, err := PlanChunks(date("2024-06-15"), date("2024-06-10"), 7)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected empty plan, got %d chunks", len(chunks))
	}
}

func TestPlanChunks_InvalidChunkSize(t *testing.T) {
	if _, err := PlanChunks(date("2024-01-01"), date("2024-01-20"), 0); err == nil {
		t.Error("expected error for chunk size 0, got nil")
	}
}

func TestPlanChunks_IterationCap(t *testing.T) {
	// 10000 one-day chunks is the cap; one more must error out rather
	// than keep planning
	start := date("2000-01-01")
	end := start.AddDate(0, 0, maxPlannedChunks)
	if _, err := PlanChunks(start, end, 1); err == nil {
		t.Error("expected iteration cap error, got nil")
	}
}

func TestChunkNeedsSync_AllDaysPresent(t *testing.T) {
	existing := map[string]bool{
		"2024-01-01": true,
		"2024-01-02": true,
		"2024-01-03": true,
	}
	chunk := Chunk{Start: date("2024-01-01"), End: date("2024-01-03")}

	needsSync, missing := ChunkNeedsSync(chunk, existing)
	if needsSync {
		t.Error("expected needsSync=false when every day is present")
	}
	if len(missing) != 0 {
		t.Errorf("expected no missing dates, got %v", missing)
	}
}

func TestChunkNeedsSync_MissingDays(t *testing.T) {
	existing := map[string]bool{
		"2024-01-01": true,
		"2024-01-03": true,
	}
	chunk := Chunk{Start: date("2024-01-01"), End: date("2024-01-04")}

	needsSync, missing := ChunkNeedsSync(chunk, existing)
	if !needsSync {
		t.Error("expected needsSync=true when days are missing")
	}
	want := []string{"2024-01-02", "2024-01-04"}
	if len(missing) != len(want) {
		t.Fatalf("expected %d missing dates, got %v", len(want), missing)
	}
	for i := range want {
		if missing[i] != want[i] {
			t.Errorf("missing[%d] = %s, want %s", i, missing[i], want[i])
		}
	}
}

func TestChunkNeedsSync_EmptyIndex(t *testing.T) {
	chunk := Chunk{Start: date("2024-01-01"), End: date("2024-01-07")}
	needsSync, missing := ChunkNeedsSync(chunk, map[string]bool{})
	if !needsSync {
		t.Error("expected needsSync=true for empty index")
	}
	if len(missing) != 7 {
		t.Errorf("expected 7 missing dates, got %d", len(missing))
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if d.Hour() != 0 || d.Location() != time.UTC {
		t.Errorf("expected UTC midnight, got %s", d)
	}

	if _, err := ParseDate("29/02/2024"); err == nil {
		t.Error("expected error for malformed date, got nil")
	}
	if _, err := ParseDate(""); err == nil {
		t.Error("expected error for empty date, got nil")
	}
}
