package service

import (
	"sync"
	"testing"
)

func TestRegistry_TryAdd(t *testing.T) {
	r := NewRegistry()

	if !r.TryAdd("job-1") {
		t.Fatal("expected first TryAdd to succeed")
	}
	if r.TryAdd("job-1") {
		t.Error("expected second TryAdd for the same job to fail")
	}
	if !r.TryAdd("job-2") {
		t.Error("expected TryAdd for a different job to succeed")
	}
}

func TestRegistry_RemoveReleasesClaim(t *testing.T) {
	r := NewRegistry()

	r.TryAdd("job-1")
	if !r.Contains("job-1") {
		t.Fatal("expected job to be registered")
	}

	r.Remove("job-1")
	if r.Contains("job-1") {
		t.Error("expected job to be gone after Remove")
	}
	if !r.TryAdd("job-1") {
		t.Error("expected TryAdd to succeed after Remove")
	}

	// Removing an absent job is a no-op
	r.Remove("never-added")
}

func TestRegistry_ConcurrentClaims(t *testing.T) {
	r := NewRegistry()

	const attempts = 50
	var wg sync.WaitGroup
	results := make(chan bool, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- r.TryAdd("job-1")
		}()
	}
	wg.Wait()
	close(results)

	claimed := 0
	for ok := range results {
		if ok {
			claimed++
		}
	}
	if claimed != 1 {
		t.Errorf("expected exactly one successful claim, got %d", claimed)
	}
}
