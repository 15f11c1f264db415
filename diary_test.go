package main

import (
	"sync"
	"testing"
)

func TestLockEntrySerializesSameID(t *testing.T) {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		running int
		peak    int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := lockEntry(42)
			defer unlock()
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()
			mu.Lock()
			running--
			mu.Unlock()
		}()
	}
	wg.Wait()
	if peak != 1 {
		t.Fatalf("expected exclusive access per id, saw %d concurrent holders", peak)
	}
}

func TestLockEntryPrunesReleasedLocks(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		id := uint(100 + i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				unlock := lockEntry(id)
				unlock()
			}
		}()
	}
	wg.Wait()

	entryLocks.mu.Lock()
	defer entryLocks.mu.Unlock()
	for id := uint(100); id < 104; id++ {
		if _, ok := entryLocks.m[id]; ok {
			t.Fatalf("lock for entry %d still in map after release", id)
		}
	}
}
