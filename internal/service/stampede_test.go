package service

import (
	"sync"
	"testing"
)

// TestStampedeTracker_RecordMiss_RecordDone verifies that RecordMiss increments and
// returns the concurrent count per key and that RecordDone decrements correctly
// until the key is removed.
func TestStampedeTracker_RecordMiss_RecordDone(t *testing.T) {
	st := newStampedeTracker()
	key := "weather:seattle"

	// First miss: count 1
	if got := st.RecordMiss(key); got != 1 {
		t.Errorf("RecordMiss first = %d, want 1", got)
	}
	// Second concurrent miss: count 2
	if got := st.RecordMiss(key); got != 2 {
		t.Errorf("RecordMiss second = %d, want 2", got)
	}

	// Complete one miss
	st.RecordDone(key)
	if got := st.RecordMiss(key); got != 2 {
		t.Errorf("after one done, RecordMiss = %d, want 2", got)
	}
	st.RecordDone(key)
	st.RecordDone(key)
	// All cleared; next miss is 1
	if got := st.RecordMiss(key); got != 1 {
		t.Errorf("after all done, RecordMiss = %d, want 1", got)
	}
	st.RecordDone(key)
}

// TestStampedeTracker_Concurrent verifies that concurrent RecordMiss/RecordDone
// calls do not race and leave the tracker in a consistent state.
func TestStampedeTracker_Concurrent(t *testing.T) {
	st := newStampedeTracker()
	key := "weather:london"
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.RecordMiss(key)
			st.RecordDone(key)
		}()
	}
	wg.Wait()
	// No active misses remain; next miss is 1
	if got := st.RecordMiss(key); got != 1 {
		t.Errorf("after concurrent ops RecordMiss = %d, want 1", got)
	}
	st.RecordDone(key)
}
