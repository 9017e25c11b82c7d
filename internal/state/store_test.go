package state

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dirsync/server/internal/snapshot"
)

var modTime = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func snap(paths ...string) snapshot.Snapshot {
	records := make([]snapshot.FileRecord, len(paths))
	for i, p := range paths {
		records[i] = snapshot.FileRecord{Path: p, ModTime: modTime}
	}
	return snapshot.New(records)
}

func TestSubmitAgainstInitial(t *testing.T) {
	s := NewStore(snap())

	d := s.Submit(snap("/d/a", "/d/b"))

	if len(d.Added) != 2 || len(d.Removed) != 0 || len(d.Modified) != 0 {
		t.Errorf("first submission delta = %+v, want 2 added only", d)
	}
	if got := s.Current().Len(); got != 2 {
		t.Errorf("Current().Len() = %d, want 2", got)
	}
}

func TestSubmitSeededStore(t *testing.T) {
	s := NewStore(snap("/d/a", "/d/b"))

	d := s.Submit(snap("/d/b", "/d/c"))

	if len(d.Added) != 1 || d.Added[0].Path != "/d/c" {
		t.Errorf("Added = %v, want [/d/c]", d.Added)
	}
	if len(d.Removed) != 1 || d.Removed[0].Path != "/d/a" {
		t.Errorf("Removed = %v, want [/d/a]", d.Removed)
	}
}

func TestResubmitIsDegenerate(t *testing.T) {
	s := NewStore(snap())
	same := snap("/d/a", "/d/b")

	first := s.Submit(same)
	if first.Empty() {
		t.Error("first submission should produce a non-empty delta")
	}

	second := s.Submit(same)
	if !second.Empty() {
		t.Errorf("resubmitting the current snapshot produced %+v, want empty", second)
	}
}

func TestGenerationCounts(t *testing.T) {
	s := NewStore(snap())
	if s.Generation() != 0 {
		t.Errorf("fresh store Generation() = %d, want 0", s.Generation())
	}

	s.Submit(snap("/d/a"))
	s.Submit(snap("/d/a")) // degenerate submissions still count

	if got := s.Generation(); got != 2 {
		t.Errorf("Generation() = %d, want 2", got)
	}
}

// TestConcurrentSubmitsLinearize runs many racing submissions and checks that
// the result is indistinguishable from some sequential ordering: the stored
// snapshot is exactly one submission's snapshot, every submission produced a
// delta, and the deltas telescope to the final state.
func TestConcurrentSubmitsLinearize(t *testing.T) {
	const n = 64

	s := NewStore(snap())

	var mu sync.Mutex
	var deltas []snapshot.Delta

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := s.Submit(snap(fmt.Sprintf("/d/file-%03d", i)))
			mu.Lock()
			deltas = append(deltas, d)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if len(deltas) != n {
		t.Fatalf("got %d deltas, want %d", len(deltas), n)
	}
	if s.Generation() != n {
		t.Errorf("Generation() = %d, want %d", s.Generation(), n)
	}

	// Exactly one snapshot won; every submission held one distinct path.
	final := s.Current()
	if final.Len() != 1 {
		t.Fatalf("final snapshot has %d records, want 1", final.Len())
	}

	// Each delta replaced the full prior state, so added-removed telescopes
	// from the empty initial snapshot to the single surviving record.
	sum := 0
	firsts := 0
	for _, d := range deltas {
		if len(d.Modified) != 0 {
			t.Errorf("delta reported modified records across disjoint snapshots: %v", d.Modified)
		}
		sum += len(d.Added) - len(d.Removed)
		if len(d.Removed) == 0 {
			firsts++
		}
	}
	if sum != 1 {
		t.Errorf("deltas do not telescope to the final state: net %d, want 1", sum)
	}
	if firsts != 1 {
		t.Errorf("%d deltas were diffed against the empty initial snapshot, want exactly 1", firsts)
	}
}

func TestCurrentUnaffectedByCallerMutation(t *testing.T) {
	s := NewStore(snap("/d/a"))

	records := s.Current().Records()
	records[0].Path = "/mutated"

	if got := s.Current().Records()[0].Path; got != "/d/a" {
		t.Errorf("mutating Records() leaked into the store: %s", got)
	}
}
