package cache

import (
	"testing"
	"time"
)

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	l := newLRU(3)

	l.set("a", 1, time.Time{})
	l.set("b", 2, time.Time{})
	l.set("c", 3, time.Time{})

	// Inserting a 4th key evicts "a", the least recently used.
	if evicted := l.set("d", 4, time.Time{}); evicted != 1 {
		t.Errorf("Expected 1 eviction, got %d", evicted)
	}

	if _, ok := l.get("a"); ok {
		t.Error("Expected 'a' to be evicted")
	}
	for _, key := range []string{"b", "c", "d"} {
		if _, ok := l.get(key); !ok {
			t.Errorf("Expected %q to survive eviction", key)
		}
	}
}

func TestLRU_GetProtectsFromEviction(t *testing.T) {
	l := newLRU(3)

	l.set("a", 1, time.Time{})
	l.set("b", 2, time.Time{})
	l.set("c", 3, time.Time{})

	// Access "a" so "b" becomes the eviction candidate.
	if _, ok := l.get("a"); !ok {
		t.Fatal("Expected 'a' to be present")
	}

	l.set("d", 4, time.Time{})

	if _, ok := l.get("b"); ok {
		t.Error("Expected 'b' to be evicted after 'a' was refreshed")
	}
	if _, ok := l.get("a"); !ok {
		t.Error("Expected 'a' to be protected by the preceding get")
	}
}

func TestLRU_SetRefreshesRecency(t *testing.T) {
	l := newLRU(2)

	l.set("a", 1, time.Time{})
	l.set("b", 2, time.Time{})
	l.set("a", 10, time.Time{}) // refresh, no eviction
	l.set("c", 3, time.Time{})  // evicts "b"

	if _, ok := l.get("b"); ok {
		t.Error("Expected 'b' to be evicted")
	}
	value, ok := l.get("a")
	if !ok {
		t.Fatal("Expected 'a' to be present")
	}
	if value != 10 {
		t.Errorf("Expected refreshed value 10, got %v", value)
	}
}

func TestLRU_AdvisoryExpiry(t *testing.T) {
	l := newLRU(10)

	l.set("fresh", 1, time.Now().Add(time.Minute))
	l.set("stale", 2, time.Now().Add(-time.Minute))

	if _, ok := l.get("fresh"); !ok {
		t.Error("Expected unexpired entry to be served")
	}
	if _, ok := l.get("stale"); ok {
		t.Error("Expected expired entry to be dropped")
	}
	if l.contains("stale") {
		t.Error("Expected contains to report expired entry as absent")
	}
}

func TestLRU_DeletePrefix(t *testing.T) {
	l := newLRU(10)

	l.set("a:1", 1, time.Time{})
	l.set("a:2", 2, time.Time{})
	l.set("b:1", 3, time.Time{})

	if removed := l.deletePrefix("a:"); removed != 2 {
		t.Errorf("Expected 2 removals, got %d", removed)
	}
	if _, ok := l.get("b:1"); !ok {
		t.Error("Expected 'b:1' to survive prefix delete")
	}
	if l.len() != 1 {
		t.Errorf("Expected 1 remaining entry, got %d", l.len())
	}
}

func TestLRU_MostAccessed(t *testing.T) {
	l := newLRU(10)

	l.set("rare", 1, time.Time{})
	l.set("hot", 2, time.Time{})

	for i := 0; i < 5; i++ {
		l.get("hot")
	}
	l.get("rare")

	top := l.mostAccessed(1)
	if len(top) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(top))
	}
	if top[0].Key != "hot" || top[0].Hits != 5 {
		t.Errorf("Expected hot/5, got %s/%d", top[0].Key, top[0].Hits)
	}
}
