package collab

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFlushScheduler_CancelOnReschedule(t *testing.T) {
	var fired int32
	s := NewFlushScheduler(40*time.Millisecond, func(DocKey) { atomic.AddInt32(&fired, 1) })
	defer s.Stop()

	key := DocKey{ProjectID: "p", FileID: "f"}
	for i := 0; i < 6; i++ {
		s.Schedule(key)
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(150 * time.Millisecond)
	if n := atomic.LoadInt32(&fired); n != 1 {
		t.Fatalf("flush fired %d times, want 1", n)
	}
}

func TestFlushScheduler_IndependentKeys(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[DocKey]int)
	s := NewFlushScheduler(20*time.Millisecond, func(k DocKey) {
		mu.Lock()
		seen[k]++
		mu.Unlock()
	})
	defer s.Stop()

	k1 := DocKey{ProjectID: "p", FileID: "a"}
	k2 := DocKey{ProjectID: "p", FileID: "b"}
	s.Schedule(k1)
	s.Schedule(k2)

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if seen[k1] != 1 || seen[k2] != 1 {
		t.Fatalf("flushes = %v, want one per key", seen)
	}
}

func TestFlushScheduler_Cancel(t *testing.T) {
	var fired int32
	s := NewFlushScheduler(20*time.Millisecond, func(DocKey) { atomic.AddInt32(&fired, 1) })
	defer s.Stop()

	key := DocKey{ProjectID: "p", FileID: "f"}
	s.Schedule(key)
	s.Cancel(key)

	time.Sleep(80 * time.Millisecond)
	if n := atomic.LoadInt32(&fired); n != 0 {
		t.Fatalf("flush fired %d times after Cancel, want 0", n)
	}
}

func TestFlushScheduler_StopBlocksNewWork(t *testing.T) {
	var fired int32
	s := NewFlushScheduler(10*time.Millisecond, func(DocKey) { atomic.AddInt32(&fired, 1) })

	key := DocKey{ProjectID: "p", FileID: "f"}
	s.Schedule(key)
	s.Stop()
	s.Schedule(key)

	time.Sleep(60 * time.Millisecond)
	if n := atomic.LoadInt32(&fired); n != 0 {
		t.Fatalf("flush fired %d times after Stop, want 0", n)
	}
}
