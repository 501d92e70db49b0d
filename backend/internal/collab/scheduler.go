package collab

import (
	"context"
	"sync"
	"time"
)

// FlushScheduler debounces persistence per document: every edit
// (re)arms the file's timer, so rapid edits coalesce into one write of
// the latest authoritative content. The callback runs on the timer
// goroutine, never on the submit path.
type FlushScheduler struct {
	mu       sync.Mutex
	timers   map[DocKey]*time.Timer
	debounce time.Duration
	flush    func(DocKey)
	stopped  bool
}

func NewFlushScheduler(debounce time.Duration, flush func(DocKey)) *FlushScheduler {
	return &FlushScheduler{
		timers:   make(map[DocKey]*time.Timer),
		debounce: debounce,
		flush:    flush,
	}
}

// Schedule arms (or re-arms) the debounce timer for the key.
func (s *FlushScheduler) Schedule(key DocKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if t, ok := s.timers[key]; ok {
		t.Stop()
	}
	s.timers[key] = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		delete(s.timers, key)
		s.mu.Unlock()
		s.flush(key)
	})
}

// Cancel drops any scheduled flush for the key without running it.
func (s *FlushScheduler) Cancel(key DocKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
}

// Stop cancels everything; further Schedule calls are no-ops.
func (s *FlushScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}

// Sweeper runs the registry's advisory cleanup on a fixed period.
type Sweeper struct {
	registry *Registry
	stop     chan struct{}
	done     chan struct{}
}

func NewSweeper(r *Registry) *Sweeper {
	return &Sweeper{registry: r, stop: make(chan struct{}), done: make(chan struct{})}
}

func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.registry.opts.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.registry.Sweep(context.Background())
			case <-s.stop:
				return
			}
		}
	}()
}

func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}
