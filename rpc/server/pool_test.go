package server

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestPoolGrowth tests that the pool grows up to maxThreads and then refuses
// direct hand-off
func TestPoolGrowth(t *testing.T) {
	p := newPool()
	p.start(1, 3, time.Minute)
	defer p.stop(time.Second)

	release := make(chan struct{})
	var started sync.WaitGroup
	for i := 0; i < 3; i++ {
		started.Add(1)
		if !p.TrySubmit(func() {
			started.Done()
			<-release
		}) {
			t.Fatalf("TrySubmit %d refused below maxThreads", i)
		}
	}
	started.Wait()

	if p.Total() != 3 || p.Busy() != 3 {
		t.Errorf("Expected 3 busy workers, got total %d busy %d", p.Total(), p.Busy())
	}
	if p.TrySubmit(func() {}) {
		t.Error("TrySubmit accepted a job with all workers busy")
	}

	// Submit queues instead
	var ran atomic.Bool
	if err := p.Submit(func() { ran.Store(true) }); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if p.Queued() != 1 {
		t.Errorf("Expected 1 queued job, got %d", p.Queued())
	}
	close(release)
	waitFor(t, "queued job", ran.Load)
}

// TestPoolShrink tests that surplus workers retire and the minimum stays
func TestPoolShrink(t *testing.T) {
	p := newPool()
	p.start(1, 4, 20*time.Millisecond)
	defer p.stop(time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		p.TrySubmit(func() {
			time.Sleep(10 * time.Millisecond)
			wg.Done()
		})
	}
	wg.Wait()

	waitFor(t, "surplus workers to retire", func() bool { return p.Total() == 1 })
	time.Sleep(60 * time.Millisecond)
	if p.Total() != 1 {
		t.Errorf("Expected 1 permanent worker, got %d", p.Total())
	}
}

// TestPoolRetireRace submits jobs while surplus workers keep retiring and
// checks that no accepted job is left without a worker
func TestPoolRetireRace(t *testing.T) {
	p := newPool()
	p.start(0, 2, time.Millisecond)
	defer p.stop(time.Second)

	for i := 0; i < 300; i++ {
		time.Sleep(time.Duration(i%3) * time.Millisecond)
		done := make(chan struct{})
		if !p.TrySubmit(func() { close(done) }) {
			t.Fatalf("TrySubmit %d refused with no busy worker", i)
		}
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("Job %d never ran (total %d, busy %d, queued %d)", i, p.Total(), p.Busy(), p.Queued())
		}
	}
}

// TestPoolPanic tests that a panicking job does not kill its worker
func TestPoolPanic(t *testing.T) {
	p := newPool()
	p.start(1, 1, time.Minute)
	defer p.stop(time.Second)

	_ = p.Submit(func() { panic("job failure") })
	var ran atomic.Bool
	_ = p.Submit(func() { ran.Store(true) })
	waitFor(t, "job after panic", ran.Load)
	if p.Total() != 1 {
		t.Errorf("Expected 1 worker, got %d", p.Total())
	}
}

// TestPoolStop tests that stop drains queued jobs and rejects new ones
func TestPoolStop(t *testing.T) {
	p := newPool()
	p.start(1, 1, time.Minute)

	var count atomic.Int32
	for i := 0; i < 10; i++ {
		_ = p.Submit(func() {
			time.Sleep(time.Millisecond)
			count.Add(1)
		})
	}
	if !p.stop(time.Second) {
		t.Fatal("stop timed out")
	}
	if count.Load() != 10 {
		t.Errorf("Expected 10 jobs to run, got %d", count.Load())
	}
	if err := p.Submit(func() {}); err != ErrPoolClosed {
		t.Errorf("Expected ErrPoolClosed, got %v", err)
	}
	if p.Total() != 0 {
		t.Errorf("Expected no workers after stop, got %d", p.Total())
	}
}
