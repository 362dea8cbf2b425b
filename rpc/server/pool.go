package server

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/binrpc/lib/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// ErrPoolClosed is returned when submitting to a stopped pool
var ErrPoolClosed = errors.New("worker pool closed")

// job is a unit of work executed by a pool worker
type job func()

// pool is a bounded worker pool.
//
// minThreads workers live as long as the pool, up to maxThreads more are
// started when work arrives and no worker is idle. Surplus workers exit after
// being idle for surplusIdle. The job queue is a lock-free MPSC queue whose
// output channel is shared by all workers, so submitting never blocks.
type pool struct {
	minThreads  int
	maxThreads  int
	surplusIdle time.Duration

	queue *util.LockFreeMPSC[job]

	growMu sync.Mutex // serializes submissions with worker start and exit
	busy   *xsync.Counter
	total  *xsync.Counter
	queued *xsync.Counter

	wg     sync.WaitGroup
	closed atomic.Bool
}

func newPool() *pool {
	return &pool{
		queue:  util.NewLockFreeMPSC[job](),
		busy:   xsync.NewCounter(),
		total:  xsync.NewCounter(),
		queued: xsync.NewCounter(),
	}
}

// start launches the permanent workers
func (p *pool) start(minThreads, maxThreads int, surplusIdle time.Duration) {
	p.minThreads, p.maxThreads, p.surplusIdle = minThreads, maxThreads, surplusIdle

	p.growMu.Lock()
	defer p.growMu.Unlock()
	for i := 0; i < minThreads; i++ {
		p.spawn(nil)
	}
}

// TrySubmit hands j to an idle worker or to a newly started one. It returns
// false if all maxThreads workers are busy, the caller is expected to run the
// job itself then.
func (p *pool) TrySubmit(j job) bool {
	p.growMu.Lock()
	defer p.growMu.Unlock()
	return p.trySubmit(j)
}

// Submit queues j. The job runs as soon as a worker is free.
func (p *pool) Submit(j job) error {
	p.growMu.Lock()
	defer p.growMu.Unlock()
	if p.trySubmit(j) || p.enqueue(j) {
		return nil
	}
	return ErrPoolClosed
}

// stop closes the queue and waits until the workers drained it or the
// timeout elapsed. It reports whether all workers exited.
func (p *pool) stop(timeout time.Duration) bool {
	p.growMu.Lock()
	p.closed.Store(true)
	p.growMu.Unlock()
	p.queue.Close()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Busy returns the number of workers running a job
func (p *pool) Busy() int64 { return p.busy.Value() }

// Total returns the number of live workers
func (p *pool) Total() int64 { return p.total.Value() }

// Queued returns the number of jobs waiting for a worker
func (p *pool) Queued() int64 { return p.queued.Value() }

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// trySubmit uses an idle worker or starts one, growMu must be held. A job is
// only queued for an idle worker while no worker can retire.
func (p *pool) trySubmit(j job) bool {
	if p.closed.Load() {
		return false
	}
	if p.total.Value()-p.busy.Value()-p.queued.Value() > 0 {
		return p.enqueue(j)
	}
	if int(p.total.Value()) < p.maxThreads {
		p.spawn(j)
		return true
	}
	return false
}

func (p *pool) enqueue(j job) bool {
	p.queued.Inc()
	if !p.queue.Push(&j) {
		p.queued.Dec()
		return false
	}
	return true
}

// spawn starts a worker, growMu must be held. A worker started with a job
// counts as busy right away.
func (p *pool) spawn(first job) {
	p.total.Inc()
	if first != nil {
		p.busy.Inc()
	}
	p.wg.Add(1)
	go p.worker(first)
}

func (p *pool) worker(first job) {
	defer p.wg.Done()

	if first != nil {
		p.run(first)
	}

	idle := time.NewTimer(p.surplusIdle)
	defer idle.Stop()

	for {
		select {
		case j, ok := <-p.queue.Recv():
			if !ok {
				p.total.Dec()
				return
			}
			p.busy.Inc()
			p.queued.Dec()
			p.run(*j)

		case <-idle.C:
			if p.retire() {
				return
			}
		}
		idle.Reset(p.surplusIdle)
	}
}

// retire lets an idle worker exit if there are more than minThreads and no
// job is waiting for a worker
func (p *pool) retire() bool {
	p.growMu.Lock()
	defer p.growMu.Unlock()
	if int(p.total.Value()) <= p.minThreads || p.queued.Value() > 0 {
		return false
	}
	p.total.Dec()
	return true
}

// run executes j, the caller already counted the worker as busy
func (p *pool) run(j job) {
	defer p.busy.Dec()
	defer func() {
		if r := recover(); r != nil {
			Logger.Errorf("worker job panicked: %v", r)
		}
	}()
	j()
}
