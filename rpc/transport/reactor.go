package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/binrpc/lib/util"
	"github.com/puzpuzpuz/xsync/v3"
)

const defaultChunkSize = 16 * 1024 // 16 KB

// watch is one registration of a connection
type watch struct {
	conn     net.Conn
	fn       ReadableFunc
	canceled atomic.Bool
}

// readiness is posted by a waiter when its connection became readable
type readiness struct {
	w     *watch
	chunk []byte
	err   error
}

// Reactor implements IReactor on top of the Go netpoller.
//
// Every watched connection gets a small waiter goroutine parked in a blocking
// Read. Parked goroutines do not hold an OS thread, the runtime wakes them
// through epoll/kqueue. The waiter posts the first chunk into a lock-free
// MPSC queue, and a single loop goroutine runs the callbacks in arrival order.
type Reactor struct {
	chunkSize int
	watches   *xsync.MapOf[net.Conn, *watch]
	events    *util.LockFreeMPSC[readiness]
	waiters   sync.WaitGroup
	regMu     sync.Mutex // orders waiters.Add before Close waits
	closed    atomic.Bool
	closeOnce sync.Once
	loopDone  chan struct{}
}

// NewReactor creates a reactor and starts its loop. chunkSize is the size
// of the buffer a waiter reads into, 0 selects 16 KB.
func NewReactor(chunkSize int) *Reactor {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	r := &Reactor{
		chunkSize: chunkSize,
		watches:   xsync.NewMapOf[net.Conn, *watch](),
		events:    util.NewLockFreeMPSC[readiness](),
		loopDone:  make(chan struct{}),
	}
	go r.loop()
	return r
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IReactor)
// --------------------------------------------------------------------------

func (r *Reactor) Register(conn net.Conn, fn ReadableFunc) error {
	r.regMu.Lock()
	defer r.regMu.Unlock()
	if r.closed.Load() {
		return ErrReactorClosed
	}
	w := &watch{conn: conn, fn: fn}
	if _, loaded := r.watches.LoadOrStore(conn, w); loaded {
		return ErrAlreadyRegistered
	}

	// a previous idle timeout may have left a deadline behind
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		r.watches.Delete(conn)
		return err
	}

	r.waiters.Add(1)
	go r.wait(w)
	return nil
}

func (r *Reactor) Deregister(conn net.Conn) bool {
	w, ok := r.watches.LoadAndDelete(conn)
	if !ok {
		return false
	}
	w.canceled.Store(true)
	// wake the waiter, the read fails with a timeout
	_ = conn.SetReadDeadline(time.Now())
	return true
}

func (r *Reactor) Len() int {
	return r.watches.Size()
}

func (r *Reactor) Close() {
	r.closeOnce.Do(func() {
		r.regMu.Lock()
		r.closed.Store(true)
		r.regMu.Unlock()
		r.watches.Range(func(conn net.Conn, _ *watch) bool {
			r.Deregister(conn)
			return true
		})
		r.waiters.Wait()
		r.events.Close()
		<-r.loopDone
		Logger.Debugf("reactor closed")
	})
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// wait blocks in Read until the connection has data, fails or is canceled
func (r *Reactor) wait(w *watch) {
	defer r.waiters.Done()

	buf := make([]byte, r.chunkSize)
	n, err := w.conn.Read(buf)
	if w.canceled.Load() {
		if n > 0 {
			Logger.Debugf("dropping %d bytes of deregistered connection %s", n, w.conn.RemoteAddr())
		}
		return
	}
	r.events.Push(&readiness{w: w, chunk: buf[:n], err: err})
}

// loop runs the callbacks, one at a time
func (r *Reactor) loop() {
	defer close(r.loopDone)

	for ev := range r.events.Recv() {
		w := ev.w
		// the watch is done unless it was replaced or deregistered meanwhile
		r.watches.Compute(w.conn, func(cur *watch, loaded bool) (*watch, bool) {
			return cur, !loaded || cur == w
		})
		if w.canceled.Load() {
			continue
		}
		r.dispatch(w, ev.chunk, ev.err)
	}
}

func (r *Reactor) dispatch(w *watch, chunk []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			Logger.Errorf("reactor callback for %s panicked: %v", w.conn.RemoteAddr(), rec)
		}
	}()
	w.fn(w.conn, chunk, err)
}
