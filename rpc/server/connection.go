package server

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/binrpc/lib/compose"
	"github.com/ValentinKolb/binrpc/rpc/serializer"
	"github.com/ValentinKolb/binrpc/rpc/service"
)

const readBufferSize = 16 * 1024 // 16 KB

// connection is the responder of one accepted connection.
//
// The read side (parser, current procedure, sequence counter) is only used by
// the goroutine that currently owns the connection: a pool worker while the
// connection is active, or the reactor waiter while it is parked. Ownership
// passes through the one-shot reactor registration, so it is never shared.
type connection struct {
	s      *RPCServer
	conn   net.Conn
	id     uint64
	remote string

	parser     *serializer.Parser
	buf        []byte
	seq        uint64
	frameBytes int
	cur        service.IProcedure
	curEntry   *service.Entry

	replies *replyQueue
	calls   *callCounter

	state     atomic.Uint32
	parked    atomic.Bool
	closeOnce sync.Once
}

func newConnection(s *RPCServer, conn net.Conn, id uint64) *connection {
	opts := serializer.Options{MaxDepth: s.config.MaxDepth, MaxStringLength: s.config.MaxStringLength}
	c := &connection{
		s:      s,
		conn:   conn,
		id:     id,
		remote: conn.RemoteAddr().String(),
		parser: serializer.NewParser(opts),
		buf:    make([]byte, readBufferSize),
		calls:  newCallCounter(),
	}
	c.replies = newReplyQueue(c, opts)
	c.parser.ExpectRequest(c)
	return c
}

// State returns the responder state
func (c *connection) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *connection) setState(st ConnState) {
	if c.State() != StateClosed {
		c.state.Store(uint32(st))
	}
}

// BeginCall resolves the method of a request frame, see serializer.ICallHandler
func (c *connection) BeginCall(method string) (compose.IComposers, error) {
	c.setState(StateParsingParams)
	entry, err := c.s.registry.Lookup(method)
	if err != nil {
		return nil, err
	}
	p := entry.New()
	cs, err := p.BeginCall(method)
	if err != nil {
		return nil, err
	}
	c.cur, c.curEntry = p, entry
	return cs, nil
}

// --------------------------------------------------------------------------
// Read side
// --------------------------------------------------------------------------

// serve processes the connection until it is closed or idle for the idle
// timeout. chunk and readErr carry what the reactor read while the
// connection was parked.
func (c *connection) serve(chunk []byte, readErr error) {
	if len(chunk) > 0 && !c.feed(chunk) {
		return
	}
	if readErr != nil {
		c.readFailed(readErr)
		return
	}

	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.s.config.IdleTimeout)); err != nil {
			c.close(err)
			return
		}
		n, err := c.conn.Read(c.buf)
		if n > 0 && !c.feed(c.buf[:n]) {
			return
		}
		if err == nil {
			continue
		}

		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			if n == 0 {
				c.park()
				return
			}
			continue
		}
		c.readFailed(err)
		return
	}
}

// feed pushes bytes into the parser and dispatches every completed request
func (c *connection) feed(data []byte) bool {
	for len(data) > 0 {
		n, status, err := c.parser.AdvanceBytes(data)
		data = data[n:]
		c.frameBytes += n

		switch status {
		case serializer.Failed:
			c.s.metrics.protocolErrors.Inc()
			Logger.Warningf("protocol error on connection %d (%s): %v", c.id, c.remote, err)
			c.close(err)
			return false
		case serializer.Done:
			c.s.metrics.requestSizes.AddSample(c.frameBytes)
			c.frameBytes = 0
			c.dispatch()
			c.parser.ExpectRequest(c)
		case serializer.NeedMore:
			if c.parser.InFrame() {
				c.setState(StateParsingParams)
			}
		}
	}
	return true
}

// dispatch runs the procedure of the request the parser just completed
func (c *connection) dispatch() {
	seq := c.seq
	c.seq++
	p, entry, callErr := c.cur, c.curEntry, c.parser.CallErr()
	c.cur, c.curEntry = nil, nil

	c.s.metrics.calls.Inc()
	c.calls.add()
	c.setState(StateDispatching)

	if callErr != nil {
		Logger.Debugf("call %s on connection %d failed before dispatch: %v", c.parser.Method(), c.id, callErr)
		c.complete(seq, reply{err: callErr})
		return
	}

	task := func() {
		start := time.Now()
		result, err := service.Invoke(c.s.ctx, p)
		c.s.metrics.observeDispatch(start)
		c.complete(seq, reply{result: result, err: err})
	}
	if entry.Inline || !c.s.pool.TrySubmit(task) {
		task()
	}
	c.setState(StateWaitFrame)
}

func (c *connection) complete(seq uint64, r reply) {
	defer c.calls.done()
	c.replies.complete(seq, r)
}

// --------------------------------------------------------------------------
// Idle migration
// --------------------------------------------------------------------------

// park hands the idle connection to the reactor and frees the worker
func (c *connection) park() {
	c.parked.Store(true)
	if err := c.s.reactor.Register(c.conn, c.resume); err != nil {
		c.parked.Store(false)
		c.close(err)
		return
	}
	c.s.metrics.idle.Inc()
	Logger.Debugf("connection %d (%s) parked", c.id, c.remote)
	c.s.emit(Event{Kind: EventIdle, ConnID: c.id, Remote: c.remote})
}

// resume is the reactor callback of a parked connection
func (c *connection) resume(_ net.Conn, chunk []byte, err error) {
	c.parked.Store(false)
	c.s.emit(Event{Kind: EventResumed, ConnID: c.id, Remote: c.remote})
	if serr := c.s.pool.Submit(func() { c.serve(chunk, err) }); serr != nil {
		c.close(serr)
	}
}

// --------------------------------------------------------------------------
// Closing
// --------------------------------------------------------------------------

// readFailed handles the end of the read side. A client closing its side
// still gets the replies of its outstanding calls.
func (c *connection) readFailed(err error) {
	if errors.Is(err, io.EOF) {
		<-c.calls.drained()
		c.close(nil)
		return
	}
	c.close(err)
}

// close closes the connection and discards all replies not written yet
func (c *connection) close(err error) {
	c.closeOnce.Do(func() {
		c.state.Store(uint32(StateClosed))
		c.replies.discard()
		if c.parked.Load() {
			c.s.reactor.Deregister(c.conn)
		}
		_ = c.conn.Close()
		c.s.conns.Delete(c.id)

		if err != nil {
			Logger.Infof("connection %d (%s) closed: %v", c.id, c.remote, err)
		} else {
			Logger.Debugf("connection %d (%s) closed by client", c.id, c.remote)
		}
		c.s.emit(Event{Kind: EventClosed, ConnID: c.id, Remote: c.remote, Err: err})
	})
}

// --------------------------------------------------------------------------
// In-flight calls
// --------------------------------------------------------------------------

// callCounter counts the dispatched calls of a connection whose reply was not
// queued yet. Calls may be added while another goroutine waits for them.
type callCounter struct {
	mu     sync.Mutex
	n      int
	zeroCh chan struct{} // closed while n is 0
}

func newCallCounter() *callCounter {
	ch := make(chan struct{})
	close(ch)
	return &callCounter{zeroCh: ch}
}

func (cc *callCounter) add() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.n == 0 {
		cc.zeroCh = make(chan struct{})
	}
	cc.n++
}

func (cc *callCounter) done() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.n--
	if cc.n == 0 {
		close(cc.zeroCh)
	}
}

// drained returns a channel that is closed once no call is outstanding
func (cc *callCounter) drained() <-chan struct{} {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.zeroCh
}

// wait waits for drained and reports false if the timeout elapsed first
func (cc *callCounter) wait(timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-cc.drained():
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-cc.drained():
		return true
	case <-timer.C:
		return false
	}
}
