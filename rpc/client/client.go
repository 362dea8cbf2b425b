package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/binrpc/lib/compose"
	"github.com/ValentinKolb/binrpc/lib/tree"
	"github.com/ValentinKolb/binrpc/lib/util"
	"github.com/ValentinKolb/binrpc/rpc/common"
	"github.com/ValentinKolb/binrpc/rpc/discovery"
	"github.com/ValentinKolb/binrpc/rpc/serializer"
	"github.com/ValentinKolb/binrpc/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rpc/client")

const readBufferSize = 4096

// State is the call state of a client
type State uint32

const (
	Idle State = iota
	Connecting
	Sending
	AwaitingReply
	Decoding
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Connecting:
		return "Connecting"
	case Sending:
		return "Sending"
	case AwaitingReply:
		return "AwaitingReply"
	case Decoding:
		return "Decoding"
	default:
		return "Failed"
	}
}

// call is one outstanding call
type call struct {
	method   string
	conn     net.Conn
	parser   *serializer.Parser
	frame    []byte
	buf      []byte
	start    time.Time
	deadline time.Time

	done     chan struct{}
	err      error
	broken   atomic.Bool // the connection must not be reused
	canceled atomic.Bool
}

// RPCClient carries at most one outstanding call over a single connection.
// The connection is opened by the first call and reused until it breaks,
// times out or is closed.
type RPCClient struct {
	config    common.ClientConfig
	connector transport.IClientConnector
	opts      serializer.Options
	key       string
	metrics   *clientMetrics

	mu        sync.Mutex
	state     atomic.Uint32
	conn      net.Conn
	ser       *serializer.Serializer
	parser    *serializer.Parser
	readBuf   []byte
	frame     []byte
	resetNext bool
	call      *call
	registry  *discovery.Registry
}

// NewRPCClient creates a client. No connection is opened until the first call.
func NewRPCClient(config common.ClientConfig, connector transport.IClientConnector) *RPCClient {
	config.Normalize()
	return &RPCClient{
		config:    config,
		connector: connector,
		opts:      serializer.Options{MaxDepth: config.MaxDepth, MaxStringLength: config.MaxStringLength},
		key:       strconv.FormatUint(util.GenerateSeed(), 16),
		metrics:   newClientMetrics(),
	}
}

// State returns the current call state
func (c *RPCClient) State() State {
	return State(c.state.Load())
}

func (c *RPCClient) setState(s State) {
	c.state.Store(uint32(s))
}

// --------------------------------------------------------------------------
// Calls
// --------------------------------------------------------------------------

// BeginCall sends a request and returns without waiting for the reply. The
// reply is fixed up into result when EndCall completes, result may be nil.
// A second BeginCall before EndCall fails with common.ErrCallInProgress.
func (c *RPCClient) BeginCall(ctx context.Context, method string, result compose.IComposer, args ...compose.IDecomposer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.call != nil {
		return common.ErrCallInProgress
	}

	nodes := make([]*tree.Node, len(args))
	for i, a := range args {
		n, err := a.Decompose()
		if err != nil {
			return fmt.Errorf("%s: argument %d: %w", method, i+1, err)
		}
		nodes[i] = n
	}

	if c.conn == nil {
		if err := c.connect(ctx); err != nil {
			c.setState(Failed)
			c.metrics.failures.Mark(1)
			return err
		}
	}

	c.setState(Sending)
	frame := c.frame[:0]
	if c.resetNext {
		frame = c.ser.AppendReset(frame)
	}
	frame, err := c.ser.AppendRequest(frame, method, nodes...)
	if err != nil {
		// a pending reset stays pending
		c.setState(Idle)
		return err
	}
	c.resetNext = false
	c.frame = frame

	now := time.Now()
	cl := &call{
		method:   method,
		conn:     c.conn,
		parser:   c.parser,
		frame:    frame,
		buf:      c.readBuf,
		start:    now,
		deadline: now.Add(c.config.Timeout),
		done:     make(chan struct{}),
	}
	c.parser.ExpectReply(result)
	c.call = cl
	go c.exchange(cl)
	return nil
}

// EndCall waits for the reply of the outstanding call. It fails with
// common.ErrTimedOut once the configured timeout elapsed since BeginCall,
// the connection is closed then. If ctx is done first the call fails with
// common.ErrCanceled.
func (c *RPCClient) EndCall(ctx context.Context) error {
	c.mu.Lock()
	cl := c.call
	c.mu.Unlock()
	if cl == nil {
		return common.ErrNoCall
	}

	timer := time.NewTimer(time.Until(cl.deadline))
	defer timer.Stop()

	var err error
	select {
	case <-cl.done:
		err = cl.err
	case <-timer.C:
		err = fmt.Errorf("%s: %w after %s", cl.method, common.ErrTimedOut, c.config.Timeout)
		c.metrics.timeouts.Inc(1)
		c.abort(cl)
	case <-ctx.Done():
		cl.canceled.Store(true)
		err = fmt.Errorf("%w: %w", common.ErrCanceled, ctx.Err())
		c.abort(cl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.call = nil
	c.metrics.calls.UpdateSince(cl.start)

	if cl.broken.Load() {
		c.teardown(cl.conn)
		c.setState(Failed)
	} else {
		c.setState(Idle)
	}
	if err != nil {
		c.metrics.failures.Mark(1)
	}
	return err
}

// Call performs a complete call, see BeginCall and EndCall
func (c *RPCClient) Call(ctx context.Context, method string, result compose.IComposer, args ...compose.IDecomposer) error {
	if err := c.BeginCall(ctx, method, result, args...); err != nil {
		return err
	}
	return c.EndCall(ctx)
}

// CallNode calls method with raw trees and returns the raw reply
func (c *RPCClient) CallNode(ctx context.Context, method string, args ...*tree.Node) (*tree.Node, error) {
	decs := make([]compose.IDecomposer, len(args))
	for i, a := range args {
		decs[i] = compose.NodeDecomposer{Node: a}
	}
	var res compose.NodeComposer
	if err := c.Call(ctx, method, &res, decs...); err != nil {
		return nil, err
	}
	return res.Node, nil
}

// Cancel aborts the outstanding call. The connection is closed, EndCall
// returns common.ErrCanceled. The server is not notified.
func (c *RPCClient) Cancel() {
	c.mu.Lock()
	cl := c.call
	c.mu.Unlock()
	if cl == nil {
		return
	}
	cl.canceled.Store(true)
	c.abort(cl)
}

// ResetDictionary clears the request dictionary. The reset frame is sent
// with the next request.
func (c *RPCClient) ResetDictionary() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ser != nil {
		c.resetNext = true
	}
}

// Close cancels the outstanding call and closes the connection
func (c *RPCClient) Close() error {
	c.Cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardown(c.conn)
	c.setState(Idle)
	if c.registry != nil {
		err := c.registry.Close()
		c.registry = nil
		return err
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// connect opens a new connection with fresh codec state, c.mu must be held
func (c *RPCClient) connect(ctx context.Context) error {
	c.setState(Connecting)

	endpoint, err := c.endpoint(ctx)
	if err != nil {
		return fmt.Errorf("%w: resolving endpoint: %w", common.ErrConnectionClosed, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	conn, err := c.connector.Connect(dialCtx, endpoint)
	if err != nil {
		return fmt.Errorf("%w: connecting to %s: %w", common.ErrConnectionClosed, endpoint, err)
	}

	c.conn = conn
	c.ser = serializer.NewSerializer(c.opts)
	c.parser = serializer.NewParser(c.opts)
	c.readBuf = make([]byte, readBufferSize)
	c.resetNext = true
	c.metrics.connects.Inc(1)
	Logger.Debugf("connected to %s via %s", endpoint, c.connector.GetName())
	return nil
}

// endpoint returns the configured endpoint or resolves one through etcd
func (c *RPCClient) endpoint(ctx context.Context) (string, error) {
	if len(c.config.EtcdEndpoints) == 0 {
		return c.config.Endpoint, nil
	}
	if c.registry == nil {
		r, err := discovery.New(c.config.EtcdEndpoints)
		if err != nil {
			return "", err
		}
		c.registry = r
	}
	return c.registry.Resolve(ctx, c.config.ServiceName, c.key)
}

// teardown closes conn if it is still the current connection, c.mu must be held
func (c *RPCClient) teardown(conn net.Conn) {
	if conn == nil || c.conn != conn {
		return
	}
	_ = c.conn.Close()
	c.conn, c.ser, c.parser, c.readBuf = nil, nil, nil, nil
}

// abort closes the connection of cl and waits for its I/O goroutine
func (c *RPCClient) abort(cl *call) {
	cl.broken.Store(true)
	_ = cl.conn.Close()
	<-cl.done
}

// exchange writes the request and reads until the reply is complete
func (c *RPCClient) exchange(cl *call) {
	defer close(cl.done)

	if err := cl.conn.SetDeadline(cl.deadline); err != nil {
		cl.fail(err)
		return
	}
	if _, err := cl.conn.Write(cl.frame); err != nil {
		cl.fail(err)
		return
	}
	c.setState(AwaitingReply)

	for {
		n, err := cl.conn.Read(cl.buf)
		if n > 0 {
			c.setState(Decoding)
			used, status, perr := cl.parser.AdvanceBytes(cl.buf[:n])
			switch status {
			case serializer.Failed:
				cl.err = fmt.Errorf("%w: %w", common.ErrConnectionClosed, perr)
				cl.broken.Store(true)
				return
			case serializer.Done:
				if used < n {
					cl.err = fmt.Errorf("%w: %w: %d unexpected bytes after reply",
						common.ErrConnectionClosed, serializer.ErrProtocol, n-used)
					cl.broken.Store(true)
					return
				}
				cl.err = cl.parser.CallErr()
				return
			}
		}
		if err != nil {
			cl.fail(err)
			return
		}
	}
}

// fail records a transport error of the call
func (cl *call) fail(err error) {
	cl.broken.Store(true)
	var ne net.Error
	switch {
	case cl.canceled.Load():
		cl.err = common.ErrCanceled
	case errors.As(err, &ne) && ne.Timeout():
		cl.err = fmt.Errorf("%s: %w", cl.method, common.ErrTimedOut)
	default:
		cl.err = fmt.Errorf("%w: %w", common.ErrConnectionClosed, err)
	}
}
