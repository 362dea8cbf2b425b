package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ValentinKolb/binrpc/rpc/common"
	"github.com/ValentinKolb/binrpc/rpc/discovery"
	"github.com/ValentinKolb/binrpc/rpc/service"
	"github.com/ValentinKolb/binrpc/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"
)

var Logger = logger.GetLogger("rpc/server")

var (
	// ErrNotListening is returned by Serve if Listen was not called
	ErrNotListening = errors.New("server is not listening")
	// ErrRunning is returned by Listen if the server already runs
	ErrRunning = errors.New("server is already running")
)

// RPCServer accepts connections and answers the calls of its registry.
type RPCServer struct {
	config    common.ServerConfig
	registry  *service.Registry
	connector transport.IServerConnector

	mode     atomic.Int32
	listener net.Listener
	reactor  transport.IReactor
	pool     *pool
	conns    *xsync.MapOf[uint64, *connection]
	nextID   atomic.Uint64
	waiting  *xsync.Counter // accepted connections waiting for a worker
	limiter  *rate.Limiter
	metrics  *serverMetrics

	eventsMu  sync.RWMutex
	callbacks []func(Event)

	ctx       context.Context
	cancel    context.CancelFunc
	serveDone chan struct{}
	stopOnce  sync.Once
}

// NewRPCServer creates a new RPC server for the procedures of registry.
//
// Usage:
//
//	registry := service.NewRegistry()
//	_ = service.Register1(registry, "echo", func(_ context.Context, s string) (string, error) {
//		return s, nil
//	})
//
//	s := server.NewRPCServer(config, registry, tcp.NewServerConnector(tcp.DefaultOptions()))
//	if err := s.Listen(config.Endpoint, config.Backlog); err != nil {
//		panic(err)
//	}
//	if err := s.Serve(ctx); err != nil {
//		panic(err)
//	}
func NewRPCServer(config common.ServerConfig, registry *service.Registry, connector transport.IServerConnector) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	config.Normalize()
	ctx, cancel := context.WithCancel(context.Background())

	s := &RPCServer{
		config:    config,
		registry:  registry,
		connector: connector,
		reactor:   transport.NewReactor(0),
		pool:      newPool(),
		conns:     xsync.NewMapOf[uint64, *connection](),
		waiting:   xsync.NewCounter(),
		ctx:       ctx,
		cancel:    cancel,
		serveDone: make(chan struct{}),
	}
	s.metrics = newServerMetrics(s)
	if config.AcceptRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(config.AcceptRate), config.AcceptBurst)
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())
	return s
}

// --------------------------------------------------------------------------
// Configuration (effective when Serve starts)
// --------------------------------------------------------------------------

// MinThreads sets the number of permanent workers
func (s *RPCServer) MinThreads(n int) *RPCServer {
	s.config.MinThreads = n
	s.config.Normalize()
	return s
}

// MaxThreads sets the upper bound of workers
func (s *RPCServer) MaxThreads(n int) *RPCServer {
	s.config.MaxThreads = n
	s.config.Normalize()
	return s
}

// IdleTimeout sets how long a connection may be silent before it is parked
// on the reactor
func (s *RPCServer) IdleTimeout(d time.Duration) *RPCServer {
	s.config.IdleTimeout = d
	s.config.Normalize()
	return s
}

// Runmode returns the current lifecycle state
func (s *RPCServer) Runmode() Runmode {
	return Runmode(s.mode.Load())
}

func (s *RPCServer) setRunmode(m Runmode, err error) {
	if Runmode(s.mode.Swap(int32(m))) == m {
		return
	}
	Logger.Infof("runmode %s", m)
	s.emit(Event{Kind: EventRunmode, Runmode: m, Err: err})
}

// Addr returns the address of the listener, or nil before Listen
func (s *RPCServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Listen opens the listener. backlog bounds the number of accepted
// connections waiting for a worker, further connections are closed right
// away. The registry is sealed.
func (s *RPCServer) Listen(endpoint string, backlog int) error {
	switch s.Runmode() {
	case Stopped, Failed:
	default:
		return ErrRunning
	}
	s.setRunmode(Starting, nil)

	if backlog > 0 {
		s.config.Backlog = backlog
	}
	s.config.Endpoint = endpoint

	listener, err := s.connector.Listen(endpoint)
	if err != nil {
		s.setRunmode(Failed, err)
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.listener = listener
	s.registry.Seal()
	return nil
}

// Serve accepts connections until Shutdown is called or ctx is done.
// It returns nil after a regular shutdown.
func (s *RPCServer) Serve(ctx context.Context) error {
	if s.Runmode() != Starting || s.listener == nil {
		return ErrNotListening
	}
	defer close(s.serveDone)

	stop := context.AfterFunc(ctx, func() {
		if err := s.Shutdown(s.config.WriteTimeout); err != nil {
			Logger.Warningf("shutdown: %v", err)
		}
	})
	defer stop()

	s.pool.start(s.config.MinThreads, s.config.MaxThreads, s.config.IdleTimeout*10)
	s.setRunmode(Running, nil)

	Logger.Infof("Starting %s server on %s with %d-%d workers, procedures %v",
		s.connector.GetName(), s.listener.Addr(), s.config.MinThreads, s.config.MaxThreads, s.registry.Names())

	if s.config.MetricsEndpoint != "" {
		defer s.serveMetrics(s.config.MetricsEndpoint)()
	}
	if len(s.config.EtcdEndpoints) > 0 {
		if withdraw, err := s.announce(); err != nil {
			Logger.Warningf("service discovery disabled: %v", err)
		} else {
			defer withdraw()
		}
	}

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.Runmode() == Terminating {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			Logger.Errorf("Accept error: %v", err)
			s.fail(err)
			return err
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(s.ctx); err != nil {
				_ = conn.Close()
				continue
			}
		}
		s.accept(conn)
	}
}

// Shutdown stops accepting connections, waits up to timeout for outstanding
// calls and closes all connections.
func (s *RPCServer) Shutdown(timeout time.Duration) error {
	var err error
	s.stopOnce.Do(func() {
		err = s.shutdown(timeout)
	})
	return err
}

func (s *RPCServer) shutdown(timeout time.Duration) error {
	wasServing := s.Runmode() == Running
	s.setRunmode(Terminating, nil)
	deadline := time.Now().Add(timeout)

	if s.listener != nil {
		_ = s.listener.Close()
	}
	if wasServing {
		<-s.serveDone
	}

	// let outstanding calls finish, then close
	var pending []*connection
	s.conns.Range(func(_ uint64, c *connection) bool {
		pending = append(pending, c)
		return true
	})
	timedOut := false
	for _, c := range pending {
		if !c.calls.wait(time.Until(deadline)) {
			timedOut = true
		}
		c.close(nil)
	}

	s.reactor.Close()
	if !s.pool.stop(max(time.Until(deadline), 0)) {
		timedOut = true
	}
	s.cancel()

	s.setRunmode(Stopped, nil)
	if timedOut {
		return fmt.Errorf("shutdown timed out after %s with calls in flight", timeout)
	}
	Logger.Infof("server stopped")
	return nil
}

func (s *RPCServer) fail(err error) {
	s.setRunmode(Failed, err)
	s.stopOnce.Do(func() {
		s.conns.Range(func(_ uint64, c *connection) bool {
			c.close(err)
			return true
		})
		s.reactor.Close()
		s.pool.stop(s.config.WriteTimeout)
		s.cancel()
	})
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *RPCServer) accept(conn net.Conn) {
	if err := s.connector.UpgradeConnection(conn); err != nil {
		Logger.Warningf("failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
	}
	if s.waiting.Value() >= int64(s.config.Backlog) {
		Logger.Warningf("backlog of %d full, rejecting %s", s.config.Backlog, conn.RemoteAddr())
		s.metrics.rejected.Inc()
		_ = conn.Close()
		return
	}

	c := newConnection(s, conn, s.nextID.Add(1))
	s.conns.Store(c.id, c)
	s.metrics.accepted.Inc()
	s.emit(Event{Kind: EventConnected, ConnID: c.id, Remote: c.remote})

	s.waiting.Inc()
	if err := s.pool.Submit(func() {
		s.waiting.Dec()
		c.serve(nil, nil)
	}); err != nil {
		s.waiting.Dec()
		c.close(err)
	}
}

// announce publishes the server in etcd and returns the function that
// withdraws it again
func (s *RPCServer) announce() (func(), error) {
	d, err := discovery.New(s.config.EtcdEndpoints)
	if err != nil {
		return nil, err
	}
	inst := discovery.Instance{
		Addr:      s.listener.Addr().String(),
		Transport: s.connector.GetName(),
		Methods:   s.registry.Names(),
	}
	a, err := d.Announce(s.ctx, s.config.ServiceName, inst, s.config.DiscoveryTTL)
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	return func() {
		if err := a.Close(); err != nil {
			Logger.Warningf("failed to withdraw announcement: %v", err)
		}
		_ = d.Close()
	}, nil
}
