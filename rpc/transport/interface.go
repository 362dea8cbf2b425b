package transport

import (
	"context"
	"errors"
	"net"

	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/rpc")

var (
	// ErrReactorClosed is returned when registering with a closed reactor
	ErrReactorClosed = errors.New("reactor closed")
	// ErrAlreadyRegistered is returned when a connection is registered twice
	ErrAlreadyRegistered = errors.New("connection already registered")
)

// --------------------------------------------------------------------------
// Connectors
// --------------------------------------------------------------------------

// IServerConnector defines the transport specific server operations
type IServerConnector interface {
	// Listen creates a listener for the given endpoint
	Listen(endpoint string) (net.Listener, error)

	// UpgradeConnection applies protocol specific settings to an accepted connection
	UpgradeConnection(conn net.Conn) error

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}

// IClientConnector defines the transport specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to endpoint
	Connect(ctx context.Context, endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}

// --------------------------------------------------------------------------
// Reactor
// --------------------------------------------------------------------------

// ReadableFunc is called by a reactor once a registered connection became
// readable. chunk holds the bytes that were read (it may be empty), err is
// the read error if any. The chunk is owned by the callee.
type ReadableFunc func(conn net.Conn, chunk []byte, err error)

// IReactor watches idle connections for readability.
//
// A registration is one-shot: after the callback ran, the connection is no
// longer watched and must be registered again. Callbacks are run one at a
// time on the reactor's own goroutine and must not block.
type IReactor interface {
	// Register starts watching conn. The connection must not be read by
	// anybody else until the callback ran or Deregister returned.
	Register(conn net.Conn, fn ReadableFunc) error

	// Deregister stops watching conn and reports whether it was registered.
	// Bytes that arrive while a deregistration is in progress are dropped,
	// so it is meant for connections that are about to be closed.
	Deregister(conn net.Conn) bool

	// Len returns the number of watched connections
	Len() int

	// Close deregisters all connections and stops the reactor
	Close()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// WriteFrames writes all frames to conn, combining them into a single
// vectored write where the platform supports it.
func WriteFrames(conn net.Conn, frames ...[]byte) (int64, error) {
	if len(frames) == 1 {
		n, err := conn.Write(frames[0])
		return int64(n), err
	}
	// WriteTo consumes the slice it is called on, keep the caller's intact
	b := make(net.Buffers, len(frames))
	copy(b, frames)
	return b.WriteTo(conn)
}
