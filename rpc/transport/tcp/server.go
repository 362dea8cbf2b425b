package tcp

import (
	"fmt"
	"net"
	"time"

	"github.com/ValentinKolb/binrpc/rpc/transport"
)

// Options holds the socket settings applied to every TCP connection
type Options struct {
	NoDelay         bool          // disable Nagle's algorithm
	KeepAlive       time.Duration // keep-alive period, 0 disables keep-alive
	ReadBufferSize  int           // socket receive buffer, 0 keeps the OS default
	WriteBufferSize int           // socket send buffer, 0 keeps the OS default
	Linger          int           // SO_LINGER in seconds, negative keeps the OS default
}

// DefaultOptions returns the settings used by the CLI
func DefaultOptions() Options {
	return Options{
		NoDelay:         true,
		KeepAlive:       30 * time.Second,
		ReadBufferSize:  defaultBufferSize,
		WriteBufferSize: defaultBufferSize,
		Linger:          -1,
	}
}

const (
	defaultBufferSize = 512 * 1024 // 512 KB
)

// serverConnector implements the IServerConnector interface for TCP sockets
type serverConnector struct {
	opts Options
}

// NewServerConnector creates a TCP server connector
func NewServerConnector(opts Options) transport.IServerConnector {
	return &serverConnector{opts: opts}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "tcp"
}

func (c *serverConnector) Listen(endpoint string) (net.Listener, error) {
	listener, err := net.Listen("tcp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create TCP socket: %w", err)
	}
	return listener, nil
}

func (c *serverConnector) UpgradeConnection(conn net.Conn) error {
	return upgrade(conn, c.opts)
}

// upgrade applies the socket options to a TCP connection
func upgrade(conn net.Conn, opts Options) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil // Not a TCP connection, nothing to upgrade
	}

	if err := tcpConn.SetNoDelay(opts.NoDelay); err != nil {
		return err
	}

	if opts.WriteBufferSize > 0 {
		if err := tcpConn.SetWriteBuffer(opts.WriteBufferSize); err != nil {
			return err
		}
	}

	if opts.ReadBufferSize > 0 {
		if err := tcpConn.SetReadBuffer(opts.ReadBufferSize); err != nil {
			return err
		}
	}

	if opts.KeepAlive > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}
		if err := tcpConn.SetKeepAlivePeriod(opts.KeepAlive); err != nil {
			return err
		}
	}

	if opts.Linger >= 0 {
		if err := tcpConn.SetLinger(opts.Linger); err != nil {
			return err
		}
	}

	return nil
}
