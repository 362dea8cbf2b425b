package tcp

import (
	"context"
	"net"

	"github.com/ValentinKolb/binrpc/rpc/transport"
)

// clientConnector implements the IClientConnector interface for TCP sockets
type clientConnector struct {
	opts Options
}

// NewClientConnector creates a TCP client connector
func NewClientConnector(opts Options) transport.IClientConnector {
	return &clientConnector{opts: opts}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "tcp"
}

func (c *clientConnector) Connect(ctx context.Context, endpoint string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, err
	}
	if err := upgrade(conn, c.opts); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}
