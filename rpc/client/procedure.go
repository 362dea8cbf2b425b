package client

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/binrpc/lib/compose"
)

// RemoteProcedure is a typed handle for a remote method with result type R.
//
// Usage:
//
//	echo, _ := client.NewRemoteProcedure[string](c, "echo")
//	reply, err := echo.Call(ctx, "hi")
type RemoteProcedure[R any] struct {
	client *RPCClient
	method string
	conv   compose.Converter[R]
}

// NewRemoteProcedure creates a handle for method. It fails if no converter is
// registered for R.
func NewRemoteProcedure[R any](c *RPCClient, method string) (*RemoteProcedure[R], error) {
	conv, err := compose.MustLookup[R]()
	if err != nil {
		return nil, fmt.Errorf("%s: result: %w", method, err)
	}
	return &RemoteProcedure[R]{client: c, method: method, conv: conv}, nil
}

// Method returns the remote method name
func (p *RemoteProcedure[R]) Method() string { return p.method }

// Call invokes the method. Arguments are converted with compose.Any.
func (p *RemoteProcedure[R]) Call(ctx context.Context, args ...any) (R, error) {
	return invoke(ctx, p.client, p.method, p.conv, args)
}

// Invoke calls method with any number of arguments and converts the reply to R
func Invoke[R any](ctx context.Context, c *RPCClient, method string, args ...any) (R, error) {
	conv, err := compose.MustLookup[R]()
	if err != nil {
		var zero R
		return zero, fmt.Errorf("%s: result: %w", method, err)
	}
	return invoke(ctx, c, method, conv, args)
}

func invoke[R any](ctx context.Context, c *RPCClient, method string, conv compose.Converter[R], args []any) (R, error) {
	decs := make([]compose.IDecomposer, len(args))
	for i, a := range args {
		decs[i] = compose.Decomposer(compose.Any, a)
	}
	var r R
	err := c.Call(ctx, method, compose.Composer(conv, &r), decs...)
	return r, err
}
