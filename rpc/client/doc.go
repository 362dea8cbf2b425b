// Package client implements the calling side of binrpc.
//
// An RPCClient carries at most one outstanding call. BeginCall encodes the
// request and hands it to an I/O goroutine, EndCall waits for the reply or
// the timeout. A second BeginCall before EndCall fails immediately with
// common.ErrCallInProgress; calls are never multiplexed on one connection.
//
// Call states:
//
//	Idle -> Connecting -> Sending -> AwaitingReply -> Decoding -> Idle
//	                                                           -> Failed
//
// A timed out, canceled or broken call closes the connection. The next call
// opens a new one, and every new connection starts with a dictionary reset
// frame so no codec state survives.
//
// Key Components:
//
//   - RPCClient: the call state machine. Faults arrive as *common.RemoteError,
//     a MethodNotFound fault matches common.ErrMethodNotFound.
//
//   - RemoteProcedure and Invoke: typed helpers using the lib/compose registry.
//
//   - Metrics: a go-metrics registry with call timer and failure meter.
//
// Usage Example:
//
//	c := client.NewRPCClient(common.DefaultClientConfig(), tcp.NewClientConnector(tcp.DefaultOptions()))
//	defer c.Close()
//
//	sum, err := client.Invoke[int64](ctx, c, "add", 1, 2)
//
// Thread Safety:
//
//	All methods are safe for concurrent use, but only one call can be
//	outstanding at a time. Use one client per goroutine for parallel calls.
package client
