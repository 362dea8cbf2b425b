// Package server implements the serving side of binrpc: a listener, one
// connection state machine per client and a bounded worker pool that runs
// the procedures of a service.Registry.
//
// The package focuses on:
//   - Pipelined requests with replies sent strictly in request order
//   - Bounded threads: connections without traffic give up their worker
//   - A runmode lifecycle with event callbacks for observers
//
// Key Components:
//
//   - RPCServer: owns the listener, the reactor and the pool. Listen opens the
//     endpoint, Serve accepts until Shutdown or context cancellation.
//
//   - connection: reads frames on a worker, dispatches every completed request
//     to an idle worker (or runs it inline when the pool is saturated or the
//     procedure is registered with service.Inline) and keeps the reply queue.
//     After IdleTimeout without traffic the connection is parked on the
//     transport reactor and its worker returns to the pool. The next readable
//     event schedules it on a worker again.
//
//   - replyQueue: completed calls keyed by sequence number. Replies are encoded
//     only when they are next in line, so the dictionary codes on the wire
//     match the order the client decodes them in.
//
//   - pool: minThreads permanent workers, up to maxThreads in total.
//
// Runmodes:
//
//	Stopped -> Starting -> Running -> Terminating -> Stopped
//	              |           |
//	              +-> Failed <+
//
// Usage Example:
//
//	registry := service.NewRegistry()
//	_ = service.Register2(registry, "add", func(_ context.Context, a, b int64) (int64, error) {
//	  return a + b, nil
//	})
//
//	s := server.NewRPCServer(common.DefaultServerConfig(), registry,
//	  tcp.NewServerConnector(tcp.DefaultOptions())).MinThreads(2).MaxThreads(16)
//	if err := s.Listen("0.0.0.0:8080", 64); err != nil {
//	  log.Fatalf("Listen failed: %v", err)
//	}
//	if err := s.Serve(ctx); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Thread Safety:
//
//	RPCServer methods are safe for concurrent use. Procedures run
//	concurrently, even calls of the same connection, and must synchronize
//	shared state themselves.
package server
