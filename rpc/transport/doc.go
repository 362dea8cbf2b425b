// Package transport defines the contracts between the RPC core and the
// network. The server and client only see net.Conn values, everything
// protocol specific lives behind the connector interfaces.
//
// Key Components:
//
//   - IServerConnector/IClientConnector: listen, dial and tune connections.
//     Implemented by the tcp and unix subpackages.
//
//   - IReactor: watches idle connections and reports when they become
//     readable. The server parks connections on the reactor after its idle
//     timeout so they stop occupying a worker.
//
//   - Reactor: the netpoller backed implementation. One waiter goroutine per
//     watched connection blocks in Read, which the runtime parks without an
//     OS thread. Readiness is posted into a lock-free MPSC queue and a single
//     loop goroutine runs the callbacks serially.
//
//   - WriteFrames: vectored write of several frames with net.Buffers.
//
// Thread Safety:
//
//	All Reactor methods are safe for concurrent use. Close must not be
//	called from inside a callback.
package transport
