// Package common provides the types shared by every part of binrpc: the
// error taxonomy, the fault codes carried on the wire, server and client
// configuration, and the logger setup.
//
// The package focuses on:
//   - Sentinel errors and the RemoteError type for faults raised by the peer
//   - Configuration structures for client and server components
//   - Custom logging implementation integrated with Dragonboat's logger facade
//
// Key Components:
//
//   - RemoteError: a fault with a FaultCode and a message. A fault with code
//     FaultMethodNotFound matches ErrMethodNotFound under errors.Is, so callers
//     can treat local and remote lookup failures alike.
//
//   - ServerConfig: listen endpoint, backlog, worker pool bounds, idle
//     timeout, accept limiter, parser limits, metrics and discovery settings.
//
//   - ClientConfig: endpoint (or etcd lookup), transport and call timeout.
//
//   - Logger: Custom logging implementation that plugs into Dragonboat's
//     logging system and formats every line as LEVEL | package | message.
package common
