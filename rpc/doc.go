// Package rpc provides a small binary RPC stack. Values travel as lib/tree
// nodes, encoded by a compact codec with a per-connection string dictionary.
//
// The package is organized into several subpackages:
//
//   - common: configuration, fault codes, sentinel errors and logging.
//
//   - serializer: the wire codec. A Serializer appends frames, a resumable
//     Parser decodes them from any chunking of the byte stream.
//
//   - service: the method registry with typed and generic procedures.
//
//   - transport: connectors for TCP and Unix sockets and the reactor that
//     watches idle connections.
//
//   - server: listener, connection state machine and worker pool.
//
//   - client: one-call-at-a-time client with timeout and cancellation.
//
//   - discovery: optional etcd registration and lookup of server instances.
package rpc
