// Package unix implements the Unix domain socket connectors of the binrpc
// transport layer, for processes running on the same machine.
//
// Key Components:
//
//   - clientConnector: dials a socket path
//
//   - serverConnector: listens on a socket path. A stale socket file left by a
//     previous run is removed first.
package unix
