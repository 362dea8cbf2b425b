// Package tcp implements the TCP connectors of the binrpc transport layer.
//
// Key Components:
//
//   - clientConnector: dials TCP endpoints, created with NewClientConnector
//
//   - serverConnector: listens on TCP endpoints and tunes accepted
//     connections, created with NewServerConnector
//
// Both connectors apply the same Options to their sockets: Nagle's algorithm
// off, keep-alive, 512 KB socket buffers and the OS default linger.
package tcp
