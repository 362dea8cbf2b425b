// Package discovery announces RPC servers in etcd and lets clients find them.
//
// A server calls Announce once it is running. The entry lives as long as the
// lease is renewed, so crashed servers vanish after the TTL. Clients call
// Resolve with a stable client key: rendezvous hashing maps the key to one of
// the announced instances and only moves it when that instance disappears.
package discovery
