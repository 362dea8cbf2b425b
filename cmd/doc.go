// Package cmd implements the command-line interface of binrpc. It provides a
// server with demo procedures and a client to call and benchmark them.
//
// The package is organized into several subpackages:
//
//   - serve: Starts a server exposing echo, add, sum, sleep, fail and stats
//   - call: Calls a remote method and prints the reply, call bench measures throughput
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// All flags can be set as BINRPC_<FLAG> environment variables or in a .env
// file. See binrpc -help for a list of all commands.
package cmd
