// Package service provides the method registry of an RPC server.
//
// A procedure is registered as a Factory. The server asks the registry for a
// fresh IProcedure for every incoming call, so per-call state such as decoded
// arguments never leaks between calls, even when the same method runs on
// several workers at once.
//
// Key Components:
//
//   - Registry: name to factory map backed by xsync.MapOf. Duplicate names are
//     rejected with common.ErrDuplicateProcedure, unknown names are reported as
//     common.ErrMethodNotFound. Seal freezes the registry.
//
//   - Register0..Register3: wrap typed Go functions. Arguments and results are
//     converted with the converters found in the lib/compose type registry.
//
//   - RegisterGeneric: procedures that take any number of raw trees.
//
//   - Invoke: runs a procedure and turns a panic into a FaultInternal error.
//
// Errors returned by a procedure become fault frames. A *common.RemoteError
// keeps its code, any other error is sent as FaultApplication.
package service
