// Package tree provides the format-agnostic serialization model of binrpc.
// Every value that crosses a process boundary is first turned into a tree of
// Nodes, and every wire format (currently the binary codec in rpc/serializer)
// only ever sees Nodes, never the application types behind them.
//
// The package focuses on:
//   - A small tagged value type (Null, Scalar, Array, Object)
//   - Scalar conversions with numeric widening and string<->number parsing
//   - Stable insertion order of children, which is also the wire order
//
// Key Components:
//
//   - Node: the tagged value. The category of a Node is fixed at creation.
//     Objects hold named children (first match wins on lookup), Arrays hold
//     unnamed children, Scalars hold one of bool, int64, uint64, float64,
//     string or []byte.
//
//   - Get / Set: generic helpers that move any Go integer or float width in and
//     out of a Scalar node with range checks.
//
// Errors:
//
//   - ErrConversion: a scalar cannot be represented as the requested type
//   - ErrMemberNotFound: an Object has no member with the requested name
//   - ErrDuplicateOperationMisuse: a structural operation was used on a node of
//     the wrong category (e.g. AddMember on an Array)
//
// Thread Safety:
//
//	Nodes are not safe for concurrent mutation. A tree is built during one
//	encode or decode pass and handed over afterward; it is never shared
//	between calls.
package tree
