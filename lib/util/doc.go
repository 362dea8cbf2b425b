// Package util provides small building blocks shared by the transport and
// server packages.
//
// The package contains:
//   - lockfreempsc: a lock-free Multi-Producer Single-Consumer (MPSC) queue, used by the
//     transport reactor to hand readiness events to its dispatch loop
//   - mapheap: a min-heap with key based access, used to release replies in request order
//   - histogram: a SizeHistogram for frame size statistics
//   - functions: seeds and string hashing, used for instance ids and endpoint selection
package util
