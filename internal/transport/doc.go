// Package transport declares the capability the pub/sub core requires from a
// shared-memory transport: named channels with fixed payload descriptors,
// buffer loan/commit/receive/release, and a node-level blocking wait.
//
// The core never allocates or frees shared memory itself; the buffer pool is
// owned and arbitrated entirely by the Transport implementation. Two
// implementations ship with the module: mem (in-process) and shm (mmap-backed
// cross-process segments).
package transport
