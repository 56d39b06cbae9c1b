// Package shm implements the transport capability over memory-mapped files,
// enabling zero-copy publish/subscribe between independent processes on one
// host. It backs the IPC service type.
//
// Each channel is one segment file under the configured directory. A segment
// holds a fixed header carrying the channel's payload-type contract, a table
// of subscriber slots (index ring + futex doorbell each), per-slot ownership
// states with reference counts, and the sample data area. The first process
// to reference a channel name creates and initializes the segment; later
// processes map it and must present an identical descriptor.
//
// Wakeup uses FUTEX_WAIT/FUTEX_WAKE on the shared mapping where the kernel
// supports it (Linux); elsewhere waiters degrade to bounded-interval polling.
package shm
