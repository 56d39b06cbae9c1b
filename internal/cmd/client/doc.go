// Package client contains Cobra CLI commands for iox2.
//
// The CLI attaches real publishers and subscribers to shared memory
// services, so it doubles as a smoke test for inter-process setups.
//
// Usage
//
//	# publish one message to an IPC service
//	iox2 publish --service demo --message "hello" --ipc
//
//	# publish a stream of numbered messages
//	iox2 publish --service demo --count 100 --interval-ms 50 --ipc
//
//	# print everything arriving on a service
//	iox2 subscribe --service demo --ipc
//
//	# inspect and clean up segments left behind by crashed processes
//	iox2 services list
//	iox2 services clean --service demo
//
// Settings come from --config (YAML) overlaid by IOX2_* environment
// variables; see internal/config for the full list.
package client
