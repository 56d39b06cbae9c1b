// Package iceoryx2 is a zero-copy publish/subscribe client library. A Node
// owns the process's transport resources; from it, publishers and
// subscribers attach to named services carrying fixed-size message frames.
//
// Samples are loaned from a fixed per-service pool, written in place,
// committed for delivery and released by receivers, so message bytes are
// never copied between endpoints sharing a transport. The Local service type
// connects endpoints inside one process; the IPC service type connects
// processes on one host through memory-mapped segments.
//
// A minimal exchange:
//
//	node, _ := iceoryx2.NewNode("example")
//	pub, _ := node.Publisher("topic")
//	sub, _ := node.Subscriber("topic")
//
//	pub.Send(iceoryx2.NewMessage("hello", "example"))
//
//	msg, ok, _ := sub.TryReceive()
//
// Blocking consumption goes through Subscriber.Messages, which runs an
// event-driven wait loop until its context is cancelled.
package iceoryx2
