// Package wire defines the fixed binary layout exchanged through shared
// memory and converts between it and the logical Message value.
//
// # Layout
//
// Every sample carries two fixed regions, both little-endian:
//
//	payload frame (264 bytes, 8-byte aligned):
//	  0..7    u64 content length (<= 256)
//	  8..263  content bytes, zero-padded
//
//	user header (80 bytes, 8-byte aligned):
//	  0..7    u64 protocol version
//	  8..15   u64 creation timestamp, unix nanoseconds
//	  16..23  u64 sender length (<= 56)
//	  24..79  sender bytes, zero-padded
//
// The frame size is constant for every message of a channel; content shorter
// than the maximum is zero-padded, content longer is rejected at encode time
// and never truncated. Decoding rejects any region whose length field is
// inconsistent with the region size or whose text is not valid UTF-8.
package wire
