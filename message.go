package iceoryx2

import "github.com/youndong/iceoryx2/internal/wire"

// Message is one published datum: UTF-8 content plus sender, timestamp and
// protocol version carried in the sample's user header.
type Message = wire.Message

// Frame capacity limits. Messages beyond these are rejected with
// ErrPayloadTooLarge before any buffer is loaned.
const (
	MaxContentLen = wire.MaxContentLen
	MaxSenderLen  = wire.MaxSenderLen

	// ProtocolVersion is stamped into every sent message's header.
	ProtocolVersion = wire.ProtocolVersion
)

// NewMessage returns a Message stamped with the current time and protocol
// version.
func NewMessage(content, sender string) Message {
	return wire.NewMessage(content, sender)
}
