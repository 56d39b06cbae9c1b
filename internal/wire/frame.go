package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/youndong/iceoryx2/internal/transport"
)

// Frame geometry. These constants are the payload-type contract declared to
// the transport; both ends of a channel must agree on them exactly.
const (
	FrameSize     = 264
	FrameAlign    = 8
	MaxContentLen = 256

	HeaderSize   = 80
	HeaderAlign  = 8
	MaxSenderLen = 56

	ProtocolVersion = 1

	payloadTypeName = "iox2.MessageFrame"
	headerTypeName  = "iox2.MessageHeader"
)

var (
	// ErrPayloadTooLarge is returned when a message's content or sender
	// exceeds the fixed frame capacity. The message is rejected before any
	// transport call.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrMalformedFrame is returned when a received frame's length fields are
	// inconsistent with the frame geometry or its text is not valid UTF-8.
	ErrMalformedFrame = errors.New("malformed frame")
)

// Message is the decoded, caller-level representation. It is distinct from
// the frame, which is its wire-level container.
type Message struct {
	Content   string
	Sender    string
	Timestamp time.Time
	Version   uint64
}

// NewMessage returns a Message stamped with the current time and the
// current protocol version.
func NewMessage(content, sender string) Message {
	return Message{
		Content:   content,
		Sender:    sender,
		Timestamp: time.Now(),
		Version:   ProtocolVersion,
	}
}

// ChannelDescriptor returns the payload-type descriptor the core declares to
// the transport for every channel it opens.
func ChannelDescriptor() transport.Descriptor {
	return transport.Descriptor{
		Payload: transport.TypeDetail{Name: payloadTypeName, Size: FrameSize, Align: FrameAlign},
		Header:  transport.TypeDetail{Name: headerTypeName, Size: HeaderSize, Align: HeaderAlign},
	}
}

// Validate checks m against the frame capacity without touching any buffer.
// Send paths call this before loaning a sample so an oversized message never
// reaches the transport.
func Validate(m Message) error {
	if len(m.Content) > MaxContentLen {
		return fmt.Errorf("%w: content is %d bytes, limit %d", ErrPayloadTooLarge, len(m.Content), MaxContentLen)
	}
	if len(m.Sender) > MaxSenderLen {
		return fmt.Errorf("%w: sender is %d bytes, limit %d", ErrPayloadTooLarge, len(m.Sender), MaxSenderLen)
	}
	return nil
}

// EncodeInto writes m into the payload and header regions of a loaned
// sample. Both regions are fully overwritten, including zero padding.
// Encoding is deterministic: equal messages produce identical bytes.
func EncodeInto(m Message, payload, header []byte) error {
	if err := Validate(m); err != nil {
		return err
	}
	if len(payload) != FrameSize {
		return fmt.Errorf("%w: payload region is %d bytes, want %d", ErrMalformedFrame, len(payload), FrameSize)
	}
	if len(header) != HeaderSize {
		return fmt.Errorf("%w: header region is %d bytes, want %d", ErrMalformedFrame, len(header), HeaderSize)
	}

	binary.LittleEndian.PutUint64(payload[0:8], uint64(len(m.Content)))
	n := copy(payload[8:], m.Content)
	clear(payload[8+n:])

	binary.LittleEndian.PutUint64(header[0:8], m.Version)
	binary.LittleEndian.PutUint64(header[8:16], uint64(m.Timestamp.UnixNano()))
	binary.LittleEndian.PutUint64(header[16:24], uint64(len(m.Sender)))
	n = copy(header[24:], m.Sender)
	clear(header[24+n:])
	return nil
}

// Decode reads a Message out of a received sample's payload and header
// regions. It rejects frames whose internal length fields exceed the region
// capacity and text that is not valid UTF-8.
func Decode(payload, header []byte) (Message, error) {
	if len(payload) != FrameSize {
		return Message{}, fmt.Errorf("%w: payload region is %d bytes, want %d", ErrMalformedFrame, len(payload), FrameSize)
	}
	if len(header) != HeaderSize {
		return Message{}, fmt.Errorf("%w: header region is %d bytes, want %d", ErrMalformedFrame, len(header), HeaderSize)
	}

	contentLen := binary.LittleEndian.Uint64(payload[0:8])
	if contentLen > MaxContentLen {
		return Message{}, fmt.Errorf("%w: content length field %d exceeds %d", ErrMalformedFrame, contentLen, MaxContentLen)
	}
	content := payload[8 : 8+contentLen]
	if !utf8.Valid(content) {
		return Message{}, fmt.Errorf("%w: content is not valid UTF-8", ErrMalformedFrame)
	}

	senderLen := binary.LittleEndian.Uint64(header[16:24])
	if senderLen > MaxSenderLen {
		return Message{}, fmt.Errorf("%w: sender length field %d exceeds %d", ErrMalformedFrame, senderLen, MaxSenderLen)
	}
	sender := header[24 : 24+senderLen]
	if !utf8.Valid(sender) {
		return Message{}, fmt.Errorf("%w: sender is not valid UTF-8", ErrMalformedFrame)
	}

	return Message{
		Content:   string(content),
		Sender:    string(sender),
		Timestamp: time.Unix(0, int64(binary.LittleEndian.Uint64(header[8:16]))),
		Version:   binary.LittleEndian.Uint64(header[0:8]),
	}, nil
}
