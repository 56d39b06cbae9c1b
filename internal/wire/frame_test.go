package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"time"
)

func encode(t *testing.T, m Message) (payload, header []byte) {
	t.Helper()
	payload = make([]byte, FrameSize)
	header = make([]byte, HeaderSize)
	if err := EncodeInto(m, payload, header); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return payload, header
}

func TestRoundTrip(t *testing.T) {
	sent := Message{
		Content:   "hello world",
		Sender:    "publisher-1",
		Timestamp: time.Unix(1700000000, 123456789),
		Version:   ProtocolVersion,
	}
	payload, header := encode(t, sent)

	got, err := Decode(payload, header)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Content != sent.Content {
		t.Fatalf("content mismatch: %q", got.Content)
	}
	if got.Sender != sent.Sender {
		t.Fatalf("sender mismatch: %q", got.Sender)
	}
	if !got.Timestamp.Equal(sent.Timestamp) {
		t.Fatalf("timestamp mismatch: %v != %v", got.Timestamp, sent.Timestamp)
	}
	if got.Version != sent.Version {
		t.Fatalf("version mismatch: %d", got.Version)
	}
}

func TestRoundTripBoundaries(t *testing.T) {
	cases := []Message{
		NewMessage("", ""),
		NewMessage(strings.Repeat("x", MaxContentLen), "s"),
		NewMessage("multi-byte: héllo wörld ☀", "nøde"),
	}
	for _, sent := range cases {
		payload, header := encode(t, sent)
		got, err := Decode(payload, header)
		if err != nil {
			t.Fatalf("decode %q: %v", sent.Content, err)
		}
		if got.Content != sent.Content || got.Sender != sent.Sender {
			t.Fatalf("round trip changed %q/%q to %q/%q", sent.Content, sent.Sender, got.Content, got.Sender)
		}
	}
}

func TestOversizedRejected(t *testing.T) {
	if err := Validate(NewMessage(strings.Repeat("x", MaxContentLen+1), "s")); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("oversized content accepted: %v", err)
	}
	if err := Validate(NewMessage("ok", strings.Repeat("s", MaxSenderLen+1))); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("oversized sender accepted: %v", err)
	}

	// EncodeInto enforces the same limit; the buffers stay untouched.
	payload := make([]byte, FrameSize)
	header := make([]byte, HeaderSize)
	err := EncodeInto(NewMessage(strings.Repeat("x", MaxContentLen+1), "s"), payload, header)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected payload too large, got %v", err)
	}
	if !bytes.Equal(payload, make([]byte, FrameSize)) {
		t.Fatalf("rejected encode wrote into the payload buffer")
	}
}

func TestFrameInvariant(t *testing.T) {
	payload, _ := encode(t, NewMessage("abc", "s"))

	if len(payload) != 264 {
		t.Fatalf("frame must be 264 bytes, got %d", len(payload))
	}
	if n := binary.LittleEndian.Uint64(payload[0:8]); n != 3 {
		t.Fatalf("length prefix %d, want 3", n)
	}
	if string(payload[8:11]) != "abc" {
		t.Fatalf("content bytes wrong: %q", payload[8:11])
	}
	// Bytes past the content must be zero padding.
	if !bytes.Equal(payload[11:], make([]byte, FrameSize-11)) {
		t.Fatalf("padding not zeroed")
	}
}

func TestEncodeOverwritesStaleBytes(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAA}, FrameSize)
	header := bytes.Repeat([]byte{0xAA}, HeaderSize)
	if err := EncodeInto(NewMessage("x", "s"), payload, header); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if bytes.Contains(payload[9:], []byte{0xAA}) {
		t.Fatalf("stale payload bytes survived a reused buffer")
	}
	if bytes.Contains(header[25:], []byte{0xAA}) {
		t.Fatalf("stale header bytes survived a reused buffer")
	}
}

func TestDeterministicEncoding(t *testing.T) {
	m := Message{Content: "same", Sender: "s", Timestamp: time.Unix(1, 0), Version: 1}
	p1, h1 := encode(t, m)
	p2, h2 := encode(t, m)
	if !bytes.Equal(p1, p2) || !bytes.Equal(h1, h2) {
		t.Fatalf("equal messages must encode identically")
	}
}

func TestDecodeRejectsBadLengthField(t *testing.T) {
	payload, header := encode(t, NewMessage("ok", "s"))

	binary.LittleEndian.PutUint64(payload[0:8], MaxContentLen+1)
	if _, err := Decode(payload, header); !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("oversized content length accepted: %v", err)
	}

	payload, header = encode(t, NewMessage("ok", "s"))
	binary.LittleEndian.PutUint64(header[16:24], MaxSenderLen+1)
	if _, err := Decode(payload, header); !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("oversized sender length accepted: %v", err)
	}
}

func TestDecodeRejectsInvalidUTF8(t *testing.T) {
	payload, header := encode(t, NewMessage("ok", "s"))
	payload[8] = 0xFF
	payload[9] = 0xFE
	if _, err := Decode(payload, header); !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("invalid UTF-8 content accepted: %v", err)
	}

	payload, header = encode(t, NewMessage("ok", "s"))
	header[24] = 0xFF
	if _, err := Decode(payload, header); !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("invalid UTF-8 sender accepted: %v", err)
	}
}

func TestDecodeRejectsWrongRegionSize(t *testing.T) {
	if _, err := Decode(make([]byte, FrameSize-1), make([]byte, HeaderSize)); !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("short payload region accepted: %v", err)
	}
	if _, err := Decode(make([]byte, FrameSize), make([]byte, HeaderSize+1)); !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("long header region accepted: %v", err)
	}
}

func TestChannelDescriptorMatchesGeometry(t *testing.T) {
	d := ChannelDescriptor()
	if d.Payload.Size != FrameSize || d.Payload.Align != FrameAlign {
		t.Fatalf("payload detail %+v does not match the frame", d.Payload)
	}
	if d.Header.Size != HeaderSize || d.Header.Align != HeaderAlign {
		t.Fatalf("header detail %+v does not match the header", d.Header)
	}
}
