package dispatcher

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed wire header size in bytes:
// u32 message id, u8 priority, u8[3] reserved, u32 payload length,
// u32 source tag (SPEC_FULL.md §6).
const HeaderSize = 4 + 1 + 3 + 4 + 4

// Priority levels a published frame may carry. Higher values drain
// first from a subscriber's outbound queue.
const (
	PriorityLow    uint8 = 0
	PriorityNormal uint8 = 1
	PriorityHigh   uint8 = 2
)

// Frame is one dispatcher message: a fixed header plus an opaque
// payload.
type Frame struct {
	MessageID uint32
	Priority  uint8
	SourceTag uint32
	Payload   []byte
}

// Encode serializes f into its wire representation.
func (f *Frame) Encode() []byte {
	buf := make([]byte, HeaderSize+len(f.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], f.MessageID)
	buf[4] = f.Priority
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(f.Payload)))
	binary.LittleEndian.PutUint32(buf[12:16], f.SourceTag)
	copy(buf[HeaderSize:], f.Payload)
	return buf
}

// DecodeFrame attempts to decode one frame from the front of buf. It
// returns (frame, bytesConsumed, nil) on success, (nil, 0, nil) if
// buf doesn't yet hold a complete frame, or an error if the header
// declares an impossible payload length.
func DecodeFrame(buf []byte, maxMsgSize uint32) (*Frame, int, error) {
	if len(buf) < HeaderSize {
		return nil, 0, nil
	}
	payloadLen := binary.LittleEndian.Uint32(buf[8:12])
	if maxMsgSize > 0 && payloadLen > maxMsgSize {
		return nil, 0, fmt.Errorf("frame payload length %d exceeds max %d", payloadLen, maxMsgSize)
	}
	total := HeaderSize + int(payloadLen)
	if len(buf) < total {
		return nil, 0, nil
	}
	f := &Frame{
		MessageID: binary.LittleEndian.Uint32(buf[0:4]),
		Priority:  buf[4],
		SourceTag: binary.LittleEndian.Uint32(buf[12:16]),
		Payload:   append([]byte(nil), buf[HeaderSize:total]...),
	}
	return f, total, nil
}
