package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	f := &Frame{MessageID: 0x1234, Priority: PriorityHigh, SourceTag: 42, Payload: []byte("hello world")}
	buf := f.Encode()

	decoded, n, err := DecodeFrame(buf, 0)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, f.MessageID, decoded.MessageID)
	require.Equal(t, f.Priority, decoded.Priority)
	require.Equal(t, f.SourceTag, decoded.SourceTag)
	require.Equal(t, f.Payload, decoded.Payload)
}

func TestDecodeFrameIncomplete(t *testing.T) {
	f := &Frame{MessageID: 1, Payload: []byte("abc")}
	buf := f.Encode()

	decoded, n, err := DecodeFrame(buf[:HeaderSize+1], 0)
	require.NoError(t, err)
	require.Nil(t, decoded)
	require.Equal(t, 0, n)
}

func TestDecodeFrameRejectsOversized(t *testing.T) {
	f := &Frame{MessageID: 1, Payload: make([]byte, 100)}
	buf := f.Encode()

	_, _, err := DecodeFrame(buf, 10)
	require.Error(t, err)
}

func TestDecodeFrameMultiple(t *testing.T) {
	f1 := (&Frame{MessageID: 1, Payload: []byte("a")}).Encode()
	f2 := (&Frame{MessageID: 2, Payload: []byte("bb")}).Encode()
	buf := append(append([]byte{}, f1...), f2...)

	d1, n1, err := DecodeFrame(buf, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(1), d1.MessageID)

	d2, n2, err := DecodeFrame(buf[n1:], 0)
	require.NoError(t, err)
	require.Equal(t, uint32(2), d2.MessageID)
	require.Equal(t, len(buf), n1+n2)
}
