package devtools

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// FrameType identifies a websocket frame.
type FrameType string

const (
	// FrameHello is the first frame on every connection.
	FrameHello FrameType = "hello"

	// FrameEvent carries one recorded event.
	FrameEvent FrameType = "event"
)

// Frame is the msgpack envelope written to /events subscribers.
type Frame struct {
	Type FrameType `msgpack:"type"`

	// ClientID is set on hello frames.
	ClientID string `msgpack:"clientId,omitempty"`

	// Seq is the last recorded sequence number at connect time, set on
	// hello frames.
	Seq uint64 `msgpack:"seq,omitempty"`

	// Event is set on event frames.
	Event *Event `msgpack:"event,omitempty"`
}

// EncodeFrame serializes a frame.
func EncodeFrame(f *Frame) ([]byte, error) {
	data, err := msgpack.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("msgpack encode failed: %w", err)
	}
	return data, nil
}

// DecodeFrame parses a frame written by EncodeFrame.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := msgpack.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("msgpack decode failed: %w", err)
	}
	switch f.Type {
	case FrameHello, FrameEvent:
	default:
		return nil, fmt.Errorf("unknown frame type %q", f.Type)
	}
	return &f, nil
}
