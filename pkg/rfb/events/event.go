package events

import (
	"github.com/rfbengine/server/pkg/buffer"
	"github.com/rfbengine/server/pkg/session"
)

// Event is an interface implemented by client message handlers.
type Event interface {
	Code() uint8
	Handle(buf *buffer.ReadWriter, s *session.Session) error
}

var DefaultEvents = []Event{
	&SetEncodings{},
	&SetPixelFormat{},
	&FrameBufferUpdate{},
	&KeyEvent{},
	&PointerEvent{},
	&ClientCutText{},
}

// GetDefaults returns a fresh handler map keyed by RFB client message type.
func GetDefaults() map[uint8]Event {
	out := make(map[uint8]Event, len(DefaultEvents))
	for _, e := range DefaultEvents {
		out[e.Code()] = e
	}
	return out
}
