package events

import (
	"github.com/rfbengine/server/pkg/buffer"
	"github.com/rfbengine/server/pkg/rfb/types"
	"github.com/rfbengine/server/pkg/session"
)

// PointerEvent handles the client PointerEvent message (type 5).
type PointerEvent struct{}

func (s *PointerEvent) Code() uint8 { return 5 }

func (s *PointerEvent) Handle(buf *buffer.ReadWriter, sess *session.Session) error {
	var req types.PointerEvent
	if err := buf.ReadInto(&req); err != nil {
		return err
	}
	sess.DispatchPointerEvent(&req)
	return nil
}
