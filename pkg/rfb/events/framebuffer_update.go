package events

import (
	"github.com/rfbengine/server/pkg/buffer"
	"github.com/rfbengine/server/pkg/rfb/types"
	"github.com/rfbengine/server/pkg/session"
)

// FrameBufferUpdate handles the client FramebufferUpdateRequest message
// (type 3).
type FrameBufferUpdate struct{}

func (f *FrameBufferUpdate) Code() uint8 { return 3 }

func (f *FrameBufferUpdate) Handle(buf *buffer.ReadWriter, sess *session.Session) error {
	var req types.FrameBufferUpdateRequest
	if err := buf.ReadInto(&req); err != nil {
		return err
	}
	sess.RequestUpdate(&req)
	return nil
}
