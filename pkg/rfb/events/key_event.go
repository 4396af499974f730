package events

import (
	"github.com/rfbengine/server/pkg/buffer"
	"github.com/rfbengine/server/pkg/rfb/types"
	"github.com/rfbengine/server/pkg/session"
)

// KeyEvent handles the client KeyEvent message (type 4).
type KeyEvent struct{}

func (s *KeyEvent) Code() uint8 { return 4 }

func (s *KeyEvent) Handle(buf *buffer.ReadWriter, sess *session.Session) error {
	var req types.KeyEvent
	if err := buf.Read(&req.DownFlag); err != nil {
		return err
	}
	if err := buf.ReadPadding(2); err != nil {
		return err
	}
	if err := buf.Read(&req.Key); err != nil {
		return err
	}
	sess.DispatchKeyEvent(&req)
	return nil
}
