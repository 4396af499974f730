package events

import (
	"github.com/rfbengine/server/pkg/buffer"
	"github.com/rfbengine/server/pkg/internal/log"
	"github.com/rfbengine/server/pkg/rfb/types"
	"github.com/rfbengine/server/pkg/session"
)

// SetPixelFormat handles the client SetPixelFormat message (type 0).
type SetPixelFormat struct{}

func (s *SetPixelFormat) Code() uint8 { return 0 }

func (s *SetPixelFormat) Handle(buf *buffer.ReadWriter, sess *session.Session) error {
	if err := buf.ReadPadding(3); err != nil {
		return err
	}
	var pf types.PixelFormat
	if err := buf.ReadInto(&pf); err != nil {
		return err
	}
	log.Infof("Client wants pixel format: %#v", pf)
	sess.SetPixelFormat(pf)
	return nil
}
