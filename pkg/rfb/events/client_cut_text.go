package events

import (
	"github.com/rfbengine/server/pkg/buffer"
	"github.com/rfbengine/server/pkg/rfb/types"
	"github.com/rfbengine/server/pkg/session"
)

// ClientCutText handles new text in the client's cut buffer (message type
// 6).
type ClientCutText struct{}

func (c *ClientCutText) Code() uint8 { return 6 }

func (c *ClientCutText) Handle(buf *buffer.ReadWriter, sess *session.Session) error {
	var req types.ClientCutText

	if err := buf.ReadPadding(3); err != nil {
		return err
	}
	if err := buf.Read(&req.Length); err != nil {
		return err
	}

	req.Text = make([]byte, req.Length)
	if err := buf.Read(&req.Text); err != nil {
		return err
	}

	sess.DispatchClientCutText(&req)
	return nil
}
