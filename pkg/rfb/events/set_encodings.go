package events

import (
	"github.com/rfbengine/server/pkg/buffer"
	"github.com/rfbengine/server/pkg/session"
)

// SetEncodings handles the client SetEncodings message (type 2).
type SetEncodings struct{}

func (s *SetEncodings) Code() uint8 { return 2 }

func (s *SetEncodings) Handle(buf *buffer.ReadWriter, sess *session.Session) error {
	if err := buf.ReadPadding(1); err != nil {
		return err
	}
	var numEncodings uint16
	if err := buf.Read(&numEncodings); err != nil {
		return err
	}
	encTypes := make([]int32, int(numEncodings))
	for i := 0; i < int(numEncodings); i++ {
		if err := buf.Read(&encTypes[i]); err != nil {
			return err
		}
	}
	sess.SetEncodings(encTypes)
	return nil
}
