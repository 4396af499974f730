package encodings

import (
	"encoding/binary"
	"io"

	"github.com/rfbengine/server/pkg/rfb/types"
)

// WriteCopyRectBody writes the 4-byte CopyRect payload (source x, y in
// pre-translation framebuffer space). The rectangle header carrying the
// destination geometry and encoding id=1 is written by the caller.
func WriteCopyRectBody(w io.Writer, src types.CopyRectBody) error {
	var buf [4]byte
	binary.BigEndian.PutUint16(buf[0:2], src.SrcX)
	binary.BigEndian.PutUint16(buf[2:4], src.SrcY)
	_, err := w.Write(buf[:])
	return err
}
