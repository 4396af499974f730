package encodings

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/rfbengine/server/pkg/rfb/types"
)

// ZlibEncoder wraps the rectangle's translated raw pixels in a single
// logical deflate stream, persistent across FramebufferUpdate messages so
// the dictionary compounds, with a 4-byte big-endian length prefix per
// rectangle.
type ZlibEncoder struct{}

func (e *ZlibEncoder) Code() int32 { return CodeZlib }

func (e *ZlibEncoder) Encode(w io.Writer, ctx *Context, pix []byte, stride int, rect types.Rectangle) error {
	raw := &RawEncoder{}
	var scratch bytes.Buffer
	if err := raw.Encode(&scratch, ctx, pix, stride, rect); err != nil {
		return err
	}

	ctx.Streams.SetLevel(ctx.Compression)
	stream := ctx.Streams.Get("zlib")
	compressed, err := stream.Compress(scratch.Bytes())
	if err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(compressed))); err != nil {
		return err
	}
	_, err = w.Write(compressed)
	return err
}
