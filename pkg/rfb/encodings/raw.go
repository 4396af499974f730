package encodings

import (
	"io"

	"github.com/rfbengine/server/pkg/rfb/types"
)

// RawEncoder emits the rectangle's pixels verbatim, translated into the
// client's PixelFormat. It is the fallback every client must support, used
// whenever no other encoder can handle a rectangle.
type RawEncoder struct{}

func (r *RawEncoder) Code() int32 { return CodeRaw }

func (r *RawEncoder) Encode(w io.Writer, ctx *Context, pix []byte, stride int, rect types.Rectangle) error {
	src := newPixelSource(pix, stride, rect)
	w2, h2 := int(rect.Width), int(rect.Height)
	buf := make([]byte, 0, w2*h2*ctx.Translator.BytesPerPixel())
	for y := 0; y < h2; y++ {
		for x := 0; x < w2; x++ {
			r, g, b := src.at(x, y)
			buf = ctx.Translator.Translate(buf, r, g, b)
		}
	}
	_, err := w.Write(buf)
	return err
}
