package encodings

import (
	"bytes"
	"image/png"
	"io"

	"github.com/rfbengine/server/pkg/rfb/types"
)

const tightPNG = 0x0A

// TightPNGEncoder shares Tight's solid/mono/indexed dispatch but replaces
// the photographic path with a PNG-encoded payload, selected when the
// client lists pseudo-encoding -260.
type TightPNGEncoder struct{}

func (e *TightPNGEncoder) Code() int32 { return CodeTightPNG }

func (e *TightPNGEncoder) Encode(w io.Writer, ctx *Context, pix []byte, stride int, rect types.Rectangle) error {
	return encodeTightDispatch(w, ctx, pix, stride, rect, true)
}

func writeTightPNG(w io.Writer, ctx *Context, src pixelSource) error {
	img := photoImage(src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return writeTightFullZlib(w, ctx, src)
	}
	if _, err := w.Write([]byte{tightPNG}); err != nil {
		return err
	}
	if err := compactLength(w, buf.Len()); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}
