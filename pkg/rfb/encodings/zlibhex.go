package encodings

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/rfbengine/server/pkg/rfb/types"
)

// ZlibHexEncoder produces a Hextile-encoded byte stream for the rectangle,
// then compresses the raw-tile bytes and the coloured-subrect pixel bytes
// each through their own persistent deflate stream, per the ZlibHex
// extension: tile sub-encoding bytes stay uncompressed on the wire, while
// the two pixel payload kinds are each length-prefixed and compressed.
type ZlibHexEncoder struct{}

func (e *ZlibHexEncoder) Code() int32 { return CodeZlibHex }

func (e *ZlibHexEncoder) Encode(w io.Writer, ctx *Context, pix []byte, stride int, rect types.Rectangle) error {
	var rawStream bytes.Buffer  // stream 0: raw tile pixel bytes
	var subStream bytes.Buffer  // stream 1: subrect color + coordinate bytes
	var frame bytes.Buffer      // uncompressed tile control bytes + placeholders

	var lastBG, lastFG *rgb24
	var err error
	tileIterate(rect, hextileTile, func(tile types.Rectangle) {
		if err != nil {
			return
		}
		abs := types.Rectangle{X: rect.X + tile.X, Y: rect.Y + tile.Y, Width: tile.Width, Height: tile.Height}
		err = encodeZlibHexTile(&frame, &rawStream, &subStream, ctx, pix, stride, abs, &lastBG, &lastFG)
	})
	if err != nil {
		return err
	}

	ctx.Streams.SetLevel(ctx.Compression)
	rawCompressed, err := ctx.Streams.Get("zlibhex-raw").Compress(rawStream.Bytes())
	if err != nil {
		return err
	}
	subCompressed, err := ctx.Streams.Get("zlibhex-sub").Compress(subStream.Bytes())
	if err != nil {
		return err
	}

	if _, err := w.Write(frame.Bytes()); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(rawCompressed))); err != nil {
		return err
	}
	if _, err := w.Write(rawCompressed); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(subCompressed))); err != nil {
		return err
	}
	_, err = w.Write(subCompressed)
	return err
}

// encodeZlibHexTile mirrors encodeHextile's sub-encoding selection but
// routes raw-tile pixel bytes and coloured-subrect pixel+coordinate bytes
// into the two persistent sub-streams instead of inline.
func encodeZlibHexTile(frame, rawStream, subStream *bytes.Buffer, ctx *Context, pix []byte, stride int, rect types.Rectangle, lastBG, lastFG **rgb24) error {
	src := newPixelSource(pix, stride, rect)
	palette, counts, ok := detectPalette(src, maxPaletteColors)
	rawTileBytes := rect.Area() * ctx.Translator.BytesPerPixel()

	switch {
	case ok && len(palette) == 1:
		bg := palette[0]
		flags := byte(0)
		if lastBGVal(lastBG) != bg {
			flags |= hexBackground
		}
		frame.WriteByte(flags)
		if flags&hexBackground != 0 {
			writePixel(frame, ctx.Translator, bg)
		}
		setLast(lastBG, bg)
		return nil

	case ok && len(palette) == 2:
		bg := dominantColor(counts)
		var fg rgb24
		for _, c := range palette {
			if c != bg {
				fg = c
			}
		}
		flags := byte(hexAnySubrects)
		if lastBGVal(lastBG) != bg {
			flags |= hexBackground
		}
		if lastFGVal(lastFG) != fg {
			flags |= hexForeground
		}
		subrects := monoSubrects(src, bg)
		frame.WriteByte(flags)
		if flags&hexBackground != 0 {
			writePixel(frame, ctx.Translator, bg)
		}
		if flags&hexForeground != 0 {
			writePixel(frame, ctx.Translator, fg)
		}
		frame.WriteByte(byte(len(subrects)))
		for _, sr := range subrects {
			writeSubrectCoords(frame, sr)
		}
		setLast(lastBG, bg)
		setLast(lastFG, fg)
		return nil

	case ok && len(palette) >= 3:
		bg := dominantColor(counts)
		colored := coloredSubrects(src, bg)
		coloredBytes := len(colored) * (ctx.Translator.BytesPerPixel() + 2)
		if coloredBytes < rawTileBytes {
			flags := byte(hexAnySubrects | hexSubrectsColored)
			if lastBGVal(lastBG) != bg {
				flags |= hexBackground
			}
			frame.WriteByte(flags)
			if flags&hexBackground != 0 {
				writePixel(frame, ctx.Translator, bg)
			}
			frame.WriteByte(byte(len(colored)))
			for _, sr := range colored {
				writePixel(subStream, ctx.Translator, sr.color)
				writeSubrectCoords(subStream, sr.rect)
			}
			setLast(lastBG, bg)
			return nil
		}
	}

	frame.WriteByte(hexRaw)
	raw := &RawEncoder{}
	return raw.Encode(rawStream, ctx, pix, stride, rect)
}
