package encodings

import (
	"encoding/binary"
	"io"

	"github.com/rfbengine/server/pkg/rfb/types"
)

// RREEncoder implements Rise-and-Run-length Encoding: a dominant background
// color plus one (color, subrect) tuple per non-background run of pixels
// on a scanline.
type RREEncoder struct{}

func (e *RREEncoder) Code() int32 { return CodeRRE }

func (e *RREEncoder) Encode(w io.Writer, ctx *Context, pix []byte, stride int, rect types.Rectangle) error {
	subrects, bg := rreSubrects(pix, stride, rect)

	if err := binary.Write(w, binary.BigEndian, uint32(len(subrects))); err != nil {
		return err
	}
	bgPixel := ctx.Translator.Translate(nil, bg[0], bg[1], bg[2])
	if _, err := w.Write(bgPixel); err != nil {
		return err
	}
	for _, sr := range subrects {
		px := ctx.Translator.Translate(nil, sr.r, sr.g, sr.b)
		if _, err := w.Write(px); err != nil {
			return err
		}
		var hdr [8]byte
		binary.BigEndian.PutUint16(hdr[0:2], sr.x)
		binary.BigEndian.PutUint16(hdr[2:4], sr.y)
		binary.BigEndian.PutUint16(hdr[4:6], sr.w)
		binary.BigEndian.PutUint16(hdr[6:8], sr.h)
		if _, err := w.Write(hdr[:]); err != nil {
			return err
		}
	}
	return nil
}

// CoRREEncoder is RRE with 1-byte subrectangle coordinates, restricting
// each tile to at most 255x255; larger rectangles are split by the caller
// (session update loop) before reaching this encoder.
type CoRREEncoder struct{}

func (e *CoRREEncoder) Code() int32 { return CodeCoRRE }

// CoRREMaxTile is the largest rectangle CoRRE can address in one tile.
const CoRREMaxTile = 255

func (e *CoRREEncoder) Encode(w io.Writer, ctx *Context, pix []byte, stride int, rect types.Rectangle) error {
	if rect.Width > CoRREMaxTile || rect.Height > CoRREMaxTile {
		return encodeCoRRETiled(w, ctx, pix, stride, rect)
	}
	return e.encodeTile(w, ctx, pix, stride, rect)
}

func (e *CoRREEncoder) encodeTile(w io.Writer, ctx *Context, pix []byte, stride int, rect types.Rectangle) error {
	subrects, bg := rreSubrects(pix, stride, rect)

	if err := binary.Write(w, binary.BigEndian, uint32(len(subrects))); err != nil {
		return err
	}
	bgPixel := ctx.Translator.Translate(nil, bg[0], bg[1], bg[2])
	if _, err := w.Write(bgPixel); err != nil {
		return err
	}
	for _, sr := range subrects {
		px := ctx.Translator.Translate(nil, sr.r, sr.g, sr.b)
		if _, err := w.Write(px); err != nil {
			return err
		}
		hdr := [4]byte{byte(sr.x), byte(sr.y), byte(sr.w), byte(sr.h)}
		if _, err := w.Write(hdr[:]); err != nil {
			return err
		}
	}
	return nil
}

// encodeCoRRETiled is invoked only as a defensive fallback; the session
// splits oversized rectangles into <=255x255 tiles before dispatch, so in
// practice every CoRRE call goes through encodeTile.
func encodeCoRRETiled(w io.Writer, ctx *Context, pix []byte, stride int, rect types.Rectangle) error {
	enc := &CoRREEncoder{}
	var err error
	tileIterate(rect, CoRREMaxTile, func(tile types.Rectangle) {
		if err != nil {
			return
		}
		abs := types.Rectangle{X: rect.X + tile.X, Y: rect.Y + tile.Y, Width: tile.Width, Height: tile.Height}
		err = enc.encodeTile(w, ctx, pix, stride, abs)
	})
	return err
}

type subrect struct {
	r, g, b    uint8
	x, y, w, h uint16
}

// rreSubrects computes the dominant background color and a (color, rect)
// tuple for every maximal non-background run, scanning left-to-right and
// merging same-color runs across rows where possible is skipped in favor
// of one subrect per scanline run, matching the simplest conforming RRE
// encoder shape: every contiguous same-color horizontal run that differs
// from the background becomes its own subrectangle.
func rreSubrects(pix []byte, stride int, rect types.Rectangle) (subrects []subrect, bg [3]uint8) {
	src := newPixelSource(pix, stride, rect)
	_, counts, ok := detectPalette(src, maxPaletteColors*4)
	var bgColor rgb24
	if ok {
		bgColor = dominantColor(counts)
	} else {
		r, g, b := src.at(0, 0)
		bgColor = packRGB(r, g, b)
	}
	br, bgc, bb := unpackRGB(bgColor)
	bg = [3]uint8{br, bgc, bb}

	w, h := int(rect.Width), int(rect.Height)
	for y := 0; y < h; y++ {
		x := 0
		for x < w {
			r, g, b := src.at(x, y)
			c := packRGB(r, g, b)
			if c == bgColor {
				x++
				continue
			}
			runStart := x
			for x < w {
				r2, g2, b2 := src.at(x, y)
				if packRGB(r2, g2, b2) != c {
					break
				}
				x++
			}
			subrects = append(subrects, subrect{
				r: r, g: g, b: b,
				x: uint16(runStart), y: uint16(y), w: uint16(x - runStart), h: 1,
			})
		}
	}
	return subrects, bg
}
