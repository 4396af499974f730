package encodings

import (
	"bytes"
	"image"
	"image/jpeg"
	"io"

	"github.com/rfbengine/server/pkg/rfb/types"
)

// Tight sub-encoding control bytes.
const (
	tightSolid    = 0x80
	tightMono     = 0x50
	tightIndexed  = 0x60
	tightFullZlib = 0x00
	tightJPEG     = 0x90
)

// tightJPEGQuality maps the TightVNC 0-9 quality pseudo-encoding to a
// libjpeg quality value, preserving the reference table's documented
// anomaly where level 3 (42) edges out level 2 (41) by a single point.
var tightJPEGQuality = [10]int{15, 29, 41, 42, 62, 77, 79, 86, 92, 100}

// TightEncoder dispatches each rectangle by its content, in this order:
// solid fill (1 color), mono (2 colors), indexed (3-16 colors), then
// full-color zlib or JPEG chosen by quality, following the reference
// implementation's solid -> palette -> photographic dispatch. Payload
// sizes are not compared.
type TightEncoder struct{}

func (e *TightEncoder) Code() int32 { return CodeTight }

func (e *TightEncoder) Encode(w io.Writer, ctx *Context, pix []byte, stride int, rect types.Rectangle) error {
	return encodeTightDispatch(w, ctx, pix, stride, rect, false)
}

// encodeTightDispatch implements the shared Tight/TightPng dispatch; png
// selects the photographic-path encoding (JPEG vs PNG).
func encodeTightDispatch(w io.Writer, ctx *Context, pix []byte, stride int, rect types.Rectangle, png bool) error {
	src := newPixelSource(pix, stride, rect)
	palette, counts, ok := detectPalette(src, 16)

	if ok && len(palette) == 1 {
		return writeTightSolid(w, ctx, palette[0])
	}
	if ok && len(palette) >= 2 && len(palette) <= 16 {
		return writeTightPalette(w, ctx, src, palette, counts)
	}
	if png {
		return writeTightPNG(w, ctx, src)
	}
	return writeTightPhoto(w, ctx, src)
}

func writeTightSolid(w io.Writer, ctx *Context, c rgb24) error {
	if _, err := w.Write([]byte{tightSolid}); err != nil {
		return err
	}
	r, g, b := unpackRGB(c)
	_, err := w.Write(cpixel(ctx.Translator, r, g, b))
	return err
}

// writeTightPalette writes the mono (2-color bitmap) or indexed (3-16
// color, 1 byte per pixel) sub-encoding, per §4.5.9: filter byte 0x01,
// palette size (stored as N-1 for indexed, implicitly 2 for mono), the
// palette pixels, then the compact-length-prefixed, zlib-compressed index
// stream.
func writeTightPalette(w io.Writer, ctx *Context, src pixelSource, palette []rgb24, counts map[rgb24]int) error {
	index := make(map[rgb24]byte, len(palette))
	for i, c := range palette {
		index[c] = byte(i)
	}
	width, h := int(src.rect.Width), int(src.rect.Height)

	ctx.Streams.SetLevel(ctx.Compression)

	if len(palette) == 2 {
		if _, err := w.Write([]byte{tightMono, 0x01, 1}); err != nil {
			return err
		}
		for _, c := range palette {
			r, g, b := unpackRGB(c)
			if _, err := w.Write(cpixel(ctx.Translator, r, g, b)); err != nil {
				return err
			}
		}
		bitmap := packMonoBitmap(src, palette[0])
		compressed, err := ctx.Streams.Get("tight-mono").Compress(bitmap)
		if err != nil {
			return err
		}
		if err := compactLength(w, len(compressed)); err != nil {
			return err
		}
		_, err = w.Write(compressed)
		return err
	}

	if _, err := w.Write([]byte{tightIndexed, 0x01, byte(len(palette) - 1)}); err != nil {
		return err
	}
	for _, c := range palette {
		r, g, b := unpackRGB(c)
		if _, err := w.Write(cpixel(ctx.Translator, r, g, b)); err != nil {
			return err
		}
	}
	indices := make([]byte, 0, width*h)
	for y := 0; y < h; y++ {
		for x := 0; x < width; x++ {
			r, g, b := src.at(x, y)
			indices = append(indices, index[packRGB(r, g, b)])
		}
	}
	compressed, err := ctx.Streams.Get("tight-indexed").Compress(indices)
	if err != nil {
		return err
	}
	if err := compactLength(w, len(compressed)); err != nil {
		return err
	}
	_, err = w.Write(compressed)
	return err
}

// packMonoBitmap packs one bit per pixel, MSB first, rows byte-aligned: 0
// for the first palette color (zero), 1 for the second.
func packMonoBitmap(src pixelSource, zero rgb24) []byte {
	w, h := int(src.rect.Width), int(src.rect.Height)
	rowBytes := (w + 7) / 8
	out := make([]byte, rowBytes*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b := src.at(x, y)
			if packRGB(r, g, b) != zero {
				out[y*rowBytes+x/8] |= 0x80 >> uint(x%8)
			}
		}
	}
	return out
}

// writeTightPhoto writes the full-color lossless zlib path (quality 0 or
// >=10) or the JPEG path (quality 1-9), per §4.5.9.
func writeTightPhoto(w io.Writer, ctx *Context, src pixelSource) error {
	if ctx.Quality <= 0 || ctx.Quality >= 10 {
		return writeTightFullZlib(w, ctx, src)
	}
	return writeTightJPEG(w, ctx, src)
}

func writeTightFullZlib(w io.Writer, ctx *Context, src pixelSource) error {
	width, h := int(src.rect.Width), int(src.rect.Height)
	var raw bytes.Buffer
	for y := 0; y < h; y++ {
		for x := 0; x < width; x++ {
			r, g, b := src.at(x, y)
			raw.Write(cpixel(ctx.Translator, r, g, b))
		}
	}
	ctx.Streams.SetLevel(ctx.Compression)
	compressed, err := ctx.Streams.Get("tight-full").Compress(raw.Bytes())
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte{tightFullZlib}); err != nil {
		return err
	}
	if err := compactLength(w, len(compressed)); err != nil {
		return err
	}
	_, err = w.Write(compressed)
	return err
}

// jpegEncode is a seam over jpeg.Encode so writeTightJPEG's fallback-on-
// error path (below) can be exercised directly in tests without depending
// on an image that happens to trip a real encoder error.
var jpegEncode = jpeg.Encode

func writeTightJPEG(w io.Writer, ctx *Context, src pixelSource) error {
	img := photoImage(src)
	quality := tightJPEGQuality[ctx.Quality]
	var buf bytes.Buffer
	if err := jpegEncode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		// EncodingFailure recovery for this encoder: fall back to the
		// lossless path rather than failing the rectangle outright.
		return writeTightFullZlib(w, ctx, src)
	}
	if _, err := w.Write([]byte{tightJPEG}); err != nil {
		return err
	}
	if err := compactLength(w, buf.Len()); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// photoImage builds a standard-library RGBA image for the rectangle's
// canonical pixels, the input shape both image/jpeg and image/png expect.
func photoImage(src pixelSource) *image.RGBA {
	w, h := int(src.rect.Width), int(src.rect.Height)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b := src.at(x, y)
			off := img.PixOffset(x, y)
			img.Pix[off], img.Pix[off+1], img.Pix[off+2], img.Pix[off+3] = r, g, b, 0xFF
		}
	}
	return img
}
