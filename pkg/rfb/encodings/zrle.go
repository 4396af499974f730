package encodings

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/rfbengine/server/pkg/rfb/translate"
	"github.com/rfbengine/server/pkg/rfb/types"
)

const zrleTile = 64

// ZRLE sub-encoding markers (RFC 6143 §7.7.6 as extended by TigerVNC).
const (
	zrleRaw           = 0
	zrleSolid         = 1
	zrlePackedPalette = 2 // palette sizes 2-16 use values 2..16 as the palette size itself
	zrlePlainRLE      = 128
	zrlePaletteRLE    = 129 // palette sizes 2-16 + 128
)

// ZRLEEncoder operates on 64x64 tiles after CPIXEL conversion: solid tiles,
// small palettes (packed or run-length), run-length spans, or raw CPIXEL,
// whichever is most compact. The whole rectangle's tile stream is
// compressed through one persistent zlib stream (stream id 2) and
// length-prefixed at the rectangle level.
type ZRLEEncoder struct{}

func (e *ZRLEEncoder) Code() int32 { return CodeZRLE }

func (e *ZRLEEncoder) Encode(w io.Writer, ctx *Context, pix []byte, stride int, rect types.Rectangle) error {
	var tiles bytes.Buffer
	encodeZRLETiles(&tiles, ctx.Translator, pix, stride, rect)

	ctx.Streams.SetLevel(ctx.Compression)
	compressed, err := ctx.Streams.Get("zrle").Compress(tiles.Bytes())
	if err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(compressed))); err != nil {
		return err
	}
	_, err = w.Write(compressed)
	return err
}

// encodeZRLETiles writes the uncompressed ZRLE tile stream for rect into
// out, using CPIXEL-packed pixels. Shared with ZYWRLE, which feeds it
// wavelet-prefiltered pixels instead of canonical ones.
func encodeZRLETiles(out *bytes.Buffer, tr *translate.Translator, pix []byte, stride int, rect types.Rectangle) {
	tileIterate(rect, zrleTile, func(tile types.Rectangle) {
		abs := types.Rectangle{X: rect.X + tile.X, Y: rect.Y + tile.Y, Width: tile.Width, Height: tile.Height}
		encodeZRLETile(out, tr, pix, stride, abs)
	})
}

func encodeZRLETile(out *bytes.Buffer, tr *translate.Translator, pix []byte, stride int, rect types.Rectangle) {
	src := newPixelSource(pix, stride, rect)
	palette, counts, ok := detectPalette(src, 17)

	switch {
	case ok && len(palette) == 1:
		out.WriteByte(zrleSolid)
		out.Write(cpixelOf(tr, palette[0]))
		return

	case ok && len(palette) >= 2 && len(palette) <= 16:
		packedLen := packedPaletteLen(len(palette), rect.Area())
		rleLen := paletteRLELen(src, palette, counts)
		if packedLen <= rleLen {
			writePackedPalette(out, tr, src, palette)
		} else {
			writePaletteRLE(out, tr, src, palette)
		}
		return
	}

	// Plain RLE vs raw: choose whichever is shorter by estimating run count.
	runLen := plainRLELen(src, tr)
	rawLen := rect.Area() * len(cpixelOf(tr, 0))
	if runLen < rawLen {
		writePlainRLE(out, tr, src)
		return
	}
	out.WriteByte(zrleRaw)
	w, h := int(rect.Width), int(rect.Height)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b := src.at(x, y)
			out.Write(cpixel(tr, r, g, b))
		}
	}
}

func cpixelOf(tr *translate.Translator, c rgb24) []byte {
	r, g, b := unpackRGB(c)
	return cpixel(tr, r, g, b)
}

func packedPaletteLen(paletteSize, pixels int) int {
	bits := bitsPerIndex(paletteSize)
	rowBits := bits // approximation; exact byte-alignment handled in writePackedPalette
	return paletteSize*3 + (pixels*rowBits+7)/8
}

func bitsPerIndex(paletteSize int) int {
	switch {
	case paletteSize <= 2:
		return 1
	case paletteSize <= 4:
		return 2
	default:
		return 4
	}
}

func writePackedPalette(out *bytes.Buffer, tr *translate.Translator, src pixelSource, palette []rgb24) {
	out.WriteByte(byte(len(palette)))
	index := make(map[rgb24]int, len(palette))
	for i, c := range palette {
		index[c] = i
		out.Write(cpixelOf(tr, c))
	}
	bits := bitsPerIndex(len(palette))
	w, h := int(src.rect.Width), int(src.rect.Height)
	for y := 0; y < h; y++ {
		var cur byte
		var n int
		for x := 0; x < w; x++ {
			r, g, b := src.at(x, y)
			idx := index[packRGB(r, g, b)]
			cur = (cur << bits) | byte(idx)
			n += bits
			if n == 8 {
				out.WriteByte(cur)
				cur, n = 0, 0
			}
		}
		if n > 0 {
			out.WriteByte(cur << (8 - n))
		}
	}
}

func paletteRLELen(src pixelSource, palette []rgb24, counts map[rgb24]int) int {
	runs := countRuns(src)
	return len(palette)*3 + runs*2
}

func writePaletteRLE(out *bytes.Buffer, tr *translate.Translator, src pixelSource, palette []rgb24) {
	out.WriteByte(byte(len(palette) + 128))
	index := make(map[rgb24]int, len(palette))
	for i, c := range palette {
		index[c] = i
		out.Write(cpixelOf(tr, c))
	}
	w, h := int(src.rect.Width), int(src.rect.Height)
	x, y := 0, 0
	for y < h {
		r0, g0, b0 := src.at(x, y)
		c0 := packRGB(r0, g0, b0)
		n := 0
		cx, cy := x, y
		for cy < h {
			if cy != y {
				break
			}
			r, g, b := src.at(cx, cy)
			if packRGB(r, g, b) != c0 {
				break
			}
			n++
			cx++
			if cx == w {
				break
			}
		}
		out.WriteByte(byte(index[c0]))
		writeRLELength(out, n)
		x = cx
		if x >= w {
			x = 0
			y++
		}
	}
}

func countRuns(src pixelSource) int {
	w, h := int(src.rect.Width), int(src.rect.Height)
	runs := 0
	var prev rgb24
	first := true
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b := src.at(x, y)
			c := packRGB(r, g, b)
			if first || c != prev {
				runs++
				prev = c
				first = false
			}
		}
	}
	return runs
}

func plainRLELen(src pixelSource, tr *translate.Translator) int {
	runs := countRuns(src)
	return runs * (len(cpixelOf(tr, 0)) + 1)
}

func writePlainRLE(out *bytes.Buffer, tr *translate.Translator, src pixelSource) {
	out.WriteByte(zrlePlainRLE)
	w, h := int(src.rect.Width), int(src.rect.Height)
	x, y := 0, 0
	for y < h {
		r0, g0, b0 := src.at(x, y)
		c0 := packRGB(r0, g0, b0)
		n := 0
		cx, cy := x, y
		for cy < h {
			if cy != y {
				break
			}
			r, g, b := src.at(cx, cy)
			if packRGB(r, g, b) != c0 {
				break
			}
			n++
			cx++
			if cx == w {
				break
			}
		}
		out.Write(cpixel(tr, r0, g0, b0))
		writeRLELength(out, n)
		x = cx
		if x >= w {
			x = 0
			y++
		}
	}
}

// writeRLELength writes a ZRLE run length (actual count minus one) as a
// sequence of 255-valued continuation bytes followed by the remainder.
func writeRLELength(out *bytes.Buffer, n int) {
	n--
	for n >= 255 {
		out.WriteByte(255)
		n -= 255
	}
	out.WriteByte(byte(n))
}
