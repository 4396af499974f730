package encodings

import (
	"io"

	"github.com/rfbengine/server/pkg/rfb/translate"
	"github.com/rfbengine/server/pkg/rfb/types"
)

const hextileTile = 16

// Hextile sub-encoding flag bits.
const (
	hexRaw             = 1 << 0
	hexBackground      = 1 << 1
	hexForeground      = 1 << 2
	hexAnySubrects     = 1 << 3
	hexSubrectsColored = 1 << 4
)

// HextileEncoder iterates the rectangle in 16x16 tiles, picking the
// cheapest sub-encoding per tile: an empty flags byte (reuse previous
// background), a solid background fill, a two-color foreground/background
// monochrome subrect list, a coloured subrect list, or raw pixels.
type HextileEncoder struct{}

func (e *HextileEncoder) Code() int32 { return CodeHextile }

func (e *HextileEncoder) Encode(w io.Writer, ctx *Context, pix []byte, stride int, rect types.Rectangle) error {
	var lastBG, lastFG *rgb24
	var err error
	tileIterate(rect, hextileTile, func(tile types.Rectangle) {
		if err != nil {
			return
		}
		abs := types.Rectangle{X: rect.X + tile.X, Y: rect.Y + tile.Y, Width: tile.Width, Height: tile.Height}
		err = encodeHextile(w, ctx, pix, stride, abs, &lastBG, &lastFG)
	})
	return err
}

func encodeHextile(w io.Writer, ctx *Context, pix []byte, stride int, rect types.Rectangle, lastBG, lastFG **rgb24) error {
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
		if err := writeByte(w, flags); err != nil {
			return err
		}
		if flags&hexBackground != 0 {
			if err := writePixel(w, ctx.Translator, bg); err != nil {
				return err
			}
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
		if err := writeByte(w, flags); err != nil {
			return err
		}
		if flags&hexBackground != 0 {
			if err := writePixel(w, ctx.Translator, bg); err != nil {
				return err
			}
		}
		if flags&hexForeground != 0 {
			if err := writePixel(w, ctx.Translator, fg); err != nil {
				return err
			}
		}
		if err := writeByte(w, byte(len(subrects))); err != nil {
			return err
		}
		for _, sr := range subrects {
			if err := writeSubrectCoords(w, sr); err != nil {
				return err
			}
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
			if err := writeByte(w, flags); err != nil {
				return err
			}
			if flags&hexBackground != 0 {
				if err := writePixel(w, ctx.Translator, bg); err != nil {
					return err
				}
			}
			if err := writeByte(w, byte(len(colored))); err != nil {
				return err
			}
			for _, sr := range colored {
				if err := writePixel(w, ctx.Translator, sr.color); err != nil {
					return err
				}
				if err := writeSubrectCoords(w, sr.rect); err != nil {
					return err
				}
			}
			setLast(lastBG, bg)
			return nil
		}
		// Falls through to raw below: too many distinct colors to beat raw.
	}

	// Raw tile.
	if err := writeByte(w, hexRaw); err != nil {
		return err
	}
	raw := &RawEncoder{}
	return raw.Encode(w, ctx, pix, stride, rect)
}

func lastBGVal(p **rgb24) rgb24 {
	if *p == nil {
		return rgb24(0xFFFFFFFF)
	}
	return **p
}

func lastFGVal(p **rgb24) rgb24 { return lastBGVal(p) }

func setLast(p **rgb24, v rgb24) {
	c := v
	*p = &c
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func writePixel(w io.Writer, tr *translate.Translator, c rgb24) error {
	r, g, b := unpackRGB(c)
	_, err := w.Write(tr.Translate(nil, r, g, b))
	return err
}

// subrectCoord packs (x,y) into the high nibble / (w-1,h-1) into the low
// nibble of two bytes, per the Hextile sub-rectangle coordinate format.
type subrectCoord struct{ x, y, w, h uint8 }

func writeSubrectCoords(w io.Writer, c subrectCoord) error {
	b := [2]byte{
		(c.x << 4) | (c.y & 0x0f),
		((c.w - 1) << 4) | ((c.h - 1) & 0x0f),
	}
	_, err := w.Write(b[:])
	return err
}

func monoSubrects(src pixelSource, bg rgb24) []subrectCoord {
	w, h := int(src.rect.Width), int(src.rect.Height)
	visited := make([]bool, w*h)
	var out []subrectCoord
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if visited[y*w+x] {
				continue
			}
			r, g, b := src.at(x, y)
			if packRGB(r, g, b) == bg {
				continue
			}
			rw := runWidth(src, visited, x, y, w)
			rh := runHeight(src, visited, x, y, rw, h, w)
			markVisited(visited, x, y, rw, rh, w)
			out = append(out, subrectCoord{x: uint8(x), y: uint8(y), w: uint8(rw), h: uint8(rh)})
		}
	}
	return out
}

type coloredSubrect struct {
	color rgb24
	rect  subrectCoord
}

func coloredSubrects(src pixelSource, bg rgb24) []coloredSubrect {
	w, h := int(src.rect.Width), int(src.rect.Height)
	visited := make([]bool, w*h)
	var out []coloredSubrect
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if visited[y*w+x] {
				continue
			}
			r, g, b := src.at(x, y)
			c := packRGB(r, g, b)
			if c == bg {
				continue
			}
			rw := runWidthColor(src, visited, x, y, w, c)
			markVisited(visited, x, y, rw, 1, w)
			out = append(out, coloredSubrect{color: c, rect: subrectCoord{x: uint8(x), y: uint8(y), w: uint8(rw), h: 1}})
		}
	}
	return out
}

func runWidth(src pixelSource, visited []bool, x, y, w int) int {
	r0, g0, b0 := src.at(x, y)
	c0 := packRGB(r0, g0, b0)
	n := 0
	for x+n < w {
		r, g, b := src.at(x+n, y)
		if packRGB(r, g, b) != c0 {
			break
		}
		n++
	}
	return n
}

func runWidthColor(src pixelSource, visited []bool, x, y, w int, c0 rgb24) int {
	n := 0
	for x+n < w {
		r, g, b := src.at(x+n, y)
		if packRGB(r, g, b) != c0 {
			break
		}
		n++
	}
	return n
}

func runHeight(src pixelSource, visited []bool, x, y, rw, h, w int) int {
	r0, g0, b0 := src.at(x, y)
	c0 := packRGB(r0, g0, b0)
	n := 1
	for y+n < h {
		ok := true
		for dx := 0; dx < rw; dx++ {
			r, g, b := src.at(x+dx, y+n)
			if packRGB(r, g, b) != c0 {
				ok = false
				break
			}
		}
		if !ok {
			break
		}
		n++
	}
	return n
}

func markVisited(visited []bool, x, y, w, h, stride int) {
	for dy := 0; dy < h; dy++ {
		for dx := 0; dx < w; dx++ {
			visited[(y+dy)*stride+(x+dx)] = true
		}
	}
}
