package encodings

import (
	"io"

	"github.com/rfbengine/server/pkg/rfb/translate"
	"github.com/rfbengine/server/pkg/rfb/types"
)

// maxPaletteColors bounds the palette-detection scan: past this many
// distinct colors a rectangle is treated as non-palettizable and detection
// aborts early rather than scanning the whole tile for nothing.
const maxPaletteColors = 256

// pixelSource is a read-only view over canonical RGBA32 framebuffer bytes
// for a single rectangle, used by every encoder so none of them need to
// know about the framebuffer's own stride/locking.
type pixelSource struct {
	pix    []byte
	stride int
	rect   types.Rectangle
}

func newPixelSource(pix []byte, stride int, rect types.Rectangle) pixelSource {
	return pixelSource{pix: pix, stride: stride, rect: rect}
}

// at returns the canonical (r,g,b) at rectangle-local coordinates (x,y).
func (s pixelSource) at(x, y int) (r, g, b uint8) {
	off := (int(s.rect.Y)+y)*s.stride + (int(s.rect.X)+x)*4
	p := s.pix[off : off+4]
	return p[0], p[1], p[2]
}

// rgb24 is a packed 0xRRGGBB value used as a hashable color key.
type rgb24 uint32

func packRGB(r, g, b uint8) rgb24 {
	return rgb24(uint32(r)<<16 | uint32(g)<<8 | uint32(b))
}

func unpackRGB(c rgb24) (r, g, b uint8) {
	return uint8(c >> 16), uint8(c >> 8), uint8(c)
}

// detectPalette scans the rectangle for distinct colors, aborting as soon
// as more than limit are seen (returning ok=false). It returns the colors
// in first-seen order and a per-color occurrence count, from which
// dominantColor picks the background used by RRE/CoRRE and Hextile.
func detectPalette(s pixelSource, limit int) (palette []rgb24, counts map[rgb24]int, ok bool) {
	counts = make(map[rgb24]int)
	order := make([]rgb24, 0, limit+1)
	w, h := int(s.rect.Width), int(s.rect.Height)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b := s.at(x, y)
			c := packRGB(r, g, b)
			if _, seen := counts[c]; !seen {
				if len(order) >= limit {
					return nil, nil, false
				}
				order = append(order, c)
			}
			counts[c]++
		}
	}
	return order, counts, true
}

// dominantColor returns the most frequent color in counts.
func dominantColor(counts map[rgb24]int) rgb24 {
	var best rgb24
	bestN := -1
	for c, n := range counts {
		if n > bestN {
			best, bestN = c, n
		}
	}
	return best
}

// compactLength writes the RFB "compact length" encoding used by Tight and
// TightPng: 1-3 bytes, 7 bits of length per byte, high bit set when another
// byte follows.
func compactLength(w io.Writer, n int) error {
	var out []byte
	out = append(out, byte(n&0x7f))
	n >>= 7
	for n > 0 {
		out[len(out)-1] |= 0x80
		out = append(out, byte(n&0x7f))
		n >>= 7
	}
	_, err := w.Write(out)
	return err
}

// compactLengthBytes is the byte-slice form of compactLength, used where an
// in-memory buffer is being assembled rather than a stream written
// directly.
func compactLengthBytes(n int) []byte {
	out := []byte{byte(n & 0x7f)}
	n >>= 7
	for n > 0 {
		out[len(out)-1] |= 0x80
		out = append(out, byte(n&0x7f))
		n >>= 7
	}
	return out
}

// cpixel packs a canonical (r,g,b) triple into CPIXEL form: for true-colour
// depth <= 24 this omits the always-zero fourth byte of a 32bpp pixel, so
// the wire form is the client's R/G/B bytes without padding. For deeper
// formats CPIXEL degrades to the full translated pixel.
func cpixel(tr *translate.Translator, r, g, b uint8) []byte {
	full := tr.Translate(nil, r, g, b)
	f := tr.Format()
	if f.BPP == 32 && f.Depth <= 24 {
		// Drop the byte whose channel occupies bits 24-31, which is always
		// zero because R/G/B shifts for a depth-24 32bpp format never reach
		// that byte.
		return dropZeroByte(full, f)
	}
	return full
}

func dropZeroByte(full []byte, f types.PixelFormat) []byte {
	zeroIdx := 3
	shifts := []uint8{f.RedShift, f.GreenShift, f.BlueShift}
	occupied := map[int]bool{}
	for _, sh := range shifts {
		occupied[int(sh)/8] = true
	}
	for i := 0; i < 4; i++ {
		if !occupied[i] {
			zeroIdx = i
			break
		}
	}
	out := make([]byte, 0, 3)
	for i := 0; i < 4; i++ {
		if i == zeroIdx {
			continue
		}
		out = append(out, full[i])
	}
	return out
}

// tileIterate calls fn once per tile of size tileSize x tileSize (row-major,
// clipped at the rectangle's edges), passing the tile's rectangle in
// rectangle-local coordinates.
func tileIterate(rect types.Rectangle, tileSize int, fn func(tile types.Rectangle)) {
	w, h := int(rect.Width), int(rect.Height)
	for ty := 0; ty < h; ty += tileSize {
		th := minInt(tileSize, h-ty)
		for tx := 0; tx < w; tx += tileSize {
			tw := minInt(tileSize, w-tx)
			fn(types.Rectangle{X: uint16(tx), Y: uint16(ty), Width: uint16(tw), Height: uint16(th)})
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
