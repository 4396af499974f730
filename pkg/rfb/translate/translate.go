// Package translate converts canonical server RGBA32 pixels into a client's
// negotiated PixelFormat. It is invoked once per rectangle per client,
// ahead of every encoder except ZYWRLE, which translates its wavelet-
// transformed output instead of the canonical input (see the ZYWRLE
// encoder for that ordering).
package translate

import (
	"encoding/binary"

	"github.com/rfbengine/server/pkg/rfb/types"
)

// Translator packs canonical RGBA32 pixels into a specific client
// PixelFormat. A new Translator is built on each SetPixelFormat; it
// records the format, whether it is the canonical one, and its byte order,
// and scales and shifts each channel per pixel.
type Translator struct {
	format types.PixelFormat

	// identity is true when the client's format is byte-identical to the
	// server's canonical format, enabling a straight passthrough.
	identity bool
	// order is the byte order selected by the client's BigEndian flag, used
	// when packing 16bpp and 32bpp pixels.
	order binary.ByteOrder
}

// New builds a Translator for the given client PixelFormat.
func New(client types.PixelFormat) *Translator {
	t := &Translator{format: client}
	t.identity = client.Equal(&types.ServerPixelFormat)
	if client.BigEndian != 0 {
		t.order = binary.BigEndian
	} else {
		t.order = binary.LittleEndian
	}
	return t
}

// Format returns the client PixelFormat this translator packs into.
func (t *Translator) Format() types.PixelFormat { return t.format }

// BytesPerPixel is the output pixel size after translation.
func (t *Translator) BytesPerPixel() int { return t.format.BytesPerPixel() }

// Translate packs one canonical RGBA32 pixel (r,g,b in [0,255], x ignored)
// into the client format and appends the result to dst.
func (t *Translator) Translate(dst []byte, r, g, b uint8) []byte {
	if t.identity {
		return append(dst, r, g, b, 0)
	}

	f := &t.format
	rv := scaleChannel(r, f.RedMax)
	gv := scaleChannel(g, f.GreenMax)
	bv := scaleChannel(b, f.BlueMax)
	packed := (rv << f.RedShift) | (gv << f.GreenShift) | (bv << f.BlueShift)

	switch f.BPP {
	case 32:
		var buf [4]byte
		t.order.PutUint32(buf[:], packed)
		return append(dst, buf[:]...)
	case 16:
		var buf [2]byte
		t.order.PutUint16(buf[:], uint16(packed))
		return append(dst, buf[:]...)
	case 8:
		return append(dst, uint8(packed))
	default:
		return dst
	}
}

// TranslateRect packs every pixel of an RGBA rectangle read from src (tight-
// packed RGBA32, row-major, pixels*4 bytes) into the client
// format, appending the result to dst.
func (t *Translator) TranslateRect(dst []byte, src []byte, pixels int) []byte {
	for i := 0; i < pixels; i++ {
		off := i * 4
		dst = t.Translate(dst, src[off], src[off+1], src[off+2])
	}
	return dst
}

// scaleChannel right-shifts an 8-bit channel value down to the bit width
// implied by max (max is always 2^n - 1 per the PixelFormat invariant).
func scaleChannel(v uint8, max uint16) uint32 {
	bits := bitsForMax(max)
	if bits >= 8 {
		return uint32(v)
	}
	return uint32(v) >> (8 - bits)
}

func bitsForMax(max uint16) uint {
	bits := uint(0)
	for max > 0 {
		bits++
		max >>= 1
	}
	return bits
}
