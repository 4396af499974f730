// Package types holds the RFB wire structures shared across the protocol
// state machine, the event handlers, and the encoder family.
package types

// PixelFormat describes how a pixel is packed on the wire.
//
// See RFC 6143 Section 7.4.
type PixelFormat struct {
	BPP        uint8
	Depth      uint8
	BigEndian  uint8
	TrueColour uint8
	RedMax     uint16
	GreenMax   uint16
	BlueMax    uint16
	RedShift   uint8
	GreenShift uint8
	BlueShift  uint8
	_          [3]byte // padding
}

// BytesPerPixel returns the number of bytes a single pixel occupies on the
// wire under this format.
func (p *PixelFormat) BytesPerPixel() int { return int(p.BPP) / 8 }

// Equal reports whether two pixel formats are byte-for-byte identical.
func (p *PixelFormat) Equal(o *PixelFormat) bool {
	if p == nil || o == nil {
		return p == o
	}
	return *p == *o
}

// ServerPixelFormat is the server's canonical wire format: 32bpp, depth 24,
// little-endian, true-colour, R at shift 0, G at shift 8, B at shift 16.
var ServerPixelFormat = PixelFormat{
	BPP:        32,
	Depth:      24,
	BigEndian:  0,
	TrueColour: 1,
	RedMax:     0xFF,
	GreenMax:   0xFF,
	BlueMax:    0xFF,
	RedShift:   0,
	GreenShift: 8,
	BlueShift:  16,
}

// Rectangle is a (x, y, width, height) region of the framebuffer, in
// framebuffer coordinates.
type Rectangle struct {
	X, Y          uint16
	Width, Height uint16
}

// Area returns width*height.
func (r Rectangle) Area() int { return int(r.Width) * int(r.Height) }

// Empty reports whether the rectangle has no area.
func (r Rectangle) Empty() bool { return r.Width == 0 || r.Height == 0 }

// Intersect returns the overlap of r and o, which is empty if they don't
// overlap.
func (r Rectangle) Intersect(o Rectangle) Rectangle {
	x0, y0 := max16(r.X, o.X), max16(r.Y, o.Y)
	x1, y1 := min16(r.X+r.Width, o.X+o.Width), min16(r.Y+r.Height, o.Y+o.Height)
	if x1 <= x0 || y1 <= y0 {
		return Rectangle{}
	}
	return Rectangle{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Overlaps reports whether r and o share any pixel.
func (r Rectangle) Overlaps(o Rectangle) bool { return !r.Intersect(o).Empty() }

func max16(a, b uint16) uint16 {
	if a > b {
		return a
	}
	return b
}

func min16(a, b uint16) uint16 {
	if a < b {
		return a
	}
	return b
}

// FrameBufferUpdateRequest is the client->server FramebufferUpdateRequest
// message body (message type 3), excluding the leading incremental byte's
// semantics which are exposed via Incremental.
type FrameBufferUpdateRequest struct {
	IncrementalFlag uint8
	X, Y            uint16
	Width, Height   uint16
}

// Incremental reports whether the client only wants the dirty region
// intersected with the requested rectangle, as opposed to a forced full
// repaint of the requested rectangle.
func (r *FrameBufferUpdateRequest) Incremental() bool { return r.IncrementalFlag != 0 }

// Rect returns the requested rectangle.
func (r *FrameBufferUpdateRequest) Rect() Rectangle {
	return Rectangle{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
}

// KeyEvent is the client->server KeyEvent message body (message type 4).
type KeyEvent struct {
	DownFlag uint8
	Key      uint32
}

// IsDown reports whether this is a key-press (as opposed to key-release).
func (k *KeyEvent) IsDown() bool { return k.DownFlag != 0 }

// PointerEvent is the client->server PointerEvent message body (message
// type 5).
type PointerEvent struct {
	ButtonMask uint8
	X, Y       uint16
}

// ButtonDown reports whether bit n of the button mask is set: bits 0-2 are
// the left/middle/right buttons, bits 3-6 the wheel directions (up, down,
// left, right), per §7.5.3.
func (p *PointerEvent) ButtonDown(n int) bool { return ButtonBit(p.ButtonMask, n) }

// ButtonBit reports whether bit n of a PointerEvent button mask is set.
// Exported so callers that track a previous mask (for press/release edge
// detection) can test it the same way as the event's own mask.
func ButtonBit(mask uint8, n int) bool { return mask&(1<<uint(n)) != 0 }

// ClientCutText is the client->server ClientCutText message body (message
// type 6), with the variable-length text already sized by Length.
type ClientCutText struct {
	Length uint32
	Text   []byte
}

// Latin1Text decodes the cut-text body as Latin-1 (ISO 8859-1), the
// encoding §7.5.4 specifies for the legacy ClientCutText message.
func (c *ClientCutText) Latin1Text() string {
	buf := make([]rune, len(c.Text))
	for i, b := range c.Text {
		buf[i] = rune(b)
	}
	return string(buf)
}

// FrameBufferRectangle is the header written before every rectangle's
// encoded payload in a FramebufferUpdate message.
type FrameBufferRectangle struct {
	X, Y          uint16
	Width, Height uint16
	EncType       int32
}

// CopyRectBody is the body of a CopyRect-encoded rectangle: the source
// coordinates in framebuffer space that the client should copy from its
// already-decoded frame.
type CopyRectBody struct {
	SrcX, SrcY uint16
}
