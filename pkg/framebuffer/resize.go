package framebuffer

import (
	"github.com/rfbengine/server/pkg/rfb/types"
)

// blackFill is the canonical "black" pixel used to fill the region a resize
// exposes: RGB=0, X=0xFF per the data model invariant.
var blackFill = [BytesPerPixel]byte{0, 0, 0, 0xFF}

// Resize reallocates the backing buffer to newW x newH, copies the
// min(oldW,newW) x min(oldH,newH) origin-aligned region of content forward,
// fills the newly exposed region with black, and marks the full surface
// dirty for every session. It returns an error only for a non-positive
// dimension.
//
// Readers calling Snapshot concurrently with Resize always see either the
// pre-resize pair or the post-resize pair, never a width/height that
// outgrows the buffer they hold, because the new buffer is built in a
// local variable and swapped into fb.buf together with the new dimensions
// while holding the write lock.
func (fb *Framebuffer) Resize(newW, newH int) error {
	if newW <= 0 || newH <= 0 {
		return errInvalidLength(newW, newH)
	}

	oldW, oldH := fb.Dimensions()
	newBuf := make([]byte, newW*newH*BytesPerPixel)
	fillBlack(newBuf)

	fb.mu.RLock()
	oldBuf := fb.buf
	fb.mu.RUnlock()

	copyW, copyH := minInt(oldW, newW), minInt(oldH, newH)
	oldStride := oldW * BytesPerPixel
	newStride := newW * BytesPerPixel
	rowBytes := copyW * BytesPerPixel
	for y := 0; y < copyH; y++ {
		srcOff := y * oldStride
		dstOff := y * newStride
		copy(newBuf[dstOff:dstOff+rowBytes], oldBuf[srcOff:srcOff+rowBytes])
	}

	fb.mu.Lock()
	fb.buf = newBuf
	fb.width.Store(int32(newW))
	fb.height.Store(int32(newH))
	fb.mu.Unlock()

	fb.markAllDirty(types.Rectangle{Width: uint16(newW), Height: uint16(newH)})
	return nil
}

func fillBlack(buf []byte) {
	for i := 0; i+BytesPerPixel <= len(buf); i += BytesPerPixel {
		copy(buf[i:i+BytesPerPixel], blackFill[:])
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
