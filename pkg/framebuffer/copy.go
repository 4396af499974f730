package framebuffer

import "github.com/rfbengine/server/pkg/rfb/types"

// CopyRegion performs an overlap-safe block copy of src onto (dstX, dstY)
// within the framebuffer. Within a single row, Go's builtin copy already
// behaves like memmove and is safe regardless of overlap direction; the
// only hazard is across rows, when the destination rectangle overlaps the
// source rectangle in y — copying top-to-bottom would then overwrite a
// source row before it has been read. We choose the scan direction (top-to-
// bottom or bottom-to-top) accordingly. Both rectangles are clamped to the
// current dimensions.
func (fb *Framebuffer) CopyRegion(src types.Rectangle, dstX, dstY int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	w, h := int(fb.width.Load()), int(fb.height.Load())
	stride := w * BytesPerPixel

	sx, sy, sw, sh := int(src.X), int(src.Y), int(src.Width), int(src.Height)
	sw = clampDim(sx, sw, w)
	sh = clampDim(sy, sh, h)
	sw = minInt(sw, clampDim(dstX, sw, w))
	sh = minInt(sh, clampDim(dstY, sh, h))
	if sw <= 0 || sh <= 0 {
		return
	}

	rowBytes := sw * BytesPerPixel
	buf := fb.buf

	if dstY <= sy {
		for y := 0; y < sh; y++ {
			srcOff := (sy+y)*stride + sx*BytesPerPixel
			dstOff := (dstY+y)*stride + dstX*BytesPerPixel
			copy(buf[dstOff:dstOff+rowBytes], buf[srcOff:srcOff+rowBytes])
		}
	} else {
		for y := sh - 1; y >= 0; y-- {
			srcOff := (sy+y)*stride + sx*BytesPerPixel
			dstOff := (dstY+y)*stride + dstX*BytesPerPixel
			copy(buf[dstOff:dstOff+rowBytes], buf[srcOff:srcOff+rowBytes])
		}
	}
}

func clampDim(origin, length, bound int) int {
	if origin < 0 || origin >= bound {
		return 0
	}
	if origin+length > bound {
		return bound - origin
	}
	return length
}
