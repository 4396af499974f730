package framebuffer

import (
	"bytes"
	"testing"

	"github.com/rfbengine/server/pkg/rfb/types"
)

func fillGradient(fb *Framebuffer) {
	w, h := fb.Dimensions()
	buf := make([]byte, w*h*BytesPerPixel)
	for i := range buf {
		buf[i] = byte(i)
	}
	_ = fb.Write(buf)
	_ = h
}

func TestWriteMarksAllSessionsDirty(t *testing.T) {
	fb := New(4, 4, "t")
	sub := fb.Subscribe()
	defer fb.Unsubscribe(sub)

	fillGradient(fb)

	rects := sub.Drain(types.Rectangle{Width: 4, Height: 4})
	if len(rects) != 1 {
		t.Fatalf("expected one dirty rect, got %d", len(rects))
	}
	if rects[0].Width != 4 || rects[0].Height != 4 {
		t.Fatalf("unexpected dirty rect %+v", rects[0])
	}
}

func TestResizePreservesContent(t *testing.T) {
	fb := New(4, 4, "t")
	fillGradient(fb)
	before, _, _ := fb.Snapshot()
	beforeCopy := append([]byte(nil), before...)

	if err := fb.Resize(8, 8); err != nil {
		t.Fatalf("resize: %v", err)
	}
	after, w, h := fb.Snapshot()
	if w != 8 || h != 8 {
		t.Fatalf("unexpected dims %d %d", w, h)
	}

	newStride := w * BytesPerPixel
	oldStride := 4 * BytesPerPixel
	for y := 0; y < 4; y++ {
		gotRow := after[y*newStride : y*newStride+oldStride]
		wantRow := beforeCopy[y*oldStride : y*oldStride+oldStride]
		if !bytes.Equal(gotRow, wantRow) {
			t.Fatalf("row %d mismatch: got %v want %v", y, gotRow, wantRow)
		}
	}
	// Complement is black.
	for y := 0; y < 4; y++ {
		for x := 4; x < 8; x++ {
			off := y*newStride + x*BytesPerPixel
			px := after[off : off+BytesPerPixel]
			if !bytes.Equal(px, blackFill[:]) {
				t.Fatalf("pixel (%d,%d) not black: %v", x, y, px)
			}
		}
	}
	for y := 4; y < 8; y++ {
		for x := 0; x < 8; x++ {
			off := y*newStride + x*BytesPerPixel
			px := after[off : off+BytesPerPixel]
			if !bytes.Equal(px, blackFill[:]) {
				t.Fatalf("pixel (%d,%d) not black: %v", x, y, px)
			}
		}
	}
}

func TestCopyRegionOverlapMatchesDisjointCopy(t *testing.T) {
	fb := New(10, 10, "t")
	fillGradient(fb)
	before, _, _ := fb.Snapshot()
	beforeCopy := append([]byte(nil), before...)

	src := types.Rectangle{X: 0, Y: 0, Width: 6, Height: 6}
	fb.CopyRegion(src, 2, 2) // overlapping downward/rightward shift

	got, w, _ := fb.Snapshot()
	stride := w * BytesPerPixel

	// Reference: compute expected via a disjoint scratch buffer copy.
	want := append([]byte(nil), beforeCopy...)
	scratch := make([]byte, 6*6*BytesPerPixel)
	for y := 0; y < 6; y++ {
		srcOff := y * stride
		copy(scratch[y*6*BytesPerPixel:(y+1)*6*BytesPerPixel], beforeCopy[srcOff:srcOff+6*BytesPerPixel])
	}
	for y := 0; y < 6; y++ {
		dstOff := (y+2)*stride + 2*BytesPerPixel
		copy(want[dstOff:dstOff+6*BytesPerPixel], scratch[y*6*BytesPerPixel:(y+1)*6*BytesPerPixel])
	}

	if !bytes.Equal(got, want) {
		t.Fatalf("overlap copy diverged from disjoint reference copy")
	}
}
