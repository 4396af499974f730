package encodings

import (
	"bytes"
	"testing"

	"github.com/rfbengine/server/pkg/rfb/translate"
	"github.com/rfbengine/server/pkg/rfb/types"
)

func TestCPIXELDropsZeroByteFor32BPPDepth24(t *testing.T) {
	tr := translate.New(types.ServerPixelFormat)
	out := cpixel(tr, 0x11, 0x22, 0x33)
	if len(out) != 3 {
		t.Fatalf("expected CPIXEL to drop the zero byte for a 32bpp depth-24 format, got %d bytes: %x", len(out), out)
	}
}

func TestCPIXELKeepsFullPixelForDeeperFormat(t *testing.T) {
	pf := types.PixelFormat{
		BPP: 32, Depth: 32, TrueColour: 1,
		RedMax: 0xFF, GreenMax: 0xFF, BlueMax: 0xFF,
		RedShift: 0, GreenShift: 8, BlueShift: 16,
	}
	tr := translate.New(pf)
	out := cpixel(tr, 0x11, 0x22, 0x33)
	if len(out) != 4 {
		t.Fatalf("expected CPIXEL to keep all 4 bytes for a depth-32 format, got %d bytes: %x", len(out), out)
	}
}

func TestSelectPrefersZYWRLEBelowQualityThreshold(t *testing.T) {
	r := NewRegistry()
	enc := r.Select([]int32{CodeZRLE, CodeRaw}, 3)
	if _, ok := enc.(*ZYWRLEEncoder); !ok {
		t.Fatalf("expected ZYWRLE at low quality, got %T", enc)
	}
	if enc.Code() != CodeZRLE {
		t.Fatalf("expected ZYWRLE's wire code to be CodeZRLE, got %d", enc.Code())
	}
}

func TestSelectPrefersPlainZRLEAtHighQuality(t *testing.T) {
	r := NewRegistry()
	enc := r.Select([]int32{CodeZRLE, CodeRaw}, 9)
	if _, ok := enc.(*ZRLEEncoder); !ok {
		t.Fatalf("expected plain ZRLE at high quality, got %T", enc)
	}
}

func TestSelectFallsBackToRawWhenNothingSupported(t *testing.T) {
	r := NewRegistry()
	enc := r.Select([]int32{999}, 9)
	if enc.Code() != CodeRaw {
		t.Fatalf("expected Raw fallback, got code %d", enc.Code())
	}
}

func TestSelectHonorsPriorityOrderOverAdvertiseOrder(t *testing.T) {
	r := NewRegistry()
	// Client lists Hextile before Tight; Tight must still win since it is
	// higher priority regardless of the order the client advertised them in.
	enc := r.Select([]int32{CodeHextile, CodeTight}, 9)
	if enc.Code() != CodeTight {
		t.Fatalf("expected Tight to win on priority, got code %d", enc.Code())
	}
}

func TestRawEncodeProducesExpectedByteCount(t *testing.T) {
	const w, h = 3, 2
	stride := w * 4
	pix := make([]byte, stride*h)
	for i := range pix {
		pix[i] = byte(i)
	}
	rect := types.Rectangle{Width: w, Height: h}
	tr := translate.New(types.ServerPixelFormat)
	ctx := &Context{Translator: tr}

	var buf bytes.Buffer
	enc := &RawEncoder{}
	if err := enc.Encode(&buf, ctx, pix, stride, rect); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if got, want := buf.Len(), w*h*4; got != want {
		t.Fatalf("expected %d raw bytes, got %d", want, got)
	}
}
