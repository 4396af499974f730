package translate

import (
	"testing"

	"github.com/rfbengine/server/pkg/rfb/types"
)

func TestTranslateRoundTrip565(t *testing.T) {
	pf := types.PixelFormat{
		BPP: 16, Depth: 16, TrueColour: 1,
		RedMax: 0x1f, GreenMax: 0x3f, BlueMax: 0x1f,
		RedShift: 11, GreenShift: 5, BlueShift: 0,
	}
	tr := New(pf)

	cases := []struct{ r, g, b uint8 }{
		{0, 0, 0}, {255, 255, 255}, {8, 252, 8}, {200, 100, 50},
	}
	for _, c := range cases {
		out := tr.Translate(nil, c.r, c.g, c.b)
		if len(out) != 2 {
			t.Fatalf("expected 2 bytes, got %d", len(out))
		}
		v := tr.order.Uint16(out)
		rv := (v >> 11) & 0x1f
		gv := (v >> 5) & 0x3f
		bv := v & 0x1f

		wantR := uint16(c.r) >> 3
		wantG := uint16(c.g) >> 2
		wantB := uint16(c.b) >> 3
		if rv != wantR || gv != wantG || bv != wantB {
			t.Fatalf("pixel (%d,%d,%d): got (%d,%d,%d) want (%d,%d,%d)",
				c.r, c.g, c.b, rv, gv, bv, wantR, wantG, wantB)
		}
	}
}

func TestTranslateIdentityPassthrough(t *testing.T) {
	tr := New(types.ServerPixelFormat)
	out := tr.Translate(nil, 0xAB, 0xCD, 0xEF)
	if len(out) != 4 || out[0] != 0xAB || out[1] != 0xCD || out[2] != 0xEF {
		t.Fatalf("identity translation changed pixel: %v", out)
	}
}
