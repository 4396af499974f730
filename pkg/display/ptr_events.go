package display

import (
	"math"

	"github.com/go-vgo/robotgo"
	"github.com/rfbengine/server/pkg/rfb/types"
)

// scrollBits maps PointerEvent wheel bits (3-6) to the (dx, dy) robotgo.Scroll
// expects: up/down move the y axis, left/right the x axis.
var scrollBits = [4]struct {
	bit    int
	dx, dy int
}{
	{3, 0, 1},  // up
	{4, 0, -1}, // down
	{5, -1, 0}, // left
	{6, 1, 0},  // right
}

func (d *Display) servePointerEvent(ev *types.PointerEvent) {
	x, y := d.scaleToLocalScreen(int(ev.X), int(ev.Y))
	robotgo.Move(x, y)

	for i, name := range []string{"left", "middle", "right"} {
		if types.ButtonBit(d.lastBtnMask, i) == ev.ButtonDown(i) {
			continue
		}
		if ev.ButtonDown(i) {
			robotgo.MouseDown(name)
		} else {
			robotgo.MouseUp(name)
		}
	}

	for _, s := range scrollBits {
		if ev.ButtonDown(s.bit) {
			robotgo.Scroll(s.dx, s.dy)
		}
	}

	d.lastBtnMask = ev.ButtonMask
}

// scaleToLocalScreen maps a pointer position in framebuffer coordinates to
// the local screen's, which may differ in size when the captured display
// provider resizes its output to fit the advertised framebuffer geometry.
func (d *Display) scaleToLocalScreen(x, y int) (int, int) {
	sw, sh := robotgo.GetScreenSize()
	if d.width == 0 || d.height == 0 || (d.width == sw && d.height == sh) {
		return x, y
	}
	return int(math.Round(float64(x) * float64(sw) / float64(d.width))),
		int(math.Round(float64(y) * float64(sh) / float64(d.height)))
}
