package providers

import (
	"fmt"
	"image"
)

// Display is a frame source a display.Display pumps into the shared
// framebuffer: Start begins producing width x height RGBA frames at up to
// fps frames per second, PullFrame blocks for the next one, and Close
// tears the source down.
type Display interface {
	Start(width, height, fps int) error
	PullFrame() *image.RGBA
	Close() error
}

// Provider names a Display implementation selectable by configuration.
type Provider string

const (
	ProviderGstreamer     Provider = "gstreamer"
	ProviderScreenCapture Provider = "screencap"
)

// GetDisplayProvider resolves p to a fresh Display implementation. Returns
// an error rather than a nil Display so a typo'd or unsupported provider
// name fails when the display is constructed (display.New) instead of
// panicking the first time the caller forgets to nil-check it.
func GetDisplayProvider(p Provider) (Display, error) {
	switch p {
	case ProviderGstreamer:
		return &Gstreamer{}, nil
	case ProviderScreenCapture:
		return &ScreenCapture{}, nil
	default:
		return nil, fmt.Errorf("providers: unknown display provider %q", p)
	}
}
