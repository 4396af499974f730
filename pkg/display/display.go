// Package display is the embedder-reference implementation the standalone
// rfbd command links against: it captures the local screen through a
// providers.Display and injects input through robotgo, implementing
// host.EventSink against pkg/host's boundary API.
package display

import (
	"fmt"
	"image"

	"github.com/rfbengine/server/pkg/display/providers"
	"github.com/rfbengine/server/pkg/host"
	"github.com/rfbengine/server/pkg/internal/log"
	"github.com/rfbengine/server/pkg/rfb/types"
	"github.com/rfbengine/server/pkg/session"
)

// Display owns a display provider and forwards its frames into a Host's
// shared framebuffer, while satisfying host.EventSink for input and
// session lifecycle callbacks.
type Display struct {
	host            *host.Host
	displayProvider providers.Display
	width, height   int
	fps             int

	downKeys    []uint32
	lastBtnMask uint8

	done chan struct{}
}

// Opts configures a new Display.
type Opts struct {
	Host          *host.Host
	Provider      string
	Width, Height int
	// FPS caps the capture rate; zero lets the provider pick its own
	// default.
	FPS int
}

// New builds a Display bound to h, resolving opts.Provider to a concrete
// capture backend; the backend is not started until Start is called.
func New(opts Opts) (*Display, error) {
	provider, err := providers.GetDisplayProvider(providers.Provider(opts.Provider))
	if err != nil {
		return nil, fmt.Errorf("display: %w", err)
	}
	return &Display{
		host:            opts.Host,
		displayProvider: provider,
		width:           opts.Width,
		height:          opts.Height,
		fps:             opts.FPS,
		done:            make(chan struct{}),
	}, nil
}

// Start begins capturing frames and pumping them into the shared
// framebuffer until Close is called.
func (d *Display) Start() error {
	if err := d.displayProvider.Start(d.width, d.height, d.fps); err != nil {
		return err
	}
	go d.pumpFrames()
	return nil
}

// Close stops the display provider and the frame pump.
func (d *Display) Close() error {
	select {
	case <-d.done:
	default:
		close(d.done)
	}
	if d.displayProvider == nil {
		return nil
	}
	err := d.displayProvider.Close()
	d.displayProvider = nil
	return err
}

func (d *Display) pumpFrames() {
	for {
		select {
		case <-d.done:
			return
		default:
		}
		img := d.displayProvider.PullFrame()
		if img == nil {
			return
		}
		d.publish(img)
	}
}

func (d *Display) publish(img *image.RGBA) {
	b := img.Bounds()
	if b.Dx() != d.width || b.Dy() != d.height {
		log.Warningf("captured frame %dx%d does not match framebuffer %dx%d", b.Dx(), b.Dy(), d.width, d.height)
	}
	if err := d.host.UpdateFramebuffer(img.Pix); err != nil {
		log.Errorf("publishing captured frame: %v", err)
	}
}

// KeyEvent implements session.EventSink by injecting the key press/release
// through robotgo.
func (d *Display) KeyEvent(ev *types.KeyEvent) {
	log.Debug("Got key event: ", ev)
	if ev.IsDown() {
		d.appendDownKeyIfMissing(ev.Key)
	} else {
		d.removeDownKey(ev.Key)
	}
	injectKey(ev.Key, ev.IsDown())
}

// PointerEvent implements session.EventSink by injecting mouse motion and
// button/scroll state through robotgo.
func (d *Display) PointerEvent(ev *types.PointerEvent) {
	log.Debug("Got pointer event: ", ev)
	d.servePointerEvent(ev)
}

// CutText implements session.EventSink by syncing the client's clipboard
// text into the local clipboard.
func (d *Display) CutText(ev *types.ClientCutText) {
	log.Debug("Got cut-text event: ", ev)
	d.syncToClipboard(ev)
}

// ClientConnected implements session.EventSink; the reference embedder has
// no per-client state to set up beyond what Session itself tracks.
func (d *Display) ClientConnected(s *session.Session) {
	log.Infof("client connected")
}

// ClientDisconnected implements session.EventSink, releasing any keys the
// disconnecting client left logically held down.
func (d *Display) ClientDisconnected(s *session.Session) {
	log.Infof("client disconnected")
	for _, key := range d.downKeys {
		injectKey(key, false)
	}
	d.downKeys = nil
}

func (d *Display) appendDownKeyIfMissing(key uint32) {
	for _, k := range d.downKeys {
		if k == key {
			return
		}
	}
	d.downKeys = append(d.downKeys, key)
}

func (d *Display) removeDownKey(key uint32) {
	for i, k := range d.downKeys {
		if k == key {
			d.downKeys = append(d.downKeys[:i], d.downKeys[i+1:]...)
			return
		}
	}
}
