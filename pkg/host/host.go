// Package host is the boundary API an embedder links against: it owns the
// shared framebuffer and the listening server, and exposes the handful of
// calls the data model's "external collaborator" (whatever produces frames
// and consumes input) needs — start/stop, publish a frame, schedule a
// CopyRect, push clipboard text, and connect out to a waiting viewer or
// repeater.
package host

import (
	"sync"

	"github.com/rfbengine/server/pkg/config"
	"github.com/rfbengine/server/pkg/framebuffer"
	"github.com/rfbengine/server/pkg/rfb"
	"github.com/rfbengine/server/pkg/rfb/rfberr"
	"github.com/rfbengine/server/pkg/rfb/types"
	"github.com/rfbengine/server/pkg/session"
)

// EventSink is re-exported so embedders only need to import this package,
// not pkg/session, to implement input-event and lifecycle callbacks.
type EventSink = session.EventSink

// CopyRect describes one queued CopyRect, mirroring session.CopyRecord at
// the host boundary so embedders never need to import pkg/session directly
// just to call ScheduleCopyRect.
type CopyRect struct {
	SrcX, SrcY, W, H int
	DX, DY           int
}

// Host owns the single shared framebuffer and the server listening on it.
// Safe for concurrent use; intended to be a process-wide singleton, per
// Init/StartServer/StopServer/IsActive's "external API" framing.
type Host struct {
	mu     sync.Mutex
	fb     *framebuffer.Framebuffer
	server *rfb.Server
	active bool
}

// New builds a Host with no framebuffer or listener yet; call NewFramebuffer
// then StartServer before connecting clients.
func New() *Host { return &Host{} }

// Init builds a Host and allocates its framebuffer in one call, named to
// match the external API's Init/StartServer/StopServer/IsActive grouping;
// equivalent to New followed by NewFramebuffer.
func Init(width, height int, name string) *Host {
	h := New()
	h.NewFramebuffer(width, height, name)
	return h
}

// NewFramebuffer allocates (or replaces) the shared framebuffer backing
// every future session. Call before StartServer, or call Resize instead if
// the server is already running.
func (h *Host) NewFramebuffer(width, height int, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fb = framebuffer.New(width, height, name)
}

// Resize reallocates the shared framebuffer in place, per the data model's
// Resize operation; every connected session is re-dirtied over the whole
// surface on its next flush.
func (h *Host) Resize(width, height int) error {
	h.mu.Lock()
	fb := h.fb
	h.mu.Unlock()
	if fb == nil {
		return rfberr.Wrap(rfberr.ErrResizeFailure, "no framebuffer allocated")
	}
	return fb.Resize(width, height)
}

// StartServer binds the listening socket and begins accepting clients,
// delivering input events and lifecycle notifications to sink.
func (h *Host) StartServer(cfg config.ServerConfig, sink EventSink) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fb == nil {
		h.fb = framebuffer.New(cfg.Width, cfg.Height, cfg.DesktopName)
	}
	srv := rfb.NewServer(cfg, h.fb)
	if err := srv.Start(sink); err != nil {
		return err
	}
	h.server = srv
	h.active = true
	return nil
}

// StopServer closes the listener and every connected session.
func (h *Host) StopServer() error {
	h.mu.Lock()
	srv := h.server
	h.active = false
	h.server = nil
	h.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Stop()
}

// IsActive reports whether the server is currently accepting/serving
// clients.
func (h *Host) IsActive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// UpdateFramebuffer publishes a full-surface frame, per the data model's
// Write operation: length must equal width*height*4 for the framebuffer's
// current dimensions.
func (h *Host) UpdateFramebuffer(pix []byte) error {
	fb := h.framebuffer()
	if fb == nil {
		return rfberr.Wrap(rfberr.ErrResizeFailure, "no framebuffer allocated")
	}
	return fb.Write(pix)
}

// MarkDirty unions rect into every connected session's dirty accumulator,
// for embedders that already know which region changed and want to avoid
// republishing the whole frame.
func (h *Host) MarkDirty(x, y, width, height int) {
	fb := h.framebuffer()
	if fb == nil {
		return
	}
	fb.MarkDirty(types.Rectangle{X: uint16(x), Y: uint16(y), Width: uint16(width), Height: uint16(height)})
}

// ScheduleCopyRect queues a CopyRect on every currently connected session,
// per §4.6's host-level broadcast framing: the embedder knows a region
// moved on screen and wants every client to receive a CopyRect instead of
// a re-encoded pixel rectangle.
func (h *Host) ScheduleCopyRect(cr CopyRect) {
	srv := h.currentServer()
	if srv == nil {
		return
	}
	rec := session.CopyRecord{SrcX: cr.SrcX, SrcY: cr.SrcY, W: cr.W, H: cr.H, DX: cr.DX, DY: cr.DY}
	for _, sess := range srv.ActiveSessions() {
		sess.ScheduleCopyRect(rec)
	}
}

// DoCopyRect immediately applies every session's queued copies to the
// shared framebuffer without waiting for their next flush, letting the
// embedder read back a consistent frame right after scheduling one.
func (h *Host) DoCopyRect() {
	srv := h.currentServer()
	if srv == nil {
		return
	}
	for _, sess := range srv.ActiveSessions() {
		sess.DoCopyRect()
	}
}

// SendCutText pushes a ServerCutText message to every connected session.
func (h *Host) SendCutText(text []byte) {
	srv := h.currentServer()
	if srv == nil {
		return
	}
	srv.BroadcastCutText(text)
}

// ConnectReverse dials a listening viewer and runs the server-initiated
// handshake against it.
func (h *Host) ConnectReverse(addr string, sink EventSink) error {
	srv := h.currentServer()
	if srv == nil {
		return rfberr.Wrap(rfberr.ErrIoError, "server not started")
	}
	return srv.ConnectReverse(addr, sink)
}

// ConnectRepeater dials a repeater with the given identifier and runs the
// standard handshake against the forwarded connection.
func (h *Host) ConnectRepeater(addr, id string, sink EventSink) error {
	srv := h.currentServer()
	if srv == nil {
		return rfberr.Wrap(rfberr.ErrIoError, "server not started")
	}
	return srv.ConnectRepeater(addr, id, sink)
}

func (h *Host) framebuffer() *framebuffer.Framebuffer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fb
}

func (h *Host) currentServer() *rfb.Server {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.server
}
