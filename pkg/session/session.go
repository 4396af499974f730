// Package session holds the in-engine, per-client mutable state described
// by the protocol state machine: negotiated PixelFormat, the translator it
// implies, the client's ordered encoding preference, the desired JPEG
// quality and zlib compression levels, the CopyRect queue, and the dirty
// region subscription that drives the update loop. pkg/rfb/events mutates
// a Session in response to client messages; pkg/rfb drives its update
// loop and owns the transport it reads from and writes to.
package session

import (
	"bytes"
	"sync"

	"github.com/rfbengine/server/pkg/buffer"
	"github.com/rfbengine/server/pkg/framebuffer"
	"github.com/rfbengine/server/pkg/internal/log"
	"github.com/rfbengine/server/pkg/internal/util"
	"github.com/rfbengine/server/pkg/rfb/encodings"
	"github.com/rfbengine/server/pkg/rfb/translate"
	"github.com/rfbengine/server/pkg/rfb/types"
)

// defaultQuality and defaultCompression are the TightVNC pseudo-encoding
// levels assumed until the client advertises otherwise, per §3.
const (
	defaultQuality     = 5
	defaultCompression = 5
)

// EventSink receives the input events and lifecycle notifications a
// Session produces, implemented by whatever owns screen capture and input
// injection (the embedder, per §1's "external collaborator" framing).
type EventSink interface {
	KeyEvent(ev *types.KeyEvent)
	PointerEvent(ev *types.PointerEvent)
	CutText(ev *types.ClientCutText)
	ClientConnected(s *Session)
	ClientDisconnected(s *Session)
}

// CopyRecord is one queued CopyRect: copy the w x h block at (srcX, srcY)
// to (srcX+dx, srcY+dy), per §3's "CopyRect record" attribute.
type CopyRecord struct {
	SrcX, SrcY, W, H int
	DX, DY           int
}

func (c CopyRecord) destRect() types.Rectangle {
	return types.Rectangle{X: uint16(c.SrcX + c.DX), Y: uint16(c.SrcY + c.DY), Width: uint16(c.W), Height: uint16(c.H)}
}

// Session is one connected client's protocol-level state machine.
type Session struct {
	buf  *buffer.ReadWriter
	fb   *framebuffer.Framebuffer
	sub  *framebuffer.Subscriber
	sink EventSink

	registry *encodings.Registry

	mu          sync.Mutex
	format      types.PixelFormat
	translator  *translate.Translator
	clientEncs  []int32 // ordered, client-preferred, excludes pseudo-encodings
	quality     int
	compression int
	pending     *types.FrameBufferUpdateRequest
	streams     *encodings.Streams

	copyMu sync.Mutex
	copies []CopyRecord

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Session bound to fb, writing protocol messages through buf
// and forwarding input events and lifecycle notifications to sink.
func New(fb *framebuffer.Framebuffer, buf *buffer.ReadWriter, sink EventSink) *Session {
	s := &Session{
		buf:         buf,
		fb:          fb,
		sub:         fb.Subscribe(),
		sink:        sink,
		registry:    encodings.NewRegistry(),
		format:      types.ServerPixelFormat,
		translator:  translate.New(types.ServerPixelFormat),
		quality:     defaultQuality,
		compression: defaultCompression,
		streams:     encodings.NewStreams(defaultCompression),
		done:        make(chan struct{}),
	}
	return s
}

// Framebuffer returns the framebuffer this session watches.
func (s *Session) Framebuffer() *framebuffer.Framebuffer { return s.fb }

// Done returns the channel closed when the session has been torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close unsubscribes from the framebuffer and signals the update loop to
// stop. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.fb.Unsubscribe(s.sub)
		close(s.done)
		if s.sink != nil {
			s.sink.ClientDisconnected(s)
		}
	})
}

// PixelFormat returns the client's currently negotiated PixelFormat.
func (s *Session) PixelFormat() types.PixelFormat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// SetPixelFormat installs a new client PixelFormat and rebuilds the
// translator for it, resetting every persistent compression stream in
// lockstep since their dictionaries were built over bytes in the old
// format (§9, ZYWRLE/ZRLE note). Per §3's PixelFormat invariant, a
// colour-mapped (non-true-colour) request is not supported for output:
// the server keeps its own canonical format and requires the client to
// accept the SetPixelFormat it was already told about at ServerInit.
func (s *Session) SetPixelFormat(pf types.PixelFormat) {
	if pf.TrueColour == 0 {
		log.Warning("Client requested color-mapped pixel format; keeping canonical true-colour format.")
		return
	}
	s.mu.Lock()
	s.format = pf
	s.translator = translate.New(pf)
	s.mu.Unlock()
	s.streams.Reset()
	s.sub.MarkFull(fullRect(s.fb))
}

// SetEncodings installs the client's ordered encoding preference list and
// extracts the quality/compression pseudo-encodings from it, per RFC 6143
// §7.7.1's reserved pseudo-encoding ranges (JPEG quality: -32..-23, level =
// pseudo+32; compression level: -256..-247, level = pseudo+256).
func (s *Session) SetEncodings(encs []int32) {
	var real []int32
	quality, compression := defaultQuality, defaultCompression
	sawQuality, sawCompression := false, false
	for _, e := range encs {
		switch {
		case e >= -32 && e <= -23:
			if !sawQuality {
				quality = int(e + 32)
				sawQuality = true
			}
		case e >= -256 && e <= -247:
			if !sawCompression {
				compression = int(e + 256)
				sawCompression = true
			}
		default:
			real = append(real, e)
		}
	}
	s.mu.Lock()
	s.clientEncs = real
	s.quality = quality
	s.compression = compression
	s.mu.Unlock()
	log.Infof("Client encodings: %v (quality=%d, compression=%d)", real, quality, compression)
}

// RequestUpdate records the client's latest FramebufferUpdateRequest. A
// non-incremental request forces the whole requested rectangle to be
// treated as dirty, per §4.3's ClientInit/update semantics.
func (s *Session) RequestUpdate(req *types.FrameBufferUpdateRequest) {
	s.mu.Lock()
	s.pending = req
	s.mu.Unlock()
	if !req.Incremental() {
		s.sub.MarkFull(req.Rect())
	}
	s.wake()
}

// ScheduleCopyRect enqueues a CopyRect and demotes any previously queued
// copy whose destination it overlaps with a different offset, per §4.6:
// "if a later schedule call introduces a copy whose destination
// intersects a pending copy with a different (dx,dy), the older entry's
// destination is added to the dirty region and removed from the queue."
func (s *Session) ScheduleCopyRect(rec CopyRecord) {
	dest := rec.destRect()
	s.copyMu.Lock()
	kept := make([]CopyRecord, 0, len(s.copies))
	for _, existing := range s.copies {
		sameOffset := existing.DX == rec.DX && existing.DY == rec.DY
		if !sameOffset && existing.destRect().Overlaps(dest) {
			s.sub.MarkFull(existing.destRect())
			continue
		}
		kept = append(kept, existing)
	}
	s.copies = append(kept, rec)
	s.copyMu.Unlock()
	s.wake()
}

// DoCopyRect immediately applies every queued copy to the framebuffer
// (so subsequent reads, including this same flush's dirty encoding, see
// the moved pixels) while preserving the queue entries for emission.
func (s *Session) DoCopyRect() {
	s.copyMu.Lock()
	pending := append([]CopyRecord(nil), s.copies...)
	s.copyMu.Unlock()
	for _, rec := range pending {
		s.fb.CopyRegion(types.Rectangle{X: uint16(rec.SrcX), Y: uint16(rec.SrcY), Width: uint16(rec.W), Height: uint16(rec.H)}, rec.SrcX+rec.DX, rec.SrcY+rec.DY)
	}
}

// DispatchKeyEvent forwards a decoded KeyEvent to the sink.
func (s *Session) DispatchKeyEvent(ev *types.KeyEvent) {
	if s.sink != nil {
		s.sink.KeyEvent(ev)
	}
}

// DispatchPointerEvent forwards a decoded PointerEvent to the sink.
func (s *Session) DispatchPointerEvent(ev *types.PointerEvent) {
	if s.sink != nil {
		s.sink.PointerEvent(ev)
	}
}

// DispatchClientCutText forwards decoded clipboard text to the sink.
func (s *Session) DispatchClientCutText(ev *types.ClientCutText) {
	if s.sink != nil {
		s.sink.CutText(ev)
	}
}

// SendCutText pushes a ServerCutText message to the client, used when the
// embedder's own clipboard changes (§6 SendCutText).
func (s *Session) SendCutText(text []byte) {
	var out bytes.Buffer
	util.Write(&out, uint8(3)) // ServerCutText message type
	util.Write(&out, [3]byte{})
	util.Write(&out, uint32(len(text)))
	out.Write(text)
	s.buf.Dispatch(out.Bytes())
}

func (s *Session) wake() { s.sub.Poke() }

func fullRect(fb *framebuffer.Framebuffer) types.Rectangle {
	w, h := fb.Dimensions()
	return types.Rectangle{Width: uint16(w), Height: uint16(h)}
}
