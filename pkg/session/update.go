package session

import (
	"bytes"

	"github.com/rfbengine/server/pkg/internal/util"
	"github.com/rfbengine/server/pkg/rfb/encodings"
	"github.com/rfbengine/server/pkg/rfb/types"
)

// Server->client message type for FramebufferUpdate. ServerCutText (type
// 3) is written inline by SendCutText in session.go.
const cmdFramebufferUpdate = 0

// maxTileDim is the largest rectangle dimension CoRRE's 1-byte coordinate
// space can address; rectangles larger than this are split into tiles
// before being handed to the CoRRE encoder.
const maxTileDim = encodings.CoRREMaxTile

// Run drives the update loop described by §4's Running state: block until
// woken by a new dirty region, a freshly queued CopyRect, or a new pending
// request, then flush whenever a pending request's rectangle intersects
// outstanding work. Returns when the session is closed.
func (s *Session) Run() {
	for {
		select {
		case <-s.sub.Notify():
			s.maybeFlush()
		case <-s.done:
			return
		}
	}
}

func (s *Session) maybeFlush() {
	s.mu.Lock()
	req := s.pending
	s.mu.Unlock()
	if req == nil {
		return
	}

	want := req.Rect()
	s.copyMu.Lock()
	hasCopies := len(s.copies) > 0
	s.copyMu.Unlock()
	dirty := s.sub.Drain(want)
	if !hasCopies && len(dirty) == 0 {
		return
	}

	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()

	s.flush(dirty)
}

// flush emits one FramebufferUpdate message: every queued CopyRect first
// (per §4.6/Property 6), then the dirty rectangles using the client's
// highest-priority supported encoder, splitting any rectangle too large
// for the chosen tiled encoder's coordinate space.
func (s *Session) flush(dirty []types.Rectangle) {
	s.DoCopyRect()

	s.copyMu.Lock()
	copies := s.copies
	s.copies = nil
	s.copyMu.Unlock()

	s.mu.Lock()
	encoder := s.registry.Select(s.clientEncs, s.quality)
	ctx := &encodings.Context{
		Translator:  s.translator,
		Streams:     s.streams,
		Quality:     s.quality,
		Compression: s.compression,
	}
	s.mu.Unlock()

	pix, _, _ := s.fb.Snapshot()
	stride := s.fb.Stride()

	// copies and dirty rectangles are rendered into their own buffers first
	// because the FramebufferUpdate header's rectangle count must reflect
	// the actual number of rectangle headers written, not the number of
	// source rectangles: a tiled encoder (CoRRE) can expand one dirty
	// rectangle into several wire rectangles via splitRect, and a failed
	// encode falls back to a single replacement rectangle.
	var copyBody bytes.Buffer
	for _, rec := range copies {
		writeRectHeader(&copyBody, rec.destRect(), encodings.CodeCopyRect)
		encodings.WriteCopyRectBody(&copyBody, types.CopyRectBody{SrcX: uint16(rec.SrcX), SrcY: uint16(rec.SrcY)})
	}

	var dirtyBody bytes.Buffer
	numRects := len(copies)
	for _, rect := range dirty {
		n, err := encodeRect(&dirtyBody, encoder, ctx, pix, stride, rect)
		numRects += n
		if err != nil {
			s.handleEncodeFailure(&dirtyBody, ctx, pix, stride, rect, err)
			numRects++
		}
	}

	var out bytes.Buffer
	util.Write(&out, uint8(cmdFramebufferUpdate))
	util.Write(&out, uint8(0))
	util.Write(&out, uint16(numRects))
	out.Write(copyBody.Bytes())
	out.Write(dirtyBody.Bytes())

	s.buf.Dispatch(out.Bytes())
}

func writeRectHeader(w *bytes.Buffer, rect types.Rectangle, code int32) {
	util.Write(w, rect.X)
	util.Write(w, rect.Y)
	util.Write(w, rect.Width)
	util.Write(w, rect.Height)
	util.Write(w, code)
}

// encodeRect writes one rectangle, tiling it first when the chosen
// encoder cannot address it in one piece (CoRRE's 1-byte coordinates), and
// returns the number of rectangle headers actually written so the caller
// can keep the FramebufferUpdate header's count accurate.
func encodeRect(w *bytes.Buffer, enc encodings.Encoder, ctx *encodings.Context, pix []byte, stride int, rect types.Rectangle) (int, error) {
	if enc.Code() == encodings.CodeCoRRE && (rect.Width > maxTileDim || rect.Height > maxTileDim) {
		tiles := splitRect(rect, maxTileDim)
		n := 0
		for _, t := range tiles {
			if err := encodeOneRect(w, enc, ctx, pix, stride, t); err != nil {
				return n, err
			}
			n++
		}
		return n, nil
	}
	if err := encodeOneRect(w, enc, ctx, pix, stride, rect); err != nil {
		return 0, err
	}
	return 1, nil
}

func encodeOneRect(w *bytes.Buffer, enc encodings.Encoder, ctx *encodings.Context, pix []byte, stride int, rect types.Rectangle) error {
	var body bytes.Buffer
	if err := enc.Encode(&body, ctx, pix, stride, rect); err != nil {
		return err
	}
	writeRectHeader(w, rect, enc.Code())
	w.Write(body.Bytes())
	return nil
}

func splitRect(rect types.Rectangle, tile int) []types.Rectangle {
	var out []types.Rectangle
	for y := 0; y < int(rect.Height); y += tile {
		h := minInt(int(rect.Height)-y, tile)
		for x := 0; x < int(rect.Width); x += tile {
			w := minInt(int(rect.Width)-x, tile)
			out = append(out, types.Rectangle{X: rect.X + uint16(x), Y: rect.Y + uint16(y), Width: uint16(w), Height: uint16(h)})
		}
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// handleEncodeFailure implements the EncodingFailure recovery chain from
// §7: Tight -> ZRLE -> Zlib -> Raw. Per encodings.Registry.FallbackChain's
// doc comment, every code but Raw is skipped unless the client actually
// advertised it, since sending a rectangle in an encoding the client never
// agreed to support would just trade one undecodable rectangle for
// another; Raw is always attempted even if unadvertised, as the one
// encoding every client must be able to decode.
func (s *Session) handleEncodeFailure(w *bytes.Buffer, ctx *encodings.Context, pix []byte, stride int, rect types.Rectangle, cause error) {
	s.mu.Lock()
	supported := make(map[int32]bool, len(s.clientEncs))
	for _, c := range s.clientEncs {
		supported[c] = true
	}
	s.mu.Unlock()

	for _, code := range s.registry.FallbackChain() {
		if code != encodings.CodeRaw && !supported[code] {
			continue
		}
		enc := s.registry.Get(code)
		if enc == nil {
			continue
		}
		var scratch bytes.Buffer
		if err := enc.Encode(&scratch, ctx, pix, stride, rect); err == nil {
			writeRectHeader(w, rect, enc.Code())
			w.Write(scratch.Bytes())
			return
		}
	}
}
