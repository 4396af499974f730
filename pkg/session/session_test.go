package session

import (
	"net"
	"testing"

	"github.com/rfbengine/server/pkg/buffer"
	"github.com/rfbengine/server/pkg/framebuffer"
	"github.com/rfbengine/server/pkg/rfb/types"
)

func newTestSession(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	fb := framebuffer.New(4, 4, "t")
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })
	buf := buffer.NewReadWriteBuffer(server)
	t.Cleanup(buf.Close)
	s := New(fb, buf, nil)
	t.Cleanup(s.Close)
	return s, client
}

func TestSetPixelFormatRejectsColorMapped(t *testing.T) {
	s, _ := newTestSession(t)
	before := s.PixelFormat()

	s.SetPixelFormat(types.PixelFormat{TrueColour: 0, BPP: 8})

	after := s.PixelFormat()
	if !after.Equal(&before) {
		t.Fatalf("color-mapped SetPixelFormat changed the canonical format: %+v", after)
	}
}

func TestSetPixelFormatAcceptsTrueColour(t *testing.T) {
	s, _ := newTestSession(t)
	pf := types.PixelFormat{
		BPP: 16, Depth: 16, TrueColour: 1,
		RedMax: 0x1f, GreenMax: 0x3f, BlueMax: 0x1f,
		RedShift: 11, GreenShift: 5, BlueShift: 0,
	}
	s.SetPixelFormat(pf)
	if got := s.PixelFormat(); !got.Equal(&pf) {
		t.Fatalf("expected pixel format %+v, got %+v", pf, got)
	}
}

func TestSetEncodingsFirstSeenPseudoEncodingWins(t *testing.T) {
	s, _ := newTestSession(t)
	// -23 -> quality 9 (first), -30 -> quality 2 (must be ignored).
	s.SetEncodings([]int32{CodeRawAlias, -23, -30, -256})

	s.mu.Lock()
	q, c := s.quality, s.compression
	encs := append([]int32(nil), s.clientEncs...)
	s.mu.Unlock()

	if q != 9 {
		t.Fatalf("expected first-seen quality 9, got %d", q)
	}
	if c != 0 {
		t.Fatalf("expected first-seen compression 0, got %d", c)
	}
	if len(encs) != 1 || encs[0] != CodeRawAlias {
		t.Fatalf("expected pseudo-encodings stripped from client preference list, got %v", encs)
	}
}

func TestScheduleCopyRectDemotesOverlappingDifferentOffset(t *testing.T) {
	s, _ := newTestSession(t)

	s.ScheduleCopyRect(CopyRecord{SrcX: 0, SrcY: 0, W: 2, H: 2, DX: 1, DY: 0})
	s.ScheduleCopyRect(CopyRecord{SrcX: 0, SrcY: 0, W: 2, H: 2, DX: 2, DY: 0})

	s.copyMu.Lock()
	n := len(s.copies)
	s.copyMu.Unlock()
	if n != 1 {
		t.Fatalf("expected overlapping older copy to be demoted, queue has %d entries", n)
	}

	if !s.sub.Pending() {
		t.Fatal("expected the demoted copy's destination to be marked dirty")
	}
}

func TestScheduleCopyRectKeepsSameOffsetEntries(t *testing.T) {
	s, _ := newTestSession(t)

	s.ScheduleCopyRect(CopyRecord{SrcX: 0, SrcY: 0, W: 2, H: 2, DX: 1, DY: 0})
	s.ScheduleCopyRect(CopyRecord{SrcX: 0, SrcY: 2, W: 2, H: 2, DX: 1, DY: 0})

	s.copyMu.Lock()
	n := len(s.copies)
	s.copyMu.Unlock()
	if n != 2 {
		t.Fatalf("expected both same-offset copies to survive, got %d", n)
	}
}

func TestRequestUpdateNonIncrementalMarksFull(t *testing.T) {
	s, _ := newTestSession(t)
	req := &types.FrameBufferUpdateRequest{IncrementalFlag: 0, Width: 4, Height: 4}
	s.RequestUpdate(req)

	if !s.sub.Pending() {
		t.Fatal("expected non-incremental request to mark the requested rectangle dirty")
	}
}

// CodeRawAlias stands in for an ordinary (non-pseudo) encoding number in
// these tests, matching the published value of Raw.
const CodeRawAlias = 0
