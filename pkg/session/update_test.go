package session

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/rfbengine/server/pkg/buffer"
	"github.com/rfbengine/server/pkg/framebuffer"
	"github.com/rfbengine/server/pkg/rfb/encodings"
	"github.com/rfbengine/server/pkg/rfb/types"
)

// readExactly reads n bytes from r within a generous deadline, failing the
// test rather than hanging forever if the session never writes them.
func readExactly(t *testing.T, r io.Reader, n int) []byte {
	t.Helper()
	out := make([]byte, n)
	done := make(chan error, 1)
	go func() {
		_, err := io.ReadFull(r, out)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("read %d bytes: %v", n, err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting to read %d bytes", n)
	}
	return out
}

func TestRunFlushesRawFramebufferUpdate(t *testing.T) {
	fb := framebuffer.New(2, 2, "t")
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	buf := buffer.NewReadWriteBuffer(server)
	defer buf.Close()

	s := New(fb, buf, nil)
	defer s.Close()

	// Force Raw by only advertising the Raw encoding.
	s.SetEncodings([]int32{encodings.CodeRaw})

	go s.Run()

	req := &types.FrameBufferUpdateRequest{IncrementalFlag: 0, Width: 2, Height: 2}
	s.RequestUpdate(req)

	header := readExactly(t, client, 4)
	if header[0] != cmdFramebufferUpdate {
		t.Fatalf("expected FramebufferUpdate message type 0, got %d", header[0])
	}
	numRects := uint16(header[2])<<8 | uint16(header[3])
	if numRects != 1 {
		t.Fatalf("expected exactly 1 rectangle, got %d", numRects)
	}

	rectHeader := readExactly(t, client, 12)
	w := uint16(rectHeader[4])<<8 | uint16(rectHeader[5])
	h := uint16(rectHeader[6])<<8 | uint16(rectHeader[7])
	code := int32(rectHeader[8])<<24 | int32(rectHeader[9])<<16 | int32(rectHeader[10])<<8 | int32(rectHeader[11])
	if w != 2 || h != 2 {
		t.Fatalf("expected a 2x2 rectangle, got %dx%d", w, h)
	}
	if code != encodings.CodeRaw {
		t.Fatalf("expected Raw encoding code %d, got %d", encodings.CodeRaw, code)
	}

	// Raw body is bytesPerPixel * w * h; the canonical server format is
	// 32bpp, so 2x2 pixels is 16 bytes.
	readExactly(t, client, 16)
}

func TestRunEmitsCopyRectBeforeDirtyRect(t *testing.T) {
	fb := framebuffer.New(4, 4, "t")
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	buf := buffer.NewReadWriteBuffer(server)
	defer buf.Close()

	s := New(fb, buf, nil)
	defer s.Close()

	s.SetEncodings([]int32{encodings.CodeRaw})
	s.ScheduleCopyRect(CopyRecord{SrcX: 0, SrcY: 0, W: 2, H: 2, DX: 2, DY: 2})

	go s.Run()

	req := &types.FrameBufferUpdateRequest{IncrementalFlag: 0, Width: 4, Height: 4}
	s.RequestUpdate(req)

	header := readExactly(t, client, 4)
	numRects := uint16(header[2])<<8 | uint16(header[3])
	if numRects < 1 {
		t.Fatalf("expected at least 1 rectangle, got %d", numRects)
	}

	firstRectHeader := readExactly(t, client, 12)
	code := int32(firstRectHeader[8])<<24 | int32(firstRectHeader[9])<<16 | int32(firstRectHeader[10])<<8 | int32(firstRectHeader[11])
	if code != encodings.CodeCopyRect {
		t.Fatalf("expected the queued CopyRect to be emitted first, got encoding %d", code)
	}
	// CopyRect body is the 4-byte source position.
	readExactly(t, client, 4)
}
