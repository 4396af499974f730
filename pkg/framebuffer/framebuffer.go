// Package framebuffer implements the shared pixel store described by the
// data model: a single writer (the embedder) publishes canonical RGBA32
// pixels and marks regions dirty; many readers (client sessions) observe a
// consistent width/height and read-only pixel bytes.
package framebuffer

import (
	"sync"
	"sync/atomic"

	"github.com/rfbengine/server/pkg/rfb/types"
)

// BytesPerPixel is the canonical internal pixel size: 32-bit R,G,B,X.
const BytesPerPixel = 4

// Framebuffer is the shared pixel store. Exactly one goroutine (the
// embedder) calls Write/Resize; any number of goroutines may call
// Snapshot/Dimensions/CopyRegion concurrently.
type Framebuffer struct {
	width, height atomic.Int32 // both tracked as int32; spec requires only 16-bit range

	mu   sync.RWMutex // guards buf during resize; readers take RLock to snapshot
	buf  []byte
	name string

	subMu sync.Mutex
	subs  map[*Subscriber]struct{}
}

// New creates a Framebuffer with the given dimensions, backed by a
// zero-filled buffer of stride*height bytes.
func New(width, height int, name string) *Framebuffer {
	fb := &Framebuffer{
		buf:  make([]byte, width*height*BytesPerPixel),
		name: name,
		subs: make(map[*Subscriber]struct{}),
	}
	fb.width.Store(int32(width))
	fb.height.Store(int32(height))
	return fb
}

// Name returns the desktop name advertised at handshake time.
func (fb *Framebuffer) Name() string { return fb.name }

// Dimensions returns the current width and height. Safe for concurrent use
// with Resize: Resize swaps the buffer and publishes the new dimensions
// under the same write lock, so Snapshot, which reads both under the read
// lock, always returns a (width, height) pair its buffer is large enough for.
func (fb *Framebuffer) Dimensions() (width, height int) {
	return int(fb.width.Load()), int(fb.height.Load())
}

// Stride returns the byte width of one scanline at the current width.
func (fb *Framebuffer) Stride() int {
	w, _ := fb.Dimensions()
	return w * BytesPerPixel
}

// Subscriber receives dirty-region notifications and a per-session view of
// accumulated dirty rectangles. Each client session owns exactly one
// Subscriber, because — per the design notes — a global dirty region would
// either coalesce too aggressively or never clear.
type Subscriber struct {
	fb *Framebuffer

	mu     sync.Mutex
	dirty  []types.Rectangle
	notify chan struct{}
}

// Subscribe registers a new per-session dirty-region accumulator.
func (fb *Framebuffer) Subscribe() *Subscriber {
	s := &Subscriber{fb: fb, notify: make(chan struct{}, 1)}
	fb.subMu.Lock()
	fb.subs[s] = struct{}{}
	fb.subMu.Unlock()
	return s
}

// Unsubscribe removes a session's dirty-region accumulator. Call when the
// session closes.
func (fb *Framebuffer) Unsubscribe(s *Subscriber) {
	fb.subMu.Lock()
	delete(fb.subs, s)
	fb.subMu.Unlock()
}

// Notify returns a channel that receives a value whenever new dirty
// rectangles are available. Used by the session's update loop as the
// condition-variable-equivalent wait point described in §5.
func (s *Subscriber) Notify() <-chan struct{} { return s.notify }

// Poke wakes anything waiting on Notify without changing the dirty
// accumulator, used when a session needs its update loop to re-evaluate
// state that isn't itself a framebuffer dirty region (a new pending
// FramebufferUpdateRequest, a freshly queued CopyRect).
func (s *Subscriber) Poke() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscriber) markDirty(r types.Rectangle) {
	if r.Empty() {
		return
	}
	s.mu.Lock()
	s.dirty = unionRect(s.dirty, r)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// MarkFull forces the subscriber's entire accumulator to cover the given
// rectangle (used by non-incremental FramebufferUpdateRequest handling and
// by Resize, which must re-dirty the whole surface for every session).
func (s *Subscriber) MarkFull(r types.Rectangle) {
	s.mu.Lock()
	s.dirty = []types.Rectangle{r}
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Drain returns the accumulated dirty rectangles intersected with want.
// Rectangles lying wholly inside want are cleared; rectangles outside want,
// and rectangles only partly inside it, remain pending whole.
func (s *Subscriber) Drain(want types.Rectangle) []types.Rectangle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.dirty) == 0 {
		return nil
	}
	var hit []types.Rectangle
	var remaining []types.Rectangle
	for _, r := range s.dirty {
		overlap := r.Intersect(want)
		if overlap.Empty() {
			remaining = append(remaining, r)
			continue
		}
		hit = append(hit, overlap)
		// When part of r falls outside want, r stays pending whole (the hit
		// area is sent again later) rather than subtracting exact polygons,
		// matching the list-of-rectangles union the design notes call out as
		// sufficient.
		if overlap != r {
			remaining = append(remaining, r)
		}
	}
	s.dirty = remaining
	return simplify(hit)
}

// Pending reports whether any dirty rectangle is outstanding.
func (s *Subscriber) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty) > 0
}

// Write copies a full-surface pixel buffer into the backing store and marks
// the entire surface dirty for every session. length must equal
// stride*height exactly.
func (fb *Framebuffer) Write(data []byte) error {
	w, h := fb.Dimensions()
	want := w * h * BytesPerPixel
	if len(data) != want {
		return errInvalidLength(len(data), want)
	}
	fb.mu.Lock()
	copy(fb.buf, data)
	fb.mu.Unlock()
	// Publication fence: the copy above is visible to any goroutine that
	// observes the dirty mark below, because markDirty's channel send/mutex
	// unlock happens-after the unlock above.
	fb.markAllDirty(types.Rectangle{Width: uint16(w), Height: uint16(h)})
	return nil
}

// MarkDirty unions rect into every session's dirty accumulator.
func (fb *Framebuffer) MarkDirty(rect types.Rectangle) { fb.markAllDirty(rect) }

func (fb *Framebuffer) markAllDirty(rect types.Rectangle) {
	fb.subMu.Lock()
	subs := make([]*Subscriber, 0, len(fb.subs))
	for s := range fb.subs {
		subs = append(subs, s)
	}
	fb.subMu.Unlock()
	for _, s := range subs {
		s.markDirty(rect)
	}
}

// Snapshot returns a read-only copy of the current pixel buffer along with
// the dimensions it corresponds to. Sessions never mutate the returned
// slice.
func (fb *Framebuffer) Snapshot() (pix []byte, width, height int) {
	fb.mu.RLock()
	defer fb.mu.RUnlock()
	width, height = fb.Dimensions()
	pix = fb.buf
	return
}

func unionRect(existing []types.Rectangle, r types.Rectangle) []types.Rectangle {
	return simplify(append(existing, r))
}

// simplify merges rectangles that are exact duplicates or where one fully
// contains another; it does not attempt general polygon simplification, in
// line with the "list-of-rectangles union with periodic simplification"
// guidance.
func simplify(rs []types.Rectangle) []types.Rectangle {
	out := make([]types.Rectangle, 0, len(rs))
	for _, r := range rs {
		if r.Empty() {
			continue
		}
		absorbed := false
		for i, o := range out {
			if contains(o, r) {
				absorbed = true
				break
			}
			if contains(r, o) {
				out[i] = r
				absorbed = true
				break
			}
		}
		if !absorbed {
			out = append(out, r)
		}
	}
	return out
}

func contains(outer, inner types.Rectangle) bool {
	return inner.X >= outer.X && inner.Y >= outer.Y &&
		inner.X+inner.Width <= outer.X+outer.Width &&
		inner.Y+inner.Height <= outer.Y+outer.Height
}

type invalidLengthError struct{ got, want int }

func (e *invalidLengthError) Error() string {
	return "framebuffer: write length mismatch"
}

func errInvalidLength(got, want int) error { return &invalidLengthError{got, want} }
