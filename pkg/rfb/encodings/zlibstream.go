package encodings

import (
	"bytes"
	"compress/zlib"
)

// Streams is a small cache of persistent deflate streams, one per
// (encoding, sub-stream-id) pair, owned by a single client session. The RFB
// compliance requirement is that the deflate dictionary survives across
// FramebufferUpdate messages; resetting a stream starts a fresh dictionary
// and must only happen when the client's PixelFormat changes (because the
// byte stream semantics change) or when the session closes.
type Streams struct {
	level   int
	streams map[string]*persistentStream
}

// NewStreams creates an empty stream cache at the given zlib compression
// level (0-9).
func NewStreams(level int) *Streams {
	if level < 0 {
		level = 0
	}
	if level > 9 {
		level = 9
	}
	return &Streams{level: level, streams: make(map[string]*persistentStream)}
}

// SetLevel updates the compression level used by streams created from now
// on. Existing streams keep their original level; a level change alone
// does not require resetting a dictionary.
func (s *Streams) SetLevel(level int) {
	if level < 0 {
		level = 0
	}
	if level > 9 {
		level = 9
	}
	s.level = level
}

type persistentStream struct {
	buf *bytes.Buffer
	zw  *zlib.Writer
}

// Get returns the persistent stream for key, creating it lazily at the
// cache's current compression level.
func (s *Streams) Get(key string) *persistentStream {
	ps, ok := s.streams[key]
	if ok {
		return ps
	}
	buf := new(bytes.Buffer)
	zw, _ := zlib.NewWriterLevel(buf, s.level)
	ps = &persistentStream{buf: buf, zw: zw}
	s.streams[key] = ps
	return ps
}

// Compress writes data through the stream's deflate dictionary and returns
// the newly produced compressed bytes (the bytes produced by this call
// only, not the whole history).
func (ps *persistentStream) Compress(data []byte) ([]byte, error) {
	ps.buf.Reset()
	if _, err := ps.zw.Write(data); err != nil {
		return nil, err
	}
	if err := ps.zw.Flush(); err != nil {
		return nil, err
	}
	out := make([]byte, ps.buf.Len())
	copy(out, ps.buf.Bytes())
	return out, nil
}

// Reset resets every stream in the cache, discarding all dictionaries. Call
// on SetPixelFormat and on session teardown.
func (s *Streams) Reset() {
	s.streams = make(map[string]*persistentStream)
}
