// Package encodings implements the RFB encoder family: Raw, CopyRect, RRE,
// CoRRE, Hextile, Zlib, ZlibHex, ZRLE, ZYWRLE, Tight, and TightPng, plus the
// shared primitives (CPIXEL packing, palette detection, compact-length
// encoding, tile iteration) they all build on.
package encodings

import (
	"io"

	"github.com/rfbengine/server/pkg/rfb/translate"
	"github.com/rfbengine/server/pkg/rfb/types"
)

// Codes for the RFB encodings this engine can produce. CopyRect is handled
// outside the Encoder dispatch list because it needs source coordinates
// that come from the CopyRect queue, not from the rectangle's pixel
// content; see the session's copy-rect scheduler.
const (
	CodeRaw      int32 = 0
	CodeCopyRect int32 = 1
	CodeRRE      int32 = 2
	CodeCoRRE    int32 = 4
	CodeHextile  int32 = 5
	CodeZlib     int32 = 6
	CodeTight    int32 = 7
	CodeZlibHex  int32 = 8
	CodeZRLE     int32 = 16
	CodeZYWRLE   int32 = 17 // not a registered RFB number on the wire; see note in zywrle.go
	CodeTightPNG int32 = -260
)

// Context is the per-rectangle state an Encoder needs beyond the pixel
// data itself: the translator for the client's negotiated PixelFormat, the
// persistent compression-stream cache, and the client's requested
// quality/compression levels.
type Context struct {
	Translator  *translate.Translator
	Streams     *Streams
	Quality     int // 0-9, TightVNC JPEG quality pseudo-encoding
	Compression int // 0-9, zlib compression level pseudo-encoding
}

// Encoder produces the wire payload for one rectangle (the rectangle
// header itself is written by the caller; Encoder only writes the
// encoding-specific body).
type Encoder interface {
	Code() int32
	Encode(w io.Writer, ctx *Context, pix []byte, stride int, rect types.Rectangle) error
}

// priorityOrder is the encoding-selection priority used when a client
// advertises more than one supported encoding: Tight beats TightPng beats
// ZRLE beats ZYWRLE beats ZlibHex beats Zlib beats Hextile beats CoRRE beats
// RRE beats Raw, which is always available as the fallback of last resort.
var priorityOrder = []int32{
	CodeTight, CodeTightPNG, CodeZRLE, CodeZYWRLE, CodeZlibHex, CodeZlib, CodeHextile, CodeCoRRE, CodeRRE, CodeRaw,
}

// Registry maps encoding codes to the encoder instances this engine
// supports (encoders are stateless themselves; all mutable state lives in
// Context.Streams, which is per-session).
type Registry struct {
	byCode map[int32]Encoder
}

// NewRegistry builds a Registry with one instance of every encoder this
// engine supports. ZYWRLE is keyed under its internal-only selection code
// (CodeZYWRLE) rather than e.Code(), because its Code() deliberately
// reports CodeZRLE for wire-header purposes and would otherwise collide
// with the plain ZRLEEncoder's registry entry.
func NewRegistry() *Registry {
	r := &Registry{byCode: make(map[int32]Encoder)}
	for _, e := range []Encoder{
		&RawEncoder{},
		&RREEncoder{},
		&CoRREEncoder{},
		&HextileEncoder{},
		&ZlibEncoder{},
		&ZlibHexEncoder{},
		&ZRLEEncoder{},
		&TightEncoder{},
		&TightPNGEncoder{},
	} {
		r.byCode[e.Code()] = e
	}
	r.byCode[CodeZYWRLE] = &ZYWRLEEncoder{}
	return r
}

// zywrleQualityThreshold is the JPEG-quality pseudo-encoding level below
// which a client advertising ZRLE gets ZYWRLE's wavelet-prefiltered
// variant instead of plain ZRLE: low quality settings mean the client
// already wants aggressive compression over fidelity, matching the
// reference server's practice of reserving WRLE for low-bandwidth links.
const zywrleQualityThreshold = 7

// Select returns the highest-priority encoder both sides support, given the
// client's ordered preference list and requested quality, falling back to
// Raw when nothing else matches (Raw is always implicitly available per
// §4.5.1). ZYWRLE has no wire encoding number of its own: a client that
// advertises ZRLE is offered ZYWRLE in its place whenever quality is low
// enough to want the wavelet prefilter (see zywrle.go).
func (r *Registry) Select(clientPrefs []int32, quality int) Encoder {
	supported := make(map[int32]bool, len(clientPrefs))
	for _, c := range clientPrefs {
		supported[c] = true
	}
	for _, code := range priorityOrder {
		switch code {
		case CodeRaw, CodeZYWRLE:
			continue
		case CodeZRLE:
			if !supported[CodeZRLE] {
				continue
			}
			if quality < zywrleQualityThreshold {
				if e, ok := r.byCode[CodeZYWRLE]; ok {
					return e
				}
			}
			if e, ok := r.byCode[CodeZRLE]; ok {
				return e
			}
		default:
			if supported[code] {
				if e, ok := r.byCode[code]; ok {
					return e
				}
			}
		}
	}
	return r.byCode[CodeRaw]
}

// Get returns the encoder for a specific code, or nil if unknown.
func (r *Registry) Get(code int32) Encoder { return r.byCode[code] }

// FallbackChain is the EncodingFailure recovery order: Tight, then ZRLE,
// then Zlib, then Raw. The session is responsible for skipping any code
// here the client never advertised, except Raw, which §7 always allows as
// the last resort even when the client didn't list it (see S6).
func (r *Registry) FallbackChain() []int32 {
	return []int32{CodeTight, CodeZRLE, CodeZlib, CodeRaw}
}
