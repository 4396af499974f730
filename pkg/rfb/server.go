// Package rfb implements the RFB server listener, session spawner, and
// protocol handshake described by §4.1/§4.2: it owns the accept loop, the
// reverse/repeater outbound connectors, and the registry of active
// sessions, while pkg/session owns each connected client's state machine.
package rfb

import (
	"net"
	"strconv"
	"sync"

	"github.com/rfbengine/server/pkg/config"
	"github.com/rfbengine/server/pkg/framebuffer"
	"github.com/rfbengine/server/pkg/internal/log"
	"github.com/rfbengine/server/pkg/rfb/rfberr"
	"github.com/rfbengine/server/pkg/session"
	"golang.org/x/net/netutil"
)

// Server owns the listening socket (when started), the shared framebuffer,
// and the registry of connected sessions.
type Server struct {
	cfg config.ServerConfig
	fb  *framebuffer.Framebuffer
	ver protocolVersion

	ln net.Listener

	mu       sync.RWMutex
	sessions map[*session.Session]struct{}
}

// NewServer builds a Server bound to fb, ready to Start. The caller
// supplies the framebuffer (and therefore its dimensions) separately from
// ServerConfig so the embedder can resize it independently of restarting
// the listener.
func NewServer(cfg config.ServerConfig, fb *framebuffer.Framebuffer) *Server {
	cfg = cfg.WithDefaults()
	return &Server{
		cfg:      cfg,
		fb:       fb,
		ver:      parseVersion(cfg.ProtocolVersion),
		sessions: make(map[*session.Session]struct{}),
	}
}

func parseVersion(s string) protocolVersion {
	switch s {
	case "3.3":
		return version33
	case "3.7":
		return version37
	default:
		return version38
	}
}

// Start binds the listening socket and begins accepting connections in the
// background, per §4.1's start(bind_addr, port). Returns once the socket
// is bound so the caller can learn an OS-assigned port immediately.
func (s *Server) Start(sink session.EventSink) error {
	addr := net.JoinHostPort(s.cfg.Interface, strconv.Itoa(int(s.cfg.Port)))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return rfberr.Wrap(rfberr.ErrIoError, "listen on %s: %v", addr, err)
	}
	if s.cfg.MaxClients > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxClients)
	}
	s.ln = ln
	go s.acceptLoop(sink)
	return nil
}

// Addr returns the listener's bound address, valid after Start succeeds.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stop closes the listener and every active session's socket.
func (s *Server) Stop() error {
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	s.mu.RLock()
	sessions := make([]*session.Session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()
	for _, sess := range sessions {
		sess.Close()
	}
	return err
}

// ActiveSessions returns a snapshot of the currently connected sessions.
func (s *Server) ActiveSessions() []*session.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*session.Session, 0, len(s.sessions))
	for sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// BroadcastCutText sends a ServerCutText message to every connected
// session, per §4.1's broadcast_cut_text(text).
func (s *Server) BroadcastCutText(text []byte) {
	for _, sess := range s.ActiveSessions() {
		sess.SendCutText(text)
	}
}

func (s *Server) acceptLoop(sink session.EventSink) {
	for {
		c, err := s.ln.Accept()
		if err != nil {
			log.Infof("accept loop stopped: %v", err)
			return
		}
		go s.serveConn(c, sink)
	}
}

func (s *Server) register(sess *session.Session) {
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) unregister(sess *session.Session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}

// ConnectReverse dials a listening viewer and runs the server-initiated
// handshake against it, per §4.1's reverse path.
func (s *Server) ConnectReverse(addr string, sink session.EventSink) error {
	c, err := net.Dial("tcp", addr)
	if err != nil {
		return rfberr.Wrap(rfberr.ErrIoError, "reverse connect to %s: %v", addr, err)
	}
	go s.serveConn(c, sink)
	return nil
}

// repeaterIDSize is the fixed width of the NUL-padded ASCII id string a
// repeater connection writes before the handshake begins.
const repeaterIDSize = 250

// ConnectRepeater dials a repeater, writes the 250-byte NUL-padded id
// string, then runs the standard handshake, per §4.1's repeater path.
func (s *Server) ConnectRepeater(addr, id string, sink session.EventSink) error {
	c, err := net.Dial("tcp", addr)
	if err != nil {
		return rfberr.Wrap(rfberr.ErrIoError, "repeater connect to %s: %v", addr, err)
	}
	var idBuf [repeaterIDSize]byte
	copy(idBuf[:], id)
	if _, err := c.Write(idBuf[:]); err != nil {
		c.Close()
		return rfberr.Wrap(rfberr.ErrIoError, "write repeater id: %v", err)
	}
	go s.serveConn(c, sink)
	return nil
}

