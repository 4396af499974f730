package rfb

import (
	"net"

	"github.com/rfbengine/server/pkg/buffer"
	"github.com/rfbengine/server/pkg/internal/log"
	"github.com/rfbengine/server/pkg/rfb/events"
	"github.com/rfbengine/server/pkg/session"
)

// serveConn drives one connection end to end: AwaitVersion through
// AwaitInit on the raw socket, then hands off to a Session for the
// Running state, per §4.2's state machine.
func (s *Server) serveConn(c net.Conn, sink session.EventSink) {
	defer c.Close()

	remote := c.RemoteAddr().String()
	width, height := s.fb.Dimensions()
	result, err := runHandshake(c, s.ver, s.cfg.Password, width, height, s.cfg.DesktopName)
	if err != nil {
		log.Errorf("handshake with %s failed: %v", remote, err)
		return
	}
	logHandshake(result, remote)

	buf := buffer.NewReadWriteBuffer(c)
	defer buf.Close()

	sess := session.New(s.fb, buf, sink)
	s.register(sess)
	defer s.unregister(sess)
	defer sess.Close()

	if sink != nil {
		sink.ClientConnected(sess)
	}

	go sess.Run()

	handlers := events.GetDefaults()
	for {
		cmd, err := buf.ReadByte()
		if err != nil {
			log.Infof("client %s disconnected: %v", remote, err)
			return
		}
		hdlr, ok := handlers[cmd]
		if !ok {
			log.Warningf("unsupported command type %d from %s", cmd, remote)
			continue
		}
		if err := hdlr.Handle(buf, sess); err != nil {
			log.Errorf("error handling command %d from %s: %v", cmd, remote, err)
			return
		}
	}
}
