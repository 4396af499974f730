package rfb

import (
	"bufio"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rfbengine/server/pkg/internal/log"
	"github.com/rfbengine/server/pkg/rfb/auth"
	"github.com/rfbengine/server/pkg/rfb/rfberr"
	"github.com/rfbengine/server/pkg/rfb/types"
)

// Security types offered in AwaitSecurity, per RFC 6143 §7.1.2.
const (
	secNone    = 1
	secVncAuth = 2
)

// protocolVersion is one of the three versions this engine will speak,
// chosen at configuration time and by whichever the client negotiates
// down to, per §4.2's AwaitVersion state.
type protocolVersion struct {
	major, minor int
}

var (
	version33 = protocolVersion{3, 3}
	version37 = protocolVersion{3, 7}
	version38 = protocolVersion{3, 8}
)

func (v protocolVersion) String() string { return fmt.Sprintf("RFB %03d.%03d\n", v.major, v.minor) }

func (v protocolVersion) atLeast(o protocolVersion) bool {
	if v.major != o.major {
		return v.major > o.major
	}
	return v.minor >= o.minor
}

// handshakeResult carries the negotiated state out of the handshake into
// the session's Running state.
type handshakeResult struct {
	version  protocolVersion
	security uint8
	shared   bool
}

// runHandshake drives AwaitVersion -> AwaitSecurity -> AwaitInit directly
// against the raw connection (not through the session's async write
// queue, since every exchange here is a synchronous request/response
// pair the client will not proceed past). password == "" offers only
// security type None.
func runHandshake(rw io.ReadWriter, serverVersion protocolVersion, password string, width, height int, desktopName string) (*handshakeResult, error) {
	r := bufio.NewReader(rw)

	if _, err := io.WriteString(rw, serverVersion.String()); err != nil {
		return nil, rfberr.Wrap(rfberr.ErrIoError, "write server version: %v", err)
	}
	clientVersion, err := readClientVersion(r)
	if err != nil {
		return nil, err
	}
	negotiated := serverVersion
	if !clientVersion.atLeast(serverVersion) {
		negotiated = clientVersion
	}
	if negotiated.major < 3 || (negotiated.major == 3 && negotiated.minor < 3) {
		return nil, rfberr.Wrap(rfberr.ErrUnsupported, "client protocol version %v below 3.3", clientVersion)
	}

	security, err := negotiateSecurity(rw, r, negotiated, password)
	if err != nil {
		return nil, err
	}

	var shared [1]byte
	if _, err := io.ReadFull(r, shared[:]); err != nil {
		return nil, rfberr.Wrap(rfberr.ErrIoError, "read ClientInit: %v", err)
	}

	if err := writeServerInit(rw, width, height, desktopName); err != nil {
		return nil, err
	}

	return &handshakeResult{version: negotiated, security: security, shared: shared[0] != 0}, nil
}

func readClientVersion(r *bufio.Reader) (protocolVersion, error) {
	var buf [12]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return protocolVersion{}, rfberr.Wrap(rfberr.ErrHandshakeTimeout, "read client version: %v", err)
	}
	s := strings.TrimSpace(string(buf[:]))
	parts := strings.SplitN(strings.TrimPrefix(s, "RFB "), ".", 2)
	if len(parts) != 2 {
		return protocolVersion{}, rfberr.Wrap(rfberr.ErrProtocolViolation, "malformed client version %q", s)
	}
	major, err1 := strconv.Atoi(parts[0])
	minor, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return protocolVersion{}, rfberr.Wrap(rfberr.ErrProtocolViolation, "malformed client version %q", s)
	}
	return protocolVersion{major, minor}, nil
}

// negotiateSecurity implements AwaitSecurity: 3.3 dictates a single type,
// 3.7+ offers a list and reads the client's choice, then (for VncAuth)
// runs the DES challenge/response exchange.
func negotiateSecurity(w io.Writer, r *bufio.Reader, version protocolVersion, password string) (uint8, error) {
	offered := []uint8{secNone}
	if password != "" {
		offered = []uint8{secVncAuth}
	}

	var chosen uint8
	if version.atLeast(version37) {
		if err := binary.Write(w, binary.BigEndian, uint8(len(offered))); err != nil {
			return 0, rfberr.Wrap(rfberr.ErrIoError, "write security type count: %v", err)
		}
		if _, err := w.Write(offered); err != nil {
			return 0, rfberr.Wrap(rfberr.ErrIoError, "write security types: %v", err)
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, rfberr.Wrap(rfberr.ErrHandshakeTimeout, "read security choice: %v", err)
		}
		chosen = b
	} else {
		chosen = offered[0]
		if err := binary.Write(w, binary.BigEndian, uint32(chosen)); err != nil {
			return 0, rfberr.Wrap(rfberr.ErrIoError, "write security type: %v", err)
		}
	}

	switch chosen {
	case secNone:
		if version.atLeast(version38) {
			if err := writeSecurityResult(w, version, true, ""); err != nil {
				return 0, err
			}
		}
		return chosen, nil
	case secVncAuth:
		ok, err := runVncAuth(w, r, password)
		if err != nil {
			return 0, err
		}
		if err := writeSecurityResult(w, version, ok, "authentication failed"); err != nil {
			return 0, err
		}
		if !ok {
			return 0, rfberr.Wrap(rfberr.ErrAuthFailure, "VncAuth response mismatch")
		}
		return chosen, nil
	default:
		return 0, rfberr.Wrap(rfberr.ErrProtocolViolation, "client chose unoffered security type %d", chosen)
	}
}

func runVncAuth(w io.Writer, r *bufio.Reader, password string) (bool, error) {
	var challenge [auth.ChallengeSize]byte
	if _, err := rand.Read(challenge[:]); err != nil {
		return false, rfberr.Wrap(rfberr.ErrIoError, "generate challenge: %v", err)
	}
	if _, err := w.Write(challenge[:]); err != nil {
		return false, rfberr.Wrap(rfberr.ErrIoError, "write challenge: %v", err)
	}
	var response [auth.ChallengeSize]byte
	if _, err := io.ReadFull(r, response[:]); err != nil {
		return false, rfberr.Wrap(rfberr.ErrHandshakeTimeout, "read auth response: %v", err)
	}
	return auth.Verify(password, challenge, response)
}

func writeSecurityResult(w io.Writer, version protocolVersion, ok bool, reason string) error {
	result := uint32(0)
	if !ok {
		result = 1
	}
	if err := binary.Write(w, binary.BigEndian, result); err != nil {
		return rfberr.Wrap(rfberr.ErrIoError, "write SecurityResult: %v", err)
	}
	if !ok && version.atLeast(version38) {
		if err := binary.Write(w, binary.BigEndian, uint32(len(reason))); err != nil {
			return rfberr.Wrap(rfberr.ErrIoError, "write reason length: %v", err)
		}
		if _, err := io.WriteString(w, reason); err != nil {
			return rfberr.Wrap(rfberr.ErrIoError, "write reason: %v", err)
		}
	}
	return nil
}

func writeServerInit(w io.Writer, width, height int, desktopName string) error {
	if err := binary.Write(w, binary.BigEndian, uint16(width)); err != nil {
		return rfberr.Wrap(rfberr.ErrIoError, "write ServerInit width: %v", err)
	}
	if err := binary.Write(w, binary.BigEndian, uint16(height)); err != nil {
		return rfberr.Wrap(rfberr.ErrIoError, "write ServerInit height: %v", err)
	}
	pf := types.ServerPixelFormat
	if err := binary.Write(w, binary.BigEndian, pf); err != nil {
		return rfberr.Wrap(rfberr.ErrIoError, "write ServerInit pixel format: %v", err)
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(desktopName))); err != nil {
		return rfberr.Wrap(rfberr.ErrIoError, "write desktop name length: %v", err)
	}
	if _, err := io.WriteString(w, desktopName); err != nil {
		return rfberr.Wrap(rfberr.ErrIoError, "write desktop name: %v", err)
	}
	return nil
}

func logHandshake(result *handshakeResult, remote string) {
	log.InfoFields("client handshake complete", log.Fields{
		"remote":   remote,
		"version":  fmt.Sprintf("%d.%d", result.version.major, result.version.minor),
		"security": result.security,
		"shared":   result.shared,
	})
}
