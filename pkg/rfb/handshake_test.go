package rfb

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/rfbengine/server/pkg/rfb/auth"
)

// runServerSide runs the handshake on one end of a pipe and reports the
// result on the returned channel, so the test can drive the client side
// synchronously without deadlocking on net.Pipe's unbuffered writes.
func runServerSide(conn net.Conn, serverVersion protocolVersion, password string) <-chan struct {
	res *handshakeResult
	err error
} {
	out := make(chan struct {
		res *handshakeResult
		err error
	}, 1)
	go func() {
		res, err := runHandshake(conn, serverVersion, password, 4, 4, "t")
		out <- struct {
			res *handshakeResult
			err error
		}{res, err}
	}()
	return out
}

func withTimeout(t *testing.T, ch <-chan struct {
	res *handshakeResult
	err error
}) (*handshakeResult, error) {
	t.Helper()
	select {
	case r := <-ch:
		return r.res, r.err
	case <-time.After(5 * time.Second):
		t.Fatal("handshake did not complete in time")
		return nil, nil
	}
}

func TestHandshakeNegotiatesDownToClientVersion(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ch := runServerSide(server, version38, "")
	r := bufio.NewReader(client)

	serverGreeting := readVersionLine(t, r)
	if serverGreeting != version38 {
		t.Fatalf("expected server to greet with 3.8, got %v", serverGreeting)
	}
	if _, err := io.WriteString(client, "RFB 003.007\n"); err != nil {
		t.Fatalf("write client version: %v", err)
	}

	// 3.7 security negotiation: server sends a count-prefixed type list.
	count, err := r.ReadByte()
	if err != nil {
		t.Fatalf("read security type count: %v", err)
	}
	types := make([]byte, count)
	if _, err := io.ReadFull(r, types); err != nil {
		t.Fatalf("read security types: %v", err)
	}
	if _, err := client.Write([]byte{secNone}); err != nil {
		t.Fatalf("write chosen security type: %v", err)
	}
	// ClientInit.
	if _, err := client.Write([]byte{1}); err != nil {
		t.Fatalf("write ClientInit: %v", err)
	}

	// ServerInit: width, height, pixel format (16 bytes), name length, name.
	readN(t, r, 2+2+16+4+1)

	res, err := withTimeout(t, ch)
	if err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	if res.version != version37 {
		t.Fatalf("expected negotiated version 3.7, got %v", res.version)
	}
}

func TestHandshakeVncAuthSuccess(t *testing.T) {
	const password = "sekret12"
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ch := runServerSide(server, version38, password)
	r := bufio.NewReader(client)

	readVersionLine(t, r)
	io.WriteString(client, "RFB 003.008\n")

	count, _ := r.ReadByte()
	secTypes := make([]byte, count)
	io.ReadFull(r, secTypes)
	client.Write([]byte{secVncAuth})

	var challenge [auth.ChallengeSize]byte
	io.ReadFull(r, challenge[:])
	response, err := auth.EncryptResponse(password, challenge)
	if err != nil {
		t.Fatalf("EncryptResponse: %v", err)
	}
	client.Write(response[:])

	var result uint32
	binary.Read(r, binary.BigEndian, &result)
	if result != 0 {
		t.Fatalf("expected SecurityResult OK, got %d", result)
	}

	client.Write([]byte{1}) // ClientInit
	readN(t, r, 2+2+16+4+1)

	res, err := withTimeout(t, ch)
	if err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	if res.security != secVncAuth {
		t.Fatalf("expected negotiated security VncAuth, got %d", res.security)
	}
}

func TestHandshakeVncAuthFailureReportsReason(t *testing.T) {
	const password = "sekret12"
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ch := runServerSide(server, version38, password)
	r := bufio.NewReader(client)

	readVersionLine(t, r)
	io.WriteString(client, "RFB 003.008\n")

	count, _ := r.ReadByte()
	secTypes := make([]byte, count)
	io.ReadFull(r, secTypes)
	client.Write([]byte{secVncAuth})

	var challenge [auth.ChallengeSize]byte
	io.ReadFull(r, challenge[:])
	var garbage [auth.ChallengeSize]byte
	client.Write(garbage[:])

	var result uint32
	binary.Read(r, binary.BigEndian, &result)
	if result == 0 {
		t.Fatal("expected SecurityResult failure")
	}
	var reasonLen uint32
	binary.Read(r, binary.BigEndian, &reasonLen)
	reason := make([]byte, reasonLen)
	io.ReadFull(r, reason)
	if string(reason) != "authentication failed" {
		t.Fatalf("expected a failure reason string, got %q", reason)
	}

	_, err := withTimeout(t, ch)
	if err == nil {
		t.Fatal("expected handshake to report an error after failed VncAuth")
	}
}

func readVersionLine(t *testing.T, r *bufio.Reader) protocolVersion {
	t.Helper()
	buf := make([]byte, 12)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("read server version line: %v", err)
	}
	switch string(buf) {
	case version33.String():
		return version33
	case version37.String():
		return version37
	case version38.String():
		return version38
	default:
		t.Fatalf("unexpected server version line %q", buf)
		return protocolVersion{}
	}
}

func readN(t *testing.T, r *bufio.Reader, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("read %d bytes: %v", n, err)
	}
	return buf
}
