package switchboard

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

// chanAdapter wraps a net.Conn (one half of a net.Pipe) to satisfy the
// ssh.Channel interface pump() needs, for testing without a real SSH
// transport (spec.md §9: the splicer should be testable independent of the
// transport).
type chanAdapter struct {
	net.Conn
	stderr memRW
}

func (c *chanAdapter) CloseWrite() error { return c.Conn.Close() }
func (c *chanAdapter) SendRequest(name string, wantReply bool, payload []byte) (bool, error) {
	return false, nil
}
func (c *chanAdapter) Stderr() io.ReadWriter { return &c.stderr }

type memRW struct{ bytes.Buffer }

func TestPumpCopiesBothDirections(t *testing.T) {
	c := qt.New(t)

	aIn, aOut := net.Pipe()
	bIn, bOut := net.Pipe()

	a := &chanAdapter{Conn: aIn}
	b := &chanAdapter{Conn: bIn}

	done := make(chan error, 1)
	go func() { done <- pump(a, b) }()

	go func() { aOut.Write([]byte("hello from initiator")) }()
	buf := make([]byte, 64)
	n, err := bOut.Read(buf)
	c.Assert(err, qt.IsNil)
	c.Assert(string(buf[:n]), qt.Equals, "hello from initiator")

	go func() { bOut.Write([]byte("hello from publisher")) }()
	n, err = aOut.Read(buf)
	c.Assert(err, qt.IsNil)
	c.Assert(string(buf[:n]), qt.Equals, "hello from publisher")

	aOut.Close()
	bOut.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not tear down after both sides closed")
	}
}

func TestPumpTearsDownOnOneSideClose(t *testing.T) {
	c := qt.New(t)

	aIn, aOut := net.Pipe()
	bIn, bOut := net.Pipe()
	defer bOut.Close()

	a := &chanAdapter{Conn: aIn}
	b := &chanAdapter{Conn: bIn}

	done := make(chan error, 1)
	go func() { done <- pump(a, b) }()

	aOut.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not tear down after one side closed")
	}
	// b must have been closed too: a write on it fails with io.ErrClosedPipe.
	_, err := b.Conn.Write([]byte("x"))
	c.Assert(err, qt.Equals, io.ErrClosedPipe)
}
