package switchboard

import (
	"net"

	"golang.org/x/crypto/ssh"
)

// fakeConn is a minimal channelOpener used by registry/session/command
// tests that never need to drive real bytes across a channel (those live in
// splice_test.go, which uses net.Pipe instead).
type fakeConn struct {
	remote  net.Addr
	opened  []string
	openErr error
}

func (f *fakeConn) OpenChannel(name string, data []byte) (ssh.Channel, <-chan *ssh.Request, error) {
	f.opened = append(f.opened, name)
	if f.openErr != nil {
		return nil, nil, f.openErr
	}
	return nil, nil, nil
}

func (f *fakeConn) Close() error         { return nil }
func (f *fakeConn) RemoteAddr() net.Addr { return f.remote }

func newFakeSession(hostname string, aliases []string, perms Permission, registry *Registry, ip string) *Session {
	s := newSession(&fakeConn{remote: &net.TCPAddr{IP: net.ParseIP(ip), Port: 22}}, registry)
	s.username = hostname
	s.hostname = hostname
	s.aliases = aliases
	s.permissions = perms
	return s
}
