package switchboard

import (
	"fmt"

	"golang.org/x/crypto/ssh"
)

// VirtualListener is the server-side record of a publisher's advertised
// port (C5). It holds no socket: the "listen" is entirely a registry entry
// plus the ability to open a forwarded-tcpip channel back to its owner.
type VirtualListener struct {
	owner      *Session
	listenHost string
	listenPort uint32
}

// forwardedTCPIPPayload is the RFC 4254 §7.2 payload for a forwarded-tcpip
// channel open: the address/port the client originally asked to forward,
// plus the address/port of the connection now arriving for it.
type forwardedTCPIPPayload struct {
	Addr       string
	Port       uint32
	OriginAddr string
	OriginPort uint32
}

// openForwardedChannel opens a forwarded-tcpip channel on the owning
// session's connection, so that the data exchanged over it looks to the
// publishing client exactly like an incoming connection on the port it
// originally asked to forward (§4.5). originAddr/originPort describe the
// initiator side of the direct-tcpip request that triggered this call.
func (l *VirtualListener) openForwardedChannel(originAddr string, originPort uint32) (ssh.Channel, <-chan *ssh.Request, error) {
	payload := ssh.Marshal(&forwardedTCPIPPayload{
		Addr:       l.listenHost,
		Port:       l.listenPort,
		OriginAddr: originAddr,
		OriginPort: originPort,
	})
	ch, reqs, err := l.owner.conn.OpenChannel("forwarded-tcpip", payload)
	if err != nil {
		return nil, nil, fmt.Errorf("open forwarded-tcpip channel to %s: %w", l.owner.hostname, err)
	}
	return ch, reqs, nil
}

// Close removes this listener from its owner and, if that was the owner's
// last listener, unregisters the owner from the registry (§4.5). Close is
// safe to call more than once (P7): closing an already-closed listener is a
// no-op.
func (l *VirtualListener) Close() {
	l.owner.removeListener(l)
}
