package switchboard

import (
	"fmt"
	"io"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"
)

// directTCPIPPayload is the RFC 4254 §7.2 payload of a direct-tcpip channel
// open request: the destination the initiator wants to reach, and the
// address/port it is connecting from.
type directTCPIPPayload struct {
	DestAddr   string
	DestPort   uint32
	OriginAddr string
	OriginPort uint32
}

// resolvePublisher implements §4.6 steps 1-2: split the designator, look up
// the publisher in the registry, and find its listener for destPort.
func (r *Registry) resolvePublisher(destHost string, destPort uint32) (*VirtualListener, error) {
	name, index := splitDesignator(destHost, 0)

	s, err := r.lookup(name, index)
	if err != nil {
		return nil, fmt.Errorf("slave %q: %w", name, err)
	}

	l, ok := s.listenerByPort(destPort)
	if !ok {
		return nil, fmt.Errorf("port %d on slave %s: %w", destPort, s.hostname, ErrPortNotFound)
	}
	return l, nil
}

// splice implements §4.6 steps 3-4: open a forwarded-tcpip channel back to
// the publisher and pump bytes in both directions between it and the
// initiator's already-open direct-tcpip channel until either side closes.
// The splicer never interprets payload bytes.
func splice(initiator ssh.Channel, l *VirtualListener, originAddr string, originPort uint32, log logEntry) error {
	publisher, preqs, err := l.openForwardedChannel(originAddr, originPort)
	if err != nil {
		return err
	}
	go ssh.DiscardRequests(preqs)
	defer publisher.Close()

	err = pump(initiator, publisher)
	if err != nil {
		log.Error(fmt.Sprintf("splice to %s:%d torn down by forwarding error: %v", l.listenHost, l.listenPort, err))
	} else {
		log.Info(fmt.Sprintf("splice to %s:%d closed cleanly", l.listenHost, l.listenPort))
	}
	return err
}

// pump copies bytes in both directions between a and b until both
// directions reach EOF or one leg errors, then tears both sides down.
// Backpressure comes for free from io.Copy: a blocked write on one side
// blocks the read on the other rather than buffering unboundedly. A
// half-close (io.Copy hitting EOF in one direction) is propagated as
// CloseWrite on the peer, letting the other direction continue until its
// own EOF, per spec.md §4.6.
func pump(a, b ssh.Channel) error {
	var g errgroup.Group

	g.Go(func() error {
		_, err := io.Copy(b, a)
		b.CloseWrite()
		if err != nil {
			a.Close()
			b.Close()
		}
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(a, b)
		a.CloseWrite()
		if err != nil {
			a.Close()
			b.Close()
		}
		return err
	})

	err := g.Wait()
	a.Close()
	b.Close()
	return err
}

// logEntry is the minimal logging surface splice needs, matching the subset
// of *logrus.Entry it actually calls, so tests can pass a no-op stub.
type logEntry interface {
	Info(args ...interface{})
	Error(args ...interface{})
}
