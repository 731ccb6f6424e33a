package switchboard

import (
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

// channelOpener is the slice of ssh.Conn a Session needs. Narrowing the
// dependency to an interface (rather than the concrete *ssh.ServerConn) lets
// registry/session/listener/splice logic be unit tested against a fake
// connection, per spec.md §9's instruction to rely only on documented
// primitives and keep the splicer transport-opaque.
type channelOpener interface {
	OpenChannel(name string, data []byte) (ssh.Channel, <-chan *ssh.Request, error)
	Close() error
	RemoteAddr() net.Addr
}

// Session is one live SSH connection (C4, "Server" in spec.md §3/§4.4).
// Its lifecycle methods are the Go realization of spec.md's seven ordered
// callbacks: connection-made, begin-auth, validate-public-key,
// server-requested, connection-requested, session-requested, and
// connection-lost.
type Session struct {
	id       string
	conn     channelOpener
	registry *Registry

	username string
	peerIP   net.IP

	// set once during auth (§4.2); immutable thereafter, so reads from
	// other sessions' goroutines (e.g. the "list" command) are safe without
	// additional locking.
	hostname    string
	aliases     []string
	permissions Permission

	mu        sync.Mutex
	listeners map[uint32]*VirtualListener

	log *logrus.Entry
}

// newSession constructs a Session around a just-accepted connection, before
// authentication has completed (spec.md §4.4 step 1, connection-made).
func newSession(conn channelOpener, registry *Registry) *Session {
	id := uuid.NewString()
	peerIP := peerIPOf(conn.RemoteAddr())
	s := &Session{
		id:        id,
		conn:      conn,
		registry:  registry,
		peerIP:    peerIP,
		listeners: make(map[uint32]*VirtualListener),
	}
	s.log = Logger.WithFields(logrus.Fields{
		"conn": id,
		"peer": peerIP.String(),
	})
	s.log.Info("connection received")
	return s
}

func peerIPOf(addr net.Addr) net.IP {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return nil
	}
	return net.ParseIP(host)
}

// completeAuth applies §4.2 to the matched key's options, populating
// hostname/aliases/permissions (spec.md §4.4 step 3, folded into
// validate-public-key once a key has matched).
func (s *Session) completeAuth(username string, opts keyOptions) {
	s.username = username
	id := deriveIdentity(opts, username, func(level, format string, args ...interface{}) {
		switch level {
		case "warn":
			s.log.Warnf(format, args...)
		case "error":
			s.log.Errorf(format, args...)
		default:
			s.log.Infof(format, args...)
		}
	})
	s.hostname = id.hostname
	s.aliases = id.aliases
	s.permissions = id.permissions
	s.log = s.log.WithField("hostname", s.hostname)
	s.log.WithField("permissions", s.permissions).Info("authentication completed")
}

// names returns [hostname] + aliases (§3 "names").
func (s *Session) names() []string {
	return append([]string{s.hostname}, s.aliases...)
}

// handleServerRequested implements §4.4 step 4: the client asked to publish
// a virtual listening port.
func (s *Session) handleServerRequested(listenHost string, listenPort uint32) bool {
	if !s.permissions.has(PermListen) {
		s.log.Error("LISTEN permission missing, denying tcpip-forward request")
		return false
	}
	if listenPort == 0 {
		s.log.Error("dynamic listen port requested, denying (unsupported)")
		return false
	}

	_, err := s.createListener(listenHost, listenPort)
	if err != nil {
		s.log.WithError(err).Error("denying tcpip-forward request")
		return false
	}
	s.log.WithFields(logrus.Fields{"host": listenHost, "port": listenPort}).
		Info("virtual listener created")
	return true
}

// createListener implements §4.5 create_listener: registers the session on
// first publish, rejects a duplicate port, and otherwise allocates a new
// VirtualListener.
func (s *Session) createListener(host string, port uint32) (*VirtualListener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.listeners) == 0 {
		// I4: a session must be registered under all of its names before
		// any listener of its is observable, so register before inserting.
		s.registry.register(s)
	}

	if _, exists := s.listeners[port]; exists {
		return nil, fmt.Errorf("%w: port %d", ErrDuplicatePort, port)
	}

	l := &VirtualListener{owner: s, listenHost: host, listenPort: port}
	s.listeners[port] = l
	return l, nil
}

// removeListener implements §4.5 VirtualListener.close / remove_listener:
// idempotent removal, with unregistration from the registry once the last
// listener is gone.
func (s *Session) removeListener(l *VirtualListener) {
	s.mu.Lock()
	existing, ok := s.listeners[l.listenPort]
	if !ok || existing != l {
		s.mu.Unlock()
		return
	}
	delete(s.listeners, l.listenPort)
	empty := len(s.listeners) == 0
	s.mu.Unlock()

	if empty {
		s.registry.unregister(s)
	}
	s.log.WithField("port", l.listenPort).Info("virtual listener removed")
}

// cancelListener closes the listener on port, if any, implementing the
// client-cancellation path of §3's Virtual Listener lifecycle
// ("destroyed when ... the client cancels it").
func (s *Session) cancelListener(port uint32) {
	s.mu.Lock()
	l, ok := s.listeners[port]
	s.mu.Unlock()
	if ok {
		l.Close()
	}
}

// listenerByPort looks up one of this session's listeners (used by the
// splicer once a publisher has been resolved via the registry).
func (s *Session) listenerByPort(port uint32) (*VirtualListener, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listeners[port]
	return l, ok
}

// ports returns this session's currently open listener ports, sorted
// ascending, for the "list" admin command (§4.7).
func (s *Session) ports() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint32, 0, len(s.listeners))
	for p := range s.listeners {
		out = append(out, p)
	}
	sortUint32s(out)
	return out
}

func sortUint32s(s []uint32) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// connectionLost implements §4.4 step 7: close every listener this session
// owns. Safe to call more than once.
func (s *Session) connectionLost(err error) {
	if err != nil {
		s.log.WithError(err).Error("connection lost")
	} else {
		s.log.Info("connection closed")
	}

	s.mu.Lock()
	owned := make([]*VirtualListener, 0, len(s.listeners))
	for _, l := range s.listeners {
		owned = append(owned, l)
	}
	s.mu.Unlock()

	for _, l := range owned {
		l.Close()
	}
}
