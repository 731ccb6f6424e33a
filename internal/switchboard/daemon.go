package switchboard

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"

	"golang.org/x/crypto/ssh"
)

// Config holds the daemon's bootstrap parameters (C8, spec.md §6).
type Config struct {
	ListenAddr        string
	ListenPort        int
	HostKeyPath       string
	AuthorizedKeysPath string
}

// DefaultConfig returns spec.md §6's defaults: all interfaces, port 1878.
func DefaultConfig() Config {
	return Config{
		ListenAddr:         "0.0.0.0",
		ListenPort:         1878,
		HostKeyPath:        "ssh_host_key",
		AuthorizedKeysPath: "authorized_keys",
	}
}

// Daemon is the accept loop that wires the SSH transport to the registry
// and per-connection sessions (C8).
type Daemon struct {
	cfg      Config
	Registry *Registry
}

// NewDaemon constructs a Daemon with a fresh, empty registry.
func NewDaemon(cfg Config) *Daemon {
	return &Daemon{cfg: cfg, Registry: NewRegistry()}
}

// tcpipForwardPayload is the RFC 4254 §7.1 payload shared by the
// "tcpip-forward" and "cancel-tcpip-forward" global requests.
type tcpipForwardPayload struct {
	Addr string
	Port uint32
}

// ListenAndServe loads the host key, binds the configured TCP address, and
// accepts connections until ctx is canceled or the listener errors. A
// missing/unreadable host key is a bootstrap failure per spec.md §8.8.
func (d *Daemon) ListenAndServe(ctx context.Context) error {
	hostKeyBytes, err := os.ReadFile(d.cfg.HostKeyPath)
	if err != nil {
		return fmt.Errorf("read host key: %w", err)
	}
	hostKey, err := ssh.ParsePrivateKey(hostKeyBytes)
	if err != nil {
		return fmt.Errorf("parse host key: %w", err)
	}

	addr := net.JoinHostPort(d.cfg.ListenAddr, fmt.Sprintf("%d", d.cfg.ListenPort))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	defer ln.Close()

	Logger.WithField("addr", addr).Info("nuttssh listening")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			Logger.WithError(err).Error("accept failed")
			continue
		}
		go d.handleConn(ctx, nc, hostKey)
	}
}

// handleConn implements spec.md §4.4's per-connection lifecycle: it loads
// authorized_keys fresh (begin-auth), performs the SSH handshake
// (validate-public-key via PublicKeyCallback), then dispatches global
// requests and channels to the resulting Session until the connection
// closes (connection-lost).
func (d *Daemon) handleConn(ctx context.Context, nc net.Conn, hostKey ssh.Signer) {
	peer := nc.RemoteAddr().String()

	authKeys, err := loadAuthorizedKeys(d.cfg.AuthorizedKeysPath, defaultLogf)
	if err != nil {
		Logger.WithError(err).WithField("peer", peer).
			Error("failed to read authorized keys file; closing connection (misconfigured server)")
		nc.Close()
		return
	}

	var matched keyOptions
	config := &ssh.ServerConfig{
		PublicKeyCallback: func(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			opts, ok := authKeys.match(key, peerIPOf(meta.RemoteAddr()))
			if !ok {
				return nil, fmt.Errorf("no authorized key matches for user %q", meta.User())
			}
			matched = opts
			return &ssh.Permissions{}, nil
		},
	}
	config.AddHostKey(hostKey)

	sconn, chans, reqs, err := ssh.NewServerConn(nc, config)
	if err != nil {
		Logger.WithField("peer", peer).WithError(err).Debug("ssh handshake failed")
		nc.Close()
		return
	}

	session := newSession(sconn, d.Registry)
	session.completeAuth(sconn.User(), matched)

	go d.handleGlobalRequests(session, reqs)
	d.handleChannels(session, chans)

	session.connectionLost(nil)
}

// handleGlobalRequests implements spec.md §4.4 step 4 for the global
// requests that carry it: tcpip-forward (server-requested) and
// cancel-tcpip-forward.
func (d *Daemon) handleGlobalRequests(s *Session, reqs <-chan *ssh.Request) {
	for req := range reqs {
		switch req.Type {
		case "tcpip-forward":
			var payload tcpipForwardPayload
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				reply(req, false, nil)
				continue
			}
			ok := s.handleServerRequested(payload.Addr, payload.Port)
			reply(req, ok, nil)

		case "cancel-tcpip-forward":
			var payload tcpipForwardPayload
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				reply(req, false, nil)
				continue
			}
			s.cancelListener(payload.Port)
			reply(req, true, nil)

		default:
			reply(req, false, nil)
		}
	}
}

func reply(req *ssh.Request, ok bool, payload []byte) {
	if req.WantReply {
		req.Reply(ok, payload)
	}
}

// handleChannels implements spec.md §4.4 steps 5-6: direct-tcpip channel
// opens (connection-requested) and session channels (session-requested,
// delegating to the admin command, C7). It returns once chans is closed,
// i.e. once the connection has gone away.
func (d *Daemon) handleChannels(s *Session, chans <-chan ssh.NewChannel) {
	for newChan := range chans {
		switch newChan.ChannelType() {
		case "direct-tcpip":
			go d.handleDirectTCPIP(s, newChan)
		case "session":
			go d.handleSession(s, newChan)
		default:
			newChan.Reject(ssh.UnknownChannelType, "unsupported channel type")
		}
	}
}

// handleDirectTCPIP implements spec.md §4.4 step 5 / §4.6 steps 1-4.
func (d *Daemon) handleDirectTCPIP(s *Session, newChan ssh.NewChannel) {
	var payload directTCPIPPayload
	if err := ssh.Unmarshal(newChan.ExtraData(), &payload); err != nil {
		newChan.Reject(ssh.ConnectionFailed, "malformed direct-tcpip request")
		return
	}

	if !s.permissions.has(PermInitiate) {
		s.log.Error("INITIATE permission missing, denying direct-tcpip request")
		newChan.Reject(ssh.Prohibited, "insufficient permissions to connect")
		return
	}

	l, err := d.Registry.resolvePublisher(payload.DestAddr, payload.DestPort)
	if err != nil {
		s.log.WithError(err).Error("direct-tcpip resolution failed")
		newChan.Reject(ssh.ConnectionFailed, err.Error())
		return
	}

	ch, initiatorReqs, err := newChan.Accept()
	if err != nil {
		s.log.WithError(err).Error("failed to accept direct-tcpip channel")
		return
	}
	go ssh.DiscardRequests(initiatorReqs)

	_ = splice(ch, l, payload.OriginAddr, payload.OriginPort, s.log)
}

// handleSession implements spec.md §4.4 step 6: accept a session channel
// and delegate any command or shell request to the admin command (C7).
func (d *Daemon) handleSession(s *Session, newChan ssh.NewChannel) {
	ch, reqs, err := newChan.Accept()
	if err != nil {
		s.log.WithError(err).Error("failed to accept session channel")
		return
	}
	defer ch.Close()

	for req := range reqs {
		switch req.Type {
		case "exec":
			var execPayload struct{ Command string }
			ssh.Unmarshal(req.Payload, &execPayload)
			reply(req, true, nil)
			handleCommand(s, &channelProcess{ch: ch}, execPayload.Command)
			return
		case "shell":
			reply(req, true, nil)
			handleCommand(s, &channelProcess{ch: ch}, "")
			return
		case "pty-req", "env":
			reply(req, true, nil)
		default:
			reply(req, false, nil)
		}
	}
}

// channelProcess adapts an ssh.Channel to the process interface handleCommand
// expects, using the OpenSSH "exit-status" request convention to report a
// command's exit code.
type channelProcess struct {
	ch ssh.Channel
}

func (p *channelProcess) Stdout() io.Writer { return p.ch }
func (p *channelProcess) Stderr() io.Writer { return p.ch.Stderr() }
func (p *channelProcess) Exit(status int) {
	p.ch.SendRequest("exit-status", false, ssh.Marshal(&struct{ Status uint32 }{uint32(status)}))
	p.ch.Close()
}
