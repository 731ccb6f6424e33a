package switchboard

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Permission is one bit of the permission set a session may hold.
type Permission uint8

const (
	// PermListen allows a session to open virtual listening ports.
	PermListen Permission = 1 << iota
	// PermInitiate allows a session to open direct-tcpip channels to a
	// publisher's virtual listener.
	PermInitiate
	// PermListListeners allows a session to run the "list" admin command.
	PermListListeners
)

func (p Permission) has(want Permission) bool { return p&want == want }

// accessLevels maps an authorized-key "access" token to the permission
// bundle it grants.
var accessLevels = map[string]Permission{
	"listen":   PermListen,
	"initiate": PermInitiate | PermListListeners,
}

// keyOptions is the parsed form of an authorized_keys options field.
type keyOptions struct {
	from     []string // source-address patterns, evaluated against the peer IP
	access   []string // access level names
	hostname string   // primary name; empty means "use the SSH username"
	alias    []string // additional names, in authorized-key order
}

// identity is the outcome of applying an authorized-key's options (§4.2):
// the session's permission set and the names it registers under.
type identity struct {
	permissions Permission
	hostname    string
	aliases     []string
}

func (id identity) names() []string {
	return append([]string{id.hostname}, id.aliases...)
}

// deriveIdentity implements §4.2: convert the matched key's options into a
// permission set and name list. username is the SSH username presented
// during auth, used as the hostname fallback.
func deriveIdentity(opts keyOptions, username string, logf logFunc) identity {
	var perms Permission
	if len(opts.access) == 0 {
		// The original Python implementation (nuttssh/server.py,
		// auth_completed) warns and proceeds permissionless here rather
		// than disconnecting.
		logf("warn", "key for %q has no access level, session will have no permissions", username)
	}
	for _, level := range opts.access {
		bundle, ok := accessLevels[level]
		if !ok {
			logf("error", "key for %q has unknown access level %q", username, level)
			continue
		}
		perms |= bundle
	}

	hostname := opts.hostname
	if hostname == "" {
		hostname = username
	}

	return identity{
		permissions: perms,
		hostname:    hostname,
		aliases:     opts.alias,
	}
}

// parseKeyOptions parses the options list returned by ssh.ParseAuthorizedKey
// (each entry either "key" or "key=value", with the value optionally
// double-quoted) into a keyOptions. Multiple occurrences of a repeatable
// option (access, alias) accumulate, as do comma-separated values within a
// single occurrence. Multiple "hostname" occurrences keep the first and
// log a warning via logf.
func parseKeyOptions(raw []string, logf logFunc) keyOptions {
	var opts keyOptions
	sawHostname := false

	for _, o := range raw {
		key, value, _ := strings.Cut(o, "=")
		value = strings.Trim(value, `"`)

		switch key {
		case "from":
			opts.from = append(opts.from, splitCommaList(value)...)
		case "access":
			opts.access = append(opts.access, splitCommaList(value)...)
		case "alias":
			opts.alias = append(opts.alias, splitCommaList(value)...)
		case "hostname":
			if sawHostname {
				logf("warn", "multiple hostname options specified, using the first (%q)", opts.hostname)
				continue
			}
			opts.hostname = value
			sawHostname = true
		default:
			// Options this switchboard does not recognize (e.g. "command",
			// "no-pty") are ignored; they are meaningful to OpenSSH-style
			// shell access, which is out of scope here.
		}
	}
	return opts
}

func splitCommaList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// authorizedEntry pairs a parsed public key with its authorized_keys options.
type authorizedEntry struct {
	key  ssh.PublicKey
	opts keyOptions
}

// authorizedKeysFile is the in-memory form of a parsed authorized_keys file,
// re-read for every new connection per spec.md §6.
type authorizedKeysFile struct {
	entries []authorizedEntry
}

// loadAuthorizedKeys parses an OpenSSH-format authorized_keys file,
// preserving per-key options that golang.org/x/crypto/ssh's own
// ParseAuthorizedKey already extracts but higher-level helpers discard.
func loadAuthorizedKeys(path string, logf logFunc) (*authorizedKeysFile, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read authorized keys file: %w", err)
	}

	var f authorizedKeysFile
	rest := data
	for len(strings.TrimSpace(string(rest))) > 0 {
		key, _, options, r, err := ssh.ParseAuthorizedKey(rest)
		if err != nil {
			return nil, fmt.Errorf("parse authorized keys file: %w", err)
		}
		rest = r
		f.entries = append(f.entries, authorizedEntry{
			key:  key,
			opts: parseKeyOptions(options, logf),
		})
	}
	return &f, nil
}

// match finds the first entry whose key matches candidate and whose "from"
// restriction (if any) permits peerIP, mirroring how asyncssh's
// set_authorized_keys + "from=" handling worked in the original
// implementation. It returns ok=false if no entry matches.
func (f *authorizedKeysFile) match(candidate ssh.PublicKey, peerIP net.IP) (keyOptions, bool) {
	marshaled := candidate.Marshal()
	for _, e := range f.entries {
		if string(e.key.Marshal()) != string(marshaled) {
			continue
		}
		if !matchesFrom(e.opts.from, peerIP) {
			continue
		}
		return e.opts, true
	}
	return keyOptions{}, false
}

// matchesFrom implements the authorized_keys "from" option: a comma-expanded
// list of patterns (CIDR, glob, or an exact address), any of which may be
// negated with a leading "!" to force rejection. No patterns means no
// restriction.
func matchesFrom(patterns []string, ip net.IP) bool {
	if len(patterns) == 0 {
		return true
	}
	matched := false
	for _, p := range patterns {
		neg := strings.HasPrefix(p, "!")
		p = strings.TrimPrefix(p, "!")

		hit := matchesOnePattern(p, ip)
		if hit && neg {
			return false
		}
		if hit {
			matched = true
		}
	}
	return matched
}

func matchesOnePattern(pattern string, ip net.IP) bool {
	if _, cidr, err := net.ParseCIDR(pattern); err == nil {
		return cidr.Contains(ip)
	}
	if ok, _ := filepath.Match(pattern, ip.String()); ok {
		return true
	}
	return false
}
