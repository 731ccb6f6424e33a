package switchboard

import (
	"net"
	"testing"

	qt "github.com/frankban/quicktest"
	"golang.org/x/crypto/ssh"
)

func noopLogf(level, format string, args ...interface{}) {}

func TestParseKeyOptionsAccumulatesRepeatableOptions(t *testing.T) {
	c := qt.New(t)

	raw := []string{
		`from="10.0.0.0/8,192.168.1.1"`,
		`access="listen"`,
		`access="initiate"`,
		`alias="db-primary"`,
		`alias="db"`,
		`hostname="db-1"`,
		`command="/bin/true"`,
	}

	opts := parseKeyOptions(raw, noopLogf)
	c.Assert(opts.from, qt.DeepEquals, []string{"10.0.0.0/8", "192.168.1.1"})
	c.Assert(opts.access, qt.DeepEquals, []string{"listen", "initiate"})
	c.Assert(opts.alias, qt.DeepEquals, []string{"db-primary", "db"})
	c.Assert(opts.hostname, qt.Equals, "db-1")
}

func TestParseKeyOptionsKeepsFirstHostname(t *testing.T) {
	c := qt.New(t)
	var warned bool
	logf := func(level, format string, args ...interface{}) {
		if level == "warn" {
			warned = true
		}
	}

	opts := parseKeyOptions([]string{`hostname="first"`, `hostname="second"`}, logf)
	c.Assert(opts.hostname, qt.Equals, "first")
	c.Assert(warned, qt.IsTrue)
}

func TestDeriveIdentityFallsBackToUsername(t *testing.T) {
	c := qt.New(t)
	id := deriveIdentity(keyOptions{access: []string{"listen"}}, "alice", noopLogf)
	c.Assert(id.hostname, qt.Equals, "alice")
	c.Assert(id.permissions.has(PermListen), qt.IsTrue)
	c.Assert(id.permissions.has(PermInitiate), qt.IsFalse)
}

func TestDeriveIdentityNoAccessIsPermissionless(t *testing.T) {
	c := qt.New(t)
	var warned bool
	logf := func(level, format string, args ...interface{}) {
		if level == "warn" {
			warned = true
		}
	}
	id := deriveIdentity(keyOptions{}, "alice", logf)
	c.Assert(id.permissions, qt.Equals, Permission(0))
	c.Assert(warned, qt.IsTrue)
}

func TestDeriveIdentityInitiateGrantsListPermission(t *testing.T) {
	c := qt.New(t)
	id := deriveIdentity(keyOptions{access: []string{"initiate"}}, "alice", noopLogf)
	c.Assert(id.permissions.has(PermInitiate), qt.IsTrue)
	c.Assert(id.permissions.has(PermListListeners), qt.IsTrue)
	c.Assert(id.permissions.has(PermListen), qt.IsFalse)
}

func TestDeriveIdentityUnknownAccessLevelIgnored(t *testing.T) {
	c := qt.New(t)
	var errored bool
	logf := func(level, format string, args ...interface{}) {
		if level == "error" {
			errored = true
		}
	}
	id := deriveIdentity(keyOptions{access: []string{"bogus"}}, "alice", logf)
	c.Assert(id.permissions, qt.Equals, Permission(0))
	c.Assert(errored, qt.IsTrue)
}

func TestMatchesFromNoPatternsAllowsAny(t *testing.T) {
	c := qt.New(t)
	c.Assert(matchesFrom(nil, net.ParseIP("1.2.3.4")), qt.IsTrue)
}

func TestMatchesFromCIDR(t *testing.T) {
	c := qt.New(t)
	c.Assert(matchesFrom([]string{"10.0.0.0/8"}, net.ParseIP("10.1.2.3")), qt.IsTrue)
	c.Assert(matchesFrom([]string{"10.0.0.0/8"}, net.ParseIP("192.168.1.1")), qt.IsFalse)
}

func TestMatchesFromGlob(t *testing.T) {
	c := qt.New(t)
	c.Assert(matchesFrom([]string{"192.168.1.*"}, net.ParseIP("192.168.1.42")), qt.IsTrue)
	c.Assert(matchesFrom([]string{"192.168.1.*"}, net.ParseIP("192.168.2.42")), qt.IsFalse)
}

func TestMatchesFromNegationOverridesPositiveMatch(t *testing.T) {
	c := qt.New(t)
	patterns := []string{"10.0.0.0/8", "!10.0.0.5"}
	c.Assert(matchesFrom(patterns, net.ParseIP("10.0.0.5")), qt.IsFalse)
	c.Assert(matchesFrom(patterns, net.ParseIP("10.0.0.6")), qt.IsTrue)
}

func TestAuthorizedKeysFileMatchRespectsFromRestriction(t *testing.T) {
	c := qt.New(t)

	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte("ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIJBt9jaRc+O5jnssJo5n9XYZxN7mQ13EM5QFHOH3dGf7 comment\n"))
	c.Assert(err, qt.IsNil)

	f := &authorizedKeysFile{entries: []authorizedEntry{
		{key: key, opts: keyOptions{from: []string{"10.0.0.0/8"}, access: []string{"listen"}}},
	}}

	_, ok := f.match(key, net.ParseIP("10.1.1.1"))
	c.Assert(ok, qt.IsTrue)

	_, ok = f.match(key, net.ParseIP("192.168.1.1"))
	c.Assert(ok, qt.IsFalse)
}
