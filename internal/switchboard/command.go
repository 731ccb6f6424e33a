package switchboard

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// process is the minimal surface handleCommand needs from an SSH session
// channel acting as a command/shell process: separate stdout/stderr writers
// and an exit status setter. daemon.go's session-requested handler adapts a
// real ssh.Channel to this.
type process interface {
	Stdout() io.Writer
	Stderr() io.Writer
	Exit(status int)
}

// handleCommand implements §4.7's grammar: any command string, or no
// command at all (a bare shell request), runs "list". Future verbs are
// expected to extend this dispatch without touching Session (spec.md §9).
func handleCommand(s *Session, p process, command string) {
	// command is currently unused beyond being accepted: list is the only
	// verb. Keeping the parameter documents the intended extension point.
	_ = command
	runList(s, p)
}

// runList implements §4.7's "list" behavior. It emits one line per distinct
// publisher in the registry, sorted by hostname, following the original
// implementation's per-publisher output shape (nuttssh/commands.py's
// `list`) rather than the per-(name,index) alternative spec.md also allows.
func runList(s *Session, p process) {
	if !s.permissions.has(PermListListeners) {
		fmt.Fprint(p.Stderr(), "Permission denied\n")
		p.Exit(1)
		return
	}

	publishers := s.registry.publishers()
	sort.Slice(publishers, func(i, j int) bool {
		return publishers[i].hostname < publishers[j].hostname
	})

	if len(publishers) == 0 {
		fmt.Fprint(p.Stdout(), "  None\n")
		p.Exit(0)
		return
	}

	for _, pub := range publishers {
		ports := pub.ports()
		portStrs := make([]string, len(ports))
		for i, port := range ports {
			portStrs[i] = strconv.FormatUint(uint64(port), 10)
		}
		fmt.Fprintf(p.Stdout(), "  %s: ip=%s aliases=%s ports=%s\n",
			pub.hostname,
			pub.peerIP,
			strings.Join(pub.aliases, ","),
			strings.Join(portStrs, ","),
		)
	}
	p.Exit(0)
}
