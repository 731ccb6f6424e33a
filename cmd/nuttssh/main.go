// Command nuttssh runs the switchboard daemon in the foreground until
// terminated, logging to standard error (spec.md §6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nuttssh/nuttssh/internal/switchboard"
)

// flags holds the CLI's optional overrides for switchboard.Config,
// following the teacher pack's (aldrin-isaac-newtron) convention of a
// package-level flags struct populated by cobra and read in RunE.
type flags struct {
	listenAddr  string
	listenPort  int
	hostKey     string
	authKeys    string
	logLevel    string
	logJSON     bool
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var flagValues = &flags{}

var rootCmd = &cobra.Command{
	Use:           "nuttssh",
	Short:         "SSH switchboard for internally patching forwarded ports",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	f := rootCmd.Flags()
	defaults := switchboard.DefaultConfig()
	f.StringVar(&flagValues.listenAddr, "listen-addr", defaults.ListenAddr, "Address to listen on")
	f.IntVar(&flagValues.listenPort, "listen-port", defaults.ListenPort, "Port to listen on")
	f.StringVar(&flagValues.hostKey, "host-key", defaults.HostKeyPath, "Path to the SSH host private key")
	f.StringVar(&flagValues.authKeys, "authorized-keys", defaults.AuthorizedKeysPath, "Path to the authorized_keys file")
	f.StringVar(&flagValues.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	f.BoolVar(&flagValues.logJSON, "log-json", false, "Emit logs as JSON")
}

func run(cmd *cobra.Command, args []string) error {
	if err := switchboard.SetLogLevel(flagValues.logLevel); err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	if flagValues.logJSON {
		switchboard.SetJSONFormat()
	}

	cfg := switchboard.Config{
		ListenAddr:         flagValues.listenAddr,
		ListenPort:         flagValues.listenPort,
		HostKeyPath:        flagValues.hostKey,
		AuthorizedKeysPath: flagValues.authKeys,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	d := switchboard.NewDaemon(cfg)
	if err := d.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
