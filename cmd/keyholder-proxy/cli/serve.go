package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nethesis/keyholder/internal/keyholderlog"
	"github.com/nethesis/keyholder/internal/policy"
	"github.com/nethesis/keyholder/internal/session"
)

const defaultKeysDir = "/etc/keyholder.d"

var keysDir string

func init() {
	rootCmd.Flags().StringVar(&keysDir, "keys-dir", defaultKeysDir, "directory of agent-held public keys (*.pub)")
}

// runServe loads the policy, binds the proxy socket, and serves
// sessions until the process receives SIGINT or SIGTERM.
func runServe(cmd *cobra.Command, args []string) error {
	pol, err := policy.Load(authDir, keysDir)
	if err != nil {
		return err
	}
	keyholderlog.Info("policy loaded", "fingerprints", pol.FingerprintCount())

	ln, err := session.Listen(bindAddr, connectAddr, pol)
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- ln.Serve() }()

	keyholderlog.Info("proxy listening", "bind", bindAddr, "connect", connectAddr, "pid", os.Getpid())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		keyholderlog.Info("shutting down", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			keyholderlog.Error("proxy stopped unexpectedly", "error", err)
		}
	}

	return ln.Close()
}
