// Package cli implements the keyholder-proxy command-line surface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/nethesis/keyholder/internal/keyholderlog"
)

const (
	defaultBind    = "/run/keyholder/proxy.sock"
	defaultConnect = "/run/keyholder/agent.sock"
	defaultAuthDir = "/etc/keyholder-auth.d"
)

var (
	bindAddr    string
	connectAddr string
	authDir     string
	verbose     bool
	jsonLogs    bool
	syslogLogs  bool
)

var rootCmd = &cobra.Command{
	Use:   "keyholder-proxy",
	Short: "Filtering proxy in front of an SSH agent socket",
	Long: `keyholder-proxy interposes on an SSH agent's UNIX-domain socket and
enforces a per-key, per-group authorization policy: any connecting user
may list identities, but may request a signature only with keys their
POSIX group membership explicitly authorizes.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return keyholderlog.Init(keyholderlog.Options{
			Debug:      verbose,
			JSONFormat: jsonLogs,
			Syslog:     syslogLogs,
		})
	},
	RunE: runServe,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().StringVar(&bindAddr, "bind", defaultBind, "path to the UNIX-domain socket the proxy listens on")
	rootCmd.Flags().StringVar(&connectAddr, "connect", defaultConnect, "path to the upstream SSH agent's UNIX-domain socket")
	rootCmd.Flags().StringVar(&authDir, "auth-dir", defaultAuthDir, "directory containing policy files (*.yml, *.yaml)")

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug diagnostics")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json", false, "emit diagnostics as JSON")
	rootCmd.PersistentFlags().BoolVar(&syslogLogs, "syslog", true, "also send diagnostics to the system log's auth facility")
}
