package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ardenflow/l4lb/internal/admin"
	"github.com/ardenflow/l4lb/internal/config"
)

var (
	// adminClient dials the daemon's admin socket, initialized in PersistentPreRunE.
	adminClient *admin.Client

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// socketPath is the daemon's admin Unix socket path.
	socketPath string
)

// rootCmd is the top-level cobra command for l4lbctl.
var rootCmd = &cobra.Command{
	Use:   "l4lbctl",
	Short: "CLI client for the l4lbd load balancer daemon",
	Long:  "l4lbctl communicates with the l4lbd daemon over its admin socket to manage services and servers.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		adminClient = admin.NewClient(socketPath, 5*time.Second)
		return nil
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", config.DefaultConfig().Admin.SocketPath,
		"l4lbd admin socket path")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(serviceCmd())
	rootCmd.AddCommand(serverCmd())
	rootCmd.AddCommand(monitorCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
