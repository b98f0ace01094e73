package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ardenflow/l4lb/internal/admin"
)

// monitorCmd polls the daemon's service/server listings at a fixed interval
// until interrupted. The admin protocol is one request/response pair per
// connection with no server-streaming support, so this is a poll loop
// rather than a subscription: each tick opens a fresh connection.
func monitorCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Periodically print service and server state",
		Long:  "Polls the l4lbd daemon at a fixed interval and prints the current services and servers until interrupted (Ctrl+C).",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := printSnapshot(); err != nil {
				return err
			}

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := printSnapshot(); err != nil {
						return err
					}
				}
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval")

	return cmd
}

func printSnapshot() error {
	svcResp, err := adminClient.Call(admin.Request{Op: admin.OpServiceList})
	if err != nil {
		return fmt.Errorf("poll services: %w", err)
	}
	srvResp, err := adminClient.Call(admin.Request{Op: admin.OpServerList})
	if err != nil {
		return fmt.Errorf("poll servers: %w", err)
	}

	fmt.Printf("--- %s ---\n", time.Now().Format(time.RFC3339))

	services, err := formatServices(svcResp.Services, outputFormat)
	if err != nil {
		return err
	}
	fmt.Print(services)

	servers, err := formatServers(srvResp.Servers, outputFormat)
	if err != nil {
		return err
	}
	fmt.Print(servers)

	return nil
}
