package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ardenflow/l4lb/internal/admin"
)

func serverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Manage backend servers",
	}
	cmd.AddCommand(serverAddCmd())
	cmd.AddCommand(serverDeleteCmd())
	cmd.AddCommand(serverListCmd())
	return cmd
}

// serverAddCmd implements "server add {-t|-u} A.B.C.D:PORT NI [-m MODE]".
//
// -u must set the protocol to UDP, never TCP: the original tool's source
// hardcoded TCP for this flag, which was a bug (see the scheduling
// discipline fix for the same class of mistake).
func serverAddCmd() *cobra.Command {
	var tcp, udp bool
	var mode string

	cmd := &cobra.Command{
		Use:   "add <ADDR:PORT> <NIC>",
		Short: "Register a new backend server",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			proto, err := protocolFlag(tcp, udp)
			if err != nil {
				return err
			}

			runAdmin(admin.Request{
				Op:       admin.OpServerAdd,
				Address:  args[0],
				Protocol: proto,
				NIC:      args[1],
				Mode:     mode,
				Weight:   1,
			})
			return nil
		},
	}

	cmd.Flags().BoolVarP(&tcp, "tcp", "t", false, "server carries TCP traffic")
	cmd.Flags().BoolVarP(&udp, "udp", "u", false, "server carries UDP traffic")
	cmd.Flags().StringVarP(&mode, "mode", "m", "nat", "forwarding mode: nat, dnat, dr")

	return cmd
}

func serverDeleteCmd() *cobra.Command {
	var tcp, udp, force bool
	var waitMicros int64

	cmd := &cobra.Command{
		Use:   "delete <ADDR:PORT> <NIC>",
		Short: "Remove a backend server",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			proto, err := protocolFlag(tcp, udp)
			if err != nil {
				return err
			}

			runAdmin(admin.Request{
				Op:         admin.OpServerDelete,
				Address:    args[0],
				Protocol:   proto,
				NIC:        args[1],
				Force:      force,
				WaitMicros: waitMicros,
			})
			return nil
		},
	}

	cmd.Flags().BoolVarP(&tcp, "tcp", "t", false, "server carries TCP traffic")
	cmd.Flags().BoolVarP(&udp, "udp", "u", false, "server carries UDP traffic")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "remove immediately instead of draining")
	cmd.Flags().Int64VarP(&waitMicros, "wait", "w", 0, "drain for at most this many microseconds before forcing removal")

	return cmd
}

func serverListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered backend servers",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp := runAdmin(admin.Request{Op: admin.OpServerList})
			out, err := formatServers(resp.Servers, outputFormat)
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
}
