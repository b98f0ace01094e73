package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ardenflow/l4lb/internal/admin"
)

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage load-balanced services",
	}
	cmd.AddCommand(serviceAddCmd())
	cmd.AddCommand(serviceDeleteCmd())
	cmd.AddCommand(serviceListCmd())
	return cmd
}

// serviceAddCmd implements "service add {-t|-u} A.B.C.D:PORT NI [-s CODE]
// [--out ADDR:NIC]...".
func serviceAddCmd() *cobra.Command {
	var tcp, udp bool
	var discipline string
	var out []string

	cmd := &cobra.Command{
		Use:   "add <PUBLIC:PORT> <NIC>",
		Short: "Register a new service",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			proto, err := protocolFlag(tcp, udp)
			if err != nil {
				return err
			}

			privateNICs, err := parseOutFlags(out)
			if err != nil {
				return err
			}

			runAdmin(admin.Request{
				Op:          admin.OpServiceAdd,
				Public:      args[0],
				Protocol:    proto,
				NIC:         args[1],
				Discipline:  discipline,
				PrivateNICs: privateNICs,
			})
			return nil
		},
	}

	cmd.Flags().BoolVarP(&tcp, "tcp", "t", false, "service carries TCP traffic")
	cmd.Flags().BoolVarP(&udp, "udp", "u", false, "service carries UDP traffic")
	cmd.Flags().StringVarP(&discipline, "schedule", "s", "rr", "scheduling discipline: rr, w, r, l, h")
	cmd.Flags().StringArrayVar(&out, "out", nil, "private-side endpoint as ADDR:NIC (repeatable)")

	return cmd
}

func serviceDeleteCmd() *cobra.Command {
	var tcp, udp, force bool

	cmd := &cobra.Command{
		Use:   "delete <PUBLIC:PORT> <NIC>",
		Short: "Remove a service",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			proto, err := protocolFlag(tcp, udp)
			if err != nil {
				return err
			}

			runAdmin(admin.Request{
				Op:       admin.OpServiceDelete,
				Public:   args[0],
				Protocol: proto,
				NIC:      args[1],
				Force:    force,
			})
			return nil
		},
	}

	cmd.Flags().BoolVarP(&tcp, "tcp", "t", false, "service carries TCP traffic")
	cmd.Flags().BoolVarP(&udp, "udp", "u", false, "service carries UDP traffic")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "remove immediately instead of draining")

	return cmd
}

func serviceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered services",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp := runAdmin(admin.Request{Op: admin.OpServiceList})
			out, err := formatServices(resp.Services, outputFormat)
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
}

// parseOutFlags turns "--out ADDR:NIC" repeats into the NIC-name list the
// admin protocol's PrivateNICs field carries (the address half identifies
// the private interface to a human operator; the daemon only needs the
// NIC name to resolve it, since a NIC is a fixed interface, not a pool of
// addresses).
func parseOutFlags(out []string) ([]string, error) {
	nics := make([]string, 0, len(out))
	for _, o := range out {
		parts := strings.SplitN(o, ":", 2)
		if len(parts) != 2 || parts[1] == "" {
			return nil, fmt.Errorf("invalid --out value %q, want ADDR:NIC", o)
		}
		nics = append(nics, parts[1])
	}
	return nics, nil
}
