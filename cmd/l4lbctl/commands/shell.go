package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// shellCommands lists the available commands for the interactive shell help output.
var shellCommands = []struct {
	name string
	desc string
}{
	{"service add {-t|-u} ADDR NIC [-s CODE] [--out ADDR:NIC]...", "Register a service"},
	{"service delete {-t|-u} ADDR NIC [-f]", "Remove a service"},
	{"service list", "List registered services"},
	{"server add {-t|-u} ADDR NIC [-m MODE]", "Register a backend server"},
	{"server delete {-t|-u} ADDR NIC [-f] [-w MICROS]", "Remove a backend server"},
	{"server list", "List registered backend servers"},
	{"monitor", "Poll service and server state"},
	{"version", "Print build information"},
	{"help", "Show this help message"},
	{"exit [-f] / quit", "Leave the interactive shell"},
}

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive l4lbctl shell",
		Long:  "Launches a simple REPL that accepts l4lbctl subcommands. Type 'help', 'exit', or 'quit'.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			printShellBanner()
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Print("l4lbctl> ")

			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				fields := strings.Fields(line)

				switch {
				case isExit(fields):
					return nil
				case line == "help" || line == "?":
					printShellHelp()
				case line != "":
					rootCmd.SetArgs(fields)
					if err := rootCmd.Execute(); err != nil {
						fmt.Fprintln(os.Stderr, "Error:", err)
					}
				}

				fmt.Print("l4lbctl> ")
			}

			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}

			return nil
		},
	}
}

// isExit recognizes the shell's "exit [-f]" / "quit" builtin. -f skips
// nothing here (there is no confirmation prompt to bypass) but is accepted
// for grammar compatibility with the rest of the CLI's "-f" force flags.
func isExit(fields []string) bool {
	if len(fields) == 0 {
		return false
	}
	if fields[0] == "quit" {
		return len(fields) == 1
	}
	if fields[0] != "exit" {
		return false
	}
	return len(fields) == 1 || (len(fields) == 2 && fields[1] == "-f")
}

// printShellBanner prints a welcome message when the shell starts.
func printShellBanner() {
	fmt.Println("l4lbctl interactive shell. Type 'help' for available commands, 'exit' to quit.")
	fmt.Println()
}

// printShellHelp prints a formatted list of available shell commands.
func printShellHelp() {
	fmt.Println("Available commands:")
	fmt.Println()

	for _, cmd := range shellCommands {
		fmt.Printf("  %-55s %s\n", cmd.name, cmd.desc)
	}

	fmt.Println()
}
