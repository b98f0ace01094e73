package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	appversion "github.com/ardenflow/l4lb/internal/version"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print l4lbctl build information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(appversion.Full("l4lbctl"))
		},
	}
}
