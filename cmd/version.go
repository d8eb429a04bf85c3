package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/grovetools/bridge/version"
)

// NewVersionCmd returns the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the bridge version",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.GetInfo()
			fmt.Printf("bridge %s\n", info.Version)
			fmt.Printf("  Commit:    %s\n", info.Commit)
			fmt.Printf("  Built:     %s\n", info.BuildDate)
			fmt.Printf("  Arch:      %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
