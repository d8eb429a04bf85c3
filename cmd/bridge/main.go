package main

import (
	"os"
	"runtime"

	"github.com/grovetools/bridge/cli"
	"github.com/grovetools/bridge/cmd"
	"github.com/grovetools/bridge/version"
)

func main() {
	rootCmd := cli.NewStandardCommand(
		"bridge",
		"HTTP bridge for socket-speaking coding agents",
	)

	info := version.GetInfo()
	rootCmd.Version = info.Version
	cli.SetVersionTemplate(rootCmd, cli.VersionInfo{
		Version:   info.Version,
		Commit:    info.Commit,
		BuildDate: info.BuildDate,
		BuildArch: runtime.GOOS + "/" + runtime.GOARCH,
	})

	rootCmd.AddCommand(cmd.NewServeCmd())
	rootCmd.AddCommand(cmd.NewVersionCmd())

	cli.ApplyStyledHelpRecursive(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		cli.PrintError(rootCmd, err)
		os.Exit(1)
	}
}
