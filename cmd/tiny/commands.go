package main

import (
	"github.com/spf13/cobra"
)

// rootFlags holds the flags shared by every verb (spec §6 "Root
// directory override: -r <path>").
type rootFlags struct {
	root     string
	config   string
	protocol string
}

func newRootCommand() *cobra.Command {
	var rf rootFlags

	root := &cobra.Command{
		Use:   "tiny",
		Short: "tiny is an embeddable gateway-protocol web application server",
		Long: `tiny terminates FastCGI, SCGI, uWSGI or raw HTTP/1.x and dispatches
each request to a registered (module, class, action) controller.

Use 'tiny go' to run in the foreground, 'tiny start' to run detached,
'tiny stop' to signal a running process over its control channel.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&rf.root, "root", "r", ".", "root directory containing tiny.conf and the app/web trees")
	root.PersistentFlags().StringVar(&rf.config, "config", "tiny.conf", "config file name, resolved under the root directory")
	root.PersistentFlags().StringVar(&rf.protocol, "protocol", "fastcgi", "gateway protocol: fastcgi, scgi, uwsgi or http")

	root.AddCommand(
		newGoCommand(&rf),
		newStartCommand(&rf),
		newStopCommand(&rf),
		newStatusCommand(&rf),
	)
	return root
}

func newGoCommand(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "go",
		Short: "Run the server in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdGo(*rf)
		},
	}
}

func newStartCommand(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Spawn a detached server process and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdStart(*rf)
		},
	}
}

func newStopCommand(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Signal a running server to shut down over its control channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdStop(*rf)
		},
	}
}

func newStatusCommand(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether a server is running (reserved, spec §6)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdStatus(*rf)
		},
	}
}
