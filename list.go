package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/janch32/rl78flash/discover"
)

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all available serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return discover.PrintPorts(os.Stdout)
		},
	}
}
