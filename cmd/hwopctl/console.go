package main

import (
	"github.com/spf13/cobra"

	"github.com/notorious-go/hwop/console"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Drive a gate by hand",
	Long:  "Read gate commands from standard input, playing both the caller and the interrupt. Type help for the list of commands.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sh := console.New(cmd.OutOrStdout(), console.WithClock(clk), console.WithPrompt("> "))
		return sh.Run(cmd.InOrStdin())
	},
}
