// Command hwopctl drives the simulated peripherals of this module from the
// command line: the DMA2D blend demo, the display low-power cycle, an
// interactive gate console, and operations on a device attached over a serial
// port.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/benbjohnson/clock"
	"github.com/mattn/go-colorable"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	logger  = slog.New(slog.DiscardHandler)

	rootCmd = &cobra.Command{
		Use:           "hwopctl",
		Short:         "Run asynchronous hardware operations",
		Long:          "Run asynchronous hardware operations on simulated DMA2D and display peripherals, or on a device attached over a serial port.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger = slog.New(slog.NewTextHandler(colorable.NewColorableStderr(), &slog.HandlerOptions{Level: level}))
		},
	}
)

// clk drives the simulated peripherals.
var clk clock.Clock = clock.New()

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every operation")
	rootCmd.AddCommand(blendCmd, ulpmCmd, consoleCmd, remoteCmd, portsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "hwopctl:", err)
		stop()
		os.Exit(1)
	}
}
