package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/notorious-go/hwop/display"
)

var (
	ulpmOpts = struct {
		cycles      int
		framePeriod time.Duration
		sleep       time.Duration
		timeout     time.Duration
	}{}

	ulpmCmd = &cobra.Command{
		Use:   "ulpm",
		Short: "Cycle the display through ultra-low-power mode",
		Long:  "Turn the display off at a line event, hold the DSI data lane in ULPM, then wake it up again, for a number of cycles.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl := display.New(
				display.WithLogger(logger.With("peripheral", "display")),
				display.WithFramePeriod(ulpmOpts.framePeriod),
				display.WithClock(clk),
			)
			if err := ctl.Start(); err != nil {
				return err
			}
			defer ctl.Stop()

			ctx := cmd.Context()
			for i := 0; ulpmOpts.cycles == 0 || i < ulpmOpts.cycles; i++ {
				enterCtx, cancel := context.WithTimeout(ctx, ulpmOpts.timeout)
				st, err := ctl.EnterULPM(enterCtx)
				cancel()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cycle %d: display off after frame %d\n", i, st.Frame)

				select {
				case <-clk.After(ulpmOpts.sleep):
				case <-ctx.Done():
					return ctx.Err()
				}
				if err := ctl.ExitULPM(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cycle %d: display on\n", i)
			}
			return nil
		},
	}
)

func init() {
	ulpmCmd.Flags().IntVarP(&ulpmOpts.cycles, "cycles", "n", 1, "number of cycles, 0 to run until interrupted")
	ulpmCmd.Flags().DurationVar(&ulpmOpts.framePeriod, "frame-period", display.DefaultFramePeriod, "time between line events")
	ulpmCmd.Flags().DurationVar(&ulpmOpts.sleep, "sleep", 6*time.Second, "time the data lane stays in ULPM")
	ulpmCmd.Flags().DurationVar(&ulpmOpts.timeout, "timeout", time.Second, "time to wait for the line event")
}
