package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/notorious-go/hwop/gate"
	"github.com/notorious-go/hwop/serialink"
)

var (
	remoteOpts = struct {
		port    string
		baud    int
		kind    string
		timeout time.Duration
	}{}

	remoteCmd = &cobra.Command{
		Use:   "remote [payload...]",
		Short: "Run one operation on a device attached over a serial port",
		Long:  "Send one request frame to a device attached over a serial port and wait for its reply.",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := gate.ParseKind(remoteOpts.kind)
			if err != nil {
				return err
			}
			link, err := serialink.Open(remoteOpts.port, remoteOpts.baud,
				serialink.WithLogger(logger.With("port", remoteOpts.port)))
			if err != nil {
				return err
			}
			defer link.Close()

			g := gate.New[[]byte, []byte](link)
			ctx, cancel := context.WithTimeout(cmd.Context(), remoteOpts.timeout)
			defer cancel()
			res, err := g.Do(ctx, kind, []byte(strings.Join(args, " ")))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", res)
			return nil
		},
	}
)

func init() {
	remoteCmd.Flags().StringVarP(&remoteOpts.port, "port", "p", "", "serial port of the device")
	remoteCmd.Flags().IntVarP(&remoteOpts.baud, "baud", "b", serialink.DefaultBaudRate, "baud rate")
	remoteCmd.Flags().StringVarP(&remoteOpts.kind, "kind", "k", "blit", "operation kind")
	remoteCmd.Flags().DurationVarP(&remoteOpts.timeout, "timeout", "t", time.Second, "time to wait for the reply")
	remoteCmd.MarkFlagRequired("port")
}
