package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/notorious-go/hwop/dma2d"
	"github.com/notorious-go/hwop/sequence"
)

var (
	blendOpts = struct {
		config    string
		loops     int
		hold      time.Duration
		hex       string
		pixelTime time.Duration
	}{}

	blendCmd = &cobra.Command{
		Use:   "blend",
		Short: "Run the DMA2D blend demo",
		Long:  "Run a sequence of DMA2D CLUT loads, conversions and blends. Without --config the built-in demo is run, looping until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSequence(blendOpts.config)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("loops") {
				cfg.Loops = blendOpts.loops
			}
			if cmd.Flags().Changed("hold") {
				cfg.Hold = blendOpts.hold
			}

			engine := dma2d.New(
				dma2d.WithClock(clk),
				dma2d.WithLogger(logger.With("peripheral", "dma2d")),
				dma2d.WithPixelTime(blendOpts.pixelTime),
			)
			r, err := sequence.NewRunner(cfg, engine,
				sequence.WithClock(clk),
				sequence.WithLogger(logger.With("sequence", cfg.Name)),
				sequence.WithStepHook(func(s sequence.StepReport) {
					fmt.Fprintf(cmd.OutOrStdout(), "loop %d step %d %s: %v, %d pixels in %v\n",
						s.Loop, s.Step, s.Name, s.Mode, s.Pixels, s.Elapsed)
				}),
			)
			if err != nil {
				return err
			}
			if err := r.Run(cmd.Context()); err != nil {
				return err
			}
			if blendOpts.hex == "" {
				return nil
			}
			return writeHex(blendOpts.hex, r.Framebuffer(), cfg.Framebuffer.Base)
		},
	}
)

func init() {
	blendCmd.Flags().StringVarP(&blendOpts.config, "config", "c", "", "sequence configuration file (YAML)")
	blendCmd.Flags().IntVarP(&blendOpts.loops, "loops", "n", 0, "number of loops, 0 to run until interrupted (default from the configuration)")
	blendCmd.Flags().DurationVar(&blendOpts.hold, "hold", 0, "time every step stays on screen (default from the configuration)")
	blendCmd.Flags().StringVarP(&blendOpts.hex, "hex", "o", "", "write the final framebuffer to this Intel HEX file")
	blendCmd.Flags().DurationVar(&blendOpts.pixelTime, "pixel-time", dma2d.DefaultPixelTime, "simulated transfer time per pixel")
}

func loadSequence(path string) (*sequence.Config, error) {
	if path == "" {
		return sequence.Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return sequence.Load(f)
}

func writeHex(path string, fb *dma2d.Framebuffer, base uint32) error {
	if base == 0 {
		base = dma2d.FramebufferBase
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fb.WriteIntelHex(f, base); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Info("framebuffer written", "path", path, "base", fmt.Sprintf("%#x", base))
	return nil
}
