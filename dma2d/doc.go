// Package dma2d models the Chrom-ART (DMA2D) graphics accelerator of the
// STM32H7 family closely enough to exercise the asynchronous-operation gate
// on a host.
//
// # Model
//
// The accelerator has two input layers and one output. Layer 0 is the
// background and layer 1 the foreground. Each input layer reads L8 images,
// whose pixels are indices into the color look-up table (CLUT) loaded into
// that layer, and applies its alpha mode to the looked-up ARGB8888 color.
// The output is written to an ARGB8888 [Framebuffer].
//
// An [Engine] is configured with [Engine.Configure] while idle and then runs
// three kinds of operation, each started through a gate and resolved from a
// timer callback that stands in for the transfer-complete interrupt:
//
//   - gate.CLUTLoad loads the CLUT of one layer.
//   - gate.Blit converts the foreground image to ARGB8888 (mode
//     MemToMemPFC).
//   - gate.Blend blends the foreground image over the background image
//     (mode MemToMemBlend).
//
// A transfer occupies the engine for PixelTime per pixel (or per CLUT
// entry). While it is in flight the engine rejects further requests and
// configuration with [ErrBusy].
//
// # Blending
//
// For a foreground color with alpha αf and a background color with alpha αb,
// the output is
//
//	mult = αf·αb / 255
//	αout = αf + αb − mult
//	C    = (Cf·αf + Cb·αb − Cb·mult) / αout
//
// for every color channel C, with integer division, as the hardware does.
//
// # Errors
//
// Requests that can never run, such as a missing output or an empty CLUT,
// are rejected by Issue with [ErrInvalidRequest]. Conditions the hardware
// only detects while running are reported through the notifier as a
// [*TransferError] with the interrupt flags that would have been raised.
package dma2d
