package dma2d

import "fmt"

// Mode is the transfer mode of the accelerator.
type Mode uint8

const (
	// MemToMemPFC reads the foreground layer and converts it to the output
	// pixel format.
	MemToMemPFC Mode = iota + 1
	// MemToMemBlend blends the foreground layer over the background layer.
	MemToMemBlend
)

func (m Mode) String() string {
	switch m {
	case MemToMemPFC:
		return "m2m-pfc"
	case MemToMemBlend:
		return "m2m-blend"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode returns the Mode named by s, as printed by Mode.String. The
// short names "pfc" and "blend" are accepted too.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "m2m-pfc", "pfc":
		return MemToMemPFC, nil
	case "m2m-blend", "blend":
		return MemToMemBlend, nil
	}
	return 0, fmt.Errorf("dma2d: unknown mode %q", s)
}

// AlphaMode selects how a layer derives the alpha of its pixels.
type AlphaMode uint8

const (
	// NoModify keeps the alpha of the CLUT entry.
	NoModify AlphaMode = iota
	// Replace replaces the alpha with the layer's InputAlpha.
	Replace
	// Combine multiplies the alpha with the layer's InputAlpha.
	Combine
)

func (a AlphaMode) String() string {
	switch a {
	case NoModify:
		return "no-modify"
	case Replace:
		return "replace"
	case Combine:
		return "combine"
	default:
		return fmt.Sprintf("alpha-mode(%d)", uint8(a))
	}
}

// ParseAlphaMode returns the AlphaMode named by s, as printed by
// AlphaMode.String. The empty string is NoModify.
func ParseAlphaMode(s string) (AlphaMode, error) {
	switch s {
	case "", "no-modify":
		return NoModify, nil
	case "replace":
		return Replace, nil
	case "combine":
		return Combine, nil
	}
	return 0, fmt.Errorf("dma2d: unknown alpha mode %q", s)
}

func (a AlphaMode) apply(argb uint32, alpha uint8) uint32 {
	switch a {
	case Replace:
		return argb&0x00ffffff | uint32(alpha)<<24
	case Combine:
		combined := (argb >> 24) * uint32(alpha) / 255
		return argb&0x00ffffff | combined<<24
	default:
		return argb
	}
}

// Layer indices.
const (
	Background = 0
	Foreground = 1
)

// Layer is the configuration of one input layer.
type Layer struct {
	AlphaMode  AlphaMode
	InputAlpha uint8
	// InputOffset is the number of pixels skipped at the end of every input
	// line.
	InputOffset int
}

// Config is the configuration applied by Engine.Configure.
type Config struct {
	Mode Mode
	// OutputOffset is the number of pixels skipped at the end of every output
	// line. Writing an image narrower than the framebuffer uses an offset of
	// the difference of the widths.
	OutputOffset int
	// Layers holds the background and foreground layer configuration.
	Layers [2]Layer
}

// CLUTSize is the number of entries of a full color look-up table.
const CLUTSize = 256

// CLUT is a color look-up table of ARGB8888 entries.
type CLUT []uint32

// Image is an L8 image: every pixel is an index into a CLUT.
type Image struct {
	Width, Height int
	Pix           []uint8
}

// NewImage returns a blank image of the given size.
func NewImage(width, height int) *Image {
	return &Image{Width: width, Height: height, Pix: make([]uint8, width*height)}
}

// Framebuffer is an ARGB8888 output buffer.
type Framebuffer struct {
	Width, Height int
	Pix           []uint32
}

// NewFramebuffer returns a black, transparent framebuffer of the given size.
func NewFramebuffer(width, height int) *Framebuffer {
	return &Framebuffer{Width: width, Height: height, Pix: make([]uint32, width*height)}
}

// At returns the pixel at (x, y).
func (f *Framebuffer) At(x, y int) uint32 {
	return f.Pix[y*f.Width+x]
}

// Clear fills the framebuffer with c.
func (f *Framebuffer) Clear(c uint32) {
	for i := range f.Pix {
		f.Pix[i] = c
	}
}

// Blend returns the result of blending the foreground color fg over the
// background color bg, both ARGB8888 with their alpha already applied.
func Blend(fg, bg uint32) uint32 {
	af, ab := fg>>24, bg>>24
	mult := af * ab / 255
	aout := af + ab - mult
	if aout == 0 {
		return 0
	}
	out := aout << 24
	for shift := 0; shift < 24; shift += 8 {
		cf := fg >> shift & 0xff
		cb := bg >> shift & 0xff
		c := (cf*af + cb*ab - cb*mult) / aout
		out |= c << shift
	}
	return out
}
