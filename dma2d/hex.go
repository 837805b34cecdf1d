package dma2d

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/marcinbor85/gohex"
)

// FramebufferBase is the address of the LCD frame buffer in external SDRAM.
const FramebufferBase = 0xD0000000

// hexLineLength is the number of data bytes per Intel HEX record.
const hexLineLength = 32

// Bytes returns the framebuffer as it is laid out in memory: one little-endian
// ARGB8888 word per pixel.
func (f *Framebuffer) Bytes() []byte {
	b := make([]byte, 4*len(f.Pix))
	for i, px := range f.Pix {
		binary.LittleEndian.PutUint32(b[4*i:], px)
	}
	return b
}

// WriteIntelHex writes the framebuffer to w as an Intel HEX image loaded at
// base, ready to be written to the board's memory by a debugger.
func (f *Framebuffer) WriteIntelHex(w io.Writer, base uint32) error {
	mem := gohex.NewMemory()
	if err := mem.AddBinary(base, f.Bytes()); err != nil {
		return fmt.Errorf("dma2d: framebuffer at %#x: %w", base, err)
	}
	if err := mem.DumpIntelHex(w, hexLineLength); err != nil {
		return fmt.Errorf("dma2d: write intel hex: %w", err)
	}
	return nil
}
