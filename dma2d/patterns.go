package dma2d

import (
	"fmt"
	"sort"
)

// Gradient returns an image whose indices rise from 0 at the left edge to 255
// at the right edge.
func Gradient(width, height int) *Image {
	img := NewImage(width, height)
	for y := range height {
		for x := range width {
			img.Pix[y*width+x] = uint8(x * 255 / max(width-1, 1))
		}
	}
	return img
}

// Checker returns a checkerboard of cell-sized squares alternating between
// index 0 and index 255.
func Checker(width, height, cell int) *Image {
	cell = max(cell, 1)
	img := NewImage(width, height)
	for y := range height {
		for x := range width {
			if (x/cell+y/cell)%2 == 1 {
				img.Pix[y*width+x] = 255
			}
		}
	}
	return img
}

// Bars returns an image of n vertical bars with indices spread evenly over
// the CLUT.
func Bars(width, height, n int) *Image {
	n = max(n, 1)
	img := NewImage(width, height)
	for y := range height {
		for x := range width {
			bar := x * n / max(width, 1)
			img.Pix[y*width+x] = uint8(bar * 255 / max(n-1, 1))
		}
	}
	return img
}

// Grayscale returns an opaque CLUT from black to white.
func Grayscale() CLUT {
	clut := make(CLUT, CLUTSize)
	for i := range clut {
		v := uint32(i)
		clut[i] = 0xff000000 | v<<16 | v<<8 | v
	}
	return clut
}

// Rainbow returns an opaque CLUT sweeping the hue circle once.
func Rainbow() CLUT {
	clut := make(CLUT, CLUTSize)
	for i := range clut {
		// Six sectors of the hue circle, each ramping one channel.
		h := i * 6 * 255 / (CLUTSize - 1)
		sector, f := h/255, uint32(h%255)
		var r, g, b uint32
		switch sector {
		case 0:
			r, g, b = 255, f, 0
		case 1:
			r, g, b = 255-f, 255, 0
		case 2:
			r, g, b = 0, 255, f
		case 3:
			r, g, b = 0, 255-f, 255
		case 4:
			r, g, b = f, 0, 255
		default:
			r, g, b = 255, 0, 255-f
		}
		clut[i] = 0xff000000 | r<<16 | g<<8 | b
	}
	return clut
}

// Heat returns an opaque CLUT from black through red and yellow to white.
func Heat() CLUT {
	clut := make(CLUT, CLUTSize)
	for i := range clut {
		v := uint32(i) * 3
		r := min(v, 255)
		g := min(max(int(v)-255, 0), 255)
		b := min(max(int(v)-510, 0), 255)
		clut[i] = 0xff000000 | r<<16 | uint32(g)<<8 | uint32(b)
	}
	return clut
}

var patterns = map[string]func(width, height, cell int) *Image{
	"gradient": func(w, h, _ int) *Image { return Gradient(w, h) },
	"checker":  Checker,
	"bars":     Bars,
}

var palettes = map[string]func() CLUT{
	"grayscale": Grayscale,
	"rainbow":   Rainbow,
	"heat":      Heat,
}

// Pattern returns the synthetic image with the given name. The cell argument
// is the checker square size or the number of bars, and is ignored by the
// gradient.
func Pattern(name string, width, height, cell int) (*Image, error) {
	fn, ok := patterns[name]
	if !ok {
		return nil, fmt.Errorf("dma2d: unknown pattern %q (have %v)", name, names(patterns))
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("dma2d: pattern %q of size %dx%d", name, width, height)
	}
	return fn(width, height, cell), nil
}

// Palette returns the CLUT with the given name.
func Palette(name string) (CLUT, error) {
	fn, ok := palettes[name]
	if !ok {
		return nil, fmt.Errorf("dma2d: unknown palette %q (have %v)", name, names(palettes))
	}
	return fn(), nil
}

func names[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
