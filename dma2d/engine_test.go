package dma2d_test

import (
	"bytes"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/marcinbor85/gohex"

	"github.com/notorious-go/hwop/dma2d"
	"github.com/notorious-go/hwop/gate"
	"github.com/notorious-go/hwop/gate/gatetest"
)

func TestBlend(t *testing.T) {
	tests := []struct {
		name   string
		fg, bg uint32
		want   uint32
	}{
		{"half-red-over-blue", 0x7fff0000, 0xff0000ff, 0xff7f0080},
		{"opaque-foreground", 0xff00ff00, 0xff0000ff, 0xff00ff00},
		{"transparent-foreground", 0x00ff0000, 0xff0000ff, 0xff0000ff},
		{"both-transparent", 0x00ff0000, 0x000000ff, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dma2d.Blend(tt.fg, tt.bg); got != tt.want {
				t.Errorf("Blend(%#08x, %#08x) = %#08x; want %#08x", tt.fg, tt.bg, got, tt.want)
			}
		})
	}
}

// solid returns a CLUT whose every entry is c.
func solid(c uint32) dma2d.CLUT {
	clut := make(dma2d.CLUT, dma2d.CLUTSize)
	for i := range clut {
		clut[i] = c
	}
	return clut
}

func pfcConfig(alpha dma2d.AlphaMode, value uint8, outputOffset int) dma2d.Config {
	var c dma2d.Config
	c.Mode = dma2d.MemToMemPFC
	c.OutputOffset = outputOffset
	c.Layers[dma2d.Foreground] = dma2d.Layer{AlphaMode: alpha, InputAlpha: value}
	return c
}

func TestEngineConformance(t *testing.T) {
	e := dma2d.New(dma2d.WithPixelTime(0))
	if err := e.Configure(pfcConfig(dma2d.Replace, 0xff, 4)); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	g := gate.New[dma2d.Request, dma2d.Result](e)

	img := dma2d.Gradient(4, 2)
	fb := dma2d.NewFramebuffer(8, 2)
	gatetest.Test(t, g, []gatetest.Case[dma2d.Request, dma2d.Result]{
		{
			Name: "clut-load",
			Kind: gate.CLUTLoad,
			Req:  dma2d.Request{Layer: dma2d.Foreground, CLUT: dma2d.Grayscale()},
			Check: func(t *testing.T, res dma2d.Result) {
				if res.Pixels != dma2d.CLUTSize {
					t.Errorf("loaded %d entries; want %d", res.Pixels, dma2d.CLUTSize)
				}
			},
		},
		{
			Name: "pfc",
			Kind: gate.Blit,
			Req:  dma2d.Request{Foreground: img, Output: fb},
			Check: func(t *testing.T, res dma2d.Result) {
				if res.Pixels != 8 {
					t.Errorf("wrote %d pixels; want 8", res.Pixels)
				}
				for y := range 2 {
					for x := range 4 {
						v := uint32(img.Pix[y*4+x])
						want := 0xff000000 | v<<16 | v<<8 | v
						if got := fb.At(x, y); got != want {
							t.Errorf("pixel (%d, %d) = %#08x; want %#08x", x, y, got, want)
						}
					}
					// The output offset leaves the right half of every line alone.
					for x := 4; x < 8; x++ {
						if got := fb.At(x, y); got != 0 {
							t.Errorf("pixel (%d, %d) = %#08x; want untouched", x, y, got)
						}
					}
				}
			},
		},
		{
			Name:    "blend-in-pfc-mode",
			Kind:    gate.Blend,
			Req:     dma2d.Request{Foreground: img, Background: img, Output: fb},
			WantErr: gate.ErrHardware,
		},
		{
			Name:    "no-output",
			Kind:    gate.Blit,
			Req:     dma2d.Request{Foreground: img},
			WantErr: dma2d.ErrInvalidRequest,
		},
		{
			Name:    "empty-clut",
			Kind:    gate.CLUTLoad,
			Req:     dma2d.Request{Layer: dma2d.Background},
			WantErr: dma2d.ErrInvalidRequest,
		},
		{
			Name:    "unsupported",
			Kind:    gate.ModeTransition,
			WantErr: dma2d.ErrInvalidRequest,
		},
		{
			Name:    "area-larger-than-output",
			Kind:    gate.Blit,
			Req:     dma2d.Request{Foreground: img, Output: fb, Width: math.MaxInt, Height: math.MaxInt},
			WantErr: dma2d.ErrInvalidRequest,
		},
		{
			Name:    "output-too-small",
			Kind:    gate.Blit,
			Req:     dma2d.Request{Foreground: img, Output: dma2d.NewFramebuffer(4, 1)},
			WantErr: gate.ErrHardware,
		},
	})
}

func TestBlendTransfer(t *testing.T) {
	e := dma2d.New(dma2d.WithPixelTime(0))
	var c dma2d.Config
	c.Mode = dma2d.MemToMemBlend
	c.Layers[dma2d.Foreground] = dma2d.Layer{AlphaMode: dma2d.Replace, InputAlpha: 0x7f}
	c.Layers[dma2d.Background] = dma2d.Layer{AlphaMode: dma2d.Replace, InputAlpha: 0xff}
	if err := e.Configure(c); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	g := gate.New[dma2d.Request, dma2d.Result](e)
	ctx := t.Context()

	// The foreground CLUT is loaded before the background CLUT.
	if _, err := g.Do(ctx, gate.CLUTLoad, dma2d.Request{Layer: dma2d.Foreground, CLUT: solid(0xffff0000)}); err != nil {
		t.Fatalf("load foreground CLUT: %v", err)
	}
	if _, err := g.Do(ctx, gate.CLUTLoad, dma2d.Request{Layer: dma2d.Background, CLUT: solid(0xff0000ff)}); err != nil {
		t.Fatalf("load background CLUT: %v", err)
	}

	fb := dma2d.NewFramebuffer(3, 3)
	req := dma2d.Request{
		Foreground: dma2d.NewImage(3, 3),
		Background: dma2d.NewImage(3, 3),
		Output:     fb,
	}
	res, err := g.Do(ctx, gate.Blend, req)
	if err != nil {
		t.Fatalf("blend: %v", err)
	}
	if res.Pixels != 9 {
		t.Errorf("blended %d pixels; want 9", res.Pixels)
	}
	for i, px := range fb.Pix {
		if px != 0xff7f0080 {
			t.Fatalf("pixel %d = %#08x; want 0xff7f0080", i, px)
		}
	}
}

func loadOneEntry(t *testing.T, g *gate.Gate[dma2d.Request, dma2d.Result]) {
	t.Helper()
	if _, err := g.Do(t.Context(), gate.CLUTLoad, dma2d.Request{Layer: dma2d.Foreground, CLUT: dma2d.CLUT{0xffffffff}}); err != nil {
		t.Fatalf("load CLUT: %v", err)
	}
}

func TestTransferErrors(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T, g *gate.Gate[dma2d.Request, dma2d.Result])
		offset int
		req    dma2d.Request
		flags  dma2d.Flags
	}{
		{
			name:  "clut-not-loaded",
			req:   dma2d.Request{Foreground: dma2d.NewImage(2, 2), Output: dma2d.NewFramebuffer(2, 2)},
			flags: dma2d.CLUTAccessFlag,
		},
		{
			name:  "index-beyond-clut",
			setup: loadOneEntry,
			req:   dma2d.Request{Foreground: dma2d.Gradient(4, 1), Output: dma2d.NewFramebuffer(4, 1)},
			flags: dma2d.CLUTAccessFlag,
		},
		{
			name: "image-too-small",
			setup: func(t *testing.T, g *gate.Gate[dma2d.Request, dma2d.Result]) {
				if _, err := g.Do(t.Context(), gate.CLUTLoad, dma2d.Request{Layer: dma2d.Foreground, CLUT: dma2d.Grayscale()}); err != nil {
					t.Fatalf("load CLUT: %v", err)
				}
			},
			req:   dma2d.Request{Foreground: dma2d.NewImage(2, 2), Output: dma2d.NewFramebuffer(4, 4), Width: 4, Height: 4},
			flags: dma2d.TransferFlag,
		},
		{
			name:  "output-index-overflows",
			setup: loadOneEntry,
			req:   dma2d.Request{Foreground: dma2d.NewImage(2, 2), Output: dma2d.NewFramebuffer(4, 4), OutputIndex: math.MaxInt - 1},
			flags: dma2d.TransferFlag,
		},
		{
			name:   "output-offset-overflows",
			setup:  loadOneEntry,
			offset: math.MaxInt,
			req:    dma2d.Request{Foreground: dma2d.NewImage(2, 2), Output: dma2d.NewFramebuffer(4, 4)},
			flags:  dma2d.TransferFlag,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := dma2d.New(dma2d.WithPixelTime(0))
			if err := e.Configure(pfcConfig(dma2d.NoModify, 0, tt.offset)); err != nil {
				t.Fatalf("Configure: %v", err)
			}
			g := gate.New[dma2d.Request, dma2d.Result](e)
			if tt.setup != nil {
				tt.setup(t, g)
			}
			_, err := g.Do(t.Context(), gate.Blit, tt.req)
			var te *dma2d.TransferError
			if !errors.As(err, &te) {
				t.Fatalf("Do = %v; want a *dma2d.TransferError", err)
			}
			if te.Flags != tt.flags {
				t.Errorf("flags = %v; want %v", te.Flags, tt.flags)
			}
			for _, px := range tt.req.Output.Pix {
				if px != 0 {
					t.Fatalf("failed transfer wrote to the output")
				}
			}
		})
	}
}

func TestBusy(t *testing.T) {
	mock := clock.NewMock()
	e := dma2d.New(dma2d.WithClock(mock), dma2d.WithPixelTime(time.Microsecond))
	if err := e.Configure(pfcConfig(dma2d.NoModify, 0, 0)); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	var rec gatetest.Recorder[dma2d.Result]
	load := gate.Request[dma2d.Request]{
		Token:  1,
		Kind:   gate.CLUTLoad,
		Params: dma2d.Request{Layer: dma2d.Foreground, CLUT: dma2d.Grayscale()},
	}
	if err := e.Issue(load, &rec); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !e.Busy() {
		t.Fatal("engine not busy with a transfer in flight")
	}

	load.Token = 2
	if err := e.Issue(load, &rec); !errors.Is(err, dma2d.ErrBusy) {
		t.Errorf("Issue while busy = %v; want ErrBusy", err)
	}
	if err := e.Configure(pfcConfig(dma2d.Replace, 1, 0)); !errors.Is(err, dma2d.ErrBusy) {
		t.Errorf("Configure while busy = %v; want ErrBusy", err)
	}

	// 256 entries at a microsecond each.
	mock.Add(dma2d.CLUTSize * time.Microsecond)
	n := rec.Next(t, 0, time.Second)
	if n.Token != 1 || n.Failed() || n.Result.Pixels != dma2d.CLUTSize {
		t.Errorf("notification = %+v; want token 1 with %d entries", n, dma2d.CLUTSize)
	}
	if e.Busy() {
		t.Error("engine still busy after the transfer completed")
	}
	rec.Quiet(t, 1, 10*time.Millisecond)
}

func TestConfigureRejects(t *testing.T) {
	e := dma2d.New()
	if err := e.Configure(dma2d.Config{}); !errors.Is(err, dma2d.ErrInvalidRequest) {
		t.Errorf("Configure without mode = %v; want ErrInvalidRequest", err)
	}
	if err := e.Configure(pfcConfig(dma2d.NoModify, 0, -1)); !errors.Is(err, dma2d.ErrInvalidRequest) {
		t.Errorf("Configure with negative offset = %v; want ErrInvalidRequest", err)
	}
}

func TestAlphaModes(t *testing.T) {
	tests := []struct {
		mode  dma2d.AlphaMode
		alpha uint8
		want  uint32
	}{
		{dma2d.NoModify, 0x10, 0x80123456},
		{dma2d.Replace, 0x10, 0x10123456},
		{dma2d.Combine, 0x7f, 0x3f123456},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			e := dma2d.New(dma2d.WithPixelTime(0))
			if err := e.Configure(pfcConfig(tt.mode, tt.alpha, 0)); err != nil {
				t.Fatalf("Configure: %v", err)
			}
			g := gate.New[dma2d.Request, dma2d.Result](e)
			if _, err := g.Do(t.Context(), gate.CLUTLoad, dma2d.Request{Layer: dma2d.Foreground, CLUT: solid(0x80123456)}); err != nil {
				t.Fatalf("load CLUT: %v", err)
			}
			fb := dma2d.NewFramebuffer(1, 1)
			if _, err := g.Do(t.Context(), gate.Blit, dma2d.Request{Foreground: dma2d.NewImage(1, 1), Output: fb}); err != nil {
				t.Fatalf("blit: %v", err)
			}
			if got := fb.At(0, 0); got != tt.want {
				t.Errorf("pixel = %#08x; want %#08x", got, tt.want)
			}
		})
	}
}

func TestWriteIntelHex(t *testing.T) {
	fb := dma2d.NewFramebuffer(4, 4)
	for i := range fb.Pix {
		fb.Pix[i] = 0xff000000 | uint32(i)
	}
	var buf bytes.Buffer
	if err := fb.WriteIntelHex(&buf, dma2d.FramebufferBase); err != nil {
		t.Fatalf("WriteIntelHex: %v", err)
	}

	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(&buf); err != nil {
		t.Fatalf("ParseIntelHex: %v", err)
	}
	segments := mem.GetDataSegments()
	if len(segments) != 1 {
		t.Fatalf("got %d segments; want 1", len(segments))
	}
	if segments[0].Address != dma2d.FramebufferBase {
		t.Errorf("segment address = %#x; want %#x", segments[0].Address, dma2d.FramebufferBase)
	}
	if !bytes.Equal(segments[0].Data, fb.Bytes()) {
		t.Errorf("segment data does not match the framebuffer")
	}
	// Pixel 1 is stored little-endian.
	if got := segments[0].Data[4:8]; !bytes.Equal(got, []byte{0x01, 0x00, 0x00, 0xff}) {
		t.Errorf("pixel 1 bytes = % x; want 01 00 00 ff", got)
	}
}
