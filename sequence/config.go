package sequence

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/notorious-go/hwop/dma2d"
)

//go:embed default.yaml
var defaultConfig []byte

// Config describes a sequence of accelerator transfers.
type Config struct {
	Name        string      `yaml:"name"`
	Framebuffer Framebuffer `yaml:"framebuffer"`

	// Timeout bounds every CLUT load and transfer.
	Timeout time.Duration `yaml:"timeout"`

	// Hold is the time every step stays on screen.
	Hold time.Duration `yaml:"hold"`

	// Loops is the number of times the steps are run. Zero runs them until
	// the context is done.
	Loops int `yaml:"loops"`

	// Retries is the number of times an operation that timed out, or found
	// the accelerator busy, is tried again.
	Retries int `yaml:"retries"`

	Images   map[string]Image  `yaml:"images"`
	Palettes map[string]string `yaml:"palettes"`
	Steps    []Step            `yaml:"steps"`
}

// Framebuffer is the geometry and load address of the output.
type Framebuffer struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Base   uint32 `yaml:"base"`
}

// Image names a synthetic L8 image, see dma2d.Pattern.
type Image struct {
	Pattern string `yaml:"pattern"`
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
	Cell    int    `yaml:"cell"`
}

// Step is one configuration of the accelerator and the transfer it runs.
type Step struct {
	Name       string `yaml:"name"`
	Mode       string `yaml:"mode"`
	Foreground *Layer `yaml:"foreground"`
	Background *Layer `yaml:"background"`
}

// Layer selects the image and palette of an input layer.
type Layer struct {
	Image     string `yaml:"image"`
	Palette   string `yaml:"palette"`
	AlphaMode string `yaml:"alpha-mode"`
	Alpha     int    `yaml:"alpha"`
}

// Load decodes a configuration from r and validates it. Unknown fields are
// rejected.
func Load(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var c Config
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("sequence: decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default returns the built-in blend demo.
func Default() *Config {
	c, err := Load(bytes.NewReader(defaultConfig))
	if err != nil {
		panic(fmt.Errorf("sequence: default config: %w", err))
	}
	return c
}

// Validate reports every problem of the configuration.
func (c *Config) Validate() error {
	_, err := c.plan()
	return err
}

// A step resolved to accelerator types.
type plannedStep struct {
	name       string
	config     dma2d.Config
	foreground plannedLayer
	background *plannedLayer
	width      int
	height     int
}

type plannedLayer struct {
	image *dma2d.Image
	clut  dma2d.CLUT
}

// plan resolves the named images and palettes of every step.
func (c *Config) plan() ([]plannedStep, error) {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("sequence: "+format, args...))
	}

	if c.Framebuffer.Width <= 0 || c.Framebuffer.Height <= 0 {
		fail("framebuffer size %dx%d", c.Framebuffer.Width, c.Framebuffer.Height)
	}
	if c.Timeout <= 0 {
		fail("timeout %v is not positive", c.Timeout)
	}
	if c.Hold < 0 || c.Loops < 0 || c.Retries < 0 {
		fail("negative hold, loops or retries")
	}
	if len(c.Steps) == 0 {
		fail("no steps")
	}

	images := make(map[string]*dma2d.Image, len(c.Images))
	for name, def := range c.Images {
		img, err := dma2d.Pattern(def.Pattern, def.Width, def.Height, def.Cell)
		if err != nil {
			fail("image %q: %v", name, err)
			continue
		}
		images[name] = img
	}
	cluts := make(map[string]dma2d.CLUT, len(c.Palettes))
	for name, builtin := range c.Palettes {
		clut, err := dma2d.Palette(builtin)
		if err != nil {
			fail("palette %q: %v", name, err)
			continue
		}
		cluts[name] = clut
	}

	layer := func(step string, role string, l *Layer) (plannedLayer, dma2d.Layer, bool) {
		var cfg dma2d.Layer
		img, ok := images[l.Image]
		if !ok {
			fail("step %q: %s image %q is not defined", step, role, l.Image)
		}
		clut, ok2 := cluts[l.Palette]
		if !ok2 {
			fail("step %q: %s palette %q is not defined", step, role, l.Palette)
		}
		mode, err := dma2d.ParseAlphaMode(l.AlphaMode)
		if err != nil {
			fail("step %q: %s: %v", step, role, err)
		}
		if l.Alpha < 0 || l.Alpha > 255 {
			fail("step %q: %s alpha %d out of range", step, role, l.Alpha)
		}
		cfg.AlphaMode = mode
		cfg.InputAlpha = uint8(l.Alpha)
		return plannedLayer{image: img, clut: clut}, cfg, ok && ok2 && err == nil
	}

	var steps []plannedStep
	for i, s := range c.Steps {
		name := s.Name
		if name == "" {
			name = fmt.Sprintf("#%d", i)
		}
		mode, err := dma2d.ParseMode(s.Mode)
		if err != nil {
			fail("step %q: %v", name, err)
			continue
		}
		if s.Foreground == nil {
			fail("step %q: no foreground", name)
			continue
		}
		if mode == dma2d.MemToMemBlend && s.Background == nil {
			fail("step %q: blend without background", name)
			continue
		}
		if mode == dma2d.MemToMemPFC && s.Background != nil {
			fail("step %q: pfc does not read a background", name)
			continue
		}

		p := plannedStep{name: name}
		p.config.Mode = mode
		fg, fgCfg, ok := layer(name, "foreground", s.Foreground)
		if !ok {
			continue
		}
		p.foreground = fg
		p.config.Layers[dma2d.Foreground] = fgCfg
		p.width, p.height = fg.image.Width, fg.image.Height

		if s.Background != nil {
			bg, bgCfg, ok := layer(name, "background", s.Background)
			if !ok {
				continue
			}
			if bg.image.Width != p.width || bg.image.Height != p.height {
				fail("step %q: background %dx%d does not match foreground %dx%d",
					name, bg.image.Width, bg.image.Height, p.width, p.height)
				continue
			}
			p.background = &bg
			p.config.Layers[dma2d.Background] = bgCfg
		}

		if p.width > c.Framebuffer.Width || p.height > c.Framebuffer.Height {
			fail("step %q: image %dx%d does not fit the framebuffer", name, p.width, p.height)
			continue
		}
		// The image is written to the top-left corner, skipping the rest of
		// every framebuffer line.
		p.config.OutputOffset = c.Framebuffer.Width - p.width
		steps = append(steps, p)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return steps, nil
}
