// Package controller holds the LED strip backends the renderer draws on.
package controller

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"lautenbacher.net/goecp/color"
	c "lautenbacher.net/goecp/config"
	"lautenbacher.net/goecp/renderer"
)

// Controller is a renderer.Controller that owns hardware or a screen and
// must be released.
type Controller interface {
	renderer.Controller
	Close() error
}

// Options carries what some backends need beyond the display config.
type Options struct {
	// OnQuit is called when the user asks to exit from an interactive
	// backend.
	OnQuit func()
}

type factory func(cfg c.DisplayConfig, opts Options) (Controller, error)

var backends = map[string]factory{
	"null": func(cfg c.DisplayConfig, _ Options) (Controller, error) {
		return NewMemory(cfg.LedsTotal), nil
	},
	"tui": func(cfg c.DisplayConfig, opts Options) (Controller, error) {
		return NewTUI(TUIOptions{Leds: cfg.LedsTotal, OnQuit: opts.OnQuit})
	},
	"apa102": func(cfg c.DisplayConfig, _ Options) (Controller, error) {
		return OpenSPI(cfg, APA102)
	},
	"ws2801": func(cfg c.DisplayConfig, _ Options) (Controller, error) {
		return OpenSPI(cfg, WS2801)
	},
	"ws2812": func(cfg c.DisplayConfig, _ Options) (Controller, error) {
		return OpenNRZ(cfg)
	},
}

// Names lists the known backends in order.
func Names() []string {
	return slices.Sorted(maps.Keys(backends))
}

// New opens the backend named by cfg.Controller.
func New(cfg c.DisplayConfig, opts Options) (Controller, error) {
	f, ok := backends[strings.ToLower(cfg.Controller)]
	if !ok {
		return nil, fmt.Errorf("unknown controller %q, known: %v", cfg.Controller, Names())
	}
	ctl, err := f(cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("can't open %s controller: %w", cfg.Controller, err)
	}
	return ctl, nil
}

// corrected applies the per channel color correction and returns red,
// green, blue.
func corrected(px color.Pixel, cc []float64) (byte, byte, byte) {
	return correct(px[2], cc[0]), correct(px[1], cc[1]), correct(px[0], cc[2])
}

func correct(v byte, factor float64) byte {
	return byte(min(float64(v)*factor, 255))
}
