package controller

import (
	"fmt"
	"log/slog"

	"lautenbacher.net/goecp/color"
	c "lautenbacher.net/goecp/config"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/host/v3"
)

// nrzFreq is the SPI clock that gives WS2812 timing with nrzled's 3 bit
// per bit encoding.
const nrzFreq = 2500 * physic.KiloHertz

// NRZ drives a WS2812 style strip by shaping the data line with SPI.
type NRZ struct {
	cfg    c.DisplayConfig
	port   spi.PortCloser
	dev    *nrzled.Dev
	layout layout
	leds   []color.Pixel
	out    []color.Pixel
	rgb    []byte
}

func OpenNRZ(cfg c.DisplayConfig) (*NRZ, error) {
	slog.Info("Initialise Spi for NRZ LEDs...", "device", cfg.SPIDevice)
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to init periph: %w", err)
	}
	port, err := spireg.Open(cfg.SPIDevice)
	if err != nil {
		return nil, fmt.Errorf("failed to open spi: %w", err)
	}
	return newNRZ(cfg, port)
}

func newNRZ(cfg c.DisplayConfig, port spi.PortCloser) (*NRZ, error) {
	opts := nrzled.Opts{
		NumPixels: cfg.LedsTotal,
		Channels:  3,
		Freq:      nrzFreq,
	}
	dev, err := nrzled.NewSPI(port, &opts)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to create nrzled device: %w", err)
	}
	return &NRZ{
		cfg:    cfg,
		port:   port,
		dev:    dev,
		layout: newLayout(cfg.Segments, cfg.LedsTotal),
		leds:   make([]color.Pixel, cfg.LedsTotal),
		out:    make([]color.Pixel, cfg.LedsTotal),
		rgb:    make([]byte, 3*cfg.LedsTotal),
	}, nil
}

func (n *NRZ) Leds() []color.Pixel {
	return n.leds
}

func (n *NRZ) Render() error {
	for i, px := range n.layout.apply(n.out, n.leds) {
		n.rgb[3*i], n.rgb[3*i+1], n.rgb[3*i+2] = corrected(px, n.cfg.ColorCorrection)
	}
	if _, err := n.dev.Write(n.rgb); err != nil {
		return fmt.Errorf("nrzled write failed: %w", err)
	}
	return nil
}

func (n *NRZ) Close() error {
	if err := n.dev.Halt(); err != nil {
		slog.Warn("Could not blank strip", "error", err)
	}
	return n.port.Close()
}

func (n *NRZ) String() string {
	return n.dev.String()
}
