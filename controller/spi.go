package controller

import (
	"fmt"
	"log/slog"

	"github.com/stianeikeland/go-rpio/v4"
	"lautenbacher.net/goecp/color"
	c "lautenbacher.net/goecp/config"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Encoder turns a frame into the byte stream of one LED chip family.
// It appends to dst and returns the result.
type Encoder func(dst []byte, frame []color.Pixel, cfg c.DisplayConfig) []byte

// APA102 frames: four zero bytes, then per LED a brightness byte (0xE0 |
// 0..31) followed by blue, green, red, then an end frame of 0xFF bytes,
// one per 16 LEDs plus one.
func APA102(dst []byte, frame []color.Pixel, cfg c.DisplayConfig) []byte {
	dst = append(dst, 0, 0, 0, 0)
	brightness := byte(cfg.APA102Brightness) | 0xE0
	for _, px := range frame {
		r, g, b := corrected(px, cfg.ColorCorrection)
		dst = append(dst, brightness, b, g, r)
	}
	for i := 0; i < len(frame)/16+1; i++ {
		dst = append(dst, 0xFF)
	}
	return dst
}

// WS2801 frames are plain red, green, blue triples.
func WS2801(dst []byte, frame []color.Pixel, cfg c.DisplayConfig) []byte {
	for _, px := range frame {
		r, g, b := corrected(px, cfg.ColorCorrection)
		dst = append(dst, r, g, b)
	}
	return dst
}

// bus is a write only SPI link.
type bus interface {
	Tx(data []byte) error
	Close() error
}

type periphBus struct {
	port spi.PortCloser
	conn spi.Conn
}

func newPeriphBus(port spi.PortCloser, freq int) (*periphBus, error) {
	conn, err := port.Connect(physic.Frequency(freq)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to connect to spi device: %w", err)
	}
	return &periphBus{port: port, conn: conn}, nil
}

func (b *periphBus) Tx(data []byte) error {
	return b.conn.Tx(data, nil)
}

func (b *periphBus) Close() error {
	return b.port.Close()
}

type rpioBus struct{}

func openRpioBus(freq int) (*rpioBus, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open rpio: %w", err)
	}
	if err := rpio.SpiBegin(rpio.Spi0); err != nil {
		rpio.Close()
		return nil, fmt.Errorf("failed to begin spi: %w", err)
	}
	rpio.SpiSpeed(freq)
	return &rpioBus{}, nil
}

func (rpioBus) Tx(data []byte) error {
	rpio.SpiTransmit(data...)
	return nil
}

func (rpioBus) Close() error {
	rpio.SpiEnd(rpio.Spi0)
	return rpio.Close()
}

// SPI drives a clocked LED strip (APA102, WS2801).
type SPI struct {
	cfg    c.DisplayConfig
	encode Encoder
	bus    bus
	layout layout
	leds   []color.Pixel
	out    []color.Pixel
	buf    []byte
}

// OpenSPI opens the SPI device named in cfg with the configured driver.
func OpenSPI(cfg c.DisplayConfig, encode Encoder) (*SPI, error) {
	var (
		b   bus
		err error
	)
	if cfg.SPIDriver == "rpio" {
		b, err = openRpioBus(cfg.SPIFrequency)
	} else {
		b, err = openPeriphBus(cfg)
	}
	if err != nil {
		return nil, err
	}
	return newSPI(cfg, encode, b), nil
}

func openPeriphBus(cfg c.DisplayConfig) (bus, error) {
	slog.Info("Initialise GPIO and Spi...", "device", cfg.SPIDevice)
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to init periph: %w", err)
	}
	port, err := spireg.Open(cfg.SPIDevice)
	if err != nil {
		return nil, fmt.Errorf("failed to open spi: %w", err)
	}
	return newPeriphBus(port, cfg.SPIFrequency)
}

func newSPI(cfg c.DisplayConfig, encode Encoder, b bus) *SPI {
	return &SPI{
		cfg:    cfg,
		encode: encode,
		bus:    b,
		layout: newLayout(cfg.Segments, cfg.LedsTotal),
		leds:   make([]color.Pixel, cfg.LedsTotal),
		out:    make([]color.Pixel, cfg.LedsTotal),
	}
}

func (s *SPI) Leds() []color.Pixel {
	return s.leds
}

func (s *SPI) Render() error {
	frame := s.layout.apply(s.out, s.leds)
	s.buf = s.encode(s.buf[:0], frame, s.cfg)
	if err := s.bus.Tx(s.buf); err != nil {
		return fmt.Errorf("spi transaction failed: %w", err)
	}
	return nil
}

// Close blanks the strip and releases the bus.
func (s *SPI) Close() error {
	clear(s.leds)
	if err := s.Render(); err != nil {
		slog.Warn("Could not blank strip", "error", err)
	}
	return s.bus.Close()
}
