package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"lautenbacher.net/goecp/protocol"
)

const CONFILE = "config.yml"

type Config struct {
	Receiver  ReceiverConfig  `yaml:"Receiver"`
	Renderer  RendererConfig  `yaml:"Renderer"`
	Display   DisplayConfig   `yaml:"Display"`
	Palette   PaletteConfig   `yaml:"Palette"`
	NightMode NightModeConfig `yaml:"NightMode"`
	Sender    SenderConfig    `yaml:"Sender"`
	Logging   LoggingConfig   `yaml:"Logging"`
}

type ReceiverConfig struct {
	Transport string `yaml:"Transport"`
	Listen    string `yaml:"Listen"`
	Path      string `yaml:"Path"`
	ConfigAPI bool   `yaml:"ConfigAPI"`
}

type RendererConfig struct {
	TargetFPS     float64       `yaml:"TargetFPS" json:"TargetFPS"`
	Blend         int           `yaml:"Blend" json:"Blend"`
	Verbose       bool          `yaml:"Verbose" json:"Verbose"`
	StatsInterval time.Duration `yaml:"StatsInterval" json:"-"`
}

type DisplayConfig struct {
	Controller       string    `yaml:"Controller"`
	LedsTotal        int       `yaml:"LedsTotal"`
	SPIDevice        string    `yaml:"SPIDevice"`
	SPIDriver        string    `yaml:"SPIDriver"`
	SPIFrequency     int       `yaml:"SPIFrequency"`
	ColorCorrection  []float64 `yaml:"ColorCorrection"`
	APA102Brightness int       `yaml:"APA102Brightness"`
	// Segments remap spans of the physical strip. LEDs outside every
	// segment are driven in frame order.
	Segments []SegmentConfig `yaml:"Segments"`
}

// SegmentConfig is an inclusive span of physical LEDs that is wired in
// reverse or not shown at all.
type SegmentConfig struct {
	First   int  `yaml:"First"`
	Last    int  `yaml:"Last"`
	Reverse bool `yaml:"Reverse"`
	Hidden  bool `yaml:"Hidden"`
}

// PaletteConfig overrides palette slots by index and sets the global
// brightness (0-255) applied on top of all slots.
type PaletteConfig struct {
	Brightness int           `yaml:"Brightness" json:"Brightness"`
	Colors     map[int][]int `yaml:"Colors" json:"Colors"`
}

type NightModeConfig struct {
	Enabled    bool    `yaml:"Enabled" json:"Enabled"`
	Latitude   float64 `yaml:"Latitude" json:"Latitude"`
	Longitude  float64 `yaml:"Longitude" json:"Longitude"`
	Brightness int     `yaml:"Brightness" json:"Brightness"`
}

type SenderConfig struct {
	URL            string        `yaml:"URL"`
	MTU            int           `yaml:"MTU"`
	Producer       string        `yaml:"Producer"`
	Elements       int           `yaml:"Elements"`
	Interval       time.Duration `yaml:"Interval"`
	ResyncInterval time.Duration `yaml:"ResyncInterval"`
}

type LoggingConfig struct {
	Level  string `yaml:"Level"`
	Format string `yaml:"Format"`
	File   string `yaml:"File"`
}

var (
	controllers = []string{"tui", "apa102", "ws2801", "ws2812", "null"}
	transports  = []string{"ws", "local"}
	producers   = []string{"cylon", "stack"}
	spiDrivers  = []string{"periph", "rpio"}
)

// Default returns the configuration used for every key the file leaves
// out.
func Default() *Config {
	return &Config{
		Receiver: ReceiverConfig{
			Transport: "ws",
			Listen:    ":8080",
			Path:      "/ecp",
		},
		Renderer: RendererConfig{
			TargetFPS:     60,
			Blend:         3,
			StatsInterval: 5 * time.Second,
		},
		Display: DisplayConfig{
			Controller:       "tui",
			LedsTotal:        288,
			SPIDevice:        "/dev/spidev0.0",
			SPIDriver:        "periph",
			SPIFrequency:     4_000_000,
			ColorCorrection:  []float64{1, 1, 1},
			APA102Brightness: 31,
		},
		Palette: PaletteConfig{
			Brightness: 255,
		},
		NightMode: NightModeConfig{
			Brightness: 64,
		},
		Sender: SenderConfig{
			URL:            "ws://localhost:8080/ecp",
			MTU:            244,
			Producer:       "stack",
			Elements:       8,
			Interval:       100 * time.Millisecond,
			ResyncInterval: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}

// ReadConfig reads and validates cfile. Keys missing from the file keep
// their Default value.
func ReadConfig(cfile string) (*Config, error) {
	f, err := os.Open(cfile)
	if err != nil {
		return nil, fmt.Errorf("can't open config file %s: %w", cfile, err)
	}
	defer f.Close()

	conf := Default()
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(conf); err != nil {
		return nil, fmt.Errorf("can't decode config file %s: %w", cfile, err)
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", cfile, err)
	}
	return conf, nil
}

// Validate checks ranges and cross field constraints.
func (c *Config) Validate() error {
	if !oneOf(c.Receiver.Transport, transports) {
		return fmt.Errorf("Receiver.Transport %q must be one of %v", c.Receiver.Transport, transports)
	}
	if !strings.HasPrefix(c.Receiver.Path, "/") {
		return fmt.Errorf("Receiver.Path %q must start with /", c.Receiver.Path)
	}

	if c.Renderer.TargetFPS <= 0 {
		return fmt.Errorf("Renderer.TargetFPS must be positive, got %v", c.Renderer.TargetFPS)
	}
	if err := checkByte("Renderer.Blend", c.Renderer.Blend); err != nil {
		return err
	}
	if c.Renderer.StatsInterval <= 0 {
		return fmt.Errorf("Renderer.StatsInterval must be positive, got %v", c.Renderer.StatsInterval)
	}

	if !oneOf(c.Display.Controller, controllers) {
		return fmt.Errorf("Display.Controller %q must be one of %v", c.Display.Controller, controllers)
	}
	if c.Display.LedsTotal <= 0 {
		return fmt.Errorf("Display.LedsTotal must be positive, got %d", c.Display.LedsTotal)
	}
	if !oneOf(c.Display.SPIDriver, spiDrivers) {
		return fmt.Errorf("Display.SPIDriver %q must be one of %v", c.Display.SPIDriver, spiDrivers)
	}
	if c.Display.SPIFrequency <= 0 {
		return fmt.Errorf("Display.SPIFrequency must be positive, got %d", c.Display.SPIFrequency)
	}
	if len(c.Display.ColorCorrection) != 3 {
		return fmt.Errorf("Display.ColorCorrection must have 3 values, got %d", len(c.Display.ColorCorrection))
	}
	for _, v := range c.Display.ColorCorrection {
		if v < 0 {
			return fmt.Errorf("Display.ColorCorrection values must not be negative, got %v", v)
		}
	}
	if c.Display.APA102Brightness < 0 || c.Display.APA102Brightness > 31 {
		return fmt.Errorf("Display.APA102Brightness must be between 0 and 31, got %d", c.Display.APA102Brightness)
	}

	if err := validateSegments(c.Display.Segments); err != nil {
		return err
	}

	if err := c.Palette.Validate(); err != nil {
		return err
	}
	if err := c.NightMode.Validate(); err != nil {
		return err
	}

	if c.Sender.MTU < protocol.BaseTimeLen+protocol.MaxRecordLen {
		return fmt.Errorf("Sender.MTU must be at least %d bytes, got %d", protocol.BaseTimeLen+protocol.MaxRecordLen, c.Sender.MTU)
	}
	if !oneOf(c.Sender.Producer, producers) {
		return fmt.Errorf("Sender.Producer %q must be one of %v", c.Sender.Producer, producers)
	}
	if c.Sender.Elements < 1 || c.Sender.Elements > 256 {
		return fmt.Errorf("Sender.Elements must be between 1 and 256, got %d", c.Sender.Elements)
	}
	if c.Sender.Interval <= 0 {
		return fmt.Errorf("Sender.Interval must be positive, got %v", c.Sender.Interval)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("Logging.Format %q must be text or json", c.Logging.Format)
	}
	return nil
}

func (p PaletteConfig) Validate() error {
	if err := checkByte("Palette.Brightness", p.Brightness); err != nil {
		return err
	}
	for index, rgb := range p.Colors {
		if err := checkByte("Palette.Colors index", index); err != nil {
			return err
		}
		if len(rgb) != 3 {
			return fmt.Errorf("Palette.Colors[%d] must have 3 values, got %d", index, len(rgb))
		}
		for _, v := range rgb {
			if err := checkByte(fmt.Sprintf("Palette.Colors[%d]", index), v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (n NightModeConfig) Validate() error {
	if n.Latitude < -90 || n.Latitude > 90 {
		return fmt.Errorf("NightMode.Latitude must be between -90 and 90, got %v", n.Latitude)
	}
	if n.Longitude < -180 || n.Longitude > 180 {
		return fmt.Errorf("NightMode.Longitude must be between -180 and 180, got %v", n.Longitude)
	}
	return checkByte("NightMode.Brightness", n.Brightness)
}

func validateSegments(segs []SegmentConfig) error {
	span := func(s SegmentConfig) (int, int) {
		return min(s.First, s.Last), max(s.First, s.Last)
	}
	for i, a := range segs {
		aFirst, aLast := span(a)
		for _, b := range segs[i+1:] {
			bFirst, bLast := span(b)
			if aFirst <= bLast && bFirst <= aLast {
				return fmt.Errorf("Display.Segments %d-%d and %d-%d overlap", aFirst, aLast, bFirst, bLast)
			}
		}
	}
	return nil
}

func checkByte(name string, v int) error {
	if v < 0 || v > 255 {
		return fmt.Errorf("%s must be between 0 and 255, got %d", name, v)
	}
	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}
	return false
}
