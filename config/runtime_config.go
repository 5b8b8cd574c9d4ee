package config

// RuntimeConfig is the subset of the configuration that may be changed
// while the receiver runs, through the web API. Hardware and transport
// settings are excluded.
type RuntimeConfig struct {
	Palette   PaletteConfig   `yaml:"Palette" json:"Palette"`
	NightMode NightModeConfig `yaml:"NightMode" json:"NightMode"`
	Blend     int             `yaml:"Blend" json:"Blend"`
}

func (c *Config) Runtime() RuntimeConfig {
	return RuntimeConfig{
		Palette:   c.Palette,
		NightMode: c.NightMode,
		Blend:     c.Renderer.Blend,
	}
}

// ApplyRuntime merges r into c. The caller validates the result.
func (c *Config) ApplyRuntime(r RuntimeConfig) {
	c.Palette = r.Palette
	c.NightMode = r.NightMode
	c.Renderer.Blend = r.Blend
}
