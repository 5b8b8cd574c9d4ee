package color

import (
	c "lautenbacher.net/goecp/config"
)

// ColorMap maps the 8 bit color index of an update to a Color. It always
// has exactly 256 slots.
type ColorMap [256]Color

// DefaultColorMap returns the reserved palette: 1 red, 2 orange, 3 yellow,
// 4 green, 5 blue, 6 magenta. Every other index is black.
func DefaultColorMap() ColorMap {
	var cm ColorMap
	cm[1] = Red
	cm[2] = OrangeNorm
	cm[3] = YellowNorm
	cm[4] = Green
	cm[5] = Blue
	cm[6] = MagentaNorm
	return cm
}

func (cm *ColorMap) Set(index uint8, color Color) {
	cm[index] = color
}

// Scale scales every slot in place.
func (cm *ColorMap) Scale(factor float64) {
	for i := range cm {
		cm[i] = cm[i].Scale(factor)
	}
}

// FromConfig builds the palette from the defaults, the configured index
// overrides and the global brightness (0-255). cfg is expected to have
// passed Validate.
func FromConfig(cfg c.PaletteConfig) ColorMap {
	cm := DefaultColorMap()
	for index, rgb := range cfg.Colors {
		cm.Set(uint8(index), Color{Red: byte(rgb[0]), Green: byte(rgb[1]), Blue: byte(rgb[2])})
	}
	if cfg.Brightness != 255 {
		cm.Scale(float64(cfg.Brightness) / 255.0)
	}
	return cm
}
