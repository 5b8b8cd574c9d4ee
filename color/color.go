package color

import "math"

// Pixel is one LED in the frame buffer, laid out blue, green, red, alpha.
type Pixel [4]byte

type Color struct {
	Red   byte
	Green byte
	Blue  byte
	Alpha byte
}

var (
	Black       = Color{}
	White       = Color{Red: 255, Green: 255, Blue: 255}
	WhiteNorm   = Color{Red: 85, Green: 85, Blue: 85}
	Red         = Color{Red: 255}
	Orange      = Color{Red: 255, Green: 127}
	OrangeNorm  = Color{Red: 170, Green: 85}
	Yellow      = Color{Red: 255, Green: 255}
	YellowNorm  = Color{Red: 128, Green: 128}
	Green       = Color{Green: 255}
	Blue        = Color{Blue: 255}
	Magenta     = Color{Red: 255, Blue: 255}
	MagentaNorm = Color{Red: 128, Blue: 128}
	Purple      = Color{Red: 128, Blue: 128}
)

// Scale multiplies the red, green and blue channels by factor, rounding to
// the nearest value and saturating at 255. Alpha is left alone.
func (s Color) Scale(factor float64) Color {
	s.Red = scaleChannel(s.Red, factor)
	s.Green = scaleChannel(s.Green, factor)
	s.Blue = scaleChannel(s.Blue, factor)
	return s
}

func scaleChannel(v byte, factor float64) byte {
	return byte(math.Max(0, math.Min(math.Round(float64(v)*factor), 255)))
}

// True if all color channels are zero
func (s Color) IsEmpty() bool {
	return s.Red == 0 && s.Green == 0 && s.Blue == 0
}

func (s Color) BGRA() Pixel {
	return Pixel{s.Blue, s.Green, s.Red, s.Alpha}
}

func FromBGRA(p Pixel) Color {
	return Color{Blue: p[0], Green: p[1], Red: p[2], Alpha: p[3]}
}

// AddSaturating adds src to every channel of p, clamping at 255.
func (p *Pixel) AddSaturating(src Pixel) {
	for i := range p {
		sum := uint16(p[i]) + uint16(src[i])
		if sum > 255 {
			sum = 255
		}
		p[i] = byte(sum)
	}
}
