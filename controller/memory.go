package controller

import (
	"sync"

	"lautenbacher.net/goecp/color"
)

// Memory keeps frames in process. It backs the "null" controller and
// tests.
type Memory struct {
	leds []color.Pixel
	// Guards last and renders, which other goroutines may read
	mu      sync.Mutex
	last    []color.Pixel
	renders int
}

func NewMemory(leds int) *Memory {
	return &Memory{
		leds: make([]color.Pixel, leds),
		last: make([]color.Pixel, leds),
	}
}

func (m *Memory) Leds() []color.Pixel {
	return m.leds
}

func (m *Memory) Render() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy(m.last, m.leds)
	m.renders++
	return nil
}

// Frame returns a copy of the last rendered frame.
func (m *Memory) Frame() []color.Pixel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]color.Pixel(nil), m.last...)
}

// Renders counts calls to Render.
func (m *Memory) Renders() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.renders
}

func (m *Memory) Close() error {
	return nil
}
