package controller

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"lautenbacher.net/goecp/color"
	"lautenbacher.net/goecp/logging"
)

const defaultRowLength = 72

type TUIOptions struct {
	Leds int
	// RowLength is the number of LEDs per display row.
	RowLength int
	// OnQuit is called from the UI goroutine on q or Ctrl-C.
	OnQuit func()
	// Screen replaces the terminal, for tests.
	Screen tcell.Screen
}

// TUI simulates the strip in the terminal. Once the first frame is drawn
// it takes over log output into its own pane.
type TUI struct {
	leds      []color.Pixel
	rowLength int
	app       *tview.Application
	strip     *tview.TextView
	logView   *tview.TextView
	ready     chan struct{}
	readyOnce sync.Once
	// Guards shown, the snapshot drawn by the UI goroutine
	shownMutex sync.Mutex
	shown      []color.Pixel
	stopOnce   sync.Once
	done       chan struct{}
}

func NewTUI(opts TUIOptions) (*TUI, error) {
	rowLength := opts.RowLength
	if rowLength <= 0 {
		rowLength = defaultRowLength
	}
	s := &TUI{
		leds:      make([]color.Pixel, opts.Leds),
		shown:     make([]color.Pixel, opts.Leds),
		rowLength: rowLength,
		app:       tview.NewApplication(),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
	if opts.Screen != nil {
		s.app.SetScreen(opts.Screen)
	}

	intro := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText(fmt.Sprintf("%d LEDs | Hit [#ff0000]q[-] to exit, [#ff0000]Up/Down[-] to scroll logs", opts.Leds))
	intro.SetBorder(true).SetTitle(" GOECP Receiver ").SetTitleColor(tcell.ColorLightBlue)
	intro.SetBackgroundColor(tcell.NewRGBColor(20, 20, 20))

	s.strip = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	s.strip.SetBorder(true)
	s.strip.SetBackgroundColor(tcell.NewRGBColor(30, 30, 30))

	s.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetChangedFunc(func() {
			s.logView.ScrollToEnd()
			s.app.Draw()
		})
	s.logView.SetBorder(true).SetTitle(" Logs ").SetTitleColor(tcell.ColorLightBlue)
	s.logView.SetBackgroundColor(tcell.NewRGBColor(40, 40, 40))

	rows := (opts.Leds + rowLength - 1) / rowLength
	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(intro, 3, 0, false).
		AddItem(s.strip, 3*rows+1, 0, false).
		AddItem(s.logView, 0, 1, true)

	s.app.SetAfterDrawFunc(func(screen tcell.Screen) {
		s.readyOnce.Do(func() {
			// not on the UI goroutine: flushing logs triggers a redraw
			go func() {
				logging.SetOutput(tview.ANSIWriter(s.logView))
				close(s.ready)
			}()
		})
	})

	s.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			s.quit(opts.OnQuit)
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q', 'Q':
				s.quit(opts.OnQuit)
				return nil
			}
		case tcell.KeyUp:
			row, col := s.logView.GetScrollOffset()
			s.logView.ScrollTo(row-1, col)
			return nil
		case tcell.KeyDown:
			row, col := s.logView.GetScrollOffset()
			s.logView.ScrollTo(row+1, col)
			return nil
		}
		return event
	})

	go func() {
		defer close(s.done)
		if err := s.app.SetRoot(root, true).Run(); err != nil {
			slog.Error("Error running TUI", "error", err)
			s.quit(opts.OnQuit)
		}
	}()
	return s, nil
}

func (s *TUI) quit(onQuit func()) {
	if onQuit != nil {
		onQuit()
	}
}

// Ready is closed once the first frame was drawn and logs go to the pane.
func (s *TUI) Ready() <-chan struct{} {
	return s.ready
}

func (s *TUI) Leds() []color.Pixel {
	return s.leds
}

func (s *TUI) Render() error {
	s.shownMutex.Lock()
	copy(s.shown, s.leds)
	s.shownMutex.Unlock()
	s.app.QueueUpdateDraw(s.redraw)
	return nil
}

// redraw runs on the UI goroutine.
func (s *TUI) redraw() {
	s.shownMutex.Lock()
	frame := append([]color.Pixel(nil), s.shown...)
	s.shownMutex.Unlock()

	var buf strings.Builder
	for start := 0; start < len(frame); start += s.rowLength {
		top, bottom := ledCells(frame[start:min(start+s.rowLength, len(frame))])
		buf.WriteString(" " + top + "\n " + bottom + "\n\n")
	}
	s.strip.SetText(buf.String())
}

// Close stops the UI and sends logs to stderr again.
func (s *TUI) Close() error {
	s.stopOnce.Do(func() {
		// Stop is a no-op before the screen is up
		select {
		case <-s.ready:
		case <-s.done:
		}
		s.app.Stop()
		<-s.done
		logging.SetOutput(os.Stderr)
	})
	return nil
}

var bars = []string{"▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// ledCells renders each LED as a two row bar whose height follows its
// brightness, colored with its hue at full brightness.
func ledCells(frame []color.Pixel) (string, string) {
	var top, bottom strings.Builder
	top.Grow(len(frame) * (len("[-][#000000]") + 3))
	bottom.Grow(len(frame) * (len("[-][#000000]") + 3))

	for _, px := range frame {
		col := color.FromBGRA(px)
		if col.IsEmpty() {
			top.WriteString(" ")
			bottom.WriteString(" ")
			continue
		}
		value := int(math.Round(float64(int(col.Red)+int(col.Green)+int(col.Blue)) / 3.0))
		topChar, bottomChar := " ", bars[min(value/16, 7)]
		if value >= 128 {
			topChar, bottomChar = bars[min((value-128)/16, 7)], "█"
		}
		colorStr := scaledColor(col)
		top.WriteString(colorStr + topChar + "[-]")
		bottom.WriteString(colorStr + bottomChar + "[-]")
	}
	return top.String(), bottom.String()
}

func scaledColor(col color.Color) string {
	maxColor := max(col.Red, col.Green, col.Blue)
	if maxColor == 0 {
		return "[#000000]"
	}
	factor := 255 / float64(maxColor)
	const epsilon = 1e-9
	scale := func(v byte) byte {
		return byte(math.Round(math.Min(float64(v)*factor, 255) + epsilon))
	}
	return fmt.Sprintf("[#%02x%02x%02x]", scale(col.Red), scale(col.Green), scale(col.Blue))
}
