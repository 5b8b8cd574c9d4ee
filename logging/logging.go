// Package logging sets up the process wide slog logger. Output can be held
// back in memory while a full screen display owns the terminal and is
// released once a log pane is available, optionally mirrored to a file.
package logging

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Options configures Init. Level is one of DEBUG, INFO, WARN, ERROR and
// Format is text or json; unknown values fall back to INFO and text.
type Options struct {
	Level  string
	Format string
	// File, when set, receives every record regardless of buffering.
	File string
	// Buffer holds records in memory until SetOutput is called.
	Buffer bool
	// Target is the live destination when not buffering, os.Stderr if nil.
	Target io.Writer
}

type teeWriter struct {
	mu        sync.Mutex
	pending   bytes.Buffer
	target    io.Writer
	file      *os.File
	buffering bool
}

func (w *teeWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	switch {
	case w.buffering:
		w.pending.Write(p)
	case w.target != nil:
		if _, err := w.target.Write(p); err != nil {
			firstErr = err
		}
	}
	if w.file != nil {
		if _, err := w.file.Write(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return len(p), firstErr
}

var out = &teeWriter{target: os.Stderr}

// ParseLevel maps a level name to its slog level.
func ParseLevel(name string) slog.Level {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init installs a new default slog logger. It may be called again to
// reconfigure; a previously opened log file is closed.
func Init(opts Options) error {
	var file *os.File
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return err
		}
		file = f
	}

	target := opts.Target
	if target == nil {
		target = os.Stderr
	}

	out.mu.Lock()
	if out.file != nil {
		out.file.Close()
	}
	out.pending.Reset()
	out.file = file
	out.target = target
	out.buffering = opts.Buffer
	out.mu.Unlock()

	hopts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(out, hopts)
	} else {
		handler = slog.NewTextHandler(out, hopts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// SetOutput flushes everything buffered so far to target and logs to it
// directly from now on.
func SetOutput(target io.Writer) error {
	out.mu.Lock()
	defer out.mu.Unlock()

	if out.pending.Len() > 0 {
		if _, err := target.Write(out.pending.Bytes()); err != nil {
			return err
		}
		out.pending.Reset()
	}
	out.target = target
	out.buffering = false
	return nil
}

// BufferOutput detaches the live target and holds records in memory.
func BufferOutput() {
	out.mu.Lock()
	defer out.mu.Unlock()

	out.target = nil
	out.buffering = true
}

// Close releases the log file. Records still buffered go to stderr so
// nothing logged during a display session is lost.
func Close() error {
	out.mu.Lock()
	defer out.mu.Unlock()

	var firstErr error
	if out.pending.Len() > 0 && out.file == nil {
		if _, err := os.Stderr.Write(out.pending.Bytes()); err != nil {
			firstErr = err
		}
	}
	out.pending.Reset()
	if out.file != nil {
		if err := out.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		out.file = nil
	}
	return firstErr
}
