package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"lautenbacher.net/goecp/color"
	c "lautenbacher.net/goecp/config"
	"lautenbacher.net/goecp/controller"
	"lautenbacher.net/goecp/logging"
	"lautenbacher.net/goecp/nightmode"
	"lautenbacher.net/goecp/producer"
	p "lautenbacher.net/goecp/protocol"
	"lautenbacher.net/goecp/renderer"
	"lautenbacher.net/goecp/transport"
	"lautenbacher.net/goecp/transport/wsock"
	u "lautenbacher.net/goecp/util"
)

type App struct {
	cfile    string
	ossignal chan os.Signal
	settings *u.Mailbox[renderer.Settings]
	// Guards conf and night
	mu    sync.Mutex
	conf  *c.Config
	night bool
}

func NewApp(cfile string, conf *c.Config, ossignal chan os.Signal) *App {
	return &App{
		cfile:    cfile,
		conf:     conf,
		ossignal: ossignal,
		settings: u.NewMailbox[renderer.Settings](),
	}
}

// currentSettings derives palette and blend from the config and whether
// it is night.
func (a *App) currentSettings() renderer.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	palette := color.FromConfig(a.conf.Palette)
	if a.night && a.conf.NightMode.Enabled {
		palette.Scale(float64(a.conf.NightMode.Brightness) / 255.0)
	}
	return renderer.Settings{Palette: palette, Blend: uint8(a.conf.Renderer.Blend)}
}

func (a *App) applyConfig(conf *c.Config) {
	a.mu.Lock()
	a.conf = conf
	a.mu.Unlock()
	a.settings.Post(a.currentSettings())
}

func (a *App) setNight(night bool) {
	a.mu.Lock()
	a.night = night
	a.mu.Unlock()
	a.settings.Post(a.currentSettings())
}

func (a *App) config() *c.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conf
}

// Run executes mode until ctx is done or a fatal error occurs.
func (a *App) Run(ctx context.Context, mode string) error {
	switch mode {
	case "receive":
		return a.runReceiver(ctx)
	case "send":
		return a.runSender(ctx)
	case "demo":
		return a.runDemo(ctx)
	default:
		return fmt.Errorf("unknown mode %q, use receive, send or demo", mode)
	}
}

func (a *App) openReceiver() (*wsock.Server, error) {
	conf := a.config()
	handlers := map[string]http.Handler{}
	if conf.Receiver.ConfigAPI {
		handlers["/api/config"] = c.ConfigHandler(a.cfile)
	}
	srv, err := wsock.Listen(wsock.ServerOptions{
		Addr:     conf.Receiver.Listen,
		Path:     conf.Receiver.Path,
		Handlers: handlers,
	})
	if err != nil {
		return nil, err
	}
	return srv, nil
}

func (a *App) runReceiver(ctx context.Context) error {
	if strings.EqualFold(a.config().Receiver.Transport, "local") {
		return a.runDemo(ctx)
	}
	srv, err := a.openReceiver()
	if err != nil {
		return err
	}
	defer func() {
		srv.Close()
		dropped, bad := srv.Stats()
		slog.Info("Receiver closed", "dropped_records", dropped, "bad_packets", bad)
	}()
	return a.render(ctx, srv)
}

// requestQuit asks main to shut down. A signal that is already pending
// is enough.
func (a *App) requestQuit() {
	select {
	case a.ossignal <- os.Interrupt:
	default:
	}
}

// render runs the render loop on recv along with the helpers that feed it
// settings.
func (a *App) render(ctx context.Context, recv p.Receiver) error {
	conf := a.config()
	ctl, err := controller.New(conf.Display, controller.Options{
		OnQuit: a.requestQuit,
	})
	if err != nil {
		return err
	}
	defer ctl.Close()

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := c.Watch(ctx, a.cfile, a.applyConfig); err != nil {
			slog.Warn("Config file is not watched", "error", err)
		}
	}()
	if conf.NightMode.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched := nightmode.Schedule{Latitude: conf.NightMode.Latitude, Longitude: conf.NightMode.Longitude}
			sched.Run(ctx, a.setNight)
		}()
	}

	palette := a.currentSettings().Palette
	r := renderer.New(recv, ctl, renderer.Options{
		TargetFPS:     conf.Renderer.TargetFPS,
		Blend:         uint8(conf.Renderer.Blend),
		Palette:       &palette,
		Verbose:       conf.Renderer.Verbose,
		StatsInterval: conf.Renderer.StatsInterval,
		Settings:      a.settings,
	})
	err = r.Run(ctx)
	if ctx.Err() != nil {
		// the receiver may report a closed link first on shutdown
		return ctx.Err()
	}
	return err
}

func (a *App) runSender(ctx context.Context) error {
	conf := a.config()
	client, err := wsock.Dial(ctx, wsock.ClientOptions{
		URL:            conf.Sender.URL,
		MTU:            conf.Sender.MTU,
		ResyncInterval: conf.Sender.ResyncInterval,
	})
	if err != nil {
		return err
	}
	defer client.Close()
	prod, err := producer.New(conf.Sender)
	if err != nil {
		return err
	}
	return producer.Run(ctx, client, prod, conf.Sender.Interval)
}

// runDemo wires a producer to the render loop through the local
// transport.
func (a *App) runDemo(ctx context.Context) error {
	conf := a.config()
	prod, err := producer.New(conf.Sender)
	if err != nil {
		return err
	}
	send, recv := transport.NewLocal(transport.LocalOptions{MTU: conf.Sender.MTU})

	worker := transport.Spawn("demo producer", func(ctl <-chan transport.Signal) error {
		pctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			for {
				select {
				case <-pctx.Done():
					return
				case sig := <-ctl:
					if sig == transport.Terminate {
						cancel()
						return
					}
				}
			}
		}()
		defer send.Close()
		return producer.Run(pctx, send, prod, conf.Sender.Interval)
	})
	defer worker.Terminate()
	return a.render(ctx, recv)
}

func main() {
	cfile := flag.String("config", c.CONFILE, "Path to the config file")
	mode := flag.String("mode", "receive", "receive, send or demo")
	flag.Parse()

	conf, err := c.ReadConfig(*cfile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	buffer := *mode != "send" && strings.EqualFold(conf.Display.Controller, "tui")
	if err := logging.Init(logging.Options{
		Level:  conf.Logging.Level,
		Format: conf.Logging.Format,
		File:   conf.Logging.File,
		Buffer: buffer,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "can't initialise logging:", err)
		os.Exit(2)
	}

	ossignal := make(chan os.Signal, 1)
	signal.Notify(ossignal, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	app := NewApp(*cfile, conf, ossignal)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for sig := range ossignal {
			if sig == syscall.SIGHUP {
				if conf, err := c.ReadConfig(*cfile); err != nil {
					slog.Error("Reload failed", "error", err)
				} else {
					slog.Info("Reloaded config", "file", *cfile)
					app.applyConfig(conf)
				}
				continue
			}
			slog.Info("Shutting down", "signal", sig)
			cancel()
			return
		}
	}()

	err = app.Run(ctx, *mode)
	cancel()
	code := 0
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Exiting", "error", err)
		code = 1
	}
	logging.Close()
	os.Exit(code)
}
