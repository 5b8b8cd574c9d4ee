package config

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWatch_ReloadsOnWrite(t *testing.T) {
	cfile := createConfigFile(t, validConfig)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 10)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, cfile, func(c *Config) { changes <- c })
	}()
	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)

	updated := strings.Replace(validConfig, "Brightness: 128", "Brightness: 42", 1)
	assert.NoError(t, os.WriteFile(cfile, []byte(updated), 0o644))

	// a write may be observed half done, wait for the final content
	timeout := time.After(2 * time.Second)
	for reloaded := false; !reloaded; {
		select {
		case conf := <-changes:
			reloaded = conf.Palette.Brightness == 42
		case <-timeout:
			t.Fatal("no reload after config file write")
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_IgnoresInvalidFile(t *testing.T) {
	cfile := createConfigFile(t, validConfig)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 10)
	go Watch(ctx, cfile, func(c *Config) { changes <- c })
	time.Sleep(100 * time.Millisecond)

	broken := strings.Replace(validConfig, "Controller: apa102", "Controller: bogus", 1)
	assert.NoError(t, os.WriteFile(cfile, []byte(broken), 0o644))

	select {
	case <-changes:
		t.Fatal("invalid config must not be delivered")
	case <-time.After(300 * time.Millisecond):
	}
}
