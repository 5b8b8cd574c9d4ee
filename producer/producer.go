// Package producer generates the batches a sender transmits.
package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	t "time"

	c "lautenbacher.net/goecp/config"
	p "lautenbacher.net/goecp/protocol"
)

// Producer returns the batch to send elapsed after it started. Record
// times are offsets in µs from the moment of sending.
type Producer interface {
	Next(elapsed t.Duration) []p.LedMsg
}

// New builds the producer named in cfg.
func New(cfg c.SenderConfig) (Producer, error) {
	switch strings.ToLower(cfg.Producer) {
	case "cylon":
		return NewCylon(cfg.Elements, cfg.Interval), nil
	case "stack":
		seed := uint64(t.Now().UnixNano())
		return NewStack(cfg.Elements, rand.New(rand.NewPCG(seed, seed>>1))), nil
	default:
		return nil, fmt.Errorf("unknown producer %q", cfg.Producer)
	}
}

// Run sends one batch from prod every interval until ctx is done. Send
// errors are logged and the loop goes on, unless the link is gone.
func Run(ctx context.Context, sender p.Sender, prod Producer, interval t.Duration) error {
	ticker := t.NewTicker(interval)
	defer ticker.Stop()
	start := t.Now()
	sent := 0
	for {
		select {
		case <-ctx.Done():
			slog.Info("Producer stopped", "batches", sent)
			return ctx.Err()
		case now := <-ticker.C:
			msgs := prod.Next(now.Sub(start))
			if err := sender.Send(msgs, true); err != nil {
				if errors.Is(err, p.ErrUnrecoverable) {
					return err
				}
				slog.Warn("Send failed", "error", err)
				continue
			}
			sent++
		}
	}
}

// segment is the FlatStack length that splits the strip evenly between n
// elements.
func segment(n int) uint8 {
	return uint8(max(256/n, 1) - 1)
}
